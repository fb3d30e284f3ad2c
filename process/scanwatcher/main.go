package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"reciboscan/models"
	"reciboscan/pkg/ocr"
)

// Global DB handle for helper funcs
var db *gorm.DB

var verbose bool

// MIME mapping to avoid opening files repeatedly
var extMime = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

func mustInitDBFromEnv() *gorm.DB {
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		log.Fatalf("DB_DSN must be set in environment to run this tool")
	}
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	return gdb
}

// Main: scans a drop directory of receipt images, runs the local OCR
// pipeline on each and upserts Scan / Gasto rows; optional watch mode.
// Batch ingestion deliberately skips the remote backend: it has no user
// waiting and should not depend on network availability.
func main() {
	dirFlag := flag.String("dir", "uploads/scans", "directory to scan for receipt images")
	userID := flag.Uint("user-id", 0, "user ID to assign scans to (required)")
	dryRun := flag.Bool("dry-run", false, "skip all DB writes; just list / optionally OCR (see --simulate-ocr)")
	watch := flag.Bool("watch", false, "watch directory for new files")
	simulate := flag.Bool("simulate-ocr", false, "in dry-run: actually run OCR to show potential amounts")
	flag.BoolVar(&verbose, "verbose", false, "verbose per-file logging")
	flag.Parse()

	processor := ocr.NewProcessor(nil) // local pipeline only

	if *dryRun {
		log.Printf("Dry-run: scanning %s (no DB interaction)", *dirFlag)
		files := listImageFiles(*dirFlag)
		log.Printf("Found %d candidate files", len(files))
		if *simulate {
			for _, f := range files {
				simulateFile(processor, *dirFlag, f)
			}
		}
		return
	}

	if *userID == 0 {
		log.Fatalf("-user-id is required outside dry-run")
	}
	db = mustInitDBFromEnv()
	var user models.User
	if err := db.First(&user, *userID).Error; err != nil {
		log.Fatalf("user %d not found: %v", *userID, err)
	}

	files := listImageFiles(*dirFlag)
	log.Printf("Scanning %d files", len(files))
	for _, f := range files {
		processSingleFile(processor, *dirFlag, f, user.ID)
	}

	if *watch {
		if err := watchDirectory(processor, *dirFlag, user.ID); err != nil {
			log.Fatalf("watch failed: %v", err)
		}
	}
}

func logV(format string, args ...any) {
	if verbose {
		log.Printf(format, args...)
	}
}

func simulateFile(processor *ocr.Processor, dir, name string) {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		log.Printf("read %s: %v", name, err)
		return
	}
	res, err := processor.ProcessReceipt(context.Background(), data, name)
	if err != nil {
		log.Printf("OCR %s failed: %v", name, err)
		return
	}
	amt := 0.0
	if res.Fields.Amount != nil {
		amt = *res.Fields.Amount
	}
	logV("OCR %s amount=%.2f conf=%.1f tipo=%s", name, amt, res.Confidence, res.Fields.DocumentType)
}

func listImageFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !isSupportedExt(e.Name()) {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out
}

func isSupportedExt(name string) bool {
	_, ok := extMime[strings.ToLower(filepath.Ext(name))]
	return ok
}

// processSingleFile executes idempotent logic to create/fill Scan & Gasto.
// One receipt is processed end-to-end before the next; the pipeline holds
// its engine instance only for the duration of the call.
func processSingleFile(processor *ocr.Processor, dir, name string, userID uint) {
	// idempotent: a file already scanned for this user is skipped
	var existing models.Scan
	if err := db.Where("user_id = ? AND file_name = ?", userID, name).First(&existing).Error; err == nil {
		logV("skip %s (already scanned, id=%d)", name, existing.ID)
		return
	}

	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		log.Printf("read %s: %v", name, err)
		return
	}
	scan := models.Scan{
		UserID:      userID,
		FileName:    name,
		StorePath:   filepath.Join(dir, name),
		ContentType: extMime[strings.ToLower(filepath.Ext(name))],
	}
	res, err := processor.ProcessReceipt(context.Background(), data, name)
	if err != nil {
		// keep the failed record so it can be reviewed, do not delete the file
		scan.Failed = true
		scan.FailedReason = ocr.Snippet(err.Error(), 255)
		if dbErr := db.Create(&scan).Error; dbErr != nil {
			log.Printf("save failed scan %s: %v", name, dbErr)
		}
		log.Printf("OCR %s failed: %v", name, err)
		return
	}
	scan.Motor = res.Motor
	scan.Confianza = res.Confidence
	scan.Monto = res.Fields.Amount
	scan.Tipo = res.Fields.DocumentType
	if err := db.Create(&scan).Error; err != nil {
		log.Printf("save scan %s: %v", name, err)
		return
	}
	logV("scanned %s id=%d conf=%.1f tipo=%s", name, scan.ID, scan.Confianza, scan.Tipo)

	if res.Fields.Amount == nil {
		return
	}
	// avoid duplicate gasto rows for the same file
	var existingGasto models.Gasto
	if err := db.Where("user_id = ? AND scan_id = ?", userID, scan.ID).First(&existingGasto).Error; err == nil {
		return
	}
	desc := res.Fields.DocumentType + " " + name
	if res.Fields.Description != nil {
		desc = *res.Fields.Description
	}
	sid := scan.ID
	g := models.Gasto{
		UserID:      userID,
		Descripcion: desc,
		Monto:       *res.Fields.Amount,
		Fecha:       time.Now(),
		Tipo:        res.Fields.DocumentType,
		ScanID:      &sid,
	}
	if res.Fields.Date != nil {
		g.FechaTexto = *res.Fields.Date
	}
	if err := db.Create(&g).Error; err != nil {
		log.Printf("save gasto for %s: %v", name, err)
	}
}

func watchDirectory(processor *ocr.Processor, dir string, userID uint) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return err
	}
	log.Printf("Watching %s (debounced) ...", dir)

	// debounce: files are announced on Create but may still be mid-copy
	pending := map[string]time.Time{}
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create == fsnotify.Create {
				name := filepath.Base(ev.Name)
				if !isSupportedExt(name) {
					continue
				}
				pending[name] = time.Now()
			}
		case <-ticker.C:
			now := time.Now()
			for name, t := range pending {
				if now.Sub(t) > 300*time.Millisecond { // stable
					delete(pending, name)
					processSingleFile(processor, dir, name, userID)
				}
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Printf("watch error: %v", err)
		}
	}
}

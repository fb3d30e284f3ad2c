package main

import (
	"log"
	"os"
	"strings"

	"reciboscan/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var db *gorm.DB

func initDB() {
	var err error
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		log.Fatal("DB_DSN is not set. This project requires a Postgres DSN in DB_DSN.")
	}
	db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect postgres database:", err)
	}
	// Control schema migrations with env DB_AUTO_MIGRATE (default true). Any permission errors will be logged and ignored.
	shouldMigrate := true
	if v := os.Getenv("DB_AUTO_MIGRATE"); v != "" {
		lv := strings.ToLower(v)
		if lv == "false" || lv == "0" || lv == "no" {
			shouldMigrate = false
		}
	}
	// Ensure the roles master table exists first and seed it so users FK can be applied safely.
	if shouldMigrate {
		if err := db.AutoMigrate(&models.Role{}); err != nil {
			log.Printf("migration warning (roles): %v", err)
		}
	}
	// seed master roles immediately
	roles := []models.Role{{Name: "administrator", Description: "full access"}, {Name: "user", Description: "regular user"}}
	for _, r := range roles {
		var cnt int64
		db.Model(&models.Role{}).Where("name = ?", r.Name).Count(&cnt)
		if cnt == 0 {
			db.Create(&r)
		}
	}

	if shouldMigrate {
		// Migrate models individually so a failure on one doesn't block others
		if err := db.AutoMigrate(&models.User{}); err != nil {
			log.Printf("migration warning (users): %v", err)
		}
		if err := db.AutoMigrate(&models.Scan{}); err != nil {
			log.Printf("migration warning (scans): %v", err)
		}
		if err := db.AutoMigrate(&models.Gasto{}); err != nil {
			log.Printf("migration warning (gastos): %v", err)
		}
		if err := db.AutoMigrate(&models.RefreshToken{}); err != nil {
			log.Printf("migration warning (refresh_tokens): %v", err)
		}
	}

	seedDB()
}

// seedDB creates a default administrator when ADMIN_PASSWORD is provided.
func seedDB() {
	pw := os.Getenv("ADMIN_PASSWORD")
	if pw == "" {
		return
	}
	var existing models.User
	if err := db.Where("username = ?", "admin").First(&existing).Error; err == nil {
		return
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("seed warning: hash admin password: %v", err)
		return
	}
	var role models.Role
	if err := db.Where("name = ?", "administrator").First(&role).Error; err != nil {
		log.Printf("seed warning: administrator role missing: %v", err)
		return
	}
	rid := role.ID
	if err := db.Create(&models.User{Username: "admin", HashedPassword: hashed, RoleID: &rid}).Error; err != nil {
		log.Printf("seed warning: create admin: %v", err)
	}
}

// uploadBaseDir resolves where scanned receipt images are stored on disk.
func uploadBaseDir() string {
	if v := os.Getenv("UPLOAD_BASE"); v != "" {
		return v
	}
	return "uploads"
}

package models

import "time"

// Scan records one receipt image submission and the OCR summary for it.
// Raw recognition intermediates are not persisted; only this summary row
// survives the request.
type Scan struct {
	ID          uint `gorm:"primaryKey"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	UserID      uint   `gorm:"index;not null"`
	FileName    string `gorm:"size:255;not null"`
	StorePath   string `gorm:"column:store_path;size:512"`
	ContentType string `gorm:"size:128"`
	// Motor is the engine label that produced the result
	// (e.g. claude-vision, tesseract-local).
	Motor     string  `gorm:"size:64"`
	Confianza float64 `gorm:"not null;default:0"`
	Monto     *float64
	Tipo      string `gorm:"size:64"`
	// Mark scan as failed (keep the record so the front end can review)
	Failed       bool   `gorm:"default:false;index"`
	FailedReason string `gorm:"size:255"`
}

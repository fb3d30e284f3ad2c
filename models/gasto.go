package models

import "time"

// Gasto is an expense entry, either confirmed from the form or auto-created
// from a scan that detected an amount (editable afterwards).
type Gasto struct {
	ID          uint `gorm:"primaryKey"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	UserID      uint    `gorm:"index;not null"`
	Descripcion string  `gorm:"size:255;not null"`
	Monto       float64 `gorm:"not null"`
	// FechaTexto keeps the raw date string read off the receipt (never
	// calendar-validated); Fecha is the entry timestamp used for reporting.
	FechaTexto string    `gorm:"size:32"`
	Fecha      time.Time `gorm:"not null"`
	Tipo       string    `gorm:"size:64"`
	ScanID     *uint     `gorm:"index"` // set when the expense came from a scan
}

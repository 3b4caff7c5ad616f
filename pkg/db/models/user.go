package models

import "time"

// User represents a storefront account. Admins are flagged, not a separate table.
type User struct {
	ID           int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Email        string    `gorm:"column:email;type:text;not null;uniqueIndex"`
	PasswordHash string    `gorm:"column:password_hash;not null"`
	Name         string    `gorm:"column:name;not null"`
	Phone        *string   `gorm:"column:phone"`
	Address      *string   `gorm:"column:address"`
	IsAdmin      bool      `gorm:"column:is_admin;not null;default:false"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

package models

import (
	"time"
)

// CacheEntry is a short-lived counter or value stored in the database, used for rate
// limiting when Redis is not configured.
type CacheEntry struct {
	Key       string `gorm:"primaryKey;size:256"`
	Value     []byte
	ExpiresAt time.Time `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

package models

import (
	"time"

	"gorm.io/gorm"
)

// SessionRecord is the database row for a narrative session.
type SessionRecord struct {
	ID         string         `gorm:"primaryKey;size:64" json:"id"`
	Title      string         `gorm:"size:255" json:"title"`
	Status     string         `gorm:"size:32" json:"status"` // "active", "ended"
	TurnCount  int            `json:"turn_count"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}

// TurnRecord archives one committed narrative unit for a session.
// Written fire-and-forget after each turn commit; never read back into
// the live session, which exists only in memory.
type TurnRecord struct {
	ID         string    `gorm:"primaryKey;size:64" json:"id"`
	SessionID  string    `gorm:"index;size:64" json:"session_id"`
	Turn       int       `json:"turn"`
	SceneID    string    `gorm:"size:128" json:"scene_id"`
	Action     string    `gorm:"type:text" json:"action"` // player choice text
	UnitJSON   string    `gorm:"type:text" json:"-"`      // serialized NarrativeUnit
	LedgerJSON string    `gorm:"type:text" json:"-"`      // serialized post-commit Ledger
	CreatedAt  time.Time `json:"created_at"`
}

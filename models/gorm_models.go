package models

import (
	"time"

	"gorm.io/gorm"
)

// GormMatchRecord is the archive row for a finished match.
type GormMatchRecord struct {
	gorm.Model
	RoomID    string            `gorm:"index;not null"`
	GameType  string            `gorm:"not null"`
	Guests    map[string]string `gorm:"type:jsonb;serializer:json"`
	StartedAt time.Time
	EndedAt   time.Time
	Duration  int `gorm:"default:0"` // seconds
}

func NewGormMatchRecord(record *MatchRecord) *GormMatchRecord {
	return &GormMatchRecord{
		RoomID:    record.RoomID,
		GameType:  record.GameType,
		Guests:    record.GuestIDs,
		StartedAt: record.StartedAt,
		EndedAt:   record.EndedAt,
		Duration:  record.Duration,
	}
}

func (r *GormMatchRecord) Record() MatchRecord {
	return MatchRecord{
		RoomID:    r.RoomID,
		GameType:  r.GameType,
		GuestIDs:  r.Guests,
		StartedAt: r.StartedAt,
		EndedAt:   r.EndedAt,
		Duration:  r.Duration,
	}
}

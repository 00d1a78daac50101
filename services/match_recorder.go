// services/match_recorder.go
package services

import (
	"time"

	"github.com/wfunc/boardrelay/logger"
	"github.com/wfunc/boardrelay/models"
	"github.com/wfunc/boardrelay/persistence"
	"github.com/wfunc/boardrelay/room"
)

// MatchRecorder turns reclaimed rooms into archive records. A nil database
// makes every call a no-op, which is the default deployment.
type MatchRecorder struct {
	db persistence.Database
}

func NewMatchRecorder(db persistence.Database) *MatchRecorder {
	return &MatchRecorder{db: db}
}

// Enabled reports whether an archive backend is configured.
func (s *MatchRecorder) Enabled() bool {
	return s.db != nil
}

// RoomReclaimed archives a room that paired at least once. Rooms that never
// saw two occupants are not worth a record.
func (s *MatchRecorder) RoomReclaimed(rm *room.Room) {
	if s.db == nil {
		return
	}

	pairedAt := rm.PairedAt()
	if pairedAt.IsZero() {
		return
	}

	now := time.Now()
	guests := make(map[string]string)
	for tag, id := range rm.PairedGuests() {
		guests[string(tag)] = id
	}

	record := &models.MatchRecord{
		RoomID:    rm.ID,
		GameType:  string(rm.GameType),
		GuestIDs:  guests,
		StartedAt: pairedAt,
		EndedAt:   now,
		Duration:  int(now.Sub(pairedAt).Seconds()),
	}

	if err := s.db.SaveMatchRecord(record); err != nil {
		logger.Log.Errorf("Failed to archive match record for room %s: %v", rm.ID, err)
	}
}

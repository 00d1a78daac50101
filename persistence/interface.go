package persistence

import (
	"fmt"

	"github.com/wfunc/boardrelay/models"
)

// Database is the match-record archive. Append-only from the relay's point of
// view; room state itself never touches it.
type Database interface {
	SaveMatchRecord(record *models.MatchRecord) error
	RecentMatchRecords(limit int) ([]models.MatchRecord, error)
	Close() error
}

var ErrRecordNotFound = fmt.Errorf("record not found")

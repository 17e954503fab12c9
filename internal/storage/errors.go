package storage

import (
	"context"
	"errors"

	sqlite "modernc.org/sqlite"
)

// writeKind is the closed classification of a failed write; retry policy is
// a total function over these tags.
type writeKind int

const (
	writePermanent writeKind = iota
	writeTransient
	writeRateLimit // backend busy/locked, the SQLite analogue of throttling
)

// SQLite primary result codes.
const (
	sqliteBusy     = 5
	sqliteLocked   = 6
	sqliteIOErr    = 10
	sqliteFull     = 13
	sqliteCantOpen = 14
)

func classifyWriteError(err error) writeKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return writeTransient
	}

	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqliteBusy, sqliteLocked:
			return writeRateLimit
		case sqliteIOErr, sqliteFull, sqliteCantOpen:
			return writeTransient
		}
	}
	return writePermanent
}

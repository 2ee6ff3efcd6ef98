// Package imessage reads the macOS Messages sqlite store (chat.db) and
// resolves handles against the Contacts address book. All access is
// read-only and sequential; concurrency and lifecycle live in the transport
// layer, not here.
package imessage

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var (
	// ErrDatabaseNotFound indicates the chat.db path does not exist or is
	// unreadable.
	ErrDatabaseNotFound = errors.New("message database not found")
	// ErrChatNotFound indicates no chat matched the given identifier.
	ErrChatNotFound = errors.New("chat not found")
)

// appleEpoch is the zero point of Messages timestamps (ns since 2001-01-01).
var appleEpoch = time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)

// AppleToTime converts a chat.db date column value to a time.Time. Older
// databases store seconds; modern ones store nanoseconds.
func AppleToTime(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	if v > 1_000_000_000_000 { // nanosecond scale
		return appleEpoch.Add(time.Duration(v))
	}
	return appleEpoch.Add(time.Duration(v) * time.Second)
}

// TimeToApple converts a time.Time to a nanosecond-scale chat.db timestamp.
func TimeToApple(t time.Time) int64 {
	return t.Sub(appleEpoch).Nanoseconds()
}

// DB wraps a read-only connection to chat.db.
type DB struct {
	sqldb *sql.DB
	path  string
}

// Open opens the Messages database read-only. The immutable flag is not set
// because Messages keeps the database in WAL mode and appends continuously.
func Open(path string) (*DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDatabaseNotFound, path)
	}
	dsn := fmt.Sprintf("file:%s?mode=ro&_busy_timeout=5000", url.PathEscape(path))
	sqldb, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// A single connection keeps sqlite's locking behavior predictable for a
	// read-only workload.
	sqldb.SetMaxOpenConns(1)
	return &DB{sqldb: sqldb, path: path}, nil
}

// Path returns the filesystem path the database was opened from.
func (d *DB) Path() string { return d.path }

// Close releases the underlying connection.
func (d *DB) Close() error { return d.sqldb.Close() }

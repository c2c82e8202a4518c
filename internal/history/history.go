// Package history keeps a local log of completed transfers. It is written
// after each transfer and read only by the history command.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/openmined/savesync/internal/db"
)

const schema = `
CREATE TABLE IF NOT EXISTS transfers (
    id TEXT PRIMARY KEY,
    run_id TEXT NOT NULL,
    direction TEXT NOT NULL,
    path TEXT NOT NULL,
    rev TEXT NOT NULL,
    size INTEGER NOT NULL,
    modified TEXT NOT NULL, -- RFC3339
    transferred_at TEXT NOT NULL -- timeLayout, fixed width
);

CREATE INDEX IF NOT EXISTS idx_transfers_run ON transfers(run_id);
CREATE INDEX IF NOT EXISTS idx_transfers_at ON transfers(transferred_at);
`

// timeLayout keeps every fraction digit so the text column sorts in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type Direction string

const (
	DirectionUpload   Direction = "upload"
	DirectionDownload Direction = "download"
)

// Transfer is one completed upload or download.
type Transfer struct {
	ID            string
	RunID         string
	Direction     Direction
	Path          string
	Rev           string
	Size          int64
	Modified      time.Time
	TransferredAt time.Time
}

type dbTransfer struct {
	ID            string `db:"id"`
	RunID         string `db:"run_id"`
	Direction     string `db:"direction"`
	Path          string `db:"path"`
	Rev           string `db:"rev"`
	Size          int64  `db:"size"`
	Modified      string `db:"modified"`
	TransferredAt string `db:"transferred_at"`
}

type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

// Open opens (or creates) the store at dbPath. An empty path keeps the store
// in memory.
func Open(dbPath string) (*Store, error) {
	opts := []db.SqliteOption{}
	if dbPath != "" {
		opts = append(opts, db.WithPath(dbPath))
	}

	conn, err := db.NewSqliteDB(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open history db: %w", err)
	}

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}

	return &Store{db: conn, now: time.Now}, nil
}

func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		slog.Error("failed to close history db", "error", err)
		return err
	}
	return nil
}

// Record appends t. ID and TransferredAt are filled in when empty.
func (s *Store) Record(ctx context.Context, t Transfer) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.TransferredAt.IsZero() {
		t.TransferredAt = s.now()
	}

	row := dbTransfer{
		ID:            t.ID,
		RunID:         t.RunID,
		Direction:     string(t.Direction),
		Path:          t.Path,
		Rev:           t.Rev,
		Size:          t.Size,
		Modified:      t.Modified.UTC().Format(time.RFC3339),
		TransferredAt: t.TransferredAt.UTC().Format(timeLayout),
	}

	query := `INSERT INTO transfers (id, run_id, direction, path, rev, size, modified, transferred_at)
	          VALUES (:id, :run_id, :direction, :path, :rev, :size, :modified, :transferred_at)`
	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("failed to record transfer %s: %w", t.Path, err)
	}
	return nil
}

// Recent returns up to limit transfers, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Transfer, error) {
	if limit <= 0 {
		limit = 20
	}

	var rows []dbTransfer
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, run_id, direction, path, rev, size, modified, transferred_at
		 FROM transfers ORDER BY transferred_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transfers: %w", err)
	}

	transfers := make([]Transfer, 0, len(rows))
	for _, row := range rows {
		modified, err := time.Parse(time.RFC3339, row.Modified)
		if err != nil {
			slog.Warn("skipping history row with bad timestamp", "id", row.ID, "value", row.Modified)
			continue
		}
		at, err := time.Parse(time.RFC3339Nano, row.TransferredAt)
		if err != nil {
			slog.Warn("skipping history row with bad timestamp", "id", row.ID, "value", row.TransferredAt)
			continue
		}
		transfers = append(transfers, Transfer{
			ID:            row.ID,
			RunID:         row.RunID,
			Direction:     Direction(row.Direction),
			Path:          row.Path,
			Rev:           row.Rev,
			Size:          row.Size,
			Modified:      modified,
			TransferredAt: at,
		})
	}
	return transfers, nil
}

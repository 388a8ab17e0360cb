package storage

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/martpet/hotspace-aws/internal/entities"
)

type dbStorage struct {
	dbpool *pgxpool.Pool
}

func New(ctx context.Context, databaseDSN string) (*dbStorage, error) {
	pool, err := pgxpool.New(ctx, databaseDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return &dbStorage{dbpool: pool}, nil
}

func (s *dbStorage) Ping(ctx context.Context) error {
	return s.dbpool.Ping(ctx)
}

func (s *dbStorage) Close() {
	s.dbpool.Close()
}

const insertDeadLetter = `
INSERT INTO dead_letters
	(message_id, stream, kind, inode_id, object_key, payload, receive_count, reason, terminal_event_emitted)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (stream, message_id) DO NOTHING`

// InsertDeadLetter records dl once; a second record of the same stream entry
// is ignored and the first one kept.
func (s *dbStorage) InsertDeadLetter(ctx context.Context, dl entities.DeadLetter) error {
	tag, err := s.dbpool.Exec(ctx, insertDeadLetter,
		dl.MessageID, dl.Stream, dl.Kind, dl.InodeID, dl.ObjectKey,
		dl.Payload, dl.ReceiveCount, dl.Reason, dl.TerminalEventEmitted,
	)
	if err != nil {
		return fmt.Errorf("insert dead letter %s: %w", dl.MessageID, err)
	}
	if tag.RowsAffected() == 0 {
		log.Printf("[storage] dead letter stream=%s id=%s already recorded", dl.Stream, dl.MessageID)
	}
	return nil
}

const selectDeadLetters = `
SELECT id, message_id, stream, kind, inode_id, object_key, payload,
	receive_count, reason, terminal_event_emitted, created_at
FROM dead_letters
ORDER BY created_at DESC
LIMIT $1`

// ListDeadLetters returns the newest dead letters first.
func (s *dbStorage) ListDeadLetters(ctx context.Context, limit int) ([]entities.DeadLetter, error) {
	rows, err := s.dbpool.Query(ctx, selectDeadLetters, limit)
	if err != nil {
		return nil, fmt.Errorf("query dead letters: %w", err)
	}

	letters, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (entities.DeadLetter, error) {
		var dl entities.DeadLetter
		err := row.Scan(&dl.ID, &dl.MessageID, &dl.Stream, &dl.Kind, &dl.InodeID, &dl.ObjectKey,
			&dl.Payload, &dl.ReceiveCount, &dl.Reason, &dl.TerminalEventEmitted, &dl.CreatedAt)
		return dl, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan dead letters: %w", err)
	}
	return letters, nil
}

// PurgeDeadLetters deletes dead letters created before cutoff.
func (s *dbStorage) PurgeDeadLetters(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.dbpool.Exec(ctx, `DELETE FROM dead_letters WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge dead letters: %w", err)
	}
	return tag.RowsAffected(), nil
}

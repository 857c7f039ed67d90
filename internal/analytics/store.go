package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/pkg/postgres"
)

const snapshotSchema = `CREATE TABLE IF NOT EXISTS analytics_snapshots (
	id         BIGSERIAL PRIMARY KEY,
	stats      JSONB       NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// SnapshotStore periodically persists aggregated stats.
type SnapshotStore struct {
	db     *postgres.Client
	logger *slog.Logger
}

func NewSnapshotStore(db *postgres.Client) *SnapshotStore {
	return &SnapshotStore{
		db:     db,
		logger: slog.Default().With("component", "analytics-store"),
	}
}

func (s *SnapshotStore) EnsureSchema(ctx context.Context) error {
	return s.db.Exec(ctx, snapshotSchema)
}

func (s *SnapshotStore) Save(ctx context.Context, payload []byte) error {
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO analytics_snapshots (stats) VALUES ($1)`, payload); err != nil {
			return fmt.Errorf("inserting analytics snapshot: %w", err)
		}
		return nil
	})
}

// Latest returns the most recent snapshot, or nil when none exist.
func (s *SnapshotStore) Latest(ctx context.Context) ([]byte, time.Time, error) {
	var (
		payload []byte
		at      time.Time
	)
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT stats, created_at FROM analytics_snapshots ORDER BY id DESC LIMIT 1`,
	).Scan(&payload, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, nil
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("loading analytics snapshot: %w", err)
	}
	return payload, at, nil
}

// Run saves a snapshot of agg every interval until ctx is cancelled, and
// once more on the way out.
func (s *SnapshotStore) Run(ctx context.Context, agg *Aggregator, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.snapshot(ctx, agg)
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			s.snapshot(shutdownCtx, agg)
			cancel()
			return
		}
	}
}

func (s *SnapshotStore) snapshot(ctx context.Context, agg *Aggregator) {
	payload, err := agg.MarshalSnapshot()
	if err != nil {
		s.logger.Error("failed to encode snapshot", "error", err)
		return
	}
	if err := s.Save(ctx, payload); err != nil {
		s.logger.Error("failed to save snapshot", "error", err)
		return
	}
	s.logger.Debug("analytics snapshot saved", "bytes", len(payload))
}

// Package store keeps the history of rank checks in PostgreSQL so rank
// movement per keyword can be followed over time.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/internal/serp/report"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/pkg/postgres"
)

const schema = `CREATE TABLE IF NOT EXISTS serp_rankings (
    id          BIGSERIAL PRIMARY KEY,
    request_id  TEXT NOT NULL DEFAULT '',
    keyword     TEXT NOT NULL,
    site        TEXT NOT NULL,
    is_primary  BOOLEAN NOT NULL DEFAULT FALSE,
    rank        INTEGER,
    pixel_rank  INTEGER,
    checked_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

const schemaIndex = `CREATE INDEX IF NOT EXISTS serp_rankings_keyword_idx
    ON serp_rankings (keyword, checked_at DESC)`

// Entry is one site's rank for one keyword at one point in time.
type Entry struct {
	Keyword   string    `json:"keyword"`
	Site      string    `json:"site"`
	Primary   bool      `json:"primary"`
	Rank      *int      `json:"rank"`
	PixelRank *int      `json:"pixel_rank,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Store persists rank reports.
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

func New(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "rank-store"),
	}
}

// EnsureSchema creates the history table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.db.Exec(ctx, schema, schemaIndex)
}

// SaveReport writes one row per keyword and site in a single transaction.
func (s *Store) SaveReport(ctx context.Context, requestID string, rep *report.Report) error {
	entries := Flatten(rep)
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO serp_rankings (request_id, keyword, site, is_primary, rank, pixel_rank, checked_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`)
		if err != nil {
			return fmt.Errorf("preparing insert: %w", err)
		}
		defer stmt.Close()
		for _, e := range entries {
			if _, err := stmt.ExecContext(ctx, requestID, e.Keyword, e.Site, e.Primary,
				nullInt(e.Rank), nullInt(e.PixelRank), e.CheckedAt); err != nil {
				return fmt.Errorf("inserting rank for %q/%s: %w", e.Keyword, e.Site, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("saving rank report: %w", err)
	}
	s.logger.Info("rank report saved", "keywords", len(rep.Records), "rows", len(entries))
	return nil
}

// History returns the newest entries for keyword, newest first. An empty
// keyword lists all keywords.
func (s *Store) History(ctx context.Context, keyword string, limit int) ([]Entry, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT keyword, site, is_primary, rank, pixel_rank, checked_at
		 FROM serp_rankings
		 WHERE $1 = '' OR keyword = $1
		 ORDER BY checked_at DESC, id DESC
		 LIMIT $2`,
		keyword, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying rank history: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var e Entry
		var rank, pixel sql.NullInt64
		if err := rows.Scan(&e.Keyword, &e.Site, &e.Primary, &rank, &pixel, &e.CheckedAt); err != nil {
			return nil, fmt.Errorf("scanning rank history row: %w", err)
		}
		e.Rank = intPtr(rank)
		e.PixelRank = intPtr(pixel)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Flatten expands a report into one Entry per keyword and site. The pixel
// rank is attached to the primary site's entry only.
func Flatten(rep *report.Report) []Entry {
	entries := make([]Entry, 0, len(rep.Records)*len(rep.Sites))
	primary := rep.Primary()
	for _, rec := range rep.Records {
		for _, site := range rep.Sites {
			e := Entry{
				Keyword:   rec.Keyword,
				Site:      site,
				Primary:   site == primary,
				Rank:      rec.Ranks[site],
				CheckedAt: rep.GeneratedAt,
			}
			if e.Primary {
				e.PixelRank = rec.PixelRank
			}
			entries = append(entries, e)
		}
	}
	return entries
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

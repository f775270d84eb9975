package analytics

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristomenis/vigil/internal/database"
	"github.com/aristomenis/vigil/internal/domain"
)

// HistoryRepository persists published analytics snapshots so downstream
// consumers can query recent history. Rows are msgpack blobs keyed by
// snapshot timestamp; the analytics core itself never reads them back for
// computation.
type HistoryRepository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewHistoryRepository creates a new analytics history repository
func NewHistoryRepository(db *database.DB, log zerolog.Logger) *HistoryRepository {
	return &HistoryRepository{
		db:  db,
		log: log.With().Str("repo", "analytics_history").Logger(),
	}
}

// Init creates the analytics history table if it does not exist.
func (r *HistoryRepository) Init() error {
	if _, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS analytics_snapshots (
			id TEXT PRIMARY KEY,
			timestamp INTEGER NOT NULL,
			payload BLOB NOT NULL
		)`); err != nil {
		return fmt.Errorf("failed to create analytics_snapshots table: %w", err)
	}
	if _, err := r.db.Exec(
		`CREATE INDEX IF NOT EXISTS idx_analytics_timestamp ON analytics_snapshots(timestamp)`); err != nil {
		return fmt.Errorf("failed to create analytics_snapshots index: %w", err)
	}
	return nil
}

// Store persists one published snapshot.
func (r *HistoryRepository) Store(snapshot domain.AnalyticsSnapshot) error {
	payload, err := msgpack.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode analytics snapshot: %w", err)
	}

	_, err = r.db.Exec(
		`INSERT OR REPLACE INTO analytics_snapshots (id, timestamp, payload) VALUES (?, ?, ?)`,
		snapshot.ID, snapshot.Timestamp.UnixNano(), payload,
	)
	if err != nil {
		return fmt.Errorf("failed to store analytics snapshot: %w", err)
	}
	return nil
}

// Recent returns up to limit snapshots, newest first.
func (r *HistoryRepository) Recent(limit int) ([]domain.AnalyticsSnapshot, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(
		`SELECT payload FROM analytics_snapshots ORDER BY timestamp DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query analytics snapshots: %w", err)
	}
	defer rows.Close()

	var out []domain.AnalyticsSnapshot
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan analytics snapshot: %w", err)
		}
		var snapshot domain.AnalyticsSnapshot
		if err := msgpack.Unmarshal(payload, &snapshot); err != nil {
			return nil, fmt.Errorf("failed to decode analytics snapshot: %w", err)
		}
		out = append(out, snapshot)
	}
	return out, rows.Err()
}

// Prune deletes snapshots older than the retention horizon.
func (r *HistoryRepository) Prune(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).UnixNano()
	result, err := r.db.Exec(`DELETE FROM analytics_snapshots WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune analytics snapshots: %w", err)
	}
	deleted, _ := result.RowsAffected()
	if deleted > 0 {
		r.log.Debug().Int64("deleted", deleted).Msg("Pruned analytics history")
	}
	return deleted, nil
}

package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/riftline/inspectgate/internal/persistence"
)

// rankingRepo reads the ranking_view materialized view. This package never
// writes it; only the external refresh process does.
type rankingRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewRankingRepo creates a new PostgreSQL ranking view reader.
func NewRankingRepo(db *sqlx.DB, timeout time.Duration) persistence.RankingRepo {
	return &rankingRepo{db: db, timeout: timeout}
}

// GetByUniqueID returns the ranking row for a unique_id, if the view has
// been refreshed with it yet.
func (r *rankingRepo) GetByUniqueID(ctx context.Context, uniqueID string) (*persistence.RankingRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT unique_id, low_rank, high_rank, global_low, global_high
		FROM ranking_view
		WHERE unique_id = $1`

	var row persistence.RankingRow
	err := r.db.QueryRowxContext(ctx, query, uniqueID).Scan(
		&row.UniqueID, &row.LowRank, &row.HighRank,
		&row.GlobalLow, &row.GlobalHigh,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get ranking for %s: %w", uniqueID, err)
	}
	return &row, nil
}

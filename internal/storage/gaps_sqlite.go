package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GapInsight is one stored research-gap finding of a collection.
type GapInsight struct {
	ID           string          `json:"id"`
	CollectionID string          `json:"collection_id"`
	Insight      string          `json:"insight"`
	Score        float64         `json:"score"`
	Evidence     json.RawMessage `json:"evidence,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// ReplaceGapInsights swaps the stored insights of a collection for
// insights. An empty slice clears them.
func (t *Tx) ReplaceGapInsights(ctx context.Context, collectionID string, insights []GapInsight) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM gap_insights WHERE collection_id = ?`, collectionID); err != nil {
		return fmt.Errorf("clearing gap insights: %w", err)
	}

	now := time.Now()
	for i := range insights {
		g := &insights[i]
		if g.ID == "" {
			g.ID = uuid.NewString()
		}
		g.CollectionID = collectionID
		g.CreatedAt = now

		var evidence sql.NullString
		if len(g.Evidence) > 0 {
			evidence = sql.NullString{String: string(g.Evidence), Valid: true}
		}
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO gap_insights (id, collection_id, insight, score, evidence, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, g.ID, collectionID, g.Insight, g.Score, evidence, formatTime(now))
		if err != nil {
			return fmt.Errorf("inserting gap insight: %w", err)
		}
	}
	return nil
}

// ListGapInsights returns the stored insights of a collection, highest
// score first.
func (t *Tx) ListGapInsights(ctx context.Context, collectionID string) ([]GapInsight, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, collection_id, insight, score, evidence, created_at
		FROM gap_insights
		WHERE collection_id = ?
		ORDER BY score DESC, rowid
	`, collectionID)
	if err != nil {
		return nil, fmt.Errorf("listing gap insights: %w", err)
	}
	defer rows.Close()

	var out []GapInsight
	for rows.Next() {
		var (
			g         GapInsight
			evidence  sql.NullString
			createdAt string
		)
		if err := rows.Scan(&g.ID, &g.CollectionID, &g.Insight, &g.Score, &evidence, &createdAt); err != nil {
			return nil, err
		}
		if evidence.Valid {
			g.Evidence = json.RawMessage(evidence.String)
		}
		g.CreatedAt = parseTime(createdAt)
		out = append(out, g)
	}
	return out, rows.Err()
}

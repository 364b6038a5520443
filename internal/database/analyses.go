package database

import (
	"context"
	"time"
)

const (
	analysisColumns = "id, response, competitor, company_appears, sentiment, position, created_at"
	inChunk         = 500
)

// ListAnalyses returns all analysis rows for the given responses.
func (db *DB) ListAnalyses(ctx context.Context, responseIDs []int64) ([]Analysis, error) {
	var out []Analysis
	for _, ids := range chunk(responseIDs, inChunk) {
		rows, err := db.query(ctx, `SELECT `+analysisColumns+` FROM response_analysis
			WHERE response IN (`+placeholders(len(ids))+`) ORDER BY id`, int64Args(ids)...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var a Analysis
			var created Time
			if err := rows.Scan(&a.ID, &a.ResponseID, &a.CompetitorID, &a.CompanyAppears,
				&a.Sentiment, &a.Position, &created); err != nil {
				rows.Close()
				return nil, err
			}
			a.CreatedAt = created.Time
			out = append(out, a)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// InsertAnalysis stores one analysis row.
func (db *DB) InsertAnalysis(ctx context.Context, a Analysis) (int64, error) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	return db.insertID(ctx, db.conn,
		`INSERT INTO response_analysis (response, competitor, company_appears, sentiment, position, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ResponseID, a.CompetitorID, a.CompanyAppears, a.Sentiment, a.Position, db.ts(a.CreatedAt),
	)
}

// HasAnalysis reports whether any analysis row links one of the responses
// to one of the competitors.
func (db *DB) HasAnalysis(ctx context.Context, responseIDs, competitorIDs []int64) (bool, error) {
	if len(responseIDs) == 0 || len(competitorIDs) == 0 {
		return false, nil
	}
	for _, ids := range chunk(responseIDs, inChunk) {
		args := append(int64Args(ids), int64Args(competitorIDs)...)
		var n int
		err := db.queryRow(ctx,
			`SELECT COUNT(*) FROM response_analysis
			WHERE response IN (`+placeholders(len(ids))+`)
			AND competitor IN (`+placeholders(len(competitorIDs))+`)`,
			args...,
		).Scan(&n)
		if err != nil {
			return false, err
		}
		if n > 0 {
			return true, nil
		}
	}
	return false, nil
}

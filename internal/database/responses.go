package database

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const responseColumns = "id, prompt, company, response, model, sources, source, created_at"

// ResponseFilter narrows ListResponses. CompanyID is required.
type ResponseFilter struct {
	CompanyID string
	Since     *time.Time
	PromptIDs []int64
}

// ListResponses returns matching responses, oldest first.
func (db *DB) ListResponses(ctx context.Context, f ResponseFilter) ([]Response, error) {
	query := `SELECT ` + responseColumns + ` FROM responses WHERE company = ?`
	args := []any{f.CompanyID}
	if f.Since != nil {
		query += " AND created_at >= ?"
		args = append(args, db.ts(*f.Since))
	}
	if len(f.PromptIDs) > 0 {
		query += " AND prompt IN (" + placeholders(len(f.PromptIDs)) + ")"
		args = append(args, int64Args(f.PromptIDs)...)
	}
	query += " ORDER BY created_at, id"

	rows, err := db.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Response
	for rows.Next() {
		r, err := scanResponse(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// CountResponses counts a company's responses since the given time.
func (db *DB) CountResponses(ctx context.Context, companyID string, since *time.Time) (int, error) {
	query := "SELECT COUNT(*) FROM responses WHERE company = ?"
	args := []any{companyID}
	if since != nil {
		query += " AND created_at >= ?"
		args = append(args, db.ts(*since))
	}
	var n int
	err := db.queryRow(ctx, query, args...).Scan(&n)
	return n, err
}

// LatestResponseTime returns when the company's newest response was
// created, or nil when there are none.
func (db *DB) LatestResponseTime(ctx context.Context, companyID string) (*time.Time, error) {
	var t Time
	err := db.queryRow(ctx,
		"SELECT created_at FROM responses WHERE company = ? ORDER BY created_at DESC LIMIT 1", companyID,
	).Scan(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t.ptr(), nil
}

// GetResponse returns a response by id, or nil.
func (db *DB) GetResponse(ctx context.Context, id int64) (*Response, error) {
	row := db.queryRow(ctx, `SELECT `+responseColumns+` FROM responses WHERE id = ?`, id)
	r, err := scanResponse(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

// InsertResponse stores a response. A zero CreatedAt means now.
func (db *DB) InsertResponse(ctx context.Context, r Response) (int64, error) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	return db.insertID(ctx, db.conn,
		`INSERT INTO responses (prompt, company, response, model, sources, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.PromptID, r.CompanyID, r.Body, r.Model, encodeIDs(r.SourceIDs), db.ts(r.CreatedAt),
	)
}

// scanResponse folds the legacy single source column into SourceIDs when
// the sources list is empty.
func scanResponse(s scanner) (*Response, error) {
	var r Response
	var sources *string
	var legacy *int64
	var created Time
	if err := s.Scan(&r.ID, &r.PromptID, &r.CompanyID, &r.Body, &r.Model, &sources, &legacy, &created); err != nil {
		return nil, err
	}
	r.SourceIDs = decodeIDs(sources)
	if len(r.SourceIDs) == 0 && legacy != nil {
		r.SourceIDs = []int64{*legacy}
	}
	r.CreatedAt = created.Time
	return &r, nil
}

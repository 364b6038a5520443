package database

import (
	"context"
	"time"
)

// InsertSource stores a cited link and returns its id.
func (db *DB) InsertSource(ctx context.Context, link string) (int64, error) {
	return db.insertID(ctx, db.conn, "INSERT INTO sources (link) VALUES (?)", link)
}

// GetSources returns the sources with the given ids.
func (db *DB) GetSources(ctx context.Context, ids []int64) ([]Source, error) {
	var out []Source
	for _, part := range chunk(ids, inChunk) {
		rows, err := db.query(ctx,
			`SELECT id, link, title, excerpt, fetched_at FROM sources
			WHERE id IN (`+placeholders(len(part))+`) ORDER BY id`,
			int64Args(part)...,
		)
		if err != nil {
			return nil, err
		}
		got, err := scanSources(rows)
		rows.Close()
		if err != nil {
			return nil, err
		}
		out = append(out, got...)
	}
	return out, nil
}

// ListSourcesNeedingPreview returns sources never fetched, oldest first.
func (db *DB) ListSourcesNeedingPreview(ctx context.Context, limit int) ([]Source, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.query(ctx,
		`SELECT id, link, title, excerpt, fetched_at FROM sources
		WHERE fetched_at IS NULL ORDER BY id LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSources(rows)
}

// UpdateSourcePreview records a fetch attempt and whatever it produced.
func (db *DB) UpdateSourcePreview(ctx context.Context, id int64, title, excerpt *string) error {
	_, err := db.exec(ctx,
		"UPDATE sources SET title = ?, excerpt = ?, fetched_at = ? WHERE id = ?",
		title, excerpt, db.ts(time.Now()), id,
	)
	return err
}

func scanSources(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]Source, error) {
	var out []Source
	for rows.Next() {
		var s Source
		var fetched Time
		if err := rows.Scan(&s.ID, &s.Link, &s.Title, &s.Excerpt, &fetched); err != nil {
			return nil, err
		}
		s.FetchedAt = fetched.ptr()
		out = append(out, s)
	}
	return out, rows.Err()
}

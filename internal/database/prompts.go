package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const promptColumns = "id, prompt, description, country, company_id, created_at"

// ListPrompts returns a company's prompts, newest first.
func (db *DB) ListPrompts(ctx context.Context, companyID string) ([]Prompt, error) {
	rows, err := db.query(ctx,
		`SELECT `+promptColumns+` FROM prompts WHERE company_id = ? ORDER BY created_at DESC, id DESC`,
		companyID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Prompt
	for rows.Next() {
		p, err := scanPrompt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// GetPrompt returns a prompt of the company, or nil.
func (db *DB) GetPrompt(ctx context.Context, companyID string, id int64) (*Prompt, error) {
	row := db.queryRow(ctx,
		`SELECT `+promptColumns+` FROM prompts WHERE company_id = ? AND id = ?`, companyID, id,
	)
	p, err := scanPrompt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// InsertPrompts stores prompts in one transaction and returns them with
// their ids.
func (db *DB) InsertPrompts(ctx context.Context, prompts []Prompt) ([]Prompt, error) {
	if len(prompts) == 0 {
		return nil, nil
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	out := make([]Prompt, 0, len(prompts))
	for _, p := range prompts {
		id, err := db.insertID(ctx, tx,
			"INSERT INTO prompts (prompt, description, country, company_id) VALUES (?, ?, ?, ?)",
			p.Prompt, p.Description, p.Country, p.CompanyID,
		)
		if err != nil {
			return nil, fmt.Errorf("inserting prompt: %w", err)
		}
		p.ID = id
		out = append(out, p)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return out, nil
}

// UpdatePrompt changes a prompt's text and country.
func (db *DB) UpdatePrompt(ctx context.Context, companyID string, id int64, text string, country *string) (bool, error) {
	res, err := db.exec(ctx,
		"UPDATE prompts SET prompt = ?, country = COALESCE(?, country) WHERE company_id = ? AND id = ?",
		text, country, companyID, id,
	)
	return affected(res, err)
}

// DeletePrompt removes a prompt with its responses.
func (db *DB) DeletePrompt(ctx context.Context, companyID string, id int64) (bool, error) {
	res, err := db.exec(ctx, "DELETE FROM prompts WHERE company_id = ? AND id = ?", companyID, id)
	return affected(res, err)
}

func scanPrompt(s scanner) (*Prompt, error) {
	var p Prompt
	var created Time
	if err := s.Scan(&p.ID, &p.Prompt, &p.Description, &p.Country, &p.CompanyID, &created); err != nil {
		return nil, err
	}
	p.CreatedAt = created.Time
	return &p, nil
}

package database

import (
	"context"
	"database/sql"
	"errors"
)

const competitorColumns = "id, name, website, approved, company, created_at"

// ListCompetitors returns a company's competitors, pending ones first and
// newest first within each group.
func (db *DB) ListCompetitors(ctx context.Context, companyID string) ([]Competitor, error) {
	rows, err := db.query(ctx,
		`SELECT `+competitorColumns+` FROM competitors WHERE company = ?
		ORDER BY approved ASC, created_at DESC, id DESC`, companyID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCompetitors(rows)
}

// ListApprovedCompetitors returns the approved roster in insertion order.
func (db *DB) ListApprovedCompetitors(ctx context.Context, companyID string) ([]Competitor, error) {
	rows, err := db.query(ctx,
		`SELECT `+competitorColumns+` FROM competitors WHERE company = ? AND approved = ?
		ORDER BY id`, companyID, true,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCompetitors(rows)
}

// CountCompetitors returns how many competitors a company has. With
// approvedOnly it counts the approved roster only.
func (db *DB) CountCompetitors(ctx context.Context, companyID string, approvedOnly bool) (int, error) {
	query := "SELECT COUNT(*) FROM competitors WHERE company = ?"
	args := []any{companyID}
	if approvedOnly {
		query += " AND approved = ?"
		args = append(args, true)
	}
	var n int
	err := db.queryRow(ctx, query, args...).Scan(&n)
	return n, err
}

// GetCompetitor returns a competitor of the company, or nil.
func (db *DB) GetCompetitor(ctx context.Context, companyID string, id int64) (*Competitor, error) {
	row := db.queryRow(ctx,
		`SELECT `+competitorColumns+` FROM competitors WHERE company = ? AND id = ?`, companyID, id,
	)
	c, err := scanCompetitor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

// FindCompetitorByName returns the first competitor whose name equals name
// exactly, or nil.
func (db *DB) FindCompetitorByName(ctx context.Context, companyID, name string) (*Competitor, error) {
	row := db.queryRow(ctx,
		`SELECT `+competitorColumns+` FROM competitors WHERE company = ? AND name = ?
		ORDER BY id LIMIT 1`, companyID, name,
	)
	c, err := scanCompetitor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

// InsertCompetitor stores a competitor and returns its id.
func (db *DB) InsertCompetitor(ctx context.Context, c Competitor) (int64, error) {
	return db.insertID(ctx, db.conn,
		"INSERT INTO competitors (name, website, approved, company) VALUES (?, ?, ?, ?)",
		c.Name, c.Website, c.Approved, c.CompanyID,
	)
}

// ApproveCompetitor marks a competitor approved. It reports whether a row
// was changed.
func (db *DB) ApproveCompetitor(ctx context.Context, companyID string, id int64) (bool, error) {
	res, err := db.exec(ctx,
		"UPDATE competitors SET approved = ? WHERE company = ? AND id = ?", true, companyID, id,
	)
	return affected(res, err)
}

// UpdateCompetitor renames a competitor and sets its website.
func (db *DB) UpdateCompetitor(ctx context.Context, companyID string, id int64, name string, website *string) (bool, error) {
	res, err := db.exec(ctx,
		"UPDATE competitors SET name = ?, website = ? WHERE company = ? AND id = ?",
		name, website, companyID, id,
	)
	return affected(res, err)
}

// DeleteCompetitor removes a competitor and its analysis rows.
func (db *DB) DeleteCompetitor(ctx context.Context, companyID string, id int64) (bool, error) {
	res, err := db.exec(ctx, "DELETE FROM competitors WHERE company = ? AND id = ?", companyID, id)
	return affected(res, err)
}

func affected(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func scanCompetitors(rows *sql.Rows) ([]Competitor, error) {
	var out []Competitor
	for rows.Next() {
		c, err := scanCompetitor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func scanCompetitor(s scanner) (*Competitor, error) {
	var c Competitor
	var created Time
	if err := s.Scan(&c.ID, &c.Name, &c.Website, &c.Approved, &c.CompanyID, &created); err != nil {
		return nil, err
	}
	c.CreatedAt = created.Time
	return &c, nil
}

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// InsertCompany stores a company, generating an id when c.ID is empty.
func (db *DB) InsertCompany(ctx context.Context, c Company) (*Company, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := db.exec(ctx,
		`INSERT INTO companies (id, name, domain, country, goal, flag) VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Domain, c.Country, c.Goal, c.Flag,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting company: %w", err)
	}
	return db.GetCompany(ctx, c.ID)
}

// GetCompany returns a company by id, or nil if it does not exist.
func (db *DB) GetCompany(ctx context.Context, id string) (*Company, error) {
	row := db.queryRow(ctx,
		`SELECT id, name, domain, country, goal, flag, created_at FROM companies WHERE id = ?`, id,
	)
	c, err := scanCompany(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListCompaniesForUser returns the companies a user belongs to, oldest first.
func (db *DB) ListCompaniesForUser(ctx context.Context, userID string) ([]Company, error) {
	rows, err := db.query(ctx,
		`SELECT c.id, c.name, c.domain, c.country, c.goal, c.flag, c.created_at
		FROM companies c JOIN company_users cu ON cu.company_id = c.id
		WHERE cu.user_id = ? ORDER BY c.created_at, c.id`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var companies []Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		companies = append(companies, *c)
	}
	return companies, rows.Err()
}

// UpdateCompanyGoal sets the company's goal text.
func (db *DB) UpdateCompanyGoal(ctx context.Context, id, goal string) error {
	_, err := db.exec(ctx, "UPDATE companies SET goal = ? WHERE id = ?", goal, id)
	return err
}

// DeleteCompany removes a company and, by cascade, everything it owns.
func (db *DB) DeleteCompany(ctx context.Context, id string) error {
	_, err := db.exec(ctx, "DELETE FROM companies WHERE id = ?", id)
	return err
}

// AddCompanyUser grants a user a role in a company.
func (db *DB) AddCompanyUser(ctx context.Context, companyID, userID, role string) error {
	if role != RoleAdmin && role != RoleReadOnly {
		return fmt.Errorf("invalid role %q", role)
	}
	_, err := db.exec(ctx,
		"INSERT INTO company_users (company_id, user_id, role) VALUES (?, ?, ?)",
		companyID, userID, role,
	)
	return err
}

// GetCompanyRole returns the user's role in the company, or "" when the
// user is not a member.
func (db *DB) GetCompanyRole(ctx context.Context, companyID, userID string) (string, error) {
	var role string
	err := db.queryRow(ctx,
		"SELECT role FROM company_users WHERE company_id = ? AND user_id = ?", companyID, userID,
	).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return role, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCompany(s scanner) (*Company, error) {
	var c Company
	var created Time
	if err := s.Scan(&c.ID, &c.Name, &c.Domain, &c.Country, &c.Goal, &c.Flag, &created); err != nil {
		return nil, err
	}
	c.CreatedAt = created.Time
	return &c, nil
}

package database

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// UpsertUserProfile creates the profile or refreshes its email.
func (db *DB) UpsertUserProfile(ctx context.Context, p UserProfile) error {
	_, err := db.exec(ctx,
		`INSERT INTO user_profiles (id, email, first_name, last_name, search_optimization_country)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET email = COALESCE(excluded.email, user_profiles.email)`,
		p.ID, p.Email, p.FirstName, p.LastName, p.SearchOptimizationCountry,
	)
	return err
}

// GetUserProfile returns a profile by user id, or nil if none exists.
func (db *DB) GetUserProfile(ctx context.Context, id string) (*UserProfile, error) {
	var p UserProfile
	var created, updated Time
	err := db.queryRow(ctx,
		`SELECT id, email, first_name, last_name, search_optimization_country,
		onboarding_completed, created_at, updated_at
		FROM user_profiles WHERE id = ?`, id,
	).Scan(&p.ID, &p.Email, &p.FirstName, &p.LastName, &p.SearchOptimizationCountry,
		&p.OnboardingCompleted, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.CreatedAt, p.UpdatedAt = created.Time, updated.Time
	return &p, nil
}

// UpdateUserProfile applies the non-nil fields of u.
func (db *DB) UpdateUserProfile(ctx context.Context, id string, u ProfileUpdate) error {
	_, err := db.exec(ctx,
		`UPDATE user_profiles SET
			first_name = COALESCE(?, first_name),
			last_name = COALESCE(?, last_name),
			search_optimization_country = COALESCE(?, search_optimization_country),
			updated_at = ?
		WHERE id = ?`,
		u.FirstName, u.LastName, u.SearchOptimizationCountry, db.ts(time.Now()), id,
	)
	return err
}

// MarkOnboardingCompleted flags the user's onboarding as done.
func (db *DB) MarkOnboardingCompleted(ctx context.Context, id string) error {
	_, err := db.exec(ctx,
		"UPDATE user_profiles SET onboarding_completed = ?, updated_at = ? WHERE id = ?",
		true, db.ts(time.Now()), id,
	)
	return err
}

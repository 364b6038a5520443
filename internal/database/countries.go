package database

import "context"

// ListCountries returns the selectable countries by name.
func (db *DB) ListCountries(ctx context.Context) ([]Country, error) {
	rows, err := db.query(ctx, "SELECT code, name FROM countries ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Country
	for rows.Next() {
		var c Country
		if err := rows.Scan(&c.Code, &c.Name); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetStats returns row counts across the main tables.
func (db *DB) GetStats(ctx context.Context) (*Stats, error) {
	s := &Stats{}
	counts := []struct {
		dest  *int
		query string
	}{
		{&s.Companies, "SELECT COUNT(*) FROM companies"},
		{&s.Users, "SELECT COUNT(*) FROM user_profiles"},
		{&s.Competitors, "SELECT COUNT(*) FROM competitors"},
		{&s.ApprovedCompetitors, "SELECT COUNT(*) FROM competitors WHERE approved = ?"},
		{&s.Prompts, "SELECT COUNT(*) FROM prompts"},
		{&s.Responses, "SELECT COUNT(*) FROM responses"},
		{&s.Analyses, "SELECT COUNT(*) FROM response_analysis"},
		{&s.Sources, "SELECT COUNT(*) FROM sources"},
		{&s.SourcesWithPreview, "SELECT COUNT(*) FROM sources WHERE title IS NOT NULL"},
	}
	for _, c := range counts {
		var args []any
		if c.dest == &s.ApprovedCompetitors {
			args = append(args, true)
		}
		if err := db.queryRow(ctx, c.query, args...).Scan(c.dest); err != nil {
			return nil, err
		}
	}
	return s, nil
}

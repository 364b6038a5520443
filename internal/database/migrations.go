package database

import (
	"database/sql"
	"fmt"
	"strings"
)

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx, d Dialect) error
}

// ddl expands dialect tokens in a schema statement.
func ddl(d Dialect, stmt string) string {
	var r *strings.Replacer
	if d == Postgres {
		r = strings.NewReplacer(
			"{{pk}}", "BIGSERIAL PRIMARY KEY",
			"{{int}}", "BIGINT",
			"{{real}}", "DOUBLE PRECISION",
			"{{bool}}", "BOOLEAN",
			"{{false}}", "FALSE",
			"{{ts}}", "TIMESTAMPTZ",
			"{{now}}", "now()",
		)
	} else {
		r = strings.NewReplacer(
			"{{pk}}", "INTEGER PRIMARY KEY AUTOINCREMENT",
			"{{int}}", "INTEGER",
			"{{real}}", "REAL",
			"{{bool}}", "INTEGER",
			"{{false}}", "0",
			"{{ts}}", "TEXT",
			"{{now}}", "(strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))",
		)
	}
	return r.Replace(stmt)
}

func execDDL(tx *sql.Tx, d Dialect, stmts ...string) error {
	expanded := make([]string, len(stmts))
	for i, s := range stmts {
		expanded[i] = ddl(d, s)
	}
	return execAll(tx, expanded)
}

// addColumn adds a column unless it already exists.
func addColumn(tx *sql.Tx, d Dialect, table, column, def string) error {
	if d == Postgres {
		_, err := tx.Exec(ddl(d, fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s", table, column, def)))
		return err
	}
	var count int
	err := tx.QueryRow(
		fmt.Sprintf("SELECT COUNT(*) FROM pragma_table_info('%s') WHERE name = ?", table), column,
	).Scan(&count)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	_, err = tx.Exec(ddl(d, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, def)))
	return err
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		Up: func(tx *sql.Tx, d Dialect) error {
			return execDDL(tx, d,
				`CREATE TABLE IF NOT EXISTS countries (
    code TEXT PRIMARY KEY,
    name TEXT NOT NULL
)`,
				`CREATE TABLE IF NOT EXISTS user_profiles (
    id TEXT PRIMARY KEY,
    email TEXT,
    first_name TEXT,
    last_name TEXT,
    search_optimization_country TEXT,
    onboarding_completed {{bool}} NOT NULL DEFAULT {{false}},
    created_at {{ts}} NOT NULL DEFAULT {{now}},
    updated_at {{ts}} NOT NULL DEFAULT {{now}}
)`,
				`CREATE TABLE IF NOT EXISTS companies (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    domain TEXT,
    country TEXT,
    goal TEXT,
    flag TEXT,
    created_at {{ts}} NOT NULL DEFAULT {{now}}
)`,
				`CREATE TABLE IF NOT EXISTS company_users (
    id {{pk}},
    company_id TEXT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
    user_id TEXT NOT NULL,
    role TEXT NOT NULL CHECK(role IN ('admin', 'read_only')),
    created_at {{ts}} NOT NULL DEFAULT {{now}},
    UNIQUE (company_id, user_id)
)`,
				`CREATE TABLE IF NOT EXISTS competitors (
    id {{pk}},
    name TEXT NOT NULL,
    website TEXT,
    approved {{bool}} NOT NULL DEFAULT {{false}},
    company TEXT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
    created_at {{ts}} NOT NULL DEFAULT {{now}}
)`,
				`CREATE TABLE IF NOT EXISTS prompts (
    id {{pk}},
    prompt TEXT NOT NULL,
    description TEXT,
    country TEXT,
    company_id TEXT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
    created_at {{ts}} NOT NULL DEFAULT {{now}}
)`,
				`CREATE TABLE IF NOT EXISTS responses (
    id {{pk}},
    prompt {{int}} NOT NULL REFERENCES prompts(id) ON DELETE CASCADE,
    company TEXT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
    response TEXT,
    model TEXT,
    sources TEXT,
    source {{int}},
    created_at {{ts}} NOT NULL DEFAULT {{now}}
)`,
				`CREATE TABLE IF NOT EXISTS response_analysis (
    id {{pk}},
    response {{int}} NOT NULL REFERENCES responses(id) ON DELETE CASCADE,
    competitor {{int}} REFERENCES competitors(id) ON DELETE CASCADE,
    company_appears {{bool}} NOT NULL DEFAULT {{false}},
    sentiment {{real}},
    position INTEGER,
    created_at {{ts}} NOT NULL DEFAULT {{now}}
)`,
				`CREATE TABLE IF NOT EXISTS sources (
    id {{pk}},
    link TEXT NOT NULL,
    created_at {{ts}} NOT NULL DEFAULT {{now}}
)`,
				`CREATE INDEX IF NOT EXISTS idx_company_users_user ON company_users(user_id)`,
				`CREATE INDEX IF NOT EXISTS idx_competitors_company ON competitors(company)`,
				`CREATE INDEX IF NOT EXISTS idx_prompts_company ON prompts(company_id)`,
				`CREATE INDEX IF NOT EXISTS idx_responses_company_created ON responses(company, created_at)`,
				`CREATE INDEX IF NOT EXISTS idx_response_analysis_response ON response_analysis(response)`,
				`CREATE INDEX IF NOT EXISTS idx_sources_link ON sources(link)`,
			)
		},
	},
	{
		Version:     2,
		Description: "source previews",
		Up: func(tx *sql.Tx, d Dialect) error {
			if err := addColumn(tx, d, "sources", "title", "TEXT"); err != nil {
				return err
			}
			if err := addColumn(tx, d, "sources", "excerpt", "TEXT"); err != nil {
				return err
			}
			return addColumn(tx, d, "sources", "fetched_at", "{{ts}}")
		},
	},
	{
		Version:     3,
		Description: "seed countries",
		Up: func(tx *sql.Tx, d Dialect) error {
			q := "INSERT INTO countries (code, name) VALUES (?, ?) ON CONFLICT (code) DO NOTHING"
			if d == Postgres {
				q = "INSERT INTO countries (code, name) VALUES ($1, $2) ON CONFLICT (code) DO NOTHING"
			}
			for _, c := range defaultCountries {
				if _, err := tx.Exec(q, c.Code, c.Name); err != nil {
					return fmt.Errorf("seeding %s: %w", c.Code, err)
				}
			}
			return nil
		},
	},
}

var defaultCountries = []Country{
	{"AT", "Austria"}, {"AU", "Australia"}, {"BE", "Belgium"}, {"BG", "Bulgaria"},
	{"BR", "Brazil"}, {"CA", "Canada"}, {"CH", "Switzerland"}, {"CZ", "Czech Republic"},
	{"DE", "Germany"}, {"DK", "Denmark"}, {"ES", "Spain"}, {"FI", "Finland"},
	{"FR", "France"}, {"GB", "United Kingdom"}, {"GR", "Greece"}, {"HU", "Hungary"},
	{"IE", "Ireland"}, {"IN", "India"}, {"IT", "Italy"}, {"JP", "Japan"},
	{"MD", "Moldova"}, {"MX", "Mexico"}, {"NL", "Netherlands"}, {"NO", "Norway"},
	{"PL", "Poland"}, {"PT", "Portugal"}, {"RO", "Romania"}, {"SE", "Sweden"},
	{"US", "United States"},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}

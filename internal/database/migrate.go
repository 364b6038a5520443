package database

import (
	"database/sql"
	"fmt"
)

// getSchemaVersion reads PRAGMA user_version on SQLite and the
// schema_version table on Postgres.
func (db *DB) getSchemaVersion() (int, error) {
	var version int
	if db.dialect == SQLite {
		if err := db.conn.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
			return 0, fmt.Errorf("reading schema version: %w", err)
		}
		return version, nil
	}

	if _, err := db.conn.Exec("CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)"); err != nil {
		return 0, fmt.Errorf("creating schema_version: %w", err)
	}
	err := db.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}

func (db *DB) setSchemaVersion(version int) error {
	if db.dialect == SQLite {
		// modernc/sqlite cannot set user_version inside a transaction.
		_, err := db.conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", version))
		return err
	}
	if _, err := db.conn.Exec("DELETE FROM schema_version"); err != nil {
		return err
	}
	_, err := db.conn.Exec("INSERT INTO schema_version (version) VALUES ($1)", version)
	return err
}

// isLegacyDB returns true if the core tables exist but no version is set.
// This detects databases whose schema was created outside this tool.
func (db *DB) isLegacyDB() (bool, error) {
	var count int
	var err error
	if db.dialect == SQLite {
		err = db.conn.QueryRow(
			"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='companies'",
		).Scan(&count)
	} else {
		err = db.conn.QueryRow(
			"SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = 'companies'",
		).Scan(&count)
	}
	if err != nil {
		return false, fmt.Errorf("checking for legacy tables: %w", err)
	}
	return count > 0, nil
}

// migrate brings the database schema up to the latest version.
func (db *DB) migrate() error {
	current, err := db.getSchemaVersion()
	if err != nil {
		return err
	}

	// Legacy DB detection: tables exist but no version is recorded.
	// Stamp as version 1 since the schema already matches migration 1.
	if current == 0 {
		legacy, err := db.isLegacyDB()
		if err != nil {
			return err
		}
		if legacy {
			db.log.Info("detected legacy database, stamping as version 1")
			if err := db.setSchemaVersion(1); err != nil {
				return fmt.Errorf("stamping legacy version: %w", err)
			}
			current = 1
		}
	}

	latest := latestVersion()
	if current >= latest {
		return nil
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		db.log.Info("applying migration", "version", m.Version, "description", m.Description)

		tx, err := db.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if err := m.Up(tx, db.dialect); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}

		// Safe: if we crash here, the idempotent DDL lets the migration re-run.
		if err := db.setSchemaVersion(m.Version); err != nil {
			return fmt.Errorf("setting version %d: %w", m.Version, err)
		}
	}

	return nil
}

// execAll runs each statement separately; the pgx driver rejects
// multi-statement strings with arguments and SQLite is fine either way.
func execAll(tx *sql.Tx, stmts []string) error {
	for _, s := range stmts {
		if _, err := tx.Exec(s); err != nil {
			return fmt.Errorf("%w\n%s", err, s)
		}
	}
	return nil
}

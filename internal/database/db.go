package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound no matching row
var ErrNotFound = errors.New("not found")

// Store SQLite-backed persistence for plants, snapshots, runs, insights and MQTT logs
type Store struct {
	db *sql.DB
}

// Open opens (creating when needed) the database at path and migrates the schema
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			// no permission (dev machine): fall back to the temp dir
			fallback := filepath.Join(os.TempDir(), "plantcare", filepath.Base(path))
			if err2 := os.MkdirAll(filepath.Dir(fallback), 0755); err2 != nil {
				return nil, err
			}
			path = fallback
		}
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=1&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	// sqlite serializes writers anyway; one connection also keeps :memory: coherent
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	_, _ = db.Exec("PRAGMA journal_mode=WAL;")
	_, _ = db.Exec("PRAGMA synchronous=NORMAL;")

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database
func (s *Store) Close() error { return s.db.Close() }

// Ping checks the connection
func (s *Store) Ping() error { return s.db.Ping() }

func (s *Store) migrate() error {
	schema := `
CREATE TABLE IF NOT EXISTS plants (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL DEFAULT '',
  species TEXT NOT NULL DEFAULT '',
  url TEXT NOT NULL DEFAULT '',
  first_seen INTEGER NOT NULL,
  last_seen INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshots (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  plant_id TEXT NOT NULL,
  run_id TEXT NOT NULL DEFAULT '',
  taken_at INTEGER NOT NULL,
  data_json TEXT NOT NULL DEFAULT '{}',
  FOREIGN KEY (plant_id) REFERENCES plants(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_snapshots_plant_taken ON snapshots(plant_id, taken_at);

CREATE TABLE IF NOT EXISTS collect_runs (
  id TEXT PRIMARY KEY,
  started_at INTEGER NOT NULL,
  finished_at INTEGER NOT NULL DEFAULT 0,
  status TEXT NOT NULL,
  plants_found INTEGER NOT NULL DEFAULT 0,
  plants_stored INTEGER NOT NULL DEFAULT 0,
  error TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_collect_runs_started ON collect_runs(started_at);

CREATE TABLE IF NOT EXISTS insights (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  plant_id TEXT NOT NULL,
  model TEXT NOT NULL DEFAULT '',
  prompt TEXT NOT NULL DEFAULT '',
  text TEXT NOT NULL DEFAULT '',
  created_at INTEGER NOT NULL,
  FOREIGN KEY (plant_id) REFERENCES plants(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_insights_plant ON insights(plant_id, created_at);

CREATE TABLE IF NOT EXISTS mqtt_logs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  timestamp INTEGER NOT NULL,
  direction TEXT NOT NULL,
  topic TEXT NOT NULL,
  qos INTEGER NOT NULL DEFAULT 0,
  payload TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL DEFAULT 'success'
);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	// older databases: add columns introduced later
	_, _ = s.db.Exec(`ALTER TABLE plants ADD COLUMN url TEXT NOT NULL DEFAULT ''`)
	_, _ = s.db.Exec(`ALTER TABLE snapshots ADD COLUMN run_id TEXT NOT NULL DEFAULT ''`)
	return nil
}

func unixOrZero(ts int64) time.Time {
	if ts <= 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0)
}

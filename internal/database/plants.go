package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/luke-wagner/PlantCare-Monitor/models"
)

// UpsertPlant inserts a plant or refreshes name/species/url/last_seen; first_seen is kept
func (s *Store) UpsertPlant(p models.Plant) error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("plant id required")
	}
	seen := p.LastSeen
	if seen.IsZero() {
		seen = time.Now()
	}
	_, err := s.db.Exec(`
INSERT INTO plants(id,name,species,url,first_seen,last_seen)
VALUES(?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET
  name=CASE WHEN excluded.name <> '' THEN excluded.name ELSE plants.name END,
  species=CASE WHEN excluded.species <> '' THEN excluded.species ELSE plants.species END,
  url=CASE WHEN excluded.url <> '' THEN excluded.url ELSE plants.url END,
  last_seen=excluded.last_seen
`, p.ID, p.Name, p.Species, p.URL, seen.Unix(), seen.Unix())
	return err
}

// GetPlant returns ErrNotFound for unknown ids
func (s *Store) GetPlant(id string) (models.Plant, error) {
	row := s.db.QueryRow(`SELECT id,name,species,url,first_seen,last_seen FROM plants WHERE id=?`, id)
	p, err := scanPlant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Plant{}, ErrNotFound
	}
	return p, err
}

// ListPlants all plants ordered by name
func (s *Store) ListPlants() ([]models.Plant, error) {
	rows, err := s.db.Query(`SELECT id,name,species,url,first_seen,last_seen FROM plants ORDER BY name COLLATE NOCASE, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Plant{}
	for rows.Next() {
		p, err := scanPlant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPlant(sc scanner) (models.Plant, error) {
	var (
		p                   models.Plant
		firstSeen, lastSeen int64
	)
	if err := sc.Scan(&p.ID, &p.Name, &p.Species, &p.URL, &firstSeen, &lastSeen); err != nil {
		return models.Plant{}, err
	}
	p.FirstSeen = unixOrZero(firstSeen)
	p.LastSeen = unixOrZero(lastSeen)
	return p, nil
}

// InsertSnapshot appends a snapshot; the plant row must exist
func (s *Store) InsertSnapshot(snap models.Snapshot) (int64, error) {
	data := snap.Data
	if data == nil {
		data = models.PlantData{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return 0, err
	}
	takenAt := snap.TakenAt
	if takenAt.IsZero() {
		takenAt = time.Now()
	}
	res, err := s.db.Exec(`INSERT INTO snapshots(plant_id,run_id,taken_at,data_json) VALUES(?,?,?,?)`,
		snap.PlantID, snap.RunID, takenAt.Unix(), string(raw))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// LatestSnapshot most recent snapshot of a plant
func (s *Store) LatestSnapshot(plantID string) (models.Snapshot, error) {
	row := s.db.QueryRow(`
SELECT id,plant_id,run_id,taken_at,data_json FROM snapshots
WHERE plant_id=? ORDER BY taken_at DESC, id DESC LIMIT 1`, plantID)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Snapshot{}, ErrNotFound
	}
	return snap, err
}

// ListSnapshots newest first, limit clamped to [1,1000] (default 50)
func (s *Store) ListSnapshots(plantID string, limit int) ([]models.Snapshot, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}
	rows, err := s.db.Query(`
SELECT id,plant_id,run_id,taken_at,data_json FROM snapshots
WHERE plant_id=? ORDER BY taken_at DESC, id DESC LIMIT ?`, plantID, limit)
	if err != nil {
		return nil, err
	}
	return collectSnapshots(rows)
}

// AllSnapshots every snapshot oldest first (export order)
func (s *Store) AllSnapshots() ([]models.Snapshot, error) {
	rows, err := s.db.Query(`SELECT id,plant_id,run_id,taken_at,data_json FROM snapshots ORDER BY taken_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	return collectSnapshots(rows)
}

// PruneSnapshots deletes snapshots taken before t and returns how many went
func (s *Store) PruneSnapshots(before time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM snapshots WHERE taken_at < ?`, before.Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func collectSnapshots(rows *sql.Rows) ([]models.Snapshot, error) {
	defer rows.Close()
	out := []models.Snapshot{}
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

func scanSnapshot(sc scanner) (models.Snapshot, error) {
	var (
		snap    models.Snapshot
		takenAt int64
		raw     string
	)
	if err := sc.Scan(&snap.ID, &snap.PlantID, &snap.RunID, &takenAt, &raw); err != nil {
		return models.Snapshot{}, err
	}
	snap.TakenAt = unixOrZero(takenAt)
	snap.Data = models.PlantData{}
	if err := json.Unmarshal([]byte(raw), &snap.Data); err != nil {
		return models.Snapshot{}, fmt.Errorf("snapshot %d: %w", snap.ID, err)
	}
	return snap, nil
}

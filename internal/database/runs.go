package database

import (
	"database/sql"
	"errors"
	"time"

	"github.com/luke-wagner/PlantCare-Monitor/models"
)

// StartRun records a run in the running state
func (s *Store) StartRun(id string, startedAt time.Time) error {
	_, err := s.db.Exec(`INSERT INTO collect_runs(id,started_at,status) VALUES(?,?,?)`,
		id, startedAt.Unix(), models.RunRunning)
	return err
}

// FinishRun stores the outcome of a run
func (s *Store) FinishRun(run models.CollectRun) error {
	finished := run.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	res, err := s.db.Exec(`
UPDATE collect_runs SET finished_at=?, status=?, plants_found=?, plants_stored=?, error=?
WHERE id=?`, finished.Unix(), run.Status, run.PlantsFound, run.PlantsStored, run.Error, run.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// LatestRun most recently started run
func (s *Store) LatestRun() (models.CollectRun, error) {
	row := s.db.QueryRow(`
SELECT id,started_at,finished_at,status,plants_found,plants_stored,error
FROM collect_runs ORDER BY started_at DESC, rowid DESC LIMIT 1`)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.CollectRun{}, ErrNotFound
	}
	return run, err
}

// ListRuns newest first
func (s *Store) ListRuns(limit int) ([]models.CollectRun, error) {
	if limit <= 0 || limit > 500 {
		limit = 20
	}
	rows, err := s.db.Query(`
SELECT id,started_at,finished_at,status,plants_found,plants_stored,error
FROM collect_runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.CollectRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func scanRun(sc scanner) (models.CollectRun, error) {
	var (
		run               models.CollectRun
		started, finished int64
	)
	if err := sc.Scan(&run.ID, &started, &finished, &run.Status, &run.PlantsFound, &run.PlantsStored, &run.Error); err != nil {
		return models.CollectRun{}, err
	}
	run.StartedAt = unixOrZero(started)
	run.FinishedAt = unixOrZero(finished)
	return run, nil
}

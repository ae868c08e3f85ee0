package database

import (
	"database/sql"
	"errors"
	"time"

	"github.com/luke-wagner/PlantCare-Monitor/models"
)

// InsertInsight stores a generated care tip
func (s *Store) InsertInsight(in models.Insight) (int64, error) {
	created := in.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	res, err := s.db.Exec(`INSERT INTO insights(plant_id,model,prompt,text,created_at) VALUES(?,?,?,?,?)`,
		in.PlantID, in.Model, in.Prompt, in.Text, created.Unix())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// LatestInsight newest tip for a plant
func (s *Store) LatestInsight(plantID string) (models.Insight, error) {
	var (
		in      models.Insight
		created int64
	)
	err := s.db.QueryRow(`
SELECT id,plant_id,model,prompt,text,created_at FROM insights
WHERE plant_id=? ORDER BY created_at DESC, id DESC LIMIT 1`, plantID).
		Scan(&in.ID, &in.PlantID, &in.Model, &in.Prompt, &in.Text, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Insight{}, ErrNotFound
	}
	if err != nil {
		return models.Insight{}, err
	}
	in.CreatedAt = unixOrZero(created)
	return in, nil
}

package collector

import (
	"context"
	"errors"
	"time"

	"github.com/luke-wagner/PlantCare-Monitor/internal/database"
	"github.com/luke-wagner/PlantCare-Monitor/internal/status"
	"github.com/luke-wagner/PlantCare-Monitor/models"
)

// Display current payload for the ESP32
func (c *Collector) Display(ctx context.Context) (models.DisplayPayload, error) {
	plants, err := c.store.ListPlants()
	if err != nil {
		return models.DisplayPayload{}, err
	}
	entries := make([]models.DisplayEntry, 0, len(plants))
	for _, p := range plants {
		if err := ctx.Err(); err != nil {
			return models.DisplayPayload{}, err
		}
		e, err := c.entry(p)
		if err != nil {
			return models.DisplayPayload{}, err
		}
		entries = append(entries, e)
	}
	return status.BuildPayload(entries, time.Now()), nil
}

// PlantDisplay display row of one plant; database.ErrNotFound for unknown ids
func (c *Collector) PlantDisplay(ctx context.Context, plantID string) (models.DisplayEntry, error) {
	if err := ctx.Err(); err != nil {
		return models.DisplayEntry{}, err
	}
	p, err := c.store.GetPlant(plantID)
	if err != nil {
		return models.DisplayEntry{}, err
	}
	return c.entry(p)
}

func (c *Collector) entry(p models.Plant) (models.DisplayEntry, error) {
	snap, err := c.store.LatestSnapshot(p.ID)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return models.DisplayEntry{}, err
	}
	tip := ""
	in, err := c.store.LatestInsight(p.ID)
	switch {
	case err == nil:
		tip = in.Text
	case !errors.Is(err, database.ErrNotFound):
		return models.DisplayEntry{}, err
	}
	return status.EntryFrom(p, snap, tip), nil
}

package status

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/luke-wagner/PlantCare-Monitor/models"
)

// Field widths of the display rows
const (
	MaxNameLen     = 18
	MaxSpeciesLen  = 24
	MaxWateringLen = 16
	MaxTipLen      = 120
)

var (
	inDaysRe = regexp.MustCompile(`\bin\s+(\d+)\s+days?\b`)
	urgent   = []string{"today", "now", "overdue", "late", "ago"}
)

var statusRank = map[string]int{
	models.StatusNeedsWater: 0,
	models.StatusSoon:       1,
	models.StatusOK:         2,
	models.StatusUnknown:    3,
}

// Watering value of the first detail key (sorted) mentioning water
func Watering(data models.PlantData) string {
	for _, k := range data.DetailKeys() {
		if strings.Contains(strings.ToLower(k), "water") {
			return data[k]
		}
	}
	return ""
}

// Classify maps greg's watering text ("in 3 days", "today", "2 days ago") to a display status
func Classify(value string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return models.StatusUnknown
	}
	for _, w := range urgent {
		if strings.Contains(v, w) {
			return models.StatusNeedsWater
		}
	}
	if strings.Contains(v, "tomorrow") {
		return models.StatusSoon
	}
	if m := inDaysRe.FindStringSubmatch(v); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n <= 1 {
			return models.StatusSoon
		}
		return models.StatusOK
	}
	return models.StatusOK
}

// EntryFrom builds a display row from a plant's latest snapshot and tip
func EntryFrom(p models.Plant, snap models.Snapshot, tip string) models.DisplayEntry {
	name := snap.Data.Name()
	if name == "" {
		name = p.Name
	}
	species := snap.Data.Species()
	if species == "" {
		species = p.Species
	}
	watering := Watering(snap.Data)
	updated := ""
	if !snap.TakenAt.IsZero() {
		updated = snap.TakenAt.UTC().Format(time.RFC3339)
	}
	return models.DisplayEntry{
		ID:        p.ID,
		Name:      models.Truncate(name, MaxNameLen),
		Species:   models.Truncate(species, MaxSpeciesLen),
		Watering:  models.Truncate(watering, MaxWateringLen),
		Status:    Classify(watering),
		Tip:       models.Truncate(tip, MaxTipLen),
		UpdatedAt: updated,
	}
}

// BuildPayload sorts entries most urgent first, then by name, and counts them
func BuildPayload(entries []models.DisplayEntry, now time.Time) models.DisplayPayload {
	plants := make([]models.DisplayEntry, len(entries))
	copy(plants, entries)
	sort.SliceStable(plants, func(i, j int) bool {
		ri, rj := rank(plants[i].Status), rank(plants[j].Status)
		if ri != rj {
			return ri < rj
		}
		ni, nj := strings.ToLower(plants[i].Name), strings.ToLower(plants[j].Name)
		if ni != nj {
			return ni < nj
		}
		return plants[i].ID < plants[j].ID
	})

	summary := models.DisplaySummary{Total: len(plants)}
	for _, e := range plants {
		switch e.Status {
		case models.StatusNeedsWater:
			summary.NeedsWater++
		case models.StatusSoon:
			summary.Soon++
		}
	}
	return models.DisplayPayload{
		GeneratedAt: now.UTC().Format(time.RFC3339),
		Summary:     summary,
		Plants:      plants,
	}
}

func rank(s string) int {
	if r, ok := statusRank[s]; ok {
		return r
	}
	return statusRank[models.StatusUnknown]
}

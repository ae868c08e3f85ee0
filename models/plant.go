package models

import (
	"sort"
	"strings"
	"time"
)

// Reserved PlantData keys
const (
	KeyPlantName = "plant_name"
	KeyPlantType = "plant_type"
)

// LegacyTimeLayout timestamp layout of plant_data.json records
const LegacyTimeLayout = "2006-01-02 15:04:05"

// PlantData values scraped from one plant page: name, species and detail identifiers
type PlantData map[string]string

// Name plant name from the profile <h1>
func (d PlantData) Name() string { return d[KeyPlantName] }

// Species species from the profile <h3>
func (d PlantData) Species() string { return d[KeyPlantType] }

// DetailKeys detail identifiers in sorted order, reserved keys excluded
func (d PlantData) DetailKeys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		if k == KeyPlantName || k == KeyPlantType {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Plant a greg.app plant known to the hub
type Plant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Species   string    `json:"species"`
	URL       string    `json:"url"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// Snapshot one timestamped capture of a plant page
type Snapshot struct {
	ID      int64     `json:"id"`
	PlantID string    `json:"plant_id"`
	RunID   string    `json:"run_id"`
	TakenAt time.Time `json:"taken_at"`
	Data    PlantData `json:"data"`
}

// Legacy converts to the plant_data.json record layout
func (s Snapshot) Legacy() LegacyRecord {
	data := s.Data
	if data == nil {
		data = PlantData{}
	}
	return LegacyRecord{
		PlantID:   s.PlantID,
		Timestamp: s.TakenAt.Format(LegacyTimeLayout),
		Data:      data,
	}
}

// LegacyRecord entry of the plant_data.json array
type LegacyRecord struct {
	PlantID   string    `json:"plant_id"`
	Timestamp string    `json:"timestamp"`
	Data      PlantData `json:"data"`
}

// Run status values
const (
	RunRunning = "running"
	RunSuccess = "success"
	RunPartial = "partial"
	RunFailed  = "failed"
)

// CollectRun bookkeeping for one collection pass
type CollectRun struct {
	ID           string    `json:"id"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at,omitempty"`
	Status       string    `json:"status"`
	PlantsFound  int       `json:"plants_found"`
	PlantsStored int       `json:"plants_stored"`
	Error        string    `json:"error,omitempty"`
}

// Insight a generated care tip
type Insight struct {
	ID        int64     `json:"id"`
	PlantID   string    `json:"plant_id"`
	Model     string    `json:"model"`
	Prompt    string    `json:"prompt"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// MQTTLog one published or received message
type MQTTLog struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Direction string    `json:"direction"`
	Topic     string    `json:"topic"`
	QoS       int       `json:"qos"`
	Payload   string    `json:"payload"`
	Status    string    `json:"status"`
}

// Watering status values shown on the display
const (
	StatusNeedsWater = "needs_water"
	StatusSoon       = "soon"
	StatusOK         = "ok"
	StatusUnknown    = "unknown"
)

// DisplayEntry one row on the ESP32 screen
type DisplayEntry struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Species   string `json:"species"`
	Watering  string `json:"watering"`
	Status    string `json:"status"`
	Tip       string `json:"tip,omitempty"`
	UpdatedAt string `json:"updated_at"`
}

// DisplaySummary counts for the screen header
type DisplaySummary struct {
	Total      int `json:"total"`
	NeedsWater int `json:"needs_water"`
	Soon       int `json:"soon"`
}

// DisplayPayload what the ESP32 polls or receives over MQTT
type DisplayPayload struct {
	GeneratedAt string         `json:"generated_at"`
	Summary     DisplaySummary `json:"summary"`
	Plants      []DisplayEntry `json:"plants"`
}

// Truncate cuts s to max runes, marking the cut with "~" (the display font has no ellipsis)
func Truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if max <= 0 || len(r) <= max {
		return s
	}
	if max == 1 {
		return string(r[:1])
	}
	return string(r[:max-1]) + "~"
}

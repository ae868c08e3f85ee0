// Package export writes snapshots in the plant_data.json layout: a JSON array of
// {plant_id, timestamp, data} records.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/luke-wagner/PlantCare-Monitor/models"
)

// Records converts snapshots keeping their order
func Records(snaps []models.Snapshot) []models.LegacyRecord {
	out := make([]models.LegacyRecord, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, s.Legacy())
	}
	return out
}

// Write encodes records as a JSON array
func Write(w io.Writer, recs []models.LegacyRecord) error {
	if recs == nil {
		recs = []models.LegacyRecord{}
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(recs)
}

// ReadFile loads an existing plant_data.json. Missing or empty files yield no records,
// a single object is treated as a one-element array.
func ReadFile(path string) ([]models.LegacyRecord, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return []models.LegacyRecord{}, nil
	}
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return []models.LegacyRecord{}, nil
	}
	if raw[0] == '{' {
		var one models.LegacyRecord
		if err := json.Unmarshal(raw, &one); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		return []models.LegacyRecord{one}, nil
	}
	var recs []models.LegacyRecord
	if err := json.Unmarshal(raw, &recs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return recs, nil
}

// AppendFile adds records to the array in path, starting over when the
// existing content cannot be parsed. The file is replaced atomically.
func AppendFile(path string, recs []models.LegacyRecord) error {
	existing, err := ReadFile(path)
	if err != nil {
		existing = []models.LegacyRecord{}
	}
	existing = append(existing, recs...)

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	var buf bytes.Buffer
	if err := Write(&buf, existing); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

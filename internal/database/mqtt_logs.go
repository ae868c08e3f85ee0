package database

import (
	"time"

	"github.com/luke-wagner/PlantCare-Monitor/models"
)

// mqttLogKeep rows kept in mqtt_logs
const mqttLogKeep = 1000

// InsertMQTTLog appends a message log row and trims the table
func (s *Store) InsertMQTTLog(l models.MQTTLog) error {
	ts := l.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	status := l.Status
	if status == "" {
		status = "success"
	}
	if _, err := s.db.Exec(`INSERT INTO mqtt_logs(timestamp,direction,topic,qos,payload,status) VALUES(?,?,?,?,?,?)`,
		ts.Unix(), l.Direction, l.Topic, l.QoS, l.Payload, status); err != nil {
		return err
	}
	_, err := s.db.Exec(`DELETE FROM mqtt_logs WHERE id <= (SELECT MAX(id) FROM mqtt_logs) - ?`, mqttLogKeep)
	return err
}

// ListMQTTLogs newest first
func (s *Store) ListMQTTLogs(limit int) ([]models.MQTTLog, error) {
	if limit <= 0 || limit > mqttLogKeep {
		limit = 100
	}
	rows, err := s.db.Query(`
SELECT id,timestamp,direction,topic,qos,payload,status FROM mqtt_logs
ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.MQTTLog{}
	for rows.Next() {
		var (
			l  models.MQTTLog
			ts int64
		)
		if err := rows.Scan(&l.ID, &ts, &l.Direction, &l.Topic, &l.QoS, &l.Payload, &l.Status); err != nil {
			return nil, err
		}
		l.Timestamp = unixOrZero(ts)
		out = append(out, l)
	}
	return out, rows.Err()
}

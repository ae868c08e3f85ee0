package mqtt

import (
	"errors"

	"github.com/luke-wagner/PlantCare-Monitor/internal/metrics"
	"github.com/luke-wagner/PlantCare-Monitor/models"
)

// DisplayPublisher pushes the display payload as retained messages
type DisplayPublisher struct {
	client  Client
	topics  Topics
	metrics *metrics.Metrics
}

// NewDisplayPublisher m may be nil
func NewDisplayPublisher(c Client, t Topics, m *metrics.Metrics) *DisplayPublisher {
	return &DisplayPublisher{client: c, topics: t, metrics: m}
}

type summaryMessage struct {
	GeneratedAt string                `json:"generated_at"`
	Summary     models.DisplaySummary `json:"summary"`
	PlantIDs    []string              `json:"plant_ids"`
}

// PublishDisplay one retained message per plant plus the summary.
// Returns ErrNotConnected without trying when the broker is down.
func (p *DisplayPublisher) PublishDisplay(payload models.DisplayPayload) error {
	if p == nil || p.client == nil || !p.client.IsConnected() {
		return ErrNotConnected
	}
	var errs []error
	ids := make([]string, 0, len(payload.Plants))
	for _, e := range payload.Plants {
		ids = append(ids, e.ID)
		err := p.client.PublishRetained(p.topics.Plant(e.ID), e)
		p.metrics.MQTTPublish(err)
		if err != nil {
			errs = append(errs, err)
		}
	}
	err := p.client.PublishRetained(p.topics.Summary(), summaryMessage{
		GeneratedAt: payload.GeneratedAt,
		Summary:     payload.Summary,
		PlantIDs:    ids,
	})
	p.metrics.MQTTPublish(err)
	if err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

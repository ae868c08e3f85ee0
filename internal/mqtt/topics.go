package mqtt

import "strings"

// Topics topic layout under <prefix>/<client_id>/
type Topics struct {
	base string
}

// NewTopics defaults to plantcare/plantcare_hub
func NewTopics(prefix, clientID string) Topics {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = "plantcare"
	}
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		clientID = "plantcare_hub"
	}
	return Topics{base: prefix + "/" + clientID}
}

// Status online/offline, retained, also the last will
func (t Topics) Status() string { return t.base + "/status" }

// Plant retained display entry of one plant
func (t Topics) Plant(id string) string { return t.base + "/plants/" + id }

// Summary retained display summary
func (t Topics) Summary() string { return t.base + "/summary" }

// CollectCommand any message here triggers a collection
func (t Topics) CollectCommand() string { return t.base + "/cmd/collect" }

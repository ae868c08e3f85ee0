package greg

import (
	"errors"
	"strings"
)

// PlantIDLen greg plant IDs are 8 characters
const PlantIDLen = 8

// ErrNoUsername no greg.app account configured
var ErrNoUsername = errors.New("greg: username not configured")

// FindPlantIDs scans the profile HTML for "<username>/plants/" and takes the next 8
// characters as a plant ID. Profile links may use the lowercase username, so when
// the exact spelling yields nothing the lowercase form is tried.
func FindPlantIDs(page, username string) []string {
	username = strings.TrimSpace(username)
	if username == "" {
		return []string{}
	}
	ids := scanPlantIDs(page, username)
	if len(ids) == 0 {
		if lower := strings.ToLower(username); lower != username {
			ids = scanPlantIDs(page, lower)
		}
	}
	return ids
}

func scanPlantIDs(page, username string) []string {
	needle := username + "/plants/"
	seen := make(map[string]struct{})
	ids := []string{}
	start := 0
	for {
		pos := strings.Index(page[start:], needle)
		if pos < 0 {
			break
		}
		pos = start + pos + len(needle)
		if pos+PlantIDLen > len(page) {
			break
		}
		id := page[pos : pos+PlantIDLen]
		start = pos + PlantIDLen
		if !validID(id) {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// validID rejects cut-off matches such as "ab12/\">"
func validID(id string) bool {
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

// PlantIDFromURL second-to-last path segment of a plant URL ending in "/"
func PlantIDFromURL(url string) string {
	parts := strings.Split(url, "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[len(parts)-2]
}

package gemini

import (
	"fmt"
	"strings"

	"github.com/luke-wagner/PlantCare-Monitor/models"
)

// CarePrompt asks for one short care tip. Output is stable for equal input.
func CarePrompt(data models.PlantData) string {
	var b strings.Builder
	b.WriteString("You are a houseplant care assistant. ")
	b.WriteString("Give one short, practical care tip (one sentence, under 120 characters) for this plant.\n")
	if name := data.Name(); name != "" {
		fmt.Fprintf(&b, "Name: %s\n", name)
	}
	if species := data.Species(); species != "" {
		fmt.Fprintf(&b, "Species: %s\n", species)
	}
	for _, k := range data.DetailKeys() {
		fmt.Fprintf(&b, "%s: %s\n", strings.ReplaceAll(k, "_", " "), data[k])
	}
	return b.String()
}

package envfile

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// envExample is written next to the binary on first start
const envExample = `# plantcare environment defaults (written on first start next to the binary)
#
# Values here never override variables already set in the real environment.

# Config file (json or yaml)
PLANTCARE_CONFIG=

# greg.app account whose plants are scraped
PLANTCARE_GREG_USERNAME=

# Gemini API key for care tips (empty disables tips)
PLANTCARE_GEMINI_API_KEY=

# SQLite database path
PLANTCARE_DB_PATH=

# HTTP API port
PLANTCARE_HTTP_PORT=

# Shared key the display sends as X-Device-Key (empty leaves /api/v1/display open)
PLANTCARE_DISPLAY_KEY=

# MQTT broker host
PLANTCARE_MQTT_SERVER=

# Log directory
PLANTCARE_LOG_DIR=
`

// Bootstrap writes the template to .env next to the executable when missing, then loads it
func Bootstrap() {
	exe, err := os.Executable()
	if err != nil {
		_ = ensureAndLoad(filepath.Join(".", ".env"))
		return
	}
	_ = ensureAndLoad(filepath.Join(filepath.Dir(exe), ".env"))
}

func ensureAndLoad(dotenvPath string) error {
	if _, err := os.Stat(dotenvPath); err != nil && os.IsNotExist(err) {
		_ = os.MkdirAll(filepath.Dir(dotenvPath), 0o755)
		_ = os.WriteFile(dotenvPath, []byte(envExample), 0o600)
	}
	return Load(dotenvPath)
}

// Load parses KEY=VALUE lines and sets keys not already present in the environment.
// Empty values are skipped so the template does not shadow config file settings.
func Load(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	sc := bufio.NewScanner(bytes.NewReader(raw))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		kv := strings.SplitN(line, "=", 2)
		if len(kv) != 2 {
			continue
		}
		k := strings.TrimSpace(kv[0])
		v := strings.Trim(strings.TrimSpace(kv[1]), `"'`)
		if k == "" || v == "" {
			continue
		}
		if _, exists := os.LookupEnv(k); exists {
			continue
		}
		if err := os.Setenv(k, v); err != nil {
			return fmt.Errorf("setenv %s: %w", k, err)
		}
	}
	return sc.Err()
}

package config

import (
	"fmt"
	"os"
)

// Template returns a commented client config holding the defaults.
func Template() string {
	return clientTemplate
}

func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(clientTemplate), 0o600)
}

const clientTemplate = `# CWP server
host = "cwp.opimobi.com"
port = 20000

# fast, med or slow (50, 100, 200 ms per unit); unit_width_ms (1..1000) overrides it
morse_speed = "med"
# unit_width_ms = 80

latency_management = true
max_latency_buffer = "2s"

# channel joined after every connect
frequency = 1

# prometheus endpoint, empty disables it
metrics_addr = ""
log_level = "info"

[retry]
connect_timeout = "5s"
resolve_delay = "5s"
connect_delay = "2s"
hard_error_delay = "200ms"
max_idle_wait = "30s"
`

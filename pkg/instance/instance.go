package instance

import (
	"os"
	"strings"
)

// EnvInstanceID overrides the detected instance identifier.
const EnvInstanceID = "ORDERLEDGER_INSTANCE_ID"

// ID identifies the running replica in logs and consumer names. It prefers
// ORDERLEDGER_INSTANCE_ID, then the container hostname, then "<kind>-0".
func ID(kind string) string {
	for _, key := range []string{EnvInstanceID, "HOSTNAME"} {
		if id := strings.TrimSpace(os.Getenv(key)); id != "" {
			return id
		}
	}
	if kind == "" {
		kind = "local"
	}
	return kind + "-0"
}

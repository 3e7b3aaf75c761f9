package instance

import (
	"os"
	"strings"
)

// idSources are checked in order; DYNO is set on Heroku dynos.
var idSources = []string{"MARKETCORE_INSTANCE_ID", "DYNO", "WORKER_ID"}

// GetID identifies this process in logs: the first non-empty id variable, then the
// hostname, then "local".
func GetID() string {
	return resolve(os.Getenv, os.Hostname)
}

func resolve(getenv func(string) string, hostname func() (string, error)) string {
	for _, key := range idSources {
		if id := strings.TrimSpace(getenv(key)); id != "" {
			return id
		}
	}
	if host, err := hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}

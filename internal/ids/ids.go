package ids

import (
	"strings"

	"github.com/segmentio/ksuid"
)

// New returns a sortable, URL-safe identifier for a browser client.
func New() string {
	return ksuid.New().String()
}

// Valid reports whether value parses as an identifier produced by New.
func Valid(value string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return false
	}
	_, err := ksuid.Parse(value)
	return err == nil
}

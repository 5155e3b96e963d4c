package cache

import (
	"fmt"
	"strings"
)

// Tier names one of the two cache layers.
type Tier string

const (
	// TierRaw holds the fetched HTML exactly as received.
	TierRaw Tier = "raw"

	// TierParsed holds the serialized PageResult.
	TierParsed Tier = "parsed"
)

// Key identifies one cached page in one tier.
type Key struct {
	// Prefix namespaces keys in shared backends (default "harvest").
	Prefix string

	Tier  Tier
	Event string
	Index int
}

// String generates a deterministic key string.
// Format: prefix:tier:event:index
//
// Example:
//
//	harvest:parsed:eastville:42
func (k Key) String() string {
	prefix := k.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}

	parts := []string{prefix, string(k.Tier)}

	event := strings.Trim(k.Event, "/ ")
	if event != "" {
		parts = append(parts, event)
	}

	parts = append(parts, fmt.Sprintf("%d", k.Index))

	return strings.Join(parts, ":")
}

// FileName returns the file name used by FSStore for this key.
func (k Key) FileName() string {
	switch k.Tier {
	case TierRaw:
		return fmt.Sprintf("%d.html", k.Index)
	default:
		return fmt.Sprintf("%d.json", k.Index)
	}
}

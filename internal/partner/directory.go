// Package partner resolves partner platforms to report endpoints and fetches them.
package partner

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownPlatform is returned for platform identifiers with no endpoint.
var ErrUnknownPlatform = errors.New("unknown partner platform")

// Directory maps platform identifiers to report endpoint URLs.
type Directory struct {
	endpoints map[int]string
}

// NewDirectory copies the mapping; blank URLs are ignored.
func NewDirectory(endpoints map[int]string) Directory {
	copied := make(map[int]string, len(endpoints))
	for id, url := range endpoints {
		if trimmed := strings.TrimSpace(url); trimmed != "" {
			copied[id] = trimmed
		}
	}
	return Directory{endpoints: copied}
}

// Resolve returns the endpoint for a platform.
func (d Directory) Resolve(platformID int) (string, error) {
	url, ok := d.endpoints[platformID]
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrUnknownPlatform, platformID)
	}
	return url, nil
}

// Platforms lists the configured platform identifiers in ascending order.
func (d Directory) Platforms() []int {
	ids := make([]int, 0, len(d.endpoints))
	for id := range d.endpoints {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Package landflow partitions biosphere flows into land states before
// ("transformation, from") and after ("transformation, to") transformation.
package landflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"landbalancer/internal/inventory"
)

const (
	// DefaultFromPattern identifies land states prior to transformation.
	DefaultFromPattern = "Transformation, from"
	// DefaultToPattern identifies land states after transformation.
	DefaultToPattern = "Transformation, to"
)

var (
	// ErrInvalidPatterns is returned for an empty pattern list or an empty pattern.
	ErrInvalidPatterns = errors.New("landflow: invalid name patterns")
	// ErrOverlappingClassification is returned when a flow is both a land-in and a land-out flow.
	ErrOverlappingClassification = errors.New("landflow: flow classified as both land-in and land-out")
)

// Classification holds the land flow keys of one biosphere database.
// It is immutable; accessors return copies.
type Classification struct {
	in     []inventory.Key
	out    []inventory.Key
	inSet  map[inventory.Key]struct{}
	outSet map[inventory.Key]struct{}
}

// New reads the flows of biosphere from registry and classifies them.
func New(ctx context.Context, registry inventory.Registry, biosphere string, from, to []string) (Classification, error) {
	ok, err := registry.DatabaseExists(ctx, biosphere)
	if err != nil {
		return Classification{}, err
	}
	if !ok {
		return Classification{}, fmt.Errorf("%w: %s", inventory.ErrDatabaseNotFound, biosphere)
	}
	flows, err := registry.Flows(ctx, biosphere)
	if err != nil {
		return Classification{}, fmt.Errorf("read flows of %s: %w", biosphere, err)
	}
	return Classify(flows, from, to)
}

// Classify scans flows once, in order. A flow is land-in when its name
// contains any from pattern and land-out when it contains any to pattern;
// each flow is recorded at most once per category.
func Classify(flows []inventory.Flow, from, to []string) (Classification, error) {
	if err := validatePatterns("from", from); err != nil {
		return Classification{}, err
	}
	if err := validatePatterns("to", to); err != nil {
		return Classification{}, err
	}
	c := Classification{
		inSet:  make(map[inventory.Key]struct{}),
		outSet: make(map[inventory.Key]struct{}),
	}
	for _, f := range flows {
		if matchesAny(f.Name, from) {
			if _, dup := c.inSet[f.Key]; !dup {
				c.inSet[f.Key] = struct{}{}
				c.in = append(c.in, f.Key)
			}
		}
		if matchesAny(f.Name, to) {
			if _, dup := c.outSet[f.Key]; !dup {
				c.outSet[f.Key] = struct{}{}
				c.out = append(c.out, f.Key)
			}
		}
	}
	for _, k := range c.in {
		if _, both := c.outSet[k]; both {
			return Classification{}, fmt.Errorf("%w: %s", ErrOverlappingClassification, k)
		}
	}
	return c, nil
}

func validatePatterns(label string, patterns []string) error {
	if len(patterns) == 0 {
		return fmt.Errorf("%w: no %s patterns", ErrInvalidPatterns, label)
	}
	for _, p := range patterns {
		if p == "" {
			return fmt.Errorf("%w: empty %s pattern", ErrInvalidPatterns, label)
		}
	}
	return nil
}

func matchesAny(name string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(name, p) {
			return true
		}
	}
	return false
}

// LandIn returns the keys of land states prior to transformation.
func (c Classification) LandIn() []inventory.Key { return append([]inventory.Key(nil), c.in...) }

// LandOut returns the keys of land states after transformation.
func (c Classification) LandOut() []inventory.Key { return append([]inventory.Key(nil), c.out...) }

// All returns LandIn followed by LandOut.
func (c Classification) All() []inventory.Key {
	out := make([]inventory.Key, 0, len(c.in)+len(c.out))
	out = append(out, c.in...)
	return append(out, c.out...)
}

// IsLandIn reports whether key is a land-in flow.
func (c Classification) IsLandIn(key inventory.Key) bool {
	_, ok := c.inSet[key]
	return ok
}

// IsLandOut reports whether key is a land-out flow.
func (c Classification) IsLandOut(key inventory.Key) bool {
	_, ok := c.outSet[key]
	return ok
}

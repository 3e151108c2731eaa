package presamples

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type seedMode int

const (
	seedSequential seedMode = iota
	seedRandom
	seedFixed
)

// Seed controls the order in which consumers of a package read its columns.
// The zero value is sequential.
type Seed struct {
	mode  seedMode
	value int64
}

// SeedSequential reads columns in stored order.
func SeedSequential() Seed { return Seed{mode: seedSequential} }

// SeedRandom reads columns in a nondeterministic order.
func SeedRandom() Seed { return Seed{mode: seedRandom} }

// SeedFixed reads columns in a random order derived from n.
func SeedFixed(n int64) Seed { return Seed{mode: seedFixed, value: n} }

// Value returns the fixed seed and whether the seed is fixed.
func (s Seed) Value() (int64, bool) { return s.value, s.mode == seedFixed }

// IsSequential reports whether columns are read in order.
func (s Seed) IsSequential() bool { return s.mode == seedSequential }

// String renders the seed the way ParseSeed accepts it.
func (s Seed) String() string {
	switch s.mode {
	case seedRandom:
		return "none"
	case seedFixed:
		return strconv.FormatInt(s.value, 10)
	default:
		return "sequential"
	}
}

// ParseSeed accepts "sequential", "none" (or "random") and integers.
func ParseSeed(s string) (Seed, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sequential":
		return SeedSequential(), nil
	case "none", "random", "null":
		return SeedRandom(), nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return Seed{}, fmt.Errorf("invalid seed %q: want sequential, none or an integer", s)
	}
	return SeedFixed(n), nil
}

// MarshalJSON encodes the seed as "sequential", null or an integer.
func (s Seed) MarshalJSON() ([]byte, error) {
	switch s.mode {
	case seedRandom:
		return []byte("null"), nil
	case seedFixed:
		return []byte(strconv.FormatInt(s.value, 10)), nil
	default:
		return []byte(`"sequential"`), nil
	}
}

// UnmarshalJSON decodes the MarshalJSON forms.
func (s *Seed) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*s = SeedRandom()
		return nil
	}
	var str string
	if err := json.Unmarshal(b, &str); err == nil {
		if str != "sequential" {
			return fmt.Errorf("invalid seed %q", str)
		}
		*s = SeedSequential()
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid seed %s", b)
	}
	*s = SeedFixed(n)
	return nil
}

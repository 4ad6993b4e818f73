package floors

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrUnknownFloor = errors.New("floors: unknown floor")

// Kind enumerates the floor selection variants.
type Kind int

const (
	KindNone Kind = iota
	KindGround
	KindFirst
	KindRoof
	KindCustom
)

// Floor is one selectable floor/view. Custom floors carry a level.
type Floor struct {
	Kind  Kind
	Level int
}

var (
	None   = Floor{Kind: KindNone}
	Ground = Floor{Kind: KindGround}
	First  = Floor{Kind: KindFirst}
	Roof   = Floor{Kind: KindRoof}
)

// Custom returns the custom floor at level n.
func Custom(n int) Floor {
	return Floor{Kind: KindCustom, Level: n}
}

// displayNames maps fixed variants to their display names; colocated
// with the type so the mapping cannot drift from the variant set.
var displayNames = map[Kind]string{
	KindNone:   "Overview",
	KindGround: "Ground Floor",
	KindFirst:  "First Floor",
	KindRoof:   "Roof",
}

func (f Floor) String() string {
	if f.Kind == KindCustom {
		return fmt.Sprintf("Floor %d", f.Level)
	}
	if name, ok := displayNames[f.Kind]; ok {
		return name
	}
	return "Unknown"
}

// Slug is the stable machine-readable form used for config bindings
// and UI-state keys.
func (f Floor) Slug() string {
	switch f.Kind {
	case KindNone:
		return "none"
	case KindGround:
		return "ground"
	case KindFirst:
		return "first"
	case KindRoof:
		return "roof"
	case KindCustom:
		return "custom:" + strconv.Itoa(f.Level)
	default:
		return "unknown"
	}
}

// Parse resolves a config slug back to a floor.
func Parse(raw string) (Floor, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch s {
	case "none":
		return None, nil
	case "ground":
		return Ground, nil
	case "first":
		return First, nil
	case "roof":
		return Roof, nil
	}
	if level, ok := strings.CutPrefix(s, "custom:"); ok {
		n, err := strconv.Atoi(level)
		if err != nil {
			return Floor{}, fmt.Errorf("%w: %q", ErrUnknownFloor, raw)
		}
		return Custom(n), nil
	}
	return Floor{}, fmt.Errorf("%w: %q", ErrUnknownFloor, raw)
}

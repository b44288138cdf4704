// Package cycle defines the ordered sequence of phases that makes up one
// full Pomodoro cycle.
package cycle

import (
	"errors"
	"fmt"
	"strings"
)

type Phase string

const (
	Focus      Phase = "focus"
	ShortBreak Phase = "short_break"
	LongBreak  Phase = "long_break"
)

var (
	ErrEmptyTable   = errors.New("cycle table is empty")
	ErrInvalidPhase = errors.New("invalid phase")
)

func (p Phase) Valid() bool {
	return p == Focus || p == ShortBreak || p == LongBreak
}

func (p Phase) String() string {
	return string(p)
}

// ParsePhase accepts the wire names plus a few aliases used by clients.
func ParsePhase(raw string) (Phase, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "focus", "pomodoro", "work":
		return Focus, nil
	case "short_break", "short", "break":
		return ShortBreak, nil
	case "long_break", "long":
		return LongBreak, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPhase, raw)
}

// Table is an immutable, non-empty sequence of phases. The zero value is
// not usable; build one with New, Default or ParseTable.
type Table struct {
	phases []Phase
}

func New(phases ...Phase) (Table, error) {
	if len(phases) == 0 {
		return Table{}, ErrEmptyTable
	}
	copied := make([]Phase, len(phases))
	for i, phase := range phases {
		if !phase.Valid() {
			return Table{}, fmt.Errorf("%w at position %d: %q", ErrInvalidPhase, i, phase)
		}
		copied[i] = phase
	}
	return Table{phases: copied}, nil
}

// Default is four focus sessions separated by short breaks, closed by a long break.
func Default() Table {
	table, _ := New(
		Focus, ShortBreak,
		Focus, ShortBreak,
		Focus, ShortBreak,
		Focus, ShortBreak,
		LongBreak,
	)
	return table
}

// ParseTable parses a comma separated list such as "focus,short_break,long_break".
func ParseTable(raw string) (Table, error) {
	parts := strings.Split(raw, ",")
	phases := make([]Phase, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		phase, err := ParsePhase(part)
		if err != nil {
			return Table{}, err
		}
		phases = append(phases, phase)
	}
	return New(phases...)
}

func (t Table) Len() int {
	return len(t.phases)
}

// PhaseAt returns the phase at index. Out of range indexes wrap modulo Len.
func (t Table) PhaseAt(index int) Phase {
	return t.phases[t.Normalize(index)]
}

// Normalize maps any integer onto a valid index.
func (t Table) Normalize(index int) int {
	n := len(t.phases)
	index %= n
	if index < 0 {
		index += n
	}
	return index
}

func (t Table) Phases() []Phase {
	return append([]Phase(nil), t.phases...)
}

func (t Table) Contains(phase Phase) bool {
	for _, p := range t.phases {
		if p == phase {
			return true
		}
	}
	return false
}

// NextIndexOf finds the nearest occurrence of phase strictly after current.
// The scan runs from current+1 to the end of the table and then wraps to
// the start; the first match wins. It reports false when the phase does
// not occur anywhere in the table.
func (t Table) NextIndexOf(current int, phase Phase) (int, bool) {
	n := len(t.phases)
	for idx := (t.Normalize(current) + 1) % n; idx < n; idx++ {
		if t.phases[idx] == phase {
			return idx, true
		}
	}
	for idx := 0; idx < n; idx++ {
		if t.phases[idx] == phase {
			return idx, true
		}
	}
	return 0, false
}

func (t Table) String() string {
	names := make([]string, len(t.phases))
	for i, phase := range t.phases {
		names[i] = string(phase)
	}
	return strings.Join(names, ",")
}

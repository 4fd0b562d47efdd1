package truncate

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// Strategy defines which part of the text is removed.
type Strategy int

const (
	// FromEnd removes content from the end (default).
	FromEnd Strategy = iota

	// FromMiddle removes content from the middle, keeping start and end.
	FromMiddle

	// FromStart removes content from the start.
	FromStart
)

// DefaultMarker replaces the removed text.
const DefaultMarker = "..."

// Truncator shortens text to a rune budget.
type Truncator struct {
	strategy Strategy
	marker   string
	count    bool
}

// New creates a truncator with the given strategy.
func New(strategy Strategy) *Truncator {
	return &Truncator{strategy: strategy, marker: DefaultMarker}
}

// WithMarker sets the text inserted where content was removed.
func (t *Truncator) WithMarker(marker string) *Truncator {
	t.marker = marker
	return t
}

// WithCount appends the number of removed runes to the marker,
// as in "...[1234 more]".
func (t *Truncator) WithCount() *Truncator {
	t.count = true
	return t
}

// Truncate reduces text to at most maxRunes runes, marker included.
// It returns the result and whether anything was removed.
func (t *Truncator) Truncate(text string, maxRunes int) (string, bool) {
	total := utf8.RuneCountInString(text)
	if total <= maxRunes {
		return text, false
	}
	if maxRunes <= 0 {
		return "", true
	}

	runes := []rune(text)
	marker := t.marker
	keep := maxRunes - utf8.RuneCountInString(marker)
	if t.count {
		// Size the count for the worst case so the result stays in budget.
		keep -= len("[" + strconv.Itoa(total) + " more]")
		marker += "[" + strconv.Itoa(total-max(keep, 0)) + " more]"
	}
	if keep <= 0 {
		return string(runes[:maxRunes]), true
	}

	switch t.strategy {
	case FromStart:
		return marker + string(runes[total-keep:]), true
	case FromMiddle:
		head := (keep + 1) / 2
		tail := keep - head
		var sb strings.Builder
		sb.WriteString(string(runes[:head]))
		sb.WriteString(marker)
		sb.WriteString(string(runes[total-tail:]))
		return sb.String(), true
	default:
		return string(runes[:keep]) + marker, true
	}
}

// Strategy returns the truncator's strategy.
func (t *Truncator) Strategy() Strategy {
	return t.strategy
}

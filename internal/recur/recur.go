// Package recur wraps recurrence-rule text (RRULE/RDATE lines, the form the
// ledger persists) and expands it into a bounded, ordered sequence of
// calendar dates.
package recur

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/cream-budget/cream/internal/ledger"
)

// DefaultHorizonDays bounds expansion when the caller gives no horizon: one
// year from the anchor, or the rule's own end if that comes first.
const DefaultHorizonDays = 365

// CeilingYears is the far-future sanity bound. A schedule producing any
// occurrence beyond anchor+CeilingYears is rejected rather than truncated.
const CeilingYears = 100

// Spec is an immutable, validated recurrence description. The zero value is
// not usable; build one with Parse.
type Spec struct {
	text string
}

// Parse validates serialized recurrence text. Accepted lines are RRULE:,
// RDATE: and EXDATE:; a bare "FREQ=..." line is treated as an RRULE. Every
// RRULE must carry an end condition (UNTIL or COUNT) so expansion is finite.
func Parse(text string) (Spec, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Spec{}, fmt.Errorf("empty recurrence: %w", ledger.ErrInvalidSchedule)
	}

	var lines []string
	sawRule := false
	for _, line := range strings.Split(trimmed, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		upper := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(upper, "FREQ="):
			line = "RRULE:" + line
			upper = "RRULE:" + upper
		case strings.HasPrefix(upper, "DTSTART"):
			// The anchor date supplies DTSTART; a stored one is stale.
			continue
		}
		if !strings.HasPrefix(upper, "RRULE:") &&
			!strings.HasPrefix(upper, "RDATE") &&
			!strings.HasPrefix(upper, "EXDATE") {
			return Spec{}, fmt.Errorf("unsupported recurrence line %q: %w", line, ledger.ErrInvalidSchedule)
		}
		if strings.HasPrefix(upper, "RRULE:") {
			if !strings.Contains(upper, "UNTIL=") && !strings.Contains(upper, "COUNT=") {
				return Spec{}, fmt.Errorf("rule has no end condition: %w", ledger.ErrInvalidSchedule)
			}
		}
		if strings.HasPrefix(upper, "RRULE:") || strings.HasPrefix(upper, "RDATE") {
			sawRule = true
		}
		lines = append(lines, line)
	}
	if !sawRule {
		return Spec{}, fmt.Errorf("no rule or date lines: %w", ledger.ErrInvalidSchedule)
	}

	s := Spec{text: strings.Join(lines, "\n")}
	// Prove the text parses now so expansion can't fail on shape later.
	if _, err := s.ruleSet(time.Now().UTC()); err != nil {
		return Spec{}, err
	}
	return s, nil
}

// String returns the normalized serialized form, suitable for persisting
// and re-parsing.
func (s Spec) String() string {
	return s.text
}

// IsZero reports whether the spec is unset.
func (s Spec) IsZero() bool {
	return s.text == ""
}

// OneOff reports whether the spec is a bare list of explicit dates with no
// repeating rule.
func (s Spec) OneOff() bool {
	for _, line := range strings.Split(s.text, "\n") {
		if strings.HasPrefix(strings.ToUpper(line), "RRULE:") {
			return false
		}
	}
	return s.text != ""
}

func (s Spec) ruleSet(anchor time.Time) (*rrule.Set, error) {
	set, err := rrule.StrToRRuleSet(s.text)
	if err != nil {
		return nil, fmt.Errorf("parsing recurrence %q: %w", s.text, ledger.ErrInvalidSchedule)
	}
	set.DTStart(anchor)
	return set, nil
}

// Expand materializes the schedule into a strictly increasing sequence of
// distinct calendar dates starting at the first rule-valid date at or after
// anchor. A zero horizon means anchor+DefaultHorizonDays; the rule's own end
// condition applies when it comes first. The sequence must be non-empty and
// may not reach past the far-future ceiling.
func (s Spec) Expand(anchor, horizon time.Time) ([]time.Time, error) {
	if s.IsZero() {
		return nil, fmt.Errorf("empty recurrence: %w", ledger.ErrInvalidSchedule)
	}
	anchor = ledger.DateOf(anchor)
	if horizon.IsZero() {
		horizon = anchor.AddDate(0, 0, DefaultHorizonDays)
	} else {
		horizon = ledger.DateOf(horizon)
	}

	set, err := s.ruleSet(anchor)
	if err != nil {
		return nil, err
	}

	ceiling := anchor.AddDate(CeilingYears, 0, 0)
	raw := set.Between(anchor, horizon.Add(24*time.Hour-time.Nanosecond), true)

	var dates []time.Time
	var prev time.Time
	for _, occ := range raw {
		d := ledger.DateOf(occ)
		if d.After(ceiling) {
			return nil, fmt.Errorf("occurrence on %s: %w", d.Format("2006-01-02"), ledger.ErrScheduleTooFarOut)
		}
		if !prev.IsZero() && !d.After(prev) {
			continue // same-date duplicate from overlapping lines
		}
		dates = append(dates, d)
		prev = d
	}

	if len(dates) == 0 {
		return nil, fmt.Errorf("recurrence %q produced no occurrences at or after %s: %w",
			s.text, anchor.Format("2006-01-02"), ledger.ErrInvalidSchedule)
	}
	return dates, nil
}

package ledger

import "errors"

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidSchedule marks a recurrence that produces no occurrences
	// or has no end condition. User-correctable input.
	ErrInvalidSchedule = errors.New("invalid schedule")

	// ErrScheduleTooFarOut marks a recurrence producing occurrences beyond
	// the far-future ceiling. User-correctable input.
	ErrScheduleTooFarOut = errors.New("schedule reaches too far into the future")

	// ErrDateCollision is returned when an income would land on a date
	// already taken by another income. Budgeted dates are unique across
	// incomes so previous/next lookups are well defined.
	ErrDateCollision = errors.New("budgeted date already in use")

	// ErrBrokenSeriesLink marks an occurrence whose series root is missing
	// or is itself not a head. This is a consistency failure, not bad
	// input; callers should abort and roll back.
	ErrBrokenSeriesLink = errors.New("broken series link")

	// ErrNoIncome is returned when expense ownership cannot be resolved
	// because no income periods exist yet.
	ErrNoIncome = errors.New("no income periods exist")
)

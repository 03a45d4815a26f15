// Package series expands recurring income/expense templates into occurrence
// series and revises them mid-stream. One algorithm serves both entity
// kinds; the kind-specific steps live behind the Adapter interface.
package series

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cream-budget/cream/internal/ledger"
	"github.com/cream-budget/cream/internal/recur"
)

// Occurrence is the kind-independent view of one dated series member.
type Occurrence struct {
	ID         uuid.UUID
	Date       time.Time
	Recurrence string
	// SeriesRoot is uuid.Nil when the occurrence heads its own series.
	SeriesRoot uuid.UUID
}

// Root returns the ID grouping the occurrence's series.
func (o Occurrence) Root() uuid.UUID {
	if o.SeriesRoot == uuid.Nil {
		return o.ID
	}
	return o.SeriesRoot
}

// Fields carries the user-edited values of a revision. Nil fields are left
// untouched. Description only applies to expenses; CarryOver only to
// incomes, where it pins the period's carry-over balance.
type Fields struct {
	Amount      *decimal.Decimal
	Date        *time.Time
	Description *string
	Recurrence  *string
	Transaction *string
	CarryOver   *decimal.Decimal
}

// Adapter is the per-entity-kind capability the manager drives: create
// occurrence records, delete stale ones, find the edited record, and re-link
// dependent records after the timeline changed.
type Adapter interface {
	Kind() string
	Occurrence(ctx context.Context, st ledger.Store, id uuid.UUID) (Occurrence, error)
	ApplyEdit(ctx context.Context, st ledger.Store, id uuid.UUID, f Fields) error
	// CreateSiblings bulk-creates occurrence records copying the template's
	// fields, one per date, all grouped under root.
	CreateSiblings(ctx context.Context, st ledger.Store, templateID, root uuid.UUID, dates []time.Time) ([]uuid.UUID, error)
	DeleteSiblingsAfter(ctx context.Context, st ledger.Store, root uuid.UUID, after time.Time) ([]uuid.UUID, error)
	// MakeHead turns the occurrence into a series head of its own.
	MakeHead(ctx context.Context, st ledger.Store, id uuid.UUID) error
	// ReattachChildren re-resolves records whose ownership depends on the
	// period timeline.
	ReattachChildren(ctx context.Context, st ledger.Store) error
}

// Manager orchestrates series creation and revision against a store.
// Revisions of the same series are serialized; distinct series don't
// contend.
type Manager struct {
	st ledger.Store
	// horizonDays overrides the default expansion horizon when positive.
	horizonDays int

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

// NewManager returns a manager over st. horizonDays bounds how far a single
// expansion reaches; 0 means the recur package default.
func NewManager(st ledger.Store, horizonDays int) *Manager {
	return &Manager{
		st:          st,
		horizonDays: horizonDays,
		locks:       map[uuid.UUID]*sync.Mutex{},
	}
}

func (m *Manager) seriesLock(root uuid.UUID) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[root]
	if !ok {
		l = &sync.Mutex{}
		m.locks[root] = l
	}
	return l
}

func (m *Manager) horizon(anchor time.Time) time.Time {
	if m.horizonDays <= 0 {
		return time.Time{}
	}
	return ledger.DateOf(anchor).AddDate(0, 0, m.horizonDays)
}

// checkSeriesLink verifies the occurrence's root reference: a non-head must
// point at an existing occurrence that is itself a head. A violation means
// earlier series management went wrong; it is fatal, not user input.
func (m *Manager) checkSeriesLink(ctx context.Context, st ledger.Store, ad Adapter, occ Occurrence) error {
	if occ.SeriesRoot == uuid.Nil {
		return nil
	}
	head, err := ad.Occurrence(ctx, st, occ.SeriesRoot)
	if errors.Is(err, ledger.ErrNotFound) {
		return fmt.Errorf("%s %s references missing head %s: %w",
			ad.Kind(), occ.ID, occ.SeriesRoot, ledger.ErrBrokenSeriesLink)
	}
	if err != nil {
		return err
	}
	if head.SeriesRoot != uuid.Nil {
		return fmt.Errorf("%s %s references non-head %s: %w",
			ad.Kind(), occ.ID, occ.SeriesRoot, ledger.ErrBrokenSeriesLink)
	}
	return nil
}

// CreateSeries expands the template occurrence's recurrence and creates the
// rest of the series in one atomic batch. The template's own date is
// normalized to the first rule-valid date; sibling records take the
// remaining dates. Returns all member IDs, template first. A template
// without a recurrence is a series of one.
func (m *Manager) CreateSeries(ctx context.Context, ad Adapter, templateID uuid.UUID) ([]uuid.UUID, error) {
	occ, err := ad.Occurrence(ctx, m.st, templateID)
	if err != nil {
		return nil, err
	}

	lock := m.seriesLock(occ.Root())
	lock.Lock()
	defer lock.Unlock()

	if err := m.checkSeriesLink(ctx, m.st, ad, occ); err != nil {
		return nil, err
	}

	affected := []uuid.UUID{templateID}
	err = m.st.Atomic(ctx, func(tx ledger.Store) error {
		ids, err := m.expandInto(ctx, tx, ad, occ)
		if err != nil {
			return err
		}
		affected = append(affected, ids...)
		return ad.ReattachChildren(ctx, tx)
	})
	if err != nil {
		return nil, err
	}
	return affected, nil
}

// expandInto does the expansion half of series creation inside an open unit
// of work: snap the template date, create the tail. Returns the new sibling
// IDs.
func (m *Manager) expandInto(ctx context.Context, tx ledger.Store, ad Adapter, occ Occurrence) ([]uuid.UUID, error) {
	if occ.Recurrence == "" {
		return nil, nil
	}
	spec, err := recur.Parse(occ.Recurrence)
	if err != nil {
		return nil, err
	}
	dates, err := spec.Expand(occ.Date, m.horizon(occ.Date))
	if err != nil {
		return nil, err
	}

	if !ledger.SameDate(dates[0], occ.Date) {
		first := dates[0]
		if err := ad.ApplyEdit(ctx, tx, occ.ID, Fields{Date: &first}); err != nil {
			return nil, err
		}
	}
	return ad.CreateSiblings(ctx, tx, occ.ID, occ.Root(), dates[1:])
}

// ReviseSeries applies edited fields to one occurrence. With applyToFuture
// the occurrence becomes the head of a new series: every strictly later
// member of its original series is deleted and the tail regenerated from
// the edited occurrence's schedule. Deletion and regeneration commit
// together or not at all. Returns the affected occurrence IDs, edited
// occurrence first.
func (m *Manager) ReviseSeries(ctx context.Context, ad Adapter, id uuid.UUID, f Fields, applyToFuture bool) ([]uuid.UUID, error) {
	occ, err := ad.Occurrence(ctx, m.st, id)
	if err != nil {
		return nil, err
	}

	lock := m.seriesLock(occ.Root())
	lock.Lock()
	defer lock.Unlock()

	if err := m.checkSeriesLink(ctx, m.st, ad, occ); err != nil {
		return nil, err
	}

	if !applyToFuture {
		err := m.st.Atomic(ctx, func(tx ledger.Store) error {
			if err := ad.ApplyEdit(ctx, tx, id, f); err != nil {
				return err
			}
			// A date edit can shift period ownership even without any
			// structural change.
			return ad.ReattachChildren(ctx, tx)
		})
		if err != nil {
			return nil, err
		}
		return []uuid.UUID{id}, nil
	}

	origRoot := occ.Root()
	origDate := occ.Date
	affected := []uuid.UUID{id}
	err = m.st.Atomic(ctx, func(tx ledger.Store) error {
		// "Future" is strictly later than the edited occurrence's original
		// date. Delete before editing: the edit may move the occurrence
		// past origDate, and it must never be swept up by its own
		// revision.
		if _, err := ad.DeleteSiblingsAfter(ctx, tx, origRoot, origDate); err != nil {
			return err
		}
		if err := ad.ApplyEdit(ctx, tx, id, f); err != nil {
			return err
		}
		if err := ad.MakeHead(ctx, tx, id); err != nil {
			return err
		}
		fresh, err := ad.Occurrence(ctx, tx, id)
		if err != nil {
			return err
		}
		ids, err := m.expandInto(ctx, tx, ad, fresh)
		if err != nil {
			return err
		}
		affected = append(affected, ids...)
		return ad.ReattachChildren(ctx, tx)
	})
	if err != nil {
		return nil, err
	}
	return affected, nil
}

package memory

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/crm/internal/store"
)

// table is an organization-partitioned collection of records.
// It is not safe for concurrent use; the owning store holds the lock.
type table[T any] struct {
	rows map[uuid.UUID]*T

	id        func(*T) uuid.UUID
	org       func(*T) uuid.UUID
	createdAt func(*T) time.Time
	live      func(*T) bool // false for soft-deleted rows
	clone     func(*T) *T
}

func (t *table[T]) insert(row *T) {
	t.rows[t.id(row)] = t.clone(row)
}

// lookup returns the stored row (not a copy) if it is live and belongs to orgID.
func (t *table[T]) lookup(orgID, id uuid.UUID) (*T, error) {
	row, ok := t.rows[id]
	if !ok || t.org(row) != orgID || !t.live(row) {
		return nil, store.ErrNotFound
	}
	return row, nil
}

func (t *table[T]) get(orgID, id uuid.UUID) (*T, error) {
	row, err := t.lookup(orgID, id)
	if err != nil {
		return nil, err
	}
	return t.clone(row), nil
}

// update applies mutate to a copy and stores it, keeping the identity columns fixed.
func (t *table[T]) update(orgID, id uuid.UUID, mutate func(*T), fix func(updated, current *T)) (*T, error) {
	current, err := t.lookup(orgID, id)
	if err != nil {
		return nil, err
	}

	updated := t.clone(current)
	mutate(updated)
	fix(updated, current)

	t.rows[id] = t.clone(updated)
	return updated, nil
}

// list returns a page of live rows for orgID matching match, newest first, plus the total match count.
func (t *table[T]) list(orgID uuid.UUID, match func(*T) bool, page store.Page) ([]*T, int) {
	var matched []*T
	for _, row := range t.rows {
		if t.org(row) != orgID || !t.live(row) || !match(row) {
			continue
		}
		matched = append(matched, row)
	}

	slices.SortFunc(matched, func(a, b *T) int {
		if c := t.createdAt(b).Compare(t.createdAt(a)); c != 0 {
			return c
		}
		ida, idb := t.id(a), t.id(b)
		return slices.Compare(idb[:], ida[:])
	})

	total := len(matched)
	start := min(page.Offset(), total)
	end := total
	if page.Limit > 0 {
		end = start + min(page.Limit, total-start)
	}

	result := make([]*T, 0, end-start)
	for _, row := range matched[start:end] {
		result = append(result, t.clone(row))
	}

	return result, total
}

func alwaysLive[T any](*T) bool { return true }

// matchesID reports whether value satisfies an optional ID filter.
func matchesID(filter, value *uuid.UUID) bool {
	return filter == nil || (value != nil && *filter == *value)
}

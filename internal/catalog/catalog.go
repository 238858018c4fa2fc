// Package catalog answers which tables of a restaurant can seat a party
// and manages the restaurants and tables themselves.
package catalog

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/table-reservation/internal/apperror"
	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/repository"
)

// Store is the persistence the catalog needs.
type Store interface {
	repository.RestaurantStore
	repository.TableStore
}

// Invalidator drops cached answers derived from a restaurant's hours and
// tables.
type Invalidator interface {
	InvalidateRestaurant(ctx context.Context, restaurantID string) error
}

type nopInvalidator struct{}

func (nopInvalidator) InvalidateRestaurant(context.Context, string) error { return nil }

// Catalog is the resource catalog.
type Catalog struct {
	store       Store
	log         logrus.FieldLogger
	now         func() time.Time
	newID       func() string
	invalidator Invalidator
}

// New returns a Catalog over store.
func New(store Store, log logrus.FieldLogger, opts ...Option) *Catalog {
	c := &Catalog{store: store, log: log, now: time.Now, newID: newID, invalidator: nopInvalidator{}}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Option customizes a Catalog.
type Option func(*Catalog)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option { return func(c *Catalog) { c.now = now } }

// WithInvalidator makes restaurant and table changes invalidate inv.
func WithInvalidator(inv Invalidator) Option {
	return func(c *Catalog) {
		if inv != nil {
			c.invalidator = inv
		}
	}
}

// FindEligible returns the active tables that seat partySize, smallest
// capacity first and then by table number.  This order is the best-fit
// policy.
func (c *Catalog) FindEligible(ctx context.Context, restaurantID string, partySize int) ([]model.Table, error) {
	tables, err := c.store.FindEligibleTables(ctx, restaurantID, partySize)
	if err != nil {
		return nil, fmt.Errorf("find eligible tables: %w", err)
	}
	slices.SortStableFunc(tables, bestFit)
	return tables, nil
}

// FindOptimal returns the best-fit table for partySize, or nil when no
// table can seat the party.
func (c *Catalog) FindOptimal(ctx context.Context, restaurantID string, partySize int) (*model.Table, error) {
	tables, err := c.FindEligible(ctx, restaurantID, partySize)
	if err != nil || len(tables) == 0 {
		return nil, err
	}
	return &tables[0], nil
}

// SuggestAlternatives returns up to limit active tables whose capacity is
// at least max(1, partySize-2), closest capacity first.  The list is a
// relaxed, human-facing hint: it may contain tables that cannot actually
// seat the party.
func (c *Catalog) SuggestAlternatives(ctx context.Context, restaurantID string, partySize, limit int) ([]model.Table, error) {
	tables, err := c.store.ListTables(ctx, restaurantID, true)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	floor := max(1, partySize-2)
	out := make([]model.Table, 0, len(tables))
	for _, t := range tables {
		if t.Capacity >= floor {
			out = append(out, t)
		}
	}
	slices.SortStableFunc(out, func(a, b model.Table) int {
		return cmp.Or(
			cmp.Compare(abs(a.Capacity-partySize), abs(b.Capacity-partySize)),
			cmp.Compare(a.TableNumber, b.TableNumber),
		)
	})
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Restaurant returns a restaurant by id as an operational NotFound when
// it does not exist.
func (c *Catalog) Restaurant(ctx context.Context, id string) (*model.Restaurant, error) {
	r, err := c.store.GetRestaurant(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperror.NotFoundError("restaurant", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get restaurant: %w", err)
	}
	return r, nil
}

// Table returns a table by id as an operational NotFound when it does not
// exist.
func (c *Catalog) Table(ctx context.Context, id string) (*model.Table, error) {
	t, err := c.store.GetTable(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperror.NotFoundError("table", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get table: %w", err)
	}
	return t, nil
}

func bestFit(a, b model.Table) int {
	return cmp.Or(cmp.Compare(a.Capacity, b.Capacity), cmp.Compare(a.TableNumber, b.TableNumber))
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/table-reservation/internal/apperror"
	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/repository"
	"github.com/iliyamo/table-reservation/internal/timeutil"
)

func newID() string { return uuid.NewString() }

// RestaurantInput carries the fields of a new or updated restaurant.  Nil
// pointers leave the current value untouched on update.
type RestaurantInput struct {
	Name        *string `json:"name"`
	OpeningTime *string `json:"opening_time"`
	ClosingTime *string `json:"closing_time"`
	IsActive    *bool   `json:"is_active"`
}

// TableInput carries the fields of a new or updated table.  Nil pointers
// leave the current value untouched on update.
type TableInput struct {
	TableNumber *int    `json:"table_number"`
	Capacity    *int    `json:"capacity"`
	MinCapacity *int    `json:"min_capacity"`
	Location    *string `json:"location"`
	IsActive    *bool   `json:"is_active"`
}

// CreateRestaurant validates in and stores a new active restaurant.
func (c *Catalog) CreateRestaurant(ctx context.Context, in RestaurantInput) (*model.Restaurant, error) {
	if in.Name == nil || strings.TrimSpace(*in.Name) == "" {
		return nil, apperror.New(apperror.InvalidInput, "name is required")
	}
	if in.OpeningTime == nil || in.ClosingTime == nil {
		return nil, apperror.New(apperror.InvalidInput, "opening_time and closing_time are required")
	}
	now := c.now().UTC()
	r := &model.Restaurant{
		ID:          c.newID(),
		Name:        strings.TrimSpace(*in.Name),
		OpeningTime: *in.OpeningTime,
		ClosingTime: *in.ClosingTime,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.IsActive != nil {
		r.IsActive = *in.IsActive
	}
	if err := normalizeHours(r); err != nil {
		return nil, err
	}
	if err := c.store.CreateRestaurant(ctx, r); err != nil {
		return nil, fmt.Errorf("create restaurant: %w", err)
	}
	c.log.WithFields(logrus.Fields{"restaurant_id": r.ID, "name": r.Name}).Info("restaurant created")
	return r, nil
}

// UpdateRestaurant applies the non-nil fields of in.
func (c *Catalog) UpdateRestaurant(ctx context.Context, id string, in RestaurantInput) (*model.Restaurant, error) {
	r, err := c.Restaurant(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		if strings.TrimSpace(*in.Name) == "" {
			return nil, apperror.New(apperror.InvalidInput, "name must not be empty")
		}
		r.Name = strings.TrimSpace(*in.Name)
	}
	if in.OpeningTime != nil {
		r.OpeningTime = *in.OpeningTime
	}
	if in.ClosingTime != nil {
		r.ClosingTime = *in.ClosingTime
	}
	if in.IsActive != nil {
		r.IsActive = *in.IsActive
	}
	if err := normalizeHours(r); err != nil {
		return nil, err
	}
	r.UpdatedAt = c.now().UTC()
	if err := c.store.UpdateRestaurant(ctx, r); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperror.NotFoundError("restaurant", id)
		}
		return nil, fmt.Errorf("update restaurant: %w", err)
	}
	c.invalidate(ctx, r.ID)
	return r, nil
}

// ListRestaurants returns every restaurant ordered by name.
func (c *Catalog) ListRestaurants(ctx context.Context) ([]model.Restaurant, error) {
	rs, err := c.store.ListRestaurants(ctx)
	if err != nil {
		return nil, fmt.Errorf("list restaurants: %w", err)
	}
	return rs, nil
}

// CreateTable validates in and stores a new table for the restaurant.
func (c *Catalog) CreateTable(ctx context.Context, restaurantID string, in TableInput) (*model.Table, error) {
	if _, err := c.Restaurant(ctx, restaurantID); err != nil {
		return nil, err
	}
	if in.TableNumber == nil || in.Capacity == nil {
		return nil, apperror.New(apperror.InvalidInput, "table_number and capacity are required")
	}
	now := c.now().UTC()
	t := &model.Table{
		ID:           c.newID(),
		RestaurantID: restaurantID,
		TableNumber:  *in.TableNumber,
		Capacity:     *in.Capacity,
		MinCapacity:  1,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	applyTable(t, in)
	if err := validateTable(t); err != nil {
		return nil, err
	}
	if err := c.store.CreateTable(ctx, t); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperror.New(apperror.InvalidInput, "table number %d already exists", t.TableNumber)
		}
		return nil, fmt.Errorf("create table: %w", err)
	}
	c.log.WithFields(logrus.Fields{"restaurant_id": restaurantID, "table_id": t.ID, "table_number": t.TableNumber}).Info("table created")
	c.invalidate(ctx, restaurantID)
	return t, nil
}

// UpdateTable applies the non-nil fields of in.
func (c *Catalog) UpdateTable(ctx context.Context, id string, in TableInput) (*model.Table, error) {
	t, err := c.Table(ctx, id)
	if err != nil {
		return nil, err
	}
	applyTable(t, in)
	if err := validateTable(t); err != nil {
		return nil, err
	}
	t.UpdatedAt = c.now().UTC()
	if err := c.store.UpdateTable(ctx, t); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			return nil, apperror.New(apperror.InvalidInput, "table number %d already exists", t.TableNumber)
		case errors.Is(err, repository.ErrNotFound):
			return nil, apperror.NotFoundError("table", id)
		}
		return nil, fmt.Errorf("update table: %w", err)
	}
	c.invalidate(ctx, t.RestaurantID)
	return t, nil
}

// DeleteTable removes a table.
func (c *Catalog) DeleteTable(ctx context.Context, id string) error {
	t, err := c.Table(ctx, id)
	if err != nil {
		return err
	}
	err = c.store.DeleteTable(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return apperror.NotFoundError("table", id)
	}
	if err != nil {
		return fmt.Errorf("delete table: %w", err)
	}
	c.invalidate(ctx, t.RestaurantID)
	return nil
}

// invalidate drops cached availability of every date of the restaurant.
// Failure leaves answers stale until their TTL and is only logged.
func (c *Catalog) invalidate(ctx context.Context, restaurantID string) {
	if err := c.invalidator.InvalidateRestaurant(ctx, restaurantID); err != nil {
		c.log.WithError(err).WithField("restaurant_id", restaurantID).Warn("availability cache invalidation failed")
	}
}

// ListTables returns the restaurant's tables by table number.
func (c *Catalog) ListTables(ctx context.Context, restaurantID string, activeOnly bool) ([]model.Table, error) {
	if _, err := c.Restaurant(ctx, restaurantID); err != nil {
		return nil, err
	}
	ts, err := c.store.ListTables(ctx, restaurantID, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return ts, nil
}

func applyTable(t *model.Table, in TableInput) {
	if in.TableNumber != nil {
		t.TableNumber = *in.TableNumber
	}
	if in.Capacity != nil {
		t.Capacity = *in.Capacity
	}
	if in.MinCapacity != nil {
		t.MinCapacity = *in.MinCapacity
	}
	if in.Location != nil {
		t.Location = strings.TrimSpace(*in.Location)
	}
	if in.IsActive != nil {
		t.IsActive = *in.IsActive
	}
}

func validateTable(t *model.Table) error {
	switch {
	case t.TableNumber < 1:
		return apperror.New(apperror.InvalidInput, "table_number must be positive")
	case t.MinCapacity < 1:
		return apperror.New(apperror.InvalidInput, "min_capacity must be at least 1")
	case t.Capacity < t.MinCapacity:
		return apperror.New(apperror.InvalidInput, "capacity %d is below min_capacity %d", t.Capacity, t.MinCapacity)
	}
	return nil
}

// normalizeHours validates the pair and rewrites it as zero-padded
// "HH:MM" so string comparisons on stored rows stay meaningful.
func normalizeHours(r *model.Restaurant) error {
	o, err := timeutil.ToMinutes(r.OpeningTime)
	if err != nil {
		return apperror.New(apperror.InvalidTimeFormat, "opening_time %q is not HH:MM", r.OpeningTime)
	}
	c, err := timeutil.ToMinutes(r.ClosingTime)
	if err != nil {
		return apperror.New(apperror.InvalidTimeFormat, "closing_time %q is not HH:MM", r.ClosingTime)
	}
	if o == c {
		return apperror.New(apperror.InvalidInput, "opening_time and closing_time must differ")
	}
	r.OpeningTime, r.ClosingTime = timeutil.FromMinutes(o), timeutil.FromMinutes(c)
	return nil
}

// Package availability computes which tables of a restaurant are free for
// each bookable slot of a day, and owns the operating-hour and peak-hour
// rules shared with the booking ledger.
package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/table-reservation/internal/apperror"
	"github.com/iliyamo/table-reservation/internal/catalog"
	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/repository"
	"github.com/iliyamo/table-reservation/internal/timeutil"
)

const (
	// DefaultDuration is used when a query does not name a duration.
	DefaultDuration = 90
	// MinDuration and MaxDuration bound every booking length.
	MinDuration = 30
	MaxDuration = 240
	// suggestedLimit caps the suggested tables of a result.
	suggestedLimit = 3
)

// Query asks for the free slots of one restaurant day.
type Query struct {
	RestaurantID    string
	Date            string
	PartySize       int
	DurationMinutes int
}

// TableRef is the public view of a table inside an availability result.
type TableRef struct {
	ID          string `json:"id"`
	TableNumber int    `json:"table_number"`
	Capacity    int    `json:"capacity"`
	MinCapacity int    `json:"min_capacity"`
	Location    string `json:"location,omitempty"`
}

// SuggestedTable is a TableRef ranked by how well it fits the party.
type SuggestedTable struct {
	TableRef
	FitScore int `json:"fit_score"`
}

// SlotAvailability lists the tables free for one slot.
type SlotAvailability struct {
	StartTime       string     `json:"start_time"`
	EndTime         string     `json:"end_time"`
	AvailableTables []TableRef `json:"available_tables"`
}

// Result is the answer to a Query.  Slots without a free table are left
// out.
type Result struct {
	RestaurantID    string             `json:"restaurant_id"`
	Date            string             `json:"date"`
	PartySize       int                `json:"party_size"`
	DurationMinutes int                `json:"duration_minutes"`
	AvailableSlots  []SlotAvailability `json:"available_slots"`
	SuggestedTables []SuggestedTable   `json:"suggested_tables"`
}

// Config tunes an Engine.
type Config struct {
	Policy          Policy
	CacheTTL        time.Duration
	DefaultDuration int
}

// Engine answers availability queries.
type Engine struct {
	restaurants  repository.RestaurantStore
	catalog      *catalog.Catalog
	reservations repository.ReservationStore
	cache        Cache
	cfg          Config
	log          logrus.FieldLogger
}

// NewEngine wires an Engine.  A nil cache disables caching.
func NewEngine(restaurants repository.RestaurantStore, cat *catalog.Catalog, reservations repository.ReservationStore, cache Cache, cfg Config, log logrus.FieldLogger) *Engine {
	if cache == nil {
		cache = NopCache{}
	}
	if cfg.Policy.SlotInterval <= 0 {
		cfg.Policy.SlotInterval = 30
	}
	if cfg.DefaultDuration <= 0 {
		cfg.DefaultDuration = DefaultDuration
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	return &Engine{
		restaurants:  restaurants,
		catalog:      cat,
		reservations: reservations,
		cache:        cache,
		cfg:          cfg,
		log:          log,
	}
}

// Policy returns the engine's time-of-day rules.
func (e *Engine) Policy() Policy { return e.cfg.Policy }

// Cache returns the cache the engine reads through.
func (e *Engine) Cache() Cache { return e.cache }

// GetAvailability returns the free tables for every slot of q.Date.
func (e *Engine) GetAvailability(ctx context.Context, q Query) (*Result, error) {
	if _, err := timeutil.ParseDate(q.Date); err != nil {
		return nil, apperror.New(apperror.InvalidDateFormat, "date %q is not YYYY-MM-DD", q.Date)
	}
	if q.PartySize < 1 {
		return nil, apperror.New(apperror.InvalidInput, "party size must be at least 1")
	}
	if q.DurationMinutes == 0 {
		q.DurationMinutes = e.cfg.DefaultDuration
	}
	if q.DurationMinutes < MinDuration || q.DurationMinutes > MaxDuration {
		return nil, apperror.New(apperror.InvalidInput, "duration must be between %d and %d minutes", MinDuration, MaxDuration)
	}

	log := e.log.WithFields(logrus.Fields{"restaurant_id": q.RestaurantID, "date": q.Date, "party_size": q.PartySize})
	gen, err := e.cache.Generation(ctx, q.RestaurantID, q.Date)
	if err != nil {
		log.WithError(err).Warn("availability cache generation read failed")
		return e.compute(ctx, q)
	}
	key := Key{RestaurantID: q.RestaurantID, Date: q.Date, Gen: gen, PartySize: q.PartySize, Duration: q.DurationMinutes}
	if res, ok, err := e.cache.Get(ctx, key); err != nil {
		log.WithError(err).Warn("availability cache read failed")
	} else if ok {
		return res, nil
	}

	res, err := e.compute(ctx, q)
	if err != nil {
		return nil, err
	}
	if err := e.cache.Set(ctx, key, res, e.cfg.CacheTTL); err != nil {
		log.WithError(err).Warn("availability cache write failed")
	}
	return res, nil
}

func (e *Engine) compute(ctx context.Context, q Query) (*Result, error) {
	r, err := e.restaurant(ctx, q.RestaurantID)
	if err != nil {
		return nil, err
	}
	if !r.IsActive {
		return nil, apperror.New(apperror.RestaurantInactive, "restaurant %s is not accepting bookings", r.ID)
	}
	res := &Result{
		RestaurantID:    r.ID,
		Date:            q.Date,
		PartySize:       q.PartySize,
		DurationMinutes: q.DurationMinutes,
		AvailableSlots:  []SlotAvailability{},
		SuggestedTables: []SuggestedTable{},
	}

	eligible, err := e.catalog.FindEligible(ctx, r.ID, q.PartySize)
	if err != nil {
		return nil, err
	}
	if len(eligible) == 0 {
		return res, nil
	}

	booked, err := e.reservations.ListActiveByRestaurantAndDate(ctx, r.ID, q.Date)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	byTable := make(map[string][]model.Reservation, len(eligible))
	for _, b := range booked {
		byTable[b.TableID] = append(byTable[b.TableID], b)
	}

	slots, err := timeutil.GenerateSlots(r.OpeningTime, r.ClosingTime, q.DurationMinutes, e.cfg.Policy.SlotInterval)
	if err != nil {
		return nil, err
	}
	for s := range slots {
		var free []TableRef
		for _, t := range eligible {
			if isFree(byTable[t.ID], s.StartMinute, s.EndMinute) {
				free = append(free, refOf(t))
			}
		}
		if len(free) == 0 {
			continue
		}
		res.AvailableSlots = append(res.AvailableSlots, SlotAvailability{
			StartTime:       s.Start,
			EndTime:         s.End,
			AvailableTables: free,
		})
	}

	for _, t := range eligible[:min(suggestedLimit, len(eligible))] {
		res.SuggestedTables = append(res.SuggestedTables, SuggestedTable{TableRef: refOf(t), FitScore: t.FitScore(q.PartySize)})
	}
	return res, nil
}

// IsOpenAt reports whether the restaurant is open at the "HH:MM" clock
// time, treating a closing time before the opening time as past midnight.
func (e *Engine) IsOpenAt(ctx context.Context, restaurantID, clock string) (bool, error) {
	m, err := timeutil.ToMinutes(clock)
	if err != nil {
		return false, apperror.New(apperror.InvalidTimeFormat, "time %q is not HH:MM", clock)
	}
	r, err := e.restaurant(ctx, restaurantID)
	if err != nil {
		return false, err
	}
	h, err := timeutil.NewHours(r.OpeningTime, r.ClosingTime)
	if err != nil {
		return false, err
	}
	return h.IsOpenAt(m), nil
}

func (e *Engine) restaurant(ctx context.Context, id string) (*model.Restaurant, error) {
	r, err := e.restaurants.GetRestaurant(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperror.NotFoundError("restaurant", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get restaurant: %w", err)
	}
	return r, nil
}

func isFree(booked []model.Reservation, start, end int) bool {
	for _, b := range booked {
		if timeutil.RangesOverlap(start, end, b.StartMinute, b.EndMinute) {
			return false
		}
	}
	return true
}

func refOf(t model.Table) TableRef {
	return TableRef{
		ID:          t.ID,
		TableNumber: t.TableNumber,
		Capacity:    t.Capacity,
		MinCapacity: t.MinCapacity,
		Location:    t.Location,
	}
}

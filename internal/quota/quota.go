// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package quota tracks how many files a client has converted on the current
// calendar day.
//
// The limit is a soft deterrent. Counts live in whatever Storage the caller
// injects (a local SQLite file, a YAML file, or memory), so anyone who can
// reset that storage can bypass the limit. Never use it as an authorization
// control.
package quota

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultDailyLimit is the number of conversions allowed per day.
	DefaultDailyLimit = 10

	keyPrefix = "conversion_limit_"
)

// ErrNotFound is returned by Storage.Get when the key has no value.
var ErrNotFound = errors.New("quota: key not found")

// Storage is a string key/value store for per-day counters.
type Storage interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error
}

// Key returns the storage key for the given ISO 8601 date.
func Key(date string) string {
	return keyPrefix + date
}

// Day returns the ISO 8601 calendar date (UTC) of t.
func Day(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}

// Reservation is the answer to a quota check.
type Reservation struct {
	// Allowed reports whether the requested files fit in today's allowance.
	Allowed bool

	// Remaining is how many more files may be converted today, before
	// counting the request.
	Remaining int
}

// Tracker reads and updates daily conversion counts.
type Tracker struct {
	store Storage
	log   *slog.Logger
}

// NewTracker returns a Tracker backed by store. A nil logger uses slog.Default.
func NewTracker(store Storage, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{store: store, log: logger.With("component", "quota")}
}

// CurrentCount returns the persisted count for date. A missing, unreadable,
// or corrupt value counts as zero so that storage trouble never blocks the
// user.
func (t *Tracker) CurrentCount(ctx context.Context, date string) int {
	n, err := t.count(ctx, date)
	if err != nil {
		t.log.Warn("reading quota count failed, treating as zero", "date", date, "error", err)
	}
	return n
}

// count reads the stored count. Only a storage failure is an error; a
// missing or corrupt value yields zero.
func (t *Tracker) count(ctx context.Context, date string) (int, error) {
	raw, err := t.store.Get(ctx, Key(date))
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		t.log.Warn("ignoring corrupt quota count", "date", date, "value", raw)
		return 0, nil
	}
	return n, nil
}

// CheckAndReserve reports whether requested more conversions fit under limit
// on date. It does not mutate storage; two sessions sharing a storage scope
// can both pass the check and together exceed the limit slightly.
func (t *Tracker) CheckAndReserve(ctx context.Context, date string, requested, limit int) Reservation {
	current := t.CurrentCount(ctx, date)
	return Reservation{
		Allowed:   current+requested <= limit,
		Remaining: max(limit-current, 0),
	}
}

// RecordSuccesses adds n to the count for date. When the current count
// cannot be read the update is skipped, so a storage hiccup never resets the
// day's total. Failures are logged and dropped.
func (t *Tracker) RecordSuccesses(ctx context.Context, date string, n int) {
	if n <= 0 {
		return
	}
	current, err := t.count(ctx, date)
	if err != nil {
		t.log.Warn("reading quota count failed, usage not recorded", "date", date, "successes", n, "error", err)
		return
	}
	if err := t.store.Set(ctx, Key(date), strconv.Itoa(current+n)); err != nil {
		t.log.Warn("recording quota usage failed", "date", date, "successes", n, "error", err)
	}
}

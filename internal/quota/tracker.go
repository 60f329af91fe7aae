/*
Copyright (C) 2026 Litecast Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package quota

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/litecasthq/litecast/internal/events"
)

// AccountQuota is the usage position of one account.
type AccountQuota struct {
	UsageSeconds      int64
	DailyLimitSeconds int64
	// Unlimited accounts (admins) are metered but never enforced.
	Unlimited bool
}

// AccountStore persists usage counters.
type AccountStore interface {
	GetQuota(ctx context.Context, owner string) (AccountQuota, error)
	// IncrementUsage adds seconds and returns the new running total.
	IncrementUsage(ctx context.Context, owner string, seconds int64) (int64, error)
	// ResetIfNewDay zeroes the counter when the stored reset date is not
	// today. Returns true when a reset happened.
	ResetIfNewDay(ctx context.Context, owner string, today string) (bool, error)
}

// OwnerStopper tears down every live session an account owns.
type OwnerStopper interface {
	StopOwner(owner, reason string) int
}

// Publisher is the event bus surface the tracker needs.
type Publisher interface {
	Publish(events.EventType, events.Payload)
}

// Tracker meters encoded airtime against each account's daily allowance.
// All updates for one account are serialized, so concurrent sessions cannot
// race past the limit or double-fire the exhaustion event.
type Tracker struct {
	store   AccountStore
	stopper OwnerStopper
	bus     Publisher
	logger  zerolog.Logger

	mu       sync.Mutex
	accounts map[string]*accountState
}

type accountState struct {
	mu        sync.Mutex
	exhausted bool
}

// NewTracker creates a tracker.
func NewTracker(store AccountStore, stopper OwnerStopper, bus Publisher, logger zerolog.Logger) *Tracker {
	return &Tracker{
		store:    store,
		stopper:  stopper,
		bus:      bus,
		logger:   logger.With().Str("component", "quota").Logger(),
		accounts: make(map[string]*accountState),
	}
}

func (t *Tracker) account(owner string) *accountState {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.accounts[owner]
	if !ok {
		st = &accountState{}
		t.accounts[owner] = st
	}
	return st
}

// Record adds encoded seconds to the account and returns the seconds left
// of today's allowance, negative for unmetered or unreadable accounts.
// Crossing the daily allowance marks the account exhausted, publishes one
// quota event, and stops every session the account owns. Once exhausted,
// further reports are dropped until the next daily reset.
func (t *Tracker) Record(ctx context.Context, owner string, seconds int64) int64 {
	st := t.account(owner)
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.exhausted {
		return 0
	}

	q, err := t.store.GetQuota(ctx, owner)
	if err != nil {
		t.logger.Error().Err(err).Str("user_id", owner).Msg("failed to load quota")
		return -1
	}

	total, err := t.store.IncrementUsage(ctx, owner, seconds)
	if err != nil {
		t.logger.Error().Err(err).Str("user_id", owner).Msg("failed to record usage")
		return -1
	}

	if q.Unlimited || q.DailyLimitSeconds <= 0 {
		return -1
	}
	if total < q.DailyLimitSeconds {
		return q.DailyLimitSeconds - total
	}

	st.exhausted = true
	t.logger.Warn().
		Str("user_id", owner).
		Int64("usage_seconds", total).
		Int64("limit_seconds", q.DailyLimitSeconds).
		Msg("daily quota exhausted")

	t.bus.Publish(events.EventQuotaExhausted, events.Payload{
		"user_id":       owner,
		"usage_seconds": total,
		"limit_seconds": q.DailyLimitSeconds,
	})
	t.stopper.StopOwner(owner, "quota")
	return 0
}

// ResetIfNewDay applies the daily usage reset and clears the exhaustion
// latch when the day rolled over. Invoked by the API layer before a start.
func (t *Tracker) ResetIfNewDay(ctx context.Context, owner string, today string) (bool, error) {
	st := t.account(owner)
	st.mu.Lock()
	defer st.mu.Unlock()

	reset, err := t.store.ResetIfNewDay(ctx, owner, today)
	if err != nil {
		return false, err
	}
	if reset {
		st.exhausted = false
	}
	return reset, nil
}

// Remaining returns how many seconds the account can still broadcast today.
// Unlimited accounts report a negative value.
func (t *Tracker) Remaining(ctx context.Context, owner string) (int64, error) {
	q, err := t.store.GetQuota(ctx, owner)
	if err != nil {
		return 0, err
	}
	if q.Unlimited || q.DailyLimitSeconds <= 0 {
		return -1, nil
	}
	remaining := q.DailyLimitSeconds - q.UsageSeconds
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"leadpulse/internal/models"
)

// Fixed-window submission budgets per identity. Anonymous visitors get a
// materially smaller budget than registered ones.
const (
	RateWindow       = 60 * time.Second
	AnonymousBudget  = 20
	RegisteredBudget = 100
)

// rateWindow tracks one identity's fixed-window counter. The window
// resets when its end timestamp has passed; this is deliberately simpler
// than a sliding window and accepts minor burst-at-boundary imprecision
// for auditable, predictable behavior.
type rateWindow struct {
	mu        sync.Mutex
	windowEnd time.Time
	count     int
}

// allow increments the counter and reports whether it stays within budget
func (w *rateWindow) allow(now time.Time, budget int, window time.Duration) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if now.After(w.windowEnd) {
		w.windowEnd = now.Add(window)
		w.count = 0
	}
	if w.count >= budget {
		return false
	}
	w.count++
	return true
}

// EventRouter validates inbound events, applies per-identity rate limits
// and dispatches them to the scoring engine or out to subscribed channels.
type EventRouter struct {
	scoring     *ScoringService
	connManager *ConnectionManager
	clock       func() time.Time

	windows   map[string]*rateWindow
	windowsMu sync.RWMutex
}

// NewEventRouter creates the router over its collaborators
func NewEventRouter(scoring *ScoringService, connManager *ConnectionManager) *EventRouter {
	return &EventRouter{
		scoring:     scoring,
		connManager: connManager,
		clock:       time.Now,
		windows:     make(map[string]*rateWindow),
	}
}

// SetClock overrides the time source (tests fix the clock)
func (r *EventRouter) SetClock(clock func() time.Time) {
	r.clock = clock
}

func (r *EventRouter) window(identityID string) *rateWindow {
	r.windowsMu.RLock()
	w, ok := r.windows[identityID]
	r.windowsMu.RUnlock()
	if ok {
		return w
	}
	r.windowsMu.Lock()
	defer r.windowsMu.Unlock()
	if w, ok = r.windows[identityID]; ok {
		return w
	}
	w = &rateWindow{}
	r.windows[identityID] = w
	return w
}

// Submit processes one inbound event from a connection. Authorization is
// checked before rate accounting so an unauthorized anonymous burst is
// reported as unauthorized, not masked as rate limited. Returns one of
// the taxonomy errors on rejection.
func (r *EventRouter) Submit(ctx context.Context, conn *models.ClientConnection, event models.ClientEvent) (*ScoreUpdate, error) {
	switch event.Type {
	case "activity":
		return r.submitActivity(ctx, conn, event)
	case "state_change":
		return nil, r.submitStateChange(ctx, conn, event)
	default:
		return nil, fmt.Errorf("%w: unknown event type %q", ErrValidationFailed, event.Type)
	}
}

// submitActivity validates, authorizes, rate-limits and scores one
// behavioral event
func (r *EventRouter) submitActivity(ctx context.Context, conn *models.ClientConnection, event models.ClientEvent) (*ScoreUpdate, error) {
	if !event.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown activity kind %q", ErrValidationFailed, event.Kind)
	}

	// Authorization strictly before rate accounting
	if event.Kind.RequiresRegistration() && !conn.Role.Registered() {
		return nil, fmt.Errorf("%w: %s requires a registered identity", ErrUnauthorized, event.Kind)
	}

	budget := RegisteredBudget
	if !conn.Role.Registered() {
		budget = AnonymousBudget
	}
	now := r.clock()
	if !r.window(conn.IdentityID).allow(now, budget, RateWindow) {
		return nil, fmt.Errorf("%w: identity %s exceeded %d events per %s", ErrRateLimited, conn.IdentityID, budget, RateWindow)
	}

	activity := models.Activity{
		Kind:      event.Kind,
		Timestamp: event.Timestamp,
		SubjectID: event.SubjectID,
		Metadata:  event.Metadata,
	}
	if activity.Timestamp.IsZero() {
		activity.Timestamp = now
	}

	update, err := r.scoring.RecordActivity(ctx, conn.IdentityID, activity, event.Contact)
	if err != nil {
		return nil, err
	}
	return update, nil
}

// submitStateChange fans a state-change event (e.g. a property status
// update) out to its channel's subscribers
func (r *EventRouter) submitStateChange(ctx context.Context, conn *models.ClientConnection, event models.ClientEvent) error {
	channel := strings.TrimSpace(event.Channel)
	if channel == "" {
		return fmt.Errorf("%w: state_change requires a channel", ErrValidationFailed)
	}

	// State changes always require a registered identity: anonymous
	// visitors observe, they do not publish
	if !conn.Role.Registered() {
		return fmt.Errorf("%w: state_change requires a registered identity", ErrUnauthorized)
	}

	budget := RegisteredBudget
	now := r.clock()
	if !r.window(conn.IdentityID).allow(now, budget, RateWindow) {
		return fmt.Errorf("%w: identity %s exceeded %d events per %s", ErrRateLimited, conn.IdentityID, budget, RateWindow)
	}

	r.connManager.Broadcast(ctx, channel, models.ServerMessage{
		Type:    "broadcast",
		Channel: channel,
		Payload: event.Payload,
	})
	log.Printf("📡 [ROUTER] State change from %s broadcast on %s", conn.IdentityID, channel)
	return nil
}

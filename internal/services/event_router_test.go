package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"leadpulse/internal/models"
	"leadpulse/internal/store"
)

func newTestRouter(t *testing.T, now time.Time) *EventRouter {
	t.Helper()
	scoring := NewScoringService(store.NewMemoryStore())
	scoring.SetClock(fixedClock(now))
	router := NewEventRouter(scoring, NewConnectionManager(nil, nil))
	router.SetClock(fixedClock(now))
	return router
}

func testConn(identityID string, role models.ConnectionRole) *models.ClientConnection {
	return models.NewClientConnection("conn-"+identityID, identityID, role, "127.0.0.1", nil)
}

func activityEvent(kind models.ActivityKind) models.ClientEvent {
	return models.ClientEvent{Type: "activity", Kind: kind}
}

func TestSubmitRejectsUnknownType(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	router := newTestRouter(t, now)
	conn := testConn("v-1", models.RoleAnonymous)

	_, err := router.Submit(context.Background(), conn, models.ClientEvent{Type: "telemetry"})
	if !errors.Is(err, ErrValidationFailed) {
		t.Errorf("unknown type: got %v, want ErrValidationFailed", err)
	}
}

func TestSubmitRejectsUnknownKind(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	router := newTestRouter(t, now)
	conn := testConn("v-1", models.RoleAnonymous)

	_, err := router.Submit(context.Background(), conn, activityEvent("mouse_move"))
	if !errors.Is(err, ErrValidationFailed) {
		t.Errorf("unknown kind: got %v, want ErrValidationFailed", err)
	}
}

func TestAnonymousCannotSubmitRegisteredKinds(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	router := newTestRouter(t, now)
	conn := testConn("v-1", models.RoleAnonymous)

	gated := []models.ActivityKind{
		models.ActivitySavedProperty,
		models.ActivityPropertyInquiry,
		models.ActivityPhoneCallRequest,
		models.ActivityAgentChat,
		models.ActivityPriceAlertSignup,
	}
	for _, kind := range gated {
		_, err := router.Submit(context.Background(), conn, activityEvent(kind))
		if !errors.Is(err, ErrUnauthorized) {
			t.Errorf("%s from anonymous: got %v, want ErrUnauthorized", kind, err)
		}
	}
}

func TestAuthorizationCheckedBeforeRateAccounting(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	router := newTestRouter(t, now)
	conn := testConn("v-1", models.RoleAnonymous)
	ctx := context.Background()

	// Unauthorized submissions beyond the whole anonymous budget must not
	// consume it
	for i := 0; i < AnonymousBudget+5; i++ {
		_, err := router.Submit(ctx, conn, activityEvent(models.ActivitySavedProperty))
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("submission %d: got %v, want ErrUnauthorized", i, err)
		}
	}

	if _, err := router.Submit(ctx, conn, activityEvent(models.ActivityPropertyView)); err != nil {
		t.Errorf("valid event after unauthorized burst: got %v, want accepted", err)
	}
}

func TestAnonymousRateLimit(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	router := newTestRouter(t, now)
	conn := testConn("v-1", models.RoleAnonymous)
	ctx := context.Background()

	for i := 0; i < AnonymousBudget; i++ {
		if _, err := router.Submit(ctx, conn, activityEvent(models.ActivityPropertyView)); err != nil {
			t.Fatalf("submission %d rejected within budget: %v", i, err)
		}
	}

	_, err := router.Submit(ctx, conn, activityEvent(models.ActivityPropertyView))
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("over-budget submission: got %v, want ErrRateLimited", err)
	}
}

func TestRateWindowResets(t *testing.T) {
	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	router := newTestRouter(t, start)
	conn := testConn("v-1", models.RoleAnonymous)
	ctx := context.Background()

	current := start
	router.SetClock(func() time.Time { return current })

	for i := 0; i < AnonymousBudget; i++ {
		if _, err := router.Submit(ctx, conn, activityEvent(models.ActivityPropertyView)); err != nil {
			t.Fatalf("submission %d rejected within budget: %v", i, err)
		}
	}
	if _, err := router.Submit(ctx, conn, activityEvent(models.ActivityPropertyView)); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected rate limit at budget edge, got %v", err)
	}

	current = start.Add(RateWindow + time.Second)
	if _, err := router.Submit(ctx, conn, activityEvent(models.ActivityPropertyView)); err != nil {
		t.Errorf("submission after window reset: got %v, want accepted", err)
	}
}

func TestRegisteredBudgetIsLarger(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	router := newTestRouter(t, now)
	conn := testConn("m-1", models.RoleMember)
	ctx := context.Background()

	for i := 0; i < RegisteredBudget; i++ {
		if _, err := router.Submit(ctx, conn, activityEvent(models.ActivityPropertyView)); err != nil {
			t.Fatalf("submission %d rejected within registered budget: %v", i, err)
		}
	}
	_, err := router.Submit(ctx, conn, activityEvent(models.ActivityPropertyView))
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("over registered budget: got %v, want ErrRateLimited", err)
	}
}

func TestRateWindowsAreIndependentPerIdentity(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	router := newTestRouter(t, now)
	ctx := context.Background()

	first := testConn("v-1", models.RoleAnonymous)
	for i := 0; i < AnonymousBudget; i++ {
		if _, err := router.Submit(ctx, first, activityEvent(models.ActivityPropertyView)); err != nil {
			t.Fatalf("submission %d rejected within budget: %v", i, err)
		}
	}

	second := testConn("v-2", models.RoleAnonymous)
	if _, err := router.Submit(ctx, second, activityEvent(models.ActivityPropertyView)); err != nil {
		t.Errorf("fresh identity rejected: %v", err)
	}
}

func TestStateChangeRequiresChannelAndRegistration(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	router := newTestRouter(t, now)
	ctx := context.Background()

	member := testConn("m-1", models.RoleMember)
	_, err := router.Submit(ctx, member, models.ClientEvent{Type: "state_change"})
	if !errors.Is(err, ErrValidationFailed) {
		t.Errorf("missing channel: got %v, want ErrValidationFailed", err)
	}

	anon := testConn("v-1", models.RoleAnonymous)
	_, err = router.Submit(ctx, anon, models.ClientEvent{Type: "state_change", Channel: models.ChannelListings})
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("anonymous state_change: got %v, want ErrUnauthorized", err)
	}

	_, err = router.Submit(ctx, member, models.ClientEvent{
		Type:    "state_change",
		Channel: models.ChannelListings,
		Payload: map[string]interface{}{"property_id": "p-9", "status": "sold"},
	})
	if err != nil {
		t.Errorf("valid state_change: got %v, want accepted", err)
	}
}

func TestSubmitAcceptedActivityReturnsTransition(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	router := newTestRouter(t, now)
	conn := testConn("m-1", models.RoleMember)

	update, err := router.Submit(context.Background(), conn, activityEvent(models.ActivityContactForm))
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if update == nil {
		t.Fatal("Submit() returned nil update for accepted activity")
	}
	if update.NewScore != 75 || update.NewCategory != models.CategoryWarm {
		t.Errorf("transition = %d/%s, want 75/WARM", update.NewScore, update.NewCategory)
	}
}

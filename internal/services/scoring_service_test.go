package services

import (
	"context"
	"testing"
	"time"

	"leadpulse/internal/models"
	"leadpulse/internal/store"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func activityAt(kind models.ActivityKind, ts time.Time) models.Activity {
	return models.Activity{Kind: kind, Timestamp: ts}
}

func TestComputeScore(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		activities []models.Activity
		want       int
	}{
		{
			name:       "empty history stays at base",
			activities: nil,
			want:       50,
		},
		{
			name: "single contact form lands in warm",
			activities: []models.Activity{
				activityAt(models.ActivityContactForm, now),
			},
			want: 75,
		},
		{
			name: "contact form plus call request lands in hot",
			activities: []models.Activity{
				activityAt(models.ActivityContactForm, now),
				activityAt(models.ActivityPhoneCallRequest, now),
			},
			want: 105,
		},
		{
			name: "three day old view decays to 70 percent",
			activities: []models.Activity{
				activityAt(models.ActivityPropertyView, now.Add(-3*24*time.Hour)),
			},
			want: 54, // 50 + 5*0.7 = 53.5, rounds up
		},
		{
			name: "decay bottoms out at half weight",
			activities: []models.Activity{
				activityAt(models.ActivityPropertyView, now.Add(-30*24*time.Hour)),
			},
			want: 53, // 50 + 5*0.5 = 52.5, rounds up
		},
		{
			name: "future timestamp gets no decay",
			activities: []models.Activity{
				activityAt(models.ActivityPropertyView, now.Add(time.Hour)),
			},
			want: 55,
		},
		{
			name: "five repeat views are dampened",
			activities: []models.Activity{
				activityAt(models.ActivityPropertyView, now),
				activityAt(models.ActivityPropertyView, now),
				activityAt(models.ActivityPropertyView, now),
				activityAt(models.ActivityPropertyView, now),
				activityAt(models.ActivityPropertyView, now),
			},
			want: 70, // 50 + 5*(1+0.9+0.8+0.7+0.6)
		},
		{
			name: "dampening bottoms out at 30 percent",
			activities: []models.Activity{
				activityAt(models.ActivityPropertyView, now),
				activityAt(models.ActivityPropertyView, now),
				activityAt(models.ActivityPropertyView, now),
				activityAt(models.ActivityPropertyView, now),
				activityAt(models.ActivityPropertyView, now),
				activityAt(models.ActivityPropertyView, now),
				activityAt(models.ActivityPropertyView, now),
				activityAt(models.ActivityPropertyView, now),
				activityAt(models.ActivityPropertyView, now),
				activityAt(models.ActivityPropertyView, now),
			},
			want: 79, // 50 + 5*(1+0.9+0.8+0.7+0.6+0.5+0.4+0.3+0.3+0.3)
		},
		{
			name: "score clamps at the ceiling",
			activities: []models.Activity{
				activityAt(models.ActivityContactForm, now),
				activityAt(models.ActivityContactForm, now),
				activityAt(models.ActivityContactForm, now),
				activityAt(models.ActivityContactForm, now),
				activityAt(models.ActivityContactForm, now),
				activityAt(models.ActivityContactForm, now),
				activityAt(models.ActivityContactForm, now),
			},
			want: 150,
		},
		{
			name: "unknown kinds contribute nothing",
			activities: []models.Activity{
				activityAt(models.ActivityKind("page_scroll"), now),
			},
			want: 50,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeScore(tt.activities, now)
			if got != tt.want {
				t.Errorf("ComputeScore() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestComputeScoreDeterministic(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	history := []models.Activity{
		activityAt(models.ActivityPropertyView, now.Add(-5*24*time.Hour)),
		activityAt(models.ActivityMortgageCalcUse, now.Add(-2*24*time.Hour)),
		activityAt(models.ActivityContactForm, now.Add(-1*time.Hour)),
		activityAt(models.ActivityPropertyView, now),
	}

	first := ComputeScore(history, now)
	for i := 0; i < 100; i++ {
		if got := ComputeScore(history, now); got != first {
			t.Fatalf("replay %d diverged: got %d, want %d", i, got, first)
		}
	}
}

func TestComputeScoreDecayMonotonic(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	prev := 1 << 30
	for days := 0; days <= 15; days++ {
		history := []models.Activity{
			activityAt(models.ActivityAgentChat, now.Add(-time.Duration(days)*24*time.Hour)),
		}
		got := ComputeScore(history, now)
		if got > prev {
			t.Fatalf("score rose with age: %d days old scored %d, %d days scored %d", days, got, days-1, prev)
		}
		prev = got
	}
}

func TestCategoryForScore(t *testing.T) {
	for score := 0; score <= 150; score++ {
		got := models.CategoryForScore(score)
		var want models.LeadCategory
		switch {
		case score >= 80:
			want = models.CategoryHot
		case score >= 50:
			want = models.CategoryWarm
		default:
			want = models.CategoryCold
		}
		if got != want {
			t.Errorf("CategoryForScore(%d) = %s, want %s", score, got, want)
		}
	}
}

func TestRecordActivityCreatesProfile(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	st := store.NewMemoryStore()
	svc := NewScoringService(st)
	svc.SetClock(fixedClock(now))

	update, err := svc.RecordActivity(context.Background(), "lead-1", activityAt(models.ActivityContactForm, now), &models.ContactInfo{Email: "jo@example.com"})
	if err != nil {
		t.Fatalf("RecordActivity() error: %v", err)
	}
	if update.OldScore != 50 || update.NewScore != 75 {
		t.Errorf("transition = %d → %d, want 50 → 75", update.OldScore, update.NewScore)
	}
	if update.NewCategory != models.CategoryWarm {
		t.Errorf("category = %s, want WARM", update.NewCategory)
	}

	stored, err := st.LoadProfile(context.Background(), "lead-1")
	if err != nil {
		t.Fatalf("LoadProfile() error: %v", err)
	}
	if stored.Score != 75 {
		t.Errorf("persisted score = %d, want 75", stored.Score)
	}
	if len(stored.Activities) != 1 {
		t.Errorf("persisted activities = %d, want 1", len(stored.Activities))
	}
	if stored.Contact.Email != "jo@example.com" {
		t.Errorf("persisted email = %q, want jo@example.com", stored.Contact.Email)
	}
}

func TestRecordActivityAppendsHistory(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	st := store.NewMemoryStore()
	svc := NewScoringService(st)
	svc.SetClock(fixedClock(now))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := svc.RecordActivity(ctx, "lead-1", activityAt(models.ActivityPropertyView, now), nil); err != nil {
			t.Fatalf("RecordActivity() error: %v", err)
		}
	}

	stored, err := st.LoadProfile(ctx, "lead-1")
	if err != nil {
		t.Fatalf("LoadProfile() error: %v", err)
	}
	if len(stored.Activities) != 3 {
		t.Errorf("activities = %d, want 3", len(stored.Activities))
	}
	// 50 + 5*(1+0.9+0.8) = 63.5, rounds up
	if stored.Score != 64 {
		t.Errorf("score = %d, want 64", stored.Score)
	}
}

func TestHotSignalFiresOncePerUpgrade(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	st := store.NewMemoryStore()
	svc := NewScoringService(st)
	svc.SetClock(fixedClock(now))

	hotFires := 0
	svc.OnLeadBecameHot(func(ctx context.Context, update *ScoreUpdate) {
		hotFires++
	})
	updates := 0
	svc.OnScoreUpdated(func(ctx context.Context, update *ScoreUpdate) {
		updates++
	})

	ctx := context.Background()
	// 75 (WARM), then 105 (HOT, fires), then stays HOT (no fire)
	sequence := []models.ActivityKind{
		models.ActivityContactForm,
		models.ActivityPhoneCallRequest,
		models.ActivityEmailOpen,
	}
	for _, kind := range sequence {
		if _, err := svc.RecordActivity(ctx, "lead-1", activityAt(kind, now), nil); err != nil {
			t.Fatalf("RecordActivity(%s) error: %v", kind, err)
		}
	}

	if hotFires != 1 {
		t.Errorf("hot signal fired %d times, want exactly 1", hotFires)
	}
	if updates != 3 {
		t.Errorf("update signal fired %d times, want 3", updates)
	}
}

func TestGetProfileAbsentIdentity(t *testing.T) {
	svc := NewScoringService(store.NewMemoryStore())
	profile, err := svc.GetProfile(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("GetProfile() error: %v", err)
	}
	if profile != nil {
		t.Errorf("GetProfile() = %+v, want nil for absent identity", profile)
	}
}

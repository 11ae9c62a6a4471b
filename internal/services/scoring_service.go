package services

import (
	"context"
	"errors"
	"log"
	"math"
	"sync"
	"time"

	"leadpulse/internal/models"
	"leadpulse/internal/store"
)

// Decay and dampening constants. Each activity's weight loses 10% per day
// of age, floored at 50% of nominal; the Nth occurrence of the same kind
// loses 10% per prior occurrence, floored at 30% of nominal.
const (
	recencyDecayPerDay  = 0.1
	recencyFloor        = 0.5
	frequencyDampPerHit = 0.1
	frequencyFloor      = 0.3
)

// ScoreUpdate describes one scoring transition for downstream consumers
type ScoreUpdate struct {
	Profile     *models.LeadProfile
	Activity    models.Activity
	OldScore    int
	NewScore    int
	OldCategory models.LeadCategory
	NewCategory models.LeadCategory
}

// ScoreUpdateHandler is a callback invoked after every recorded activity
type ScoreUpdateHandler func(ctx context.Context, update *ScoreUpdate)

// ScoringService maintains per-lead profiles and recomputes the bounded
// score from the full activity history on every new event.
type ScoringService struct {
	store store.Store
	clock func() time.Time

	// Per-identity locks serialize activity processing for one identity
	// while leaving unrelated identities fully parallel.
	identityMu map[string]*sync.Mutex
	mapMu      sync.Mutex

	handlersMu      sync.RWMutex
	updateHandlers  []ScoreUpdateHandler
	hotLeadHandlers []ScoreUpdateHandler
}

// NewScoringService creates a scoring service over the given store
func NewScoringService(st store.Store) *ScoringService {
	return &ScoringService{
		store:      st,
		clock:      time.Now,
		identityMu: make(map[string]*sync.Mutex),
	}
}

// SetClock overrides the time source (tests fix the clock for determinism)
func (s *ScoringService) SetClock(clock func() time.Time) {
	s.clock = clock
}

// OnScoreUpdated registers a handler fired after every score recompute
func (s *ScoringService) OnScoreUpdated(handler ScoreUpdateHandler) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.updateHandlers = append(s.updateHandlers, handler)
}

// OnLeadBecameHot registers a handler fired once per upgrade into HOT
func (s *ScoringService) OnLeadBecameHot(handler ScoreUpdateHandler) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.hotLeadHandlers = append(s.hotLeadHandlers, handler)
}

func (s *ScoringService) lockIdentity(identityID string) *sync.Mutex {
	s.mapMu.Lock()
	mu, ok := s.identityMu[identityID]
	if !ok {
		mu = &sync.Mutex{}
		s.identityMu[identityID] = mu
	}
	s.mapMu.Unlock()
	return mu
}

// RecordActivity appends the activity to the identity's profile (creating
// it at the base score if absent), recomputes the full score and returns
// the before/after transition. Activities for one identity are processed
// in submission order.
func (s *ScoringService) RecordActivity(ctx context.Context, identityID string, activity models.Activity, contact *models.ContactInfo) (*ScoreUpdate, error) {
	mu := s.lockIdentity(identityID)
	mu.Lock()
	defer mu.Unlock()

	now := s.clock()
	if activity.Timestamp.IsZero() {
		activity.Timestamp = now
	}

	profile, err := s.store.LoadProfile(ctx, identityID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		profile = models.NewLeadProfile(identityID, now)
	case err != nil:
		// A store outage must not block the user-visible path: treat the
		// identity as having no prior history and keep going.
		log.Printf("⚠️ [SCORING] Store read failed for %s, starting fresh profile: %v", identityID, err)
		profile = models.NewLeadProfile(identityID, now)
	}

	if contact != nil {
		mergeContact(&profile.Contact, *contact)
	}

	oldScore := profile.Score
	oldCategory := profile.Category

	profile.Activities = append(profile.Activities, activity)
	profile.Score = ComputeScore(profile.Activities, now)
	profile.Category = models.CategoryForScore(profile.Score)
	profile.LastActivityAt = activity.Timestamp

	// SaveProfile upserts scalar state; the activity itself goes through the
	// append-only path so recorded history is never rewritten.
	if err := s.store.SaveProfile(ctx, profile); err != nil {
		log.Printf("⚠️ [SCORING] Failed to persist profile %s: %v", identityID, err)
	} else if err := s.store.AppendActivity(ctx, identityID, activity); err != nil {
		log.Printf("⚠️ [SCORING] Failed to persist activity for %s: %v", identityID, err)
	}

	update := &ScoreUpdate{
		Profile:     profile,
		Activity:    activity,
		OldScore:    oldScore,
		NewScore:    profile.Score,
		OldCategory: oldCategory,
		NewCategory: profile.Category,
	}

	s.handlersMu.RLock()
	updateHandlers := append([]ScoreUpdateHandler(nil), s.updateHandlers...)
	hotHandlers := append([]ScoreUpdateHandler(nil), s.hotLeadHandlers...)
	s.handlersMu.RUnlock()

	for _, handler := range updateHandlers {
		handler(ctx, update)
	}

	// Fires exactly once per upgrade into HOT, not once per qualifying event
	if oldCategory != models.CategoryHot && profile.Category == models.CategoryHot {
		log.Printf("🔥 [SCORING] Lead %s became HOT (%d → %d)", identityID, oldScore, profile.Score)
		for _, handler := range hotHandlers {
			handler(ctx, update)
		}
	}

	return update, nil
}

// GetProfile returns the current profile for an identity, or nil if absent
func (s *ScoringService) GetProfile(ctx context.Context, identityID string) (*models.LeadProfile, error) {
	profile, err := s.store.LoadProfile(ctx, identityID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return profile, err
}

// ComputeScore recomputes a lead score from the full ordered activity
// history. It is a pure function of the history and now: base 50, plus
// each activity's weight scaled by recency decay and frequency dampening,
// clamped to [0,150]. Replaying the same history at the same instant
// always yields the same score.
func ComputeScore(activities []models.Activity, now time.Time) int {
	score := float64(models.ScoreBase)
	occurrences := make(map[models.ActivityKind]int, len(activities))

	for _, activity := range activities {
		weight := float64(activity.Kind.Weight())
		if weight == 0 {
			continue
		}

		days := now.Sub(activity.Timestamp).Hours() / 24.0
		if days < 0 {
			days = 0
		}
		decay := 1.0 - recencyDecayPerDay*days
		if decay < recencyFloor {
			decay = recencyFloor
		}

		occurrences[activity.Kind]++
		damp := 1.0 - frequencyDampPerHit*float64(occurrences[activity.Kind]-1)
		if damp < frequencyFloor {
			damp = frequencyFloor
		}

		score += weight * decay * damp
	}

	final := int(math.Round(score))
	if final < models.ScoreMin {
		final = models.ScoreMin
	}
	if final > models.ScoreMax {
		final = models.ScoreMax
	}
	return final
}

// mergeContact fills in contact channels as they are captured, never
// overwriting a known channel with an empty one
func mergeContact(dst *models.ContactInfo, src models.ContactInfo) {
	if src.Email != "" {
		dst.Email = src.Email
	}
	if src.Phone != "" {
		dst.Phone = src.Phone
	}
	if src.Name != "" {
		dst.Name = src.Name
	}
}

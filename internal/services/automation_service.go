package services

import (
	"context"
	"errors"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"leadpulse/internal/models"
	"leadpulse/internal/store"
)

// Automation delays. welcome goes out immediately; the rest form the
// default nurture cadence.
const (
	DelayWelcome         = 0
	DelayMarketInsights  = 3 * 24 * time.Hour
	DelayAgentIntro      = 7 * 24 * time.Hour
	DelayRecommendations = 14 * 24 * time.Hour
	DelayReport          = 30 * 24 * time.Hour

	// Jobs in a terminal state older than this are purged from the
	// active working set.
	JobRetention = 7 * 24 * time.Hour

	// Per-job dispatch timeout inside a tick; a hung sender must not
	// consume the whole tick interval.
	defaultJobTimeout = 10 * time.Second

	// Window for the mortgage-tool recommendation trigger
	mortgageTriggerWindow = 24 * time.Hour
)

// AgentAssignedHandler is notified when a hot lead gets an agent
type AgentAssignedHandler func(ctx context.Context, profile *models.LeadProfile, agent *models.Agent)

// AutomationService watches score transitions and activity patterns,
// schedules delayed communication jobs, and executes due jobs on each
// Tick. State machine per (identity, kind):
// absent -> scheduled -> completed | failed. Failed jobs are not retried
// automatically; an explicit re-trigger is required.
type AutomationService struct {
	store      store.Store
	dispatcher Dispatcher
	assigner   AgentAssigner
	clock      func() time.Time
	jobTimeout time.Duration

	handlersMu       sync.RWMutex
	assignedHandlers []AgentAssignedHandler
}

// NewAutomationService creates the scheduler with its collaborators
func NewAutomationService(st store.Store, dispatcher Dispatcher, assigner AgentAssigner) *AutomationService {
	return &AutomationService{
		store:      st,
		dispatcher: dispatcher,
		assigner:   assigner,
		clock:      time.Now,
		jobTimeout: defaultJobTimeout,
	}
}

// SetClock overrides the time source (tests fix the clock)
func (s *AutomationService) SetClock(clock func() time.Time) {
	s.clock = clock
}

// SetJobTimeout overrides the per-job dispatch timeout
func (s *AutomationService) SetJobTimeout(timeout time.Duration) {
	s.jobTimeout = timeout
}

// OnAgentAssigned registers a handler fired after a hot-lead assignment
func (s *AutomationService) OnAgentAssigned(handler AgentAssignedHandler) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.assignedHandlers = append(s.assignedHandlers, handler)
}

// HandleScoreUpdate adapts the service to the scoring engine's signal
func (s *AutomationService) HandleScoreUpdate(ctx context.Context, update *ScoreUpdate) {
	s.EvaluateTriggers(ctx, update.Profile, update.OldScore, update.NewScore)
}

// EvaluateTriggers runs the deterministic rule set after a score update
func (s *AutomationService) EvaluateTriggers(ctx context.Context, profile *models.LeadProfile, oldScore, newScore int) {
	now := s.clock()
	triggered := false

	// Welcome: first time a contact channel is known, zero delay
	if profile.Contact.HasChannel() {
		if s.scheduleOnce(ctx, profile.IdentityID, models.AutomationWelcome, now, DelayWelcome) {
			triggered = true
		}
	}

	// Crossing into HOT gets an immediate agent assignment, not a delayed job
	if oldScore < models.HotThreshold && newScore >= models.HotThreshold {
		s.assignAgent(ctx, profile)
		triggered = true
	}

	// Crossing into WARM schedules the agent introduction
	if oldScore < models.WarmThreshold && newScore >= models.WarmThreshold {
		if s.scheduleOnce(ctx, profile.IdentityID, models.AutomationAgentIntro, now, DelayAgentIntro) {
			triggered = true
		}
	}

	// Recent mortgage-tool use schedules property recommendations
	if s.hasRecentActivity(profile, models.ActivityMortgageCalcUse, now) {
		if s.scheduleOnce(ctx, profile.IdentityID, models.AutomationRecommendations, now, DelayRecommendations) {
			triggered = true
		}
	}

	// Default nurture cadence: scheduled once per identity the first time
	// any trigger fires
	if triggered {
		s.scheduleOnce(ctx, profile.IdentityID, models.AutomationMarketInsights, now, DelayMarketInsights)
		s.scheduleOnce(ctx, profile.IdentityID, models.AutomationReport, now, DelayReport)
	}
}

// scheduleOnce creates a job for (identity, kind) if none exists yet.
// Returns true only when a new job was scheduled.
func (s *AutomationService) scheduleOnce(ctx context.Context, identityID string, kind models.AutomationKind, now time.Time, delay time.Duration) bool {
	_, err := s.store.GetJob(ctx, identityID, kind)
	if err == nil {
		return false // job already exists in some state
	}
	if !errors.Is(err, store.ErrNotFound) {
		log.Printf("⚠️ [AUTOMATION] Job lookup failed for %s/%s: %v", identityID, kind, err)
		return false
	}

	job := &models.AutomationJob{
		JobID:        uuid.New().String(),
		IdentityID:   identityID,
		Kind:         kind,
		Status:       models.JobScheduled,
		ScheduledFor: now.Add(delay),
		CreatedAt:    now,
	}
	if err := s.store.SaveJob(ctx, job); err != nil {
		log.Printf("⚠️ [AUTOMATION] Failed to schedule %s for %s: %v", kind, identityID, err)
		return false
	}

	log.Printf("📅 [AUTOMATION] Scheduled %s for %s at %s", kind, identityID, job.ScheduledFor.Format(time.RFC3339))
	return true
}

// assignAgent picks an agent for a newly hot lead and records it
func (s *AutomationService) assignAgent(ctx context.Context, profile *models.LeadProfile) {
	if profile.AssignedAgentID != "" {
		return
	}

	agent, err := s.assigner.Assign(ctx, profile)
	if err != nil {
		log.Printf("⚠️ [AUTOMATION] Agent assignment failed for %s: %v", profile.IdentityID, err)
		return
	}

	profile.AssignedAgentID = agent.AgentID
	if err := s.store.SaveProfile(ctx, profile); err != nil {
		log.Printf("⚠️ [AUTOMATION] Failed to persist assignment for %s: %v", profile.IdentityID, err)
	}

	log.Printf("🤝 [AUTOMATION] Assigned agent %s to hot lead %s", agent.AgentID, profile.IdentityID)

	s.handlersMu.RLock()
	handlers := append([]AgentAssignedHandler(nil), s.assignedHandlers...)
	s.handlersMu.RUnlock()
	for _, handler := range handlers {
		handler(ctx, profile, agent)
	}
}

// hasRecentActivity reports whether the profile recorded the kind within
// the mortgage trigger window before now
func (s *AutomationService) hasRecentActivity(profile *models.LeadProfile, kind models.ActivityKind, now time.Time) bool {
	cutoff := now.Add(-mortgageTriggerWindow)
	for i := len(profile.Activities) - 1; i >= 0; i-- {
		activity := profile.Activities[i]
		if activity.Kind == kind && activity.Timestamp.After(cutoff) {
			return true
		}
	}
	return false
}

// Tick executes every scheduled job whose due time has passed, exactly
// once each. A job's dispatch failure moves it to failed with the error
// recorded and never blocks the other due jobs in the same tick.
func (s *AutomationService) Tick(ctx context.Context, now time.Time) (executed, failed int) {
	due, err := s.store.ListDueJobs(ctx, now)
	if err != nil {
		log.Printf("⚠️ [AUTOMATION] Due-job scan failed: %v", err)
		return 0, 0
	}

	for _, job := range due {
		if s.executeJob(ctx, job, now) {
			executed++
		} else {
			failed++
		}
	}

	if executed+failed > 0 {
		log.Printf("✅ [AUTOMATION] Tick processed %d jobs (%d completed, %d failed)", executed+failed, executed, failed)
	}
	return executed, failed
}

// executeJob dispatches one due job and records its terminal state
func (s *AutomationService) executeJob(ctx context.Context, job *models.AutomationJob, now time.Time) bool {
	contact := models.ContactInfo{}
	contextData := map[string]string{"identity_id": job.IdentityID}

	profile, err := s.store.LoadProfile(ctx, job.IdentityID)
	if err == nil {
		contact = profile.Contact
		contextData["score"] = strconv.Itoa(profile.Score)
		contextData["category"] = string(profile.Category)
		if profile.AssignedAgentID != "" {
			contextData["agent_id"] = profile.AssignedAgentID
		}
	} else {
		log.Printf("⚠️ [AUTOMATION] Profile load failed for job %s: %v", job.JobID, err)
	}

	jobCtx, cancel := context.WithTimeout(ctx, s.jobTimeout)
	dispatchErr := s.dispatcher.Execute(jobCtx, job.Kind, contact, contextData)
	cancel()

	executedAt := now
	job.ExecutedAt = &executedAt
	if dispatchErr != nil {
		job.Status = models.JobFailed
		job.LastError = dispatchErr.Error()
		log.Printf("❌ [AUTOMATION] Job %s (%s for %s) failed: %v", job.JobID, job.Kind, job.IdentityID, dispatchErr)
	} else {
		job.Status = models.JobCompleted
		job.LastError = ""
	}

	if err := s.store.SaveJob(ctx, job); err != nil {
		log.Printf("⚠️ [AUTOMATION] Failed to persist job %s: %v", job.JobID, err)
	}

	if metrics := GetMetrics(); metrics != nil {
		metrics.JobsExecuted.WithLabelValues(string(job.Kind), string(job.Status)).Inc()
	}
	return dispatchErr == nil
}

// PurgeExpiredJobs removes terminal jobs older than the retention window
func (s *AutomationService) PurgeExpiredJobs(ctx context.Context, now time.Time) int64 {
	removed, err := s.store.DeleteTerminalJobsBefore(ctx, now.Add(-JobRetention))
	if err != nil {
		log.Printf("⚠️ [AUTOMATION] Job GC failed: %v", err)
		return 0
	}
	if removed > 0 {
		log.Printf("🧹 [AUTOMATION] Purged %d terminal jobs", removed)
	}
	return removed
}

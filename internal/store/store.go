package store

import (
	"context"
	"errors"
	"time"

	"leadpulse/internal/models"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("record not found")

// Store is the persistence collaborator consumed by the engagement engine.
// Every call is treated as potentially slow; callers that need ordering
// hold at most their own per-identity lock across a call, never a global
// one.
type Store interface {
	// Lead profiles
	LoadProfile(ctx context.Context, identityID string) (*models.LeadProfile, error)
	SaveProfile(ctx context.Context, profile *models.LeadProfile) error
	AppendActivity(ctx context.Context, identityID string, activity models.Activity) error
	// ListLeads returns one page sorted by score descending then
	// last-activity descending, plus the total lead count.
	ListLeads(ctx context.Context, limit, offset int) ([]*models.LeadProfile, int64, error)
	CountByCategory(ctx context.Context) (map[models.LeadCategory]int64, error)

	// Automation jobs
	SaveJob(ctx context.Context, job *models.AutomationJob) error
	GetJob(ctx context.Context, identityID string, kind models.AutomationKind) (*models.AutomationJob, error)
	ListDueJobs(ctx context.Context, now time.Time) ([]*models.AutomationJob, error)
	ListJobsForIdentity(ctx context.Context, identityID string) ([]*models.AutomationJob, error)
	CountJobsByStatus(ctx context.Context) (map[models.JobStatus]int64, error)
	// DeleteTerminalJobsBefore purges completed/failed jobs older than cutoff
	// from the active working set, returning the number removed.
	DeleteTerminalJobsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Agent pool
	ListAgents(ctx context.Context) ([]*models.Agent, error)
}

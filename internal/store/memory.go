package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"leadpulse/internal/models"
)

// MemoryStore is an in-process Store implementation. It backs tests and
// single-node deployments without MongoDB. Writes to one identity are
// serialized by the store mutex; reads return copies so callers never
// share mutable state with the store.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]*models.LeadProfile
	jobs     map[string]*models.AutomationJob // identity|kind -> job
	agents   []*models.Agent
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles: make(map[string]*models.LeadProfile),
		jobs:     make(map[string]*models.AutomationJob),
	}
}

func jobKey(identityID string, kind models.AutomationKind) string {
	return identityID + "|" + string(kind)
}

func copyProfile(p *models.LeadProfile) *models.LeadProfile {
	cp := *p
	cp.Activities = make([]models.Activity, len(p.Activities))
	copy(cp.Activities, p.Activities)
	return &cp
}

func copyJob(j *models.AutomationJob) *models.AutomationJob {
	cp := *j
	return &cp
}

// SeedAgents replaces the assignment pool (test and bootstrap helper)
func (s *MemoryStore) SeedAgents(agents []*models.Agent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents = agents
}

// LoadProfile returns a copy of the stored profile or ErrNotFound
func (s *MemoryStore) LoadProfile(_ context.Context, identityID string) (*models.LeadProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[identityID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyProfile(p), nil
}

// SaveProfile upserts the profile's scalar state (score, category,
// contact, timestamps). The activity list is owned by AppendActivity and
// is never overwritten here.
func (s *MemoryStore) SaveProfile(_ context.Context, profile *models.LeadProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.profiles[profile.IdentityID]
	if !ok {
		cp := copyProfile(profile)
		cp.Activities = make([]models.Activity, 0)
		s.profiles[profile.IdentityID] = cp
		return nil
	}
	existing.Contact = profile.Contact
	existing.Score = profile.Score
	existing.Category = profile.Category
	existing.AssignedAgentID = profile.AssignedAgentID
	existing.LastActivityAt = profile.LastActivityAt
	return nil
}

// AppendActivity appends to the stored profile's activity list
func (s *MemoryStore) AppendActivity(_ context.Context, identityID string, activity models.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[identityID]
	if !ok {
		return ErrNotFound
	}
	p.Activities = append(p.Activities, activity)
	p.LastActivityAt = activity.Timestamp
	return nil
}

// ListLeads returns a page sorted by score desc, then last-activity desc
func (s *MemoryStore) ListLeads(_ context.Context, limit, offset int) ([]*models.LeadProfile, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*models.LeadProfile, 0, len(s.profiles))
	for _, p := range s.profiles {
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Score != all[j].Score {
			return all[i].Score > all[j].Score
		}
		return all[i].LastActivityAt.After(all[j].LastActivityAt)
	})

	total := int64(len(all))
	if offset >= len(all) {
		return []*models.LeadProfile{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(all) {
		end = len(all)
	}

	page := make([]*models.LeadProfile, 0, end-offset)
	for _, p := range all[offset:end] {
		page = append(page, copyProfile(p))
	}
	return page, total, nil
}

// CountByCategory tallies profiles per category
func (s *MemoryStore) CountByCategory(_ context.Context) (map[models.LeadCategory]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[models.LeadCategory]int64)
	for _, p := range s.profiles {
		counts[p.Category]++
	}
	return counts, nil
}

// SaveJob stores a copy of the job keyed by (identity, kind)
func (s *MemoryStore) SaveJob(_ context.Context, job *models.AutomationJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[jobKey(job.IdentityID, job.Kind)] = copyJob(job)
	return nil
}

// GetJob returns the job for (identity, kind) or ErrNotFound
func (s *MemoryStore) GetJob(_ context.Context, identityID string, kind models.AutomationKind) (*models.AutomationJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[jobKey(identityID, kind)]
	if !ok {
		return nil, ErrNotFound
	}
	return copyJob(j), nil
}

// ListDueJobs returns scheduled jobs whose due time has passed
func (s *MemoryStore) ListDueJobs(_ context.Context, now time.Time) ([]*models.AutomationJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	due := make([]*models.AutomationJob, 0)
	for _, j := range s.jobs {
		if j.Status == models.JobScheduled && !j.ScheduledFor.After(now) {
			due = append(due, copyJob(j))
		}
	}
	sort.Slice(due, func(i, k int) bool { return due[i].ScheduledFor.Before(due[k].ScheduledFor) })
	return due, nil
}

// ListJobsForIdentity returns all jobs for one identity
func (s *MemoryStore) ListJobsForIdentity(_ context.Context, identityID string) ([]*models.AutomationJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.AutomationJob, 0)
	for _, j := range s.jobs {
		if j.IdentityID == identityID {
			out = append(out, copyJob(j))
		}
	}
	return out, nil
}

// CountJobsByStatus tallies jobs per lifecycle status
func (s *MemoryStore) CountJobsByStatus(_ context.Context) (map[models.JobStatus]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[models.JobStatus]int64)
	for _, j := range s.jobs {
		counts[j.Status]++
	}
	return counts, nil
}

// DeleteTerminalJobsBefore purges terminal jobs executed before cutoff
func (s *MemoryStore) DeleteTerminalJobsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for key, j := range s.jobs {
		if j.Terminal() && j.ExecutedAt != nil && j.ExecutedAt.Before(cutoff) {
			delete(s.jobs, key)
			removed++
		}
	}
	return removed, nil
}

// ListAgents returns the assignment pool
func (s *MemoryStore) ListAgents(_ context.Context) ([]*models.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Agent, len(s.agents))
	copy(out, s.agents)
	return out, nil
}

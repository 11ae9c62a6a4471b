package services

import (
	"context"
	"errors"
	"time"

	cache "github.com/patrickmn/go-cache"

	"leadpulse/internal/models"
	"leadpulse/internal/store"
)

const statsCacheKey = "aggregate_stats"

// AggregateStats summarizes the lead pipeline for dashboards
type AggregateStats struct {
	TotalLeads       int64                         `json:"total_leads"`
	CountsByCategory map[models.LeadCategory]int64 `json:"counts_by_category"`
	AverageScore     float64                       `json:"average_score"`
	JobCounts        map[models.JobStatus]int64    `json:"automation_job_counts"`
}

// StatsService is the read-side query surface over the lead store, with a
// short TTL cache so dashboard polling does not hammer the database.
type StatsService struct {
	store store.Store
	cache *cache.Cache
}

// NewStatsService creates a stats service over the store
func NewStatsService(st store.Store) *StatsService {
	return &StatsService{
		store: st,
		cache: cache.New(30*time.Second, 5*time.Minute),
	}
}

// GetProfile returns the profile for one identity, or nil if absent
func (s *StatsService) GetProfile(ctx context.Context, identityID string) (*models.LeadProfile, error) {
	profile, err := s.store.LoadProfile(ctx, identityID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return profile, err
}

// ListLeads returns one page of leads sorted by score descending then
// last-activity descending, plus the total count
func (s *StatsService) ListLeads(ctx context.Context, limit, offset int) ([]*models.LeadProfile, int64, error) {
	return s.store.ListLeads(ctx, limit, offset)
}

// ListJobs returns all automation jobs for one identity
func (s *StatsService) ListJobs(ctx context.Context, identityID string) ([]*models.AutomationJob, error) {
	return s.store.ListJobsForIdentity(ctx, identityID)
}

// GetAggregateStats computes pipeline-wide stats, cached for 30 seconds
func (s *StatsService) GetAggregateStats(ctx context.Context) (*AggregateStats, error) {
	if cached, found := s.cache.Get(statsCacheKey); found {
		return cached.(*AggregateStats), nil
	}

	categoryCounts, err := s.store.CountByCategory(ctx)
	if err != nil {
		return nil, err
	}
	jobCounts, err := s.store.CountJobsByStatus(ctx)
	if err != nil {
		return nil, err
	}

	var total int64
	for _, count := range categoryCounts {
		total += count
	}

	stats := &AggregateStats{
		TotalLeads:       total,
		CountsByCategory: categoryCounts,
		AverageScore:     s.averageScore(ctx, total),
		JobCounts:        jobCounts,
	}

	s.cache.Set(statsCacheKey, stats, cache.DefaultExpiration)
	return stats, nil
}

// averageScore walks the lead pages and averages scores. Small fleets of
// leads make this acceptable; the result sits behind the stats cache.
func (s *StatsService) averageScore(ctx context.Context, total int64) float64 {
	if total == 0 {
		return 0
	}

	const pageSize = 500
	var sum int64
	var counted int64
	offset := 0
	for {
		page, _, err := s.store.ListLeads(ctx, pageSize, offset)
		if err != nil || len(page) == 0 {
			break
		}
		for _, profile := range page {
			sum += int64(profile.Score)
			counted++
		}
		if len(page) < pageSize {
			break
		}
		offset += pageSize
	}

	if counted == 0 {
		return 0
	}
	return float64(sum) / float64(counted)
}

// InvalidateStats clears the cached aggregate (call after bulk changes)
func (s *StatsService) InvalidateStats() {
	s.cache.Delete(statsCacheKey)
}

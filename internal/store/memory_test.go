package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"leadpulse/internal/models"
)

func TestSaveProfileDoesNotTouchActivities(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	profile := models.NewLeadProfile("lead-1", now)
	if err := st.SaveProfile(ctx, profile); err != nil {
		t.Fatalf("SaveProfile() error: %v", err)
	}
	if err := st.AppendActivity(ctx, "lead-1", models.Activity{Kind: models.ActivityPropertyView, Timestamp: now}); err != nil {
		t.Fatalf("AppendActivity() error: %v", err)
	}

	// A scalar update carrying a stale (even non-empty) activity slice
	// must not rewrite recorded history
	profile.Score = 60
	profile.Activities = []models.Activity{
		{Kind: models.ActivityContactForm, Timestamp: now},
		{Kind: models.ActivityContactForm, Timestamp: now},
	}
	if err := st.SaveProfile(ctx, profile); err != nil {
		t.Fatalf("SaveProfile() error: %v", err)
	}

	stored, err := st.LoadProfile(ctx, "lead-1")
	if err != nil {
		t.Fatalf("LoadProfile() error: %v", err)
	}
	if stored.Score != 60 {
		t.Errorf("score = %d, want 60", stored.Score)
	}
	if len(stored.Activities) != 1 || stored.Activities[0].Kind != models.ActivityPropertyView {
		t.Errorf("activities rewritten by SaveProfile: %+v", stored.Activities)
	}
}

func TestLoadProfileReturnsCopy(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	if err := st.SaveProfile(ctx, models.NewLeadProfile("lead-1", now)); err != nil {
		t.Fatalf("SaveProfile() error: %v", err)
	}

	first, _ := st.LoadProfile(ctx, "lead-1")
	first.Score = 999

	second, _ := st.LoadProfile(ctx, "lead-1")
	if second.Score == 999 {
		t.Error("mutating a loaded profile leaked into the store")
	}
}

func TestAppendActivityUnknownIdentity(t *testing.T) {
	st := NewMemoryStore()
	err := st.AppendActivity(context.Background(), "nobody", models.Activity{Kind: models.ActivityPropertyView})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("AppendActivity(unknown) = %v, want ErrNotFound", err)
	}
}

func TestListLeadsOrderAndPaging(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	seed := []struct {
		identity string
		score    int
		lastAt   time.Time
	}{
		{"low", 40, base},
		{"high", 120, base},
		{"mid-old", 70, base.Add(-time.Hour)},
		{"mid-new", 70, base},
	}
	for _, s := range seed {
		p := models.NewLeadProfile(s.identity, base)
		p.Score = s.score
		p.Category = models.CategoryForScore(s.score)
		p.LastActivityAt = s.lastAt
		if err := st.SaveProfile(ctx, p); err != nil {
			t.Fatalf("SaveProfile(%s) error: %v", s.identity, err)
		}
	}

	page, total, err := st.ListLeads(ctx, 10, 0)
	if err != nil {
		t.Fatalf("ListLeads() error: %v", err)
	}
	if total != 4 {
		t.Errorf("total = %d, want 4", total)
	}
	wantOrder := []string{"high", "mid-new", "mid-old", "low"}
	for i, want := range wantOrder {
		if page[i].IdentityID != want {
			t.Errorf("position %d = %s, want %s", i, page[i].IdentityID, want)
		}
	}

	page, total, err = st.ListLeads(ctx, 2, 1)
	if err != nil {
		t.Fatalf("ListLeads() error: %v", err)
	}
	if total != 4 || len(page) != 2 {
		t.Fatalf("page = %d items (total %d), want 2 of 4", len(page), total)
	}
	if page[0].IdentityID != "mid-new" || page[1].IdentityID != "mid-old" {
		t.Errorf("offset page = [%s, %s], want [mid-new, mid-old]", page[0].IdentityID, page[1].IdentityID)
	}

	page, _, err = st.ListLeads(ctx, 10, 100)
	if err != nil || len(page) != 0 {
		t.Errorf("out-of-range offset: page = %v, err = %v", page, err)
	}
}

func TestCountByCategory(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	scores := map[string]int{"a": 20, "b": 55, "c": 60, "d": 100}
	for identity, score := range scores {
		p := models.NewLeadProfile(identity, base)
		p.Score = score
		p.Category = models.CategoryForScore(score)
		if err := st.SaveProfile(ctx, p); err != nil {
			t.Fatalf("SaveProfile(%s) error: %v", identity, err)
		}
	}

	counts, err := st.CountByCategory(ctx)
	if err != nil {
		t.Fatalf("CountByCategory() error: %v", err)
	}
	if counts[models.CategoryCold] != 1 || counts[models.CategoryWarm] != 2 || counts[models.CategoryHot] != 1 {
		t.Errorf("counts = %v, want COLD:1 WARM:2 HOT:1", counts)
	}
}

func TestJobLifecycle(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	job := &models.AutomationJob{
		JobID:        "j1",
		IdentityID:   "lead-1",
		Kind:         models.AutomationWelcome,
		Status:       models.JobScheduled,
		ScheduledFor: now,
		CreatedAt:    now,
	}
	if err := st.SaveJob(ctx, job); err != nil {
		t.Fatalf("SaveJob() error: %v", err)
	}

	got, err := st.GetJob(ctx, "lead-1", models.AutomationWelcome)
	if err != nil {
		t.Fatalf("GetJob() error: %v", err)
	}
	if got.JobID != "j1" {
		t.Errorf("JobID = %s, want j1", got.JobID)
	}

	if _, err := st.GetJob(ctx, "lead-1", models.AutomationReport); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetJob(absent kind) = %v, want ErrNotFound", err)
	}

	due, err := st.ListDueJobs(ctx, now)
	if err != nil {
		t.Fatalf("ListDueJobs() error: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("due jobs = %d, want 1", len(due))
	}

	// Not due before its time
	due, _ = st.ListDueJobs(ctx, now.Add(-time.Second))
	if len(due) != 0 {
		t.Errorf("job due early: %v", due)
	}

	// Terminal jobs drop out of the due scan
	executedAt := now
	job.Status = models.JobCompleted
	job.ExecutedAt = &executedAt
	if err := st.SaveJob(ctx, job); err != nil {
		t.Fatalf("SaveJob() error: %v", err)
	}
	due, _ = st.ListDueJobs(ctx, now.Add(time.Hour))
	if len(due) != 0 {
		t.Errorf("completed job still listed as due")
	}
}

func TestDueJobsSortedByDueTime(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	kinds := []struct {
		kind  models.AutomationKind
		delay time.Duration
	}{
		{models.AutomationReport, -time.Minute},
		{models.AutomationWelcome, -time.Hour},
		{models.AutomationMarketInsights, -30 * time.Minute},
	}
	for i, k := range kinds {
		job := &models.AutomationJob{
			JobID:        string(rune('a' + i)),
			IdentityID:   "lead-1",
			Kind:         k.kind,
			Status:       models.JobScheduled,
			ScheduledFor: now.Add(k.delay),
			CreatedAt:    now,
		}
		if err := st.SaveJob(ctx, job); err != nil {
			t.Fatalf("SaveJob() error: %v", err)
		}
	}

	due, err := st.ListDueJobs(ctx, now)
	if err != nil {
		t.Fatalf("ListDueJobs() error: %v", err)
	}
	want := []models.AutomationKind{models.AutomationWelcome, models.AutomationMarketInsights, models.AutomationReport}
	for i, kind := range want {
		if due[i].Kind != kind {
			t.Errorf("due[%d] = %s, want %s", i, due[i].Kind, kind)
		}
	}
}

func TestListAgentsReturnsSeededPool(t *testing.T) {
	st := NewMemoryStore()
	st.SeedAgents([]*models.Agent{
		{AgentID: "agent-1", Available: true},
		{AgentID: "agent-2", Available: false},
	})

	agents, err := st.ListAgents(context.Background())
	if err != nil {
		t.Fatalf("ListAgents() error: %v", err)
	}
	if len(agents) != 2 {
		t.Errorf("agents = %d, want 2", len(agents))
	}
}

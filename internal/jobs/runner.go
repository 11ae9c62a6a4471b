package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"

	"leadpulse/internal/services"
)

// Runner owns the background schedules: the automation tick that fires
// due jobs, and the retention sweep that purges old terminal jobs.
type Runner struct {
	scheduler  gocron.Scheduler
	automation *services.AutomationService
}

// NewRunner creates the background job runner
func NewRunner(automation *services.AutomationService, tickInterval, gcInterval time.Duration) (*Runner, error) {
	scheduler, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	r := &Runner{
		scheduler:  scheduler,
		automation: automation,
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(tickInterval),
		gocron.NewTask(r.runTick),
		gocron.WithName("automation-tick"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register automation tick: %w", err)
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(gcInterval),
		gocron.NewTask(r.runGC),
		gocron.WithName("job-retention-sweep"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register retention sweep: %w", err)
	}

	return r, nil
}

// Start begins running the registered schedules
func (r *Runner) Start() {
	log.Println("⏰ [JOBS] Starting background job runner...")
	r.scheduler.Start()
	log.Println("✅ [JOBS] Background job runner started")
}

// Stop shuts down the scheduler, waiting for in-flight runs
func (r *Runner) Stop() error {
	log.Println("⏹️  [JOBS] Stopping background job runner...")
	return r.scheduler.Shutdown()
}

func (r *Runner) runTick() {
	ctx, cancel := context.WithTimeout(context.Background(), 55*time.Second)
	defer cancel()

	executed, failed := r.automation.Tick(ctx, time.Now().UTC())
	if executed > 0 || failed > 0 {
		log.Printf("🤖 [JOBS] Automation tick: %d executed, %d failed", executed, failed)
	}
}

func (r *Runner) runGC() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	purged := r.automation.PurgeExpiredJobs(ctx, time.Now().UTC())
	if purged > 0 {
		log.Printf("🧹 [JOBS] Retention sweep purged %d terminal jobs", purged)
	}
}

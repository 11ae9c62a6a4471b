package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AutomationKind identifies a scheduled outbound communication
type AutomationKind string

const (
	AutomationWelcome         AutomationKind = "welcome"
	AutomationMarketInsights  AutomationKind = "market_insights"
	AutomationAgentIntro      AutomationKind = "agent_intro"
	AutomationRecommendations AutomationKind = "recommendations"
	AutomationReport          AutomationKind = "report"
)

// JobStatus is the lifecycle state of an automation job.
// absent -> scheduled -> completed | failed; terminal states never
// transition back without an explicit re-trigger.
type JobStatus string

const (
	JobScheduled JobStatus = "scheduled"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// AutomationJob is one delayed outbound side effect for one identity.
// At most one active (scheduled) job exists per (identity, kind) pair.
type AutomationJob struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	JobID        string             `bson:"jobId" json:"job_id"`
	IdentityID   string             `bson:"identityId" json:"identity_id"`
	Kind         AutomationKind     `bson:"kind" json:"kind"`
	Status       JobStatus          `bson:"status" json:"status"`
	ScheduledFor time.Time          `bson:"scheduledFor" json:"scheduled_for"`
	LastError    string             `bson:"lastError,omitempty" json:"last_error,omitempty"`
	CreatedAt    time.Time          `bson:"createdAt" json:"created_at"`
	ExecutedAt   *time.Time         `bson:"executedAt,omitempty" json:"executed_at,omitempty"`
}

// Terminal reports whether the job has reached a terminal state
func (j *AutomationJob) Terminal() bool {
	return j.Status == JobCompleted || j.Status == JobFailed
}

// Agent is a member of the assignment pool for hot leads
type Agent struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	AgentID   string             `bson:"agentId" json:"agent_id"`
	Name      string             `bson:"name" json:"name"`
	Email     string             `bson:"email" json:"email"`
	Available bool               `bson:"available" json:"available"`
}

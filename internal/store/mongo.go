package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"leadpulse/internal/database"
	"leadpulse/internal/models"
)

// MongoStore is the durable Store implementation backed by MongoDB
type MongoStore struct {
	mongoDB *database.MongoDB
}

// NewMongoStore creates a Mongo-backed store
func NewMongoStore(mongoDB *database.MongoDB) *MongoStore {
	return &MongoStore{mongoDB: mongoDB}
}

func (s *MongoStore) leads() *mongo.Collection {
	return s.mongoDB.Collection(database.CollectionLeads)
}

func (s *MongoStore) jobs() *mongo.Collection {
	return s.mongoDB.Collection(database.CollectionAutomationJobs)
}

func (s *MongoStore) agents() *mongo.Collection {
	return s.mongoDB.Collection(database.CollectionAgents)
}

// LoadProfile fetches a profile by identity
func (s *MongoStore) LoadProfile(ctx context.Context, identityID string) (*models.LeadProfile, error) {
	var profile models.LeadProfile
	err := s.leads().FindOne(ctx, bson.M{"identityId": identityID}).Decode(&profile)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load profile %s: %w", identityID, err)
	}
	return &profile, nil
}

// SaveProfile upserts the profile's scalar state. The activity list is
// append-only and owned by AppendActivity, so it is only initialized on
// insert and never replaced here.
func (s *MongoStore) SaveProfile(ctx context.Context, profile *models.LeadProfile) error {
	update := bson.M{
		"$set": bson.M{
			"contact":         profile.Contact,
			"score":           profile.Score,
			"category":        profile.Category,
			"assignedAgentId": profile.AssignedAgentID,
			"lastActivityAt":  profile.LastActivityAt,
		},
		"$setOnInsert": bson.M{
			"createdAt":  profile.CreatedAt,
			"activities": []models.Activity{},
		},
	}
	opts := options.Update().SetUpsert(true)
	_, err := s.leads().UpdateOne(ctx, bson.M{"identityId": profile.IdentityID}, update, opts)
	if err != nil {
		return fmt.Errorf("failed to save profile %s: %w", profile.IdentityID, err)
	}
	return nil
}

// AppendActivity pushes one activity onto the profile's ordered list
func (s *MongoStore) AppendActivity(ctx context.Context, identityID string, activity models.Activity) error {
	update := bson.M{
		"$push": bson.M{"activities": activity},
		"$set":  bson.M{"lastActivityAt": activity.Timestamp},
	}
	result, err := s.leads().UpdateOne(ctx, bson.M{"identityId": identityID}, update)
	if err != nil {
		return fmt.Errorf("failed to append activity for %s: %w", identityID, err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ListLeads returns one page sorted by score desc then last-activity desc
func (s *MongoStore) ListLeads(ctx context.Context, limit, offset int) ([]*models.LeadProfile, int64, error) {
	total, err := s.leads().CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count leads: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "score", Value: -1}, {Key: "lastActivityAt", Value: -1}}).
		SetSkip(int64(offset))
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := s.leads().Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list leads: %w", err)
	}
	defer cursor.Close(ctx)

	var profiles []*models.LeadProfile
	if err := cursor.All(ctx, &profiles); err != nil {
		return nil, 0, fmt.Errorf("failed to decode leads: %w", err)
	}
	return profiles, total, nil
}

// CountByCategory aggregates lead counts per category
func (s *MongoStore) CountByCategory(ctx context.Context) (map[models.LeadCategory]int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{"_id": "$category", "count": bson.M{"$sum": 1}}}},
	}
	cursor, err := s.leads().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate categories: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Category models.LeadCategory `bson:"_id"`
		Count    int64               `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode category counts: %w", err)
	}

	counts := make(map[models.LeadCategory]int64)
	for _, row := range rows {
		counts[row.Category] = row.Count
	}
	return counts, nil
}

// SaveJob upserts a job keyed by (identity, kind)
func (s *MongoStore) SaveJob(ctx context.Context, job *models.AutomationJob) error {
	filter := bson.M{"identityId": job.IdentityID, "kind": job.Kind}
	opts := options.Replace().SetUpsert(true)
	_, err := s.jobs().ReplaceOne(ctx, filter, job, opts)
	if err != nil {
		return fmt.Errorf("failed to save job %s/%s: %w", job.IdentityID, job.Kind, err)
	}
	return nil
}

// GetJob fetches the job for (identity, kind)
func (s *MongoStore) GetJob(ctx context.Context, identityID string, kind models.AutomationKind) (*models.AutomationJob, error) {
	var job models.AutomationJob
	err := s.jobs().FindOne(ctx, bson.M{"identityId": identityID, "kind": kind}).Decode(&job)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job %s/%s: %w", identityID, kind, err)
	}
	return &job, nil
}

// ListDueJobs returns scheduled jobs whose due time has passed
func (s *MongoStore) ListDueJobs(ctx context.Context, now time.Time) ([]*models.AutomationJob, error) {
	filter := bson.M{
		"status":       models.JobScheduled,
		"scheduledFor": bson.M{"$lte": now},
	}
	opts := options.Find().SetSort(bson.D{{Key: "scheduledFor", Value: 1}})
	cursor, err := s.jobs().Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list due jobs: %w", err)
	}
	defer cursor.Close(ctx)

	var jobs []*models.AutomationJob
	if err := cursor.All(ctx, &jobs); err != nil {
		return nil, fmt.Errorf("failed to decode due jobs: %w", err)
	}
	return jobs, nil
}

// ListJobsForIdentity returns all jobs for one identity
func (s *MongoStore) ListJobsForIdentity(ctx context.Context, identityID string) ([]*models.AutomationJob, error) {
	cursor, err := s.jobs().Find(ctx, bson.M{"identityId": identityID})
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs for %s: %w", identityID, err)
	}
	defer cursor.Close(ctx)

	var jobs []*models.AutomationJob
	if err := cursor.All(ctx, &jobs); err != nil {
		return nil, fmt.Errorf("failed to decode jobs: %w", err)
	}
	return jobs, nil
}

// CountJobsByStatus aggregates job counts per lifecycle status
func (s *MongoStore) CountJobsByStatus(ctx context.Context) (map[models.JobStatus]int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{"_id": "$status", "count": bson.M{"$sum": 1}}}},
	}
	cursor, err := s.jobs().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate job statuses: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Status models.JobStatus `bson:"_id"`
		Count  int64            `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode job counts: %w", err)
	}

	counts := make(map[models.JobStatus]int64)
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// DeleteTerminalJobsBefore purges terminal jobs executed before cutoff
func (s *MongoStore) DeleteTerminalJobsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	filter := bson.M{
		"status":     bson.M{"$in": []models.JobStatus{models.JobCompleted, models.JobFailed}},
		"executedAt": bson.M{"$lt": cutoff},
	}
	result, err := s.jobs().DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to purge terminal jobs: %w", err)
	}
	return result.DeletedCount, nil
}

// ListAgents returns the assignment pool
func (s *MongoStore) ListAgents(ctx context.Context) ([]*models.Agent, error) {
	opts := options.Find().SetSort(bson.D{{Key: "agentId", Value: 1}})
	cursor, err := s.agents().Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer cursor.Close(ctx)

	var agents []*models.Agent
	if err := cursor.All(ctx, &agents); err != nil {
		return nil, fmt.Errorf("failed to decode agents: %w", err)
	}
	return agents, nil
}

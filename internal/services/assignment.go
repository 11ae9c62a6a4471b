package services

import (
	"context"
	"fmt"
	"sync"

	"leadpulse/internal/models"
	"leadpulse/internal/store"
)

// AgentAssigner picks an agent for a lead that crossed into HOT. The
// selection policy is pluggable; RoundRobinAssigner is the reference
// implementation.
type AgentAssigner interface {
	Assign(ctx context.Context, profile *models.LeadProfile) (*models.Agent, error)
}

// RoundRobinAssigner cycles through the available-agent pool in order
type RoundRobinAssigner struct {
	store store.Store
	mu    sync.Mutex
	next  int
}

// NewRoundRobinAssigner creates an assigner over the store's agent pool
func NewRoundRobinAssigner(st store.Store) *RoundRobinAssigner {
	return &RoundRobinAssigner{store: st}
}

// Assign returns the next available agent in rotation
func (a *RoundRobinAssigner) Assign(ctx context.Context, profile *models.LeadProfile) (*models.Agent, error) {
	agents, err := a.store.ListAgents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load agent pool: %w", err)
	}

	available := make([]*models.Agent, 0, len(agents))
	for _, agent := range agents {
		if agent.Available {
			available = append(available, agent)
		}
	}
	if len(available) == 0 {
		return nil, fmt.Errorf("no available agents for lead %s", profile.IdentityID)
	}

	a.mu.Lock()
	agent := available[a.next%len(available)]
	a.next++
	a.mu.Unlock()

	return agent, nil
}

// Package debate runs the structured multi-agent debate protocol: rounds
// of proposals, cross-critiques, votes, and weighted scoring until the
// field converges on a winner.
package debate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/swarmos-ai/swarmos/pkg/agent"
	"github.com/swarmos-ai/swarmos/pkg/models"
)

// Protocol defaults.
const (
	defaultMaxRounds            = 5
	defaultConvergenceThreshold = 0.8
	defaultScoreMargin          = 0.3
)

// Engine drives one debate to convergence.
type Engine struct {
	maxRounds            int
	convergenceThreshold float64
	scoreMargin          float64
	logger               *slog.Logger
}

// NewEngine creates a debate engine. maxRounds <= 0 selects the default.
func NewEngine(maxRounds int) *Engine {
	if maxRounds <= 0 {
		maxRounds = defaultMaxRounds
	}
	return &Engine{
		maxRounds:            maxRounds,
		convergenceThreshold: defaultConvergenceThreshold,
		scoreMargin:          defaultScoreMargin,
		logger:               slog.Default().With("component", "debate"),
	}
}

// Run executes rounds until convergence and returns the final state with
// the winner set. It needs at least two agents.
func (e *Engine) Run(ctx context.Context, agents []agent.Agent, topic, taskID string) (*models.DebateState, error) {
	if len(agents) < 2 {
		return nil, fmt.Errorf("debate requires at least 2 agents, got %d", len(agents))
	}

	state := &models.DebateState{
		TaskID:    taskID,
		Topic:     topic,
		MaxRounds: e.maxRounds,
		Votes:     make(map[string]string),
		Scores:    make(map[string]float64),
	}

	// Per-agent carryover between rounds.
	previous := make(map[string]*models.Proposal)

	for round := 1; round <= e.maxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		state.Round = round

		state.Phase = models.PhaseProposal
		proposals := e.collectProposals(ctx, agents, topic, previous, state.Critiques, round)
		if len(proposals) == 0 {
			return nil, fmt.Errorf("no proposals produced in round %d", round)
		}
		state.Proposals = append(state.Proposals, proposals...)
		for _, p := range proposals {
			previous[p.AgentID] = p
		}

		state.Phase = models.PhaseCritique
		critiques := e.collectCritiques(ctx, agents, topic, proposals, round)
		state.Critiques = append(state.Critiques, critiques...)

		// Rebuttal phase is reserved.
		state.Phase = models.PhaseRebuttal

		state.Phase = models.PhaseVoting
		votes := e.collectVotes(ctx, agents, topic, proposals)
		state.Votes = votes

		state.Phase = models.PhaseJudgment
		scores := scoreProposals(proposals, critiques, votes, len(agents))
		for id, s := range scores {
			state.Scores[id] = s
		}

		e.logger.Info("debate round scored",
			"task_id", taskID, "round", round, "proposals", len(proposals), "votes", len(votes))

		if hasConverged(round, e.maxRounds, votes, scores, e.convergenceThreshold, e.scoreMargin) {
			state.Winner = winner(proposals, scores)
			state.Converged = true
			state.Phase = models.PhaseConverged
			e.logger.Info("debate converged", "task_id", taskID, "round", round, "winner", state.Winner)
			return state, nil
		}
	}

	// Round bound acts as a convergence criterion, so this is unreachable;
	// keep the state consistent regardless.
	state.Winner = winner(state.Proposals, state.Scores)
	state.Converged = true
	state.Phase = models.PhaseConverged
	return state, nil
}

// collectProposals fans proposal generation out across the agents and
// gathers results in agent order. Failed agents sit the round out.
func (e *Engine) collectProposals(ctx context.Context, agents []agent.Agent, topic string, previous map[string]*models.Proposal, allCritiques []*models.DebateCritique, round int) []*models.Proposal {
	results := make([]*models.Proposal, len(agents))
	var wg sync.WaitGroup
	for i, a := range agents {
		wg.Add(1)
		go func(i int, a agent.Agent) {
			defer wg.Done()
			prev := previous[a.ID()]
			var received []*models.DebateCritique
			if prev != nil {
				for _, c := range allCritiques {
					if c.TargetProposalID == prev.ID {
						received = append(received, c)
					}
				}
			}
			p, err := a.GenerateProposal(ctx, topic, prev, received, round)
			if err != nil {
				e.logger.Warn("proposal failed, agent sits the round out",
					"agent_id", a.ID(), "round", round, "error", err)
				return
			}
			results[i] = p
		}(i, a)
	}
	wg.Wait()

	proposals := make([]*models.Proposal, 0, len(agents))
	for _, p := range results {
		if p != nil {
			proposals = append(proposals, p)
		}
	}
	return proposals
}

// collectCritiques has every agent critique every other agent's
// current-round proposal. Failed critiques are dropped.
func (e *Engine) collectCritiques(ctx context.Context, agents []agent.Agent, topic string, proposals []*models.Proposal, round int) []*models.DebateCritique {
	type slot struct {
		critic   agent.Agent
		proposal *models.Proposal
	}
	var slots []slot
	for _, a := range agents {
		for _, p := range proposals {
			if p.AgentID != a.ID() {
				slots = append(slots, slot{a, p})
			}
		}
	}

	results := make([]*models.DebateCritique, len(slots))
	var wg sync.WaitGroup
	for i, s := range slots {
		wg.Add(1)
		go func(i int, s slot) {
			defer wg.Done()
			c, err := s.critic.CritiqueProposal(ctx, topic, s.proposal, round)
			if err != nil {
				e.logger.Warn("critique failed",
					"critic_id", s.critic.ID(), "proposal_id", s.proposal.ID, "error", err)
				return
			}
			results[i] = c
		}(i, s)
	}
	wg.Wait()

	critiques := make([]*models.DebateCritique, 0, len(slots))
	for _, c := range results {
		if c != nil {
			critiques = append(critiques, c)
		}
	}
	return critiques
}

// collectVotes gathers one vote per agent over the other agents'
// proposals. Self-votes cannot occur: an agent's own proposal is never on
// its ballot.
func (e *Engine) collectVotes(ctx context.Context, agents []agent.Agent, topic string, proposals []*models.Proposal) map[string]string {
	votes := make(map[string]string, len(agents))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, a := range agents {
		ballot := make([]*models.Proposal, 0, len(proposals))
		for _, p := range proposals {
			if p.AgentID != a.ID() {
				ballot = append(ballot, p)
			}
		}
		if len(ballot) == 0 {
			continue
		}
		wg.Add(1)
		go func(a agent.Agent, ballot []*models.Proposal) {
			defer wg.Done()
			choice, err := a.Vote(ctx, topic, ballot)
			if err != nil {
				e.logger.Warn("vote failed", "agent_id", a.ID(), "error", err)
				return
			}
			mu.Lock()
			votes[a.ID()] = choice
			mu.Unlock()
		}(a, ballot)
	}
	wg.Wait()
	return votes
}

// winner is the argmax over scores, breaking ties by proposal order.
func winner(proposals []*models.Proposal, scores map[string]float64) string {
	best := ""
	bestScore := -1.0
	for _, p := range proposals {
		if s, ok := scores[p.ID]; ok && s > bestScore {
			best = p.ID
			bestScore = s
		}
	}
	return best
}

// Package gate decides whether a robot acts on a scheduler tick.
package gate

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/ashureev/robofeed/internal/domain"
)

// Source yields uniform draws in [0, n).
type Source interface {
	IntN(n int) int
}

// Policy holds the tunable constants of the gate.
type Policy struct {
	// Precedence lists enabled actions in evaluation order.
	Precedence []domain.Action
	// Multiplier turns a 1-10 frequency into a 0-100 threshold.
	Multiplier int
	// DelayUnit scales the replySpeed-derived publish delay.
	DelayUnit time.Duration
	// PostFrequency applies to robots that leave postFrequency unset.
	PostFrequency int
}

// DefaultPolicy evaluates POST, COMMENT, REPLY, SHARE with threshold = frequency*10.
// Posts are rare unless a robot sets postFrequency.
func DefaultPolicy() Policy {
	return Policy{
		Precedence:    []domain.Action{domain.ActionPost, domain.ActionComment, domain.ActionReply, domain.ActionShare},
		Multiplier:    10,
		DelayUnit:     time.Minute,
		PostFrequency: 1,
	}
}

// ParsePrecedence converts action names into a precedence list.
func ParsePrecedence(names []string) ([]domain.Action, error) {
	out := make([]domain.Action, 0, len(names))
	for _, n := range names {
		a := domain.Action(n)
		switch a {
		case domain.ActionPost, domain.ActionComment, domain.ActionReply, domain.ActionShare:
			out = append(out, a)
		default:
			return nil, fmt.Errorf("unknown action %q", n)
		}
	}
	return out, nil
}

// Gate is the probability gate. It is safe for concurrent use.
type Gate struct {
	policy Policy

	mu  sync.Mutex
	src Source
}

// New creates a gate drawing from src.
func New(policy Policy, src Source) *Gate {
	if policy.Multiplier <= 0 {
		policy.Multiplier = 10
	}
	if policy.PostFrequency < 0 || policy.PostFrequency > 10 {
		policy.PostFrequency = 1
	}
	return &Gate{policy: policy, src: src}
}

// NewSeeded creates a gate over a PCG source. A zero seed uses the clock.
func NewSeeded(policy Policy, seed uint64) *Gate {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return New(policy, rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
}

// Decide evaluates one robot at now. At most one action fires.
func (g *Gate) Decide(profile *domain.RobotProfile, now time.Time) domain.BehaviorDecision {
	decision := domain.BehaviorDecision{
		RobotID:     profile.RobotID,
		Action:      domain.ActionNone,
		EvaluatedAt: now,
	}
	if !profile.IsActive {
		return decision
	}
	if !profile.ActiveAt(domain.Clock(now)) {
		return decision
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	for _, action := range g.policy.Precedence {
		if g.src.IntN(100) < g.Threshold(profile, action) {
			decision.Action = action
			decision.PublishAt = now.Add(g.PublishDelay(profile.ReplySpeed))
			return decision
		}
	}
	return decision
}

// Threshold returns the 0-100 pass mark of action for profile.
func (g *Gate) Threshold(profile *domain.RobotProfile, action domain.Action) int {
	var freq int
	switch action {
	case domain.ActionPost:
		freq = profile.PostFrequency
		if freq == 0 {
			freq = g.policy.PostFrequency
		}
	case domain.ActionComment, domain.ActionReply:
		freq = profile.ReplyFrequency
	case domain.ActionShare:
		freq = profile.ShareFrequency
	}
	return freq * g.policy.Multiplier
}

// PublishDelay maps replySpeed 1-10 to a delay; faster robots publish sooner.
func (g *Gate) PublishDelay(speed int) time.Duration {
	if speed < 1 {
		speed = 1
	}
	if speed > 10 {
		speed = 10
	}
	return time.Duration(11-speed) * g.policy.DelayUnit
}

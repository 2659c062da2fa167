package gatekeeper

import (
	"fmt"
	"sync"
	"time"

	"github.com/ppiankov/promptspeak/internal/model"
)

const (
	// DefaultBaselineWarmup is the number of allowed calls that define an
	// agent's baseline tool set.
	DefaultBaselineWarmup = 10
	// deviationWindow is the number of recent calls scored against the baseline.
	deviationWindow = 10
)

type agentBaseline struct {
	warmupCalls int
	tools       map[string]bool
	// recent holds the last deviationWindow post-warmup calls; true marks
	// a call whose tool is outside the baseline.
	recent []bool
}

// baselines learns per-agent tool usage and scores deviation from it.
type baselines struct {
	mu     sync.Mutex
	warmup int
	agents map[string]*agentBaseline
}

func newBaselines(warmup int) *baselines {
	if warmup <= 0 {
		warmup = DefaultBaselineWarmup
	}
	return &baselines{warmup: warmup, agents: make(map[string]*agentBaseline)}
}

func (b *baselines) get(agentID string) *agentBaseline {
	ab, ok := b.agents[agentID]
	if !ok {
		ab = &agentBaseline{tools: make(map[string]bool)}
		b.agents[agentID] = ab
	}
	return ab
}

// predict returns the drift score the call would carry: 1 for a tool the
// established baseline has never seen, 0 otherwise or during warmup.
func (b *baselines) predict(agentID, tool string) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	ab, ok := b.agents[agentID]
	if !ok || ab.warmupCalls < b.warmup {
		return 0
	}
	if ab.tools[tool] {
		return 0
	}
	return 1
}

// deviation returns the share of the recent window outside the baseline.
func (b *baselines) deviation(agentID string) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	ab, ok := b.agents[agentID]
	if !ok {
		return 0
	}
	return ab.score()
}

func (ab *agentBaseline) score() float64 {
	off := 0
	for _, o := range ab.recent {
		if o {
			off++
		}
	}
	return float64(off) / float64(deviationWindow)
}

// record adds an allowed call and returns the resulting deviation.
func (b *baselines) record(agentID, tool string) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	ab := b.get(agentID)
	if ab.warmupCalls < b.warmup {
		ab.warmupCalls++
		ab.tools[tool] = true
		return 0
	}
	ab.recent = append(ab.recent, !ab.tools[tool])
	if len(ab.recent) > deviationWindow {
		ab.recent = ab.recent[len(ab.recent)-deviationWindow:]
	}
	return ab.score()
}

// clearRecent drops the recent window so the next calls are judged fresh.
func (b *baselines) clearRecent(agentID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ab, ok := b.agents[agentID]; ok {
		ab.recent = nil
	}
}

func (b *baselines) reset(agentID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.agents, agentID)
}

// severityFor grades a deviation score.
func severityFor(score float64) model.DriftSeverity {
	switch {
	case score >= 0.9:
		return model.SeverityCritical
	case score >= 0.6:
		return model.SeverityHigh
	case score >= 0.3:
		return model.SeverityMedium
	default:
		return model.SeverityLow
	}
}

func driftAlert(agentID, tool string, score float64, now time.Time) model.DriftAlert {
	sev := severityFor(score)
	return model.DriftAlert{
		AgentID:    agentID,
		Tool:       tool,
		Severity:   sev,
		Score:      score,
		Message:    fmt.Sprintf("agent %s deviates %.0f%% from its tool baseline (%s)", agentID, score*100, sev),
		DetectedAt: now,
	}
}

package skills

import (
	"context"
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/aristath/waverunner/internal/log"
	"github.com/aristath/waverunner/internal/scheduler"
)

// Source records how a handle was chosen.
type Source string

const (
	SourceHint     Source = "hint"     // The task named a registered skill
	SourceInferred Source = "inferred" // Best scoring provider
	SourceFallback Source = "fallback" // Nothing matched well enough
)

// Scoring weights per matched piece of coverage.
const (
	keywordWeight     = 2
	descriptionWeight = 1
	pathWeight        = 3
)

// Handle is the opaque reference the executor factory turns into an executor.
type Handle struct {
	ProviderID string // Empty for the fallback handle
	Agent      string
	Source     Source
	Score      int
	Content    string // Skill body for the agent
}

// Label names the handle for logs and reports.
func (h Handle) Label() string {
	if h.ProviderID == "" {
		return "generic:" + h.Agent
	}
	return h.ProviderID
}

// WarningFunc receives non-fatal resolution problems.
type WarningFunc func(taskID, message string)

// ResolverConfig is the configuration of the resolver.
type ResolverConfig struct {
	Registry     Registry
	MinRelevance int    // Minimum inferred score; lower scores fall back
	DefaultAgent string // Agent for fallback handles and providers that name none
	OnWarning    WarningFunc
	Logger       log.Logger
}

func (c *ResolverConfig) defaults() error {
	if c.Registry == nil {
		return fmt.Errorf("registry is required")
	}
	if c.DefaultAgent == "" {
		return fmt.Errorf("default agent is required")
	}
	if c.MinRelevance < 0 {
		return fmt.Errorf("min relevance must not be negative")
	}
	if c.OnWarning == nil {
		c.OnWarning = func(string, string) {}
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "skills.Resolver"})
	return nil
}

// Resolver maps tasks to capability handles.
type Resolver struct {
	cfg ResolverConfig
}

// NewResolver returns a resolver.
func NewResolver(cfg ResolverConfig) (*Resolver, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid resolver configuration: %w", err)
	}
	return &Resolver{cfg: cfg}, nil
}

// Resolve picks the handle for a task. It never fails: an explicit hint found in
// the registry wins, then the best scoring provider, then the generic fallback.
func (r *Resolver) Resolve(ctx context.Context, task *scheduler.Task) Handle {
	logger := r.cfg.Logger.WithValues(log.Kv{"task": task.ID})

	providers, err := r.cfg.Registry.ListProviders(ctx)
	if err != nil {
		logger.Warningf("could not list skill providers, treating registry as empty: %s", err)
		r.cfg.OnWarning(task.ID, fmt.Sprintf("skill registry unavailable: %s", err))
		providers = nil
	}

	if hint := strings.TrimSpace(task.Skill); hint != "" {
		for _, p := range providers {
			if p.ID == hint {
				return r.handle(p, SourceHint, 0)
			}
		}
		msg := fmt.Sprintf("skill %q is not registered, inferring from task content", hint)
		logger.Warningf("%s", msg)
		r.cfg.OnWarning(task.ID, msg)
	}

	best, bestScore := -1, 0
	for i, p := range providers {
		score := Score(p, task)
		if score == 0 {
			continue
		}
		// Providers arrive in any order; ties go to the smallest id
		if score > bestScore || (score == bestScore && p.ID < providers[best].ID) {
			best, bestScore = i, score
		}
	}
	if best >= 0 && bestScore >= r.cfg.MinRelevance {
		h := r.handle(providers[best], SourceInferred, bestScore)
		logger.Debugf("inferred skill %s with score %d", h.ProviderID, bestScore)
		return h
	}

	return Handle{Agent: r.cfg.DefaultAgent, Source: SourceFallback}
}

func (r *Resolver) handle(p Provider, source Source, score int) Handle {
	agent := p.Agent
	if agent == "" {
		agent = r.cfg.DefaultAgent
	}
	return Handle{ProviderID: p.ID, Agent: agent, Source: source, Score: score, Content: p.Content}
}

// Score rates how well a provider's declared coverage matches a task.
// Keywords weigh 2 each (a multi-word keyword needs all its words), distinct
// description tokens 1 each, and every task path matched by a path glob 3.
func Score(p Provider, task *scheduler.Task) int {
	taskTokens := tokenSet(task.Title, task.Description)
	score := 0

	for _, kw := range p.Keywords {
		toks := tokenize(kw)
		if len(toks) == 0 {
			continue
		}
		matched := true
		for _, tok := range toks {
			if !taskTokens[tok] {
				matched = false
				break
			}
		}
		if matched {
			score += keywordWeight
		}
	}

	for tok := range tokenSet(p.Description) {
		if taskTokens[tok] {
			score += descriptionWeight
		}
	}

	for _, path := range task.Paths {
		for _, pattern := range p.Paths {
			if ok, err := doublestar.Match(pattern, path); err == nil && ok {
				score += pathWeight
				break
			}
		}
	}
	return score
}

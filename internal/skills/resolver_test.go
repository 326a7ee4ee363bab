package skills

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/waverunner/internal/scheduler"
)

type brokenRegistry struct{}

func (brokenRegistry) ListProviders(context.Context) ([]Provider, error) {
	return nil, fmt.Errorf("connection refused")
}

type warnings struct {
	mu   sync.Mutex
	msgs []string
}

func (w *warnings) record(taskID, msg string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, taskID+": "+msg)
}

func testProviders() []Provider {
	return []Provider{
		{
			ID:          "db-analyzer",
			Description: "Analyze database schema and migrations",
			Keywords:    []string{"schema", "migration", "query plan"},
			Paths:       []string{"db/**/*.sql", "**/migrations/**"},
			Agent:       "coder",
		},
		{
			ID:          "docs-manager",
			Description: "Keep project documentation in sync",
			Keywords:    []string{"documentation", "readme"},
			Paths:       []string{"docs/**", "**/*.md"},
		},
		{
			ID:       "refactoring",
			Keywords: []string{"refactor", "cleanup"},
		},
	}
}

func newTestResolver(t *testing.T, reg Registry, minRelevance int) (*Resolver, *warnings) {
	t.Helper()
	w := &warnings{}
	r, err := NewResolver(ResolverConfig{
		Registry:     reg,
		MinRelevance: minRelevance,
		DefaultAgent: "generic",
		OnWarning:    w.record,
	})
	require.NoError(t, err)
	return r, w
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name       string
		task       *scheduler.Task
		wantID     string
		wantAgent  string
		wantSource Source
		wantWarn   bool
	}{
		{
			name:       "explicit hint",
			task:       &scheduler.Task{ID: "T1", Title: "Write the README", Skill: "refactoring"},
			wantID:     "refactoring",
			wantAgent:  "generic",
			wantSource: SourceHint,
		},
		{
			name:       "unknown hint falls through to inference",
			task:       &scheduler.Task{ID: "T2", Title: "Update documentation", Skill: "ghost"},
			wantID:     "docs-manager",
			wantAgent:  "generic",
			wantSource: SourceInferred,
			wantWarn:   true,
		},
		{
			name:       "keywords are case folded",
			task:       &scheduler.Task{ID: "T3", Title: "New SCHEMA and Migration"},
			wantID:     "db-analyzer",
			wantAgent:  "coder",
			wantSource: SourceInferred,
		},
		{
			name:       "paths weigh most",
			task:       &scheduler.Task{ID: "T4", Title: "Refactor", Paths: []string{"db/tables/invoices.sql"}},
			wantID:     "db-analyzer",
			wantAgent:  "coder",
			wantSource: SourceInferred,
		},
		{
			name:       "below min relevance falls back",
			task:       &scheduler.Task{ID: "T5", Title: "Project kickoff"},
			wantAgent:  "generic",
			wantSource: SourceFallback,
		},
		{
			name:       "nothing matches",
			task:       &scheduler.Task{ID: "T6", Title: "Order pizza"},
			wantAgent:  "generic",
			wantSource: SourceFallback,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, w := newTestResolver(t, NewInMemoryRegistry(testProviders()...), 2)

			h := r.Resolve(context.Background(), tt.task)

			assert.Equal(t, tt.wantID, h.ProviderID)
			assert.Equal(t, tt.wantAgent, h.Agent)
			assert.Equal(t, tt.wantSource, h.Source)
			if tt.wantWarn {
				require.Len(t, w.msgs, 1)
				assert.Contains(t, w.msgs[0], "ghost")
			} else {
				assert.Empty(t, w.msgs)
			}
		})
	}
}

func TestResolve_TieBreaksOnProviderID(t *testing.T) {
	reg := NewInMemoryRegistry(
		Provider{ID: "zeta", Keywords: []string{"deploy"}},
		Provider{ID: "alpha", Keywords: []string{"deploy"}},
	)
	r, _ := newTestResolver(t, reg, 1)

	for i := 0; i < 10; i++ {
		h := r.Resolve(context.Background(), &scheduler.Task{ID: "T", Title: "deploy service"})
		assert.Equal(t, "alpha", h.ProviderID)
	}
}

func TestResolve_SeesRegistryChanges(t *testing.T) {
	reg := NewInMemoryRegistry()
	r, w := newTestResolver(t, reg, 1)
	task := &scheduler.Task{ID: "T", Title: "cleanup", Skill: "refactoring"}

	assert.Equal(t, SourceFallback, r.Resolve(context.Background(), task).Source)
	assert.Len(t, w.msgs, 1)

	require.NoError(t, reg.Register(testProviders()[2]))
	assert.Equal(t, SourceHint, r.Resolve(context.Background(), task).Source)

	reg.Deregister("refactoring")
	assert.Equal(t, SourceFallback, r.Resolve(context.Background(), task).Source)
}

func TestResolve_RegistryErrorIsNotFatal(t *testing.T) {
	r, w := newTestResolver(t, brokenRegistry{}, 1)

	h := r.Resolve(context.Background(), &scheduler.Task{ID: "T", Title: "anything"})

	assert.Equal(t, SourceFallback, h.Source)
	assert.Equal(t, "generic", h.Agent)
	require.Len(t, w.msgs, 1)
	assert.Contains(t, w.msgs[0], "connection refused")
}

func TestScore(t *testing.T) {
	p := testProviders()[0]

	tests := []struct {
		name string
		task *scheduler.Task
		want int
	}{
		{name: "no overlap", task: &scheduler.Task{Title: "paint the fence"}, want: 0},
		{name: "one keyword", task: &scheduler.Task{Title: "schema"}, want: keywordWeight + descriptionWeight},
		{name: "multi word keyword needs every word", task: &scheduler.Task{Title: "fix the query plan"}, want: keywordWeight},
		{name: "partial multi word keyword", task: &scheduler.Task{Title: "slow query"}, want: 0},
		{name: "description tokens", task: &scheduler.Task{Description: "analyze the database"}, want: 2 * descriptionWeight},
		{
			name: "each matching path counts once",
			task: &scheduler.Task{Paths: []string{"db/a.sql", "app/migrations/002.go", "main.go"}},
			want: 2 * pathWeight,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Score(p, tt.task))
		})
	}
}

func TestNewResolver_Invalid(t *testing.T) {
	_, err := NewResolver(ResolverConfig{DefaultAgent: "generic"})
	assert.Error(t, err)

	_, err = NewResolver(ResolverConfig{Registry: NewInMemoryRegistry()})
	assert.Error(t, err)
}

func TestHandleLabel(t *testing.T) {
	assert.Equal(t, "db-analyzer", Handle{ProviderID: "db-analyzer", Agent: "coder"}.Label())
	assert.Equal(t, "generic:generic", Handle{Agent: "generic"}.Label())
}

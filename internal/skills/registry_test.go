package skills

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryRegistry(t *testing.T) {
	reg := NewInMemoryRegistry(Provider{ID: "b"}, Provider{ID: "a"})

	require.NoError(t, reg.Register(Provider{ID: "c"}))
	require.NoError(t, reg.Register(Provider{ID: "a", Name: "replaced"}))
	assert.Error(t, reg.Register(Provider{}))
	reg.Deregister("b")
	reg.Deregister("unknown")

	got, err := reg.ListProviders(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "replaced", got[0].Name)
	assert.Equal(t, "c", got[1].ID)
}

func TestInMemoryRegistry_Concurrent(t *testing.T) {
	reg := NewInMemoryRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = reg.Register(Provider{ID: fmt.Sprintf("p%d", i)})
		}(i)
		go func() {
			defer wg.Done()
			_, _ = reg.ListProviders(context.Background())
		}()
	}
	wg.Wait()

	got, err := reg.ListProviders(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 50)
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"fix", "migration", "2fa"}, tokenize("Fix DB Migration, 2FA on it!"))
	assert.Equal(t, tokenize("SCHEMA"), tokenize("schema"))
}

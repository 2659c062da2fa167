package promptspeak

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleLazyAndReset(t *testing.T) {
	var built []*scriptEngine
	h := NewHandle(func() Engine {
		e := &scriptEngine{decide: allowAll}
		built = append(built, e)
		return e
	})

	assert.Empty(t, built, "nothing built before first use")
	first := h.Engine()
	assert.Same(t, first, h.Engine())
	require.Len(t, built, 1)

	h.Reset()
	assert.Equal(t, 1, built[0].stopped)

	second := h.Engine()
	assert.NotSame(t, first, second)
	assert.Len(t, built, 2)
}

func TestHandleResetWithoutEngine(t *testing.T) {
	h := NewHandle(nil)
	h.Reset()
	h.Reset()
}

func TestHandleConcurrentEngine(t *testing.T) {
	var mu sync.Mutex
	builds := 0
	h := NewHandle(func() Engine {
		mu.Lock()
		builds++
		mu.Unlock()
		return &scriptEngine{decide: allowAll}
	})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.Engine()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, builds)
}

func TestDefaultHandleBuildsGatekeeper(t *testing.T) {
	t.Cleanup(ResetSharedGatekeeper)

	gk, ok := DefaultHandle.Engine().(*Gatekeeper)
	require.True(t, ok, "default engine should be a Gatekeeper")
	assert.Equal(t, ExecutionControlFor(ModeStandard, 0.15, 0), gk.ExecutionControlConfig())

	ResetSharedGatekeeper()
	assert.NotSame(t, gk, DefaultHandle.Engine())
}

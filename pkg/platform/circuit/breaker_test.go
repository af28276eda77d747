package circuit

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	b := New("audit-relay")
	assert.Equal(t, "audit-relay", b.Name())
	assert.Equal(t, StateClosed, b.State())

	for range 4 {
		open, _ := b.RecordFailure()
		require.False(t, open)
	}
	open, change := b.RecordFailure()
	assert.True(t, open, "fifth consecutive failure opens by default")
	assert.True(t, change.Opened)
}

func TestNonPositiveThresholdsKeepDefaults(t *testing.T) {
	b := New("broker", WithFailureThreshold(0), WithSuccessThreshold(-2))
	for range 4 {
		b.RecordFailure()
	}
	assert.False(t, b.IsOpen())
	b.RecordFailure()
	require.True(t, b.IsOpen())

	closed, change := b.RecordSuccess()
	assert.True(t, closed, "one success closes by default")
	assert.True(t, change.Closed)
}

// TestRelayOutageAndRecovery follows the breaker through a broker outage with
// the thresholds the audit relay uses: three failed publishes open it, a
// failed single-event publish keeps it open, a successful one closes it.
func TestRelayOutageAndRecovery(t *testing.T) {
	b := New("audit-relay", WithFailureThreshold(3))

	steps := []struct {
		name       string
		publishOK  bool
		wantOpen   bool
		wantOpened bool
		wantClosed bool
	}{
		{name: "first failed batch", wantOpen: false},
		{name: "second failed batch", wantOpen: false},
		{name: "third failed batch opens", wantOpen: true, wantOpened: true},
		{name: "failed single-event publish stays open", wantOpen: true},
		{name: "successful single-event publish closes", publishOK: true, wantOpen: false, wantClosed: true},
		{name: "normal batch", publishOK: true, wantOpen: false},
	}

	for _, step := range steps {
		var change StateChange
		if step.publishOK {
			_, change = b.RecordSuccess()
		} else {
			_, change = b.RecordFailure()
		}
		assert.Equal(t, step.wantOpen, b.IsOpen(), step.name)
		assert.Equal(t, step.wantOpened, change.Opened, step.name)
		assert.Equal(t, step.wantClosed, change.Closed, step.name)
	}
}

func TestSuccessBreaksFailureRun(t *testing.T) {
	b := New("audit-relay", WithFailureThreshold(3))
	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()
	assert.False(t, b.IsOpen(), "failures must be consecutive")
	b.RecordFailure()
	assert.True(t, b.IsOpen())
}

func TestFailureWhileOpenRestartsSuccessRun(t *testing.T) {
	b := New("audit-relay", WithFailureThreshold(1), WithSuccessThreshold(2))
	b.RecordFailure()
	require.True(t, b.IsOpen())

	closed, _ := b.RecordSuccess()
	assert.False(t, closed)
	b.RecordFailure()
	closed, _ = b.RecordSuccess()
	assert.False(t, closed, "a failure in between resets the success run")
	closed, change := b.RecordSuccess()
	assert.True(t, closed)
	assert.True(t, change.Closed)
	assert.Equal(t, StateClosed, b.State())
}

func TestConcurrentOutcomesReportOneOpening(t *testing.T) {
	b := New("audit-relay", WithFailureThreshold(3))

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		opened int
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, change := b.RecordFailure(); change.Opened {
				mu.Lock()
				opened++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, opened)
	assert.True(t, b.IsOpen())
}

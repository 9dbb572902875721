package aggregate

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarizeClassification(t *testing.T) {
	a := NewAggregator()

	a.RecordSuccess("Alpha", "100", 1)
	a.RecordSuccess("Alpha", "100", 2)

	a.RecordSuccess("Beta", "200", 1)
	a.RecordFailure("Beta", "200", 2, "403 Forbidden - No permission")

	a.RecordFailure("Gamma", "300", 1, "HTTP 500")
	a.RecordFailure("Gamma", "300", 2, "HTTP 500")
	a.RecordFailure("Gamma", "300", 3, "Timeout: deadline exceeded")

	s := a.Summarize()
	assert.Equal(t, 3, s.TotalGuilds)
	assert.Equal(t, 7, s.TotalOperations)
	assert.Equal(t, 3, s.TotalSuccessful)
	assert.Equal(t, 4, s.TotalFailed)
	assert.Equal(t, []string{"Alpha"}, s.FullySuccessful)

	require.Len(t, s.Problems, 2)
	// Worst guild first.
	assert.Equal(t, "Gamma", s.Problems[0].Name)
	assert.True(t, s.Problems[0].FullyFailed)
	assert.Equal(t, "HTTP 500", s.Problems[0].MostCommonReason)
	assert.Equal(t, "Beta", s.Problems[1].Name)
	assert.False(t, s.Problems[1].FullyFailed)
}

func TestRecordIsAtMostOncePerGuildAndProfile(t *testing.T) {
	a := NewAggregator()
	a.RecordSuccess("Alpha", "100", 1)
	a.RecordFailure("Alpha", "100", 1, "HTTP 500")
	a.RecordSuccess("Alpha", "100", 1)

	s := a.Summarize()
	assert.Equal(t, 1, s.TotalOperations)
	assert.Equal(t, 1, s.TotalSuccessful)
	assert.Equal(t, 0, s.TotalFailed)
}

func TestConcurrentRecordingLosesNoUpdates(t *testing.T) {
	a := NewAggregator()

	var wg sync.WaitGroup
	// 100 successes and 50 failures across 10 guilds.
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("Guild-%d", i%10)
			a.RecordSuccess(name, fmt.Sprintf("%d", i%10), i)
		}(i)
	}
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("Guild-%d", i%10)
			a.RecordFailure(name, fmt.Sprintf("%d", i%10), 1000+i, "HTTP 500")
		}(i)
	}
	wg.Wait()

	s := a.Summarize()
	assert.Equal(t, 10, s.TotalGuilds)
	assert.Equal(t, 150, s.TotalOperations)
	assert.Equal(t, 100, s.TotalSuccessful)
	assert.Equal(t, 50, s.TotalFailed)
}

func TestStatsCountersAreIndependent(t *testing.T) {
	var st Stats
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st.AccountsProcessed.Add(1)
			st.TokensChecked.Add(1)
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(64), st.AccountsProcessed.Load())
	assert.Equal(t, int64(64), st.TokensChecked.Load())
	assert.Equal(t, int64(0), st.TokensInvalid.Load())
}

package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsBadCronSpec(t *testing.T) {
	_, err := New(nil, nil, Options{DailyCron: "not a cron spec"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "daily crawl", "error should name the job")
}

func TestNewSkipsEmptySpecs(t *testing.T) {
	s, err := New(nil, nil, Options{})
	require.NoError(t, err)
	// Only the built-in health tick remains registered.
	assert.Len(t, s.cron.Entries(), 1)
}

func TestNewRegistersConfiguredJobs(t *testing.T) {
	s, err := New(nil, nil, Options{
		DailyCron:  "0 6 * * *",
		WeeklyCron: "0 2 * * 0",
		RetryCron:  "0 */6 * * *",
	})
	require.NoError(t, err)
	assert.Len(t, s.cron.Entries(), 4)
	assert.Equal(t, 7, s.opts.DaysBack, "DaysBack should default")
}

func TestStartDisabledDoesNotFire(t *testing.T) {
	s, err := New(nil, nil, Options{Enabled: false, DailyCron: "* * * * *"})
	require.NoError(t, err)
	s.Start()
	// The runner was never started, so entries have no scheduled next run.
	for _, e := range s.cron.Entries() {
		assert.True(t, e.Next.IsZero(), "job scheduled despite being disabled")
	}
}

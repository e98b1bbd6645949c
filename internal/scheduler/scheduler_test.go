package scheduler

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeJob struct {
	runs int
	err  error
}

func (j *fakeJob) Name() string { return "fake_job" }
func (j *fakeJob) Run() error   { j.runs++; return j.err }

func TestAddJob_ValidatesSchedule(t *testing.T) {
	s := New(zerolog.Nop())

	require.NoError(t, s.AddJob("@every 30s", &fakeJob{}))
	require.NoError(t, s.AddJob("0 0 3 * * *", &fakeJob{}))

	// Five-field standard cron is rejected; schedules here carry seconds.
	assert.Error(t, s.AddJob("0 3 * * *", &fakeJob{}))
	assert.Error(t, s.AddJob("not a schedule", &fakeJob{}))
}

func TestRunNow(t *testing.T) {
	s := New(zerolog.Nop())

	job := &fakeJob{}
	require.NoError(t, s.RunNow(job))
	assert.Equal(t, 1, job.runs)

	job.err = errors.New("quote service down")
	assert.Error(t, s.RunNow(job))
	assert.Equal(t, 2, job.runs)
}

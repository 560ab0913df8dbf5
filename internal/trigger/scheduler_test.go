package trigger

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRunner struct {
	mu      sync.Mutex
	calls   []string
	err     error
	started chan struct{}
	release chan struct{}
}

func (m *mockRunner) RunJob(ctx context.Context, job Job, source string) error {
	m.mu.Lock()
	m.calls = append(m.calls, job.Name+":"+job.BatchPath+":"+source)
	m.mu.Unlock()
	if m.started != nil {
		m.started <- struct{}{}
	}
	if m.release != nil {
		<-m.release
	}
	return m.err
}

var _ BatchRunner = (*mockRunner)(nil)

func TestRegister_AddsEntriesForScheduledJobs(t *testing.T) {
	sched := NewScheduler(&mockRunner{})

	err := sched.Register(
		Job{Name: "morning", Schedule: "0 6 * * *", BatchPath: "detections.json"},
		Job{Name: "quarter-hour", Schedule: "*/15 * * * *", BatchPath: "detections.json"},
		Job{Name: "manual", BatchPath: "detections.json"},
	)
	require.NoError(t, err)
	assert.Equal(t, 2, sched.Entries())
}

func TestRegister_InvalidCron(t *testing.T) {
	sched := NewScheduler(&mockRunner{})
	err := sched.Register(Job{Name: "bad", Schedule: "not a valid cron"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
}

func TestStartStop(t *testing.T) {
	sched := NewScheduler(&mockRunner{})
	sched.Start()
	sched.Stop()
}

func TestCronLogger(t *testing.T) {
	l := cronLogger{}
	assert.NotPanics(t, func() {
		l.Info("start", "entries", 1)
		l.Error(assert.AnError, "panic", "job", "x")
	})
}

package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/noticeflow/internal/config"
)

func TestSpec(t *testing.T) {
	spec, err := Spec("09:00")
	require.NoError(t, err)
	assert.Equal(t, "0 9 * * *", spec)

	spec, err = Spec("23:45")
	require.NoError(t, err)
	assert.Equal(t, "45 23 * * *", spec)

	_, err = Spec("9am")
	assert.Error(t, err)
}

func TestNewRejectsBadTimezone(t *testing.T) {
	_, err := New(config.Schedule{Time: "09:00", Timezone: "Mars/Olympus"}, func(context.Context) {})
	assert.Error(t, err)
}

func TestNextRunIsAtConfiguredTime(t *testing.T) {
	s, err := New(config.Schedule{Time: "09:30", Timezone: "Asia/Seoul"}, func(context.Context) {})
	require.NoError(t, err)
	s.Start()
	t.Cleanup(s.Stop)

	next := s.Next()
	loc, _ := time.LoadLocation("Asia/Seoul")
	next = next.In(loc)
	assert.Equal(t, 9, next.Hour())
	assert.Equal(t, 30, next.Minute())
	assert.True(t, next.After(time.Now()))
}

func TestOverlappingRunIsSkipped(t *testing.T) {
	var runs atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})

	s, err := New(config.Schedule{Time: "09:00", Timezone: "UTC"}, func(context.Context) {
		runs.Add(1)
		close(started)
		<-release
	})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		s.RunNow()
		close(done)
	}()
	<-started

	s.RunNow()
	close(release)
	<-done

	assert.Equal(t, int32(1), runs.Load())
}

func TestStopCancelsRunningJob(t *testing.T) {
	started := make(chan struct{})
	var cancelled atomic.Bool

	s, err := New(config.Schedule{Time: "09:00", Timezone: "UTC"}, func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
	})
	require.NoError(t, err)
	s.Start()

	go s.RunNow()
	<-started
	s.Stop()

	assert.Eventually(t, cancelled.Load, time.Second, 10*time.Millisecond)
}

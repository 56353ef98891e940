package startup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDependency struct {
	name      string
	dependsOn []string
	failures  int
	stopErr   error
	events    *[]string
}

func (f *fakeDependency) GetName() string { return f.name }
func (f *fakeDependency) DependsOn() []string { return f.dependsOn }

func (f *fakeDependency) Start(ctx context.Context) error {
	if f.failures > 0 {
		f.failures--
		return errors.New(f.name + " unavailable")
	}
	*f.events = append(*f.events, "start "+f.name)
	return nil
}

func (f *fakeDependency) Stop(ctx context.Context) error {
	*f.events = append(*f.events, "stop "+f.name)
	return f.stopErr
}

func newTestStartup(maxAttempts int) *Startup {
	s := NewStartup(ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}), maxAttempts)
	s.backoffUnit = time.Millisecond
	return s
}

func TestStartup_StartsInDependencyOrderAndStopsInReverse(t *testing.T) {
	var events []string
	s := newTestStartup(1)
	s.AddDependency(&fakeDependency{name: "server", dependsOn: []string{"database", "kafka"}, events: &events})
	s.AddDependency(&fakeDependency{name: "kafka", events: &events})
	s.AddDependency(&fakeDependency{name: "database", events: &events})

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, []string{"start database", "start kafka", "start server"}, events)
	assert.Equal(t, StartupStatusStarted, s.Status("server"))

	events = nil
	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, []string{"stop server", "stop kafka", "stop database"}, events)
	assert.Equal(t, StartupStatusStopped, s.Status("database"))
}

func TestStartup_RetriesFailedAttempts(t *testing.T) {
	var events []string
	s := newTestStartup(3)
	s.AddDependency(&fakeDependency{name: "database", failures: 2, events: &events})

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, 3, s.attempt)
	assert.Equal(t, []string{"start database"}, events)
}

func TestStartup_GivesUp(t *testing.T) {
	var events []string
	s := newTestStartup(2)
	s.AddDependency(&fakeDependency{name: "database", failures: 5, events: &events})

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "startup failed after 2 attempts")
	assert.Equal(t, StartupStatusFailed, s.Status("database"))
}

func TestStartup_UnknownAndCyclicDependencies(t *testing.T) {
	var events []string
	s := newTestStartup(1)
	s.AddDependency(&fakeDependency{name: "server", dependsOn: []string{"missing"}, events: &events})
	assert.ErrorContains(t, s.Start(context.Background()), "unknown startup dependency 'missing'")

	s = newTestStartup(1)
	s.AddDependency(&fakeDependency{name: "a", dependsOn: []string{"b"}, events: &events})
	s.AddDependency(&fakeDependency{name: "b", dependsOn: []string{"a"}, events: &events})
	assert.ErrorContains(t, s.Start(context.Background()), "cycle")
}

func TestStartup_StopContinuesPastErrors(t *testing.T) {
	var events []string
	s := newTestStartup(1)
	s.AddDependency(&fakeDependency{name: "database", events: &events})
	s.AddDependency(&fakeDependency{name: "server", dependsOn: []string{"database"}, stopErr: errors.New("busy"), events: &events})
	require.NoError(t, s.Start(context.Background()))

	events = nil
	err := s.Stop(context.Background())
	assert.ErrorContains(t, err, "stop server: busy")
	assert.Equal(t, []string{"stop server", "stop database"}, events)
}

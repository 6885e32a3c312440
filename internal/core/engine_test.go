package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/wrangle/internal/config"
	"github.com/JonMunkholm/wrangle/internal/mechanic"
)

func TestEngine_Lifecycle(t *testing.T) {
	e := NewEngine(Options{MaxSessions: 2})
	ctx := context.Background()

	a, err := e.Create(ctx)
	require.NoError(t, err)
	b, err := e.Create(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, 2, e.Count())

	_, err = e.Create(ctx)
	assert.True(t, errors.Is(err, ErrTooManySessions))

	got, err := e.Get(a.ID())
	require.NoError(t, err)
	assert.Same(t, a, got)

	require.NoError(t, e.Delete(ctx, a.ID()))
	_, err = e.Get(a.ID())
	assert.True(t, errors.Is(err, ErrSessionNotFound))
	assert.True(t, errors.Is(e.Delete(ctx, a.ID()), ErrSessionNotFound))

	_, err = e.Create(ctx)
	assert.NoError(t, err, "deleting frees a slot")
}

func TestEngine_EvictIdle(t *testing.T) {
	e := NewEngine(Options{IdleTimeout: time.Minute})
	ctx := context.Background()

	stale, err := e.Create(ctx)
	require.NoError(t, err)
	fresh, err := e.Create(ctx)
	require.NoError(t, err)

	stale.lastUsed.Store(time.Now().Add(-2 * time.Minute).UnixNano())

	evicted := e.EvictIdle(time.Now())
	assert.Equal(t, []string{stale.ID()}, evicted)

	_, err = e.Get(fresh.ID())
	assert.NoError(t, err)
	_, err = e.Get(stale.ID())
	assert.True(t, errors.Is(err, ErrSessionNotFound))
}

func TestEngine_RunJanitorStops(t *testing.T) {
	e := NewEngine(Options{IdleTimeout: time.Minute})
	s, err := e.Create(context.Background())
	require.NoError(t, err)
	s.lastUsed.Store(time.Now().Add(-time.Hour).UnixNano())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.RunJanitor(ctx, 10*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return e.Count() == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop after cancel")
	}
}

func TestEngine_SuggestAll(t *testing.T) {
	e, s := newLoaded(t, "age,ssn\n\" 30 \",123-45-6789\n41,n/a\n")

	all, err := e.SuggestAll(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, all, 2)

	assert.Equal(t, 0, all[0].Column)
	assert.Equal(t, "age", all[0].Name)
	require.NotEmpty(t, all[0].Suggestions)
	assert.Equal(t, mechanic.KindTrimWhitespace, all[0].Suggestions[0].Kind)

	assert.Equal(t, "ssn", all[1].Name)
	var kinds []mechanic.Kind
	for _, r := range all[1].Suggestions {
		kinds = append(kinds, r.Kind)
	}
	assert.Contains(t, kinds, mechanic.KindRedactSSN)

	single, err := s.Suggestions(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, single, all[1].Suggestions, "parallel and single-column analysis agree")
}

func TestEngine_SuggestAllCancelled(t *testing.T) {
	e, s := newLoaded(t, "a,b,c\n1,2,3\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.SuggestAll(ctx, s)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestEngine_Status(t *testing.T) {
	e := NewEngine(Options{MaxSessions: 5, Limiter: NewLoadLimiter(3, time.Second)})
	_, err := e.Create(context.Background())
	require.NoError(t, err)

	st := e.Status()
	assert.Equal(t, 1, st.Sessions)
	assert.Equal(t, 5, st.MaxSessions)
	assert.Equal(t, 3, st.Loads.MaxConcurrent)
}

func TestEngine_LoadsShareLimiter(t *testing.T) {
	limiter := NewLoadLimiter(1, 30*time.Millisecond)
	e := NewEngine(Options{Limiter: limiter})
	s, err := e.Create(context.Background())
	require.NoError(t, err)

	require.True(t, limiter.TryAcquire())
	defer limiter.Release()

	_, err = s.Load(context.Background(), strings.NewReader("a\n1\n"), 4, "a.csv", nil)
	assert.True(t, errors.Is(err, ErrTooManyLoads))
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := &config.Config{
		Load:     config.LoadConfig{MaxFileSize: 2048, MaxConcurrent: 3, MaxWaitTime: time.Second, ProgressInterval: 64, SampleRows: 10},
		Session:  config.SessionConfig{MaxSessions: 5, IdleTimeout: time.Minute, HistoryLimit: 7},
		Mechanic: config.MechanicConfig{MaxRows: 100, MaxUniqueInvalid: 20, Workers: 2},
	}

	opts := OptionsFromConfig(cfg)
	assert.Equal(t, 5, opts.MaxSessions)
	assert.Equal(t, time.Minute, opts.IdleTimeout)
	assert.Equal(t, int64(2048), opts.MaxFileSize)
	assert.Equal(t, 7, opts.HistoryLimit)
	assert.Equal(t, int64(64), opts.ProgressInterval)
	assert.Equal(t, 10, opts.SampleRows)
	assert.Equal(t, 2, opts.Workers)
	assert.Equal(t, mechanic.Options{MaxRows: 100, MaxUniqueInvalid: 20}, opts.Mechanic)
	require.NotNil(t, opts.Limiter)
	assert.Equal(t, 3, opts.Limiter.Status().MaxConcurrent)
}

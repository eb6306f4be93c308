package mirror

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestProberStatusClasses(t *testing.T) {
	var status atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	defer upstream.Close()

	p := NewProber(NewFetcher(), upstream.URL+"/", time.Hour, time.Second, nil)
	require.False(t, p.Alive())

	for code, want := range map[int]bool{
		http.StatusOK:                  true,
		http.StatusNoContent:           true,
		http.StatusMovedPermanently:    true,
		http.StatusNotModified:         true,
		http.StatusNotFound:            false,
		http.StatusInternalServerError: false,
	} {
		status.Store(int32(code))
		require.Equal(t, want, p.Probe(context.Background()), "status %d", code)
		require.Equal(t, want, p.Alive())
	}
}

func TestProberTimesOut(t *testing.T) {
	release := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer upstream.Close()
	defer close(release)

	p := NewProber(NewFetcher(), upstream.URL+"/", time.Hour, 50*time.Millisecond, nil)
	require.False(t, p.Probe(context.Background()))
}

func TestProberUnreachableHost(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	url := upstream.URL + "/"
	upstream.Close()

	p := NewProber(NewFetcher(), url, time.Hour, time.Second, nil)
	require.False(t, p.Probe(context.Background()))
}

func TestProberRunProbesImmediatelyAndStops(t *testing.T) {
	var probes atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		probes.Add(1)
	}))
	defer upstream.Close()

	p := NewProber(NewFetcher(), upstream.URL+"/", 10*time.Millisecond, time.Second, nil)
	outcomes := make(chan bool, 64)
	p.OnProbe(func(alive bool) {
		select {
		case outcomes <- alive:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	require.True(t, <-outcomes)
	require.Eventually(t, func() bool { return probes.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("prober did not stop")
	}
	require.True(t, p.Alive())
}

package wa

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type fakeFetcher struct {
	mu       sync.Mutex
	calls    int
	sequence []fetchResult
}

type fetchResult struct {
	inst *Instance
	err  error
}

func (f *fakeFetcher) Status(ctx context.Context, token string) (*Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	idx := f.calls - 1
	if idx >= len(f.sequence) {
		idx = len(f.sequence) - 1
	}
	res := f.sequence[idx]
	return res.inst, res.err
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func waitDone(t *testing.T, s *PollSession) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("poll session did not finish in time")
	}
}

func TestPollStopsAfterConnected(t *testing.T) {
	fetcher := &fakeFetcher{sequence: []fetchResult{
		{inst: &Instance{Status: StatusDisconnected}},
		{inst: &Instance{Status: StatusDisconnected}},
		{inst: &Instance{Status: StatusConnected, ProfileName: "Salon"}},
	}}

	var mu sync.Mutex
	connected := 0

	s := StartPoll(context.Background(), PollConfig{
		InstanceName: "salon-main",
		Token:        "tok",
		Interval:     5 * time.Millisecond,
		Client:       fetcher,
		OnConnected: func(ctx context.Context, inst *Instance) {
			mu.Lock()
			connected++
			mu.Unlock()
			if inst.ProfileName != "Salon" {
				t.Errorf("expected profile name carried, got %q", inst.ProfileName)
			}
		},
		Logger: slog.Default(),
	})

	waitDone(t, s)

	mu.Lock()
	got := connected
	mu.Unlock()
	if got != 1 {
		t.Fatalf("expected exactly one connected callback, got %d", got)
	}

	calls := fetcher.callCount()
	time.Sleep(30 * time.Millisecond)
	if after := fetcher.callCount(); after != calls {
		t.Fatalf("expected no fetches after connected, got %d more", after-calls)
	}
}

func TestPollSurvivesFetchErrors(t *testing.T) {
	fetcher := &fakeFetcher{sequence: []fetchResult{
		{err: errors.New("bsp unreachable")},
	}}

	s := StartPoll(context.Background(), PollConfig{
		InstanceName: "salon-main",
		Token:        "tok",
		Interval:     5 * time.Millisecond,
		Client:       fetcher,
		Logger:       slog.Default(),
	})
	defer s.Stop()

	deadline := time.Now().Add(time.Second)
	for fetcher.callCount() < 5 {
		if time.Now().After(deadline) {
			t.Fatalf("expected at least 5 fetch attempts, got %d", fetcher.callCount())
		}
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case <-s.Done():
		t.Fatal("session must keep polling through fetch errors")
	default:
	}
}

func TestPollStopIsIdempotent(t *testing.T) {
	fetcher := &fakeFetcher{sequence: []fetchResult{
		{inst: &Instance{Status: StatusDisconnected}},
	}}

	s := StartPoll(context.Background(), PollConfig{
		InstanceName: "salon-main",
		Token:        "tok",
		Interval:     5 * time.Millisecond,
		Client:       fetcher,
		Logger:       slog.Default(),
	})

	s.Stop()
	s.Stop()
	waitDone(t, s)
	s.Stop()
}

func TestPollStopsWhenParentContextEnds(t *testing.T) {
	fetcher := &fakeFetcher{sequence: []fetchResult{
		{inst: &Instance{Status: StatusDisconnected}},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	s := StartPoll(ctx, PollConfig{
		InstanceName: "salon-main",
		Token:        "tok",
		Interval:     5 * time.Millisecond,
		Client:       fetcher,
		Logger:       slog.Default(),
	})

	cancel()
	waitDone(t, s)
}

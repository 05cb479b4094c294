package wa

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/i9placesolutions/pulse-salon-manager-sub001/internal/metrics"
)

const defaultPollInterval = 3 * time.Second

// StatusFetcher fetches the connection state for an instance token.
type StatusFetcher interface {
	Status(ctx context.Context, token string) (*Instance, error)
}

// PollConfig describes one status-polling run.
type PollConfig struct {
	InstanceName string
	Token        string
	Interval     time.Duration
	Client       StatusFetcher
	// OnConnected runs exactly once, on the tick that first observes the
	// connected state, before the session stops itself.
	OnConnected func(ctx context.Context, inst *Instance)
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
}

// PollSession drives one instance from "QR displayed" to "connected" by
// polling the status endpoint at a fixed interval. A fetch failure never
// stops the loop; only observing the connected state, Stop, or the parent
// context ending does.
type PollSession struct {
	ID           uuid.UUID
	InstanceName string

	token       string
	interval    time.Duration
	client      StatusFetcher
	onConnected func(ctx context.Context, inst *Instance)
	logger      *slog.Logger
	metrics     *metrics.Metrics

	cancel   context.CancelFunc
	stopOnce sync.Once
	done     chan struct{}
}

// StartPoll begins polling immediately and returns the running session.
func StartPoll(ctx context.Context, cfg PollConfig) *PollSession {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultPollInterval
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &PollSession{
		ID:           uuid.New(),
		InstanceName: cfg.InstanceName,
		token:        cfg.Token,
		interval:     interval,
		client:       cfg.Client,
		onConnected:  cfg.OnConnected,
		logger:       cfg.Logger.With("component", "poll", "instance", cfg.InstanceName),
		metrics:      cfg.Metrics,
		cancel:       cancel,
		done:         make(chan struct{}),
	}

	go s.run(ctx)
	return s
}

// Stop cancels the session. Safe to call from any goroutine, any number of
// times, including after the session already finished.
func (s *PollSession) Stop() {
	s.stopOnce.Do(s.cancel)
}

// Done is closed when the polling goroutine has exited.
func (s *PollSession) Done() <-chan struct{} {
	return s.done
}

func (s *PollSession) run(ctx context.Context) {
	defer close(s.done)
	defer s.cancel()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			inst, err := s.client.Status(ctx, s.token)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Warn("status poll failed", "error", err)
				s.tick("error")
				continue
			}

			if inst.Status == StatusConnected {
				s.tick("connected")
				s.logger.Info("instance connected", "profile_name", inst.ProfileName)
				if s.onConnected != nil {
					s.onConnected(ctx, inst)
				}
				return
			}
			s.tick("waiting")
		}
	}
}

func (s *PollSession) tick(result string) {
	if s.metrics != nil {
		s.metrics.PollTicks.WithLabelValues(result).Inc()
	}
}

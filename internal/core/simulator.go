package core

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// ---------------------------------------------------------------------------
// simulator.go — synthetic activity generator. Produces a plausible mix of
// benign traffic with occasional anomalies, including compound events where
// several anomalies land together. Fully deterministic under a fixed seed.
// ---------------------------------------------------------------------------

var benignMessages = []string{
	"thanks for the review, looks good",
	"can we move the standup to 10am",
	"great work on the release",
	"I'm happy with how the migration went",
	"lunch at noon? ok either way",
	"glad the demo went well",
}

var hostileMessages = []string{
	"I hate this place, management is so unfair",
	"I'm done with this pointless project, whatever",
	"very stressed about the deadline, this is urgent",
	"thinking about leaving, I might just quit",
	"I am not happy with this decision",
	"so tired of the constant pressure here",
}

var anomalyProcesses = []string{"nc", "mimikatz.exe", "psexec", "rclone", "keylogger.py"}

// Simulator generates synthetic events and feeds them to the pipeline.
type Simulator struct {
	mu       sync.Mutex
	rng      *rand.Rand
	users    []string
	interval time.Duration
	pipeline *Pipeline
	logger   zerolog.Logger

	generated int64
}

// NewSimulator creates a generator. A zero seed seeds from the clock; any
// other value makes runs reproducible.
func NewSimulator(cfg SimulatorConfig, pipeline *Pipeline, logger zerolog.Logger) *Simulator {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Simulator{
		rng:      rand.New(rand.NewSource(seed)),
		users:    cfg.Users,
		interval: cfg.Interval,
		pipeline: pipeline,
		logger:   logger.With().Str("component", "simulator").Logger(),
	}
}

// Next generates one event. Roughly half the traffic is chat messages, the
// rest anomalies; a slice of the anomalies are compound.
func (s *Simulator) Next() *Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	atomic.AddInt64(&s.generated, 1)

	user := s.users[s.rng.Intn(len(s.users))]
	roll := s.rng.Float64()

	switch {
	case roll < 0.50:
		return s.messageEvent(user)
	case roll < 0.62:
		return s.offHoursEvent(user)
	case roll < 0.74:
		return s.mediaEvent(user)
	case roll < 0.84:
		return s.processEvent(user)
	case roll < 0.92:
		return s.downloadEvent(user)
	default:
		return s.compoundEvent(user)
	}
}

// Batch generates n events.
func (s *Simulator) Batch(n int) []*Event {
	out := make([]*Event, n)
	for i := range out {
		out[i] = s.Next()
	}
	return out
}

func (s *Simulator) messageEvent(user string) *Event {
	e := NewEvent(user, EventMessage, "simulator")
	pool := benignMessages
	if s.rng.Float64() < 0.3 {
		pool = hostileMessages
	}
	e.Message = &MessageAttrs{
		Text:    pool[s.rng.Intn(len(pool))],
		Channel: "chat",
	}
	return e
}

func (s *Simulator) offHoursEvent(user string) *Event {
	e := NewEvent(user, EventOffHours, "simulator")
	e.OffHours = &OffHoursAttrs{
		LocalHour: s.rng.Intn(5), // 00:00–04:59
		Intensity: 0.3 + s.rng.Float64()*0.7,
	}
	return e
}

func (s *Simulator) mediaEvent(user string) *Event {
	e := NewEvent(user, EventRemovableMedia, "simulator")
	e.Media = &RemovableMediaAttrs{
		DeviceName:  "usb-drive",
		BytesCopied: int64(s.rng.Intn(200)+1) << 20,
	}
	return e
}

func (s *Simulator) processEvent(user string) *Event {
	e := NewEvent(user, EventProcessAnomaly, "simulator")
	e.Process = &ProcessAnomalyAttrs{
		ProcessName: anomalyProcesses[s.rng.Intn(len(anomalyProcesses))],
		Count:       s.rng.Intn(5) + 1,
	}
	return e
}

func (s *Simulator) downloadEvent(user string) *Event {
	e := NewEvent(user, EventBulkDownload, "simulator")
	e.Download = &BulkDownloadAttrs{
		Bytes:     int64(s.rng.Intn(800)+10) << 20,
		FileCount: s.rng.Intn(500) + 10,
	}
	return e
}

// compoundEvent is the exfiltration-shaped worst case: a bulk download over
// removable media in the middle of the night.
func (s *Simulator) compoundEvent(user string) *Event {
	e := NewEvent(user, EventBulkDownload, "simulator")
	e.Download = &BulkDownloadAttrs{
		Bytes:     int64(s.rng.Intn(400)+100) << 20,
		FileCount: s.rng.Intn(1000) + 100,
	}
	e.OffHours = &OffHoursAttrs{
		LocalHour: s.rng.Intn(4) + 1,
		Intensity: 0.8,
	}
	e.Media = &RemovableMediaAttrs{
		DeviceName:  "usb-drive",
		BytesCopied: e.Download.Bytes,
	}
	return e
}

// Run feeds generated events to the pipeline until the context is canceled.
func (s *Simulator) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Int("users", len(s.users)).Msg("simulator started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Int64("generated", atomic.LoadInt64(&s.generated)).Msg("simulator stopped")
			return ctx.Err()
		case <-ticker.C:
			event := s.Next()
			if _, err := s.pipeline.Ingest(ctx, event); err != nil {
				s.logger.Warn().Err(err).Str("event_id", event.ID).Msg("simulated event rejected")
			}
		}
	}
}

// Generated returns how many events have been produced.
func (s *Simulator) Generated() int64 {
	return atomic.LoadInt64(&s.generated)
}

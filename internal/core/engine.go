package core

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Engine owns the full decision pipeline: one audit log, one alert store,
// one case book, wired together from a validated config. Construction is
// all-or-nothing; a half-wired engine is never returned.
type Engine struct {
	cfg      *Config
	logger   zerolog.Logger
	audit    *AuditLog
	analyzer *SentimentAnalyzer
	scorer   *RiskScorer
	alerts   *AlertStore
	cases    *CaseManager
	gamifier *Gamifier
	response *ResponseEngine
	pipeline *Pipeline
	sim      *Simulator
	bus      *EventBus
}

// NewEngine builds and wires an engine from config.
func NewEngine(cfg *Config, logger zerolog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:    cfg,
		logger: logger.With().Str("component", "engine").Logger(),
	}

	e.audit = NewAuditLog(logger)
	e.analyzer = NewSentimentAnalyzer(cfg.Sentiment)
	e.scorer = NewRiskScorer(cfg.Scoring)
	e.alerts = NewAlertStore(logger, e.audit)
	e.cases = NewCaseManager(cfg.Cases, e.alerts, e.audit, logger)
	e.gamifier = NewGamifier(e.audit, logger)
	e.cases.SetCloseHook(e.gamifier.RecordCaseClosed)

	var notifier Notifier
	if cfg.Webhook != "" {
		notifier = NewWebhookNotifier(cfg.Webhook, cfg.Response.AttemptTimeout, logger)
	} else {
		notifier = NewLogNotifier(logger)
	}
	e.response = NewResponseEngine(cfg.Response, e.alerts, e.cases, notifier, NewLogIsolator(logger), e.audit, logger)

	if cfg.Bus.Enabled {
		bus, err := NewEventBus(&cfg.Bus, logger)
		if err != nil {
			return nil, fmt.Errorf("starting event bus: %w", err)
		}
		e.bus = bus
		e.audit.AddSink(bus.PublishAudit)
	}

	e.pipeline = NewPipeline(e.analyzer, e.scorer, e.alerts, e.response, e.audit,
		e.bus, cfg.Alerting.MinRiskBand(), logger)

	if cfg.Simulator.Enabled {
		e.sim = NewSimulator(cfg.Simulator, e.pipeline, logger)
	}

	return e, nil
}

// Run starts the bus consumer and the simulator, then blocks until the
// context is canceled. Safe to call with neither enabled; it then just waits.
func (e *Engine) Run(ctx context.Context) error {
	if e.bus != nil {
		err := e.bus.SubscribeToEvents(func(event *Event) {
			if _, err := e.pipeline.ingestFromBus(ctx, event); err != nil {
				e.logger.Warn().Err(err).Str("event_id", event.ID).Msg("bus event rejected")
			}
		})
		if err != nil {
			return fmt.Errorf("subscribing to events: %w", err)
		}
	}

	if e.sim != nil {
		go func() {
			_ = e.sim.Run(ctx)
		}()
	}

	e.logger.Info().
		Bool("bus", e.bus != nil).
		Bool("simulator", e.sim != nil).
		Str("min_band", e.cfg.Alerting.MinBand).
		Msg("engine running")

	<-ctx.Done()
	return e.Close()
}

// Close releases external resources.
func (e *Engine) Close() error {
	if e.bus != nil {
		return e.bus.Close()
	}
	return nil
}

// Accessors for the API layer and CLI.

func (e *Engine) Config() *Config            { return e.cfg }
func (e *Engine) Pipeline() *Pipeline        { return e.pipeline }
func (e *Engine) Alerts() *AlertStore        { return e.alerts }
func (e *Engine) Cases() *CaseManager        { return e.cases }
func (e *Engine) Audit() *AuditLog           { return e.audit }
func (e *Engine) Gamifier() *Gamifier        { return e.gamifier }
func (e *Engine) Responses() *ResponseEngine { return e.response }
func (e *Engine) Simulator() *Simulator      { return e.sim }

// Stats aggregates component statistics for the status surfaces.
func (e *Engine) Stats() map[string]interface{} {
	stats := map[string]interface{}{
		"pipeline":  e.pipeline.Stats(),
		"alerts":    e.alerts.CountByStatus(),
		"cases":     e.cases.Stats(),
		"responses": e.response.Stats(),
		"audit_len": e.audit.Len(),
	}
	if e.bus != nil {
		stats["bus"] = e.bus.GetMetrics()
	}
	if e.sim != nil {
		stats["simulated"] = e.sim.Generated()
	}
	return stats
}

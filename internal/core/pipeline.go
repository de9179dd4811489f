package core

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// ---------------------------------------------------------------------------
// pipeline.go — the ingest path: validate, analyze sentiment, score, raise an
// alert when the band clears the threshold, run automated response, publish.
// One event in, at most one alert out.
// ---------------------------------------------------------------------------

// IngestResult is what one event produced on its way through the pipeline.
type IngestResult struct {
	Assessment RiskAssessment `json:"assessment"`
	Alert      *Alert         `json:"alert,omitempty"`
	Actions    []ActionKind   `json:"actions,omitempty"`
}

// Pipeline processes events end to end.
type Pipeline struct {
	analyzer *SentimentAnalyzer
	scorer   *RiskScorer
	alerts   *AlertStore
	response *ResponseEngine
	audit    *AuditLog
	bus      *EventBus // nil when the bus is disabled
	minBand  RiskBand
	logger   zerolog.Logger

	ingested int64
	rejected int64
	alerted  int64
}

// NewPipeline wires the ingest path. bus may be nil.
func NewPipeline(analyzer *SentimentAnalyzer, scorer *RiskScorer, alerts *AlertStore,
	response *ResponseEngine, audit *AuditLog, bus *EventBus, minBand RiskBand,
	logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		analyzer: analyzer,
		scorer:   scorer,
		alerts:   alerts,
		response: response,
		audit:    audit,
		bus:      bus,
		minBand:  minBand,
		logger:   logger.With().Str("component", "pipeline").Logger(),
	}
}

// Ingest runs one event through the pipeline. Invalid events are rejected,
// audited, and returned as a ValidationError; nothing downstream sees them.
func (p *Pipeline) Ingest(ctx context.Context, event *Event) (*IngestResult, error) {
	return p.ingest(ctx, event, true)
}

// ingestFromBus processes an event that arrived over the bus. It is not
// republished; the consumer would otherwise feed itself.
func (p *Pipeline) ingestFromBus(ctx context.Context, event *Event) (*IngestResult, error) {
	return p.ingest(ctx, event, false)
}

func (p *Pipeline) ingest(ctx context.Context, event *Event, publish bool) (*IngestResult, error) {
	if err := event.Validate(); err != nil {
		atomic.AddInt64(&p.rejected, 1)
		target := ""
		if event != nil {
			target = event.ID
		}
		p.audit.Append(ActorSystem, "event_rejected", "event", target, err.Error())
		return nil, err
	}
	atomic.AddInt64(&p.ingested, 1)

	var sentiment *SentimentScore
	if event.Message != nil {
		s := p.analyzer.Analyze(event.Message.Text)
		sentiment = &s
	}

	assessment := p.scorer.Score(event, sentiment)
	result := &IngestResult{Assessment: assessment}

	if p.bus != nil && publish {
		if err := p.bus.PublishEvent(event); err != nil {
			p.logger.Warn().Err(err).Str("event_id", event.ID).Msg("event publish failed")
		}
	}

	p.logger.Debug().
		Str("event_id", event.ID).
		Str("user_id", event.UserID).
		Str("type", event.Type.String()).
		Float64("score", assessment.Score).
		Str("band", assessment.Band.String()).
		Msg("event scored")

	if assessment.Band < p.minBand {
		return result, nil
	}
	atomic.AddInt64(&p.alerted, 1)

	alert := p.alerts.Create(event, assessment)
	result.Alert = &alert
	result.Actions = p.response.Evaluate(ctx, alert)

	if p.bus != nil {
		// Re-read: response may have linked a case or escalated.
		if current, ok := p.alerts.Get(alert.ID); ok {
			alert = current
			result.Alert = &alert
		}
		if err := p.bus.PublishAlert(alert); err != nil {
			p.logger.Warn().Err(err).Str("alert_id", alert.ID).Msg("alert publish failed")
		}
	}

	return result, nil
}

// WhatIf scores an event under an alternative scoring config without touching
// any state. Used by analysts to answer "what would this have scored if".
func (p *Pipeline) WhatIf(event *Event, cfg ScoringConfig) (RiskAssessment, error) {
	if err := event.Validate(); err != nil {
		return RiskAssessment{}, err
	}
	if err := cfg.Validate(); err != nil {
		return RiskAssessment{}, err
	}
	var sentiment *SentimentScore
	if event.Message != nil {
		s := p.analyzer.Analyze(event.Message.Text)
		sentiment = &s
	}
	return NewRiskScorer(cfg).Score(event, sentiment), nil
}

// Stats summarizes pipeline throughput.
func (p *Pipeline) Stats() map[string]interface{} {
	return map[string]interface{}{
		"ingested": atomic.LoadInt64(&p.ingested),
		"rejected": atomic.LoadInt64(&p.rejected),
		"alerted":  atomic.LoadInt64(&p.alerted),
		"min_band": p.minBand.String(),
	}
}

// DrillQuestions scores a batch of sandbox events into drill questions. The
// events never enter the pipeline; only the expected bands are computed.
func (p *Pipeline) DrillQuestions(events []*Event) ([]DrillQuestion, error) {
	questions := make([]DrillQuestion, 0, len(events))
	for i, event := range events {
		if err := event.Validate(); err != nil {
			return nil, fmt.Errorf("drill event %d: %w", i, err)
		}
		var sentiment *SentimentScore
		if event.Message != nil {
			s := p.analyzer.Analyze(event.Message.Text)
			sentiment = &s
		}
		questions = append(questions, DrillQuestion{
			Event:      event,
			Assessment: p.scorer.Score(event, sentiment),
		})
	}
	return questions, nil
}

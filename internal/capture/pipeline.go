package capture

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	brainotel "github.com/natthamonpisit/PARA-Brain-sub001/internal/otel"
	"github.com/natthamonpisit/PARA-Brain-sub001/internal/para"
	"github.com/natthamonpisit/PARA-Brain-sub001/internal/vision"
)

var tracer = brainotel.Tracer("github.com/natthamonpisit/PARA-Brain-sub001/internal/capture")

// Deps bundles the pipeline's collaborators.
type Deps struct {
	Store      Store
	Loader     *Loader
	Dedup      *Detector
	Classifier *Classifier
	Decider    *Decider
	Executor   *Executor

	// Embedding upkeep for created items; nil disables it.
	Embedder   Embedder
	EmbedModel string

	// Image intake. Analyzer nil disables CaptureImage.
	Analyzer          vision.Analyzer
	FinanceConfidence float64

	Staleness time.Duration
}

// Pipeline drives one inbound message through claim, grounding, dedup,
// classification, routing, and write execution, producing exactly one
// envelope and one terminal capture-log status.
type Pipeline struct {
	deps Deps
}

// NewPipeline creates the capture pipeline.
func NewPipeline(deps Deps) *Pipeline {
	if deps.Staleness <= 0 {
		deps.Staleness = 90 * time.Second
	}
	return &Pipeline{deps: deps}
}

// Capture processes one inbound message end to end. The returned envelope is
// always usable; the error is non-nil only for storage-level faults that
// prevented even a terminal result from being recorded.
func (p *Pipeline) Capture(ctx context.Context, req *CaptureRequest) (*Envelope, error) {
	ctx, span := tracer.Start(ctx, "capture.pipeline")
	defer span.End()
	span.SetAttributes(
		attribute.String("channel", req.Channel),
		attribute.Bool("has_event_id", req.EventID != ""),
	)

	logRow, claimed, replay, err := p.deps.Store.Claim(ctx, req.Channel, req.EventID, req.Message, p.deps.Staleness)
	if err != nil {
		return nil, fmt.Errorf("claim capture log: %w", err)
	}
	if replay {
		span.SetAttributes(attribute.Bool("replay", true))
		return p.replayEnvelope(logRow), nil
	}
	if !claimed {
		// Another delivery owns the processing row and is not stale yet.
		return &Envelope{
			Contract:   EnvelopeContract,
			Success:    false,
			Status:     para.StatusProcessing,
			ActionType: para.ActionChat,
			Reply:      "Still working on that one, give me a moment.",
		}, nil
	}
	req.ExcludeLogID = logRow.ID

	env := p.run(ctx, req)

	p.finalize(ctx, logRow.ID, req, env)
	return env, nil
}

// run executes the claimed pipeline stages and builds the envelope. It never
// returns an error: every failure mode maps to an envelope.
func (p *Pipeline) run(ctx context.Context, req *CaptureRequest) *Envelope {
	var snap *GroundingSnapshot
	var verdict *DedupVerdict

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		snap = p.deps.Loader.Load(gctx, req.Channel)
		return nil
	})
	g.Go(func() error {
		verdict = p.deps.Dedup.Check(gctx, req.Message, req.ExcludeLogID)
		return nil
	})
	_ = g.Wait()

	built := BuildRequest(req, snap, verdict)
	out, err := p.deps.Classifier.Classify(ctx, built)
	if err != nil {
		log.Error().Err(err).Str("channel", req.Channel).Msg("classifier_unavailable")
		env := &Envelope{
			Contract:   EnvelopeContract,
			Success:    false,
			Status:     para.StatusFailed,
			ActionType: para.ActionChat,
			Reply:      "I'm temporarily unavailable, please try again in a moment.",
			Dedup:      verdict,
		}
		return env.WithMeta("reason", ReasonUnavailable)
	}

	decision := p.deps.Decider.Decide(ctx, req, out, snap, verdict)
	out = decision.Out

	env := &Envelope{
		Contract:   EnvelopeContract,
		Intent:     out.Intent,
		Confidence: out.Confidence,
		Operation:  out.Operation,
		ActionType: ActionTypeFor(out.Operation),
		Dedup:      verdict,
	}

	if decision.Terminal != nil {
		env.Success = false
		env.Status = decision.Terminal.Status
		env.Reply = decision.Terminal.Reply
		return env.WithMeta("reason", decision.Terminal.ReasonCode)
	}

	if out.Operation == OpChat {
		env.Success = true
		env.Status = para.StatusSuccess
		env.Reply = out.Reply
		return env
	}

	result, err := p.deps.Executor.Execute(ctx, req, out, decision.Force)
	if err != nil {
		log.Error().Err(err).Str("operation", string(out.Operation)).Msg("write_execute_failed")
		env.Success = false
		env.Status = para.StatusFailed
		env.Reply = "I couldn't save that just now, please try again."
		return env.WithMeta("reason", ReasonUnavailable)
	}

	env.Status = result.Status
	env.Success = result.Status == para.StatusSuccess
	env.Reply = result.Reply
	env.CreatedItems = result.Created
	if result.ReasonCode != "" {
		env.WithMeta("reason", result.ReasonCode)
	}

	p.upsertEmbeddings(ctx, result.Created)
	return env
}

// finalize records the terminal log row, conversation turns, and swallows
// bookkeeping failures: the user already has their reply.
func (p *Pipeline) finalize(ctx context.Context, logID string, req *CaptureRequest, env *Envelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Msg("envelope_marshal_failed")
		payload = []byte("{}")
	}
	if err := p.deps.Store.FinalizeLog(ctx, logID, env.ActionType, env.Status, string(payload)); err != nil {
		log.Error().Err(err).Str("log_id", logID).Msg("capture_log_finalize_failed")
	}
	if err := p.deps.Store.AppendTurn(ctx, req.Channel, "user", req.Message); err != nil {
		log.Warn().Err(err).Msg("turn_append_failed")
	}
	if err := p.deps.Store.AppendTurn(ctx, req.Channel, "assistant", env.Reply); err != nil {
		log.Warn().Err(err).Msg("turn_append_failed")
	}
	log.Info().
		Str("log_id", logID).
		Str("channel", req.Channel).
		Str("status", env.Status).
		Str("action_type", env.ActionType).
		Func(brainotel.LogTraceFields(ctx)).
		Msg("capture_finalized")
}

// replayEnvelope returns the stored result for a redelivered event id.
func (p *Pipeline) replayEnvelope(row *para.CaptureLog) *Envelope {
	var env Envelope
	if row.ResultJSON != "" {
		if err := json.Unmarshal([]byte(row.ResultJSON), &env); err == nil && env.Contract != "" {
			return &env
		}
	}
	// Terminal row predating the envelope contract; synthesize a minimal one.
	return &Envelope{
		Contract:   EnvelopeContract,
		Success:    row.Status == para.StatusSuccess,
		Status:     row.Status,
		ActionType: row.ActionType,
		Reply:      "Already handled that message.",
	}
}

// upsertEmbeddings keeps semantic-dedup vectors current for new records.
// Best effort.
func (p *Pipeline) upsertEmbeddings(ctx context.Context, created []Created) {
	if p.deps.Embedder == nil || p.deps.EmbedModel == "" {
		return
	}
	for _, c := range created {
		item, ok := c.Item.(*para.Item)
		if !ok {
			continue
		}
		text := item.Title
		if item.Content != "" {
			text += "\n" + item.Content
		}
		vector, err := p.deps.Embedder.Embed(ctx, p.deps.EmbedModel, text)
		if err != nil {
			log.Warn().Err(err).Str("item_id", item.ID).Msg("embedding_upsert_skipped")
			continue
		}
		err = p.deps.Store.UpsertEmbedding(ctx, &para.Embedding{
			Collection: item.Collection,
			ItemID:     item.ID,
			Title:      item.Title,
			Vector:     vector,
		})
		if err != nil {
			log.Warn().Err(err).Str("item_id", item.ID).Msg("embedding_upsert_failed")
		}
	}
}

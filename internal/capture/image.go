package capture

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/natthamonpisit/PARA-Brain-sub001/internal/para"
	"github.com/natthamonpisit/PARA-Brain-sub001/internal/vision"
)

// ImageRequest is one inbound image capture.
type ImageRequest struct {
	Image    []byte `json:"-"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption,omitempty"`
	Channel  string `json:"channel"`
	EventID  string `json:"event_id,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

// CaptureImage analyzes an inbound image. A confident finance document is
// written as a transaction directly; anything else is reduced to a synthetic
// text message and re-entered through the full decision pipeline. Total
// analysis failure falls back to the caption as a proxy message.
func (p *Pipeline) CaptureImage(ctx context.Context, req *ImageRequest) (*Envelope, error) {
	ctx, span := tracer.Start(ctx, "capture.image")
	defer span.End()
	span.SetAttributes(attribute.String("channel", req.Channel))

	claimMessage := req.Caption
	if claimMessage == "" {
		claimMessage = "[image]"
	}
	logRow, claimed, replay, err := p.deps.Store.Claim(ctx, req.Channel, req.EventID, claimMessage, p.deps.Staleness)
	if err != nil {
		return nil, fmt.Errorf("claim capture log: %w", err)
	}
	if replay {
		span.SetAttributes(attribute.Bool("replay", true))
		return p.replayEnvelope(logRow), nil
	}
	if !claimed {
		return &Envelope{
			Contract:   EnvelopeContract,
			Success:    false,
			Status:     para.StatusProcessing,
			ActionType: para.ActionChat,
			Reply:      "Still working on that image, give me a moment.",
		}, nil
	}

	textReq := &CaptureRequest{
		Channel:      req.Channel,
		Timezone:     req.Timezone,
		ExcludeLogID: logRow.ID,
	}

	analysis, err := p.deps.Analyzer.Analyze(ctx, req.Image, req.MimeType, req.Caption)
	var env *Envelope
	switch {
	case err != nil:
		log.Warn().Err(err).Str("channel", req.Channel).Msg("image_analysis_failed")
		if req.Caption == "" {
			env = &Envelope{
				Contract:   EnvelopeContract,
				Success:    false,
				Status:     para.StatusFailed,
				ActionType: para.ActionChat,
				Reply:      "I couldn't read that image. A caption would help.",
			}
			env.WithMeta("reason", ReasonUnavailable)
		} else {
			textReq.Message = req.Caption
			env = p.run(ctx, textReq)
		}
	case analysis.IsFinanceDocument && analysis.Amount > 0 && analysis.Confidence >= p.deps.FinanceConfidence:
		env = p.writeImageTransaction(ctx, req, analysis)
	default:
		textReq.Message = syntheticMessage(req.Caption, analysis)
		env = p.run(ctx, textReq)
	}

	textReq.Message = claimMessage
	p.finalize(ctx, logRow.ID, textReq, env)
	return env, nil
}

// writeImageTransaction commits a confident finance document against the
// first available account, bypassing classification.
func (p *Pipeline) writeImageTransaction(ctx context.Context, req *ImageRequest, analysis *vision.Analysis) *Envelope {
	env := &Envelope{
		Contract:   EnvelopeContract,
		Intent:     IntentFinanceCapture,
		Confidence: analysis.Confidence,
		Operation:  OpTransaction,
		ActionType: para.ActionCreateTransaction,
	}

	accounts, err := p.deps.Store.ListAccounts(ctx)
	if err != nil || len(accounts) == 0 {
		if err != nil {
			log.Error().Err(err).Msg("image_account_lookup_failed")
		}
		env.Success = false
		env.Status = para.StatusFailed
		env.Reply = "That looks like a receipt, but I have no account to record it against."
		return env.WithMeta("reason", ReasonAccountNotFound)
	}
	account := accounts[0]

	txn := &para.Transaction{
		AccountID:  account.ID,
		Amount:     analysis.Amount,
		Kind:       kindOrExpense(analysis.TransactionKind),
		Merchant:   analysis.Merchant,
		Note:       firstNonEmpty(req.Caption, Truncate(analysis.OCRText, truncContent)),
		OccurredAt: time.Now().UTC(),
	}
	if err := p.deps.Store.CreateTransaction(ctx, txn); err != nil {
		log.Error().Err(err).Msg("image_transaction_failed")
		env.Success = false
		env.Status = para.StatusFailed
		env.Reply = "I couldn't record that transaction, please try again."
		return env.WithMeta("reason", ReasonUnavailable)
	}

	env.Success = true
	env.Status = para.StatusSuccess
	env.CreatedItems = []Created{{Kind: "transaction", Item: txn}}
	env.Reply = fmt.Sprintf("Recorded %s %.2f", txn.Kind, txn.Amount)
	if txn.Merchant != "" {
		env.Reply += " at " + txn.Merchant
	}
	env.Reply += fmt.Sprintf(" on %s.", account.Name)
	return env
}

func kindOrExpense(kind string) string {
	switch kind {
	case "expense", "income", "transfer":
		return kind
	default:
		return "expense"
	}
}

// syntheticMessage assembles the proxy text for non-finance images.
func syntheticMessage(caption string, analysis *vision.Analysis) string {
	var b strings.Builder
	if caption != "" {
		b.WriteString(caption)
	}
	if analysis.OCRText != "" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Image text: ")
		b.WriteString(Truncate(analysis.OCRText, 400))
	}
	if b.Len() == 0 {
		b.WriteString("[image with no readable content]")
	}
	return b.String()
}

package capture

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/natthamonpisit/PARA-Brain-sub001/internal/para"
	"github.com/natthamonpisit/PARA-Brain-sub001/internal/retry"
)

// Embedder computes embedding vectors. Satisfied by llm.Client.
type Embedder interface {
	Embed(ctx context.Context, model, input string) ([]float32, error)
}

// Detector runs the three escalating duplicate checks. Tiers are sequential
// because later tiers are more expensive; the first match wins.
type Detector struct {
	store         DedupStore
	embedder      Embedder
	model         string
	fallbackModel string
	threshold     float64
	lookback      time.Duration
}

// URL matches are checked against these collections in fixed priority order.
var urlMatchOrder = []para.Collection{
	para.CollectionResources,
	para.CollectionTasks,
	para.CollectionProjects,
}

// Semantic matches are restricted to these collections.
var semanticMatchOrder = []para.Collection{
	para.CollectionProjects,
	para.CollectionTasks,
	para.CollectionResources,
}

// NewDetector creates a duplicate detector.
func NewDetector(store DedupStore, embedder Embedder, model, fallbackModel string, threshold float64, lookback time.Duration) *Detector {
	return &Detector{
		store:         store,
		embedder:      embedder,
		model:         model,
		fallbackModel: fallbackModel,
		threshold:     threshold,
		lookback:      lookback,
	}
}

// Check produces exactly one verdict for the message. Absence of any signal
// yields method NONE. Embedding or search failures degrade to "no duplicate
// signal" and never abort the run.
func (d *Detector) Check(ctx context.Context, message, excludeLogID string) *DedupVerdict {
	ctx, span := tracer.Start(ctx, "capture.dedup")
	defer span.End()

	verdict := d.checkExact(ctx, message, excludeLogID)
	if verdict.IsDuplicate {
		span.SetAttributes(attribute.String("dedup.method", verdict.Method))
		return verdict
	}

	if v := d.checkURLs(ctx, message); v != nil {
		v.Ignored = verdict.Ignored
		v.IgnoredReason = verdict.IgnoredReason
		span.SetAttributes(attribute.String("dedup.method", v.Method))
		return v
	}

	if v := d.checkSemantic(ctx, message); v != nil {
		v.Ignored = verdict.Ignored
		v.IgnoredReason = verdict.IgnoredReason
		span.SetAttributes(attribute.String("dedup.method", v.Method))
		return v
	}

	return verdict
}

// checkExact looks for recent log rows with identical raw text. A match
// counts as a duplicate only when the prior row represents a committed
// write; rows that match text but wrote nothing set the ignored flag so a
// second attempt can still proceed.
func (d *Detector) checkExact(ctx context.Context, message, excludeLogID string) *DedupVerdict {
	since := time.Now().Add(-d.lookback)
	rows, err := d.store.RecentByMessage(ctx, message, excludeLogID, since, 5)
	if err != nil {
		log.Warn().Err(err).Msg("dedup_exact_lookup_failed")
		return &DedupVerdict{Method: MethodNone}
	}

	for _, row := range rows {
		if committedWrite(&row) {
			return &DedupVerdict{
				IsDuplicate: true,
				Method:      MethodExact,
				Reason:      fmt.Sprintf("identical message already captured at %s", row.CreatedAt.Format(time.RFC3339)),
			}
		}
	}
	if len(rows) > 0 {
		return &DedupVerdict{
			Method:        MethodNone,
			Ignored:       true,
			IgnoredReason: "identical earlier message produced no write; treating as a retry",
		}
	}
	return &DedupVerdict{Method: MethodNone}
}

func committedWrite(row *para.CaptureLog) bool {
	if para.WriteActions[row.ActionType] && row.Status == para.StatusSuccess {
		return true
	}
	return hasCreatedItem(row.ResultJSON)
}

func hasCreatedItem(resultJSON string) bool {
	return strings.Contains(resultJSON, `"created_items":[`) &&
		!strings.Contains(resultJSON, `"created_items":[]`)
}

// checkURLs substring-matches each URL in the message against the content
// of the prioritized collections; the first hit wins.
func (d *Detector) checkURLs(ctx context.Context, message string) *DedupVerdict {
	for _, url := range ExtractURLs(message) {
		ref, err := d.store.SearchContent(ctx, urlMatchOrder, url)
		if err != nil {
			log.Warn().Err(err).Str("url", url).Msg("dedup_url_lookup_failed")
			continue
		}
		if ref != nil {
			return &DedupVerdict{
				IsDuplicate: true,
				Method:      MethodURL,
				Reason:      fmt.Sprintf("URL already captured in %s %q", ref.Collection, ref.Title),
				Matched:     ref,
			}
		}
	}
	return nil
}

// checkSemantic embeds the message (primary model, then fallback) and scans
// stored vectors for the nearest neighbor above the threshold.
func (d *Detector) checkSemantic(ctx context.Context, message string) *DedupVerdict {
	vector, err := d.embed(ctx, message)
	if err != nil {
		log.Warn().Err(err).Msg("dedup_embedding_failed")
		return nil
	}

	stored, err := d.store.ListEmbeddings(ctx, semanticMatchOrder)
	if err != nil {
		log.Warn().Err(err).Msg("dedup_vector_scan_failed")
		return nil
	}

	var best *para.Embedding
	bestSim := 0.0
	for i := range stored {
		sim, ok := cosineSimilarity(vector, stored[i].Vector)
		if ok && sim > bestSim {
			bestSim = sim
			best = &stored[i]
		}
	}
	if best == nil || bestSim < d.threshold {
		return nil
	}
	return &DedupVerdict{
		IsDuplicate: true,
		Method:      MethodSemantic,
		Similarity:  bestSim,
		Reason:      fmt.Sprintf("semantically matches %s %q (%.2f)", best.Collection, best.Title, bestSim),
		Matched:     &para.Ref{Collection: best.Collection, ID: best.ItemID, Title: best.Title},
	}
}

func (d *Detector) embed(ctx context.Context, message string) ([]float32, error) {
	vector, err := retry.Do(ctx, retry.DefaultPolicy, func(ctx context.Context) ([]float32, error) {
		return d.embedder.Embed(ctx, d.model, message)
	})
	if err == nil {
		return vector, nil
	}
	return retry.Do(ctx, retry.DefaultPolicy, func(ctx context.Context) ([]float32, error) {
		return d.embedder.Embed(ctx, d.fallbackModel, message)
	})
}

// cosineSimilarity computes the cosine similarity of two vectors; ok is
// false on dimension mismatch or a zero-magnitude vector.
func cosineSimilarity(a, b []float32) (float64, bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB)), true
}

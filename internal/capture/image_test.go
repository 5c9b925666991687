package capture

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/natthamonpisit/PARA-Brain-sub001/internal/llm"
	"github.com/natthamonpisit/PARA-Brain-sub001/internal/para"
	"github.com/natthamonpisit/PARA-Brain-sub001/internal/store"
	"github.com/natthamonpisit/PARA-Brain-sub001/internal/vision"
)

type fakeAnalyzer struct {
	analysis *vision.Analysis
	err      error
	caption  string
}

func (f *fakeAnalyzer) Analyze(_ context.Context, _ []byte, _, caption string) (*vision.Analysis, error) {
	f.caption = caption
	return f.analysis, f.err
}

func newImagePipeline(t *testing.T, st *store.Store, client llm.Client, analyzer vision.Analyzer) *Pipeline {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Bangkok")
	require.NoError(t, err)
	return NewPipeline(Deps{
		Store:             st,
		Loader:            NewLoader(st, 30*time.Minute, 3),
		Dedup:             NewDetector(st, client, "embed", "embed-fallback", 0.9, 48*time.Hour),
		Classifier:        NewClassifier(client, "test-model"),
		Decider:           NewDecider(stubTitles{title: "Example Page"}, 0.72, true),
		Executor:          NewExecutor(st, loc, true),
		Analyzer:          analyzer,
		FinanceConfidence: 0.55,
		Staleness:         90 * time.Second,
	})
}

func TestCaptureImageConfidentReceiptWritesTransaction(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.CreateAccount(ctx, &para.Account{Name: "Cash", Kind: "cash"}))

	analyzer := &fakeAnalyzer{analysis: &vision.Analysis{
		IsFinanceDocument: true,
		TransactionKind:   "expense",
		Amount:            345.50,
		Merchant:          "7-Eleven",
		OCRText:           "7-Eleven total 345.50",
		Confidence:        0.9,
	}}
	client := &countingLLM{content: chatJSON}
	p := newImagePipeline(t, st, client, analyzer)

	env, err := p.CaptureImage(ctx, &ImageRequest{
		Image:    []byte("jpegbytes"),
		MimeType: "image/jpeg",
		Channel:  ChannelTelegram,
		EventID:  "img-1",
	})
	require.NoError(t, err)
	assert.True(t, env.Success)
	assert.Equal(t, para.ActionCreateTransaction, env.ActionType)
	assert.Contains(t, env.Reply, "345.50")
	assert.Contains(t, env.Reply, "7-Eleven")
	assert.Equal(t, 0, client.calls, "confident receipts bypass classification")

	txns, err := st.TransactionsSince(ctx, time.Now().Add(-time.Hour).UTC(), 10)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, "expense", txns[0].Kind)
}

func TestCaptureImageReceiptWithoutAccountsFails(t *testing.T) {
	st := newTestStore(t)
	analyzer := &fakeAnalyzer{analysis: &vision.Analysis{
		IsFinanceDocument: true,
		Amount:            100,
		Confidence:        0.9,
	}}
	p := newImagePipeline(t, st, &countingLLM{content: chatJSON}, analyzer)

	env, err := p.CaptureImage(context.Background(), &ImageRequest{
		Image: []byte("x"), MimeType: "image/jpeg", Channel: ChannelAPI, EventID: "img-2",
	})
	require.NoError(t, err)
	assert.False(t, env.Success)
	assert.Equal(t, para.StatusFailed, env.Status)
	assert.Equal(t, ReasonAccountNotFound, env.Meta["reason"])
}

func TestCaptureImageLowConfidenceGoesThroughPipeline(t *testing.T) {
	st := newTestStore(t)
	analyzer := &fakeAnalyzer{analysis: &vision.Analysis{
		IsFinanceDocument: true,
		Amount:            100,
		OCRText:           "blurry numbers",
		Confidence:        0.3,
	}}
	client := &countingLLM{content: chatJSON}
	p := newImagePipeline(t, st, client, analyzer)

	env, err := p.CaptureImage(context.Background(), &ImageRequest{
		Image: []byte("x"), MimeType: "image/jpeg", Caption: "รูปนี้คืออะไร",
		Channel: ChannelAPI, EventID: "img-3",
	})
	require.NoError(t, err)
	assert.True(t, env.Success)
	assert.Equal(t, 1, client.calls, "uncertain images run the full pipeline")
}

func TestCaptureImageAnalysisFailureUsesCaption(t *testing.T) {
	st := newTestStore(t)
	analyzer := &fakeAnalyzer{err: errors.New("vision down")}
	client := &countingLLM{content: chatJSON}
	p := newImagePipeline(t, st, client, analyzer)

	env, err := p.CaptureImage(context.Background(), &ImageRequest{
		Image: []byte("x"), MimeType: "image/jpeg", Caption: "จดไว้หน่อยนะ",
		Channel: ChannelAPI, EventID: "img-4",
	})
	require.NoError(t, err)
	assert.True(t, env.Success)
	assert.Equal(t, 1, client.calls, "the caption stands in for the image")
}

func TestCaptureImageAnalysisFailureNoCaption(t *testing.T) {
	st := newTestStore(t)
	analyzer := &fakeAnalyzer{err: errors.New("vision down")}
	client := &countingLLM{content: chatJSON}
	p := newImagePipeline(t, st, client, analyzer)

	env, err := p.CaptureImage(context.Background(), &ImageRequest{
		Image: []byte("x"), MimeType: "image/jpeg",
		Channel: ChannelAPI, EventID: "img-5",
	})
	require.NoError(t, err)
	assert.False(t, env.Success)
	assert.Equal(t, para.StatusFailed, env.Status)
	assert.Equal(t, ReasonUnavailable, env.Meta["reason"])
	assert.Equal(t, 0, client.calls)
}

func TestCaptureImageReplay(t *testing.T) {
	st := newTestStore(t)
	analyzer := &fakeAnalyzer{analysis: &vision.Analysis{OCRText: "note to self", Confidence: 0.8}}
	client := &countingLLM{content: chatJSON}
	p := newImagePipeline(t, st, client, analyzer)
	ctx := context.Background()

	req := &ImageRequest{Image: []byte("x"), MimeType: "image/jpeg", Channel: ChannelTelegram, EventID: "img-6"}
	first, err := p.CaptureImage(ctx, req)
	require.NoError(t, err)
	require.Equal(t, 1, client.calls)

	second, err := p.CaptureImage(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.Reply, second.Reply)
	assert.Equal(t, 1, client.calls, "replay must not re-analyze")
}

func TestSyntheticMessage(t *testing.T) {
	msg := syntheticMessage("my caption", &vision.Analysis{OCRText: "visible text"})
	assert.Equal(t, "my caption\nImage text: visible text", msg)

	msg = syntheticMessage("", &vision.Analysis{OCRText: "just text"})
	assert.Equal(t, "Image text: just text", msg)

	msg = syntheticMessage("", &vision.Analysis{})
	assert.Equal(t, "[image with no readable content]", msg)

	assert.Equal(t, "expense", kindOrExpense(""))
	assert.Equal(t, "income", kindOrExpense("income"))
}

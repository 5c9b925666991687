package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/natthamonpisit/PARA-Brain-sub001/internal/para"
)

func TestBuildRequestRendersSnapshot(t *testing.T) {
	req := &CaptureRequest{
		Message:  "อ่านอันนี้ https://go.dev/blog #golang @Work",
		Channel:  ChannelTelegram,
		Timezone: "Asia/Bangkok",
	}
	snap := &GroundingSnapshot{
		OpenTasks: []para.Item{{Title: "Pay rent"}},
		Projects:  []para.Item{{Title: "Website Redesign", Category: "work"}},
		Areas:     []para.Item{{Title: "Health"}},
		Accounts:  []para.Account{{Name: "กสิกร", Kind: "bank"}},
		Modules:   []para.Module{{Name: "Workout Log", Description: "runs and lifts"}},
		Facts:     []para.Knowledge{{Content: "lives in Bangkok"}},
		Turns: []para.Turn{
			{Role: "user", Content: "สวัสดี"},
			{Role: "assistant", Content: "สวัสดีครับ"},
		},
	}
	verdict := &DedupVerdict{Method: MethodNone, Ignored: true, IgnoredReason: "earlier attempt wrote nothing"}

	built := BuildRequest(req, snap, verdict)

	assert.Contains(t, built.System, "single JSON object")
	assert.Contains(t, built.System, "done: X")

	assert.Contains(t, built.User, "Pay rent")
	assert.Contains(t, built.User, "Website Redesign")
	assert.Contains(t, built.User, "กสิกร")
	assert.Contains(t, built.User, "Workout Log")
	assert.Contains(t, built.User, "lives in Bangkok")
	assert.Contains(t, built.User, "สวัสดีครับ")
	assert.Contains(t, built.User, "https://go.dev/blog")
	assert.Contains(t, built.User, "golang")
	assert.Contains(t, built.User, "Area hint from prefix: Work")
	assert.Contains(t, built.User, "earlier attempt wrote nothing")
	assert.Contains(t, built.User, req.Message)
}

func TestBuildRequestTruncatesLongContent(t *testing.T) {
	long := make([]rune, 500)
	for i := range long {
		long[i] = 'x'
	}
	snap := &GroundingSnapshot{
		Turns: []para.Turn{{Role: "user", Content: string(long)}},
	}
	built := BuildRequest(&CaptureRequest{Message: "hi", Channel: ChannelAPI}, snap, &DedupVerdict{Method: MethodNone})

	assert.NotContains(t, built.User, string(long))
	assert.Contains(t, built.User, string(long[:truncTurn])+"…")
}

func TestBuildRequestDeterministic(t *testing.T) {
	req := &CaptureRequest{Message: "same input", Channel: ChannelAPI}
	snap := &GroundingSnapshot{OpenTasks: []para.Item{{Title: "a"}, {Title: "b"}}}
	verdict := &DedupVerdict{Method: MethodNone}

	first := BuildRequest(req, snap, verdict)
	second := BuildRequest(req, snap, verdict)
	assert.Equal(t, first, second)
}

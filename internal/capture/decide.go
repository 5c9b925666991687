package capture

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/natthamonpisit/PARA-Brain-sub001/internal/para"
)

// TitleFetcher resolves a page title for a URL. Used to backfill resource
// titles when the classifier leaves them empty.
type TitleFetcher interface {
	FetchTitle(ctx context.Context, url string) (string, error)
}

// ConfirmCommand is the parsed explicit prefix of a message. Confirmation
// and completion shorthands force deterministic behavior regardless of the
// classifier's output.
type ConfirmCommand struct {
	Force          bool   // "confirm:"/"ยืนยัน" prefix
	CompleteTarget string // "done: X"/"เสร็จ: X" target title
	Rest           string // message with the prefix stripped
}

var confirmPrefixes = []string{"confirm:", "confirm", "ยืนยัน:", "ยืนยัน"}
var completePrefixes = []string{"done:", "เสร็จแล้ว:", "เสร็จ:"}

// ParseConfirmCommand recognizes the explicit confirmation and completion
// shorthands at the start of a message. A bare keyword only counts when it is
// the whole message or followed by whitespace; words that merely begin with
// it ("confirmation", "ยืนยันตัวตน") are left to the classifier.
func ParseConfirmCommand(message string) *ConfirmCommand {
	trimmed := strings.TrimSpace(message)
	lower := strings.ToLower(trimmed)

	for _, p := range completePrefixes {
		if target, ok := splitShorthand(trimmed, lower, p); ok {
			return &ConfirmCommand{CompleteTarget: target, Rest: target}
		}
	}
	for _, p := range confirmPrefixes {
		if rest, ok := splitShorthand(trimmed, lower, p); ok {
			return &ConfirmCommand{Force: true, Rest: rest}
		}
	}
	return nil
}

// splitShorthand strips one shorthand prefix. Colon-terminated prefixes carry
// their own boundary; bare keywords additionally require end-of-message or a
// whitespace boundary.
func splitShorthand(trimmed, lower, p string) (string, bool) {
	if !strings.HasPrefix(lower, p) {
		return "", false
	}
	rest := trimmed[len(p):]
	if !strings.HasSuffix(p, ":") && rest != "" {
		if r, _ := utf8.DecodeRuneInString(rest); !unicode.IsSpace(r) {
			return "", false
		}
	}
	return strings.TrimSpace(rest), true
}

// Terminal is a short-circuited outcome: the run ends here without writing.
type Terminal struct {
	Status     string
	Reply      string
	ReasonCode string
}

// Decision is the resolved operation after overrides and gates.
type Decision struct {
	Out      *ClassifierOutput
	Force    bool
	Terminal *Terminal // nil means proceed to the write executor
}

// Decider applies the deterministic override pipeline and the
// short-circuiting gates to raw classifier output.
type Decider struct {
	titles              TitleFetcher
	confidenceThreshold float64
	autoCapturePlan     bool
}

// NewDecider creates the decision/routing layer.
func NewDecider(titles TitleFetcher, confidenceThreshold float64, autoCapturePlan bool) *Decider {
	return &Decider{
		titles:              titles,
		confidenceThreshold: confidenceThreshold,
		autoCapturePlan:     autoCapturePlan,
	}
}

// decisionState is the working state the override transforms mutate.
type decisionState struct {
	req     *CaptureRequest
	msg     string
	urls    []string
	out     *ClassifierOutput
	snap    *GroundingSnapshot
	verdict *DedupVerdict
	confirm *ConfirmCommand
}

func (s *decisionState) force() bool {
	return s.confirm != nil && (s.confirm.Force || s.confirm.CompleteTarget != "")
}

// The override pipeline: ordered, pure (state in, state out) transforms.
// Application order is part of the contract; when several rules trigger on
// one message the earlier rule's mutation is what the later rules see.
func (d *Decider) overrides() []func(ctx context.Context, s *decisionState) {
	return []func(ctx context.Context, s *decisionState){
		d.coerceNonActionable,
		d.capabilityQuestion,
		d.urlAlwaysActionable,
		d.completionShortcut,
		d.autoPlanUpgrade,
		d.travelRouting,
		d.sanitizeWriteClaim,
		d.lowEffortReplyGuard,
	}
}

// Decide resolves the final operation for one run.
func (d *Decider) Decide(ctx context.Context, req *CaptureRequest, out *ClassifierOutput, snap *GroundingSnapshot, verdict *DedupVerdict) *Decision {
	ctx, span := tracer.Start(ctx, "capture.decide")
	defer span.End()

	s := &decisionState{
		req:     req,
		msg:     req.Message,
		urls:    ExtractURLs(req.Message),
		out:     out,
		snap:    snap,
		verdict: verdict,
		confirm: ParseConfirmCommand(req.Message),
	}

	for _, transform := range d.overrides() {
		transform(ctx, s)
	}

	decision := &Decision{Out: s.out, Force: s.force()}
	decision.Terminal = d.gates(s)
	if decision.Terminal != nil {
		span.SetAttributes(
			attribute.String("terminal.status", decision.Terminal.Status),
			attribute.String("terminal.reason", decision.Terminal.ReasonCode),
		)
	}
	span.SetAttributes(attribute.String("operation", string(s.out.Operation)))
	return decision
}

// --- override transforms, in documented order ---

// 1. Non-actionable coercion: a write the classifier itself called
// non-actionable is contradictory; chat wins.
func (d *Decider) coerceNonActionable(_ context.Context, s *decisionState) {
	if !s.out.Actionable && s.out.Operation.IsWrite() {
		s.out.Operation = OpChat
	}
}

// 2. Capability questions are answered, never auto-executed.
func (d *Decider) capabilityQuestion(_ context.Context, s *decisionState) {
	if s.force() || !isCapabilityQuestion(s.msg) {
		return
	}
	s.out.Operation = OpChat
	s.out.Actionable = false
	s.out.Reply = "Yes, I can do that. Send it again starting with \"confirm:\" and I'll go ahead."
}

// 3. URL-always-actionable: a URL the classifier shrugged off still gets
// captured as a resource, with title/summary backfilled.
func (d *Decider) urlAlwaysActionable(ctx context.Context, s *decisionState) {
	if len(s.urls) == 0 || s.out.Operation != OpChat || isMetaQuestion(s.msg) {
		return
	}
	s.out.Operation = OpCreate
	s.out.Intent = IntentResourceCapture
	s.out.Actionable = true
	s.out.TargetType = "resource"
	if s.out.Title == "" {
		if title, err := d.titles.FetchTitle(ctx, s.urls[0]); err == nil && title != "" {
			s.out.Title = Truncate(title, truncTitle)
		} else {
			s.out.Title = Truncate(s.msg, 60)
		}
	}
	if s.out.Summary == "" {
		s.out.Summary = Truncate(s.msg, truncContent)
	}
	if s.out.Reply == "" {
		s.out.Reply = "Saving that link as a resource."
	}
}

// 4. Explicit completion shortcut bypasses the classifier's operation.
func (d *Decider) completionShortcut(_ context.Context, s *decisionState) {
	if s.confirm == nil || s.confirm.CompleteTarget == "" {
		return
	}
	s.out.Operation = OpComplete
	s.out.Intent = IntentCompleteTask
	s.out.Actionable = true
	if s.out.RelatedID == "" {
		s.out.Title = s.confirm.CompleteTarget
	}
}

// 5. Auto-capture-plan: a planning request that explicitly asks to be
// organized/saved upgrades from chat to a starter task.
func (d *Decider) autoPlanUpgrade(_ context.Context, s *decisionState) {
	if !d.autoCapturePlan || s.out.Operation != OpChat || !s.out.Actionable {
		return
	}
	if !isPlanningRequest(s.msg) || !asksToOrganize(s.msg) {
		return
	}
	s.out.Operation = OpCreate
	s.out.Intent = IntentTaskCapture
	s.out.TargetType = "task"
	if s.out.Title == "" {
		s.out.Title = "Plan: " + Truncate(s.msg, 50)
	}
	if s.out.Guidance == "" {
		s.out.Guidance = "Starter plan captured from: " + Truncate(s.msg, truncContent)
	}
}

// 6. Travel/area heuristic routing: travel-signal messages with no
// explicitly named area get an area proposal and a derived trip project.
func (d *Decider) travelRouting(_ context.Context, s *decisionState) {
	if s.out.Operation != OpCreate || !s.out.Actionable {
		return
	}
	if s.out.RelatedArea != "" || ExtractAreaHint(s.msg) != "" {
		return
	}
	if !hasTravelSignal(s.msg) {
		return
	}
	s.out.RelatedArea = travelArea(s.msg)
	if s.out.RelatedProject == "" && (s.out.TargetType == "task" || s.out.TargetType == "") {
		title := s.out.Title
		if title == "" {
			title = Truncate(s.msg, 40)
		}
		s.out.RelatedProject = "Trip: " + title
	}
}

// 7. Write-claim sanitization: a chat-only reply must not narrate a save
// that never happened.
func (d *Decider) sanitizeWriteClaim(_ context.Context, s *decisionState) {
	if s.out.Operation != OpChat || isMetaQuestion(s.msg) || !claimsWrite(s.out.Reply) {
		return
	}
	s.out.Reply = "I didn't save anything yet. To capture it, send: \"task: " + Truncate(s.msg, 50) + "\""
}

// 8. Low-effort-reply guard.
func (d *Decider) lowEffortReplyGuard(_ context.Context, s *decisionState) {
	if s.out.Operation != OpChat || isMetaQuestion(s.msg) {
		return
	}
	if len([]rune(strings.TrimSpace(s.out.Reply))) <= 10 {
		s.out.Reply = "Got it. Tell me more and I can capture it as a task, project, or note."
	}
}

// --- gates, applied after overrides ---

func (d *Decider) gates(s *decisionState) *Terminal {
	out := s.out
	force := s.force()

	if s.verdict.IsDuplicate && out.Operation.IsWrite() && !force {
		log.Info().Str("method", s.verdict.Method).Msg("capture_skipped_duplicate")
		return &Terminal{
			Status:     para.StatusSkippedDuplicate,
			ReasonCode: ReasonDuplicate,
			Reply:      fmt.Sprintf("Looks like this is already captured (%s). Send it again starting with \"confirm:\" to save anyway.", s.verdict.Reason),
		}
	}

	if out.Operation.IsWrite() && out.Actionable && out.Confidence < d.confidenceThreshold && !force {
		return &Terminal{
			Status:     para.StatusPending,
			ReasonCode: ReasonLowConfidence,
			Reply: fmt.Sprintf("I'm not sure enough to save this on my own (confidence %.2f). Reply with:\nconfirm: %s",
				out.Confidence, s.msg),
		}
	}

	if s.req.RequireApproval &&
		(out.Operation == OpTransaction || out.Operation == OpModuleItem || out.Operation == OpComplete) {
		return &Terminal{
			Status:     para.StatusPending,
			ReasonCode: ReasonApprovalRequired,
			Reply:      "This needs your approval before I commit it.",
		}
	}

	if out.AskParent && out.Operation == OpCreate && !force {
		title := out.Title
		if title == "" {
			title = Truncate(s.msg, 40)
		}
		return &Terminal{
			Status:     para.StatusPending,
			ReasonCode: ReasonParentAmbiguous,
			Reply:      fmt.Sprintf("Which project or area should %q go under?", title),
		}
	}

	return nil
}

// ActionTypeFor maps an operation to the logged action type.
func ActionTypeFor(op Operation) string {
	switch op {
	case OpCreate:
		return para.ActionCreatePara
	case OpTransaction:
		return para.ActionCreateTransaction
	case OpModuleItem:
		return para.ActionCreateModuleItem
	case OpComplete:
		return para.ActionCompleteTask
	default:
		return para.ActionChat
	}
}

// --- keyword heuristics ---

var capabilityMarkers = []string{
	"can you", "could you", "is it possible", "would you be able",
	"ได้ไหม", "ได้มั้ย", "ได้หรือเปล่า", "ทำได้ไหม",
}

func isCapabilityQuestion(msg string) bool {
	lower := strings.ToLower(msg)
	for _, m := range capabilityMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

var metaMarkers = []string{
	"why", "what happened", "did you save", "what did you",
	"ทำไม", "เพราะอะไร", "บันทึกไปหรือยัง", "เมื่อกี้",
}

func isMetaQuestion(msg string) bool {
	lower := strings.ToLower(msg)
	for _, m := range metaMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

var planningMarkers = []string{"plan", "แผน", "วางแผน", "roadmap", "ขั้นตอน"}

func isPlanningRequest(msg string) bool {
	lower := strings.ToLower(msg)
	for _, m := range planningMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

var organizeMarkers = []string{
	"save this", "organize", "จดไว้", "บันทึกไว้", "ช่วยจัด", "เก็บไว้", "help me organize",
}

func asksToOrganize(msg string) bool {
	lower := strings.ToLower(msg)
	for _, m := range organizeMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

var travelMarkers = []string{
	"trip", "travel", "flight", "hotel", "itinerary",
	"เที่ยว", "ทริป", "เดินทาง", "ตั๋วเครื่องบิน", "โรงแรม", "จองที่พัก",
}

func hasTravelSignal(msg string) bool {
	lower := strings.ToLower(msg)
	for _, m := range travelMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

var familyMarkers = []string{"family", "ครอบครัว", "พ่อ", "แม่", "ลูก", "parents"}
var healthMarkers = []string{"run", "gym", "workout", "วิ่ง", "ออกกำลังกาย", "สุขภาพ"}

// travelArea disambiguates the proposed area by family/health sub-signals.
func travelArea(msg string) string {
	lower := strings.ToLower(msg)
	for _, m := range familyMarkers {
		if strings.Contains(lower, m) {
			return "Family"
		}
	}
	for _, m := range healthMarkers {
		if strings.Contains(lower, m) {
			return "Health"
		}
	}
	return "Travel"
}

var writeClaimMarkers = []string{
	"saved", "i've added", "i added", "created", "recorded", "noted it down",
	"บันทึกแล้ว", "บันทึกเรียบร้อย", "จดไว้แล้ว", "สร้างแล้ว", "เพิ่มแล้ว", "เรียบร้อยแล้ว",
}

func claimsWrite(reply string) bool {
	lower := strings.ToLower(reply)
	for _, m := range writeClaimMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

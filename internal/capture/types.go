// Package capture implements the capture decision pipeline: grounding
// context load, duplicate detection, classification, deterministic decision
// routing, and write execution. One inbound message produces exactly one
// uniform result envelope and one terminal capture-log status.
package capture

import (
	"context"
	"time"

	"github.com/natthamonpisit/PARA-Brain-sub001/internal/para"
)

// Channels a capture can arrive on.
const (
	ChannelTelegram = "telegram"
	ChannelAPI      = "api"
)

// CaptureRequest is one inbound message.
type CaptureRequest struct {
	Message         string `json:"message"`
	Channel         string `json:"channel"`
	EventID         string `json:"event_id,omitempty"`
	Timezone        string `json:"timezone,omitempty"`
	ExcludeLogID    string `json:"-"` // in-flight log row, excluded from dedup
	RequireApproval bool   `json:"require_approval,omitempty"`
}

// Operation is the post-classification requested operation.
type Operation string

const (
	OpCreate      Operation = "create"
	OpTransaction Operation = "transaction"
	OpModuleItem  Operation = "module_item"
	OpComplete    Operation = "complete"
	OpChat        Operation = "chat"
)

// IsWrite reports whether the operation commits records.
func (op Operation) IsWrite() bool {
	return op != OpChat && op != ""
}

// Intent tags the classifier may emit.
const (
	IntentChitChat        = "chit_chat"
	IntentActionableNote  = "actionable_note"
	IntentProjectIdea     = "project_idea"
	IntentTaskCapture     = "task_capture"
	IntentResourceCapture = "resource_capture"
	IntentFinanceCapture  = "finance_capture"
	IntentCompleteTask    = "complete_task"
	IntentModuleCapture   = "module_capture"
)

// ClassifierOutput is the semi-structured classifier result. Every field is
// advisory; the decision layer may override any of them.
type ClassifierOutput struct {
	Intent     string    `json:"intent"`
	Confidence float64   `json:"confidence"`
	Actionable bool      `json:"actionable"`
	Operation  Operation `json:"operation"`
	Reply      string    `json:"reply"`

	Title          string   `json:"title,omitempty"`
	Summary        string   `json:"summary,omitempty"`
	Category       string   `json:"category,omitempty"`
	TargetType     string   `json:"target_type,omitempty"` // task|project|area|resource|archive
	RelatedID      string   `json:"related_id,omitempty"`
	RelatedProject string   `json:"related_project,omitempty"`
	RelatedArea    string   `json:"related_area,omitempty"`
	DueDate        string   `json:"due_date,omitempty"` // RFC 3339 when present
	Tags           []string `json:"tags,omitempty"`

	Amount          string `json:"amount,omitempty"` // may carry shorthand ("3k")
	TransactionKind string `json:"transaction_kind,omitempty"`
	AccountName     string `json:"account_name,omitempty"`
	Merchant        string `json:"merchant,omitempty"`

	ModuleTarget string                 `json:"module_target,omitempty"`
	ModuleData   map[string]interface{} `json:"module_data,omitempty"`

	AskParent bool   `json:"ask_parent,omitempty"` // parent ambiguous, ask the user
	Guidance  string `json:"guidance,omitempty"`   // planning/guidance body
}

// Dedup methods, in escalation order.
const (
	MethodExact    = "EXACT_MESSAGE"
	MethodURL      = "URL_MATCH"
	MethodSemantic = "SEMANTIC_VECTOR"
	MethodNone     = "NONE"
)

// DedupVerdict is the single duplicate determination for one run.
type DedupVerdict struct {
	IsDuplicate bool      `json:"is_duplicate"`
	Reason      string    `json:"reason,omitempty"`
	Method      string    `json:"method"`
	Similarity  float64   `json:"similarity,omitempty"`
	Matched     *para.Ref `json:"matched,omitempty"`

	// Ignored marks a text-identical prior attempt that committed no write;
	// the run proceeds but carries the reason forward.
	Ignored       bool   `json:"ignored,omitempty"`
	IgnoredReason string `json:"ignored_reason,omitempty"`
}

// GroundingSnapshot is the read-only bundle of recent domain state used to
// ground classification. Immutable for the duration of one run.
type GroundingSnapshot struct {
	OpenTasks []para.Item
	Projects  []para.Item
	Areas     []para.Item
	Resources []para.Item
	Accounts  []para.Account
	Modules   []para.Module
	Turns     []para.Turn
	Facts     []para.Knowledge
	Lessons   []para.Knowledge
}

// Machine-readable reason codes carried in envelope meta.
const (
	ReasonAccountNotFound     = "ACCOUNT_NOT_FOUND"
	ReasonModuleTargetMissing = "MODULE_TARGET_MISSING"
	ReasonProjectNotFound     = "PROJECT_NOT_FOUND"
	ReasonDuplicate           = "DUPLICATE"
	ReasonLowConfidence       = "LOW_CONFIDENCE"
	ReasonApprovalRequired    = "APPROVAL_REQUIRED"
	ReasonParentAmbiguous     = "PARENT_AMBIGUOUS"
	ReasonUnavailable         = "TEMPORARILY_UNAVAILABLE"
)

// EnvelopeContract tags serialized result payloads for forward compatibility.
const EnvelopeContract = "parabrain.capture.result/v1"

// Created wraps one persisted record in the envelope.
type Created struct {
	Kind string      `json:"kind"` // "task", "project", "area", "resource", "transaction", "module_item"
	Item interface{} `json:"item"`
}

// Envelope is the uniform result of one pipeline run.
type Envelope struct {
	Contract     string            `json:"contract"`
	Success      bool              `json:"success"`
	Intent       string            `json:"intent,omitempty"`
	Confidence   float64           `json:"confidence,omitempty"`
	Operation    Operation         `json:"operation,omitempty"`
	Reply        string            `json:"reply"`
	CreatedItems []Created         `json:"created_items,omitempty"`
	ActionType   string            `json:"action_type"`
	Status       string            `json:"status"`
	Dedup        *DedupVerdict     `json:"dedup,omitempty"`
	Meta         map[string]string `json:"meta,omitempty"`
}

// WithMeta sets a meta key, allocating on first use.
func (e *Envelope) WithMeta(key, value string) *Envelope {
	if e.Meta == nil {
		e.Meta = make(map[string]string)
	}
	e.Meta[key] = value
	return e
}

// Store interfaces. The concrete SQLite store satisfies all of them; tests
// substitute fakes per concern.

// ContextStore is the read fan-out the context loader uses.
type ContextStore interface {
	ListOpenTasks(ctx context.Context, limit int) ([]para.Item, error)
	ListRecent(ctx context.Context, collection para.Collection, limit int) ([]para.Item, error)
	ListAccounts(ctx context.Context) ([]para.Account, error)
	ListModules(ctx context.Context) ([]para.Module, error)
	RecentTurns(ctx context.Context, channel string, since time.Time, limit int) ([]para.Turn, error)
	ListKnowledge(ctx context.Context, kind string, limit int) ([]para.Knowledge, error)
}

// DedupStore is what the duplicate detector reads.
type DedupStore interface {
	RecentByMessage(ctx context.Context, message, excludeID string, since time.Time, limit int) ([]para.CaptureLog, error)
	SearchContent(ctx context.Context, collections []para.Collection, substr string) (*para.Ref, error)
	ListEmbeddings(ctx context.Context, collections []para.Collection) ([]para.Embedding, error)
}

// WriteStore is what the executor commits through.
type WriteStore interface {
	CreateItem(ctx context.Context, item *para.Item) error
	GetItem(ctx context.Context, collection para.Collection, id string) (*para.Item, error)
	FindByTitle(ctx context.Context, collection para.Collection, title string) (*para.Item, error)
	ListOpenTasks(ctx context.Context, limit int) ([]para.Item, error)
	ListRecent(ctx context.Context, collection para.Collection, limit int) ([]para.Item, error)
	CompleteTask(ctx context.Context, id string) (*para.Item, error)
	ListAccounts(ctx context.Context) ([]para.Account, error)
	FindAccount(ctx context.Context, name string) (*para.Account, error)
	CreateTransaction(ctx context.Context, t *para.Transaction) error
	GetModule(ctx context.Context, idOrName string) (*para.Module, error)
	CreateModuleItem(ctx context.Context, item *para.ModuleItem) error
}

// LogStore is the idempotency ledger surface. Claim reports whether this
// caller owns the run (claimed) or must replay a stored terminal result.
type LogStore interface {
	Claim(ctx context.Context, channel, eventID, message string, staleness time.Duration) (log *para.CaptureLog, claimed, replay bool, err error)
	FinalizeLog(ctx context.Context, id, actionType, status, resultJSON string) error
	AppendTurn(ctx context.Context, channel, role, content string) error
	UpsertEmbedding(ctx context.Context, e *para.Embedding) error
}

// Store is the full persistence surface one pipeline run needs.
type Store interface {
	ContextStore
	DedupStore
	WriteStore
	LogStore
}

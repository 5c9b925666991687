// Package para defines the record taxonomy the assistant captures into:
// Projects, Areas, Resources, Archives, plus Tasks (the PARA method), along
// with financial accounts/transactions, free-form capture modules, the
// capture log, and the small conversational/knowledge records that ground
// classification.
package para

import "time"

// Collection names the five structured-record tables.
type Collection string

const (
	CollectionTasks     Collection = "tasks"
	CollectionProjects  Collection = "projects"
	CollectionAreas     Collection = "areas"
	CollectionResources Collection = "resources"
	CollectionArchives  Collection = "archives"
)

// Ref is a parent link (or dedup match pointer) into a collection.
type Ref struct {
	Collection Collection `json:"collection"`
	ID         string     `json:"id"`
	Title      string     `json:"title"`
}

// Item is one structured record in a PARA collection. Not every field
// applies to every collection: Name is the legacy dual field on areas,
// DueAt/Completed apply to tasks, Content holds a resource's captured body
// or URL.
type Item struct {
	ID          string     `json:"id"`
	Collection  Collection `json:"collection"`
	Title       string     `json:"title"`
	Name        string     `json:"name,omitempty"` // areas carry name == title
	Category    string     `json:"category,omitempty"`
	Content     string     `json:"content,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	Related     []Ref      `json:"related,omitempty"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	Completed   bool       `json:"completed,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Account is a financial account transactions resolve against.
type Account struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind,omitempty"` // "bank", "cash", "credit"
	Currency  string    `json:"currency,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Transaction is one committed financial entry.
type Transaction struct {
	ID         string    `json:"id"`
	AccountID  string    `json:"account_id"`
	Amount     float64   `json:"amount"`
	Kind       string    `json:"kind"` // "expense", "income", "transfer"
	Merchant   string    `json:"merchant,omitempty"`
	Note       string    `json:"note,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// Module is a user-defined free-form capture target (workout log, reading
// log, ...). Fields describes the expected keys and their types.
type Module struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Fields      []ModuleField `json:"fields,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// ModuleField declares one expected key of a module entry.
type ModuleField struct {
	Key  string `json:"key" yaml:"key"`
	Type string `json:"type" yaml:"type"` // "number" or "text"
}

// ModuleItem is one free-form entry captured into a module.
type ModuleItem struct {
	ID        string                 `json:"id"`
	ModuleID  string                 `json:"module_id"`
	Data      map[string]interface{} `json:"data"`
	CreatedAt time.Time              `json:"created_at"`
}

// Capture log statuses. A row is created as processing when a run is
// claimed and moves to exactly one terminal status.
const (
	StatusProcessing       = "processing"
	StatusSuccess          = "success"
	StatusFailed           = "failed"
	StatusPending          = "pending"
	StatusSkippedDuplicate = "skipped_duplicate"
)

// Resolved action types stored on the capture log and returned in the
// result envelope.
const (
	ActionCreatePara        = "CREATE_PARA"
	ActionCreateTransaction = "CREATE_TRANSACTION"
	ActionCreateModuleItem  = "CREATE_MODULE_ITEM"
	ActionCompleteTask      = "COMPLETE_TASK"
	ActionChat              = "CHAT"
)

// WriteActions is the set of action types that represent a committed write.
// Exact-message dedup only treats a prior log row as a duplicate when its
// action is in this set (or its payload contains a created item).
var WriteActions = map[string]bool{
	ActionCreatePara:        true,
	ActionCreateTransaction: true,
	ActionCreateModuleItem:  true,
	ActionCompleteTask:      true,
}

// CaptureLog is the idempotency ledger row: one per inbound event.
type CaptureLog struct {
	ID         string    `json:"id"`
	Channel    string    `json:"channel"`
	EventID    string    `json:"event_id,omitempty"`
	Message    string    `json:"message"`
	ActionType string    `json:"action_type,omitempty"`
	Status     string    `json:"status"`
	ResultJSON string    `json:"result_json,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Turn is one recent same-channel conversation message.
type Turn struct {
	ID        string    `json:"id"`
	Channel   string    `json:"channel"`
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Knowledge kinds for long-term entries.
const (
	KnowledgeFact   = "fact"
	KnowledgeLesson = "lesson"
)

// Knowledge is a long-term fact or lesson consumed by the request builder.
type Knowledge struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Embedding is a stored vector for one item, used by semantic dedup.
type Embedding struct {
	Collection Collection `json:"collection"`
	ItemID     string     `json:"item_id"`
	Title      string     `json:"title"`
	Vector     []float32  `json:"vector"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

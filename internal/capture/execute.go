package capture

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/natthamonpisit/PARA-Brain-sub001/internal/para"
	"github.com/natthamonpisit/PARA-Brain-sub001/internal/store"
)

// Default due date for tasks with no explicit due: seven days out at 09:00
// local time.
const (
	defaultDueDays = 7
	defaultDueHour = 9
)

// ExecResult is the executor's contribution to the result envelope.
type ExecResult struct {
	Status     string
	Reply      string
	ReasonCode string
	Created    []Created
}

// Executor commits resolved write operations, auto-creating missing parent
// entities. Tasks and projects never persist with an empty parent-link list
// when any parent signal was present in the input.
type Executor struct {
	store      WriteStore
	loc        *time.Location
	autoCreate bool
}

// NewExecutor creates a write executor. loc is the default timezone for
// due-date resolution when the request carries none; autoCreate authorizes
// creating named-but-missing parent projects without a force-confirm.
func NewExecutor(st WriteStore, loc *time.Location, autoCreate bool) *Executor {
	if loc == nil {
		loc = time.UTC
	}
	return &Executor{store: st, loc: loc, autoCreate: autoCreate}
}

// Execute commits one resolved operation. Resolution failures (account or
// module target missing) come back as terminal failed results with a reason
// code; ambiguity comes back as pending. Only storage faults return an error.
func (e *Executor) Execute(ctx context.Context, req *CaptureRequest, out *ClassifierOutput, force bool) (*ExecResult, error) {
	ctx, span := tracer.Start(ctx, "capture.execute",
		trace.WithAttributes(attribute.String("operation", string(out.Operation))))
	defer span.End()

	switch out.Operation {
	case OpCreate:
		return e.executeCreate(ctx, req, out, force)
	case OpTransaction:
		return e.executeTransaction(ctx, req, out)
	case OpModuleItem:
		return e.executeModuleItem(ctx, out)
	case OpComplete:
		return e.executeComplete(ctx, out)
	default:
		return nil, fmt.Errorf("execute: unsupported operation %q", out.Operation)
	}
}

// --- create ---

func (e *Executor) executeCreate(ctx context.Context, req *CaptureRequest, out *ClassifierOutput, force bool) (*ExecResult, error) {
	switch resolveTargetType(out) {
	case "project":
		return e.createProject(ctx, out)
	case "area":
		return e.createArea(ctx, out)
	case "resource":
		return e.createResource(ctx, out, force)
	default:
		return e.createTask(ctx, req, out, force)
	}
}

func resolveTargetType(out *ClassifierOutput) string {
	if out.TargetType != "" {
		return out.TargetType
	}
	switch out.Intent {
	case IntentProjectIdea:
		return "project"
	case IntentResourceCapture:
		return "resource"
	default:
		return "task"
	}
}

// createTask resolves the parent chain in order: explicit related id, named
// project, auto-created project (force only), then a direct area link.
func (e *Executor) createTask(ctx context.Context, req *CaptureRequest, out *ClassifierOutput, force bool) (*ExecResult, error) {
	var related []para.Ref
	var extras []Created

	parent, pending, err := e.resolveProjectParent(ctx, out, force, &extras)
	if err != nil {
		return nil, err
	}
	if pending != nil {
		return pending, nil
	}
	if parent != nil {
		related = append(related, *parent)
	} else if out.RelatedArea != "" {
		area, err := e.ensureArea(ctx, out.RelatedArea, &extras)
		if err != nil {
			return nil, err
		}
		related = append(related, para.Ref{Collection: para.CollectionAreas, ID: area.ID, Title: area.Title})
	}

	task := &para.Item{
		Collection: para.CollectionTasks,
		Title:      firstNonEmpty(out.Title, Truncate(req.Message, 60)),
		Category:   out.Category,
		Content:    out.Summary,
		Tags:       mergeTags(out.Tags, ExtractHashtags(req.Message)),
		Related:    related,
		DueAt:      e.resolveDue(out.DueDate, req.Timezone),
	}
	if err := e.store.CreateItem(ctx, task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	created := append(extras, Created{Kind: "task", Item: task})
	return &ExecResult{
		Status:  para.StatusSuccess,
		Reply:   successReply(out.Reply, fmt.Sprintf("Task saved: %s", task.Title)),
		Created: created,
	}, nil
}

// resolveProjectParent returns the parent ref, or a pending result when a
// named project is missing and creation was not authorized.
func (e *Executor) resolveProjectParent(ctx context.Context, out *ClassifierOutput, force bool, extras *[]Created) (*para.Ref, *ExecResult, error) {
	if out.RelatedID != "" {
		item, err := e.store.GetItem(ctx, para.CollectionProjects, out.RelatedID)
		if err != nil && !errors.Is(err, store.ErrItemNotFound) {
			return nil, nil, fmt.Errorf("resolve parent project: %w", err)
		}
		if item != nil {
			return &para.Ref{Collection: para.CollectionProjects, ID: item.ID, Title: item.Title}, nil, nil
		}
	}

	if out.RelatedProject == "" {
		return nil, nil, nil
	}

	item, err := e.store.FindByTitle(ctx, para.CollectionProjects, out.RelatedProject)
	if err != nil && !errors.Is(err, store.ErrItemNotFound) {
		return nil, nil, fmt.Errorf("find project: %w", err)
	}
	if item != nil {
		return &para.Ref{Collection: para.CollectionProjects, ID: item.ID, Title: item.Title}, nil, nil
	}

	if !force && !e.autoCreate {
		return nil, &ExecResult{
			Status:     para.StatusPending,
			ReasonCode: ReasonProjectNotFound,
			Reply: fmt.Sprintf("I don't have a project called %q. Reply \"confirm: %s\" to create it, or correct the project name.",
				out.RelatedProject, out.RelatedProject),
		}, nil
	}

	project := &para.Item{
		Collection: para.CollectionProjects,
		Title:      out.RelatedProject,
		Related:    e.projectAreaLinks(ctx, out, extras),
	}
	if err := e.store.CreateItem(ctx, project); err != nil {
		return nil, nil, fmt.Errorf("auto-create project: %w", err)
	}
	*extras = append(*extras, Created{Kind: "project", Item: project})
	return &para.Ref{Collection: para.CollectionProjects, ID: project.ID, Title: project.Title}, nil, nil
}

// projectAreaLinks resolves a project's area link: explicit area name, else
// category, else none. An unresolved area never blocks creation, it is only
// logged.
func (e *Executor) projectAreaLinks(ctx context.Context, out *ClassifierOutput, extras *[]Created) []para.Ref {
	name := firstNonEmpty(out.RelatedArea, out.Category)
	if name == "" {
		log.Info().Str("title", out.Title).Msg("project_area_unresolved")
		return nil
	}
	area, err := e.ensureArea(ctx, name, extras)
	if err != nil {
		log.Warn().Err(err).Str("area", name).Msg("project_area_link_failed")
		return nil
	}
	return []para.Ref{{Collection: para.CollectionAreas, ID: area.ID, Title: area.Title}}
}

// ensureArea finds an area by name, creating it when absent. Areas populate
// both title and name for legacy dual-field compatibility.
func (e *Executor) ensureArea(ctx context.Context, name string, extras *[]Created) (*para.Item, error) {
	area, err := e.store.FindByTitle(ctx, para.CollectionAreas, name)
	if err != nil && !errors.Is(err, store.ErrItemNotFound) {
		return nil, fmt.Errorf("find area: %w", err)
	}
	if area != nil {
		return area, nil
	}
	area = &para.Item{
		Collection: para.CollectionAreas,
		Title:      name,
		Name:       name,
	}
	if err := e.store.CreateItem(ctx, area); err != nil {
		return nil, fmt.Errorf("create area: %w", err)
	}
	*extras = append(*extras, Created{Kind: "area", Item: area})
	return area, nil
}

func (e *Executor) createProject(ctx context.Context, out *ClassifierOutput) (*ExecResult, error) {
	var extras []Created
	project := &para.Item{
		Collection: para.CollectionProjects,
		Title:      out.Title,
		Category:   out.Category,
		Content:    firstNonEmpty(out.Guidance, out.Summary),
		Tags:       out.Tags,
		Related:    e.projectAreaLinks(ctx, out, &extras),
	}
	if err := e.store.CreateItem(ctx, project); err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	return &ExecResult{
		Status:  para.StatusSuccess,
		Reply:   successReply(out.Reply, fmt.Sprintf("Project created: %s", project.Title)),
		Created: append(extras, Created{Kind: "project", Item: project}),
	}, nil
}

func (e *Executor) createArea(ctx context.Context, out *ClassifierOutput) (*ExecResult, error) {
	var extras []Created
	area, err := e.ensureArea(ctx, firstNonEmpty(out.Title, out.RelatedArea), &extras)
	if err != nil {
		return nil, err
	}
	created := extras
	if len(created) == 0 {
		created = []Created{{Kind: "area", Item: area}}
	}
	return &ExecResult{
		Status:  para.StatusSuccess,
		Reply:   successReply(out.Reply, fmt.Sprintf("Area ready: %s", area.Title)),
		Created: created,
	}, nil
}

func (e *Executor) createResource(ctx context.Context, out *ClassifierOutput, force bool) (*ExecResult, error) {
	var related []para.Ref
	var extras []Created

	if out.RelatedProject != "" {
		parent, pending, err := e.resolveProjectParent(ctx, out, force, &extras)
		if err != nil {
			return nil, err
		}
		if pending != nil {
			return pending, nil
		}
		if parent != nil {
			related = append(related, *parent)
		}
	}

	resource := &para.Item{
		Collection: para.CollectionResources,
		Title:      out.Title,
		Category:   out.Category,
		Content:    out.Summary,
		Tags:       out.Tags,
		Related:    related,
	}
	if err := e.store.CreateItem(ctx, resource); err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}
	return &ExecResult{
		Status:  para.StatusSuccess,
		Reply:   successReply(out.Reply, fmt.Sprintf("Resource saved: %s", resource.Title)),
		Created: append(extras, Created{Kind: "resource", Item: resource}),
	}, nil
}

// --- transaction ---

func (e *Executor) executeTransaction(ctx context.Context, req *CaptureRequest, out *ClassifierOutput) (*ExecResult, error) {
	account, err := e.resolveAccount(ctx, out.AccountName)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return &ExecResult{
				Status:     para.StatusFailed,
				ReasonCode: ReasonAccountNotFound,
				Reply:      accountNotFoundReply(out.AccountName),
			}, nil
		}
		return nil, fmt.Errorf("resolve account: %w", err)
	}

	amount, ok := ParseAmount(out.Amount)
	if !ok || amount <= 0 {
		return &ExecResult{
			Status:     para.StatusFailed,
			ReasonCode: ReasonLowConfidence,
			Reply:      "I couldn't read an amount from that. Try something like \"coffee 120 baht\".",
		}, nil
	}

	txn := &para.Transaction{
		AccountID:  account.ID,
		Amount:     amount,
		Kind:       firstNonEmpty(out.TransactionKind, "expense"),
		Merchant:   out.Merchant,
		Note:       firstNonEmpty(out.Summary, Truncate(req.Message, truncContent)),
		OccurredAt: time.Now().UTC(),
	}
	if err := e.store.CreateTransaction(ctx, txn); err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}
	return &ExecResult{
		Status:  para.StatusSuccess,
		Reply:   successReply(out.Reply, fmt.Sprintf("Recorded %s %.2f on %s.", txn.Kind, txn.Amount, account.Name)),
		Created: []Created{{Kind: "transaction", Item: txn}},
	}, nil
}

// resolveAccount matches by name; an empty name resolves only when exactly
// one account exists.
func (e *Executor) resolveAccount(ctx context.Context, name string) (*para.Account, error) {
	if name != "" {
		return e.store.FindAccount(ctx, name)
	}
	accounts, err := e.store.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 1 {
		return &accounts[0], nil
	}
	return nil, store.ErrAccountNotFound
}

func accountNotFoundReply(name string) string {
	if name == "" {
		return "I couldn't tell which account this belongs to. Name one, e.g. \"from cash\"."
	}
	return fmt.Sprintf("I don't know an account called %q.", name)
}

// --- module item ---

func (e *Executor) executeModuleItem(ctx context.Context, out *ClassifierOutput) (*ExecResult, error) {
	if out.ModuleTarget == "" {
		return &ExecResult{
			Status:     para.StatusFailed,
			ReasonCode: ReasonModuleTargetMissing,
			Reply:      "Which capture module should this go into?",
		}, nil
	}
	module, err := e.store.GetModule(ctx, out.ModuleTarget)
	if err != nil {
		if errors.Is(err, store.ErrModuleNotFound) {
			return &ExecResult{
				Status:     para.StatusFailed,
				ReasonCode: ReasonModuleTargetMissing,
				Reply:      fmt.Sprintf("I don't have a module called %q.", out.ModuleTarget),
			}, nil
		}
		return nil, fmt.Errorf("resolve module: %w", err)
	}

	item := &para.ModuleItem{
		ModuleID: module.ID,
		Data:     coerceModuleData(module, out.ModuleData),
	}
	if err := e.store.CreateModuleItem(ctx, item); err != nil {
		return nil, fmt.Errorf("create module item: %w", err)
	}
	return &ExecResult{
		Status:  para.StatusSuccess,
		Reply:   successReply(out.Reply, fmt.Sprintf("Logged an entry in %s.", module.Name)),
		Created: []Created{{Kind: "module_item", Item: item}},
	}, nil
}

// coerceModuleData converts values to numbers where the module declares a
// numeric field or the string parses cleanly.
func coerceModuleData(module *para.Module, data map[string]interface{}) map[string]interface{} {
	if data == nil {
		return map[string]interface{}{}
	}
	numeric := make(map[string]bool, len(module.Fields))
	for _, f := range module.Fields {
		if f.Type == "number" {
			numeric[f.Key] = true
		}
	}
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		s, isString := v.(string)
		if !isString {
			out[k] = v
			continue
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil && (numeric[k] || looksNumeric(s)) {
			out[k] = f
			continue
		}
		out[k] = v
	}
	return out
}

func looksNumeric(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' && r != '-' {
			return false
		}
	}
	return true
}

// --- complete ---

func (e *Executor) executeComplete(ctx context.Context, out *ClassifierOutput) (*ExecResult, error) {
	id := out.RelatedID
	var title string

	if id == "" {
		open, err := e.store.ListOpenTasks(ctx, 100)
		if err != nil {
			return nil, fmt.Errorf("list open tasks: %w", err)
		}
		match := FuzzyMatchTitle(open, out.Title)
		if match == nil {
			return &ExecResult{
				Status: para.StatusSuccess,
				Reply:  fmt.Sprintf("I couldn't find an open task matching %q.", out.Title),
			}, nil
		}
		id, title = match.ID, match.Title
	}

	task, err := e.store.CompleteTask(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrItemNotFound) {
			return &ExecResult{
				Status: para.StatusSuccess,
				Reply:  fmt.Sprintf("That task isn't open anymore: %s", firstNonEmpty(title, out.Title)),
			}, nil
		}
		return nil, fmt.Errorf("complete task: %w", err)
	}
	return &ExecResult{
		Status:  para.StatusSuccess,
		Reply:   successReply(out.Reply, fmt.Sprintf("Done: %s", task.Title)),
		Created: []Created{{Kind: "task", Item: task}},
	}, nil
}

// --- helpers ---

// resolveDue parses an explicit RFC 3339 due date, else defaults to seven
// days out at 09:00 in the request timezone.
func (e *Executor) resolveDue(explicit, tz string) *time.Time {
	if explicit != "" {
		if t, err := time.Parse(time.RFC3339, explicit); err == nil {
			return &t
		}
		log.Warn().Str("due_date", explicit).Msg("due_date_unparseable")
	}
	loc := e.loc
	if tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		}
	}
	base := time.Now().In(loc).AddDate(0, 0, defaultDueDays)
	due := time.Date(base.Year(), base.Month(), base.Day(), defaultDueHour, 0, 0, 0, loc)
	return &due
}

func successReply(classifierReply, fallback string) string {
	if strings.TrimSpace(classifierReply) != "" {
		return classifierReply
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func mergeTags(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, t := range append(append([]string{}, a...), b...) {
		key := strings.ToLower(t)
		if t == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}

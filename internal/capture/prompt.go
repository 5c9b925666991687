package capture

import (
	"fmt"
	"strings"

	"github.com/natthamonpisit/PARA-Brain-sub001/internal/para"
)

// Field truncation lengths for the rendered snapshot.
const (
	truncTitle   = 80
	truncContent = 120
	truncTurn    = 200
)

// BuiltRequest is one classification request: a system prompt carrying the
// rules and output schema, and a user message carrying the grounding.
type BuiltRequest struct {
	System string
	User   string
}

// outputSchema enumerates every classifier output field with its type and
// enum constraints. Kept as a fixed literal so builds are deterministic.
const outputSchema = `{
  "intent": "one of: chit_chat | actionable_note | project_idea | task_capture | resource_capture | finance_capture | complete_task | module_capture",
  "confidence": "number in [0,1]; report real uncertainty, never inflate",
  "actionable": "boolean",
  "operation": "one of: create | transaction | module_item | complete | chat",
  "reply": "string, short natural-language reply in the user's language",
  "title": "string, optional",
  "summary": "string, optional",
  "category": "string, optional",
  "target_type": "one of: task | project | area | resource | archive, optional",
  "related_id": "string id of an existing record, optional",
  "related_project": "string project title, optional",
  "related_area": "string area name, optional",
  "due_date": "RFC 3339 timestamp, optional",
  "tags": "array of strings, optional",
  "amount": "string, optional; may carry shorthand like 3k",
  "transaction_kind": "one of: expense | income | transfer, optional",
  "account_name": "string, optional",
  "merchant": "string, optional",
  "module_target": "string module id or name, optional",
  "module_data": "object of key/value pairs, optional",
  "ask_parent": "boolean; true when the parent project/area is ambiguous",
  "guidance": "string, optional planning guidance body"
}`

// ruleBlock states the deterministic overrides as instructions so the
// classifier and the routing layer pull in the same direction. The routing
// layer enforces them regardless of what comes back.
const ruleBlock = `Rules:
- If the message is not actionable, operation must be "chat".
- A message that merely asks whether you could do something is a question, not an instruction: answer with "chat" and invite an explicit confirmation.
- Any message containing a URL is a capture candidate: prefer a resource create unless the user is asking about past behavior.
- "done: X" style messages complete the named task.
- Never claim something was saved; the reply is composed before any write happens.
- When the parent project or area is ambiguous, set ask_parent instead of guessing.
- Do not mark a duplicate message for creation unless the user explicitly confirms.`

// BuildRequest renders the grounding snapshot, dedup verdict, extracted
// hints, and conversation continuity into one classification request. Pure
// and deterministic given its inputs.
func BuildRequest(req *CaptureRequest, snap *GroundingSnapshot, verdict *DedupVerdict) *BuiltRequest {
	var sys strings.Builder
	sys.WriteString("You are a personal capture assistant for a PARA knowledge system. ")
	sys.WriteString("Classify the user's message into a structured capture decision. ")
	sys.WriteString("Respond with a single JSON object matching this schema exactly:\n")
	sys.WriteString(outputSchema)
	sys.WriteString("\n\n")
	sys.WriteString(ruleBlock)

	var usr strings.Builder
	fmt.Fprintf(&usr, "Channel: %s\n", req.Channel)
	if req.Timezone != "" {
		fmt.Fprintf(&usr, "Timezone: %s\n", req.Timezone)
	}

	writeItems(&usr, "Open tasks", snap.OpenTasks)
	writeItems(&usr, "Recent projects", snap.Projects)
	writeItems(&usr, "Areas", snap.Areas)
	writeItems(&usr, "Recent resources", snap.Resources)

	if len(snap.Accounts) > 0 {
		usr.WriteString("Accounts:\n")
		for _, a := range snap.Accounts {
			fmt.Fprintf(&usr, "- %s (%s)\n", Truncate(a.Name, truncTitle), a.Kind)
		}
	}
	if len(snap.Modules) > 0 {
		usr.WriteString("Capture modules:\n")
		for _, m := range snap.Modules {
			fmt.Fprintf(&usr, "- %s: %s\n", m.Name, Truncate(m.Description, truncContent))
		}
	}
	if len(snap.Facts) > 0 || len(snap.Lessons) > 0 {
		usr.WriteString("Known facts and lessons:\n")
		for _, k := range snap.Facts {
			fmt.Fprintf(&usr, "- %s\n", Truncate(k.Content, truncContent))
		}
		for _, k := range snap.Lessons {
			fmt.Fprintf(&usr, "- %s\n", Truncate(k.Content, truncContent))
		}
	}
	if len(snap.Turns) > 0 {
		usr.WriteString("Recent conversation on this channel:\n")
		for _, t := range snap.Turns {
			fmt.Fprintf(&usr, "%s: %s\n", t.Role, Truncate(t.Content, truncTurn))
		}
	}

	if urls := ExtractURLs(req.Message); len(urls) > 0 {
		fmt.Fprintf(&usr, "URLs in message: %s\n", strings.Join(urls, " "))
	}
	if tags := ExtractHashtags(req.Message); len(tags) > 0 {
		fmt.Fprintf(&usr, "Suggested tags from hashtags: %s\n", strings.Join(tags, ", "))
	}
	if hint := ExtractAreaHint(req.Message); hint != "" {
		fmt.Fprintf(&usr, "Area hint from prefix: %s\n", hint)
	}

	fmt.Fprintf(&usr, "Duplicate check: %s", verdict.Method)
	if verdict.IsDuplicate {
		fmt.Fprintf(&usr, " — %s", verdict.Reason)
	}
	if verdict.Ignored {
		fmt.Fprintf(&usr, " (note: %s)", verdict.IgnoredReason)
	}
	usr.WriteString("\n\n")

	fmt.Fprintf(&usr, "Message:\n%s\n", req.Message)

	return &BuiltRequest{System: sys.String(), User: usr.String()}
}

func writeItems(b *strings.Builder, heading string, items []para.Item) {
	if len(items) == 0 {
		return
	}
	b.WriteString(heading + ":\n")
	for _, it := range items {
		line := Truncate(it.Title, truncTitle)
		if it.Category != "" {
			line += " [" + it.Category + "]"
		}
		if it.Content != "" {
			line += " — " + Truncate(it.Content, truncContent)
		}
		fmt.Fprintf(b, "- %s\n", line)
	}
}

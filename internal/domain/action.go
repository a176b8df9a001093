package domain

// Action is a local user intent propagated back to the origin server.
type Action string

const (
	ActionMarkRead   Action = "mark_read"
	ActionMarkUnread Action = "mark_unread"
	ActionArchive    Action = "archive"
	ActionMove       Action = "move"
	ActionDelete     Action = "delete"
	ActionStar       Action = "star"
	ActionUnstar     Action = "unstar"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionMarkRead, ActionMarkUnread, ActionArchive, ActionMove,
		ActionDelete, ActionStar, ActionUnstar:
		return true
	}
	return false
}

// ItemOutcome is the result of applying an action to a single message.
type ItemOutcome struct {
	MessageID string `json:"message_id"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
}

// BulkActionResult aggregates per-item outcomes for one bulk action batch.
// Bulk batches are best-effort: a failed item never blocks its siblings.
type BulkActionResult struct {
	SuccessCount int           `json:"success_count"`
	FailureCount int           `json:"failure_count"`
	PerItem      []ItemOutcome `json:"per_item"`
}

// Add records one item outcome and updates the counters.
func (r *BulkActionResult) Add(messageID string, err error) {
	item := ItemOutcome{MessageID: messageID, OK: err == nil}
	if err != nil {
		item.Error = err.Error()
		r.FailureCount++
	} else {
		r.SuccessCount++
	}
	r.PerItem = append(r.PerItem, item)
}

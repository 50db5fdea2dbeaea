package model

import "time"

// MemorySearchQuery selects entries for search and list operations.
// Zero-valued filters are ignored. Text matches against the plaintext
// search projection, never against possibly-encrypted content.
type MemorySearchQuery struct {
	UserID        string       `json:"user_id"`
	Text          string       `json:"text,omitempty"`
	Types         []MemoryType `json:"memory_types,omitempty"`
	MinPriority   Priority     `json:"min_priority,omitempty"`
	Tags          []string     `json:"tags,omitempty"`
	CreatedAfter  *time.Time   `json:"created_after,omitempty"`
	CreatedBefore *time.Time   `json:"created_before,omitempty"`
	Limit         int          `json:"limit,omitempty"`
	Offset        int          `json:"offset,omitempty"`
}

// MemorySearchResult is the response envelope for search operations.
type MemorySearchResult struct {
	Success bool          `json:"success"`
	Message string        `json:"message,omitempty"`
	Entries []MemoryEntry `json:"entries"`
	Total   int           `json:"total"`
	HasMore bool          `json:"has_more"`
	Took    time.Duration `json:"took"`
}

// MemoryOperationResult is the response envelope for mutating operations.
type MemoryOperationResult struct {
	Success       bool          `json:"success"`
	Message       string        `json:"message,omitempty"`
	AffectedCount int           `json:"affected_count"`
	Took          time.Duration `json:"took"`
}

// OK builds a successful operation result.
func OK(message string, affected int) MemoryOperationResult {
	return MemoryOperationResult{Success: true, Message: message, AffectedCount: affected}
}

// Fail builds a failed operation result.
func Fail(message string) MemoryOperationResult {
	return MemoryOperationResult{Success: false, Message: message}
}

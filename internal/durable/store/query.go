package store

import (
	"strconv"
	"strings"
	"time"

	"github.com/kandev/durabletask/internal/durable/model"
)

// Query is the OrchestrationQuery filter from spec.md §4.6.
type Query struct {
	CreatedFrom           *time.Time
	CreatedTo             *time.Time
	Statuses              []model.RuntimeStatus
	InstanceIDPrefix      string
	TaskHubNames          []string // unused: this engine serves a single task hub; always matches.
	FetchInputsAndOutputs bool
	PageSize              int
	ContinuationToken     string
}

func (q Query) matches(status *model.Status) bool {
	if q.CreatedFrom != nil && status.CreatedAt.Before(*q.CreatedFrom) {
		return false
	}
	if q.CreatedTo != nil && status.CreatedAt.After(*q.CreatedTo) {
		return false
	}
	if len(q.Statuses) > 0 {
		found := false
		for _, s := range q.Statuses {
			if s == status.RuntimeStatus {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q.InstanceIDPrefix != "" && !strings.HasPrefix(status.InstanceID, strings.ToLower(q.InstanceIDPrefix)) {
		return false
	}
	return true
}

func (q Query) pageSize(defaultSize int) int {
	if q.PageSize > 0 {
		return q.PageSize
	}
	if defaultSize > 0 {
		return defaultSize
	}
	return 100
}

// parseCursor decodes the opaque continuation token into the index of the
// next record to examine in the store's creation-order list. An empty or
// invalid token starts from the beginning, matching spec.md §6's
// "continuation token is the integer count of records examined so far".
func parseCursor(token string) int {
	if token == "" {
		return 0
	}
	n, err := strconv.Atoi(token)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func formatCursor(n int) string {
	return strconv.Itoa(n)
}

func projectForQuery(status *model.Status, fetchIO bool) *model.Status {
	clone := status.Clone()
	if !fetchIO {
		clone.SerializedInput = nil
		clone.SerializedOutput = nil
		clone.CustomStatus = nil
	}
	return clone
}

// Package audit holds the append-only record of state-changing workspace
// actions.
package audit

import (
	"context"
	"iter"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pitabwire/trialscope/model"
)

// Recorder appends audit entries.
type Recorder interface {
	Record(ctx context.Context, entry model.AuditEntry) error
}

// Filters narrow a listing. Zero values match everything.
type Filters struct {
	ScenarioID string
	Action     string
	SubjectID  string
	Limit      int
}

func (f Filters) match(e model.AuditEntry) bool {
	if f.ScenarioID != "" && e.ScenarioID != f.ScenarioID {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.SubjectID != "" && e.SubjectID != f.SubjectID {
		return false
	}
	return true
}

// MemoryLog is an in-memory append-only audit log. Entries are never
// updated or removed.
type MemoryLog struct {
	mu      sync.RWMutex
	entries []model.AuditEntry
	now     func() time.Time
}

// NewMemoryLog creates an empty audit log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{now: func() time.Time { return time.Now().UTC() }}
}

// Record appends an entry, filling in the ID and timestamp when absent.
// Entries must name an action and a subject.
func (l *MemoryLog) Record(_ context.Context, entry model.AuditEntry) error {
	var details []model.FieldError
	if entry.Action == "" {
		details = append(details, model.FieldError{Field: "action", Code: "REQUIRED", Message: "Action is required"})
	}
	if entry.SubjectID == "" {
		details = append(details, model.FieldError{Field: "subject_id", Code: "REQUIRED", Message: "Subject is required"})
	}
	if len(details) > 0 {
		return model.NewValidationError(details)
	}

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = l.now()
	}
	entry.Detail = copyDetail(entry.Detail)

	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()
	return nil
}

// List returns matching entries newest first. The result is a copy.
func (l *MemoryLog) List(_ context.Context, filters Filters) ([]model.AuditEntry, error) {
	var out []model.AuditEntry
	for e := range l.Entries(filters) {
		out = append(out, e)
	}
	if out == nil {
		out = []model.AuditEntry{}
	}
	return out, nil
}

// Entries returns a restartable sequence over matching entries, newest
// first. Each iteration reads the log as of the moment it starts; entries
// with equal timestamps keep reverse insertion order.
func (l *MemoryLog) Entries(filters Filters) iter.Seq[model.AuditEntry] {
	return func(yield func(model.AuditEntry) bool) {
		l.mu.RLock()
		ordered := make([]model.AuditEntry, len(l.entries))
		for i, e := range l.entries {
			ordered[len(l.entries)-1-i] = e
		}
		l.mu.RUnlock()

		slices.SortStableFunc(ordered, func(a, b model.AuditEntry) int {
			return b.Timestamp.Compare(a.Timestamp)
		})

		emitted := 0
		for _, e := range ordered {
			if !filters.match(e) {
				continue
			}
			e.Detail = copyDetail(e.Detail)
			if !yield(e) {
				return
			}
			emitted++
			if filters.Limit > 0 && emitted >= filters.Limit {
				return
			}
		}
	}
}

// Len returns the total number of entries.
func (l *MemoryLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

func copyDetail(d map[string]any) map[string]any {
	if d == nil {
		return nil
	}
	out := make(map[string]any, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

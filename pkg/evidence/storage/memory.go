package storage

import (
	"context"
	"sort"
	"sync"

	"mercator-hq/overwatch/pkg/evidence"
)

// MemoryStorage keeps audit records in memory. It implements both
// evidence.Sink and evidence.Reader.
type MemoryStorage struct {
	records []*evidence.AuditRecord
	mu      sync.RWMutex
}

// NewMemoryStorage creates a new in-memory storage backend.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

// Append stores a copy of record.
func (s *MemoryStorage) Append(ctx context.Context, record *evidence.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, record.Clone())
	return nil
}

// Query returns copies of the matching records.
func (s *MemoryStorage) Query(ctx context.Context, q *evidence.Query) ([]*evidence.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*evidence.AuditRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r.Clone())
	}
	return applyQuery(out, q), nil
}

// Len returns the number of stored records.
func (s *MemoryStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Close is a no-op.
func (s *MemoryStorage) Close() error {
	return nil
}

// applyQuery filters, orders by StartedAt and paginates records. Records
// with equal start times keep their write order.
func applyQuery(records []*evidence.AuditRecord, q *evidence.Query) []*evidence.AuditRecord {
	if q == nil {
		return records
	}

	filtered := records[:0]
	for _, r := range records {
		if q.Matches(r) {
			filtered = append(filtered, r)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		if q.SortOrder == "desc" {
			return filtered[i].StartedAt.After(filtered[j].StartedAt)
		}
		return filtered[i].StartedAt.Before(filtered[j].StartedAt)
	})

	if q.Offset > 0 {
		if q.Offset >= len(filtered) {
			return []*evidence.AuditRecord{}
		}
		filtered = filtered[q.Offset:]
	}
	if q.Limit > 0 && q.Limit < len(filtered) {
		filtered = filtered[:q.Limit]
	}
	return filtered
}

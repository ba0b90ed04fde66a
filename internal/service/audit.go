package service

import (
	"context"
	"sync"
	"time"

	"github.com/TaroHarado/copytrade-key/internal/model"
	"github.com/TaroHarado/copytrade-key/internal/pkg/logger"
)

// AuditFilter narrows audit queries; zero values mean "any".
type AuditFilter struct {
	UserID        int64
	SignatureType string
	Limit         int
	From, To      *time.Time
}

type AuditRepo interface {
	Insert(ctx context.Context, entry *model.SignatureAudit) (int64, error)
	List(ctx context.Context, filter AuditFilter) ([]*model.SignatureAudit, error)
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// AuditRecorder appends one row per signing attempt. The write is
// synchronous: the orchestrator's outcome contract includes the audit id,
// so the row must exist before control returns to the caller. When the
// database is unreachable the entry is kept in a bounded in-memory buffer
// for inspection and id 0 is returned.
type AuditRecorder struct {
	repo   AuditRepo
	buffer *auditBuffer
}

func NewAuditRecorder(repo AuditRepo) *AuditRecorder {
	return &AuditRecorder{
		repo:   repo,
		buffer: newAuditBuffer(1000),
	}
}

func (r *AuditRecorder) Record(ctx context.Context, entry *model.SignatureAudit) int64 {
	entry.CreatedAt = time.Now().UTC()

	if r.repo != nil {
		id, err := r.repo.Insert(ctx, entry)
		if err == nil {
			entry.ID = id
			r.buffer.Add(entry)
			return id
		}
		logger.Error("failed to persist audit record",
			"signature_type", entry.SignatureType,
			"user_id", entry.UserID,
			"error", err)
	}

	r.buffer.Add(entry)
	return 0
}

func (r *AuditRecorder) List(ctx context.Context, filter AuditFilter) ([]*model.SignatureAudit, error) {
	if r.repo != nil {
		records, err := r.repo.List(ctx, filter)
		if err == nil {
			return records, nil
		}
		logger.Error("audit list query failed, serving in-memory buffer", "error", err)
	}
	return r.buffer.List(filter), nil
}

// auditBuffer is a fixed-size ring of the most recent entries.
type auditBuffer struct {
	mu        sync.Mutex
	maxSize   int
	records   []*model.SignatureAudit
	nextIndex int
}

func newAuditBuffer(maxSize int) *auditBuffer {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &auditBuffer{
		maxSize: maxSize,
		records: make([]*model.SignatureAudit, 0, maxSize),
	}
}

func (b *auditBuffer) Add(entry *model.SignatureAudit) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.records) < b.maxSize {
		b.records = append(b.records, entry)
		return
	}
	b.records[b.nextIndex] = entry
	b.nextIndex = (b.nextIndex + 1) % b.maxSize
}

func (b *auditBuffer) List(filter AuditFilter) []*model.SignatureAudit {
	b.mu.Lock()
	defer b.mu.Unlock()

	limit := filter.Limit
	if limit <= 0 || limit > b.maxSize {
		limit = b.maxSize
	}

	results := make([]*model.SignatureAudit, 0, limit)
	total := len(b.records)
	for i := 0; i < total; i++ {
		idx := (b.nextIndex + total - 1 - i) % total
		entry := b.records[idx]
		if entry == nil {
			continue
		}
		if filter.UserID != 0 && entry.UserID != filter.UserID {
			continue
		}
		if filter.SignatureType != "" && entry.SignatureType != filter.SignatureType {
			continue
		}
		results = append(results, entry)
		if len(results) >= limit {
			break
		}
	}
	return results
}

package service

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/casetrack/casetrack/internal/audit"
	"github.com/casetrack/casetrack/internal/domain"
)

type memoryAuditRecorder struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (m *memoryAuditRecorder) Record(_ context.Context, e audit.Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
}

func (m *memoryAuditRecorder) results() []domain.AuditResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.AuditResult, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.Result
	}
	return out
}

type countingMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func (m *countingMetrics) RecordCaseOperation(op, result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = map[string]int{}
	}
	m.counts[op+"/"+result]++
}

func newUser(role domain.Role) *domain.User {
	id := uuid.NewString()
	return &domain.User{
		ID:       id,
		Username: string(role) + "-" + id[:8],
		Email:    id[:8] + "@example.com",
		Role:     role,
		IsActive: true,
	}
}

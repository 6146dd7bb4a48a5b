// Package audit records security relevant decisions.
package audit

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/casetrack/casetrack/internal/domain"
	"github.com/casetrack/casetrack/internal/repository"
)

type metaKey struct{}

// RequestMeta identifies the client behind an audited action.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// WithRequestMeta attaches client metadata to ctx.
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, metaKey{}, meta)
}

// MetaFromContext returns the client metadata stored on ctx, if any.
func MetaFromContext(ctx context.Context) RequestMeta {
	meta, _ := ctx.Value(metaKey{}).(RequestMeta)
	return meta
}

// Entry is the caller-provided part of an audit record.
type Entry struct {
	Actor        *domain.User
	UserID       string
	Action       string
	ResourceType string
	ResourceID   string
	Result       domain.AuditResult
	Details      string
}

// Recorder persists audit entries and mirrors them to a named logger.
type Recorder interface {
	Record(ctx context.Context, entry Entry)
}

type recorder struct {
	repo   repository.AuditRepository
	logger *zap.Logger
	now    func() time.Time
}

// NewRecorder builds a Recorder. repo may be nil, in which case entries
// only reach the log.
func NewRecorder(repo repository.AuditRepository, logger *zap.Logger) Recorder {
	return &recorder{repo: repo, logger: logger.Named("audit"), now: time.Now}
}

// Record never fails the calling operation; storage errors are logged.
func (r *recorder) Record(ctx context.Context, entry Entry) {
	rec := r.build(ctx, entry)

	fields := []zap.Field{
		zap.String("audit_id", rec.ID),
		zap.String("action", rec.Action),
		zap.String("resource_type", rec.ResourceType),
		zap.String("result", string(rec.Result)),
		zap.String("ip", rec.IPAddress),
	}
	if rec.UserID != nil {
		fields = append(fields, zap.String("user_id", *rec.UserID))
	}
	if rec.ResourceID != nil {
		fields = append(fields, zap.String("resource_id", *rec.ResourceID))
	}
	if rec.Details != "" {
		fields = append(fields, zap.String("details", rec.Details))
	}

	switch rec.Result {
	case domain.AuditSuccess, domain.AuditCorrected:
		r.logger.Info("audit", fields...)
	default:
		r.logger.Warn("audit", fields...)
	}

	if r.repo == nil {
		return
	}
	if err := r.repo.Create(context.WithoutCancel(ctx), rec); err != nil {
		r.logger.Error("persist audit entry", append(fields, zap.Error(err))...)
	}
}

func (r *recorder) build(ctx context.Context, entry Entry) *domain.AuditEntry {
	now := r.now().UTC()
	meta := MetaFromContext(ctx)

	rec := &domain.AuditEntry{
		ID:           ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		Action:       entry.Action,
		ResourceType: entry.ResourceType,
		Result:       entry.Result,
		Details:      entry.Details,
		IPAddress:    meta.IPAddress,
		UserAgent:    truncate(meta.UserAgent, 255),
		Timestamp:    now,
	}

	userID := entry.UserID
	if userID == "" && entry.Actor != nil {
		userID = entry.Actor.ID
	}
	if userID != "" {
		rec.UserID = &userID
	}
	if entry.ResourceID != "" {
		id := entry.ResourceID
		rec.ResourceID = &id
	}
	return rec
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

package audit

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	stringsutil "skillpass/pkg/platform/strings"
	"skillpass/pkg/requestcontext"
)

// Store persists audit entries. Append must be durable before returning;
// Fetch serves compliance reporting.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	Fetch(ctx context.Context, filter Filter) ([]Entry, error)
}

// Recorder is the single write path for the audit trail.
//
// Record is fire-and-forget relative to the operation being audited: a storage
// failure is logged and counted, never returned. This inverts the usual error
// discipline on purpose - correctness of the audited operation outranks
// completeness of the trail for any single call. Systemic write failures are
// surfaced through the write_failures metric instead.
type Recorder struct {
	store   Store
	logger  *slog.Logger
	metrics *Metrics
}

// NewRecorder builds a Recorder. metrics may be nil in tests.
func NewRecorder(store Store, logger *slog.Logger, metrics *Metrics) *Recorder {
	return &Recorder{store: store, logger: logger, metrics: metrics}
}

// Record appends an entry. The request origin (IP, user agent) and actor are
// filled from the context when the entry leaves them empty. Never returns an
// error and never panics past the store boundary.
func (r *Recorder) Record(ctx context.Context, entry Entry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = requestcontext.Now(ctx)
	}
	if entry.ActorID == "" {
		entry.ActorID = requestcontext.ActorID(ctx)
	}
	if entry.ClientIP == "" {
		entry.ClientIP = requestcontext.ClientIP(ctx)
	}
	if entry.UserAgent == "" {
		entry.UserAgent = requestcontext.UserAgent(ctx)
	}
	if entry.Metadata == nil {
		entry.Metadata = map[string]string{}
	}
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		entry.Metadata["request_id"] = requestID
	}
	entry.PIITypes = normalizePIITypes(entry.PIITypes)

	// Detach from the request deadline: an almost-expired request should
	// still get its audit entry written.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := r.store.Append(writeCtx, entry); err != nil {
		r.metrics.IncWriteFailure(entry.Action)
		r.logger.ErrorContext(ctx, "audit write failed",
			"action", entry.Action,
			"resource_type", entry.ResourceType,
			"resource_id", entry.ResourceID,
			"error", err,
		)
		return
	}
	r.metrics.IncRecorded(entry.Action)
}

// normalizePIITypes drops duplicate and blank PII tags so the persisted
// trail stays queryable by exact tag.
func normalizePIITypes(types []PIIType) []PIIType {
	if len(types) < 2 {
		return types
	}
	raw := make([]string, len(types))
	for i, t := range types {
		raw[i] = string(t)
	}
	deduped := stringsutil.DedupeAndTrim(raw)
	out := make([]PIIType, len(deduped))
	for i, s := range deduped {
		out[i] = PIIType(s)
	}
	return out
}

// Fetch returns entries matching the filter for compliance reporting. The
// fetch itself is recorded: reading the trail exposes PII-touching history
// and gets the same treatment as any other read of personal data.
func (r *Recorder) Fetch(ctx context.Context, filter Filter) ([]Entry, error) {
	entries, err := r.store.Fetch(ctx, filter)

	metadata := map[string]string{"returned": strconv.Itoa(len(entries))}
	if filter.Action != "" {
		metadata["filter_action"] = filter.Action
	}
	if filter.ActorID != "" {
		metadata["filter_actor_id"] = filter.ActorID
	}
	errorMessage := ""
	if err != nil {
		errorMessage = err.Error()
	}
	r.Record(ctx, Entry{
		Action:       ActionAuditFetch,
		ResourceType: ResourceAuditLog,
		Purpose:      "compliance reporting",
		Success:      err == nil,
		ErrorMessage: errorMessage,
		Metadata:     metadata,
	})

	if err != nil {
		return nil, err
	}
	return entries, nil
}

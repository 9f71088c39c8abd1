package observability

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Audit event types.
const (
	AuditOperation = "operation"
	AuditDocument  = "document"
	AuditConfig    = "config"
)

// AuditEvent is one line of the audit log.
type AuditEvent struct {
	Type      string
	Timestamp time.Time
	// Actor is the session identity that caused the event.
	Actor  string
	Action string
	// Status is "success" or "failure".
	Status    string
	Path      string
	ErrorKind string
	Duration  time.Duration
	Metadata  map[string]interface{}
	TraceID   string
}

// AuditLogger writes audit events as JSON lines.
type AuditLogger struct {
	mu     sync.Mutex
	logger zerolog.Logger
	file   *os.File
}

var (
	auditMu   sync.RWMutex
	auditInst *AuditLogger
)

// NewAuditLogger returns an audit logger writing to l.
func NewAuditLogger(l zerolog.Logger) *AuditLogger {
	return &AuditLogger{logger: l}
}

// GetAuditLogger returns the process audit logger. Until InitAuditLogger
// succeeds, events go to stderr.
func GetAuditLogger() *AuditLogger {
	auditMu.RLock()
	a := auditInst
	auditMu.RUnlock()
	if a != nil {
		return a
	}

	auditMu.Lock()
	defer auditMu.Unlock()
	if auditInst == nil {
		auditInst = NewAuditLogger(zerolog.New(os.Stderr).With().Timestamp().Logger())
	}
	return auditInst
}

// InitAuditLogger appends audit events to the file at path, replacing the
// current process audit logger.
func InitAuditLogger(path string) error {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}

	a := NewAuditLogger(zerolog.New(file).With().Timestamp().Logger())
	a.file = file

	auditMu.Lock()
	prev := auditInst
	auditInst = a
	auditMu.Unlock()

	if prev != nil {
		_ = prev.Close()
	}
	return nil
}

// Record writes event. When ctx carries a live span the event is also
// attached to it.
func (a *AuditLogger) Record(ctx context.Context, event AuditEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		event.TraceID = span.SpanContext().TraceID().String()
		span.AddEvent("audit."+event.Action, trace.WithAttributes(
			attribute.String("audit.type", event.Type),
			attribute.String("audit.status", event.Status),
			attribute.String("audit.actor", event.Actor),
			attribute.String("audit.path", event.Path),
		))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	entry := a.logger.Log().
		Time("at", event.Timestamp).
		Str("type", event.Type).
		Str("actor", event.Actor).
		Str("action", event.Action).
		Str("status", event.Status)
	if event.Path != "" {
		entry.Str("path", event.Path)
	}
	if event.ErrorKind != "" {
		entry.Str("error_kind", event.ErrorKind)
	}
	if event.Duration > 0 {
		entry.Dur("duration", event.Duration)
	}
	if event.TraceID != "" {
		entry.Str("trace_id", event.TraceID)
	}
	if len(event.Metadata) > 0 {
		entry.Fields(event.Metadata)
	}
	entry.Send()
}

// Close closes the audit file, if any.
func (a *AuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	return err
}

// OperationAudit describes one dispatched mutating operation.
type OperationAudit struct {
	Operation string
	Actor     string
	Path      string
	// Saved is the path written by the call, empty when nothing was saved.
	Saved     string
	Session   bool
	ErrorKind string
	Duration  time.Duration
}

// RecordOperationAudit logs a mutating operation. A call that failed is
// recorded with status "failure" and its error kind.
func RecordOperationAudit(ctx context.Context, op OperationAudit) {
	status := "success"
	if op.ErrorKind != "" {
		status = "failure"
	}
	meta := map[string]interface{}{"session": op.Session}
	if op.Saved != "" {
		meta["saved"] = op.Saved
	}
	GetAuditLogger().Record(ctx, AuditEvent{
		Type:      AuditOperation,
		Actor:     op.Actor,
		Action:    "dispatch:" + op.Operation,
		Status:    status,
		Path:      op.Path,
		ErrorKind: op.ErrorKind,
		Duration:  op.Duration,
		Metadata:  meta,
	})
}

// RecordDocumentAudit logs a document lifecycle action such as a commit.
func RecordDocumentAudit(ctx context.Context, action, actor, path string) {
	GetAuditLogger().Record(ctx, AuditEvent{
		Type:   AuditDocument,
		Actor:  actor,
		Action: action,
		Status: "success",
		Path:   path,
	})
}

// RecordConfigAudit logs the configuration a process started with.
func RecordConfigAudit(ctx context.Context, action, actor string, settings map[string]interface{}) {
	GetAuditLogger().Record(ctx, AuditEvent{
		Type:     AuditConfig,
		Actor:    actor,
		Action:   action,
		Status:   "success",
		Metadata: settings,
	})
}

package operation

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/harun/docmcp/internal/observability"
	"github.com/harun/docmcp/internal/tracing"
	"github.com/harun/docmcp/pkg/document"
	"github.com/harun/docmcp/pkg/errdefs"
	"github.com/harun/docmcp/pkg/identity"
	"github.com/harun/docmcp/pkg/session"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Request is one inbound call.
type Request struct {
	Operation string
	Arguments map[string]interface{}
	// Document optionally supplies an already loaded document for stateless calls.
	Document *document.Document
}

// DispatcherConfig wires the dispatcher's collaborators. Sessions may be nil.
type DispatcherConfig struct {
	Registry          *Registry
	Storage           *document.Storage
	Sessions          *session.Manager
	Identity          identity.Accessor
	RollbackOnFailure bool
}

// Dispatcher runs calls: resolve, validate, execute, roll back on failure,
// finalize, release.
type Dispatcher struct {
	registry  *Registry
	storage   *document.Storage
	sessions  *session.Manager
	identity  identity.Accessor
	finalizer *Finalizer
	rollback  bool
}

// NewDispatcher creates a dispatcher. Registry and Storage are required.
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("dispatcher requires a registry")
	}
	if cfg.Storage == nil {
		return nil, fmt.Errorf("dispatcher requires storage")
	}
	if cfg.Identity == nil {
		cfg.Identity = identity.FromContext()
	}
	observability.EnsureRegistered()

	return &Dispatcher{
		registry:  cfg.Registry,
		storage:   cfg.Storage,
		sessions:  cfg.Sessions,
		identity:  cfg.Identity,
		finalizer: &Finalizer{},
		rollback:  cfg.RollbackOnFailure,
	}, nil
}

// Registry returns the registry calls are resolved against.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// Sessions returns the session manager, or nil.
func (d *Dispatcher) Sessions() *session.Manager { return d.sessions }

// Dispatch executes one call and always returns a response.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (resp Response) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = tracing.WithOperation(tracing.EnsureTraceID(ctx), req.Operation)
	ctx, span := tracing.StartSpan(
		ctx,
		"docmcp.operation",
		"operation.dispatch",
		attribute.String("operation", req.Operation),
	)
	defer span.End()

	caller := d.identity.CurrentIdentity(ctx)
	logger := tracing.LoggerFromContext(ctx, log.Logger).With().Str("caller", caller).Logger()
	start := time.Now()

	var (
		desc      *Descriptor
		source    string
		inSession bool
	)
	defer func() {
		kind := ""
		if !resp.Success && resp.Error != nil {
			kind = string(resp.Error.Kind)
			span.SetStatus(codes.Error, resp.Error.Message)
		}
		name := req.Operation
		if desc != nil {
			name = desc.Name
		}
		observability.RecordOperation(name, time.Since(start), kind)

		if desc != nil && desc.Traits.Access == AccessWrite {
			observability.RecordOperationAudit(ctx, observability.OperationAudit{
				Operation: name,
				Actor:     caller,
				Path:      source,
				Saved:     resp.Saved,
				Session:   inSession,
				ErrorKind: kind,
				Duration:  time.Since(start),
			})
		}

		event := logger.Debug()
		if !resp.Success {
			event = logger.Warn().Str("error_code", resp.Error.Code).Str("error", resp.Error.Message)
		}
		event.Dur("duration", time.Since(start)).Bool("success", resp.Success).Msg("Operation dispatched")
	}()

	desc, ok := d.registry.Descriptor(req.Operation)
	if !ok {
		err := errdefs.Unsupported(req.Operation)
		span.RecordError(err)
		return Failure(req.Operation, err)
	}
	handler := desc.Factory()

	if err := desc.Validate(req.Arguments); err != nil {
		span.RecordError(err)
		return Failure(desc.Name, err)
	}
	params := NewParameters(desc.Name, req.Arguments)

	c, err := d.newContext(ctx, desc, params, req.Document, caller)
	if err != nil {
		span.RecordError(err)
		return Failure(desc.Name, err)
	}
	defer c.releaseLeases()
	source, inSession = c.SourcePath, c.UseSession

	span.SetAttributes(
		attribute.String("path", c.SourcePath),
		attribute.Bool("session", c.UseSession),
	)

	raw, err := d.execute(c, handler, params)
	if err != nil {
		span.RecordError(err)
		if d.rollback {
			if n := c.rollbackLeases(); n > 0 {
				logger.Warn().Int("documents", n).Msg("Rolled back failed edit")
			}
		}
	}

	return d.finalizer.FinalizeResult(c, raw, err, desc.Traits.Output)
}

func (d *Dispatcher) newContext(ctx context.Context, desc *Descriptor, params Parameters, doc *document.Document, caller string) (*Context, error) {
	path, err := GetOptional(params, ParamPath, "")
	if err != nil {
		return nil, err
	}
	outputPath, err := GetOptional(params, ParamOutputPath, "")
	if err != nil {
		return nil, err
	}
	useSession, err := GetOptional(params, ParamUseSession, !identity.IsAnonymous(caller))
	if err != nil {
		return nil, err
	}
	if desc.Traits.NeedsDocument && path == "" && doc == nil {
		return nil, errdefs.MissingParameter(desc.Name, ParamPath)
	}

	return &Context{
		Context:    identity.WithIdentity(ctx, caller),
		Operation:  desc.Name,
		Document:   doc,
		Sessions:   d.sessions,
		Identity:   identity.FromContext(),
		Storage:    d.storage,
		SourcePath: path,
		OutputPath: outputPath,
		UseSession: useSession && d.sessions != nil,
		access:     desc.Traits.Access,
		rollback:   d.rollback,
	}, nil
}

// execute runs the handler and converts panics into internal errors.
func (d *Dispatcher) execute(c *Context, h Handler, params Parameters) (raw Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("operation", c.Operation).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("Handler panicked")
			raw = Result{}
			err = errdefs.Internal(c.Operation, fmt.Errorf("handler panicked: %v", r))
		}
	}()

	if err := c.Err(); err != nil {
		return Result{}, errdefs.Wrap(errdefs.KindCanceled, c.Operation, err, "call canceled before start")
	}
	return h.Execute(c, params)
}

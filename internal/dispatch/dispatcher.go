// Package dispatch routes parsed requests to registered handlers. It
// owns the per-command lifecycle: arity check, session lookup, handler
// invocation with panic containment, error-to-reply conversion, and
// metrics.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fileferry/internal/command"
	"fileferry/internal/logging"
	"fileferry/internal/monitoring"
	"fileferry/internal/session"
	"fileferry/internal/shared/errs"
)

// Dispatcher executes commands against operator sessions.
type Dispatcher struct {
	registry *command.Registry
	sessions *session.Store
	metrics  *monitoring.Metrics
	log      *logging.Logger
}

// New builds a dispatcher. Metrics may be nil in tests.
func New(registry *command.Registry, sessions *session.Store, metrics *monitoring.Metrics, log *logging.Logger) *Dispatcher {
	if log == nil {
		log = logging.NewNop()
	}
	return &Dispatcher{
		registry: registry,
		sessions: sessions,
		metrics:  metrics,
		log:      log,
	}
}

// Dispatch runs one command and always returns a reply the transport
// can render. Handler failures become error replies carrying only the
// sanitized user message; the full cause is logged server-side.
func (d *Dispatcher) Dispatch(ctx context.Context, operator, name string, args []string) *command.Reply {
	req := &command.Request{
		ID:       uuid.NewString(),
		Operator: operator,
		Name:     name,
		Args:     args,
	}

	start := time.Now()
	reply := d.execute(ctx, req)
	elapsed := time.Since(start)

	status := "ok"
	if reply.Kind == command.ReplyError {
		status = "error"
		if d.metrics != nil {
			d.metrics.RecordError(name, reply.Err.Kind.String())
		}
	}
	if d.metrics != nil {
		d.metrics.RecordCommand(name, status, elapsed)
		d.metrics.SessionsActive.Set(float64(d.sessions.Count()))
		if reply.Kind == command.ReplyFile {
			d.metrics.RecordTransfer(reply.FileSize)
		}
	}

	d.log.Debug("command dispatched",
		zap.String("request_id", req.ID),
		zap.String("operator", operator),
		zap.String("command", name),
		zap.String("status", status),
		zap.Duration("elapsed", elapsed))
	return reply
}

func (d *Dispatcher) execute(ctx context.Context, req *command.Request) (reply *command.Reply) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("handler panic",
				zap.String("request_id", req.ID),
				zap.String("command", req.Name),
				zap.Any("panic", r))
			reply = command.NewError(errs.New(errs.KindOSFailure, req.Name, "",
				fmt.Sprintf("%s failed", req.Name)))
		}
	}()

	spec, ok := d.registry.Get(req.Name)
	if !ok {
		return command.NewError(errs.InvalidArgument(req.Name,
			fmt.Sprintf("unknown command %q; try help", req.Name)))
	}
	if err := spec.CheckArity(req.Args); err != nil {
		return d.errorReply(req, err)
	}

	sess := d.sessions.Get(req.Operator)
	out, err := spec.Handler(ctx, req, sess)
	if err != nil {
		return d.errorReply(req, err)
	}
	return out
}

// errorReply converts a handler error to an error reply. Containment
// violations log the real path while the operator sees the same text a
// missing path produces.
func (d *Dispatcher) errorReply(req *command.Request, err error) *command.Reply {
	e := errs.AsError(req.Name, err)
	switch e.Kind {
	case errs.KindPathEscape:
		d.log.Warn("containment violation",
			zap.String("request_id", req.ID),
			zap.String("operator", req.Operator),
			zap.String("command", req.Name),
			zap.String("token", e.Path))
	case errs.KindOSFailure:
		d.log.Error("command failed",
			zap.String("request_id", req.ID),
			zap.String("command", req.Name),
			zap.Error(e))
	default:
		d.log.Debug("command rejected",
			zap.String("request_id", req.ID),
			zap.String("command", req.Name),
			zap.String("kind", e.Kind.String()),
			zap.String("message", e.Msg))
	}
	return command.NewError(e)
}

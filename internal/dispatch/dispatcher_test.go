package dispatch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fileferry/internal/command"
	"fileferry/internal/session"
	"fileferry/internal/shared/errs"
)

func newTestDispatcher(t *testing.T, install func(reg *command.Registry)) (*Dispatcher, string) {
	t.Helper()
	root := t.TempDir()
	resolved, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	root = resolved

	reg := command.NewRegistry()
	require.NoError(t, reg.Register(echoSpec()))
	if install != nil {
		install(reg)
	}
	require.NoError(t, reg.Validate())
	return New(reg, session.NewStore(root), nil, nil), root
}

func echoSpec() command.Spec {
	return command.Spec{
		Name: "echo", Usage: "echo <text>", Summary: "echo the arguments",
		MinArgs: 1, MaxArgs: -1,
		Handler: func(ctx context.Context, req *command.Request, sess *session.Session) (*command.Reply, error) {
			return command.NewText(fmt.Sprintf("%v", req.Args)), nil
		},
	}
}

func TestDispatchRunsHandler(t *testing.T) {
	d, _ := newTestDispatcher(t, nil)

	reply := d.Dispatch(context.Background(), "op", "echo", []string{"hello"})
	assert.Equal(t, command.ReplyText, reply.Kind)
	assert.Contains(t, reply.Text, "hello")
}

func TestDispatchUnknownCommand(t *testing.T) {
	d, _ := newTestDispatcher(t, nil)

	reply := d.Dispatch(context.Background(), "op", "frobnicate", nil)
	require.Equal(t, command.ReplyError, reply.Kind)
	assert.Equal(t, errs.KindInvalidArgument, reply.Err.Kind)
	assert.Contains(t, reply.Err.Msg, "help")
}

func TestDispatchArityFailure(t *testing.T) {
	d, _ := newTestDispatcher(t, nil)

	reply := d.Dispatch(context.Background(), "op", "echo", nil)
	require.Equal(t, command.ReplyError, reply.Kind)
	assert.Equal(t, errs.KindInvalidArgument, reply.Err.Kind)
	assert.Contains(t, reply.Err.Msg, "echo <text>")
}

func TestDispatchContainsPanic(t *testing.T) {
	d, _ := newTestDispatcher(t, func(reg *command.Registry) {
		require.NoError(t, reg.Register(command.Spec{
			Name: "boom", Usage: "boom", Summary: "always panics",
			MinArgs: 0, MaxArgs: 0,
			Handler: func(ctx context.Context, req *command.Request, sess *session.Session) (*command.Reply, error) {
				panic("kaboom")
			},
		}))
	})

	reply := d.Dispatch(context.Background(), "op", "boom", nil)
	require.Equal(t, command.ReplyError, reply.Kind)
	assert.Equal(t, errs.KindOSFailure, reply.Err.Kind)
	// The panic value never reaches the operator.
	assert.NotContains(t, reply.Err.Msg, "kaboom")
}

func TestDispatchEscapeAndMissingReadAlike(t *testing.T) {
	d, _ := newTestDispatcher(t, func(reg *command.Registry) {
		require.NoError(t, reg.Register(command.Spec{
			Name: "peek", Usage: "peek <path>", Summary: "fail by kind",
			MinArgs: 1, MaxArgs: 1,
			Handler: func(ctx context.Context, req *command.Request, sess *session.Session) (*command.Reply, error) {
				if req.Arg(0) == "escape" {
					return nil, errs.PathEscape("peek", "secret")
				}
				return nil, errs.NotFound("peek", "secret")
			},
		}))
	})

	escape := d.Dispatch(context.Background(), "op", "peek", []string{"escape"})
	missing := d.Dispatch(context.Background(), "op", "peek", []string{"missing"})
	require.Equal(t, command.ReplyError, escape.Kind)
	require.Equal(t, command.ReplyError, missing.Kind)
	assert.Equal(t, errs.UserMessage(missing.Err), errs.UserMessage(escape.Err))
}

func TestDispatchConcurrentOperators(t *testing.T) {
	d, root := newTestDispatcher(t, func(reg *command.Registry) {
		require.NoError(t, reg.Register(command.Spec{
			Name: "whereami", Usage: "whereami", Summary: "report session cwd",
			MinArgs: 0, MaxArgs: 0,
			Handler: func(ctx context.Context, req *command.Request, sess *session.Session) (*command.Reply, error) {
				return command.NewText(sess.Cwd()), nil
			},
		}))
	})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			operator := fmt.Sprintf("op-%d", n%4)
			for j := 0; j < 25; j++ {
				reply := d.Dispatch(context.Background(), operator, "whereami", nil)
				assert.Equal(t, root, reply.Text)
			}
		}(i)
	}
	wg.Wait()
}

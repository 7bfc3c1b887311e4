// Package transport delivers command replies back to the collaborator
// that owns the operator-facing channel. The service renders replies;
// the collaborator owns presentation and chat credentials.
package transport

import (
	"context"

	"fileferry/internal/command"
)

// Sender pushes one reply out of the service. Implementations own
// retry policy and must honor the reply's cleanup obligation for
// temporary file payloads.
type Sender interface {
	SendText(ctx context.Context, operator, text string) error
	SendFile(ctx context.Context, operator string, reply *command.Reply) error
}

// Package command defines the dispatch contracts: the parsed request,
// the tagged reply variants, and the per-command argument schema the
// registry validates before a handler runs.
package command

import (
	"context"

	"fileferry/internal/session"
	"fileferry/internal/shared/errs"
)

// ArgKind declares how an argument position is interpreted. The
// registry only checks arity; handlers parse values, but the schema
// documents the contract and feeds the help text.
type ArgKind uint8

const (
	ArgPath ArgKind = iota
	ArgName
	ArgNumber
	ArgMode
	ArgText
)

// Arg describes one positional argument.
type Arg struct {
	Name     string
	Kind     ArgKind
	Required bool
}

// Request is one parsed command from the transport collaborator.
type Request struct {
	ID       string
	Operator string
	Name     string
	Args     []string
}

// Arg returns the i-th argument or the empty string.
func (r *Request) Arg(i int) string {
	if i < 0 || i >= len(r.Args) {
		return ""
	}
	return r.Args[i]
}

// ReplyKind tags the reply variant.
type ReplyKind uint8

const (
	ReplyText ReplyKind = iota
	ReplyFile
	ReplyError
)

// Reply is the structured command result handed back to the
// transport. Exactly one variant is populated; a reply is never both
// text and file.
type Reply struct {
	Kind ReplyKind

	Text string

	// File payloads: absolute path plus the display name the
	// transport should suggest. Cleanup marks a temporary artifact
	// the transport must remove after sending, success or not.
	FilePath string
	FileName string
	FileSize int64
	Cleanup  bool

	Err *errs.Error
}

// NewText builds a text reply.
func NewText(text string) *Reply {
	return &Reply{Kind: ReplyText, Text: text}
}

// NewFile builds a file reply for a durable file.
func NewFile(path, name string, size int64) *Reply {
	return &Reply{Kind: ReplyFile, FilePath: path, FileName: name, FileSize: size}
}

// NewTempFile builds a file reply whose payload must be deleted after
// the send completes.
func NewTempFile(path, name string, size int64) *Reply {
	return &Reply{Kind: ReplyFile, FilePath: path, FileName: name, FileSize: size, Cleanup: true}
}

// NewError builds an error reply.
func NewError(err *errs.Error) *Reply {
	return &Reply{Kind: ReplyError, Err: err}
}

// HandlerFunc performs one command against the operator's session.
type HandlerFunc func(ctx context.Context, req *Request, sess *session.Session) (*Reply, error)

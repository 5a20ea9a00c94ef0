package receipt

import (
	"context"
	"errors"
	"time"

	"github.com/cloudloader/cloudinstaller/internal/checksum"
	"github.com/cloudloader/cloudinstaller/internal/observability"
)

// MaxErrorLength caps error strings stored in receipts.
const MaxErrorLength = 2048

// Result statuses.
const (
	StatusSuccess  = "success"
	StatusFail     = "fail"
	StatusCanceled = "canceled"
)

// Session tracks one command execution.
type Session struct {
	ctx     context.Context
	start   time.Time
	command string
	args    []string
}

func Start(ctx context.Context, cmd string, args []string) *Session {
	return &Session{
		ctx:     ctx,
		start:   time.Now(),
		command: cmd,
		args:    args,
	}
}

type Option func(*Receipt)

// WithProfile records the profile path and its sha256 when readable.
func WithProfile(path, profileVersion string) Option {
	return func(r *Receipt) {
		if path == "" {
			return
		}
		ref := &ProfileRef{Path: path, Version: profileVersion}
		if sum, err := checksum.SHA256File(path); err == nil {
			ref.SHA256 = sum
		}
		r.Profile = ref
	}
}

func WithInstall(s InstallSummary) Option {
	return func(r *Receipt) {
		r.Install = &s
	}
}

func WithDiff(changes int, summary string) Option {
	return func(r *Receipt) {
		r.Diff = &DiffSummary{Changes: changes, Summary: summary}
	}
}

// Finish writes the receipt if a writer is configured in the session context.
// A context.Canceled error is recorded as "canceled" rather than "fail".
func (s *Session) Finish(err error, opts ...Option) error {
	w := From(s.ctx)
	if w == nil {
		return nil
	}

	args, redacted := RedactArgs(s.args)
	r := Receipt{
		SchemaVersion: ReceiptSchemaVersion,
		OpID:          observability.OpID(s.ctx),
		TsStart:       s.start.Format(time.RFC3339Nano),
		TsEnd:         time.Now().Format(time.RFC3339Nano),
		Command:       s.command,
		Args:          args,
		ArgsRedacted:  redacted,
		Result:        Result{Status: StatusSuccess},
	}

	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		r.Result = Result{Status: StatusCanceled, Error: truncateError(err.Error())}
	default:
		r.Result = Result{Status: StatusFail, Error: truncateError(err.Error())}
	}

	for _, opt := range opts {
		opt(&r)
	}

	return w.Write(r)
}

func truncateError(s string) string {
	if len(s) <= MaxErrorLength {
		return s
	}
	return s[:MaxErrorLength-3] + "..."
}

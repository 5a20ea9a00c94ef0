// Package install sequences a run: extract the contained artifact, fetch the
// target jar, acquire libraries, resolve tokens, run processors.
package install

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/cloudloader/cloudinstaller/internal/artifact"
	"github.com/cloudloader/cloudinstaller/internal/libraries"
	"github.com/cloudloader/cloudinstaller/internal/models"
	"github.com/cloudloader/cloudinstaller/internal/processor"
	"github.com/cloudloader/cloudinstaller/internal/progress"
)

var (
	// ErrCanceled marks a run stopped by the user. It is not a failure.
	ErrCanceled = errors.New("installation canceled")
	// ErrInvalidTarget is returned when the target cannot hold an installation.
	ErrInvalidTarget = errors.New("invalid target")
	// ErrUnknownAction is returned by ActionByName.
	ErrUnknownAction = errors.New("unknown action")
)

// Action is one kind of installation.
type Action interface {
	Run(ctx context.Context, target, installer string) error
	// PathError describes a problem with target, or "" when it is usable.
	PathError(target string) string
	SuccessMessage() string
}

// Archive is the installer archive as seen by an action.
type Archive interface {
	ExtractFile(name, dst string) error
	HasArtifact(c artifact.Coordinate) bool
	ExtractArtifact(c artifact.Coordinate, dst string) error
}

// Deps are the collaborators shared by every action.
type Deps struct {
	Profile *models.InstallProfile
	// Archive may be nil when the profile was loaded on its own.
	Archive  Archive
	Config   Config
	Progress progress.Callback
	// Fetcher defaults to a netutil downloader built from Config.Download.
	Fetcher libraries.Fetcher
	// Executor defaults to a JavaExecutor.
	Executor processor.Executor
	// Enabled gates optionals. nil enables everything.
	Enabled func(name string) bool
}

// ActionByName returns "server" or "extract".
func ActionByName(name string, deps Deps) (Action, error) {
	switch name {
	case "server":
		return NewServerInstall(deps), nil
	case "extract":
		return NewExtractAction(deps), nil
	default:
		return nil, fmt.Errorf("%w %q (want server or extract)", ErrUnknownAction, name)
	}
}

// canceled converts a context error into ErrCanceled, keeping the cause.
func canceled(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && (err == nil || errors.Is(err, ctxErr)) {
		return fmt.Errorf("%w: %w", ErrCanceled, ctxErr)
	}
	return err
}

func checkCancel(ctx context.Context) error {
	return canceled(ctx, nil)
}

func isDir(path string) (exists, dir bool) {
	info, err := os.Stat(path)
	if err != nil {
		return false, false
	}
	return true, info.IsDir()
}

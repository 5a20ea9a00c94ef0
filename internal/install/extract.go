package install

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cloudloader/cloudinstaller/internal/observability/logging"
	"github.com/cloudloader/cloudinstaller/internal/progress"
)

// ExtractAction copies the contained artifact out of the installer into an
// existing directory.
type ExtractAction struct {
	deps Deps
}

func NewExtractAction(deps Deps) *ExtractAction {
	if deps.Progress == nil {
		deps.Progress = progress.Discard
	}
	return &ExtractAction{deps: deps}
}

func (a *ExtractAction) PathError(target string) string {
	exists, dir := isDir(target)
	switch {
	case !exists:
		return "Target directory does not exist"
	case !dir:
		return "Target is not a directory"
	}
	return ""
}

func (a *ExtractAction) SuccessMessage() string {
	return "Extracted successfully"
}

func (a *ExtractAction) Run(ctx context.Context, target, installer string) error {
	if msg := a.PathError(target); msg != "" {
		return fmt.Errorf("%w: %s: %s", ErrInvalidTarget, target, msg)
	}
	if err := checkCancel(ctx); err != nil {
		return err
	}

	contained := a.deps.Profile.Path
	if contained == nil {
		a.deps.Progress.Message("Nothing to extract", progress.Normal)
		return nil
	}

	var failed []string
	dst := filepath.Join(target, contained.FileName())
	if a.deps.Archive == nil {
		failed = append(failed, contained.FileName()+" (no installer archive)")
	} else if err := a.deps.Archive.ExtractArtifact(*contained, dst); err != nil {
		failed = append(failed, contained.FileName()+" ("+err.Error()+")")
	}
	if len(failed) > 0 {
		return fmt.Errorf("an error occurred extracting the files:\n  %s", strings.Join(failed, "\n  "))
	}

	a.deps.Progress.Stage("Extracted " + contained.FileName())
	logging.From(ctx).Info("install", "extracted", "path", dst, "installer", installer)
	return nil
}

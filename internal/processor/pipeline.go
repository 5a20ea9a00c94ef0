package processor

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/cloudloader/cloudinstaller/internal/artifact"
	"github.com/cloudloader/cloudinstaller/internal/checksum"
	"github.com/cloudloader/cloudinstaller/internal/models"
	"github.com/cloudloader/cloudinstaller/internal/observability/logging"
	"github.com/cloudloader/cloudinstaller/internal/observability/otel"
	"github.com/cloudloader/cloudinstaller/internal/progress"
)

// Tokens expands {KEY} references. *tokens.Context implements it.
type Tokens interface {
	Replace(input string) (string, error)
}

// Result counts what a run did.
type Result struct {
	Executed int
	Skipped  int
}

// Pipeline runs processors in order, skipping those whose outputs are already
// valid. A Pipeline holds no per-run state and may be reused.
type Pipeline struct {
	Executor Executor
	Hasher   *checksum.Hasher
	Progress progress.Callback
	// Debug keeps mismatched outputs on disk for inspection.
	Debug bool
	// Dir is the working directory of each invocation.
	Dir string
}

// output is one resolved path and its expected sha1.
type output struct {
	path string
	sha1 string
}

// Run executes steps in declaration order and stops at the first failure.
// Cancellation is checked between steps; a step already running is left to the
// Executor's handling of ctx.
func (p *Pipeline) Run(ctx context.Context, steps []models.Processor, tok Tokens, libraryRoot string) (*Result, error) {
	cb := p.Progress
	if cb == nil {
		cb = progress.Discard
	}
	if p.Hasher == nil {
		p.Hasher = checksum.NewHasher(0)
	}

	res := &Result{}
	if len(steps) == 0 {
		return res, nil
	}

	cb.Start(fmt.Sprintf("Building processors (%d)", len(steps)))
	total := float64(len(steps))
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		cb.Progress(float64(i) / total)

		skipped, err := p.runStep(ctx, step, tok, libraryRoot, cb)
		if err != nil {
			return res, err
		}
		if skipped {
			res.Skipped++
		} else {
			res.Executed++
		}
	}
	cb.Progress(1)
	return res, nil
}

func (p *Pipeline) runStep(ctx context.Context, step models.Processor, tok Tokens, libraryRoot string, cb progress.Callback) (skipped bool, err error) {
	name := step.Jar.Descriptor()
	log := logging.From(ctx)

	ctx, span := otel.StartSpan(ctx, "cloudinstaller.processor", attribute.String(otel.AttrProcessor, name))
	defer func() {
		span.SetAttributes(attribute.Bool(otel.AttrSkipped, skipped))
		otel.EndSpan(span, err)
	}()

	cb.Stage("===============================================================================")

	outputs, err := p.resolveOutputs(step, tok, libraryRoot)
	if err != nil {
		return false, err
	}

	if len(outputs) > 0 && p.cached(outputs, cb) {
		cb.Message("  Cache Hit!", progress.Normal)
		log.Debug("processor", "cache hit", "processor", name)
		return true, nil
	}

	program := step.Jar.LocalPath(libraryRoot)
	if !isFile(program) {
		cb.Message("  Missing Jar for processor: "+program, progress.High)
		return false, &MissingProgramError{Step: name, Path: program}
	}

	cb.Message("  Jar: "+program, progress.Low)
	classpath := make([]string, 0, len(step.Classpath))
	var missing []string
	for _, dep := range step.Classpath {
		path := dep.LocalPath(libraryRoot)
		if !isFile(path) {
			missing = append(missing, path)
			continue
		}
		cb.Message("  Classpath: "+path, progress.Low)
		classpath = append(classpath, path)
	}
	if len(missing) > 0 {
		cb.Message("  Missing Processor Dependencies:", progress.High)
		for _, m := range missing {
			cb.Message("    "+m, progress.High)
		}
		return false, &MissingDependenciesError{Step: name, Missing: missing}
	}

	args := make([]string, 0, len(step.Args))
	for _, raw := range step.Args {
		v, err := artifact.ParseValue(raw)
		if err != nil {
			return false, fmt.Errorf("processor %s: argument %q: %w", name, raw, err)
		}
		arg, err := v.Resolve(libraryRoot, tok.Replace)
		if err != nil {
			return false, fmt.Errorf("processor %s: argument %q: %w", name, raw, err)
		}
		args = append(args, arg)
	}
	cb.Message("  Args: "+strings.Join(args, ", "), progress.Low)

	if err := ctx.Err(); err != nil {
		return false, err
	}

	log.Info("processor", "running processor", "processor", name, "args", len(args))
	inv := Invocation{Step: name, Program: program, Classpath: classpath, Args: args, Dir: p.Dir}
	if err := p.Executor.Execute(ctx, inv); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		log.Error("processor", "processor failed", "processor", name, "error", err.Error())
		return false, &ProcessorFailedError{Step: name, Err: err}
	}

	if len(outputs) == 0 {
		return false, nil
	}
	if bad := p.validate(outputs, cb); len(bad) > 0 {
		cb.Message("  Processor failed, invalid outputs:", progress.High)
		return false, &OutputInvalidError{Step: name, Outputs: bad}
	}
	return false, nil
}

// resolveOutputs expands each output key and value the same way as arguments.
// Keys are sorted so messages and errors come out in a stable order.
func (p *Pipeline) resolveOutputs(step models.Processor, tok Tokens, libraryRoot string) ([]output, error) {
	keys := make([]string, 0, len(step.Outputs))
	for k := range step.Outputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	name := step.Jar.Descriptor()
	out := make([]output, 0, len(keys))
	for _, k := range keys {
		path, err := resolveValue(k, tok, libraryRoot)
		if err != nil {
			return nil, fmt.Errorf("processor %s: output %q: %w", name, k, err)
		}
		sha, err := resolveValue(step.Outputs[k], tok, libraryRoot)
		if err != nil {
			return nil, fmt.Errorf("processor %s: output %q: %w", name, k, err)
		}
		if path == "" || sha == "" {
			return nil, fmt.Errorf("processor %s: output %q -> %q: %w", name, k, step.Outputs[k], ErrInvalidOutputConfig)
		}
		out = append(out, output{path: path, sha1: sha})
	}
	return out, nil
}

func resolveValue(raw string, tok Tokens, libraryRoot string) (string, error) {
	v, err := artifact.ParseValue(raw)
	if err != nil {
		return "", err
	}
	return v.Resolve(libraryRoot, tok.Replace)
}

// cached reports whether every output exists with the expected sha1. Stale
// outputs are deleted so the step starts clean. Outputs are always rehashed since
// an earlier step may have rewritten them.
func (p *Pipeline) cached(outputs []output, cb progress.Callback) bool {
	cb.Message("  Cache: ", progress.Low)
	hit := true
	for _, o := range outputs {
		p.Hasher.Forget(o.path)
		ok, actual, err := p.Hasher.Matches(o.path, o.sha1)
		switch {
		case err != nil:
			cb.Message(fmt.Sprintf("    %s Error: %v", o.path, err), progress.Low)
			hit = false
		case actual == "" && !ok:
			cb.Message("    "+o.path+" Missing", progress.Low)
			hit = false
		case ok:
			cb.Message("    "+o.path+" Validated: "+o.sha1, progress.Low)
		default:
			cb.Message("    "+o.path, progress.Low)
			cb.Message("      Expected: "+o.sha1, progress.Low)
			cb.Message("      Actual:   "+actual, progress.Low)
			hit = false
			p.remove(o.path)
		}
	}
	return hit
}

// validate checks outputs after a run and returns the ones that failed.
func (p *Pipeline) validate(outputs []output, cb progress.Callback) []InvalidOutput {
	var bad []InvalidOutput
	for _, o := range outputs {
		p.Hasher.Forget(o.path)
		ok, actual, err := p.Hasher.Matches(o.path, o.sha1)
		if ok {
			cb.Message("  "+o.path+" Validated: "+o.sha1, progress.Low)
			continue
		}
		if actual == "" || err != nil {
			bad = append(bad, InvalidOutput{Path: o.path, Expected: o.sha1, Missing: true})
			continue
		}
		inv := InvalidOutput{Path: o.path, Expected: o.sha1, Actual: actual}
		if !p.Debug {
			p.Hasher.Forget(o.path)
			if rmErr := os.Remove(o.path); rmErr != nil && !os.IsNotExist(rmErr) {
				inv.DeleteErr = rmErr
			}
		}
		bad = append(bad, inv)
	}
	return bad
}

func (p *Pipeline) remove(path string) {
	p.Hasher.Forget(path)
	_ = os.Remove(path)
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

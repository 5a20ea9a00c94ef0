package processor

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMissingProgram      = errors.New("missing processor program")
	ErrMissingDependencies = errors.New("missing processor dependencies")
	ErrOutputInvalid       = errors.New("processor outputs invalid")
	ErrProcessorFailed     = errors.New("processor failed")
	// ErrInvalidOutputConfig is returned when an output entry resolves to nothing.
	ErrInvalidOutputConfig = errors.New("invalid output config")
)

type MissingProgramError struct {
	Step string
	Path string
}

func (e *MissingProgramError) Error() string {
	return fmt.Sprintf("missing jar for processor %s: %s", e.Step, e.Path)
}

func (e *MissingProgramError) Unwrap() error { return ErrMissingProgram }

// MissingDependenciesError names every missing classpath entry of a step.
type MissingDependenciesError struct {
	Step    string
	Missing []string
}

func (e *MissingDependenciesError) Error() string {
	return fmt.Sprintf("missing dependencies for processor %s:\n  %s", e.Step, strings.Join(e.Missing, "\n  "))
}

func (e *MissingDependenciesError) Unwrap() error { return ErrMissingDependencies }

// InvalidOutput is one output that failed validation. Actual is "" when missing.
type InvalidOutput struct {
	Path     string
	Expected string
	Actual   string
	Missing  bool
	// DeleteErr is set when the mismatched file could not be removed.
	DeleteErr error
}

// OutputInvalidError lists every bad output of a step.
type OutputInvalidError struct {
	Step    string
	Outputs []InvalidOutput
}

func (e *OutputInvalidError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "processor %s failed, invalid outputs:", e.Step)
	for _, o := range e.Outputs {
		b.WriteString("\n    ")
		b.WriteString(o.Path)
		if o.Missing {
			b.WriteString(" missing")
			continue
		}
		fmt.Fprintf(&b, "\n      Expected: %s\n      Actual:   %s", o.Expected, o.Actual)
		if o.DeleteErr != nil {
			b.WriteString("\n      Could not delete file")
		}
	}
	return b.String()
}

func (e *OutputInvalidError) Unwrap() error { return ErrOutputInvalid }

// ProcessorFailedError wraps the failure of the invoked program.
type ProcessorFailedError struct {
	Step string
	Err  error
}

func (e *ProcessorFailedError) Error() string {
	return fmt.Sprintf("failed to run processor %s: %v", e.Step, e.Err)
}

func (e *ProcessorFailedError) Unwrap() []error { return []error{ErrProcessorFailed, e.Err} }

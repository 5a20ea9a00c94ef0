package libraries

import (
	"errors"
	"fmt"
	"strings"
)

// ErrLibraryAcquisition is wrapped by AcquisitionError.
var ErrLibraryAcquisition = errors.New("library acquisition failed")

// Source says how a library was satisfied.
type Source string

const (
	SourceDisabled Source = "disabled"
	SourceExisting Source = "existing"
	SourceLocal    Source = "local"
	SourceArchive  Source = "installer"
	SourceMirror   Source = "mirror"
	SourceURL      Source = "url"
	// SourceDeferred marks embedded libraries left for a later step to produce.
	SourceDeferred Source = "deferred"
	SourceFailed   Source = "failed"
)

// Outcome is the per-library result.
type Outcome struct {
	Name   string
	Path   string
	Source Source
	// Reason explains a failure.
	Reason string
}

func (o Outcome) OK() bool { return o.Source != SourceFailed }

type Report struct {
	Outcomes []Outcome
}

// Count returns how many libraries ended with src.
func (r *Report) Count(src Source) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Source == src {
			n++
		}
	}
	return n
}

// Fetched counts libraries copied or downloaded during this run.
func (r *Report) Fetched() int {
	return r.Count(SourceLocal) + r.Count(SourceArchive) + r.Count(SourceMirror) + r.Count(SourceURL)
}

func (r *Report) Satisfied() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.OK() && o.Source != SourceDisabled && o.Source != SourceDeferred {
			n++
		}
	}
	return n
}

func (r *Report) Failed() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if !o.OK() {
			out = append(out, o)
		}
	}
	return out
}

// Err returns one AcquisitionError naming every failed library, or nil.
func (r *Report) Err() error {
	failed := r.Failed()
	if len(failed) == 0 {
		return nil
	}
	e := &AcquisitionError{}
	for _, o := range failed {
		e.Libraries = append(e.Libraries, o.Name)
		e.Reasons = append(e.Reasons, o.Reason)
	}
	return e
}

// AcquisitionError aggregates every library that could not be acquired.
type AcquisitionError struct {
	Libraries []string
	Reasons   []string
}

func (e *AcquisitionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "these libraries failed to download, try again:")
	for i, name := range e.Libraries {
		b.WriteString("\n  ")
		b.WriteString(name)
		if i < len(e.Reasons) && e.Reasons[i] != "" {
			b.WriteString(" (")
			b.WriteString(e.Reasons[i])
			b.WriteString(")")
		}
	}
	return b.String()
}

func (e *AcquisitionError) Unwrap() error { return ErrLibraryAcquisition }

package optionals

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/cloudloader/cloudinstaller/internal/models"
)

// Selector decides which optional toggles are enabled. Precedence: explicit
// override, then the expression, then the optional's declared default.
// Names that are not declared optionals are enabled unless overridden; the
// expression only ever sees declared optionals.
type Selector struct {
	side      string
	expr      string
	program   cel.Program
	overrides map[string]bool
	byKey     map[string]models.OptionalLibrary
}

// NewSelector compiles expr (may be empty) over the variables name, artifact,
// side and default. The expression must return a bool.
func NewSelector(expr, side string, libs []models.OptionalLibrary, overrides map[string]bool) (*Selector, error) {
	s := &Selector{
		side:      side,
		expr:      strings.TrimSpace(expr),
		overrides: overrides,
		byKey:     make(map[string]models.OptionalLibrary, len(libs)*2),
	}
	for _, lib := range libs {
		if !lib.Valid() {
			continue
		}
		s.byKey[lib.Name] = lib
		s.byKey[lib.Artifact] = lib
	}

	if s.expr == "" {
		return s, nil
	}

	env, err := cel.NewEnv(
		cel.Variable("name", cel.StringType),
		cel.Variable("artifact", cel.StringType),
		cel.Variable("side", cel.StringType),
		cel.Variable("default", cel.BoolType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := env.Compile(s.expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("invalid selection expression %q: %w", s.expr, issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("selection expression must return bool, got %s", ast.OutputType())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("CEL program error: %w", err)
	}
	s.program = prg
	return s, nil
}

// Enabled is the predicate handed to library acquisition and the mod list.
// name may be a toggle name or an optional's artifact.
func (s *Selector) Enabled(name string) bool {
	lib, known := s.byKey[name]

	if v, ok := s.override(name, lib, known); ok {
		return v
	}

	if !known {
		return true
	}
	def := lib.IsDefault() && lib.ForSide(s.side)
	if s.program == nil {
		return def
	}

	vars := map[string]interface{}{
		"name":     lib.Name,
		"artifact": lib.Artifact,
		"side":     s.side,
		"default":  def,
	}

	out, _, err := s.program.Eval(vars)
	if err != nil {
		return false
	}
	enabled, ok := out.Value().(bool)
	return ok && enabled
}

func (s *Selector) override(name string, lib models.OptionalLibrary, known bool) (bool, bool) {
	if v, ok := s.overrides[name]; ok {
		return v, true
	}
	if !known {
		return false, false
	}
	if v, ok := s.overrides[lib.Name]; ok {
		return v, true
	}
	if v, ok := s.overrides[lib.Artifact]; ok {
		return v, true
	}
	return false, false
}

// Expression returns the compiled expression, "" when none.
func (s *Selector) Expression() string { return s.expr }

// ParseOverrides parses NAME=BOOL pairs. A bare NAME enables it.
func ParseOverrides(pairs []string) (map[string]bool, error) {
	out := make(map[string]bool, len(pairs))
	for _, p := range pairs {
		name, value, found := strings.Cut(p, "=")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("invalid optional %q: missing name", p)
		}
		if !found {
			out[name] = true
			continue
		}
		b, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("invalid optional %q: %w", p, err)
		}
		out[name] = b
	}
	return out, nil
}

// Names lists the known optionals, sorted.
func (s *Selector) Names() []string {
	seen := make(map[string]bool)
	var names []string
	for _, lib := range s.byKey {
		if !seen[lib.Name] {
			seen[lib.Name] = true
			names = append(names, lib.Name)
		}
	}
	sort.Strings(names)
	return names
}

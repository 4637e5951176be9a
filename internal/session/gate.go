package session

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/openshelf/openshelf-go/internal/appstate"
)

// GateSet compiles named boolean CEL expressions over the auth snapshot so
// deployments can define gates beyond the built-in subscription check, e.g.
// "admin": "auth.isAdmin && !auth.isDeleted".
type GateSet struct {
	programs map[string]cel.Program
}

// NewGateSet declares the CEL variables exposed to gate expressions and
// compiles every configured source. A bad expression fails construction; gates
// are configuration, not user input.
func NewGateSet(sources map[string]string) (*GateSet, error) {
	env, err := cel.NewEnv(
		cel.Variable("auth", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("now", cel.TimestampType),
		cel.HomogeneousAggregateLiterals(),
	)
	if err != nil {
		return nil, fmt.Errorf("session: build gate environment: %w", err)
	}

	programs := make(map[string]cel.Program, len(sources))
	for name, source := range sources {
		ast, issues := env.Compile(source)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("session: compile gate %q: %w", name, issues.Err())
		}
		if ast.OutputType() != cel.BoolType {
			return nil, fmt.Errorf("session: gate %q must yield a boolean, got %s", name, ast.OutputType())
		}
		program, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("session: program gate %q: %w", name, err)
		}
		programs[name] = program
	}
	return &GateSet{programs: programs}, nil
}

// Names lists the configured gates in sorted order, for health reporting.
func (g *GateSet) Names() []string {
	if g == nil {
		return nil
	}
	names := make([]string, 0, len(g.programs))
	for name := range g.programs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether a gate with the given name exists.
func (g *GateSet) Has(name string) bool {
	if g == nil {
		return false
	}
	_, ok := g.programs[name]
	return ok
}

// Allow evaluates the named gate against the auth snapshot. Unknown gates
// deny, matching the deny-by-default posture of Evaluate.
func (g *GateSet) Allow(name string, auth appstate.AuthState, now time.Time) (bool, error) {
	if g == nil {
		return false, fmt.Errorf("session: no gates configured")
	}
	program, ok := g.programs[name]
	if !ok {
		return false, fmt.Errorf("session: unknown gate %q", name)
	}

	snapshot, err := authActivation(auth)
	if err != nil {
		return false, err
	}
	val, _, err := program.Eval(map[string]any{
		"auth": snapshot,
		"now":  now,
	})
	if err != nil {
		return false, fmt.Errorf("session: eval gate %q: %w", name, err)
	}
	result, ok := val.(types.Bool)
	if !ok {
		return false, fmt.Errorf("session: gate %q yielded non-bool %T", name, val)
	}
	return bool(result), nil
}

// authActivation projects the typed auth state into the loose map CEL sees,
// keeping JSON field names as the expression vocabulary.
func authActivation(auth appstate.AuthState) (map[string]any, error) {
	raw, err := json.Marshal(auth)
	if err != nil {
		return nil, fmt.Errorf("session: encode auth snapshot: %w", err)
	}
	var snapshot map[string]any
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, fmt.Errorf("session: decode auth snapshot: %w", err)
	}
	return snapshot, nil
}

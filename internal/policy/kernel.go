// Package policy evaluates strategy activation through a Datalog
// kernel. The embedded rules mirror the agent's native condition
// checks, so the two matchers agree; the rules file can be overridden
// and hot-reloaded at runtime.
package policy

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"mos/internal/logging"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	"github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"
)

//go:embed schema.mg
var defaultSchema string

//go:embed policy.mg
var defaultRules string

// derivedFactLimit caps fixpoint evaluation against runaway rules.
const derivedFactLimit = 100000

// Fact is one extensional fact. Args may be string, int, int64 or
// float64 (floats are scaled to hundredths, as numbers are integral).
type Fact struct {
	Predicate string
	Args      []any
}

// ToAtom converts the fact to a mangle atom.
func (f Fact) ToAtom() (ast.Atom, error) {
	terms := make([]ast.BaseTerm, 0, len(f.Args))
	for _, arg := range f.Args {
		switch v := arg.(type) {
		case string:
			terms = append(terms, ast.String(v))
		case int:
			terms = append(terms, ast.Number(int64(v)))
		case int64:
			terms = append(terms, ast.Number(v))
		case float64:
			terms = append(terms, ast.Number(int64(v*100)))
		default:
			return ast.Atom{}, fmt.Errorf("policy: unsupported fact arg %T", arg)
		}
	}
	return ast.NewAtom(f.Predicate, terms...), nil
}

// Kernel holds the parsed program, asserted facts, and the evaluated
// fact store.
type Kernel struct {
	mu sync.RWMutex

	schema string
	rules  string
	dirty  bool

	facts       []Fact
	programInfo *analysis.ProgramInfo
	store       factstore.FactStore
	evaluated   bool
}

// NewKernel creates a kernel with the embedded schema and rules.
func NewKernel() *Kernel {
	return &Kernel{
		schema: defaultSchema,
		rules:  defaultRules,
		dirty:  true,
	}
}

// SetRules replaces the policy rules (schema stays) and marks the
// program for rebuild.
func (k *Kernel) SetRules(rules string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.rules = rules
	k.dirty = true
	k.evaluated = false
	logging.Policy("rules replaced (%d bytes)", len(rules))
}

// Assert adds facts. Evaluation is deferred until Rebuild or a query.
func (k *Kernel) Assert(facts ...Fact) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.facts = append(k.facts, facts...)
	k.evaluated = false
}

// RetractAll drops every asserted fact.
func (k *Kernel) RetractAll() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.facts = nil
	k.evaluated = false
}

// Rebuild parses, analyzes, and evaluates the program to fixpoint over
// the asserted facts.
func (k *Kernel) Rebuild() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.evaluateLocked()
}

func (k *Kernel) evaluateLocked() error {
	timer := logging.StartTimer(logging.CategoryPolicy, "evaluate")
	defer timer.Stop()

	if k.dirty || k.programInfo == nil {
		program := k.schema + "\n" + k.rules + "\n"
		parsed, err := parse.Unit(strings.NewReader(program))
		if err != nil {
			return fmt.Errorf("policy: parse program: %w", err)
		}
		info, err := analysis.AnalyzeOneUnit(parsed, nil)
		if err != nil {
			return fmt.Errorf("policy: analyze program: %w", err)
		}
		k.programInfo = info
		k.dirty = false
		logging.PolicyDebug("program rebuilt: %d clauses, %d predicates",
			len(parsed.Clauses), len(info.Decls))
	}

	store := factstore.NewSimpleInMemoryStore()
	for _, f := range k.facts {
		atom, err := f.ToAtom()
		if err != nil {
			return fmt.Errorf("policy: fact %s: %w", f.Predicate, err)
		}
		store.Add(atom)
	}

	if _, err := engine.EvalProgramWithStats(k.programInfo, store,
		engine.WithCreatedFactLimit(derivedFactLimit)); err != nil {
		return fmt.Errorf("policy: evaluate program: %w", err)
	}

	k.store = store
	k.evaluated = true
	return nil
}

// Query returns all derived and asserted facts of a predicate,
// evaluating first if needed.
func (k *Kernel) Query(predicate string) ([]Fact, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if !k.evaluated {
		if err := k.evaluateLocked(); err != nil {
			return nil, err
		}
	}

	var results []Fact
	for pred := range k.programInfo.Decls {
		if pred.Symbol != predicate {
			continue
		}
		k.store.GetFacts(ast.NewQuery(pred), func(a ast.Atom) error {
			results = append(results, atomToFact(a))
			return nil
		})
	}
	return results, nil
}

func atomToFact(a ast.Atom) Fact {
	args := make([]any, len(a.Args))
	for i, term := range a.Args {
		args[i] = baseTermToValue(term)
	}
	return Fact{Predicate: a.Predicate.Symbol, Args: args}
}

func baseTermToValue(term ast.BaseTerm) any {
	switch t := term.(type) {
	case ast.Constant:
		switch t.Type {
		case ast.StringType:
			return t.Symbol
		case ast.NumberType:
			return t.NumValue
		case ast.Float64Type:
			return t.Float64Value
		default:
			return t.Symbol
		}
	default:
		return fmt.Sprintf("%v", term)
	}
}

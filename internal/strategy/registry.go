package strategy

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownStrategy is returned when a definition names an id that has not
// been registered.
var ErrUnknownStrategy = errors.New("unknown strategy id")

// Kind tags which contract a registered constructor produces.
type Kind int

const (
	KindStrategy Kind = iota + 1
	KindExit
	KindFull
)

func (k Kind) String() string {
	switch k {
	case KindStrategy:
		return "strategy"
	case KindExit:
		return "exit"
	case KindFull:
		return "full"
	default:
		return "unknown"
	}
}

// Node is a realised definition. Exactly one of Strategy, Exit or Full is
// set, matching Kind.
type Node struct {
	Def      Definition
	Kind     Kind
	Strategy Strategy
	Exit     ExitStrategy
	Full     FullStrategy
}

// StrategyNode wraps a plain Strategy.
func StrategyNode(def Definition, s Strategy) Node {
	return Node{Def: def, Kind: KindStrategy, Strategy: s}
}

// ExitNode wraps an ExitStrategy.
func ExitNode(def Definition, e ExitStrategy) Node {
	return Node{Def: def, Kind: KindExit, Exit: e}
}

// FullNode wraps a FullStrategy.
func FullNode(def Definition, f FullStrategy) Node {
	return Node{Def: def, Kind: KindFull, Full: f}
}

// Constructor realises a definition. It receives the registry so composite
// constructors can build their children.
type Constructor func(r *Registry, def Definition) (Node, error)

// Entry describes one registered id.
type Entry struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Kind        Kind        `json:"-"`
	KindName    string      `json:"kind"`
	New         Constructor `json:"-"`
}

// Registry maps strategy ids to constructors.
type Registry struct {
	entries map[string]Entry
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]Entry),
	}
}

// Register adds an entry, replacing any previous entry with the same id.
func (r *Registry) Register(e Entry) {
	e.KindName = e.Kind.String()
	r.entries[e.ID] = e
}

// Get retrieves an entry by id. The second return value indicates whether
// the id was found.
func (r *Registry) Get(id string) (Entry, bool) {
	e, ok := r.entries[id]
	return e, ok
}

// List returns a sorted slice of all registered ids.
func (r *Registry) List() []string {
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Entries returns all entries sorted by id.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, 0, len(r.entries))
	for _, id := range r.List() {
		out = append(out, r.entries[id])
	}
	return out
}

// Build realises def, recursing into composite configs through the
// registered constructors.
func (r *Registry) Build(def Definition) (Node, error) {
	e, ok := r.entries[def.ID]
	if !ok {
		return Node{}, fmt.Errorf("%w: %s", ErrUnknownStrategy, def.ID)
	}
	n, err := e.New(r, def)
	if err != nil {
		return Node{}, fmt.Errorf("building %s: %w", def.ID, err)
	}
	if n.Kind != e.Kind {
		return Node{}, fmt.Errorf("building %s: constructor returned %s, registered as %s", def.ID, n.Kind, e.Kind)
	}
	n.Def = def
	return n, nil
}

// BuildStrategy realises def as a plain Strategy.
func (r *Registry) BuildStrategy(def Definition) (Strategy, error) {
	n, err := r.Build(def)
	if err != nil {
		return nil, err
	}
	if n.Kind != KindStrategy {
		return nil, fmt.Errorf("%w: %s is a %s, want strategy", ErrInvalidConfig, def.ID, n.Kind)
	}
	return n.Strategy, nil
}

// BuildExit realises def as an ExitStrategy.
func (r *Registry) BuildExit(def Definition) (ExitStrategy, error) {
	n, err := r.Build(def)
	if err != nil {
		return nil, err
	}
	if n.Kind != KindExit {
		return nil, fmt.Errorf("%w: %s is a %s, want exit", ErrInvalidConfig, def.ID, n.Kind)
	}
	return n.Exit, nil
}

// BuildFull realises def as a FullStrategy. Plain strategies are lifted with
// AsFull; exit strategies cannot stand alone and are rejected.
func (r *Registry) BuildFull(def Definition) (FullStrategy, error) {
	n, err := r.Build(def)
	if err != nil {
		return nil, err
	}
	switch n.Kind {
	case KindFull:
		return n.Full, nil
	case KindStrategy:
		return AsFull(n.Strategy), nil
	default:
		return nil, fmt.Errorf("%w: %s is an exit strategy and cannot drive trading", ErrInvalidConfig, def.ID)
	}
}

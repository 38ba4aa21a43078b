package strategy

import (
	"errors"
	"testing"

	"gopkg.in/yaml.v3"

	"orbiter/internal/domain"
)

// stubStrategy is a minimal Strategy implementation used in registry tests.
type stubStrategy struct {
	id string
	op domain.Operation
}

func (s *stubStrategy) ID() string                        { return s.id }
func (s *stubStrategy) Process(_ []domain.Bar) Result     { return NewResult(s.op) }
func (s *stubStrategy) Indicators() []domain.IndicatorKey { return []domain.IndicatorKey{domain.RSIKey(14)} }

type stubExit struct{}

func (stubExit) ID() string                                    { return "stub-exit" }
func (stubExit) ShouldExit(_, _ float64, _ []domain.Bar) bool  { return false }
func (stubExit) ExitPrice(e, _ float64, _ []domain.Bar) float64 { return e }

func stubEntry(id string, op domain.Operation) Entry {
	return Entry{
		ID:   id,
		Kind: KindStrategy,
		New: func(_ *Registry, def Definition) (Node, error) {
			cfg := struct {
				Op domain.Operation `json:"op"`
			}{Op: op}
			if err := def.Decode(&cfg); err != nil {
				return Node{}, err
			}
			return StrategyNode(def, &stubStrategy{id: id, op: cfg.Op}), nil
		},
	}
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	r.Register(stubEntry("test-strategy", domain.OperationHold))

	got, ok := r.Get("test-strategy")
	if !ok {
		t.Fatal("Get returned false for registered strategy")
	}
	if got.ID != "test-strategy" {
		t.Errorf("Get returned entry with ID = %q, want %q", got.ID, "test-strategy")
	}
	if got.KindName != "strategy" {
		t.Errorf("KindName = %q, want %q", got.KindName, "strategy")
	}
}

func TestRegistryGet_NotFound(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Get("nonexistent")
	if ok {
		t.Error("Get returned true for unregistered strategy")
	}
}

func TestRegistryList(t *testing.T) {
	r := NewRegistry()
	r.Register(stubEntry("beta", domain.OperationHold))
	r.Register(stubEntry("alpha", domain.OperationHold))

	names := r.List()
	if len(names) != 2 {
		t.Fatalf("List returned %d names, want 2", len(names))
	}
	// List returns sorted names.
	if names[0] != "alpha" || names[1] != "beta" {
		t.Errorf("List returned %v, want [alpha beta]", names)
	}
}

func TestRegistryBuildUnknown(t *testing.T) {
	r := NewRegistry()
	_, err := r.Build(Definition{ID: "nope"})
	if !errors.Is(err, ErrUnknownStrategy) {
		t.Fatalf("Build error = %v, want ErrUnknownStrategy", err)
	}
}

func TestRegistryBuildDecodesConfig(t *testing.T) {
	r := NewRegistry()
	r.Register(stubEntry("stub", domain.OperationHold))

	s, err := r.BuildStrategy(MustDefinition("stub", map[string]any{"op": "BUY"}))
	if err != nil {
		t.Fatalf("BuildStrategy: %v", err)
	}
	if got := s.Process(nil).Operation; got != domain.OperationBuy {
		t.Errorf("Process().Operation = %q, want BUY", got)
	}

	_, err = r.Build(MustDefinition("stub", map[string]any{"bogus": 1}))
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("unknown config field error = %v, want ErrInvalidConfig", err)
	}
}

func TestRegistryBuildFullLiftsPlainStrategy(t *testing.T) {
	r := NewRegistry()
	r.Register(stubEntry("stub", domain.OperationSell))
	r.Register(Entry{
		ID:   "stub-exit",
		Kind: KindExit,
		New: func(_ *Registry, def Definition) (Node, error) {
			return ExitNode(def, stubExit{}), nil
		},
	})

	fs, err := r.BuildFull(Definition{ID: "stub"})
	if err != nil {
		t.Fatalf("BuildFull: %v", err)
	}
	if got := fs.ProcessPosition(nil, true, 100).Operation; got != domain.OperationSell {
		t.Errorf("lifted strategy returned %q, want SELL", got)
	}
	if keys := RequiredIndicators(fs); len(keys) != 1 || keys[0] != domain.RSIKey(14) {
		t.Errorf("lifted strategy lost indicator requirements: %v", keys)
	}

	if _, err := r.BuildFull(Definition{ID: "stub-exit"}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("BuildFull(exit) error = %v, want ErrInvalidConfig", err)
	}
	if _, err := r.BuildExit(Definition{ID: "stub"}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("BuildExit(strategy) error = %v, want ErrInvalidConfig", err)
	}
}

func TestDefinitionUnmarshalYAML(t *testing.T) {
	src := []byte(`
id: delayed-composite
config:
  min_signals: 2
  strategies:
    - id: standard-dmi
      config:
        adx_strength_threshold: 25
`)
	var def Definition
	if err := yaml.Unmarshal(src, &def); err != nil {
		t.Fatalf("yaml.Unmarshal: %v", err)
	}
	if def.ID != "delayed-composite" {
		t.Errorf("ID = %q, want delayed-composite", def.ID)
	}

	var cfg struct {
		MinSignals int          `json:"min_signals"`
		Strategies []Definition `json:"strategies"`
	}
	if err := def.Decode(&cfg); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.MinSignals != 2 || len(cfg.Strategies) != 1 || cfg.Strategies[0].ID != "standard-dmi" {
		t.Errorf("decoded config = %+v", cfg)
	}
}

func TestMergeIndicators(t *testing.T) {
	got := MergeIndicators(
		[]domain.IndicatorKey{domain.DMIKey(14), domain.RSIKey(13)},
		[]domain.IndicatorKey{domain.RSIKey(13), domain.BollingerKey(20, 2)},
	)
	if len(got) != 3 {
		t.Fatalf("MergeIndicators returned %d keys, want 3", len(got))
	}
	if got[2] != domain.BollingerKey(20, 2) {
		t.Errorf("order not preserved: %v", got)
	}
}

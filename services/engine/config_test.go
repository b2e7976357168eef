package engine

import (
	"errors"
	"testing"
)

func TestConfigValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*SimulationConfig)
	}{
		{"unsupported timeframe", func(c *SimulationConfig) { c.Timeframe = "7m" }},
		{"zero capital", func(c *SimulationConfig) { c.InitialCapital = 0 }},
		{"negative commission", func(c *SimulationConfig) { c.CommissionTiers[0].Rate = -0.001 }},
		{"increasing tier rate", func(c *SimulationConfig) { c.CommissionTiers[1].Rate = 0.1 }},
		{"non-increasing breakpoints", func(c *SimulationConfig) { c.CommissionTiers[1].MinVolume = 0 }},
		{"first tier not zero", func(c *SimulationConfig) { c.CommissionTiers[0].MinVolume = 5 }},
		{"negative lambda", func(c *SimulationConfig) { c.ImpactLambda = -0.5 }},
		{"negative base slippage", func(c *SimulationConfig) { c.Slippage.BaseRate = -1 }},
		{"sub-unit multiplier", func(c *SimulationConfig) { c.Slippage.OpenMultiplier = 0.5 }},
		{"zero max order qty", func(c *SimulationConfig) { c.MaxOrderQty = 0 }},
		{"bad partial fill frac", func(c *SimulationConfig) {
			c.PartialFills = PartialFillParams{Enabled: true, MaxBarVolumeFrac: 2}
		}},
		{"empty tiers", func(c *SimulationConfig) { c.CommissionTiers = nil }},
	}
	for _, tc := range cases {
		cfg := DefaultSimulationConfig()
		tc.mutate(&cfg)
		err := cfg.Validate()
		if err == nil {
			t.Fatalf("%s: expected ConfigError", tc.name)
		}
		var ce *ConfigError
		if !errors.As(err, &ce) {
			t.Fatalf("%s: got %T, want *ConfigError", tc.name, err)
		}
	}
}

func TestConfigValidateAccepts(t *testing.T) {
	cfg := DefaultSimulationConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestConfigHashStable(t *testing.T) {
	a := DefaultSimulationConfig()
	b := DefaultSimulationConfig()
	if a.Hash() != b.Hash() {
		t.Fatal("identical configs produced different hashes")
	}
	b.ImpactLambda = 0.2
	if a.Hash() == b.Hash() {
		t.Fatal("different configs produced identical hashes")
	}
}

func TestCleanBarsThreshold(t *testing.T) {
	good := Bar{Timestamp: 1, Open: 100, High: 101, Low: 99, Close: 100, Volume: 10}
	bad := Bar{Timestamp: 2, Open: -1, High: 101, Low: 99, Close: 100, Volume: 10}

	bars := []Bar{good, bad}
	bars[1].Timestamp = 2
	_, warnings, err := CleanBars(bars, 0.5, false)
	if err != nil {
		t.Fatalf("below threshold should pass: %v", err)
	}
	if len(warnings) == 0 {
		t.Fatal("dropped bar must be recorded as a warning")
	}

	_, _, err = CleanBars(bars, 0.1, false)
	var dq *DataQualityError
	if !errors.As(err, &dq) {
		t.Fatalf("above threshold should fail with DataQualityError, got %v", err)
	}
}

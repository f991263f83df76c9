package modeltier

import (
	"testing"

	"tableloom/internal/domain/models"
)

func TestNewRegistry_LoadsBothTiers(t *testing.T) {
	reg, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	low, err := reg.Resolve(models.TierLow)
	if err != nil {
		t.Fatalf("Resolve(low) error = %v", err)
	}
	if low.ModelID == "" {
		t.Error("low tier ModelID is empty")
	}
	if low.SupportsThinking {
		t.Error("low tier should not support thinking")
	}

	high, err := reg.Resolve(models.TierHigh)
	if err != nil {
		t.Fatalf("Resolve(high) error = %v", err)
	}
	if !high.SupportsThinking {
		t.Error("high tier should support thinking")
	}
	if high.ThinkingBudgetTokens <= 0 {
		t.Error("high tier should have a positive thinking budget")
	}
}

func TestRegistry_Resolve_UnknownTier(t *testing.T) {
	reg, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	if _, err := reg.Resolve(models.ModelTier("medium")); err == nil {
		t.Error("expected error for unknown tier, got nil")
	}
}

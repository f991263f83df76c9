package modeltier

import (
	"embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"tableloom/internal/domain/models"
)

//go:embed config/tiers.yaml
var configFile embed.FS

// Registry resolves a ModelTier to its concrete LLM configuration, loaded
// once from an embedded YAML file.
type Registry struct {
	mu    sync.RWMutex
	tiers map[string]Tier
}

// NewRegistry loads the embedded tier catalog.
func NewRegistry() (*Registry, error) {
	data, err := configFile.ReadFile("config/tiers.yaml")
	if err != nil {
		return nil, fmt.Errorf("read tiers.yaml: %w", err)
	}

	var parsed tierFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal tiers.yaml: %w", err)
	}
	if _, ok := parsed.Tiers[string(models.TierLow)]; !ok {
		return nil, fmt.Errorf("tiers.yaml missing required tier %q", models.TierLow)
	}
	if _, ok := parsed.Tiers[string(models.TierHigh)]; !ok {
		return nil, fmt.Errorf("tiers.yaml missing required tier %q", models.TierHigh)
	}

	return &Registry{tiers: parsed.Tiers}, nil
}

// Resolve returns the Tier configuration for the given model tier.
func (r *Registry) Resolve(tier models.ModelTier) (Tier, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tiers[string(tier)]
	if !ok {
		return Tier{}, fmt.Errorf("unknown model tier: %s", tier)
	}
	return t, nil
}

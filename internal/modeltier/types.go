package modeltier

// Tier holds the resolved LLM configuration for one of the session's named
// model tiers ({low, high}).
type Tier struct {
	ModelID              string `yaml:"model_id" json:"model_id"`
	MaxTokens            int    `yaml:"max_tokens" json:"max_tokens"`
	SupportsThinking     bool   `yaml:"supports_thinking" json:"supports_thinking"`
	ThinkingBudgetTokens int    `yaml:"thinking_budget_tokens" json:"thinking_budget_tokens"`
}

type tierFile struct {
	Tiers map[string]Tier `yaml:"tiers"`
}

// RequiredEntitlementHighTier is the JWT entitlement claim value gating
// access to the high model tier (SPEC_FULL.md §4.9).
const RequiredEntitlementHighTier = "high_tier"

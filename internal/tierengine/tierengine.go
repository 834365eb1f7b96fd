// Package tierengine decides a subscriber's marketing tier from their
// current tier and purchase evidence, and validates campaign-transition
// legality against an operator-configured rule matrix.
//
// It is pure: no I/O, no context, no database handle. Configuration is
// loaded once at startup (by the caller) and handed in as a value, per the
// "centralize in the Tier Engine, loaded from configuration at startup"
// guidance for the tier-progression literals that used to be scattered
// across call sites.
package tierengine

import (
	"strings"

	"github.com/ignite/campaign-sync-engine/internal/domain"
)

// ProgressionRule is the (current_tier, has_purchased) -> next_tier
// decision for one tier, as configured under tiers.progression.
type ProgressionRule struct {
	Purchased    string `yaml:"purchased" json:"purchased"`
	NotPurchased string `yaml:"not_purchased" json:"not_purchased"`
}

// Config is the operator-supplied tier configuration: the ordered tier
// set, the progression map, and the transition matrix used by the
// Transition Executor.
type Config struct {
	Order       []string                   `yaml:"order" json:"order"`
	Progression map[string]ProgressionRule `yaml:"progression" json:"progression"`
	Matrix      []domain.TransitionRule    `yaml:"matrix" json:"matrix"`
}

// DefaultConfig returns the progression defaults from spec §4.4. Operators
// override via tiers.progression / transition.matrix in configuration.
func DefaultConfig() Config {
	return Config{
		Order: []string{
			"OPT_IN", "GOLD", "GOLD_PURCHASED",
			"SILVER", "SILVER_PURCHASED",
			"BRONZE", "BRONZE_PURCHASED",
			"WOOD",
		},
		Progression: map[string]ProgressionRule{
			"OPT_IN":           {Purchased: "GOLD_PURCHASED", NotPurchased: "SILVER"},
			"GOLD":             {Purchased: "GOLD_PURCHASED", NotPurchased: "SILVER"},
			"GOLD_PURCHASED":   {Purchased: "GOLD_PURCHASED", NotPurchased: "GOLD_PURCHASED"},
			"SILVER":           {Purchased: "SILVER_PURCHASED", NotPurchased: "BRONZE"},
			"SILVER_PURCHASED": {Purchased: "SILVER_PURCHASED", NotPurchased: "SILVER_PURCHASED"},
			"BRONZE":           {Purchased: "BRONZE_PURCHASED", NotPurchased: "WOOD"},
			"BRONZE_PURCHASED": {Purchased: "BRONZE_PURCHASED", NotPurchased: "BRONZE_PURCHASED"},
			"WOOD":             {Purchased: "WOOD", NotPurchased: "WOOD"},
		},
	}
}

// Engine evaluates tier decisions against a fixed configuration.
type Engine struct {
	cfg Config
}

// New creates a tier engine over the given configuration.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// NextTier returns the tier a subscriber should move to given their
// current tier and whether they have a verified purchase for the
// campaign. If current is not present in the progression map, it is
// returned unchanged (identity — spec §4.4).
//
// Open Question 1/2 resolution (spec §9): the source carried two
// conflicting progression models (a *_PURCHASED demotion path in some
// code paths, and *_PURCHASED -> *_PURCHASED stability in others). We
// pick the single, configuration-driven model: whatever the operator's
// tiers.progression map says, with DefaultConfig() keeping purchased
// tiers stable rather than demoting them, since an earned *_PURCHASED
// status must never regress purely from a later non-purchase signal.
func (e *Engine) NextTier(current string, purchased bool) string {
	rule, ok := e.cfg.Progression[current]
	if !ok {
		return current
	}
	if purchased {
		return rule.Purchased
	}
	return rule.NotPurchased
}

// IsLegal reports whether moving a subscriber from `from` to `to` is a
// permitted edge in the transition matrix, given whether purchase
// evidence (a DDS-verified order) is available. A matrix row matches
// when CurrentTier==from and NextTier==to; if the row requires a
// purchase, `purchased` must be true for the move to be legal.
func (e *Engine) IsLegal(from, to string, purchased bool) bool {
	for _, row := range e.cfg.Matrix {
		if !strings.EqualFold(row.CurrentTier, from) || !strings.EqualFold(row.NextTier, to) {
			continue
		}
		if row.RequiresPurchase && !purchased {
			return false
		}
		return true
	}
	return false
}

// RequiresPurchase reports whether any transition matrix row sourced at
// `tier` requires purchase verification before the move is executed.
func (e *Engine) RequiresPurchase(tier string) bool {
	for _, row := range e.cfg.Matrix {
		if strings.EqualFold(row.CurrentTier, tier) && row.RequiresPurchase {
			return true
		}
	}
	return false
}

// Matrix exposes the configured transition matrix rows for iteration by
// the Transition Executor.
func (e *Engine) Matrix() []domain.TransitionRule {
	return e.cfg.Matrix
}

// Order returns the configured ordered tier set.
func (e *Engine) Order() []string {
	return e.cfg.Order
}

// IsKnownTier reports whether tier is a member of the configured order.
func (e *Engine) IsKnownTier(tier string) bool {
	for _, t := range e.cfg.Order {
		if strings.EqualFold(t, tier) {
			return true
		}
	}
	return false
}

// RankOf returns the index of tier within the configured order, or -1 if
// unknown. Used by validators to detect a demotion step.
func (e *Engine) RankOf(tier string) int {
	for i, t := range e.cfg.Order {
		if strings.EqualFold(t, tier) {
			return i
		}
	}
	return -1
}

// DefaultTransitionMatrix returns the transition matrix rows implied by
// the default progression, gating every *_PURCHASED promotion on a
// verified order, per the literal example in spec §8 scenario 4.
func DefaultTransitionMatrix() []domain.TransitionRule {
	return []domain.TransitionRule{
		{CurrentTier: "GOLD_PURCHASED", NextTier: "GOLD", RequiresPurchase: true},
		{CurrentTier: "SILVER_PURCHASED", NextTier: "SILVER", RequiresPurchase: true},
		{CurrentTier: "BRONZE_PURCHASED", NextTier: "BRONZE", RequiresPurchase: true},
		{CurrentTier: "OPT_IN", NextTier: "OPT_IN", RequiresPurchase: false},
		{CurrentTier: "SILVER", NextTier: "SILVER", RequiresPurchase: false},
		{CurrentTier: "BRONZE", NextTier: "BRONZE", RequiresPurchase: false},
		{CurrentTier: "WOOD", NextTier: "WOOD", RequiresPurchase: false},
	}
}

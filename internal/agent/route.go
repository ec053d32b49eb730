package agent

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/sqlpilot/internal/model"
)

// Router maps a complexity tier to a model identifier. The mapping is
// static for the process lifetime and must cover every tier.
type Router struct {
	models map[model.Tier]string
}

// NewRouter builds a Router from the configured per-tier model IDs. A
// missing model for any tier is a configuration error.
func NewRouter(simple, medium, hard string) (*Router, error) {
	models := map[model.Tier]string{
		model.TierSimple: simple,
		model.TierMedium: medium,
		model.TierHard:   hard,
	}
	for _, tier := range model.AllTiers() {
		if models[tier] == "" {
			return nil, eris.Errorf("agent: no model configured for tier %s", tier)
		}
	}
	return &Router{models: models}, nil
}

// Route returns the model id for a tier. An unmapped tier cannot occur
// through NewRouter; encountering one is a fatal configuration error.
func (r *Router) Route(tier model.Tier) (string, error) {
	id, ok := r.models[tier]
	if !ok {
		return "", eris.Errorf("agent: unmapped tier %d", int(tier))
	}
	return id, nil
}

package filter

import (
	"killfeed/internal/model"
)

type Mode string

const (
	ModeOR  Mode = "OR"
	ModeAND Mode = "AND"
	ModeIF  Mode = "IF"
)

// IDSet is one filter dimension: a set of required IDs plus the combination
// mode. An empty set means the dimension is unconstrained, same as if it had
// never been configured.
type IDSet struct {
	IDs  []int64 `json:"ids,omitempty"`
	Mode Mode    `json:"mode,omitempty"`
}

func (s IDSet) Empty() bool {
	return len(s.IDs) == 0
}

type DistanceRef struct {
	SystemID int64   `json:"system_id"`
	MaxLy    float64 `json:"max_ly"`
}

// Spec is the canonical, normalized shape of one feed's matching criteria.
// Build it through Normalize; the evaluator assumes this shape and nothing
// else ever reaches it.
type Spec struct {
	Regions              IDSet `json:"regions,omitzero"`
	Systems              IDSet `json:"systems,omitzero"`
	VictimCorporations   IDSet `json:"victim_corporations,omitzero"`
	VictimCharacters     IDSet `json:"victim_characters,omitzero"`
	VictimAlliances      IDSet `json:"victim_alliances,omitzero"`
	VictimShipTypes      IDSet `json:"victim_ship_types,omitzero"`
	AttackerCorporations IDSet `json:"attacker_corporations,omitzero"`
	AttackerCharacters   IDSet `json:"attacker_characters,omitzero"`
	AttackerAlliances    IDSet `json:"attacker_alliances,omitzero"`
	AttackerShipTypes    IDSet `json:"attacker_ship_types,omitzero"`

	MinValue     *float64 `json:"min_value,omitempty"`
	MaxValue     *float64 `json:"max_value,omitempty"`
	MinAttackers *int     `json:"min_attackers,omitempty"`
	MaxAttackers *int     `json:"max_attackers,omitempty"`

	SecurityClasses []model.SecurityClass `json:"security_classes,omitempty"`
	DistanceRef     *DistanceRef          `json:"distance_ref,omitempty"`
}

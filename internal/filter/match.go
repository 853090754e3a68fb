package filter

import (
	"slices"

	"killfeed/internal/model"
)

// Matches reports whether a killmail passes a normalized Spec. It is a pure
// function: every constrained dimension must individually pass, the numeric
// ranges must pass, and the security-class and distance constraints (when
// set) must pass. There is no cross-dimension OR at the top level.
//
// A Spec with no constraints at all matches every event: an empty filter is
// "no restriction". Two deliberately chosen semantics the upstream behavior
// left open:
//   - AND on a single-valued dimension (victim identity, location) is treated
//     as OR, since one scalar cannot equal several distinct required IDs.
//   - A killmail without a known Value passes min/max value checks; unknown
//     is not grounds for exclusion. Missing security class or distance with
//     the corresponding constraint set fails closed instead, because there
//     the operator asked for a positive property of the event.
func Matches(km model.Killmail, s Spec) bool {
	if !matchSingle(km.RegionID, s.Regions) {
		return false
	}
	if !matchSingle(km.SystemID, s.Systems) {
		return false
	}
	if !matchSingle(km.Victim.CorporationID, s.VictimCorporations) {
		return false
	}
	if !matchSingle(km.Victim.CharacterID, s.VictimCharacters) {
		return false
	}
	if !matchSingle(km.Victim.AllianceID, s.VictimAlliances) {
		return false
	}
	if !matchSingle(km.Victim.ShipTypeID, s.VictimShipTypes) {
		return false
	}

	if !matchAttackers(km.Attackers, s.AttackerCorporations, func(p model.Party) int64 { return p.CorporationID }) {
		return false
	}
	if !matchAttackers(km.Attackers, s.AttackerCharacters, func(p model.Party) int64 { return p.CharacterID }) {
		return false
	}
	if !matchAttackers(km.Attackers, s.AttackerAlliances, func(p model.Party) int64 { return p.AllianceID }) {
		return false
	}
	if !matchAttackers(km.Attackers, s.AttackerShipTypes, func(p model.Party) int64 { return p.ShipTypeID }) {
		return false
	}

	if s.MinValue != nil && km.HasValue && km.Value < *s.MinValue {
		return false
	}
	if s.MaxValue != nil && km.HasValue && km.Value > *s.MaxValue {
		return false
	}
	if s.MinAttackers != nil && len(km.Attackers) < *s.MinAttackers {
		return false
	}
	if s.MaxAttackers != nil && len(km.Attackers) > *s.MaxAttackers {
		return false
	}

	if len(s.SecurityClasses) > 0 {
		if km.SecurityClass == "" || !slices.Contains(s.SecurityClasses, km.SecurityClass) {
			return false
		}
	}
	if s.DistanceRef != nil {
		if !km.HasDistance || km.DistanceLy > s.DistanceRef.MaxLy {
			return false
		}
	}
	return true
}

// matchSingle evaluates a scalar event field against one dimension. All three
// modes collapse to set membership here; an absent field (zero) can never
// satisfy a non-empty constraint.
func matchSingle(v int64, set IDSet) bool {
	if set.Empty() {
		return true
	}
	return v != 0 && slices.Contains(set.IDs, v)
}

// matchAttackers evaluates one identity field aggregated across the attacker
// list. OR and IF pass when any attacker carries any required ID; AND passes
// when every required ID appears on at least one attacker, not necessarily
// the same one.
func matchAttackers(attackers []model.Party, set IDSet, field func(model.Party) int64) bool {
	if set.Empty() {
		return true
	}
	if set.Mode == ModeAND {
		for _, id := range set.IDs {
			if !attackersContain(attackers, field, id) {
				return false
			}
		}
		return true
	}
	for _, a := range attackers {
		if v := field(a); v != 0 && slices.Contains(set.IDs, v) {
			return true
		}
	}
	return false
}

func attackersContain(attackers []model.Party, field func(model.Party) int64, id int64) bool {
	for _, a := range attackers {
		if field(a) == id {
			return true
		}
	}
	return false
}

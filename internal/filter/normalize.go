package filter

import (
	"encoding/json"
	"math"
	"slices"
	"strconv"
	"strings"

	"killfeed/internal/model"
)

// Key aliases accepted per dimension. The first entry is the canonical key
// that Spec marshals to; the rest are the shapes older deployments persisted
// (flat camelCase arrays with a separate "<key>Mode" field).
var dimensionKeys = map[string][]string{
	"regions":               {"regions", "regionIds", "region_ids"},
	"systems":               {"systems", "systemIds", "system_ids"},
	"victim_corporations":   {"victim_corporations", "corporationIds", "corporation_ids", "victimCorporationIds"},
	"victim_characters":     {"victim_characters", "characterIds", "character_ids", "victimCharacterIds"},
	"victim_alliances":      {"victim_alliances", "allianceIds", "alliance_ids", "victimAllianceIds"},
	"victim_ship_types":     {"victim_ship_types", "shipTypeIds", "ship_type_ids", "victimShipTypeIds"},
	"attacker_corporations": {"attacker_corporations", "attackerCorporationIds", "attacker_corporation_ids"},
	"attacker_characters":   {"attacker_characters", "attackerCharacterIds", "attacker_character_ids"},
	"attacker_alliances":    {"attacker_alliances", "attackerAllianceIds", "attacker_alliance_ids"},
	"attacker_ship_types":   {"attacker_ship_types", "attackerShipTypeIds", "attacker_ship_type_ids"},
}

// Normalize canonicalizes a raw, user-supplied filter document into a Spec.
// Input originates from free-text entry and several generations of persisted
// JSON, so the contract is best-effort sanitize: malformed entries are
// dropped, never surfaced as errors. Normalize is idempotent over its own
// output.
func Normalize(raw map[string]any) Spec {
	var s Spec
	s.Regions = idSet(raw, dimensionKeys["regions"])
	s.Systems = idSet(raw, dimensionKeys["systems"])
	s.VictimCorporations = idSet(raw, dimensionKeys["victim_corporations"])
	s.VictimCharacters = idSet(raw, dimensionKeys["victim_characters"])
	s.VictimAlliances = idSet(raw, dimensionKeys["victim_alliances"])
	s.VictimShipTypes = idSet(raw, dimensionKeys["victim_ship_types"])
	s.AttackerCorporations = idSet(raw, dimensionKeys["attacker_corporations"])
	s.AttackerCharacters = idSet(raw, dimensionKeys["attacker_characters"])
	s.AttackerAlliances = idSet(raw, dimensionKeys["attacker_alliances"])
	s.AttackerShipTypes = idSet(raw, dimensionKeys["attacker_ship_types"])

	s.MinValue = numberField(raw, "min_value", "minValue", "minisk")
	s.MaxValue = numberField(raw, "max_value", "maxValue", "maxisk")
	s.MinAttackers = intField(raw, "min_attackers", "minAttackers", "minattackers")
	s.MaxAttackers = intField(raw, "max_attackers", "maxAttackers", "maxattackers")

	s.SecurityClasses = securityClasses(lookup(raw, "security_classes", "securityClasses"))
	s.DistanceRef = distanceRef(lookup(raw, "distance_ref", "distanceRef"))
	return s
}

// Decode unmarshals a persisted filter document and normalizes it. Broken
// JSON degrades to the empty (unconstrained) Spec rather than an error: a
// subscription must never crash the stream, it can only stop matching.
func Decode(data []byte) Spec {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Spec{}
	}
	return Normalize(raw)
}

func lookup(raw map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := raw[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func idSet(raw map[string]any, keys []string) IDSet {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok || v == nil {
			continue
		}
		if obj, isObj := v.(map[string]any); isObj {
			return canonicalSet(intList(obj["ids"]), parseMode(obj["mode"]))
		}
		return canonicalSet(intList(v), parseMode(raw[k+"Mode"]))
	}
	return IDSet{}
}

func canonicalSet(ids []int64, mode Mode) IDSet {
	if len(ids) == 0 {
		return IDSet{}
	}
	slices.Sort(ids)
	ids = slices.Compact(ids)
	return IDSet{IDs: ids, Mode: mode}
}

// intList extracts positive integer IDs from whatever shape the value has:
// a JSON array of numbers or strings, a single scalar, or a comma-separated
// string. Anything that is not a positive integer is dropped.
func intList(v any) []int64 {
	var out []int64
	add := func(id int64, ok bool) {
		if ok && id > 0 {
			out = append(out, id)
		}
	}
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			add(asInt(item))
		}
	case string:
		for _, part := range strings.Split(t, ",") {
			add(asInt(part))
		}
	case nil:
	default:
		add(asInt(v))
	}
	return out
}

func asInt(v any) (int64, bool) {
	switch t := v.(type) {
	case float64:
		if t != math.Trunc(t) || math.IsInf(t, 0) || math.IsNaN(t) {
			return 0, false
		}
		return int64(t), true
	case int:
		return int64(t), true
	case int64:
		return t, true
	case json.Number:
		n, err := t.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		return n, err == nil
	}
	return 0, false
}

func parseMode(v any) Mode {
	s, _ := v.(string)
	switch Mode(strings.TrimSpace(s)) {
	case ModeAND:
		return ModeAND
	case ModeIF:
		return ModeIF
	}
	return ModeOR
}

// numberField parses an optional non-negative number from a raw value.
// String forms may carry grouping separators ("1,500,000"). Negative or
// non-finite results are treated as absent, not clamped.
func numberField(raw map[string]any, keys ...string) *float64 {
	n, ok := asNumber(lookup(raw, keys...))
	if !ok || n < 0 || math.IsInf(n, 0) || math.IsNaN(n) {
		return nil
	}
	return &n
}

func intField(raw map[string]any, keys ...string) *int {
	f := numberField(raw, keys...)
	if f == nil {
		return nil
	}
	n := int(*f)
	return &n
}

func asNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		n, err := t.Float64()
		return n, err == nil
	case string:
		cleaned := strings.NewReplacer(",", "", "_", "", " ", "").Replace(strings.TrimSpace(t))
		if cleaned == "" {
			return 0, false
		}
		n, err := strconv.ParseFloat(cleaned, 64)
		return n, err == nil
	}
	return 0, false
}

func securityClasses(v any) []model.SecurityClass {
	var items []string
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok {
				items = append(items, s)
			}
		}
	case string:
		items = strings.Split(t, ",")
	default:
		return nil
	}
	var out []model.SecurityClass
	for _, item := range items {
		if sc, ok := model.ParseSecurityClass(strings.ToLower(strings.TrimSpace(item))); ok {
			out = append(out, sc)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func distanceRef(v any) *DistanceRef {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	sys, ok := asInt(lookup(obj, "system_id", "systemId"))
	if !ok || sys <= 0 {
		return nil
	}
	maxLy, ok := asNumber(lookup(obj, "max_ly", "maxLy"))
	if !ok || maxLy < 0 || math.IsInf(maxLy, 0) || math.IsNaN(maxLy) {
		return nil
	}
	return &DistanceRef{SystemID: sys, MaxLy: maxLy}
}

package filter

import (
	"testing"

	"killfeed/internal/model"
)

func testKillmail() model.Killmail {
	return model.Killmail{
		KillmailID: 101,
		SystemID:   30000142,
		RegionID:   10000002,
		Victim: model.Party{
			CharacterID:   90001,
			CorporationID: 500001,
			AllianceID:    99001,
			ShipTypeID:    587,
		},
		Attackers: []model.Party{
			{CharacterID: 90002, CorporationID: 600001, AllianceID: 1, ShipTypeID: 11567},
			{CharacterID: 90003, CorporationID: 600002, AllianceID: 2, ShipTypeID: 670},
		},
		Value:    500000,
		HasValue: true,
	}
}

func ids(mode Mode, vals ...int64) IDSet {
	return IDSet{IDs: vals, Mode: mode}
}

func TestEmptySpecMatchesEverything(t *testing.T) {
	if !Matches(testKillmail(), Spec{}) {
		t.Fatalf("empty spec must match every event")
	}
	if !Matches(model.Killmail{SystemID: 1, Attackers: []model.Party{{}}}, Spec{}) {
		t.Fatalf("empty spec must match a minimal event")
	}
}

func TestEmptySetEqualsAbsent(t *testing.T) {
	// An explicitly-present empty set behaves exactly like an absent one.
	s := Spec{VictimCorporations: IDSet{IDs: []int64{}, Mode: ModeAND}}
	if !Matches(testKillmail(), s) {
		t.Fatalf("empty id set must be unconstrained")
	}
}

func TestVictimCorporationOR(t *testing.T) {
	km := testKillmail()
	if !Matches(km, Spec{VictimCorporations: ids(ModeOR, 500001)}) {
		t.Fatalf("expected match on victim corporation")
	}
	if Matches(km, Spec{VictimCorporations: ids(ModeOR, 500999)}) {
		t.Fatalf("unexpected match on wrong corporation")
	}
}

func TestSingleValuedANDBehavesLikeOR(t *testing.T) {
	km := testKillmail()
	// A scalar cannot equal two distinct IDs; AND degrades to membership.
	if !Matches(km, Spec{VictimCorporations: ids(ModeAND, 500001, 500002)}) {
		t.Fatalf("AND on scalar dimension must pass on membership")
	}
}

func TestSingleValuedAbsentFieldFailsConstraint(t *testing.T) {
	km := testKillmail()
	km.Victim.AllianceID = 0
	if Matches(km, Spec{VictimAlliances: ids(ModeOR, 99001)}) {
		t.Fatalf("absent victim alliance must not satisfy a non-empty constraint")
	}
}

func TestLocationDimensions(t *testing.T) {
	km := testKillmail()
	if !Matches(km, Spec{Systems: ids(ModeOR, 30000142), Regions: ids(ModeOR, 10000002)}) {
		t.Fatalf("expected system+region match")
	}
	if Matches(km, Spec{Regions: ids(ModeOR, 10000043)}) {
		t.Fatalf("unexpected region match")
	}
}

func TestAttackerAllianceANDRequiresAllIDs(t *testing.T) {
	km := testKillmail() // attacker alliances {1, 2}
	if Matches(km, Spec{AttackerAlliances: ids(ModeAND, 1, 3)}) {
		t.Fatalf("AND with an id no attacker carries must fail")
	}
	if !Matches(km, Spec{AttackerAlliances: ids(ModeAND, 1, 2)}) {
		t.Fatalf("AND satisfied across different attackers must pass")
	}
}

func TestAttackerORAnyAttackerAnyID(t *testing.T) {
	km := testKillmail()
	if !Matches(km, Spec{AttackerCorporations: ids(ModeOR, 600002, 777)}) {
		t.Fatalf("expected OR match on second attacker")
	}
	if Matches(km, Spec{AttackerCorporations: ids(ModeOR, 777)}) {
		t.Fatalf("unexpected OR match")
	}
}

func TestAttackerIFBehavesLikeOR(t *testing.T) {
	km := testKillmail()
	if !Matches(km, Spec{AttackerShipTypes: ids(ModeIF, 670)}) {
		t.Fatalf("IF must pass when any attacker matches")
	}
	if Matches(km, Spec{AttackerShipTypes: ids(ModeIF, 9999)}) {
		t.Fatalf("IF must fail when no attacker matches")
	}
}

func TestValueBounds(t *testing.T) {
	km := testKillmail()
	minV := func(v float64) Spec { return Spec{MinValue: &v} }
	maxV := func(v float64) Spec { return Spec{MaxValue: &v} }

	if Matches(km, minV(1000000)) {
		t.Fatalf("value below minimum must fail")
	}
	km.Value = 1000000
	if !Matches(km, minV(1000000)) {
		t.Fatalf("minimum bound is inclusive")
	}
	if !Matches(km, maxV(1000000)) {
		t.Fatalf("maximum bound is inclusive")
	}
	km.Value = 1000001
	if Matches(km, maxV(1000000)) {
		t.Fatalf("value above maximum must fail")
	}
}

func TestUnknownValuePassesValueBounds(t *testing.T) {
	km := testKillmail()
	km.HasValue = false
	km.Value = 0
	v := 1000000.0
	if !Matches(km, Spec{MinValue: &v}) {
		t.Fatalf("unknown value must not be excluded by a value bound")
	}
}

func TestAttackerCountBounds(t *testing.T) {
	km := testKillmail() // 2 attackers
	n := func(v int) *int { return &v }
	if Matches(km, Spec{MinAttackers: n(3)}) {
		t.Fatalf("too few attackers must fail")
	}
	if !Matches(km, Spec{MinAttackers: n(2), MaxAttackers: n(2)}) {
		t.Fatalf("attacker count bounds are inclusive")
	}
	if Matches(km, Spec{MaxAttackers: n(1)}) {
		t.Fatalf("too many attackers must fail")
	}
}

func TestSecurityClassFailsClosed(t *testing.T) {
	km := testKillmail()
	s := Spec{SecurityClasses: []model.SecurityClass{model.SecurityHigh}}
	if Matches(km, s) {
		t.Fatalf("event without a computed security class must be excluded")
	}
	km.SecurityClass = model.SecurityHigh
	if !Matches(km, s) {
		t.Fatalf("expected security class match")
	}
	km.SecurityClass = model.SecurityNull
	if Matches(km, s) {
		t.Fatalf("unexpected security class match")
	}
}

func TestDistanceFailsClosed(t *testing.T) {
	km := testKillmail()
	s := Spec{DistanceRef: &DistanceRef{SystemID: 30000142, MaxLy: 10}}
	if Matches(km, s) {
		t.Fatalf("event without a computed distance must be excluded")
	}
	km.HasDistance = true
	km.DistanceLy = 9.5
	if !Matches(km, s) {
		t.Fatalf("expected distance match")
	}
	km.DistanceLy = 10
	if !Matches(km, s) {
		t.Fatalf("distance bound is inclusive")
	}
	km.DistanceLy = 10.1
	if Matches(km, s) {
		t.Fatalf("distance above the bound must fail")
	}
}

func TestConstraintsAreConjunctive(t *testing.T) {
	km := testKillmail()
	s := Spec{
		VictimCorporations: ids(ModeOR, 500001),
		AttackerAlliances:  ids(ModeOR, 1),
	}
	if !Matches(km, s) {
		t.Fatalf("expected both dimensions to pass")
	}
	s.AttackerAlliances = ids(ModeOR, 42)
	if Matches(km, s) {
		t.Fatalf("one failing dimension must fail the whole filter")
	}
}

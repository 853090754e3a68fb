package normalize

import (
	"context"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"killfeed/internal/model"
)

// InvalidEventError marks a payload that cannot be filtered at all: without a
// solar system or an attacker list no filter dimension is meaningful. Every
// other absence degrades to "field unknown".
type InvalidEventError struct {
	Reason string
}

func (e *InvalidEventError) Error() string {
	return fmt.Sprintf("invalid killmail payload: %s", e.Reason)
}

// RegionLookup resolves a solar system to its region. Backed by the refdata
// resolver in production and by fakes in tests.
type RegionLookup interface {
	RegionID(ctx context.Context, systemID int64) (int64, error)
}

// Normalize flattens a raw killmail payload into the canonical record. The
// upstream feed has shipped three shapes over the years and all are accepted:
//
//	{"package": {"killID": n, "killmail": {...}, "zkb": {...}}}   RedisQ
//	{"killmail": {...}, "zkb": {...}}                             unwrapped
//	{...killmail fields..., "zkb": {...}}                         websocket
//
// RegionID is filled from the system lookup when the payload omits it; a
// failed lookup leaves it unknown and never fails the event.
func Normalize(ctx context.Context, raw []byte, regions RegionLookup) (model.Killmail, error) {
	if !gjson.ValidBytes(raw) {
		return model.Killmail{}, &InvalidEventError{Reason: "not valid JSON"}
	}
	root := gjson.ParseBytes(raw)
	if pkg := root.Get("package"); pkg.Exists() {
		if pkg.Type == gjson.Null {
			return model.Killmail{}, &InvalidEventError{Reason: "empty package"}
		}
		root = pkg
	}
	kill := root
	if inner := root.Get("killmail"); inner.IsObject() {
		kill = inner
	}
	zkb := root.Get("zkb")

	systemID := kill.Get("solar_system_id").Int()
	if systemID <= 0 {
		return model.Killmail{}, &InvalidEventError{Reason: "missing solar_system_id"}
	}
	attackers := kill.Get("attackers")
	if !attackers.IsArray() {
		return model.Killmail{}, &InvalidEventError{Reason: "missing attackers"}
	}

	km := model.Killmail{
		SystemID:  systemID,
		RegionID:  kill.Get("region_id").Int(),
		Victim:    party(kill.Get("victim")),
		Attackers: make([]model.Party, 0, 8),
	}
	attackers.ForEach(func(_, a gjson.Result) bool {
		km.Attackers = append(km.Attackers, party(a))
		return true
	})

	km.KillmailID = kill.Get("killmail_id").Int()
	if km.KillmailID == 0 {
		km.KillmailID = root.Get("killID").Int()
	}
	if ts := kill.Get("killmail_time"); ts.Exists() {
		if t, err := time.Parse(time.RFC3339, ts.String()); err == nil {
			km.Time = t.UTC()
		}
	}

	if v := zkb.Get("totalValue"); v.Exists() {
		km.Value = v.Float()
		km.HasValue = true
	}
	km.Solo = zkb.Get("solo").Bool()
	km.NPC = zkb.Get("npc").Bool()
	km.URL = zkb.Get("url").String()
	if km.URL == "" && km.KillmailID != 0 {
		km.URL = fmt.Sprintf("https://zkillboard.com/kill/%d/", km.KillmailID)
	}

	// Enrichments are computed upstream; the normalizer only carries them.
	if sc, ok := model.ParseSecurityClass(root.Get("security_class").String()); ok {
		km.SecurityClass = sc
	}
	if d := root.Get("distance_ly"); d.Exists() {
		km.DistanceLy = d.Float()
		km.HasDistance = true
	}

	if km.RegionID <= 0 {
		km.RegionID = 0
		if regions != nil {
			if id, err := regions.RegionID(ctx, systemID); err == nil && id > 0 {
				km.RegionID = id
			}
		}
	}
	return km, nil
}

func party(v gjson.Result) model.Party {
	return model.Party{
		CharacterID:   positive(v.Get("character_id").Int()),
		CorporationID: positive(v.Get("corporation_id").Int()),
		AllianceID:    positive(v.Get("alliance_id").Int()),
		ShipTypeID:    positive(v.Get("ship_type_id").Int()),
	}
}

func positive(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}

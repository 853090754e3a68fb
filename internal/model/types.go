package model

import "time"

type SecurityClass string

const (
	SecurityHigh   SecurityClass = "highsec"
	SecurityLow    SecurityClass = "lowsec"
	SecurityNull   SecurityClass = "nullsec"
	SecurityWSpace SecurityClass = "wspace"
)

func ParseSecurityClass(s string) (SecurityClass, bool) {
	switch SecurityClass(s) {
	case SecurityHigh, SecurityLow, SecurityNull, SecurityWSpace:
		return SecurityClass(s), true
	}
	return "", false
}

// Party identifies one participant in a killmail, victim or attacker.
// A zero ID means the field was absent upstream, never "id zero".
type Party struct {
	CharacterID   int64 `json:"character_id,omitempty"`
	CorporationID int64 `json:"corporation_id,omitempty"`
	AllianceID    int64 `json:"alliance_id,omitempty"`
	ShipTypeID    int64 `json:"ship_type_id,omitempty"`
}

// Killmail is the canonical event record consumed by the filter evaluator.
type Killmail struct {
	KillmailID int64     `json:"killmail_id"`
	Time       time.Time `json:"time,omitzero"`
	SystemID   int64     `json:"system_id"`
	RegionID   int64     `json:"region_id,omitempty"`
	Victim     Party     `json:"victim"`
	Attackers  []Party   `json:"attackers"`

	Value    float64 `json:"value,omitempty"`
	HasValue bool    `json:"has_value,omitempty"`
	Solo     bool    `json:"solo,omitempty"`
	NPC      bool    `json:"npc,omitempty"`

	SecurityClass SecurityClass `json:"security_class,omitempty"`
	DistanceLy    float64       `json:"distance_ly,omitempty"`
	HasDistance   bool          `json:"has_distance,omitempty"`

	URL string `json:"url,omitempty"`
}

// MatchRecord is one (event, feed) pair that passed its filter, kept for
// the API's recent-matches listing.
type MatchRecord struct {
	Timestamp     time.Time `json:"timestamp"`
	DestinationID string    `json:"destination_id"`
	Feed          string    `json:"feed"`
	KillmailID    int64     `json:"killmail_id"`
	Delivered     bool      `json:"delivered"`
	Error         string    `json:"error,omitempty"`
}

// FeedStats are per-feed dispatch counters.
type FeedStats struct {
	DestinationID string `json:"destination_id"`
	Feed          string `json:"feed"`
	Evaluated     int64  `json:"evaluated"`
	Matched       int64  `json:"matched"`
	Delivered     int64  `json:"delivered"`
	Failed        int64  `json:"failed"`
}

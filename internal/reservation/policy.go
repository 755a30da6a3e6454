package reservation

import (
	"time"

	"campus-reservation-backend/config"
	"campus-reservation-backend/internal/model"
)

// Policy captures the booking rules for one resource kind. Keeping the rules
// in a lookup keyed by kind keeps the lifecycle logic itself kind-agnostic.
type Policy struct {
	// MaxDuration caps the reserved interval; zero means unbounded.
	MaxDuration time.Duration
	// SingleActive limits a holder to one active reservation across all
	// resources of this kind.
	SingleActive bool
	// ElapsedStatus is the terminal status reached when the interval passes.
	ElapsedStatus model.ReservationStatus
}

// PolicyTable maps resource kinds to their booking rules.
type PolicyTable map[model.ResourceKind]Policy

// NewPolicyTable builds the policy table from configuration. Rooms carry no
// single-active restriction; lab stations do, and a holder is limited to one
// active station reservation across all stations.
func NewPolicyTable(cfg config.PolicyConfig) PolicyTable {
	return PolicyTable{
		model.KindRoom: {
			MaxDuration:   time.Duration(cfg.RoomMaxDurationMinutes) * time.Minute,
			SingleActive:  false,
			ElapsedStatus: model.ElapsedStatus(model.KindRoom),
		},
		model.KindLabStation: {
			MaxDuration:   time.Duration(cfg.StationMaxDurationMinutes) * time.Minute,
			SingleActive:  true,
			ElapsedStatus: model.ElapsedStatus(model.KindLabStation),
		},
	}
}

// For returns the policy for a kind. Unknown kinds get the room policy,
// the more permissive of the two.
func (t PolicyTable) For(kind model.ResourceKind) Policy {
	if p, ok := t[kind]; ok {
		return p
	}
	return t[model.KindRoom]
}

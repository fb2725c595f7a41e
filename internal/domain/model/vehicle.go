// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"time"
)

// VehicleID is the numeric vehicle identifier shared by every upstream source.
type VehicleID int64

// MasteryTier is one of the three graduated percentile levels the ranking
// endpoint accepts.
type MasteryTier int

// Supported mastery tiers. TierTop is the only tier that carries a rank.
const (
	TierLower MasteryTier = 65
	TierMid   MasteryTier = 85
	TierTop   MasteryTier = 95
)

// Tiers lists the mastery tiers in crawl order.
func Tiers() []MasteryTier { return []MasteryTier{TierLower, TierMid, TierTop} }

// Valid reports whether t is a supported tier.
func (t MasteryTier) Valid() bool {
	switch t {
	case TierLower, TierMid, TierTop:
		return true
	}
	return false
}

// Field returns the persisted column name of the tier metric, e.g. "mastery_95".
func (t MasteryTier) Field() string { return fmt.Sprintf("mastery_%d", int(t)) }

// VehicleTypes are the vehicle classes exposed as filter options.
var VehicleTypes = []string{"lightTank", "mediumTank", "heavyTank", "AT-SPG", "SPG"}

// VehicleRecord is the canonical catalog entry.
type VehicleRecord struct {
	ID               VehicleID `json:"id"`
	Nation           string    `json:"nation,omitempty"`
	Type             string    `json:"type,omitempty"`
	Role             string    `json:"role,omitempty"`
	Tier             int       `json:"tier,omitempty"` // 0 when unknown
	Name             string    `json:"name,omitempty"`
	ShortName        string    `json:"short_name,omitempty"`
	EnName           string    `json:"en_name,omitempty"`
	EnShortName      string    `json:"en_short_name,omitempty"`
	TechName         string    `json:"tech_name,omitempty"`
	Premium          bool      `json:"premium"`
	CollectorVehicle bool      `json:"collector_vehicle"`
	TankIcon         string    `json:"tank_icon,omitempty"`
	Mastery65        *int      `json:"mastery_65,omitempty"`
	Mastery85        *int      `json:"mastery_85,omitempty"`
	Mastery95        *int      `json:"mastery_95,omitempty"`
	Ace              *int      `json:"ace,omitempty"`
	Rank             *int      `json:"rank,omitempty"`
	RankDelta        *int      `json:"rank_delta,omitempty"`
	InsertDate       time.Time `json:"insert_date"`
	UpdateDate       time.Time `json:"update_date"`
}

// Incomplete reports whether a classification field the repairer fills is missing.
func (r VehicleRecord) Incomplete() bool {
	return r.Nation == "" || r.Type == "" || r.Tier == 0
}

// Mastery returns the metric stored for tier, or nil.
func (r VehicleRecord) Mastery(tier MasteryTier) *int {
	switch tier {
	case TierLower:
		return r.Mastery65
	case TierMid:
		return r.Mastery85
	case TierTop:
		return r.Mastery95
	}
	return nil
}

// SetMastery stores v as the metric of tier. Unsupported tiers are ignored.
func (r *VehicleRecord) SetMastery(tier MasteryTier, v int) {
	switch tier {
	case TierLower:
		r.Mastery65 = &v
	case TierMid:
		r.Mastery85 = &v
	case TierTop:
		r.Mastery95 = &v
	}
}

// VehiclePatch is a point update. Nil fields are left unchanged.
type VehiclePatch struct {
	Nation      *string
	Type        *string
	Role        *string
	Tier        *int
	Name        *string
	ShortName   *string
	EnName      *string
	EnShortName *string
	TechName    *string
	TankIcon    *string
	Mastery65   *int
	Mastery85   *int
	Mastery95   *int
	Rank        *int
	RankDelta   *int
	UpdateDate  *time.Time
}

// SetMastery sets the metric field of tier.
func (p *VehiclePatch) SetMastery(tier MasteryTier, v int) {
	switch tier {
	case TierLower:
		p.Mastery65 = &v
	case TierMid:
		p.Mastery85 = &v
	case TierTop:
		p.Mastery95 = &v
	}
}

// Empty reports whether the patch changes nothing.
func (p VehiclePatch) Empty() bool {
	return p == VehiclePatch{}
}

// Apply writes every non-nil field of p into r.
func (p VehiclePatch) Apply(r *VehicleRecord) {
	setString(&r.Nation, p.Nation)
	setString(&r.Type, p.Type)
	setString(&r.Role, p.Role)
	if p.Tier != nil {
		r.Tier = *p.Tier
	}
	setString(&r.Name, p.Name)
	setString(&r.ShortName, p.ShortName)
	setString(&r.EnName, p.EnName)
	setString(&r.EnShortName, p.EnShortName)
	setString(&r.TechName, p.TechName)
	setString(&r.TankIcon, p.TankIcon)
	setInt(&r.Mastery65, p.Mastery65)
	setInt(&r.Mastery85, p.Mastery85)
	setInt(&r.Mastery95, p.Mastery95)
	setInt(&r.Rank, p.Rank)
	setInt(&r.RankDelta, p.RankDelta)
	if p.UpdateDate != nil {
		r.UpdateDate = *p.UpdateDate
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst **int, v *int) {
	if v != nil {
		n := *v
		*dst = &n
	}
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }

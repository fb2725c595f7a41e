package model

import "time"

// HistorySnapshot is the metric state of one vehicle in one snapshot bucket.
// At most one snapshot exists per (VehicleID, Bucket).
type HistorySnapshot struct {
	VehicleID VehicleID `json:"-"`
	Bucket    time.Time `json:"date"`
	Mastery65 *int      `json:"mastery_65,omitempty"`
	Mastery85 *int      `json:"mastery_85,omitempty"`
	Mastery95 *int      `json:"mastery_95,omitempty"`
	Ace       *int      `json:"ace,omitempty"`
}

// NewHistorySnapshot builds the snapshot a ranking row writes for tier.
func NewHistorySnapshot(id VehicleID, bucket time.Time, tier MasteryTier, v int) HistorySnapshot {
	s := HistorySnapshot{VehicleID: id, Bucket: bucket}
	switch tier {
	case TierLower:
		s.Mastery65 = &v
	case TierMid:
		s.Mastery85 = &v
	case TierTop:
		s.Mastery95 = &v
	}
	return s
}

// Merge overlays the non-nil metrics of next onto s. Later writes win.
func (s HistorySnapshot) Merge(next HistorySnapshot) HistorySnapshot {
	setInt(&s.Mastery65, next.Mastery65)
	setInt(&s.Mastery85, next.Mastery85)
	setInt(&s.Mastery95, next.Mastery95)
	setInt(&s.Ace, next.Ace)
	return s
}

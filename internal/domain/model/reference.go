package model

import "time"

// ReferenceEntry is a classification record from the independent catalog
// mirror. It is only used to seed or repair VehicleRecord.
type ReferenceEntry struct {
	ID          VehicleID `json:"id"`
	Nation      string    `json:"nation"`
	Type        string    `json:"type"`
	Role        string    `json:"role"`
	Tier        int       `json:"tier"`
	Name        string    `json:"name"`
	EnName      string    `json:"en_name"`
	ShortName   string    `json:"short_name"`
	EnShortName string    `json:"en_short_name"`
	TechName    string    `json:"tech_name"`
	InsertDate  time.Time `json:"insert_date"`
}

// Seed returns a new catalog record carrying the reference classification.
func (e ReferenceEntry) Seed() VehicleRecord {
	return VehicleRecord{
		ID:          e.ID,
		Nation:      e.Nation,
		Type:        e.Type,
		Role:        e.Role,
		Tier:        e.Tier,
		Name:        e.Name,
		ShortName:   e.ShortName,
		EnName:      e.EnName,
		EnShortName: e.EnShortName,
		TechName:    e.TechName,
	}
}

// RegionalEntry is one decoded row of a regional catalog response.
// It lives for a single reconciliation pass and is never persisted.
type RegionalEntry struct {
	ID               VehicleID
	Nation           string
	Type             string
	Role             string
	Tier             int
	Name             string
	ShortMark        string
	TechName         string
	Premium          bool
	CollectorVehicle bool
}

// RankingRow is one row of a ranking page.
type RankingRow struct {
	VehicleID VehicleID
	Name      string
	Icon      string
	Mastery   int
}

// Package catalog turns regional catalog responses into canonical vehicle records.
package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/okian/mastery/internal/domain/model"
)

// Column names of the regional catalog table.
const (
	colVehicleID = "vehicle_cd"
	colNation    = "nation"
	colType      = "type"
	colRole      = "role"
	colTier      = "tier"
	colLevel     = "level"
	colName      = "name"
	colShortMark = "short_mark"
	colTechName  = "tech_name"
	colPremium   = "premium"
	colCollector = "collector_vehicle"
)

// Table is the columns/rows body of a regional catalog response.
type Table struct {
	Parameters []string            `json:"parameters"`
	Data       [][]json.RawMessage `json:"data"`
}

// Decode zips every row with the table parameters into a RegionalEntry keyed
// by vehicle id. The first malformed row aborts the decode.
func Decode(t Table) (map[model.VehicleID]model.RegionalEntry, error) {
	out := make(map[model.VehicleID]model.RegionalEntry, len(t.Data))
	for i, row := range t.Data {
		if len(row) != len(t.Parameters) {
			return nil, fmt.Errorf("%w: row %d has %d fields, want %d",
				ErrFieldCountMismatch, i, len(row), len(t.Parameters))
		}
		e, err := decodeRow(t.Parameters, row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[e.ID] = e
	}
	return out, nil
}

func decodeRow(params []string, row []json.RawMessage) (model.RegionalEntry, error) {
	var (
		e     model.RegionalEntry
		hasID bool
		err   error
	)
	for i, col := range params {
		v := row[i]
		switch col {
		case colVehicleID:
			var id int64
			id, err = asInt(v)
			if err == nil && id > 0 {
				e.ID = model.VehicleID(id)
				hasID = true
			}
		case colNation:
			e.Nation, err = asString(v)
		case colType:
			e.Type, err = asString(v)
		case colRole:
			e.Role, err = asString(v)
		case colTier, colLevel:
			var n int64
			n, err = asInt(v)
			if n > 0 {
				e.Tier = int(n)
			}
		case colName:
			e.Name, err = asString(v)
		case colShortMark:
			e.ShortMark, err = asString(v)
		case colTechName:
			e.TechName, err = asString(v)
		case colPremium:
			e.Premium, err = asBool(v)
		case colCollector:
			e.CollectorVehicle, err = asBool(v)
		}
		if err != nil {
			return model.RegionalEntry{}, fmt.Errorf("%w: %s: %w", ErrInvalidField, col, err)
		}
	}
	if !hasID {
		return model.RegionalEntry{}, ErrMissingVehicleID
	}
	return e, nil
}

var null = []byte("null")

func asString(v json.RawMessage) (string, error) {
	if len(v) == 0 || bytes.Equal(v, null) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}

func asInt(v json.RawMessage) (int64, error) {
	if len(v) == 0 || bytes.Equal(v, null) {
		return 0, nil
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		return n.Int64()
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return 0, err
	}
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

// asBool accepts JSON booleans and the 0/1 integers some regions send.
func asBool(v json.RawMessage) (bool, error) {
	if len(v) == 0 || bytes.Equal(v, null) {
		return false, nil
	}
	var b bool
	if err := json.Unmarshal(v, &b); err == nil {
		return b, nil
	}
	n, err := asInt(v)
	if err != nil {
		return false, err
	}
	return n != 0, nil
}

package catalog

import (
	"sort"
	"time"

	"github.com/okian/mastery/internal/domain/model"
)

// Merge builds one canonical record per vehicle of the primary region.
//
// Vehicles known only to the secondary region are not merged. For each
// primary vehicle the base is the secondary entry when present, else the
// primary entry. The base supplies classification, display name, short name
// and the premium/collector flags; the English names always come from the
// primary region. Records are stamped with insertedAt and sorted by id.
func Merge(primary, secondary map[model.VehicleID]model.RegionalEntry, insertedAt time.Time) []model.VehicleRecord {
	out := make([]model.VehicleRecord, 0, len(primary))
	for id, p := range primary {
		base, ok := secondary[id]
		if !ok {
			base = p
		}
		out = append(out, model.VehicleRecord{
			ID:               id,
			Nation:           base.Nation,
			Type:             base.Type,
			Role:             base.Role,
			Tier:             base.Tier,
			Name:             base.Name,
			ShortName:        base.ShortMark,
			EnName:           p.Name,
			EnShortName:      p.ShortMark,
			TechName:         base.TechName,
			Premium:          base.Premium,
			CollectorVehicle: base.CollectorVehicle,
			InsertDate:       insertedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

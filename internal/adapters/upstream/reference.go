package upstream

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/okian/mastery/internal/domain/model"
)

// ReferenceClient reads the reference catalog mirror.
type ReferenceClient struct {
	c          *Client
	listURL    string
	vehicleURL string
}

// NewReferenceClient creates a mirror client. vehicleURL is the API base the
// per-vehicle path is appended to.
func NewReferenceClient(c *Client, listURL, vehicleURL string) *ReferenceClient {
	return &ReferenceClient{c: c, listURL: listURL, vehicleURL: strings.TrimRight(vehicleURL, "/")}
}

// ReferenceList is the mirror's vehicle index.
type ReferenceList struct {
	Slugs []string
	// Version is the newest game version the mirror advertises, if any.
	Version string
}

type listResponse struct {
	Tanks []struct {
		Slug string `json:"slug"`
	} `json:"tanks"`
	Versions []string `json:"versions"`
}

type tag struct {
	Name string `json:"name"`
}

type vehicleResponse struct {
	Tank struct {
		TankID    flexInt `json:"tank_id"`
		Nation    string  `json:"nation"`
		Tags      []tag   `json:"tags"`
		Tier      flexInt `json:"tier"`
		Name      string  `json:"name"`
		ShortName string  `json:"short_name"`
		ID        string  `json:"id"`
	} `json:"tank"`
}

// ListSlugs fetches the vehicle index.
func (r *ReferenceClient) ListSlugs(ctx context.Context) (ReferenceList, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.listURL, nil)
	if err != nil {
		return ReferenceList{}, err
	}

	var resp listResponse
	if err := r.c.doJSON(ctx, SourceReference, req, &resp); err != nil {
		return ReferenceList{}, err
	}

	out := ReferenceList{Slugs: make([]string, 0, len(resp.Tanks)), Version: LatestVersion(resp.Versions)}
	for _, t := range resp.Tanks {
		if t.Slug != "" {
			out.Slugs = append(out.Slugs, t.Slug)
		}
	}
	return out, nil
}

// FetchVehicle fetches one vehicle of game version (e.g. "v11600"). An empty
// version uses the mirror's current data.
func (r *ReferenceClient) FetchVehicle(ctx context.Context, version, slug string) (model.ReferenceEntry, error) {
	parts := []string{r.vehicleURL}
	if version != "" {
		parts = append(parts, url.PathEscape(version))
	}
	parts = append(parts, "tank", url.PathEscape(slug))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.Join(parts, "/"), nil)
	if err != nil {
		return model.ReferenceEntry{}, err
	}

	var resp vehicleResponse
	if err := r.c.doJSON(ctx, SourceReference, req, &resp); err != nil {
		return model.ReferenceEntry{}, err
	}

	v := resp.Tank
	if v.TankID <= 0 {
		return model.ReferenceEntry{}, fmt.Errorf("%w: %s: missing tank_id", ErrDecode, slug)
	}

	e := model.ReferenceEntry{
		ID:          model.VehicleID(v.TankID),
		Nation:      v.Nation,
		Tier:        int(v.Tier),
		Name:        v.Name,
		EnName:      v.Name,
		ShortName:   v.ShortName,
		EnShortName: v.ShortName,
		TechName:    v.ID,
	}
	if len(v.Tags) > 0 {
		e.Type = v.Tags[0].Name
	}
	if len(v.Tags) > 1 {
		e.Role = v.Tags[1].Name
	}
	return e, nil
}

// LatestVersion returns the highest dotted version, comparing each numeric
// component. A leading "v" is ignored. Empty input returns "".
func LatestVersion(versions []string) string {
	best := ""
	for _, v := range versions {
		if v == "" {
			continue
		}
		if best == "" || compareVersion(v, best) > 0 {
			best = v
		}
	}
	return best
}

func compareVersion(a, b string) int {
	pa := strings.Split(strings.TrimPrefix(a, "v"), ".")
	pb := strings.Split(strings.TrimPrefix(b, "v"), ".")
	for i := 0; i < max(len(pa), len(pb)); i++ {
		na, nb := versionPart(pa, i), versionPart(pb, i)
		switch {
		case na > nb:
			return 1
		case na < nb:
			return -1
		}
	}
	return 0
}

func versionPart(parts []string, i int) int {
	if i >= len(parts) {
		return 0
	}
	n, err := strconv.Atoi(parts[i])
	if err != nil {
		return 0
	}
	return n
}

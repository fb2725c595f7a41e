package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/okian/mastery/internal/domain/model"
	"github.com/okian/mastery/pkg/logger"
)

// RankingClient pages through the mastery ranking endpoint.
type RankingClient struct {
	c          *Client
	url        string
	tierFilter string
}

// NewRankingClient creates a ranking client. tierFilter is the vehicle tier
// list sent with every request, e.g. "5,6,7,8,9,10".
func NewRankingClient(c *Client, endpoint, tierFilter string) *RankingClient {
	return &RankingClient{c: c, url: endpoint, tierFilter: tierFilter}
}

// RankingPage is one decoded ranking page.
type RankingPage struct {
	Page int
	Rows []model.RankingRow
}

type rankingResponse struct {
	Errno  int    `json:"errno"`
	Errmsg string `json:"errmsg"`
	Data   struct {
		Ranking []rankingRow `json:"ranking"`
	} `json:"data"`
}

type rankingRow struct {
	TankID   flexInt `json:"tank_id"`
	TankName string  `json:"tank_name"`
	TankIcon string  `json:"tank_icon"`
	Mastery  flexInt `json:"mastery"`
}

// FetchPage requests one page of tier. A non-zero errno is ErrUpstreamStatus.
func (r *RankingClient) FetchPage(ctx context.Context, tier model.MasteryTier, page, size int) (RankingPage, error) {
	if !tier.Valid() {
		return RankingPage{}, fmt.Errorf("%w: %d", ErrInvalidTier, tier)
	}

	form := url.Values{}
	form.Set("percentile", strconv.Itoa(int(tier)))
	form.Set("rank_type", "default")
	form.Set("tier", r.tierFilter)
	form.Set("sort", "mastery")
	form.Set("page", strconv.Itoa(page))
	form.Set("size", strconv.Itoa(size))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, strings.NewReader(form.Encode()))
	if err != nil {
		return RankingPage{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var resp rankingResponse
	if err := r.c.doJSON(ctx, SourceRanking, req, &resp); err != nil {
		return RankingPage{}, err
	}
	if resp.Errno != 0 {
		return RankingPage{}, fmt.Errorf("%w: ranking errno %d: %s", ErrUpstreamStatus, resp.Errno, resp.Errmsg)
	}

	out := RankingPage{Page: page, Rows: make([]model.RankingRow, 0, len(resp.Data.Ranking))}
	for _, row := range resp.Data.Ranking {
		if row.TankID <= 0 {
			r.c.logger.Warn(ctx, "ranking row without tank_id",
				logger.String("tank_name", row.TankName),
				logger.Int("page", page),
			)
			continue
		}
		out.Rows = append(out.Rows, model.RankingRow{
			VehicleID: model.VehicleID(row.TankID),
			Name:      row.TankName,
			Icon:      row.TankIcon,
			Mastery:   int(row.Mastery),
		})
	}
	return out, nil
}

// flexInt decodes a JSON number or numeric string, rounding fractions.
type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*f = flexInt(n)
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("not a number: %s", b)
	}
	*f = flexInt(math.Round(v))
	return nil
}

var _ json.Unmarshaler = (*flexInt)(nil)

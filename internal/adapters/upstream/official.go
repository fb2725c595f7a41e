package upstream

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/okian/mastery/internal/domain/catalog"
	"github.com/okian/mastery/internal/domain/model"
	"github.com/okian/mastery/pkg/logger"
)

const statusOK = "ok"

// Region is one regional catalog endpoint.
type Region struct {
	URL      string
	Language string
}

// OfficialClient fetches the two regional catalogs.
type OfficialClient struct {
	c            *Client
	primary      Region
	secondary    Region
	attempts     int
	retryBackoff time.Duration
}

// NewOfficialClient creates a catalog client. attempts bounds how many times
// the pair of requests is tried.
func NewOfficialClient(c *Client, primary, secondary Region, attempts int, retryBackoff time.Duration) *OfficialClient {
	if attempts < 1 {
		attempts = 1
	}
	return &OfficialClient{c: c, primary: primary, secondary: secondary, attempts: attempts, retryBackoff: retryBackoff}
}

type catalogResponse struct {
	Status string        `json:"status"`
	Data   catalog.Table `json:"data"`
}

// FetchCatalogs fetches both regions concurrently and decodes them.
// It fails unless both regions report success. Transient failures retry the
// pair; a decode failure does not.
func (o *OfficialClient) FetchCatalogs(ctx context.Context) (primary, secondary map[model.VehicleID]model.RegionalEntry, err error) {
	op := func() error {
		p, s, err := o.fetchOnce(ctx)
		if err != nil {
			return err
		}
		primary, secondary = p, s
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.retryBackoff
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(o.attempts-1)), ctx) //nolint:gosec // attempts >= 1

	notify := func(err error, next time.Duration) {
		o.c.logger.Warn(ctx, "catalog fetch failed, retrying",
			logger.Error(err),
			logger.Duration("backoff", next),
		)
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, nil, err
	}
	return primary, secondary, nil
}

func (o *OfficialClient) fetchOnce(ctx context.Context) (map[model.VehicleID]model.RegionalEntry, map[model.VehicleID]model.RegionalEntry, error) {
	var p, s catalogResponse

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return o.fetchRegion(gctx, SourcePrimary, o.primary, &p) })
	g.Go(func() error { return o.fetchRegion(gctx, SourceSecondary, o.secondary, &s) })
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	if p.Status != statusOK || s.Status != statusOK {
		return nil, nil, fmt.Errorf("%w: catalog status primary=%q secondary=%q", ErrUpstreamStatus, p.Status, s.Status)
	}

	primary, err := catalog.Decode(p.Data)
	if err != nil {
		return nil, nil, backoff.Permanent(fmt.Errorf("%w: primary catalog: %w", ErrDecode, err))
	}
	secondary, err := catalog.Decode(s.Data)
	if err != nil {
		return nil, nil, backoff.Permanent(fmt.Errorf("%w: secondary catalog: %w", ErrDecode, err))
	}
	return primary, secondary, nil
}

func (o *OfficialClient) fetchRegion(ctx context.Context, source string, r Region, out *catalogResponse) error {
	u, err := url.Parse(r.URL)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("%w: %s url: %w", ErrTransport, source, err))
	}
	q := u.Query()
	q.Set("filter[premium]", "0,1")
	q.Set("filter[language]", r.Language)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return backoff.Permanent(err)
	}
	return o.c.doJSON(ctx, source, req, out)
}

// Package catalog implements product verification against the remote product
// catalog service.
package catalog

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ordway/order-service/internal/domain/product"
)

var _ product.Verifier = (*Client)(nil)

// DefaultTimeout bounds a verification call when no timeout is configured.
const DefaultTimeout = 5 * time.Second

// Client verifies products via GET {baseURL}/{productId}. Every call carries
// a bounded deadline; there are no retries.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the per-call verification deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithTransport sets the underlying HTTP round tripper, e.g. for telemetry
// providers supplied by the app runner.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.http.Transport = rt
	}
}

// NewClient creates a catalog client for the given base URL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		timeout: DefaultTimeout,
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Verify fetches the product and returns its snapshot.
//
// Failure modes are kept distinct: a catalog 404 yields product.ErrNotFound,
// an exceeded deadline yields product.ErrTimeout, and every other transport
// failure or status yields *product.UnavailableError.
func (c *Client) Verify(ctx context.Context, id string) (*product.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reqURL := c.baseURL + "/" + url.PathEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, product.ErrTimeout
		}
		return nil, &product.UnavailableError{Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, product.ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &product.UnavailableError{Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, product.ErrTimeout
		}
		return nil, &product.UnavailableError{Err: err}
	}

	p, err := decodeProduct(body)
	if err != nil {
		return nil, &product.UnavailableError{Err: errors.Wrap(err, "decode product")}
	}
	if p.ID == "" {
		p.ID = id
	}
	return p, nil
}

// decodeProduct parses the catalog response, tolerating unknown fields.
func decodeProduct(data []byte) (*product.Product, error) {
	var p product.Product
	d := jx.DecodeBytes(data)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			v, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "id")
			}
			p.ID = v
		case "name":
			v, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "name")
			}
			p.Name = v
		case "price":
			n, err := d.Num()
			if err != nil {
				return errors.Wrap(err, "price")
			}
			// Num may be a bare number or a quoted numeric string.
			v, err := decimal.NewFromString(strings.Trim(n.String(), `"`))
			if err != nil {
				return errors.Wrap(err, "price value")
			}
			p.Price = v
		case "category":
			v, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "category")
			}
			p.Category = v
		default:
			return d.Skip()
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &p, nil
}

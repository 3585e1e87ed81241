package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tliron/commonlog"

	"nickandperla.net/scrap/internal/hash"
)

// maxEnvelope bounds the size of a response body.
const maxEnvelope = 64 << 20

// HTTP is a provider for a remote scrap server.
type HTTP struct {
	URL     string
	Timeout time.Duration
	Client  *http.Client
	log     commonlog.Logger
}

// HTTPOption configures the HTTP provider.
type HTTPOption func(*HTTP)

// WithURL sets the base URL of the remote server.
func WithURL(url string) HTTPOption {
	return func(p *HTTP) { p.URL = strings.TrimSuffix(url, "/") }
}

// WithTimeout sets the request timeout.
func WithTimeout(timeout time.Duration) HTTPOption {
	return func(p *HTTP) { p.Timeout = timeout }
}

// WithClient sets the HTTP client.
func WithClient(c *http.Client) HTTPOption {
	return func(p *HTTP) { p.Client = c }
}

// NewHTTP creates a new HTTP provider.
func NewHTTP(opts ...HTTPOption) *HTTP {
	p := &HTTP{
		URL:     "http://localhost:8750",
		Timeout: 30 * time.Second,
		Client:  http.DefaultClient,
		log:     commonlog.GetLogger("scrap.provider"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Fetch requests the scrap h from the remote.
func (p *HTTP) Fetch(ctx context.Context, h hash.Hash) ([]byte, error) {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	url := p.URL + "/scraps/" + h.Hex()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/cbor")

	p.log.Debugf("GET %s", url)
	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrNotFound
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("remote error: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxEnvelope))
	if err != nil {
		return nil, err
	}
	env, err := UnmarshalEnvelope(body)
	if err != nil {
		return nil, err
	}
	if env.Hash != h {
		return nil, fmt.Errorf("remote answered %s with %s", h, hash.Hash(env.Hash))
	}
	return env.Term, nil
}

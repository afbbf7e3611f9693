package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrNotFound signals the remote service answered 404 for the requested document.
	ErrNotFound = errors.New("registry: not found")
	// ErrUnexpectedStatus signals any other non-2xx answer.
	ErrUnexpectedStatus = errors.New("registry: unexpected status")
	// ErrUnreachable signals a transport failure: refused, reset or timed out.
	ErrUnreachable = errors.New("registry: remote service unreachable")
	// ErrMalformedResponse signals a 2xx answer whose body is not the expected JSON document.
	ErrMalformedResponse = errors.New("registry: malformed response")
	// ErrUnresolvable signals a bare identifier with no base URL to resolve it against.
	ErrUnresolvable = errors.New("registry: identifier cannot be resolved to a URL")
)

const defaultTimeout = 10 * time.Second

// Client talks to the contract and catalog services.
type Client struct {
	ContractBaseURL string
	CatalogBaseURL  string
	HTTP            *http.Client
}

// New builds a Client. A zero timeout falls back to ten seconds.
func New(contractBaseURL, catalogBaseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		ContractBaseURL: trimBase(contractBaseURL),
		CatalogBaseURL:  trimBase(catalogBaseURL),
		HTTP:            &http.Client{Timeout: timeout},
	}
}

// GetContract fetches a contract by identifier or absolute URL.
func (c *Client) GetContract(ctx context.Context, id string) (Contract, error) {
	target, err := resolve(c.ContractBaseURL, "contracts", id)
	if err != nil {
		return Contract{}, err
	}

	var contract Contract
	if err := FetchJSON(ctx, c.HTTP, target, &contract); err != nil {
		return Contract{}, fmt.Errorf("registry: get contract %s: %w", id, err)
	}
	return contract, nil
}

// GetCatalogData fetches the catalog descriptor of a service offering, resource or software.
func (c *Client) GetCatalogData(ctx context.Context, id string) (CatalogData, error) {
	target, err := resolve(c.CatalogBaseURL, "catalog", id)
	if err != nil {
		return CatalogData{}, err
	}

	var data CatalogData
	if err := FetchJSON(ctx, c.HTTP, target, &data); err != nil {
		return CatalogData{}, fmt.Errorf("registry: get catalog data %s: %w", id, err)
	}
	return data, nil
}

// FetchJSON issues a GET against target and decodes the JSON body into dst.
func FetchJSON(ctx context.Context, hc *http.Client, target string, dst any) error {
	if hc == nil {
		hc = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= 300:
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	return nil
}

func resolve(base, kind, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("%w: empty %s identifier", ErrUnresolvable, kind)
	}
	if u, err := url.Parse(id); err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		return id, nil
	}
	if base == "" {
		return "", fmt.Errorf("%w: %s %q", ErrUnresolvable, kind, id)
	}
	return base + "/" + kind + "/" + url.PathEscape(id), nil
}

func trimBase(base string) string {
	return strings.TrimRight(strings.TrimSpace(base), "/")
}

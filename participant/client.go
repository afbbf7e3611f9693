package participant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"exchangeflow/exchange"
	"exchangeflow/registry"
)

// ReplicationPath is where every node accepts replicas from its counterparts.
const ReplicationPath = "/private/exchanges"

// ErrReplicationRejected signals a counterpart that answered a replica with a non-2xx status.
var ErrReplicationRejected = errors.New("participant: replication rejected")

// Client reaches remote participants: their self-descriptions and their replication endpoint.
type Client struct {
	HTTP          *http.Client
	LocalEndpoint string
	secret        []byte
	tokenTTL      time.Duration
	now           func() time.Time
}

// New builds a Client. An empty secret sends replicas without a bearer token.
func New(localEndpoint string, timeout time.Duration, secret string, tokenTTL time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if tokenTTL <= 0 {
		tokenTTL = 5 * time.Minute
	}
	return &Client{
		HTTP:          &http.Client{Timeout: timeout},
		LocalEndpoint: localEndpoint,
		secret:        []byte(secret),
		tokenTTL:      tokenTTL,
		now:           time.Now,
	}
}

// GetSelfDescription fetches the self-description published at url.
func (c *Client) GetSelfDescription(ctx context.Context, url string) (registry.SelfDescription, error) {
	if strings.TrimSpace(url) == "" {
		return registry.SelfDescription{}, fmt.Errorf("%w: empty self-description url", registry.ErrUnresolvable)
	}
	var sd registry.SelfDescription
	if err := registry.FetchJSON(ctx, c.HTTP, url, &sd); err != nil {
		return registry.SelfDescription{}, fmt.Errorf("participant: get self-description %s: %w", url, err)
	}
	return sd, nil
}

// Replicate posts the replica to the counterpart's replication endpoint.
func (c *Client) Replicate(ctx context.Context, endpoint string, replica exchange.Replica) error {
	body, err := json.Marshal(FromReplica(replica))
	if err != nil {
		return fmt.Errorf("participant: marshal replica: %w", err)
	}

	target := strings.TrimRight(endpoint, "/") + ReplicationPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("participant: build request: %w", err)
	}
	req.Header.Set("content-type", "application/json")

	if len(c.secret) > 0 {
		token, err := c.signToken(endpoint)
		if err != nil {
			return fmt.Errorf("participant: sign token: %w", err)
		}
		req.Header.Set("authorization", "Bearer "+token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("participant: replicate to %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s answered %d", ErrReplicationRejected, endpoint, resp.StatusCode)
	}
	return nil
}

func (c *Client) signToken(audience string) (string, error) {
	now := c.now()
	claims := jwt.RegisteredClaims{
		Issuer:    c.LocalEndpoint,
		Audience:  jwt.ClaimStrings{normalizeAudience(audience)},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.tokenTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// VerifyToken validates a replication bearer token addressed to audience and
// returns the issuing endpoint.
func VerifyToken(tokenString, secret, audience string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("participant: parse token: %w", err)
	}
	if !token.Valid || claims.Issuer == "" {
		return "", fmt.Errorf("participant: invalid token")
	}
	want := normalizeAudience(audience)
	for _, aud := range claims.Audience {
		if normalizeAudience(aud) == want {
			return claims.Issuer, nil
		}
	}
	return "", fmt.Errorf("participant: parse token: %w", jwt.ErrTokenInvalidAudience)
}

// normalizeAudience makes "https://p.example" and "https://p.example/" name
// the same node.
func normalizeAudience(endpoint string) string {
	return strings.TrimRight(endpoint, "/")
}

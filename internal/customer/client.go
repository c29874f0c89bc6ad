package customer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/tmksh/fulfillment/pkg/errors"
	"github.com/tmksh/fulfillment/pkg/httpclient"
)

// Customer is the directory's view of a customer.
type Customer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Directory resolves customer ids to their profile. Orders carry a snapshot
// of the customer's name and email, taken at creation time.
type Directory interface {
	Lookup(ctx context.Context, customerID string) (*Customer, error)
}

// HTTPDirectory looks customers up over the customer service's HTTP API.
type HTTPDirectory struct {
	client  *httpclient.Client
	baseURL string
	logger  *slog.Logger
}

// NewHTTPDirectory creates a directory backed by the customer service.
func NewHTTPDirectory(client *httpclient.Client, baseURL string, logger *slog.Logger) *HTTPDirectory {
	return &HTTPDirectory{
		client:  client,
		baseURL: baseURL,
		logger:  logger,
	}
}

// customerResponse mirrors the customer service's response envelope.
type customerResponse struct {
	Data Customer `json:"data"`
}

// Lookup fetches a customer profile by id.
func (d *HTTPDirectory) Lookup(ctx context.Context, customerID string) (*Customer, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/api/customers/"+customerID, nil)
	if err != nil {
		return nil, fmt.Errorf("create customer lookup request: %w", err)
	}

	resp, err := d.client.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("call customer service: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, apperrors.NotFound("customer", customerID)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, fmt.Errorf("customer service returned status %d: %s", resp.StatusCode, string(body))
	}

	var cr customerResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, fmt.Errorf("decode customer response: %w", err)
	}

	return &cr.Data, nil
}

const cacheKeyPrefix = "customer:"

// CachedDirectory is a read-through Redis cache in front of another
// Directory. Cache failures degrade to the underlying lookup.
type CachedDirectory struct {
	next   Directory
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedDirectory wraps a directory with a Redis read-through cache.
func NewCachedDirectory(next Directory, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedDirectory {
	return &CachedDirectory{
		next:   next,
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

// Lookup returns the cached profile when present, otherwise fetches from the
// underlying directory and stores the result.
func (d *CachedDirectory) Lookup(ctx context.Context, customerID string) (*Customer, error) {
	key := cacheKeyPrefix + customerID

	data, err := d.client.Get(ctx, key).Bytes()
	if err == nil {
		var c Customer
		if err := json.Unmarshal(data, &c); err == nil {
			return &c, nil
		}
		// Corrupt cache entry: drop it and fall through to the source.
		_ = d.client.Del(ctx, key).Err()
	} else if err != redis.Nil {
		d.logger.WarnContext(ctx, "customer cache read failed",
			slog.String("customer_id", customerID),
			slog.String("error", err.Error()),
		)
	}

	c, err := d.next.Lookup(ctx, customerID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(c); err == nil {
		if err := d.client.Set(ctx, key, data, d.ttl).Err(); err != nil {
			d.logger.WarnContext(ctx, "customer cache write failed",
				slog.String("customer_id", customerID),
				slog.String("error", err.Error()),
			)
		}
	}

	return c, nil
}

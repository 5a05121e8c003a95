// Package keys resolves the API keys the storefront needs at launch time.
//
// The publishable key comes from the Medusa backend's key-exchange endpoint.
// Scoped search keys come from the Meilisearch key-management API, where the
// master key lists every key and the resolver picks one by its actions.
package keys

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/medusa-deploy/internal/deployerr"
	"github.com/JakeFAU/medusa-deploy/internal/metrics"
	"github.com/JakeFAU/medusa-deploy/internal/retry"
)

// KeyType selects which search key to resolve.
type KeyType string

const (
	// KeyTypeAdmin selects a key allowed to perform every action.
	KeyTypeAdmin KeyType = "admin"
	// KeyTypeSearch selects a key restricted to search.
	KeyTypeSearch KeyType = "search"
)

const (
	wildcardAction = "*"
	searchAction   = "search"

	// maxBodyBytes caps how much of a key response is read.
	maxBodyBytes = 1 << 20
)

// KeyRecord is one entry of the search service's key listing.
type KeyRecord struct {
	Key     string   `json:"key"`
	Actions []string `json:"actions"`
}

type keyListResponse struct {
	Results []KeyRecord `json:"results"`
}

type keyExchangeResponse struct {
	PublishableAPIKey string `json:"publishableApiKey"`
}

// HTTPDoer is the subset of *http.Client the resolver needs.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Resolver fetches keys with bounded retry.
type Resolver struct {
	client  HTTPDoer
	policy  retry.Policy
	logger  *zap.Logger
	metrics *metrics.Recorder
}

// NewResolver builds a Resolver. A nil client falls back to http.DefaultClient.
func NewResolver(client HTTPDoer, policy retry.Policy, logger *zap.Logger, recorder *metrics.Recorder) *Resolver {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{client: client, policy: policy, logger: logger, metrics: recorder}
}

// FetchPublishableKey reads the publishable API key from {backendURL}/key-exchange.
// It returns false once every attempt has failed.
func (r *Resolver) FetchPublishableKey(ctx context.Context, backendURL string) (string, bool) {
	url := joinURL(backendURL, "key-exchange")
	r.logger.Info("Attempting to fetch publishable API key", zap.String("url", url))

	return retry.Do(ctx, r.policy, r.logger.With(zap.String("operation", "publishable_key")),
		func(ctx context.Context) (string, error) {
			var body keyExchangeResponse
			if err := r.getJSON(ctx, url, "", &body); err != nil {
				r.metrics.ObserveAttempt("publishable_key", url, metrics.OutcomeFailure)
				return "", err
			}
			if body.PublishableAPIKey == "" {
				r.metrics.ObserveAttempt("publishable_key", url, metrics.OutcomeFailure)
				return "", fmt.Errorf("%w: invalid API key format received", deployerr.ErrValidation)
			}
			r.metrics.ObserveAttempt("publishable_key", url, metrics.OutcomeSuccess)
			return body.PublishableAPIKey, nil
		})
}

// FetchSearchKey lists the keys at {endpoint}/keys using masterKey and picks
// one according to keyType. It returns false once every attempt has failed.
func (r *Resolver) FetchSearchKey(ctx context.Context, endpoint, masterKey string, keyType KeyType) (string, bool) {
	url := joinURL(endpoint, "keys")
	operation := "search_key_" + string(keyType)
	r.logger.Info("Attempting to fetch search key", zap.String("key_type", string(keyType)), zap.String("url", url))

	return retry.Do(ctx, r.policy, r.logger.With(zap.String("operation", operation)),
		func(ctx context.Context) (string, error) {
			var body keyListResponse
			if err := r.getJSON(ctx, url, masterKey, &body); err != nil {
				r.metrics.ObserveAttempt(operation, url, metrics.OutcomeFailure)
				return "", err
			}
			r.logger.Debug("Search keys listed", zap.Int("count", len(body.Results)))
			key, err := SelectKey(body.Results, keyType)
			if err != nil {
				r.metrics.ObserveAttempt(operation, url, metrics.OutcomeFailure)
				return "", err
			}
			r.metrics.ObserveAttempt(operation, url, metrics.OutcomeSuccess)
			return key, nil
		})
}

// SelectKey picks the first record matching keyType. Admin keys carry the
// wildcard action; search keys carry exactly one action, "search".
func SelectKey(records []KeyRecord, keyType KeyType) (string, error) {
	var match func(actions []string) bool
	switch keyType {
	case KeyTypeAdmin:
		match = func(actions []string) bool { return slices.Contains(actions, wildcardAction) }
	case KeyTypeSearch:
		match = func(actions []string) bool { return len(actions) == 1 && actions[0] == searchAction }
	default:
		return "", fmt.Errorf("%w: unknown key type %q", deployerr.ErrValidation, keyType)
	}
	for _, rec := range records {
		if rec.Key != "" && match(rec.Actions) {
			return rec.Key, nil
		}
	}
	return "", fmt.Errorf("%w: no valid %s key found in search response", deployerr.ErrValidation, keyType)
}

func (r *Resolver) getJSON(ctx context.Context, url, bearer string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: build request: %w", deployerr.ErrValidation, err)
	}
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		if deployerr.IsConnectionRefused(err) {
			return fmt.Errorf("%w: %w", deployerr.ErrTransientNetwork, err)
		}
		return fmt.Errorf("%w: %w", deployerr.ErrUnexpectedNetwork, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	r.logger.Debug("Key response received", zap.String("url", url), zap.Int("status", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return fmt.Errorf("%w: %s returned status %d", deployerr.ErrUnexpectedNetwork, url, resp.StatusCode)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response from %s: %w", deployerr.ErrValidation, url, err)
	}
	return nil
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + path
}

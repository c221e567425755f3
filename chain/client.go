// Package chain implements the gateway to a single network's nodes:
// a REST client with endpoint rotation, a websocket event subscriber
// with reconnect backoff, and the router that demultiplexes raw events
// for the pipelines.
package chain

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/babylonlabs-io/sentinel/config/params"
)

var log = logrus.WithField("prefix", "chain")

// ErrAllEndpointsFailed is returned once a request has been attempted
// against every configured REST endpoint without success.
var ErrAllEndpointsFailed = errors.New("all rest endpoints failed")

const (
	latestBlockPath       = "/cosmos/base/tendermint/v1beta1/blocks/latest"
	blockByHeightPath     = "/cosmos/base/tendermint/v1beta1/blocks/"
	validatorsPath        = "/cosmos/staking/v1beta1/validators"
	txsByHeightPath       = "/cosmos/tx/v1beta1/txs/block/"
	currentEpochPath      = "/babylon/epoching/v1/current_epoch"
	finalityVotesPath     = "/babylon/finality/v1/votes/"
	activeProvidersPath   = "/babylon/finality/v1/finality_providers/"
	providerCatalogPath   = "/babylon/btcstaking/v1/finality_providers"
	statusPath            = "/status"
	validatorPageLimit    = "200"
	providerCatalogLimit  = "1000"
)

// Client issues REST calls against one of the network's configured
// endpoints, rotating to the next endpoint on transport failure or a
// non-2xx status. Endpoint selection is session-local; there is no
// persistent health state.
type Client struct {
	network   string
	endpoints []string
	hc        *http.Client

	mu  sync.Mutex
	idx int
}

// NewClient constructs a gateway client for the given network.
func NewClient(network string, endpoints []string) (*Client, error) {
	if len(endpoints) == 0 {
		return nil, errors.Errorf("no rest endpoints configured for network %s", network)
	}
	trimmed := make([]string, len(endpoints))
	for i, e := range endpoints {
		trimmed[i] = strings.TrimRight(e, "/")
	}
	return &Client{
		network:   network,
		endpoints: trimmed,
		hc:        &http.Client{Timeout: params.Get().HTTPTimeout},
	}, nil
}

// Network returns the network this client serves.
func (c *Client) Network() string {
	return c.network
}

func (c *Client) currentEndpoint() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endpoints[c.idx]
}

func (c *Client) rotateEndpoint() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.idx = (c.idx + 1) % len(c.endpoints)
	return c.endpoints[c.idx]
}

// Get issues an HTTP GET against the current endpoint, advancing to
// the next endpoint and retrying on failure. It aborts with a terminal
// error after one full rotation without success.
func (c *Client) Get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < len(c.endpoints); attempt++ {
		body, err := c.getOnce(ctx, c.currentEndpoint(), path, query)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		next := c.rotateEndpoint()
		endpointRotations.Inc()
		log.WithError(err).WithFields(logrus.Fields{
			"network": c.network,
			"path":    path,
			"next":    next,
		}).Warn("Rest call failed, rotating endpoint")
	}
	return nil, errors.Wrapf(ErrAllEndpointsFailed, "%s: %v", path, lastErr)
}

func (c *Client) getOnce(ctx context.Context, endpoint, path string, query url.Values) ([]byte, error) {
	u := endpoint + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrap(err, "could not build request")
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "GET %s", u)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.WithError(err).Debug("Could not close response body")
		}
	}()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read response from %s", u)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Errorf("GET %s returned status %d: %s", u, resp.StatusCode, truncate(body, 128))
	}
	return body, nil
}

// LatestHeight returns the current chain tip height.
func (c *Client) LatestHeight(ctx context.Context) (uint64, error) {
	body, err := c.Get(ctx, latestBlockPath, nil)
	if err != nil {
		return 0, err
	}
	var resp blockResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, errors.Wrap(err, "could not decode latest block")
	}
	if resp.Block == nil {
		return 0, errors.New("latest block response carries no block")
	}
	return resp.Block.Height(), nil
}

// Block fetches a historical block by height.
func (c *Client) Block(ctx context.Context, height uint64) (*Block, error) {
	body, err := c.Get(ctx, blockByHeightPath+strconv.FormatUint(height, 10), nil)
	if err != nil {
		return nil, err
	}
	var resp blockResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrapf(err, "could not decode block %d", height)
	}
	if resp.Block == nil {
		return nil, errors.Errorf("no block in response for height %d", height)
	}
	return resp.Block, nil
}

// Validators fetches the full validator list, following pagination.
func (c *Client) Validators(ctx context.Context) ([]RestValidator, error) {
	var all []RestValidator
	nextKey := ""
	for {
		query := url.Values{"pagination.limit": []string{validatorPageLimit}}
		if nextKey != "" {
			query.Set("pagination.key", nextKey)
		}
		body, err := c.Get(ctx, validatorsPath, query)
		if err != nil {
			return nil, err
		}
		var resp validatorsResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, errors.Wrap(err, "could not decode validator page")
		}
		all = append(all, resp.Validators...)
		if resp.Pagination.NextKey == "" {
			return all, nil
		}
		nextKey = resp.Pagination.NextKey
	}
}

// FinalityProviders fetches the btcstaking provider catalog.
func (c *Client) FinalityProviders(ctx context.Context) ([]RestFinalityProvider, error) {
	query := url.Values{"pagination.limit": []string{providerCatalogLimit}}
	body, err := c.Get(ctx, providerCatalogPath, query)
	if err != nil {
		return nil, err
	}
	var resp finalityProvidersResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrap(err, "could not decode finality provider catalog")
	}
	return resp.FinalityProviders, nil
}

// ActiveFinalityProviders fetches the provider set active at a height.
func (c *Client) ActiveFinalityProviders(ctx context.Context, height uint64) ([]ActiveFinalityProvider, error) {
	body, err := c.Get(ctx, activeProvidersPath+strconv.FormatUint(height, 10), nil)
	if err != nil {
		return nil, err
	}
	var resp activeFinalityProvidersResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrapf(err, "could not decode active providers at %d", height)
	}
	return resp.FinalityProviders, nil
}

// FinalityVotes returns the BTC public keys that voted at a height.
func (c *Client) FinalityVotes(ctx context.Context, height uint64) ([]string, error) {
	body, err := c.Get(ctx, finalityVotesPath+strconv.FormatUint(height, 10), nil)
	if err != nil {
		return nil, err
	}
	var resp votesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrapf(err, "could not decode finality votes at %d", height)
	}
	return resp.BTCPKs, nil
}

// CurrentEpoch returns the live epoch number and its boundary height.
func (c *Client) CurrentEpoch(ctx context.Context) (*CurrentEpoch, error) {
	body, err := c.Get(ctx, currentEpochPath, nil)
	if err != nil {
		return nil, err
	}
	epoch := &CurrentEpoch{}
	if err := json.Unmarshal(body, epoch); err != nil {
		return nil, errors.Wrap(err, "could not decode current epoch")
	}
	return epoch, nil
}

// TxsAtHeight returns the transactions included at the given height.
func (c *Client) TxsAtHeight(ctx context.Context, height uint64) ([]Tx, error) {
	body, err := c.Get(ctx, txsByHeightPath+strconv.FormatUint(height, 10), nil)
	if err != nil {
		return nil, err
	}
	var resp txsBlockResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrapf(err, "could not decode transactions at %d", height)
	}
	return resp.Txs, nil
}

// Status probes the current endpoint's health endpoint.
func (c *Client) Status(ctx context.Context) error {
	_, err := c.Get(ctx, statusPath, nil)
	return err
}

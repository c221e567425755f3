package chain

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const latestBlockBody = `{"block":{"header":{"height":"1234","time":"2024-01-02T03:04:05Z"},"last_commit":{"height":"1233","round":0,"signatures":[]}}}`

func TestClientRotatesEndpointsOnFailure(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer failing.Close()
	var healthyHits int
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		healthyHits++
		fmt.Fprint(w, latestBlockBody)
	}))
	defer healthy.Close()

	client, err := NewClient("testnet", []string{failing.URL, healthy.URL})
	require.NoError(t, err)

	height, err := client.LatestHeight(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1234), height)
	assert.Equal(t, 1, healthyHits)

	// The rotation is sticky: the next call goes straight to the
	// endpoint that worked.
	_, err = client.LatestHeight(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, healthyHits)
}

func TestClientFailsAfterFullRotation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, err := NewClient("testnet", []string{srv.URL, srv.URL})
	require.NoError(t, err)

	_, err = client.LatestHeight(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAllEndpointsFailed))
}

func TestClientFollowsValidatorPagination(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, validatorsPath, r.URL.Path)
		if r.URL.Query().Get("pagination.key") == "" {
			fmt.Fprint(w, `{"validators":[{"operator_address":"bbnvaloper1aaa","description":{"moniker":"one"}}],"pagination":{"next_key":"page2"}}`)
			return
		}
		fmt.Fprint(w, `{"validators":[{"operator_address":"bbnvaloper1bbb","description":{"moniker":"two"},"jailed":true}],"pagination":{"next_key":""}}`)
	}))
	defer srv.Close()

	client, err := NewClient("testnet", []string{srv.URL})
	require.NoError(t, err)

	validators, err := client.Validators(context.Background())
	require.NoError(t, err)
	require.Len(t, validators, 2)
	assert.Equal(t, "bbnvaloper1aaa", validators[0].OperatorAddress)
	assert.Equal(t, "two", validators[1].Description.Moniker)
	assert.True(t, validators[1].Jailed)
}

func TestClientCurrentEpoch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, currentEpochPath, r.URL.Path)
		fmt.Fprint(w, `{"current_epoch":"17","epoch_boundary":"6120"}`)
	}))
	defer srv.Close()

	client, err := NewClient("testnet", []string{srv.URL})
	require.NoError(t, err)

	epoch, err := client.CurrentEpoch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Uint64String(17), epoch.CurrentEpoch)
	assert.Equal(t, Uint64String(6120), epoch.EpochBoundary)
}

func TestClientFinalityVotes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, finalityVotesPath+"42", r.URL.Path)
		fmt.Fprint(w, `{"height":"42","btc_pks":["pk1","pk2"]}`)
	}))
	defer srv.Close()

	client, err := NewClient("testnet", []string{srv.URL})
	require.NoError(t, err)

	pks, err := client.FinalityVotes(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, []string{"pk1", "pk2"}, pks)
}

func TestNewClientRequiresEndpoints(t *testing.T) {
	_, err := NewClient("testnet", nil)
	require.Error(t, err)
}

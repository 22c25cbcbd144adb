package connectors

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darshitpatel1/runai-flow-sub001/pkg/models"
)

// fakeStore is an in-memory Store with call counting
type fakeStore struct {
	mu         sync.Mutex
	connectors map[string]models.Connector
	updates    int
}

func newFakeStore(connectors ...models.Connector) *fakeStore {
	s := &fakeStore{connectors: make(map[string]models.Connector)}
	for _, c := range connectors {
		s.connectors[c.AccountID+"/"+c.ID] = c
	}
	return s
}

func (s *fakeStore) GetConnector(accountID, connectorID string) (models.Connector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.connectors[accountID+"/"+connectorID]
	if !ok {
		return models.Connector{}, fmt.Errorf("connector not found: %s", connectorID)
	}
	return c, nil
}

func (s *fakeStore) UpdateConnectorAuth(accountID, connectorID string, auth models.AuthConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := accountID + "/" + connectorID
	c, ok := s.connectors[key]
	if !ok {
		return fmt.Errorf("connector not found: %s", connectorID)
	}
	c.Auth = auth
	s.connectors[key] = c
	s.updates++
	return nil
}

func (s *fakeStore) ListOAuth2Connectors() ([]models.Connector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Connector
	for _, c := range s.connectors {
		if c.AuthType == models.AuthTypeOAuth2 {
			out = append(out, c)
		}
	}
	return out, nil
}

// tokenEndpoint serves a token response and counts requests
func tokenEndpoint(t *testing.T, response TokenResponse) (*httptest.Server, *int) {
	t.Helper()
	var requests int
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests++
		mu.Unlock()
		require.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}))
	t.Cleanup(server.Close)
	return server, &requests
}

func oauthConnector(tokenURL string, expiresAt time.Time) models.Connector {
	return models.Connector{
		ID:        "conn-1",
		Name:      "salesforce",
		AccountID: "acct-1",
		AuthType:  models.AuthTypeOAuth2,
		Auth: models.AuthConfig{
			OAuth2Type:     models.OAuth2AuthorizationCode,
			ClientID:       "client",
			ClientSecret:   "secret",
			TokenURL:       tokenURL,
			AccessToken:    "old-token",
			RefreshToken:   "refresh-token",
			TokenExpiresAt: expiresAt,
		},
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRefreshConnectorNearExpiry(t *testing.T) {
	server, requests := tokenEndpoint(t, TokenResponse{
		AccessToken:  "new-token",
		RefreshToken: "rotated-refresh",
		ExpiresIn:    3600,
	})

	store := newFakeStore(oauthConnector(server.URL, time.Now().Add(time.Minute)))
	m := NewTokenManager(store, testLogger())

	connector, err := m.RefreshConnector(context.Background(), "acct-1", "conn-1")
	require.NoError(t, err)
	assert.Equal(t, 1, *requests)
	assert.Equal(t, "new-token", connector.Auth.AccessToken)
	assert.Equal(t, "rotated-refresh", connector.Auth.RefreshToken)
	assert.False(t, connector.Auth.NeedsReauth)
	assert.WithinDuration(t, time.Now().Add(time.Hour), connector.Auth.TokenExpiresAt, 5*time.Second)

	// The refreshed credentials must be persisted, not just returned.
	stored, err := store.GetConnector("acct-1", "conn-1")
	require.NoError(t, err)
	assert.Equal(t, "new-token", stored.Auth.AccessToken)
}

func TestRefreshConnectorSkipsFreshToken(t *testing.T) {
	server, requests := tokenEndpoint(t, TokenResponse{AccessToken: "unused"})

	store := newFakeStore(oauthConnector(server.URL, time.Now().Add(2*time.Hour)))
	m := NewTokenManager(store, testLogger())

	connector, err := m.RefreshConnector(context.Background(), "acct-1", "conn-1")
	require.NoError(t, err)
	assert.Equal(t, 0, *requests, "a token outside the buffer must not be refreshed")
	assert.Equal(t, "old-token", connector.Auth.AccessToken)
}

func TestRefreshConnectorKeepsRefreshTokenWhenNotRotated(t *testing.T) {
	server, _ := tokenEndpoint(t, TokenResponse{AccessToken: "new-token", ExpiresIn: 3600})

	store := newFakeStore(oauthConnector(server.URL, time.Now().Add(time.Minute)))
	m := NewTokenManager(store, testLogger())

	connector, err := m.RefreshConnector(context.Background(), "acct-1", "conn-1")
	require.NoError(t, err)
	assert.Equal(t, "refresh-token", connector.Auth.RefreshToken)
}

func TestRefreshConnectorFailureFlagsReauth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	t.Cleanup(server.Close)

	store := newFakeStore(oauthConnector(server.URL, time.Now().Add(time.Minute)))
	m := NewTokenManager(store, testLogger())

	_, err := m.RefreshConnector(context.Background(), "acct-1", "conn-1")
	var refreshErr *RefreshError
	require.ErrorAs(t, err, &refreshErr)
	assert.Equal(t, "conn-1", refreshErr.ConnectorID)

	stored, err := store.GetConnector("acct-1", "conn-1")
	require.NoError(t, err)
	assert.True(t, stored.Auth.NeedsReauth)
	assert.False(t, stored.Auth.LastRefreshError.IsZero())
}

func TestRefreshConnectorNotRefreshable(t *testing.T) {
	connector := oauthConnector("http://token.invalid", time.Now().Add(time.Minute))
	connector.Auth.RefreshToken = ""
	store := newFakeStore(connector)
	m := NewTokenManager(store, testLogger())

	_, err := m.RefreshConnector(context.Background(), "acct-1", "conn-1")
	var refreshErr *RefreshError
	require.ErrorAs(t, err, &refreshErr)

	stored, _ := store.GetConnector("acct-1", "conn-1")
	assert.True(t, stored.Auth.NeedsReauth)
}

func TestRefreshConnectorSingleFlight(t *testing.T) {
	server, requests := tokenEndpoint(t, TokenResponse{AccessToken: "new-token", ExpiresIn: 3600})

	store := newFakeStore(oauthConnector(server.URL, time.Now().Add(time.Minute)))
	m := NewTokenManager(store, testLogger())

	// Concurrent callers re-read inside the lock: the second observes the
	// first one's fresh token and short-circuits.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.RefreshConnector(context.Background(), "acct-1", "conn-1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, *requests)
}

func TestScanRefreshesOnlyExpiringConnectors(t *testing.T) {
	server, requests := tokenEndpoint(t, TokenResponse{AccessToken: "new-token", ExpiresIn: 3600})

	expiring := oauthConnector(server.URL, time.Now().Add(time.Minute))
	fresh := oauthConnector(server.URL, time.Now().Add(2*time.Hour))
	fresh.ID = "conn-2"
	opaque := oauthConnector(server.URL, time.Time{})
	opaque.ID = "conn-3"

	store := newFakeStore(expiring, fresh, opaque)
	m := NewTokenManager(store, testLogger())

	m.Scan(context.Background())

	assert.Equal(t, 1, *requests, "only the expiring connector should be refreshed")

	stored, _ := store.GetConnector("acct-1", "conn-1")
	assert.Equal(t, "new-token", stored.Auth.AccessToken)
	stored, _ = store.GetConnector("acct-1", "conn-3")
	assert.Equal(t, "old-token", stored.Auth.AccessToken, "unknown expiry is treated as usable")
}

func TestScanContinuesPastFailures(t *testing.T) {
	good, _ := tokenEndpoint(t, TokenResponse{AccessToken: "new-token", ExpiresIn: 3600})
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	t.Cleanup(bad.Close)

	failing := oauthConnector(bad.URL, time.Now().Add(time.Minute))
	healthy := oauthConnector(good.URL, time.Now().Add(time.Minute))
	healthy.ID = "conn-2"

	store := newFakeStore(failing, healthy)
	m := NewTokenManager(store, testLogger())

	m.Scan(context.Background())

	stored, _ := store.GetConnector("acct-1", "conn-1")
	assert.True(t, stored.Auth.NeedsReauth)
	stored, _ = store.GetConnector("acct-1", "conn-2")
	assert.Equal(t, "new-token", stored.Auth.AccessToken)
}

func TestEnsureFreshMintsClientCredentials(t *testing.T) {
	server, requests := tokenEndpoint(t, TokenResponse{AccessToken: "minted", ExpiresIn: 3600})

	connector := models.Connector{
		ID:        "conn-cc",
		AccountID: "acct-1",
		AuthType:  models.AuthTypeOAuth2,
		Auth: models.AuthConfig{
			OAuth2Type:   models.OAuth2ClientCredentials,
			ClientID:     "client",
			ClientSecret: "secret",
			TokenURL:     server.URL,
		},
	}
	store := newFakeStore(connector)
	m := NewTokenManager(store, testLogger())

	fresh, err := m.EnsureFresh(context.Background(), "acct-1", connector)
	require.NoError(t, err)
	assert.Equal(t, "minted", fresh.Auth.AccessToken)
	assert.Equal(t, 1, *requests)

	// A second call sees the persisted token and does not mint again.
	fresh, err = m.EnsureFresh(context.Background(), "acct-1", fresh)
	require.NoError(t, err)
	assert.Equal(t, "minted", fresh.Auth.AccessToken)
	assert.Equal(t, 1, *requests)
}

func TestEnsureFreshNoopForUsableToken(t *testing.T) {
	server, requests := tokenEndpoint(t, TokenResponse{AccessToken: "unused"})

	connector := oauthConnector(server.URL, time.Now().Add(2*time.Hour))
	store := newFakeStore(connector)
	m := NewTokenManager(store, testLogger())

	fresh, err := m.EnsureFresh(context.Background(), "acct-1", connector)
	require.NoError(t, err)
	assert.Equal(t, "old-token", fresh.Auth.AccessToken)
	assert.Equal(t, 0, *requests)
}

func TestJWTExpiry(t *testing.T) {
	// exp claim far in the future, unsigned; the manager only sniffs exp.
	future := time.Now().Add(24 * time.Hour).Unix()
	token := unsignedJWT(t, future)

	expiry := jwtExpiry(token)
	assert.WithinDuration(t, time.Unix(future, 0), expiry, time.Second)

	assert.True(t, jwtExpiry("opaque-token").IsZero())
	assert.True(t, jwtExpiry("").IsZero())
}

func unsignedJWT(t *testing.T, exp int64) string {
	t.Helper()
	encode := func(v interface{}) string {
		data, err := json.Marshal(v)
		require.NoError(t, err)
		return base64.RawURLEncoding.EncodeToString(data)
	}
	header := encode(map[string]string{"alg": "HS256", "typ": "JWT"})
	claims := encode(map[string]int64{"exp": exp})
	return header + "." + claims + ".sig"
}

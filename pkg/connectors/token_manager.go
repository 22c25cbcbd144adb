package connectors

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/robfig/cron/v3"

	"github.com/darshitpatel1/runai-flow-sub001/pkg/models"
)

// Defaults for the background refresh loop
const (
	// DefaultScanSchedule is how often stored OAuth2 connectors are scanned
	DefaultScanSchedule = "@every 5m"

	// DefaultRefreshBuffer is how close to expiry a token may get before
	// it is refreshed
	DefaultRefreshBuffer = 10 * time.Minute
)

// Store is the subset of connector persistence the token manager needs
type Store interface {
	// GetConnector retrieves a connector by owner and ID
	GetConnector(accountID, connectorID string) (models.Connector, error)

	// UpdateConnectorAuth persists updated credentials for a connector
	UpdateConnectorAuth(accountID, connectorID string, auth models.AuthConfig) error

	// ListOAuth2Connectors returns every stored OAuth2 connector across
	// all accounts, with AccountID populated
	ListOAuth2Connectors() ([]models.Connector, error)
}

// TokenManager keeps OAuth2 connector tokens alive. It scans stored
// connectors on a schedule, refreshes tokens nearing expiry, persists the
// updated credentials, and flags connectors whose refresh fails as needing
// re-authorization. Refreshes for one connector are single-flight: a
// concurrent attempt observes the first one's result instead of issuing a
// duplicate token request.
type TokenManager struct {
	store         Store
	oauth         *OAuthClient
	scheduler     *cron.Cron
	schedule      string
	refreshBuffer time.Duration
	logger        *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// TokenManagerOption customizes a TokenManager
type TokenManagerOption func(*TokenManager)

// WithScanSchedule overrides the background scan schedule
func WithScanSchedule(schedule string) TokenManagerOption {
	return func(m *TokenManager) { m.schedule = schedule }
}

// WithRefreshBuffer overrides how close to expiry a token may get
func WithRefreshBuffer(buffer time.Duration) TokenManagerOption {
	return func(m *TokenManager) { m.refreshBuffer = buffer }
}

// NewTokenManager creates a new TokenManager
func NewTokenManager(store Store, logger *slog.Logger, opts ...TokenManagerOption) *TokenManager {
	m := &TokenManager{
		store:         store,
		oauth:         NewOAuthClient(),
		schedule:      DefaultScanSchedule,
		refreshBuffer: DefaultRefreshBuffer,
		logger:        logger,
		locks:         make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins the background scan loop
func (m *TokenManager) Start() error {
	m.scheduler = cron.New()
	if _, err := m.scheduler.AddFunc(m.schedule, func() {
		m.Scan(context.Background())
	}); err != nil {
		return err
	}
	m.scheduler.Start()
	m.logger.Info("token manager started", "schedule", m.schedule)
	return nil
}

// Stop halts the background scan loop and waits for an in-flight scan
func (m *TokenManager) Stop() {
	if m.scheduler != nil {
		ctx := m.scheduler.Stop()
		<-ctx.Done()
	}
	m.logger.Info("token manager stopped")
}

// Scan walks every stored OAuth2 connector and refreshes those whose token
// is inside the refresh buffer. A failing connector is flagged and skipped;
// it never halts processing of the others.
func (m *TokenManager) Scan(ctx context.Context) {
	connectors, err := m.store.ListOAuth2Connectors()
	if err != nil {
		m.logger.Error("token scan failed to list connectors", "error", err)
		return
	}

	for _, connector := range connectors {
		if !connector.Auth.Refreshable() {
			continue
		}
		if !m.nearExpiry(connector.Auth) {
			continue
		}
		if _, err := m.RefreshConnector(ctx, connector.AccountID, connector.ID); err != nil {
			m.logger.Warn("connector refresh failed",
				"connector_id", connector.ID,
				"connector", connector.Name,
				"error", err)
		}
	}
}

// RefreshConnector refreshes one connector's token on demand. It is a
// no-op when the stored token is still outside the refresh buffer, which
// also makes it safe to call right before an outbound request. On failure
// the connector is persisted with needs_reauth set and a RefreshError is
// returned.
func (m *TokenManager) RefreshConnector(ctx context.Context, accountID, connectorID string) (models.Connector, error) {
	lock := m.connectorLock(connectorID)
	lock.Lock()
	defer lock.Unlock()

	// Re-read inside the critical section: a concurrent refresh may have
	// just completed, in which case the time check short-circuits.
	connector, err := m.store.GetConnector(accountID, connectorID)
	if err != nil {
		return models.Connector{}, &RefreshError{ConnectorID: connectorID, Err: err}
	}

	if !m.nearExpiry(connector.Auth) {
		return connector, nil
	}
	if !connector.Auth.Refreshable() {
		return connector, m.flagReauth(accountID, connector, &RefreshError{
			ConnectorID: connectorID,
			Err:         errNotRefreshable,
		})
	}

	token, err := m.oauth.Refresh(ctx, connector.Auth)
	if err != nil {
		return connector, m.flagReauth(accountID, connector, &RefreshError{ConnectorID: connectorID, Err: err})
	}

	connector.Auth.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		// Some providers rotate the refresh token on every use.
		connector.Auth.RefreshToken = token.RefreshToken
	}
	connector.Auth.TokenExpiresAt = tokenExpiry(token.AccessToken, token.ExpiresIn)
	connector.Auth.LastRefreshed = time.Now()
	connector.Auth.NeedsReauth = false
	connector.Auth.LastRefreshError = time.Time{}

	if err := m.store.UpdateConnectorAuth(accountID, connectorID, connector.Auth); err != nil {
		return connector, &RefreshError{ConnectorID: connectorID, Err: err}
	}

	m.logger.Info("refreshed connector token",
		"connector_id", connectorID,
		"expires_at", connector.Auth.TokenExpiresAt)
	return connector, nil
}

// EnsureFresh returns a connector whose access token is usable for an
// outbound call right now, fetching or refreshing as needed. Used by the
// authenticator so a flow run never uses a token known to be stale.
func (m *TokenManager) EnsureFresh(ctx context.Context, accountID string, connector models.Connector) (models.Connector, error) {
	auth := connector.Auth

	// client_credentials connectors can mint a token from scratch.
	if auth.OAuth2Type == models.OAuth2ClientCredentials && (auth.AccessToken == "" || m.nearExpiry(auth) && auth.RefreshToken == "") {
		return m.fetchClientCredentials(ctx, accountID, connector)
	}

	if auth.AccessToken != "" && m.nearExpiry(auth) && auth.Refreshable() {
		return m.RefreshConnector(ctx, accountID, connector.ID)
	}
	return connector, nil
}

func (m *TokenManager) fetchClientCredentials(ctx context.Context, accountID string, connector models.Connector) (models.Connector, error) {
	lock := m.connectorLock(connector.ID)
	lock.Lock()
	defer lock.Unlock()

	if stored, err := m.store.GetConnector(accountID, connector.ID); err == nil {
		connector = stored
		if connector.Auth.AccessToken != "" && !m.nearExpiry(connector.Auth) {
			return connector, nil
		}
	}

	token, err := m.oauth.ClientCredentials(ctx, connector.Auth)
	if err != nil {
		return connector, m.flagReauth(accountID, connector, &RefreshError{ConnectorID: connector.ID, Err: err})
	}

	connector.Auth.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		connector.Auth.RefreshToken = token.RefreshToken
	}
	connector.Auth.TokenExpiresAt = tokenExpiry(token.AccessToken, token.ExpiresIn)
	connector.Auth.LastRefreshed = time.Now()
	connector.Auth.NeedsReauth = false

	if err := m.store.UpdateConnectorAuth(accountID, connector.ID, connector.Auth); err != nil {
		return connector, &RefreshError{ConnectorID: connector.ID, Err: err}
	}
	return connector, nil
}

// flagReauth persists the failure markers and returns the refresh error
func (m *TokenManager) flagReauth(accountID string, connector models.Connector, refreshErr *RefreshError) error {
	connector.Auth.NeedsReauth = true
	connector.Auth.LastRefreshError = time.Now()
	if err := m.store.UpdateConnectorAuth(accountID, connector.ID, connector.Auth); err != nil {
		m.logger.Error("failed to persist needs_reauth flag",
			"connector_id", connector.ID, "error", err)
	}
	return refreshErr
}

// nearExpiry reports whether the token is inside the refresh buffer
func (m *TokenManager) nearExpiry(auth models.AuthConfig) bool {
	expiry := auth.TokenExpiresAt
	if expiry.IsZero() {
		expiry = jwtExpiry(auth.AccessToken)
	}
	if expiry.IsZero() {
		// Unknown expiry: treat the token as usable rather than hammering
		// the token endpoint on every call.
		return false
	}
	return time.Until(expiry) <= m.refreshBuffer
}

func (m *TokenManager) connectorLock(connectorID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[connectorID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[connectorID] = lock
	}
	return lock
}

// tokenExpiry computes when an access token expires, preferring the token
// endpoint's expires_in and falling back to the exp claim of JWT-shaped
// tokens.
func tokenExpiry(accessToken string, expiresIn int64) time.Time {
	if expiresIn > 0 {
		return time.Now().Add(time.Duration(expiresIn) * time.Second)
	}
	return jwtExpiry(accessToken)
}

// jwtExpiry extracts the exp claim from a JWT-shaped access token without
// verifying its signature. Returns the zero time for opaque tokens.
func jwtExpiry(accessToken string) time.Time {
	if accessToken == "" {
		return time.Time{}
	}
	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(accessToken, jwt.MapClaims{})
	if err != nil {
		return time.Time{}
	}
	expiry, err := token.Claims.GetExpirationTime()
	if err != nil || expiry == nil {
		return time.Time{}
	}
	return expiry.Time
}

type notRefreshableError struct{}

func (notRefreshableError) Error() string {
	return "connector has no refresh token"
}

var errNotRefreshable = notRefreshableError{}

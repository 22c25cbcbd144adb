package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darshitpatel1/runai-flow-sub001/pkg/auth"
)

type fakeAccountService struct {
	apiToken  string
	username  string
	password  string
	accountID string
}

func (f *fakeAccountService) Authenticate(username, password string) (string, error) {
	if username == f.username && password == f.password {
		return f.accountID, nil
	}
	return "", errors.New("invalid credentials")
}

func (f *fakeAccountService) ValidateToken(token string) (string, error) {
	if token == f.apiToken {
		return f.accountID, nil
	}
	return "", errors.New("invalid token")
}

func (f *fakeAccountService) CreateAccount(username, password string) (string, error) {
	return "", errors.New("not implemented")
}

func (f *fakeAccountService) DeleteAccount(accountID string) error {
	return errors.New("not implemented")
}

func (f *fakeAccountService) GetAccount(accountID string) (auth.Account, error) {
	return auth.Account{}, errors.New("not implemented")
}

type fakeJWT struct {
	token     string
	accountID string
}

func (f *fakeJWT) ValidateToken(token string) (string, error) {
	if token == f.token {
		return f.accountID, nil
	}
	return "", errors.New("invalid jwt")
}

func newProtected(m *AuthMiddleware) (http.Handler, *string) {
	var seen string
	handler := m.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := GetAccountID(r)
		if ok {
			seen = accountID
		}
	}))
	return handler, &seen
}

func TestAuthenticateAcceptsJWTBearer(t *testing.T) {
	m := NewAuthMiddleware(
		&fakeAccountService{accountID: "acct-1"},
		&fakeJWT{token: "jwt-token", accountID: "acct-1"},
	)
	handler, seen := newProtected(m)

	req := httptest.NewRequest(http.MethodGet, "/flows", nil)
	req.Header.Set("Authorization", "Bearer jwt-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "acct-1", *seen)
}

func TestAuthenticateFallsBackToAPIToken(t *testing.T) {
	m := NewAuthMiddleware(
		&fakeAccountService{accountID: "acct-1", apiToken: "api-token"},
		&fakeJWT{token: "some-jwt", accountID: "acct-1"},
	)
	handler, seen := newProtected(m)

	req := httptest.NewRequest(http.MethodGet, "/flows", nil)
	req.Header.Set("Authorization", "Bearer api-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "acct-1", *seen)
}

func TestAuthenticateAcceptsBasicAuth(t *testing.T) {
	m := NewAuthMiddleware(
		&fakeAccountService{accountID: "acct-1", username: "ada", password: "pw"},
		nil,
	)
	handler, seen := newProtected(m)

	req := httptest.NewRequest(http.MethodGet, "/flows", nil)
	req.SetBasicAuth("ada", "pw")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "acct-1", *seen)
}

func TestAuthenticateRejections(t *testing.T) {
	m := NewAuthMiddleware(
		&fakeAccountService{accountID: "acct-1", username: "ada", password: "pw", apiToken: "api-token"},
		&fakeJWT{token: "jwt-token", accountID: "acct-1"},
	)
	handler, _ := newProtected(m)

	cases := []struct {
		name  string
		setup func(r *http.Request)
	}{
		{"missing header", func(r *http.Request) {}},
		{"bad bearer token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }},
		{"bad basic credentials", func(r *http.Request) { r.SetBasicAuth("ada", "wrong") }},
		{"unsupported scheme", func(r *http.Request) { r.Header.Set("Authorization", "Digest abc") }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/flows", nil)
			tc.setup(req)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestAuthenticateSkipsPreflight(t *testing.T) {
	m := NewAuthMiddleware(&fakeAccountService{}, nil)
	handler, _ := newProtected(m)

	req := httptest.NewRequest(http.MethodOptions, "/flows", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

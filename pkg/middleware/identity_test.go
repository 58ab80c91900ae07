package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func sign(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return tok
}

func TestUserIDFromToken(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name    string
		token   string
		want    string
		wantErr bool
	}{
		{
			name:  "string claim",
			token: sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"user_id": "42", "exp": exp}),
			want:  "42",
		},
		{
			name:  "numeric claim",
			token: sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"user_id": 7, "exp": exp}),
			want:  "7",
		},
		{
			name:  "subject fallback",
			token: sign(t, jwt.SigningMethodHS384, []byte(secret), jwt.MapClaims{"sub": "alice", "exp": exp}),
			want:  "alice",
		},
		{
			name:    "wrong secret",
			token:   sign(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"user_id": "42", "exp": exp}),
			wantErr: true,
		},
		{
			name:    "expired",
			token:   sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"user_id": "42", "exp": time.Now().Add(-time.Hour).Unix()}),
			wantErr: true,
		},
		{
			name:    "no identity",
			token:   sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"exp": exp}),
			wantErr: true,
		},
		{
			name:    "garbage",
			token:   "not-a-token",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := UserIDFromToken(tt.token, secret)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func identityApp(secret string) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use("/ws", WSIdentity(secret))
	app.Get("/ws", func(c *fiber.Ctx) error {
		return c.SendString(c.Locals(LocalUserID).(string))
	})
	return app
}

func upgradeRequest(target string) *http.Request {
	req := httptest.NewRequest(fiber.MethodGet, target, nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	return req
}

func resolve(t *testing.T, app *fiber.App, req *http.Request) string {
	t.Helper()
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestWSIdentityFromQuery(t *testing.T) {
	app := identityApp("")

	assert.Equal(t, "42", resolve(t, app, upgradeRequest("/ws?user_id=42")))
	assert.Equal(t, "43", resolve(t, app, upgradeRequest("/ws?userId=43")))
	assert.Equal(t, "", resolve(t, app, upgradeRequest("/ws")))
}

func TestWSIdentityRequiresTokenWhenSecretSet(t *testing.T) {
	app := identityApp(secret)
	tok := sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"user_id": "42"})

	assert.Equal(t, "42", resolve(t, app, upgradeRequest("/ws?token="+tok)))

	req := upgradeRequest("/ws")
	req.Header.Set("Authorization", "Bearer "+tok)
	assert.Equal(t, "42", resolve(t, app, req))

	// the query id is ignored once tokens are required
	assert.Equal(t, "", resolve(t, app, upgradeRequest("/ws?user_id=42")))
	assert.Equal(t, "", resolve(t, app, upgradeRequest("/ws?token=bogus")))
}

func TestWSIdentityRejectsPlainRequests(t *testing.T) {
	app := identityApp("")
	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/ws?user_id=42", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}

package middleware

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// LocalUserID is the fiber local holding the resolved user id.
const LocalUserID = "user_id"

// WSIdentity resolves who is opening a websocket session. With a secret,
// only a valid JWT (query "token" or Authorization bearer) names the user;
// without one, the "user_id" (or "userId") query parameter does. An
// unresolved identity leaves the session anonymous.
func WSIdentity(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		userID := ""
		if secret != "" {
			if tokenStr := bearerToken(c); tokenStr != "" {
				userID, _ = UserIDFromToken(tokenStr, secret)
			}
		} else {
			userID = c.Query("user_id", c.Query("userId"))
		}

		c.Locals(LocalUserID, strings.TrimSpace(userID))
		return c.Next()
	}
}

func bearerToken(c *fiber.Ctx) string {
	if tok := c.Query("token"); tok != "" {
		return tok
	}
	auth := c.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return auth[7:]
	}
	return ""
}

// UserIDFromToken validates an HMAC-signed JWT and returns its user_id
// claim, falling back to sub. Numeric ids are rendered without decimals.
func UserIDFromToken(tokenStr, secret string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &jwt.MapClaims{}, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("invalid token")
	}

	claims := token.Claims.(*jwt.MapClaims)
	switch id := (*claims)["user_id"].(type) {
	case string:
		if id != "" {
			return id, nil
		}
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64), nil
	}
	if sub, _ := claims.GetSubject(); sub != "" {
		return sub, nil
	}
	return "", errors.New("token has no user_id claim")
}

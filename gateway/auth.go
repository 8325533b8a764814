package gateway

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const bearerPrefix = "Bearer "

// userKey is the echo context key the auth middleware stores the
// resolved user id under.
const userKey = "user"

// authMiddleware resolves the bearer token to a user id and stores it
// on the request context. Requests without a valid token are rejected.
func (s *Server) authMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		if !strings.HasPrefix(header, bearerPrefix) {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
		}

		token := strings.TrimPrefix(header, bearerPrefix)
		userID, ok := s.tokens.Lookup(token)
		if !ok {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
		}

		c.Set(userKey, userID)
		return next(c)
	}
}

func currentUser(c echo.Context) string {
	userID, _ := c.Get(userKey).(string)
	return userID
}

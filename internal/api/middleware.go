package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/bartek5186/stockhub/internal/auth"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const (
	CtxUserID   = "user_id"
	CtxUserRole = "user_role"
)

// accessLog writes one line per request through zerolog.
func accessLog(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		ev := log.Info()
		switch {
		case status >= 500:
			ev = log.Error()
		case status >= 400:
			ev = log.Warn()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("took", time.Since(start)).
			Str("ip", c.ClientIP()).
			Str("actor", c.GetString(CtxUserID)).
			Msg("http")
	}
}

// authRequired validates the bearer token and puts the subject (actor) and
// role into both the gin and the request context. The stream endpoint may
// pass the token as ?access_token= since EventSource cannot set headers.
func authRequired(signer *auth.Signer) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := ExtractBearerToken(c.GetHeader("Authorization"))
		if !ok {
			token = c.Query("access_token")
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, newUnauthorizedError("missing Authorization header"))
			return
		}
		claims, err := signer.Parse(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, newUnauthorizedError("invalid token"))
			return
		}

		c.Set(CtxUserID, claims.Subject)
		c.Set(CtxUserRole, string(claims.Role))
		ctx := auth.WithActor(c.Request.Context(), claims.Subject)
		ctx = auth.WithRole(ctx, claims.Role)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// writeAccess rejects mutating requests from roles that may only read.
func writeAccess() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}
		role, _ := auth.RoleFromContext(c.Request.Context())
		if !role.CanWrite() {
			c.AbortWithStatusJSON(http.StatusForbidden, newForbiddenError("role "+string(role)+" is read-only"))
			return
		}
		c.Next()
	}
}

// ExtractBearerToken takes the token out of an Authorization header,
// tolerating quotes and trailing junk.
func ExtractBearerToken(authz string) (string, bool) {
	if authz == "" {
		return "", false
	}
	parts := strings.SplitN(authz, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	t := strings.Trim(strings.TrimSpace(parts[1]), " \"'")
	if i := strings.IndexRune(t, ','); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	if i := strings.IndexByte(t, ' '); i >= 0 {
		t = t[:i]
	}
	return strings.Trim(t, " \"'"), true
}

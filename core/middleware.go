package core

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
)

const (
	sessionName     = "contacthub_session"
	cookieTokenKey  = "token"
	ctxKeyUser      = "auth_user"
	ctxKeyToken     = "auth_token"
	bearerPrefix    = "Bearer "
	storeTimeoutMin = 10 * time.Millisecond
)

// RequestLogger records method, route, status and duration for each request.
// Headers and bodies are never logged since they carry tokens and passwords.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Float64("duration_ms", float64(time.Since(start).Microseconds())/1000),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			log.Error("request failed", fields...)
			return
		}
		log.Info("request completed", fields...)
	}
}

// CORSMiddleware allows credentialed requests from cfg.AllowedOrigins.
// It returns nil when no origins are configured.
func CORSMiddleware(cfg Config) gin.HandlerFunc {
	if len(cfg.AllowedOrigins) == 0 {
		return nil
	}
	return cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

// RequireSession validates the caller's token and stores the user and token
// on the gin context for downstream handlers.
func RequireSession(cfg Config, cookies *sessions.CookieStore, auth AuthProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := tokenFromRequest(c, cookies)
		ctx, cancel := storeContext(c, cfg)
		defer cancel()

		res := auth.ValidateSession(ctx, token)
		if !res.IsValid {
			respondError(c, statusFor(res.Err), codeFor(res.Err), res.Error)
			c.Abort()
			return
		}
		c.Set(ctxKeyUser, *res.User)
		c.Set(ctxKeyToken, token)
		c.Next()
	}
}

// tokenFromRequest reads "Authorization: Bearer <token>", falling back to the cookie session.
func tokenFromRequest(c *gin.Context, cookies *sessions.CookieStore) string {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, bearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(h, bearerPrefix))
	}
	if cookies == nil {
		return ""
	}
	sess, err := cookies.Get(c.Request, sessionName)
	if err != nil || sess == nil {
		return ""
	}
	token, _ := sess.Values[cookieTokenKey].(string)
	return token
}

func currentUser(c *gin.Context) (AuthUser, bool) {
	v, ok := c.Get(ctxKeyUser)
	if !ok {
		return AuthUser{}, false
	}
	u, ok := v.(AuthUser)
	return u, ok
}

func currentToken(c *gin.Context) string {
	return c.GetString(ctxKeyToken)
}

func storeContext(c *gin.Context, cfg Config) (context.Context, context.CancelFunc) {
	timeout := cfg.StoreTimeout
	if timeout < storeTimeoutMin {
		timeout = storeTimeoutMin
	}
	return context.WithTimeout(c.Request.Context(), timeout)
}

func applySessionOptions(cfg Config, session *sessions.Session) {
	if session.Options == nil {
		session.Options = &sessions.Options{}
	}
	session.Options.Path = "/"
	session.Options.MaxAge = int(cfg.SessionDuration / time.Second)
	session.Options.HttpOnly = true
	session.Options.Secure = cfg.CookieSecure
	session.Options.SameSite = sameSiteFromString(cfg.CookieSameSite)
}

func sameSiteFromString(v string) http.SameSite {
	switch strings.ToLower(v) {
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteStrictMode
	}
}

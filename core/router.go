package core

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
)

// RouterDeps bundles what the HTTP layer needs.
type RouterDeps struct {
	Auth     AuthProvider
	Sessions *SessionManager
	Cookies  *sessions.CookieStore
	Backend  *SessionBackend
	Logger   *zap.Logger
}

// NewRouter constructs the Gin engine with routes wired.
func NewRouter(cfg Config, deps RouterDeps) *gin.Engine {
	startedAt := time.Now()
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if deps.Sessions == nil {
		deps.Sessions = NewSessionManager(nil)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))
	if m := CORSMiddleware(cfg); m != nil {
		r.Use(m)
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	requireSession := RequireSession(cfg, deps.Cookies, deps.Auth)

	api := r.Group("/api/v1")
	{
		api.POST("/auth/login", func(c *gin.Context) {
			var creds AuthCredentials
			if err := c.ShouldBindJSON(&creds); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}

			ctx, cancel := storeContext(c, cfg)
			defer cancel()
			res := deps.Auth.Login(ctx, creds)
			if !res.Success {
				c.JSON(statusFor(res.Err), res)
				return
			}

			if deps.Cookies != nil {
				sess, _ := deps.Cookies.Get(c.Request, sessionName)
				sess.Values = map[interface{}]interface{}{}
				sess.Values[cookieTokenKey] = res.Session.Token
				applySessionOptions(cfg, sess)
				if err := sess.Save(c.Request, c.Writer); err != nil {
					log.Warn("failed to set session cookie", zap.Error(err))
				}
			}
			c.JSON(http.StatusOK, res)
		})

		api.POST("/auth/logout", func(c *gin.Context) {
			token := tokenFromRequest(c, deps.Cookies)
			ctx, cancel := storeContext(c, cfg)
			defer cancel()

			removed, err := deps.Auth.Logout(ctx, token)
			if err != nil {
				respondError(c, statusFor(err), codeFor(err), msgStoreUnavailable)
				return
			}
			if removed {
				if err := deps.Sessions.Delete(ctx, token); err != nil {
					log.Warn("failed to drop session data on logout", zap.Error(err))
				}
			}

			if deps.Cookies != nil {
				sess, _ := deps.Cookies.Get(c.Request, sessionName)
				sess.Values = map[interface{}]interface{}{}
				applySessionOptions(cfg, sess)
				sess.Options.MaxAge = -1 // after applySessionOptions, or the cookie survives
				if err := sess.Save(c.Request, c.Writer); err != nil {
					log.Warn("failed to clear session cookie", zap.Error(err))
				}
			}
			c.JSON(http.StatusOK, gin.H{"loggedOut": removed})
		})

		api.GET("/auth/session", func(c *gin.Context) {
			ctx, cancel := storeContext(c, cfg)
			defer cancel()
			res := deps.Auth.ValidateSession(ctx, tokenFromRequest(c, deps.Cookies))
			c.JSON(statusFor(res.Err), res)
		})

		api.GET("/users/me", requireSession, func(c *gin.Context) {
			user, _ := currentUser(c)
			if lookup, ok := deps.Auth.(interface {
				UserByID(ctx context.Context, id string) (AuthUser, bool)
			}); ok {
				fresh, found := lookup.UserByID(c.Request.Context(), user.ID)
				if !found {
					respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "user no longer exists")
					return
				}
				user = fresh
			}
			c.JSON(http.StatusOK, user)
		})

		data := api.Group("/session/data", requireSession)
		data.GET("", func(c *gin.Context) {
			ctx, cancel := storeContext(c, cfg)
			defer cancel()
			d, err := deps.Sessions.Get(ctx, currentToken(c))
			if err != nil {
				respondError(c, statusFor(storeFailure(err)), "STORE_UNAVAILABLE", msgStoreUnavailable)
				return
			}
			if d == nil {
				d = SessionData{}
			}
			c.JSON(http.StatusOK, gin.H{"data": d})
		})
		data.PUT("", func(c *gin.Context) {
			var req struct {
				Data       SessionData `json:"data"`
				TTLSeconds int         `json:"ttlSeconds"`
			}
			if err := c.ShouldBindJSON(&req); err != nil || req.TTLSeconds < 0 {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}
			ttl := cfg.SessionTTL
			if req.TTLSeconds > 0 {
				ttl = time.Duration(req.TTLSeconds) * time.Second
			}
			ctx, cancel := storeContext(c, cfg)
			defer cancel()
			if err := deps.Sessions.Set(ctx, currentToken(c), req.Data, ttl); err != nil {
				respondError(c, statusFor(storeFailure(err)), "STORE_UNAVAILABLE", msgStoreUnavailable)
				return
			}
			c.Status(http.StatusNoContent)
		})
		data.DELETE("", func(c *gin.Context) {
			ctx, cancel := storeContext(c, cfg)
			defer cancel()
			if err := deps.Sessions.Delete(ctx, currentToken(c)); err != nil {
				respondError(c, statusFor(storeFailure(err)), "STORE_UNAVAILABLE", msgStoreUnavailable)
				return
			}
			c.Status(http.StatusNoContent)
		})

		api.GET("/status", func(c *gin.Context) {
			ctx, cancel := storeContext(c, cfg)
			defer cancel()
			c.JSON(http.StatusOK, CollectSystemStatus(ctx, deps.Backend, deps.Auth, startedAt))
		})
	}

	return r
}

package httpapi

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hinteval/sessiond/internal/logging"
	"github.com/hinteval/sessiond/internal/session"
)

const (
	// HeaderSessionKey carries an explicit session key; it wins over the
	// cookie. API clients use it, the browser UI relies on the cookie.
	HeaderSessionKey = "X-Session-Key"

	// SessionCookieName is the cookie minted for clients that present no
	// session key at all.
	SessionCookieName = "session_id"

	ctxSessionKey = "session.key"
)

// sessionKey returns the session key resolved for this request.
func sessionKey(c echo.Context) string {
	key, _ := c.Get(ctxSessionKey).(string)
	return key
}

// sessionKeyMiddleware resolves the session key for interchange routes:
// X-Session-Key header first, then the session_id cookie, else a fresh
// UUID is minted and set as an HttpOnly cookie.
func (s *Server) sessionKeyMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.Request().Header.Get(HeaderSessionKey)
			minted := false
			if key == "" {
				if cookie, err := c.Cookie(SessionCookieName); err == nil {
					key = cookie.Value
				}
			}
			if key == "" {
				key = session.NewKey()
				minted = true
			}

			if err := session.ValidateKey(key); err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid session key: %v", err))
			}

			if minted {
				c.SetCookie(&http.Cookie{
					Name:     SessionCookieName,
					Value:    key,
					Path:     "/",
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
				})
			}

			c.Set(ctxSessionKey, key)
			ctx := logging.WithSessionKey(c.Request().Context(), key)
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

// correlationMiddleware threads the request ID into the request context so
// every log line carries it. Runs after the RequestID middleware.
func (s *Server) correlationMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Response().Header().Get(echo.HeaderXRequestID)
			// Client-supplied request IDs pass through echo verbatim;
			// only propagate ones that are safe to log.
			if id != "" && session.ValidateKey(id) == nil {
				ctx := logging.WithRequestID(c.Request().Context(), id)
				c.SetRequest(c.Request().WithContext(ctx))
			}
			return next(c)
		}
	}
}

// requestLogMiddleware logs one line per request with latency and status.
// Errors are handed to the error handler before logging so the status is
// the one the client saw.
func (s *Server) requestLogMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			start := time.Now()
			if err = next(c); err != nil {
				c.Error(err)
			}

			s.logger.Info(c.Request().Context(), "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)

			return err
		}
	}
}

// keyLimiter hands out one token bucket per session key. The whole map is
// dropped once an hour so abandoned sessions do not accumulate.
type keyLimiter struct {
	limit rate.Limit
	burst int

	mu          sync.Mutex
	limiters    map[string]*rate.Limiter
	lastCleanup time.Time
}

func newKeyLimiter(perSecond float64, burst int) *keyLimiter {
	return &keyLimiter{
		limit:       rate.Limit(perSecond),
		burst:       burst,
		limiters:    make(map[string]*rate.Limiter),
		lastCleanup: time.Now(),
	}
}

func (k *keyLimiter) get(key string) *rate.Limiter {
	k.mu.Lock()
	defer k.mu.Unlock()

	if time.Since(k.lastCleanup) > time.Hour {
		k.limiters = make(map[string]*rate.Limiter)
		k.lastCleanup = time.Now()
	}

	limiter, ok := k.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(k.limit, k.burst)
		k.limiters[key] = limiter
	}
	return limiter
}

// rateLimitMiddleware bounds write traffic per session key.
func (s *Server) rateLimitMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := sessionKey(c)
			if !s.limiter.get(key).Allow() {
				s.logger.Warn(c.Request().Context(), "rate limit exceeded",
					zap.String("session.key", key))
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}

package core

import (
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const securityContextKey = "security_context"

// GetSecurityContext returns the context populated by TokenMiddleware, or a
// zero (anonymous) context when the middleware has not run.
func GetSecurityContext(c *gin.Context) SecurityContext {
	if v, ok := c.Get(securityContextKey); ok {
		if sc, ok := v.(SecurityContext); ok {
			return sc
		}
	}
	return SecurityContext{}
}

// CORSMiddleware validates Origin/Referer against the allowed list and sets
// CORS headers. Same-origin requests (no Origin header) pass through.
func CORSMiddleware(cfg Config) gin.HandlerFunc {
	allowed := map[string]struct{}{}
	for _, o := range cfg.AllowedOrigins {
		allowed[strings.ToLower(o)] = struct{}{}
	}

	isAllowed := func(origin string) bool {
		if origin == "" {
			return true
		}
		if len(allowed) == 0 {
			return false
		}
		_, ok := allowed[strings.ToLower(origin)]
		return ok
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		referer := c.GetHeader("Referer")
		if origin == "" && referer != "" {
			if u, err := url.Parse(referer); err == nil {
				origin = u.Scheme + "://" + u.Host
			}
		}

		// Preflight handling
		if c.Request.Method == http.MethodOptions && origin != "" {
			if !isAllowed(origin) {
				respondError(c, http.StatusForbidden, "FORBIDDEN", "origin not allowed")
				c.Abort()
				return
			}
			setCORSHeaders(c, origin)
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}

		if !isAllowed(origin) {
			respondError(c, http.StatusForbidden, "FORBIDDEN", "origin not allowed")
			c.Abort()
			return
		}
		if origin != "" {
			setCORSHeaders(c, origin)
		}
		c.Next()
	}
}

func setCORSHeaders(c *gin.Context, origin string) {
	c.Header("Access-Control-Allow-Origin", origin)
	c.Header("Vary", "Origin")
	c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
	c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// LoginMiddleware owns POST <login path> entirely: it terminates the chain
// for every login request, so the token stage and route handlers never see
// one. All other requests pass through untouched.
func LoginMiddleware(cfg Config, auth AuthService, codec *TokenCodec, throttle *LoginThrottle, activity *ActivityRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path != cfg.LoginPath || c.Request.Method != http.MethodPost {
			c.Next()
			return
		}
		handleLogin(c, auth, codec, throttle, activity)
		c.Abort()
	}
}

// handleLogin writes a terminal response in every branch.
func handleLogin(c *gin.Context, auth AuthService, codec *TokenCodec, throttle *LoginThrottle, activity *ActivityRecorder) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
		return
	}
	if strings.TrimSpace(req.Username) == "" || strings.TrimSpace(req.Password) == "" || strings.TrimSpace(req.Role) == "" {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "username, password and role are required")
		return
	}

	ctx := c.Request.Context()
	attemptKey := strings.TrimSpace(req.Username) + "|" + c.ClientIP()
	if throttle.Blocked(ctx, attemptKey) {
		respondError(c, http.StatusTooManyRequests, "TOO_MANY_ATTEMPTS", "too many failed attempts, try again later")
		return
	}

	principal, err := auth.Authenticate(ctx, req.Username, req.Password, req.Role)
	switch {
	case errors.Is(err, ErrMissingField):
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "username, password and role are required")
	case errors.Is(err, ErrRoleMismatch):
		throttle.RecordFailure(ctx, attemptKey)
		activity.RecordLoginFailure(ctx)
		respondError(c, http.StatusUnauthorized, "ROLE_MISMATCH", "you don't have this role")
	case errors.Is(err, ErrInvalidCredentials):
		throttle.RecordFailure(ctx, attemptKey)
		activity.RecordLoginFailure(ctx)
		respondError(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid username or password")
	case err != nil:
		log.Printf("login failed unexpectedly: %v", err)
		respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "internal server error")
	default:
		token, err := codec.Issue(principal, time.Now())
		if err != nil {
			log.Printf("token issue failed: %v", err)
			respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "internal server error")
			return
		}
		throttle.Reset(ctx, attemptKey)
		activity.RecordLoginSuccess(ctx)
		c.JSON(http.StatusOK, gin.H{
			"token": token,
			"user":  gin.H{"username": principal.Username, "role": principal.Role},
		})
	}
}

// TokenMiddleware extracts a bearer token from the Authorization header and
// populates the request's SecurityContext. It never terminates the request:
// verification failures degrade the request to anonymous and the authorize
// stage produces the user-visible error, keeping one decision point.
func TokenMiddleware(codec *TokenCodec, activity *ActivityRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		sc := SecurityContext{}
		if raw := bearerToken(c.GetHeader("Authorization")); raw != "" {
			claims, err := codec.Verify(raw, time.Now())
			if err != nil {
				activity.RecordTokenRejected(c.Request.Context())
			} else if role, ok := ParseRole(claims.Role); ok {
				sc.Principal = &Principal{Username: claims.Subject, Role: role}
				sc.TokenValid = true
			}
		}
		c.Set(securityContextKey, sc)
		c.Next()
	}
}

// bearerToken parses "Bearer <token>" and returns "" for anything else.
func bearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// AuthorizeMiddleware consults the access policy exactly once per request
// under the protected prefix. The login path is excluded (the login stage
// owns it) and so is everything outside the prefix, e.g. /healthz.
func AuthorizeMiddleware(cfg Config, policy *AccessPolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if path == cfg.LoginPath || !strings.HasPrefix(path, cfg.ProtectedPrefix) {
			c.Next()
			return
		}
		switch policy.Authorize(path, GetSecurityContext(c)) {
		case DecisionAllow:
			c.Next()
		case DecisionForbidden:
			respondError(c, http.StatusForbidden, "FORBIDDEN", "insufficient role")
			c.Abort()
		default:
			respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
			c.Abort()
		}
	}
}

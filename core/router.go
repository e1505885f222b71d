package core

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// NewRouter constructs the Gin engine with the auth pipeline and routes wired.
// The pipeline order is fixed: CORS -> login interception -> token
// verification -> policy enforcement. The login stage always terminates login
// requests, so they never reach the later stages or any handler.
func NewRouter(cfg Config, auth AuthService, codec *TokenCodec, policy *AccessPolicy, users UserRepository, throttle *LoginThrottle, activity *ActivityRecorder) *gin.Engine {
	r := gin.Default()

	r.Use(CORSMiddleware(cfg))
	r.Use(LoginMiddleware(cfg, auth, codec, throttle, activity))
	r.Use(TokenMiddleware(codec, activity))
	r.Use(AuthorizeMiddleware(cfg, policy))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		api.GET("/users/me", func(c *gin.Context) {
			sc := GetSecurityContext(c)
			// The authorize stage already required a principal here.
			if sc.Principal == nil {
				respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
				return
			}
			u, err := users.FindByUsername(c.Request.Context(), sc.Principal.Username)
			if err != nil {
				// Token outlives the account: treat as unauthenticated.
				respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "account no longer exists")
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"username":   u.Username,
				"role":       u.Role,
				"created_at": u.CreatedAt,
			})
		})

		api.GET("/student/:username", func(c *gin.Context) {
			username := c.Param("username")
			u, err := users.FindByUsername(c.Request.Context(), username)
			if err != nil || u.Role != RoleStudent.String() {
				respondError(c, http.StatusNotFound, "NOT_FOUND", "student not found")
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"username":   u.Username,
				"role":       u.Role,
				"created_at": u.CreatedAt,
			})
		})

		api.GET("/admin/users", func(c *gin.Context) {
			page := intQuery(c, "page", 1)
			perPage := intQuery(c, "per_page", 20)
			items, total, err := users.List(c.Request.Context(), page, perPage)
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to list users")
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"users":    items,
				"total":    total,
				"page":     page,
				"per_page": perPage,
			})
		})

		api.GET("/admin/activity", func(c *gin.Context) {
			days := intQuery(c, "days", 7)
			overview, err := activity.Overview(c.Request.Context(), days)
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to read activity")
				return
			}
			c.JSON(http.StatusOK, gin.H{"activity": overview})
		})
	}

	return r
}

func intQuery(c *gin.Context, name string, defaultVal int) int {
	if v := c.Query(name); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			return i
		}
	}
	return defaultVal
}

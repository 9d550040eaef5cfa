package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/monocle-dev/oncall/internal/handlers"
	"github.com/monocle-dev/oncall/internal/logger"
	"github.com/monocle-dev/oncall/internal/middleware"
	"github.com/monocle-dev/oncall/internal/store"
	"github.com/monocle-dev/oncall/internal/types"
)

type Options struct {
	AllowedOrigins []string
	Tokens         middleware.TokenVerifier
	Directory      store.DirectoryStore
	// Gatherer serves /metrics when set.
	Gatherer prometheus.Gatherer
	Log      *zap.Logger
}

func NewRouter(h *handlers.Handler, opts Options) *gin.Engine {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), logger.Requests(log))

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = types.AllowedOrigins("", "")
	}

	r.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept", "X-Requested-With", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	requireAuth := middleware.Auth(opts.Tokens, opts.Directory)

	api := r.Group("/api")
	{
		api.GET("/health", handlers.HealthCheck)
		api.GET("/ws/:team_id", requireAuth, h.WebSocket)
		api.GET("/auth/me", requireAuth, h.Me)

		teams := api.Group("/teams", requireAuth)
		{
			teams.POST("/:team_id/schedules", h.CreateSchedule)
			teams.POST("/:team_id/incidents", h.ReportIncident)
		}

		schedules := api.Group("/schedules", requireAuth)
		{
			schedules.GET("/:schedule_id", h.GetSchedule)
			schedules.PATCH("/:schedule_id", h.UpdateSchedule)
			schedules.DELETE("/:schedule_id", h.DeleteSchedule)

			// Assignment endpoints
			schedules.GET("/:schedule_id/assignments", h.ListAssignments)
			schedules.PUT("/:schedule_id/assignments", h.UpsertAssignment)
			schedules.GET("/:schedule_id/oncall", h.OnCall)
		}

		api.DELETE("/assignments/:assignment_id", requireAuth, h.DeleteAssignment)

		// Tokens minted for out-of-band channels let acknowledgment through
		// without a session.
		api.POST("/incidents/:incident_id/acknowledge", middleware.OptionalAuth(opts.Tokens, opts.Directory), h.AcknowledgeIncident)

		incidents := api.Group("/incidents", requireAuth)
		{
			incidents.GET("/:incident_id", h.GetIncident)
			incidents.PATCH("/:incident_id", h.PatchIncident)
			incidents.GET("/:incident_id/audit", h.GetIncidentAudit)
			incidents.POST("/:incident_id/ack-tokens", h.IssueAckToken)
		}
	}

	return r
}

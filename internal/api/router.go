package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wlockwood/lits/internal/api/handlers"
	"github.com/wlockwood/lits/internal/api/ws"
	"github.com/wlockwood/lits/internal/auth"
	"github.com/wlockwood/lits/internal/storage"
)

type RouterConfig struct {
	APIKey string
	Store  storage.Store
	// Checks are run by /readyz in addition to the store ping.
	Checks map[string]handlers.Check
	// Hub serves /v1/ws/matches when set.
	Hub *ws.Hub
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.New(corsConfig()))

	// System endpoints (no auth)
	checks := map[string]handlers.Check{"store": cfg.Store.Ping}
	for name, check := range cfg.Checks {
		checks[name] = check
	}
	systemH := handlers.NewSystemHandler(checks)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	if cfg.Hub != nil {
		v1.GET("/ws/matches", cfg.Hub.HandleWS)
	}

	personH := handlers.NewPersonHandler(cfg.Store)
	v1.GET("/persons", personH.List)
	v1.GET("/persons/:id", personH.Get)
	v1.GET("/persons/:id/images", personH.Images)

	imageH := handlers.NewImageHandler(cfg.Store)
	v1.GET("/images/:id", imageH.Get)
	v1.GET("/images/:id/encodings", imageH.Encodings)

	reportH := handlers.NewReportHandler(cfg.Store)
	reports := v1.Group("/reports")
	reports.GET("/faces", reportH.Faces)
	reports.GET("/people", reportH.People)
	reports.GET("/timeline", reportH.Timeline)
	reports.GET("/exposure", reportH.Exposure)

	return r
}

func corsConfig() cors.Config {
	c := cors.DefaultConfig()
	c.AllowAllOrigins = true
	c.AllowMethods = []string{"GET", "OPTIONS"}
	c.AllowHeaders = append(c.AllowHeaders, auth.HeaderName)
	return c
}

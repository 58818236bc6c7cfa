package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lendstack/underwriting/internal/config"
	decisiondomain "github.com/lendstack/underwriting/internal/decision/domain"
	obslogger "github.com/lendstack/underwriting/internal/observability/logger"
	obsmetrics "github.com/lendstack/underwriting/internal/observability/metrics"
	obstracing "github.com/lendstack/underwriting/internal/observability/tracing"
	overridedomain "github.com/lendstack/underwriting/internal/override/domain"
	ruledomain "github.com/lendstack/underwriting/internal/rule/domain"
	"github.com/lendstack/underwriting/internal/scoring/adapter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger, metrics *obsmetrics.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(log))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(metrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(log *zap.Logger, metrics *obsmetrics.Metrics) *gin.Engine {
	return NewEngine(log, metrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine      *gin.Engine
	decisionSvc decisiondomain.Service
	overrideSvc overridedomain.Service
	ruleSvc     ruledomain.Service
	scoringReg  *adapter.Registry
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	DecisionSvc decisiondomain.Service
	OverrideSvc overridedomain.Service
	RuleSvc     ruledomain.Service
	ScoringReg  *adapter.Registry
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		decisionSvc: p.DecisionSvc,
		overrideSvc: p.OverrideSvc,
		ruleSvc:     p.RuleSvc,
		scoringReg:  p.ScoringReg,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Underwriting --------
	apps := api.Group("/applications")
	apps.POST("/:id/underwrite", s.Underwrite)
	apps.GET("/:id/decision", s.GetDecision)

	// -------- Overrides --------
	apps.POST("/:id/override/request", s.RequestOverride)
	apps.POST("/:id/override/:overrideId/approve", s.ApproveOverride)
	apps.POST("/:id/override/:overrideId/reject", s.RejectOverride)
	apps.GET("/:id/override", s.ListOverrides)
	api.GET("/override-requests/pending", s.ListPendingOverrides)

	// -------- Rules --------
	api.GET("/rules", s.ListRules)
	api.POST("/rules", s.CreateRule)
	api.GET("/rules/:id", s.GetRuleByID)
	api.PATCH("/rules/:id", s.UpdateRule)

	// -------- Scoring --------
	api.POST("/scoring/calculate", s.CalculateScore)
	api.GET("/scoring/providers", s.ListScoringProviders)
}

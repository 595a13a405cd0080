package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	apirest "github.com/groupquest/server/api/rest"
	"github.com/groupquest/server/api/sse"
	"github.com/groupquest/server/audit"
	"github.com/groupquest/server/cache"
	"github.com/groupquest/server/catalog"
	"github.com/groupquest/server/config"
	dbadapter "github.com/groupquest/server/db"
	"github.com/groupquest/server/events"
	"github.com/groupquest/server/fanout"
	"github.com/groupquest/server/group"
	"github.com/groupquest/server/hook"
	mw "github.com/groupquest/server/middleware"
	"github.com/groupquest/server/model"
	"github.com/groupquest/server/quest"
	"github.com/groupquest/server/scheduler"
	"github.com/groupquest/server/store"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized")

	// ---- Audit ----
	auditSvc := audit.New(db, logger)
	defer auditSvc.Stop(context.Background())

	// ---- Cache / PubSub ----
	c, err := cache.NewCache(cfg.Cache)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	pubsub, err := cache.NewPubSub(cfg.Cache)
	if err != nil {
		log.Fatalf("pubsub: %v", err)
	}
	logger.Info("Cache initialized")

	// ---- Quest Catalog ----
	cat, err := catalog.Load(cfg.Quest.ContentPath)
	if err != nil {
		logger.Warn("quest catalog load warning", zap.Error(err))
		cat, _ = catalog.New(nil)
	} else {
		logger.Info("Quest catalog loaded", zap.Int("quests", cat.Len()))
	}

	// ---- Stores / Fan-out ----
	groupStore := store.NewGroupStore(db, cfg.Quest.MaxUpdateRetries)
	memberStore := store.NewMemberStore(db, cfg.Quest.MaxUpdateRetries)
	driver := fanout.NewDriver(memberStore, logger)
	publisher := events.NewPublisher(pubsub, logger)

	// ---- Hooks ----
	hooks := hook.NewCenter()
	hooks.Register(hook.OnQuestComplete, 0, "reward_logger", func(ctx context.Context, event string, data interface{}) (interface{}, error) {
		if o, ok := data.(*quest.Outcome); ok {
			logger.Info("quest completed",
				zap.String("group_id", o.GroupID),
				zap.String("quest_key", o.QuestKey),
				zap.Strings("members", o.AcceptedIDs),
				zap.Float64("reward_gold", o.Reward.Gold),
				zap.Int("reward_exp", o.Reward.Exp))
		}
		return data, nil
	})

	// ---- Services ----
	groupSvc := group.NewService(groupStore, memberStore, driver, publisher, hooks, logger)
	questSvc := quest.NewService(groupStore, memberStore, cat, driver, publisher, hooks, logger)

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	defer sched.Stop()

	if cfg.Quest.ReconcileInterval > 0 {
		reconciler := fanout.NewReconciler(groupStore, driver, logger)
		sched.AddTicker("mirror_reconcile", cfg.Quest.ReconcileInterval, func() {
			reconciler.Run(context.Background())
		})
	}

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst, cfg.Security.RateLimitGC))

	// Health check
	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	// ---- REST API routes ----
	authH := apirest.NewAuthHandler(memberStore, c, cfg.Security)
	memberH := apirest.NewMemberHandler(memberStore, groupStore)
	groupH := apirest.NewGroupHandler(groupSvc, groupStore, auditSvc)
	questH := apirest.NewQuestHandler(questSvc, auditSvc)

	api := r.Group("/api")
	{
		authG := api.Group("/auth")
		authG.POST("/login", authH.Login)
		authG.POST("/logout", mw.Auth(cfg.Security, c), authH.Logout)
		authG.POST("/refresh", mw.Auth(cfg.Security, c), authH.Refresh)

		membersG := api.Group("/members")
		membersG.Use(mw.Auth(cfg.Security, c))
		membersG.GET("/me", memberH.Me)
		membersG.GET("/:id", memberH.Get)

		groupsG := api.Group("/groups")
		groupsG.Use(mw.Auth(cfg.Security, c))
		groupsG.GET("/:id", groupH.Detail)
		groupsG.POST("/:id/invite", groupH.Invite)
		groupsG.POST("/:id/join", groupH.Join)
		groupsG.POST("/:id/leave", groupH.Leave)
		groupsG.DELETE("/:id/members/:mid", groupH.RemoveMember)

		groupsG.POST("/:id/quest/invite", questH.Invite)
		groupsG.POST("/:id/quest/vote", questH.Vote)
		groupsG.POST("/:id/quest/force-start", questH.ForceStart)
		groupsG.POST("/:id/quest/progress", questH.Progress)
		groupsG.POST("/:id/quest/abort", questH.Abort)
	}

	// ---- SSE ----
	sseH := sse.NewHandler(pubsub, c, groupStore, cfg.Security, logger)
	r.GET("/sse/groups/:id", sseH.ServeGroupEvents)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info("Server listening", zap.String("addr", addr))
	if err := r.Run(addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}

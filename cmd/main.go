package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"hivox/internal/auth"
	"hivox/internal/blockchain"
	"hivox/internal/config"
	"hivox/internal/database"
	"hivox/internal/gemini"
	"hivox/internal/handlers"
	"hivox/internal/jobs"
	"hivox/internal/logging"
	"hivox/internal/passport"
	"hivox/internal/rewards"
	"hivox/internal/services"
	"hivox/internal/twitter"
	"hivox/internal/validation"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	auth.InitJWT(cfg.App.JWTSecret, cfg.App.JWTExpire)

	if err := validation.RegisterBindings(); err != nil {
		zap.L().Fatal("Failed to register validators", zap.Error(err))
	}

	table, err := rewards.Load(cfg.Rewards.LevelsFile)
	if err != nil {
		zap.L().Fatal("Failed to load reward table", zap.Error(err))
	}
	zap.L().Info("Reward table loaded",
		zap.String("version", table.Version),
		zap.Int("levels", table.Depth()))

	// Connect to database
	if err := database.Connect(cfg.Database.Driver, cfg.GetDSN()); err != nil {
		zap.L().Fatal("Failed to connect to database", zap.Error(err))
	}
	db := database.GetDB()

	// Run migrations
	if err := database.AutoMigrate(db); err != nil {
		zap.L().Fatal("Failed to run migrations", zap.Error(err))
	}

	evmClient := blockchain.NewEVMClient(cfg.Chain.RPCURLs)
	defer evmClient.Close()

	// Initialize services
	referralService := services.NewReferralService(db, table, services.ReferralOptions{
		StrictCodes: cfg.App.StrictReferralCodes,
		FrontendURL: cfg.App.FrontendURL,
	})
	rewardService := services.NewRewardService(db, table, cfg.Rewards.MaxAttempts)
	claimService := services.NewClaimService(db, rewardService, evmClient)
	claimService.SetAirdropContract(cfg.Chain.AirdropContractAddress)
	zap.L().Info("Airdrop contracts",
		zap.String("airdrop", cfg.Chain.AirdropContractAddress),
		zap.String("token", cfg.Chain.TokenContractAddress))
	userService := services.NewUserService(db, referralService)
	tweetTaskService := services.NewTweetTaskService(db,
		twitter.NewClient(cfg.Twitter.APIURL, cfg.Twitter.BearerToken),
		services.TweetCampaign{Text: cfg.Twitter.CampaignText, Start: cfg.Twitter.CampaignStart})
	passportService := services.NewPassportService(db,
		passport.NewClient(cfg.Passport.APIURL, cfg.Passport.APIKey, cfg.Passport.ScorerID))
	aiService := services.NewAIService(gemini.NewClient(cfg.Gemini.APIURL, cfg.Gemini.APIKey, cfg.Gemini.Model), table)

	// Retry reward events that were not applied inline
	rewardProcessor := jobs.NewRewardProcessor(rewardService, cfg.Rewards.ProcessorInterval)
	go rewardProcessor.Start()

	// Set up Gin router
	gin.SetMode(cfg.Server.GinMode)
	router := gin.New()
	router.Use(gin.Recovery(), logging.RequestLogger())

	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.App.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	handlers.RegisterRoutes(router, db, handlers.Handlers{
		User:      handlers.NewUserHandler(referralService, userService, passportService),
		Claim:     handlers.NewClaimHandler(claimService, rewardService),
		TweetTask: handlers.NewTweetTaskHandler(tweetTaskService),
		AI:        handlers.NewAIHandler(aiService),
		Chains:    evmClient,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		zap.L().Info("Server starting",
			zap.String("port", cfg.Server.Port),
			zap.Int("rpc_chains", len(cfg.Chain.RPCURLs)))

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zap.L().Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zap.L().Info("Shutting down server...")

	// Graceful shutdown with 5 second timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zap.L().Error("Server forced to shutdown", zap.Error(err))
	}
	rewardProcessor.Stop()

	zap.L().Info("Server exited")
}

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/lk2023060901/pentestgpt-backend/internal/auth"
	authbiz "github.com/lk2023060901/pentestgpt-backend/internal/auth/biz"
	authdata "github.com/lk2023060901/pentestgpt-backend/internal/auth/data"
	"github.com/lk2023060901/pentestgpt-backend/internal/auth/middleware"
	authservice "github.com/lk2023060901/pentestgpt-backend/internal/auth/service"
	chatbiz "github.com/lk2023060901/pentestgpt-backend/internal/chat/biz"
	chatdata "github.com/lk2023060901/pentestgpt-backend/internal/chat/data"
	chatservice "github.com/lk2023060901/pentestgpt-backend/internal/chat/service"
	"github.com/lk2023060901/pentestgpt-backend/internal/chat/stream"
	"github.com/lk2023060901/pentestgpt-backend/internal/chat/tools"
	"github.com/lk2023060901/pentestgpt-backend/internal/conf"
	"github.com/lk2023060901/pentestgpt-backend/internal/data"
	emailservice "github.com/lk2023060901/pentestgpt-backend/internal/email/service"
	"github.com/lk2023060901/pentestgpt-backend/internal/llm"
	"github.com/lk2023060901/pentestgpt-backend/internal/llm/anthropic"
	"github.com/lk2023060901/pentestgpt-backend/internal/llm/openai"
	"github.com/lk2023060901/pentestgpt-backend/internal/moderation"
	"github.com/lk2023060901/pentestgpt-backend/internal/pkg/logger"
	"github.com/lk2023060901/pentestgpt-backend/internal/pkg/tokenizer"
	"github.com/lk2023060901/pentestgpt-backend/internal/server"
	"github.com/lk2023060901/pentestgpt-backend/internal/websearch"
)

var (
	configFile = flag.String("config", "config.yaml", "config file path")
)

func main() {
	flag.Parse()

	config, err := conf.LoadConfig(*configFile)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logConfig := &logger.Config{
		Level:            config.Log.Level,
		Format:           config.Log.Format,
		Output:           config.Log.Output,
		EnableCaller:     config.Log.EnableCaller,
		EnableStacktrace: config.Log.EnableStacktrace,
		File: logger.FileConfig{
			Filename:   config.Log.File.Filename,
			MaxSize:    config.Log.File.MaxSize,
			MaxAge:     config.Log.File.MaxAge,
			MaxBackups: config.Log.File.MaxBackups,
			Compress:   config.Log.File.Compress,
		},
	}

	log, err := logger.New(logConfig)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer log.Sync()

	if err := logger.InitGlobal(logConfig); err != nil {
		log.Fatal("failed to initialize global logger", zap.Error(err))
	}

	log.Info("config loaded successfully")

	d, cleanup, err := data.NewData(config, log)
	if err != nil {
		log.Fatal("failed to initialize data layer", zap.Error(err))
	}
	defer cleanup()

	// Auth wiring
	jwtManager := auth.NewJWTManager(config.Auth.JWTSecret, config.Auth.JWTIssuer)
	totpManager := auth.NewTOTPManager(config.Auth.TOTPIssuer)

	var mailer authbiz.Mailer
	if config.Mail.Host != "" {
		emailSvc, err := emailservice.NewEmailService(&emailservice.Config{
			Host:     config.Mail.Host,
			Port:     config.Mail.Port,
			Username: config.Mail.Username,
			Password: config.Mail.Password,
			From:     config.Mail.From,
			FromName: config.Mail.FromName,
			BaseURL:  config.Mail.BaseURL,
		})
		if err != nil {
			log.Fatal("failed to initialize email service", zap.Error(err))
		}
		mailer = emailSvc
	} else {
		log.Warn("mail is not configured, verification and reset emails are disabled")
	}

	userRepo := authdata.NewAuthUserRepo(d.DB)
	pendingAuthRepo := authbiz.NewRedisPendingAuthRepo(d.RedisClient)
	authUseCase := authbiz.NewAuthUseCase(userRepo, pendingAuthRepo, jwtManager, totpManager, mailer)

	googleOAuth := auth.NewGoogleOAuth(
		config.Auth.Google.ClientID,
		config.Auth.Google.ClientSecret,
		config.Auth.Google.RedirectURL,
	)
	authService := authservice.NewAuthService(authUseCase, googleOAuth, d.RedisClient, log)

	// Model providers. Missing API keys fail here, before any stream
	// can start.
	providers := llm.NewRegistry()
	if config.AI.Anthropic.APIKey != "" {
		p, err := anthropic.New(&llm.Config{
			APIKey:  config.AI.Anthropic.APIKey,
			BaseURL: config.AI.Anthropic.BaseURL,
			Model:   config.AI.Anthropic.Model,
			Timeout: config.AI.Anthropic.Timeout,
		})
		if err != nil {
			log.Fatal("failed to initialize anthropic provider", zap.Error(err))
		}
		providers.Register(p)
	}
	if config.AI.OpenAI.APIKey != "" {
		p, err := openai.New(&llm.Config{
			APIKey:  config.AI.OpenAI.APIKey,
			BaseURL: config.AI.OpenAI.BaseURL,
			Model:   config.AI.OpenAI.Model,
			Timeout: config.AI.OpenAI.Timeout,
		})
		if err != nil {
			log.Fatal("failed to initialize openai provider", zap.Error(err))
		}
		providers.Register(p)
	}
	if len(providers.Names()) == 0 {
		log.Fatal("no model provider configured, set an anthropic or openai API key")
	}

	// Tools
	toolList := []tools.Tool{tools.NewBrowserTool(30 * time.Second)}
	if config.WebSearch.APIKey != "" {
		searchProvider, err := websearch.New(&websearch.Config{
			Provider:   config.WebSearch.Provider,
			APIKey:     config.WebSearch.APIKey,
			MaxResults: config.WebSearch.MaxResults,
		})
		if err != nil {
			log.Fatal("failed to initialize web search", zap.Error(err))
		}
		toolList = append([]tools.Tool{tools.NewWebSearchTool(searchProvider, config.WebSearch.MaxResults)}, toolList...)
	} else {
		log.Warn("web search is not configured, the webSearch tool is disabled")
	}
	registry := tools.NewRegistry(toolList...)

	counter, err := tokenizer.New("")
	if err != nil {
		log.Fatal("failed to initialize tokenizer", zap.Error(err))
	}

	// Chat domain
	chatRepo := chatdata.NewChatRepo(d.DB.DB)
	messageRepo := chatdata.NewMessageRepo(d.DB.DB)
	chatUseCase := chatbiz.NewChatUseCase(chatRepo, messageRepo)

	defaultProvider, err := providers.Default()
	if err != nil {
		log.Fatal("no default provider", zap.Error(err))
	}
	titleModel := config.AI.TitleModel
	if titleModel == "" {
		titleModel = config.AI.Anthropic.Model
	}
	titleGen := stream.NewLLMTitleGenerator(defaultProvider, titleModel)

	orchestrator := stream.NewOrchestrator(
		registry,
		chatservice.NewChatStore(chatUseCase),
		titleGen,
		counter,
		log,
	)

	moderationCfg := &moderation.Config{Model: config.Moderation.Model}
	if config.Moderation.Enabled {
		moderationCfg.APIKey = config.Moderation.APIKey
	}
	moderationClient := moderation.New(moderationCfg, log)

	defaultModel := config.AI.Anthropic.Model
	if defaultModel == "" {
		defaultModel = config.AI.OpenAI.Model
	}

	chatService := chatservice.NewChatService(
		chatUseCase,
		providers,
		orchestrator,
		moderationClient,
		d.RedisClient,
		d.MinIOClient,
		defaultModel,
		log,
	)

	authMiddleware := middleware.JWTAuth(jwtManager, log)
	httpServer := server.NewHTTPServer(config, log, authService, chatService, authMiddleware, d.RedisClient)

	go func() {
		if err := httpServer.Start(); err != nil {
			log.Fatal("failed to start HTTP server", zap.Error(err))
		}
	}()

	log.Info("server started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Stop(ctx); err != nil {
		log.Error("HTTP server forced to shutdown", zap.Error(err))
	}

	log.Info("server exited")
}

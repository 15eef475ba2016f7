package app

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cradoe/payrail/internal/cache"
	"github.com/cradoe/payrail/internal/config"
	"github.com/cradoe/payrail/internal/env"
	"github.com/cradoe/payrail/internal/errHandler"
	"github.com/cradoe/payrail/internal/helper"
	"github.com/cradoe/payrail/internal/notification"
	"github.com/cradoe/payrail/internal/otp"
	"github.com/cradoe/payrail/internal/processor"
	"github.com/cradoe/payrail/internal/repository"
	"github.com/cradoe/payrail/internal/smtp"
	"github.com/cradoe/payrail/internal/stream"
	"github.com/cradoe/payrail/internal/withdrawal"
	"github.com/joho/godotenv"
)

// Essential services and resources are exposed to the application
// this makes it possible for methods to have access to these items and when they need them
type Application struct {
	Config       config.Config
	DB           repository.Database
	Logger       *slog.Logger
	Mailer       *smtp.Mailer
	WG           sync.WaitGroup
	Kafka        *stream.KafkaStream
	Cache        *cache.Cache
	Processor    *processor.Client
	Otp          *otp.Manager
	Orchestrator *withdrawal.Orchestrator
	Commission   *withdrawal.CommissionResolver
	Notifier     *notification.Service
	errorHandler *errHandler.ErrorHandler
	helper       *helper.HelperRepository
}

func NewApplication(logger *slog.Logger) (*Application, error) {
	if err := godotenv.Load(); err != nil {
		logger.Error("Error loading .env file", "error", err)
	}

	var cfg config.Config

	// config values are loaded from the .env file
	// Default values are provided for these items and these should strictly be values for development mode only
	// make sure no production-level value is exposed as default value here
	cfg.BaseURL = env.GetString("BASE_URL", "http://localhost:4444")
	cfg.HttpPort = env.GetInt("HTTP_PORT", 4444)

	cfg.Db.Dsn = env.GetString("DB_DSN", "user:pass@localhost:5432/db")
	cfg.Db.Automigrate = env.GetBool("DB_AUTOMIGRATE", true)

	cfg.Jwt.SecretKey = env.GetString("JWT_SECRET_KEY", "ajf5nx3qmp6zquevllxocxqvyz42ypuo")

	// server errors won't be sent via email if the NOTIFICATIONS_EMAIL wasn't set in the .env file
	cfg.Notifications.Email = env.GetString("NOTIFICATIONS_EMAIL", "")

	cfg.Smtp.Host = env.GetString("SMTP_HOST", "example.smtp.host")
	cfg.Smtp.Port = env.GetInt("SMTP_PORT", 25)
	cfg.Smtp.Username = env.GetString("SMTP_USERNAME", "example_username")
	cfg.Smtp.Password = env.GetString("SMTP_PASSWORD", "pa55word")
	cfg.Smtp.From = env.GetString("SMTP_FROM", "Payrail <no_reply@payrail.example>")

	cfg.Redis.Addr = env.GetString("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Db = env.GetInt("REDIS_DB", 0)

	cfg.KafkaServers = env.GetString("KAFKA_SERVERS", "localhost:9092")

	cfg.Processor.BaseURL = env.GetString("PROCESSOR_BASE_URL", "http://localhost:8090")
	cfg.Processor.ApiKey = env.GetString("PROCESSOR_API_KEY", "")

	cfg.Withdrawal.MinimumAmount = env.GetFloat("WITHDRAWAL_MIN_AMOUNT", 50)
	cfg.Withdrawal.MaximumAmount = env.GetFloat("WITHDRAWAL_MAX_AMOUNT", 50000)
	cfg.Withdrawal.DailyLimit = env.GetFloat("WITHDRAWAL_DAILY_LIMIT", 0)
	cfg.Withdrawal.OtpThreshold = env.GetFloat("WITHDRAWAL_OTP_THRESHOLD", 1000)
	cfg.Withdrawal.OtpResendCooldownSeconds = env.GetInt("WITHDRAWAL_OTP_RESEND_COOLDOWN", 60)
	cfg.Withdrawal.OtpChallengeTTLSeconds = env.GetInt("WITHDRAWAL_OTP_TTL", 300)

	location, err := time.LoadLocation(env.GetString("WITHDRAWAL_TIMEZONE", "Europe/Istanbul"))
	if err != nil {
		return nil, fmt.Errorf("failed to load withdrawal timezone: %w", err)
	}
	cfg.Withdrawal.Location = location

	db, err := repository.New(cfg.Db.Dsn, cfg.Db.Automigrate)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	mailer, err := smtp.NewMailer(cfg.Smtp.Host, cfg.Smtp.Port, cfg.Smtp.Username, cfg.Smtp.Password, cfg.Smtp.From)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize mailer: %w", err)
	}

	redisCache := cache.New(cfg.Redis.Addr, cfg.Redis.Db)

	errorHandler := errHandler.New(cfg.Notifications.Email, mailer, logger)

	app := &Application{
		Config:       cfg,
		DB:           db,
		Logger:       logger,
		Mailer:       mailer,
		Cache:        redisCache,
		errorHandler: errorHandler,
	}

	app.helper = helper.New(&cfg.BaseURL, &app.WG, errorHandler)
	app.Kafka = stream.New(cfg.KafkaServers)
	app.Processor = processor.New(cfg.Processor.BaseURL, cfg.Processor.ApiKey)
	app.Notifier = notification.New(mailer, app.helper, cfg.Withdrawal.OtpChallengeTTLSeconds/60)

	app.Otp = otp.NewManager(cfg.Withdrawal.OtpResendCooldownSeconds, cfg.Withdrawal.OtpChallengeTTLSeconds)

	app.Commission = withdrawal.NewCommissionResolver(app.Processor, redisCache)

	app.Orchestrator = withdrawal.NewOrchestrator(&withdrawal.Orchestrator{
		Withdrawals: db.Withdrawal(),
		Wallets:     db.Wallet(),
		Gateway:     app.Processor,
		Challenges:  app.Otp,
		Commission:  app.Commission,
		Locks:       redisCache,
		Events:      app.Kafka,
		Notifier:    app.Notifier,
		Settings:    cfg.Withdrawal,
	})

	return app, nil
}

package main

import (
	"net/http"
	"os"
	"time"

	"agencecom/api/handler"
	apiMiddleware "agencecom/api/middleware"
	"agencecom/api/routes"
	"agencecom/config"
	"agencecom/internal/entity"
	"agencecom/internal/repository"
	"agencecom/internal/service"
	"agencecom/internal/utils"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}

	db, err := config.ConnectDB(cfg.DatabaseURL)
	if err != nil {
		logger.WithError(err).Fatal("store unavailable")
	}
	if err := db.AutoMigrate(&entity.User{}, &entity.AuditLog{}); err != nil {
		logger.WithError(err).Fatal("migration failed")
	}

	tokens := utils.TokenManager{
		Secret:     []byte(cfg.JWTSecret),
		Issuer:     cfg.JWTIssuer,
		SessionTTL: cfg.SessionTTL,
	}

	var notifier service.Notifier
	switch cfg.MailProvider {
	case "resend":
		notifier = service.NewResendMailer(cfg.ResendAPIKey, cfg.MailFrom)
	default:
		notifier = service.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.MailFrom)
	}

	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)

	accountService := service.NewAccountService(
		userRepo,
		auditRepo,
		notifier,
		service.BcryptPasswordHasher{},
		tokens,
		service.RealClock{},
		service.AccountConfig{
			AppBaseURL:      cfg.AppBaseURL,
			VerifyTTL:       cfg.VerifyTTL,
			ResendVerifyTTL: cfg.ResendVerifyTTL,
			ResetTTL:        cfg.ResetTTL,
		},
		logger,
	)

	contactService := service.NewContactService(notifier, service.ContactConfig{
		AdminEmail:  cfg.ContactTo,
		SendAck:     cfg.ContactSendAck,
		DedupWindow: cfg.ContactDedupWindow,
	}, logger)
	defer contactService.Close()

	validate := validator.New()
	accountHandler := handler.NewAccountHandler(accountService, validate)
	accountHandler.CookieDomain = cfg.CookieDomain
	accountHandler.SecureCookies = cfg.CookieSecure
	accountHandler.SessionTTL = cfg.SessionTTL
	contactHandler := handler.NewContactHandler(contactService)

	app := echo.New()
	app.HideBanner = true
	app.HidePort = true
	app.Use(echoMiddleware.Recover())
	app.Use(echoMiddleware.RequestLoggerWithConfig(echoMiddleware.RequestLoggerConfig{
		LogStatus:   true,
		LogMethod:   true,
		LogURI:      true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v echoMiddleware.RequestLoggerValues) error {
			entry := logger.WithFields(logrus.Fields{
				"status": v.Status,
				"method": v.Method,
				"uri":    v.URI,
				"ip":     v.RemoteIP,
			})
			if v.Error != nil {
				entry.WithError(v.Error).Error("request")
				return nil
			}
			entry.Info("request")
			return nil
		},
	}))

	authMiddleware := apiMiddleware.AuthMiddleware{Tokens: &tokens, CookieName: accountHandler.CookieName}
	router := routes.NewRouter(app, accountHandler, contactHandler, authMiddleware)
	router.RegisterRoutes()

	server := &http.Server{
		Addr:              cfg.Addr,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.WithField("addr", cfg.Addr).Info("server started")
	if err := app.StartServer(server); err != nil {
		logger.WithError(err).Fatal("server stopped")
	}
}

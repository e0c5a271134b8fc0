package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"studiobook/config"
	"studiobook/cron"
	"studiobook/database"
	bookingRepoPkg "studiobook/database/repository/booking"
	giftvoucherRepoPkg "studiobook/database/repository/giftvoucher"
	intentRepoPkg "studiobook/database/repository/intent"
	invoiceRepoPkg "studiobook/database/repository/invoice"
	membershipRepoPkg "studiobook/database/repository/membership"
	sessionRepoPkg "studiobook/database/repository/session"
	settingsRepoPkg "studiobook/database/repository/settings"
	voucherRepoPkg "studiobook/database/repository/voucher"
	waitinglistRepoPkg "studiobook/database/repository/waitinglist"
	"studiobook/handlers"
	"studiobook/middleware"
	"studiobook/routes"
	bookingSvc "studiobook/services/booking"
	cartSvc "studiobook/services/cart"
	checkoutSvc "studiobook/services/checkout"
	"studiobook/services/notification"
	voucherSvc "studiobook/services/voucher"
	waitinglistSvc "studiobook/services/waitinglist"
	"studiobook/utils"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/stripe/stripe-go/v76"
)

func main() {
	config.LoadConfig()
	logger := utils.GetLogger()

	database.InitDB()
	utils.InitCache()
	utils.InitLockCache()
	stripe.Key = config.AppConfig.StripeKey

	loc, err := time.LoadLocation(config.AppConfig.Timezone)
	if err != nil {
		logger.Sugar().Fatalf("main: invalid timezone %q: %v", config.AppConfig.Timezone, err)
	}

	// repositories.
	sessionRepo := sessionRepoPkg.NewMongoSessionRepo()
	bookingRepo := bookingRepoPkg.NewMongoBookingRepo()
	membershipRepo := membershipRepoPkg.NewMongoMembershipRepo()
	voucherRepo := voucherRepoPkg.NewMongoVoucherRepo()
	invoiceRepo := invoiceRepoPkg.NewMongoInvoiceRepo()
	giftVoucherRepo := giftvoucherRepoPkg.NewMongoGiftVoucherRepo()
	waitingListRepo := waitinglistRepoPkg.NewMongoWaitingListRepo()
	intentRepo := intentRepoPkg.NewMongoIntentRepo()
	settingsRepo := settingsRepoPkg.NewMongoSettingsRepo()

	// services.
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisQueueDB,
	})
	defer asynqClient.Close()
	notifier := notification.NewAsynqNotifier(asynqClient, logger)

	capacity := &bookingSvc.CapacityTracker{Bookings: bookingRepo}

	stateMachine := &bookingSvc.StateMachine{
		Sessions:        sessionRepo,
		Bookings:        bookingRepo,
		Memberships:     membershipRepo,
		Capacity:        capacity,
		Notifier:        notifier,
		Logger:          logger,
		Loc:             loc,
		MembershipGrace: time.Duration(config.AppConfig.MembershipGraceMinutes) * time.Minute,
	}

	coordinator := &waitinglistSvc.Coordinator{
		Entries:        waitingListRepo,
		Bookings:       bookingRepo,
		Booker:         stateMachine,
		Notifier:       notifier,
		Logger:         logger,
		PriorityEmails: config.WaitingListPriorityEmails(),
	}
	stateMachine.WaitingList = coordinator

	voucherEngine := &voucherSvc.Engine{
		Vouchers:    voucherRepo,
		Bookings:    bookingRepo,
		Memberships: membershipRepo,
		Invoices:    invoiceRepo,
		Logger:      logger,
	}

	cartStore := &cartSvc.Store{Client: utils.GetLockClient(), TTL: 7 * 24 * time.Hour}
	cartService := &cartSvc.Service{
		Bookings:     bookingRepo,
		Memberships:  membershipRepo,
		GiftVouchers: giftVoucherRepo,
		Vouchers:     voucherEngine,
		Store:        cartStore,
		Logger:       logger,
	}

	reconciler := &checkoutSvc.Reconciler{
		Cart:         cartService,
		Store:        cartStore,
		Invoices:     invoiceRepo,
		Intents:      intentRepo,
		Bookings:     bookingRepo,
		Memberships:  membershipRepo,
		GiftVouchers: giftVoucherRepo,
		Vouchers:     voucherRepo,
		Gateway:      &checkoutSvc.StripeGateway{},
		Lock:         &utils.AdvisoryLock{Client: utils.GetLockClient(), TTL: 30 * time.Second},
		Signer:       &checkoutSvc.Signer{Secret: []byte(config.AppConfig.InvoiceSigningSecret)},
		Notifier:     notifier,
		Logger:       logger,
		Currency:     config.AppConfig.Currency,
	}
	stateMachine.Refunds = reconciler

	flagCache := &utils.FlagCache{
		Client: utils.GetCacheClient(),
		TTL:    5 * time.Minute,
		Load:   settingsRepo.GetBool,
	}

	janitor := &cartSvc.Janitor{
		Sessions:     sessionRepo,
		Bookings:     bookingRepo,
		Memberships:  membershipRepo,
		GiftVouchers: giftVoucherRepo,
		WaitingList:  coordinator,
		Logger:       logger,
		Expiry:       time.Duration(config.AppConfig.CartExpiryMinutes) * time.Minute,
		Grace:        time.Duration(config.AppConfig.CheckoutGraceMinutes) * time.Minute,
	}
	cron.InitWorker(janitor, logger)
	cron.InitScheduler(logger)

	// Assemble the handler bundle.
	handlerBundle := &handlers.HandlerBundle{
		StateMachine: stateMachine,
		Capacity:     capacity,
		WaitingList:  coordinator,
		Vouchers:     voucherEngine,
		Cart:         cartService,
		CartStore:    cartStore,
		Checkout:     reconciler,

		Sessions:      sessionRepo,
		Bookings:      bookingRepo,
		Memberships:   membershipRepo,
		GiftVouchers:  giftVoucherRepo,
		Invoices:      invoiceRepo,
		VoucherRepo:   voucherRepo,
		Settings:      settingsRepo,
		Flags:         flagCache,
		CacheClient:   utils.GetCacheClient(),
		WebhookSecret: config.AppConfig.StripeWebhookSecret,
		Logger:        logger,
	}

	// Create the Gin router.
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(utils.ErrorHandler())
	router.Use(gin.Logger())
	router.Use(middleware.RateLimitMiddleware())

	routes.RegisterRoutes(router, handlerBundle)

	// Start the HTTP server.
	port := config.AppConfig.AppPort
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:    "0.0.0.0:" + port,
		Handler: router,
	}

	logger.Sugar().Infof("Starting server on %s...", srv.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Sugar().Fatalf("main: server failed to start: %v", err)
		}
	}()

	// Wait for an OS signal to gracefully shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Sugar().Info("main: server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Sugar().Fatalf("main: server forced to shutdown: %v", err)
	}

	logger.Sugar().Info("main: server stopped gracefully")
}

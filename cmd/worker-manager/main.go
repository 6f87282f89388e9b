// cmd/worker-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"member-match-workers/internal/ai"
	"member-match-workers/internal/ai/gemini"
	"member-match-workers/internal/common/config"
	"member-match-workers/internal/common/database"
	"member-match-workers/internal/common/logger"
	"member-match-workers/internal/common/observability"
	"member-match-workers/internal/matching"
	"member-match-workers/internal/repository"

	rwd "member-match-workers/internal/workers/digest/run-weekly-digest"
	sde "member-match-workers/internal/workers/digest/send-digest-email"
	fcm "member-match-workers/internal/workers/matching/find-collab-matches"
	fmm "member-match-workers/internal/workers/matching/find-member-matches"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting worker manager...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	obs := observability.New("member-match-workers")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init Zeebe Client with retry ---
	var zeebeClient zbc.Client
	err = retryWithBackoff(func() error {
		var err error
		zeebeClient, err = zbc.NewClient(&zbc.ClientConfig{
			GatewayAddress:         cfg.Camunda.BrokerAddress,
			UsePlaintextConnection: true,
		})
		return err
	}, 10, 2*time.Second, zapLog, "Zeebe client initialization")

	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var redis *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	members := repository.NewMemberRepository(pg.DB, redis.Client, 10*time.Minute, log)
	ranker := matching.NewRanker(matching.NewJitter(
		nil,
		cfg.Matching.JitterBound,
		cfg.Matching.AdHocScoreFloor,
		cfg.Matching.AdHocScoreCeiling,
	))

	// --- Init AI advisor (optional) ---
	var advisor *ai.Advisor
	if cfg.AI.Enabled {
		generator, err := gemini.NewGenerator(ctx, cfg.AI.APIKey, cfg.AI.Model)
		if err != nil {
			zapLog.Fatal("gemini client failed", zap.Error(err))
		}
		advisor = ai.NewAdvisor(generator, ai.AdvisorConfig{
			MaxMemberPool:   cfg.AI.MaxMemberPool,
			MaxCollabPool:   cfg.AI.MaxCollabPool,
			MemberShortlist: cfg.AI.MemberShortlist,
			CollabShortlist: cfg.AI.CollabShortlist,
		}, log)
		zapLog.Info("AI match advisor initialized", zap.String("model", cfg.AI.Model))
	} else {
		zapLog.Info("AI match advisor disabled, rule-based scoring only")
	}

	// --- Register Workers ---

	if cfg.Workers[fmm.TaskType].Enabled {
		var memberAdvisor fmm.MatchAdvisor
		if advisor != nil {
			memberAdvisor = advisor
		}
		handler := fmm.NewHandler(
			&fmm.Config{
				DefaultLimit: cfg.Matching.DefaultLimit,
				AITimeout:    config.GetDuration(cfg.AI.Timeout),
				Timeout:      config.GetDuration(cfg.Workers[fmm.TaskType].Timeout),
			},
			members, ranker, memberAdvisor, obs, log,
		)
		startWorker(zeebeClient, fmm.TaskType, cfg.Workers[fmm.TaskType], handler.Handle, zapLog)
	}

	if cfg.Workers[fcm.TaskType].Enabled {
		var collabAdvisor fcm.CollabAdvisor
		if advisor != nil {
			collabAdvisor = advisor
		}
		handler := fcm.NewHandler(
			&fcm.Config{
				MaxPool:   cfg.AI.MaxCollabPool,
				Shortlist: cfg.AI.CollabShortlist,
				AITimeout: config.GetDuration(cfg.AI.Timeout),
				Timeout:   config.GetDuration(cfg.Workers[fcm.TaskType].Timeout),
			},
			members, ranker, collabAdvisor, obs, log,
		)
		startWorker(zeebeClient, fcm.TaskType, cfg.Workers[fcm.TaskType], handler.Handle, zapLog)
	}

	// The email handler doubles as the digest run's dispatcher.
	emailHandler, err := sde.NewHandler(
		&sde.Config{
			EmailEnabled: cfg.Digest.Email.Enabled,
			FromEmail:    cfg.Digest.Email.FromEmail,
			AWSRegion:    cfg.Digest.AWS.Region,
			Timeout:      config.GetDuration(cfg.Workers[sde.TaskType].Timeout),
		},
		pg.DB, obs, log,
	)
	if err != nil {
		zapLog.Fatal("failed to create send-digest-email handler", zap.Error(err))
	}

	if cfg.Workers[sde.TaskType].Enabled {
		startWorker(zeebeClient, sde.TaskType, cfg.Workers[sde.TaskType], emailHandler.Handle, zapLog)
	}

	if cfg.Workers[rwd.TaskType].Enabled {
		handler := rwd.NewHandler(
			&rwd.Config{
				MinScore:   cfg.Digest.MinScore,
				MinMatches: cfg.Digest.MinMatches,
				MaxMatches: cfg.Digest.MaxMatches,
				ScoreCap:   cfg.Matching.DigestScoreCap,
				Timeout:    config.GetDuration(cfg.Workers[rwd.TaskType].Timeout),
			},
			members, emailHandler, members, obs, log,
		)
		startWorker(zeebeClient, rwd.TaskType, cfg.Workers[rwd.TaskType], handler.Handle, zapLog)
	}

	zapLog.Info("All workers registered successfully")

	// --- Health & Metrics Server ---
	go func() {
		http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "healthy",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "ready",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.Handle("/metrics", promhttp.Handler())
		zapLog.Info("Health/Metrics server listening on :8080")
		if err := http.ListenAndServe(":8080", nil); err != nil {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")

	if err := zeebeClient.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}

func startWorker(client zbc.Client, taskType string, wcfg config.WorkerConfig, handlerFunc func(worker.JobClient, entities.Job), log *zap.Logger) {
	if !wcfg.Enabled {
		log.Info("worker disabled", zap.String("taskType", taskType))
		return
	}

	client.NewJobWorker().
		JobType(taskType).
		Handler(handlerFunc).
		MaxJobsActive(wcfg.MaxJobsActive).
		Timeout(time.Duration(wcfg.Timeout) * time.Millisecond).
		Open()

	log.Info("worker started",
		zap.String("taskType", taskType),
		zap.Int("maxJobsActive", wcfg.MaxJobsActive),
		zap.Int("timeout_ms", wcfg.Timeout),
	)
}

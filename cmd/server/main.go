package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/convault/convault/internal/config"
	"github.com/convault/convault/internal/db"
	"github.com/convault/convault/internal/httpapi"
	"github.com/convault/convault/internal/httpapi/handlers"
	"github.com/convault/convault/internal/importer"
	"github.com/convault/convault/internal/observability"
	"github.com/convault/convault/internal/provider"
	"github.com/convault/convault/internal/queue"
	"github.com/convault/convault/internal/secrets"
)

func main() {
	cfg := config.Load()

	logger := observability.InitLogger(cfg.Env == "production")

	cipher, err := secrets.NewCipher(cfg.EncryptionKey)
	if err != nil {
		log.Fatalf("cipher: %v", err)
	}

	gdb, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatalf("db migrate: %v", err)
	}

	reg := provider.NewRegistry()
	reg.Register(provider.NewOpenAIAdapter(cfg.OpenAIBaseURL))
	reg.Register(provider.NewAnthropicAdapter(cfg.AnthropicBaseURL))

	promReg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(promReg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := importer.NewRunner(importer.NewRepo(gdb), reg, cipher, metrics, logger)

	var dispatcher queue.Dispatcher
	switch cfg.JobDispatch {
	case "amqp":
		dispatcher, err = queue.NewAMQPDispatcher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			log.Fatalf("amqp dispatcher: %v", err)
		}
	default:
		dispatcher = queue.NewInlineDispatcher(ctx, runner, logger)
	}
	defer dispatcher.Close()

	h := handlers.New(gdb, cfg, cipher, reg, dispatcher, logger)
	router := httpapi.NewRouter(h, metrics, promReg)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	go func() {
		logger.Info("server listening", "addr", cfg.HTTPAddr, "dispatch", cfg.JobDispatch)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
}

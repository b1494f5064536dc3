package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"medichat/internal/api"
	"medichat/internal/logger"
	"medichat/internal/service/ai"
	"medichat/internal/service/knowledge"
	"medichat/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the answer service",
	Long: `Serve GET / and POST /chat. Questions are answered by the configured
LLM provider using passages retrieved from the knowledge directory.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.L()
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	base, err := knowledge.Load(ctx, cfg.Assistant.KnowledgeDir, knowledge.Options{
		TopK:         cfg.Assistant.TopK,
		ChunkSize:    cfg.Assistant.ChunkSize,
		ChunkOverlap: cfg.Assistant.ChunkOverlap,
		Logger:       log,
	})
	if err != nil {
		return fmt.Errorf("load knowledge base: %w", err)
	}
	chatModel, err := ai.NewChatModel(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init chat model: %w", err)
	}
	service, err := ai.NewService(chatModel,
		ai.WithRetriever(base),
		ai.WithSystemPrompt(cfg.Assistant.SystemPrompt),
		ai.WithLogger(log),
	)
	if err != nil {
		return fmt.Errorf("init ai service: %w", err)
	}

	workers := worker.NewManager(service, worker.Config{
		MinWorkers:  cfg.BasicConfig.MinWorkers,
		MaxWorkers:  cfg.BasicConfig.MaxWorkers,
		QueueSize:   cfg.BasicConfig.QueueSize,
		IdleTimeout: time.Duration(cfg.BasicConfig.WorkerIdleTimeout) * time.Minute,
	}, log)
	defer workers.Stop()

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(api.NewHandler(workers, log), cfg.CORS.AllowedOrigins, log)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":8000"
	}
	server := &http.Server{Addr: addr, Handler: router}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("answer service listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server stopped: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

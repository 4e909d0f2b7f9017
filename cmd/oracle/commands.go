package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/nusantara-labs/oracle/pkg/models"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve metrics and health endpoints and answer queries from stdin",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Logging)

			a, err := buildApp(cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
			mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(a.gateway.HealthCheck())
			})

			server := &http.Server{
				Addr:              cfg.Server.ListenAddr,
				Handler:           mux,
				ReadHeaderTimeout: 10 * time.Second,
			}
			go func() {
				logger.Info("serving", "addr", cfg.Server.ListenAddr)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("http server stopped", "error", err)
				}
			}()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			runREPL(ctx, a)

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}
}

// runREPL answers one query per stdin line until EOF or cancellation.
func runREPL(ctx context.Context, a *app) {
	scanner := bufio.NewScanner(os.Stdin)
	lines := make(chan string)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	fmt.Println("oracle ready; type a question, ctrl-d to exit")
	for {
		fmt.Print("> ")
		select {
		case <-ctx.Done():
			fmt.Println()
			return
		case line, ok := <-lines:
			if !ok {
				fmt.Println()
				return
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			result, err := a.orchestrator.ProcessQuery(ctx, line, "repl")
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				continue
			}
			printResult(result)
		}
	}
}

func newAskCommand() *cobra.Command {
	var userID string
	var stream bool

	cmd := &cobra.Command{
		Use:   "ask [query]",
		Short: "Answer a single query and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Logging)

			a, err := buildApp(cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			query := strings.Join(args, " ")
			if stream {
				return askStreaming(cmd.Context(), a, query, userID)
			}

			result, err := a.orchestrator.ProcessQuery(cmd.Context(), query, userID)
			if err != nil {
				return err
			}
			printResult(result)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "anonymous", "user ID for memory and context")
	cmd.Flags().BoolVar(&stream, "stream", false, "stream the answer as it is produced")
	return cmd
}

func askStreaming(ctx context.Context, a *app, query, userID string) error {
	for event := range a.orchestrator.ProcessQueryStream(ctx, query, userID) {
		switch event.Type {
		case models.StreamToken:
			fmt.Print(event.Payload)
		case models.StreamToolCall:
			fmt.Fprintf(os.Stderr, "[tool: %s]\n", event.Payload)
		case models.StreamDone:
			fmt.Println()
			if event.Result != nil {
				fmt.Fprintf(os.Stderr, "model=%s evidence=%.2f\n",
					event.Result.ModelUsed, event.Result.EvidenceScore)
			}
		}
	}
	return ctx.Err()
}

func printResult(result *models.CoreResult) {
	fmt.Println(result.Answer)
	fmt.Fprintf(os.Stderr, "model=%s evidence=%.2f routes=%d\n",
		result.ModelUsed, result.EvidenceScore, result.RoutingStats.TotalRoutes)
}

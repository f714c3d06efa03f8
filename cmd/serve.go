// cmd/serve.go
package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/markb/linglite/internal/db"
	"github.com/markb/linglite/internal/log"
	"github.com/markb/linglite/internal/observability"
	"github.com/markb/linglite/internal/server"
	"github.com/markb/linglite/internal/storage"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the LingLite server",
	Long:  `Starts the HTTP server with auth, profile, friends, chat, storage and realtime endpoints.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, _ := cmd.Flags().GetString("db")
		port, _ := cmd.Flags().GetInt("port")
		host, _ := cmd.Flags().GetString("host")
		domain, _ := cmd.Flags().GetString("domain")
		certDir, _ := cmd.Flags().GetString("cert-dir")

		jwtSecret := os.Getenv("LINGLITE_JWT_SECRET")
		if jwtSecret == "" {
			jwtSecret = "super-secret-jwt-key-please-change-in-production"
			fmt.Println("Warning: Using default JWT secret. Set LINGLITE_JWT_SECRET in production.")
		}

		log.Init(&log.Config{
			Level:  os.Getenv("LINGLITE_LOG_LEVEL"),
			Format: os.Getenv("LINGLITE_LOG_FORMAT"),
		})

		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return fmt.Errorf("database not found at %s. Run 'linglite init' first", dbPath)
		}

		database, err := db.New(dbPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer database.Close()

		// Run migrations in case schema is outdated
		if err := database.RunMigrations(); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}

		tel, telCleanup, err := observability.Init(cmd.Context(), buildTelemetryConfig())
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		defer telCleanup()
		if tel != nil {
			if err := db.CreateMetricsTables(database.DB); err != nil {
				return fmt.Errorf("failed to create metrics tables: %w", err)
			}
			tel.SetDB(database.DB)
		}

		srv := server.New(database, server.Config{
			JWTSecret:     jwtSecret,
			StorageConfig: buildStorageConfig(cmd, host, port, domain),
			Telemetry:     tel,
		})

		addr := fmt.Sprintf("%s:%d", host, port)
		fmt.Printf("Starting LingLite on %s\n", addr)
		fmt.Printf("  Auth API:     http://%s/auth/v1\n", addr)
		fmt.Printf("  App API:      http://%s/api/v1\n", addr)
		fmt.Printf("  Storage API:  http://%s/storage/v1\n", addr)
		fmt.Printf("  Realtime WS:  ws://%s/realtime/v1/websocket\n", addr)

		errCh := make(chan error, 1)
		go func() {
			if domain != "" {
				errCh <- srv.ListenAndServeTLS(domain, certDir, addr, fmt.Sprintf("%s:443", host))
			} else {
				errCh <- srv.ListenAndServe(addr)
			}
		}()

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

		select {
		case err := <-errCh:
			if err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		case sig := <-stop:
			fmt.Printf("Received %s, shutting down\n", sig)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		}
	},
}

// buildStorageConfig assembles storage settings from CLI flags and
// LINGLITE_* environment variables. Flags win over environment.
func buildStorageConfig(cmd *cobra.Command, host string, port int, domain string) *storage.Config {
	cfg := &storage.Config{
		Backend:   "local",
		LocalPath: "./storage",
	}

	if backend := os.Getenv("LINGLITE_STORAGE_BACKEND"); backend != "" {
		cfg.Backend = backend
	}
	if path := os.Getenv("LINGLITE_STORAGE_PATH"); path != "" {
		cfg.LocalPath = path
	}
	cfg.S3Bucket = os.Getenv("LINGLITE_S3_BUCKET")
	cfg.S3Region = os.Getenv("LINGLITE_S3_REGION")
	cfg.S3Endpoint = os.Getenv("LINGLITE_S3_ENDPOINT")
	cfg.S3AccessKey = os.Getenv("LINGLITE_S3_ACCESS_KEY")
	cfg.S3SecretKey = os.Getenv("LINGLITE_S3_SECRET_KEY")
	cfg.S3ForcePathStyle = os.Getenv("LINGLITE_S3_PATH_STYLE") == "true"

	if backend, _ := cmd.Flags().GetString("storage-backend"); backend != "" {
		cfg.Backend = backend
	}
	if path, _ := cmd.Flags().GetString("storage-path"); path != "" {
		cfg.LocalPath = path
	}

	if base := os.Getenv("LINGLITE_PUBLIC_URL"); base != "" {
		cfg.PublicBaseURL = base + "/storage/v1"
	} else if domain != "" {
		cfg.PublicBaseURL = fmt.Sprintf("https://%s/storage/v1", domain)
	} else {
		cfg.PublicBaseURL = fmt.Sprintf("http://%s:%d/storage/v1", host, port)
	}

	return cfg
}

// buildTelemetryConfig reads OpenTelemetry settings from the environment.
func buildTelemetryConfig() *observability.Config {
	cfg := observability.NewConfig()

	if exporter := os.Getenv("LINGLITE_OTEL_EXPORTER"); exporter != "" {
		cfg.Exporter = exporter
		cfg.MetricsEnabled = true
		cfg.TracesEnabled = true
	}
	if endpoint := os.Getenv("LINGLITE_OTEL_ENDPOINT"); endpoint != "" {
		cfg.Endpoint = endpoint
	}

	return cfg
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("db", "data.db", "Path to database file")
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().String("domain", "", "Public domain for HTTPS with Let's Encrypt")
	serveCmd.Flags().String("cert-dir", "./certs", "Directory for cached TLS certificates")
	serveCmd.Flags().String("storage-backend", "", "Media storage backend: local or s3")
	serveCmd.Flags().String("storage-path", "", "Directory for local media storage")
}

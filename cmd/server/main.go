package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/dy-extract-go/api"
	"github.com/yourusername/dy-extract-go/api/handlers"
	"github.com/yourusername/dy-extract-go/internal/app"
	"github.com/yourusername/dy-extract-go/pkg/logger"
)

const shutdownTimeout = 30 * time.Second

var (
	serverMode = flag.Bool("server-mode", false, "Internal flag: run in server mode (called by daemon)")
	configPath = flag.String("config", "", "Config file path")
)

func main() {
	flag.Parse()

	if !*serverMode {
		startAsDaemon()
		return
	}

	runServer()
}

// startAsDaemon re-executes the binary in server mode, detached, and exits
func startAsDaemon() {
	execPath, err := os.Executable()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get executable path: %v\n", err)
		os.Exit(1)
	}

	cwd, err := os.Getwd()
	if err != nil {
		cwd = "/"
	}

	args := []string{"-server-mode"}
	if *configPath != "" {
		args = append(args, "-config", *configPath)
	}

	cmd := exec.Command(execPath, args...)
	cmd.Dir = cwd
	cmd.Env = os.Environ()
	detach(cmd)

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open %s: %v\n", os.DevNull, err)
		os.Exit(1)
	}
	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull

	if err := cmd.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start daemon: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Server started as daemon (PID: %d)\n", cmd.Process.Pid)
	os.Exit(0)
}

func runServer() {
	config, err := app.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:      config.Logging.Level,
		Format:     config.Logging.Format,
		OutputPath: config.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	multiLog, err := logger.NewMultiLogger(logger.MultiLoggerConfig{
		Level:   config.Logging.Level,
		LogsDir: config.Download.LogsDir,
	})
	if err != nil {
		log.Fatal("Failed to initialize category logs", zap.Error(err))
	}
	defer multiLog.Close()

	if err := os.MkdirAll(config.Download.OutputDir, 0755); err != nil {
		log.Fatal("Failed to create output directory", zap.Error(err))
	}

	log.Info("Starting dy-extract server",
		zap.String("version", handlers.Version),
		zap.String("host", config.Server.Host),
		zap.Int("port", config.Server.Port),
		zap.String("output_dir", config.Download.OutputDir),
		zap.Bool("browser", config.Browser.Enabled),
		zap.Strings("disabled_strategies", config.Download.DisabledStrategies))

	engine := app.NewEngine(config, multiLog, log)

	gin.SetMode(gin.ReleaseMode)
	router := api.SetupRouter(engine, api.RouterOptions{
		Config:      config,
		Strategies:  engine.StrategyNames(),
		MultiLogger: multiLog,
		Logger:      log,
	})

	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	baseCtx, cancelRuns := context.WithCancel(context.Background())
	defer cancelRuns()

	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info("Received shutdown signal")
	case err := <-serverErr:
		log.Error("HTTP server failed", zap.Error(err))
		multiLog.LogAppError("HTTP server failed", zap.Error(err))
	}

	log.Info("Shutting down server...")

	// cancel in-flight runs so their handlers can still answer with partial results
	cancelRuns()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}

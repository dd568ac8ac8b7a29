package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"crossgate/config"
	"crossgate/core/anchor"
	"crossgate/core/token"
	"crossgate/facilitator"
	"crossgate/gateway"
	"crossgate/observability/logging"
	"crossgate/observability/otel"
	"crossgate/rpc"
	"crossgate/storage"
)

const version = "0.1.0"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("CROSSGATE_ENV"))

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.SetupWithRotation("crossgated", env, cfg.LogFile, cfg.LogMaxSizeMB)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.TelemetryMetrics || cfg.TelemetryTraces {
		shutdown, err := otel.Init(ctx, otel.Config{
			ServiceName: "crossgated",
			Version:     version,
			Environment: env,
			Endpoint:    cfg.TelemetryEndpoint,
			Insecure:    cfg.TelemetryInsecure,
			Headers:     otel.ParseHeaders(cfg.TelemetryHeaders),
			Metrics:     cfg.TelemetryMetrics,
			Traces:      cfg.TelemetryTraces,
		})
		if err != nil {
			logger.Error("telemetry init failed", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Error("telemetry shutdown failed", "error", err)
			}
		}()
	}

	gwAddr, err := cfg.ParseGatewayAddress()
	if err != nil {
		logger.Error("invalid gateway address", "error", err)
		os.Exit(1)
	}
	cgwAddr, err := cfg.ParseCoGatewayAddress()
	if err != nil {
		logger.Error("invalid cogateway address", "error", err)
		os.Exit(1)
	}
	bounty, err := cfg.ParseBounty()
	if err != nil {
		logger.Error("invalid bounty", "error", err)
		os.Exit(1)
	}

	originDB, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "origin"))
	if err != nil {
		logger.Error("open origin store", "error", err)
		os.Exit(1)
	}
	defer originDB.Close()
	auxDB, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "auxiliary"))
	if err != nil {
		logger.Error("open auxiliary store", "error", err)
		os.Exit(1)
	}
	defer auxDB.Close()

	originAnchor := anchor.NewRootRegistry()
	auxAnchor := anchor.NewRootRegistry()

	gw, err := gateway.NewGateway(gateway.GatewayConfig{
		Config: gateway.Config{
			Address: gwAddr,
			Remote:  cgwAddr,
			Anchor:  auxAnchor,
			Store:   storage.NewKV(originDB),
			Bounty:  bounty,
			Logger:  logger,
		},
		Token: token.NewLedger(cfg.TokenSymbol),
	})
	if err != nil {
		logger.Error("construct gateway", "error", err)
		os.Exit(1)
	}

	cgw, err := gateway.NewCoGateway(gateway.CoGatewayConfig{
		Config: gateway.Config{
			Address: cgwAddr,
			Remote:  gwAddr,
			Anchor:  originAnchor,
			Store:   storage.NewKV(auxDB),
			Bounty:  bounty,
			Logger:  logger,
		},
		Token: token.NewLedger(cfg.TokenSymbol),
	})
	if err != nil {
		logger.Error("construct cogateway", "error", err)
		os.Exit(1)
	}

	if _, err := facilitator.New(facilitator.Config{
		Gateway:         gw,
		CoGateway:       cgw,
		OriginAnchor:    originAnchor,
		AuxiliaryAnchor: auxAnchor,
		Worker:          gwAddr,
		Logger:          logger,
	}); err != nil {
		logger.Error("construct facilitator", "error", err)
		os.Exit(1)
	}

	server := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           otelhttp.NewHandler(rpc.NewRouter(gw), "crossgated"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("status API listening", "address", cfg.ListenAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("status API failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("status API shutdown failed", "error", err)
	}
}

// Package main provides the standalone sensor agent binary: it tails the
// IDS alert log and feeds records into the raw stream.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"sentinel-agent/src/broker"
	"sentinel-agent/src/config"
	"sentinel-agent/src/ingest"
	"sentinel-agent/src/logger"
	"sentinel-agent/src/sensor"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewConsoleLogger()

	log.Info("Starting Sentinel Sensor Agent")
	log.Info("Alert log: %s, Redis: %s", cfg.SensorAlertFile, cfg.RedisAddr)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client, err := broker.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to Redis: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	stream := broker.NewRedisStream(client, cfg.PendingMinIdle)
	svc := ingest.NewService(stream, log)
	agent := sensor.NewAgent(cfg.SensorAlertFile, svc, log, sensor.Options{})

	if err := agent.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Agent error: %v\n", err)
		os.Exit(1)
	}

	log.Info("Sensor agent stopped")
}

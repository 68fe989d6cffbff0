// Package main provides the standalone forwarder binary: it relays
// enriched alerts from the processed stream to a Kafka topic.
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
	"sentinel-agent/src/forward"
	"sentinel-agent/src/logger"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	if len(cfg.KafkaBrokers) == 0 {
		fmt.Fprintln(os.Stderr, "ERROR: KAFKA_BROKERS environment variable is required for the forwarder agent")
		fmt.Fprintln(os.Stderr, "Example: export KAFKA_BROKERS=localhost:9092")
		os.Exit(1)
	}

	log := logger.NewConsoleLogger()

	log.Info("Starting Sentinel Forwarder")
	log.Info("Kafka brokers: %v, topic: %s", cfg.KafkaBrokers, cfg.KafkaTopic)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client, err := broker.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to Redis: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	producer, err := forward.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create Kafka producer: %v\n", err)
		os.Exit(1)
	}
	defer producer.Close()

	stream := broker.NewRedisStream(client, cfg.PendingMinIdle)
	bridge := forward.NewBridge(stream, producer, log, forward.Options{
		BatchSize:     cfg.BatchSize,
		BlockInterval: cfg.BlockInterval,
	})

	if err := bridge.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Forwarder error: %v\n", err)
		os.Exit(1)
	}

	log.Info("Forwarder stopped")
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"joke-pipeline/internal/collector"
	"joke-pipeline/internal/config"
	"joke-pipeline/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if errors.Is(err, config.ErrEmptyDBPassword) {
		fmt.Println("Note: DB password not required for a collector run")
		cfg, err = config.Read()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init("debug", nil)

	fmt.Println("=== Testing Collector ===")
	fmt.Printf("url=%s window=%s pause=%s timezone=%s on_malformed=%s\n",
		cfg.API.URL, cfg.Collector.Duration, cfg.Collector.Pause,
		cfg.Collector.Timezone, cfg.Collector.OnMalformed)
	fmt.Println()

	c, err := collector.New(cfg.API, cfg.Collector)
	if err != nil {
		logger.Error("Failed to create collector", logger.Err(err))
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Collector.Duration+60*time.Second)
	defer cancel()

	jokes, err := c.Collect(ctx)
	if err != nil {
		logger.Error("Collect error", logger.Err(err))
	}

	fmt.Printf("Collected %d jokes\n", len(jokes))
	for i, joke := range jokes {
		fmt.Printf("  %d: [%d/%s] %s %s (%s)\n", i+1, joke.ID, joke.Type, joke.Setup, joke.Punchline,
			joke.Timestamp.Format("2006-01-02 15:04:05 MST"))
	}

	fmt.Println()
	fmt.Println("=== Test Complete ===")
}

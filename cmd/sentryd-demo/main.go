// sentryd-demo wires the orchestration core to the demo HTTP/SSE transport
// and a handful of illustrative analyzers. It is wiring proof, not a
// production analyzer deployment — see pkg/analyzer's package doc.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/mailtriage/sentryd/pkg/analyzer"
	"github.com/mailtriage/sentryd/pkg/config"
	"github.com/mailtriage/sentryd/pkg/job"
	"github.com/mailtriage/sentryd/pkg/orchestrator"
	"github.com/mailtriage/sentryd/pkg/transport"
	"github.com/mailtriage/sentryd/pkg/verdict"
	"github.com/mailtriage/sentryd/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("Warning: Could not load %s file: %v", envPath, err)
		log.Printf("Continuing with existing environment variables...")
	} else {
		log.Printf("Loaded environment from %s", envPath)
	}

	ctx := context.Background()
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		log.Fatalf("Failed to initialize configuration: %v", err)
	}

	slog.Info("starting sentryd-demo", "version", version.Full(), "config_dir", *configDir)

	registry := job.NewRegistry(cfg.Bus.BufferSize, cfg.JobRegistry.JobBufferSize)
	analyzers := transport.Analyzers(demoAnalyzers())

	server := transport.NewServer(registry, analyzers)

	slog.Info("listening", "addr", cfg.Transport.Addr)
	if err := server.Run(cfg.Transport.Addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// demoAnalyzers returns the illustrative analyzers from pkg/analyzer, the
// same shapes exercised by its test suite: a static task set (S1), a task
// set that grows after registration (S2), and an entity feed/investigate
// pair (S3).
func demoAnalyzers() []orchestrator.Analyzer {
	entities := []string{"10.0.0.1", "example.com", "sha256:deadbeef"}
	return []orchestrator.Analyzer{
		&analyzer.Static{
			AnalyzerName: "header-scan",
			TaskCount:    3,
			Produce: func(i int) verdict.Verdict {
				return verdict.Verdict{Kind: "header", Value: i}
			},
		},
		&analyzer.Expanding{AnalyzerName: "link-scan"},
		&analyzer.Feed{AnalyzerName: "entity-feed", Entities: entities},
		&analyzer.Entity{
			AnalyzerName:     "entity-investigate",
			ExpectedEntities: len(entities),
		},
	}
}

package main

import (
	"database/sql"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"civicpipe/internal/analyzer"
	"civicpipe/internal/config"
	"civicpipe/internal/distlock"
	"civicpipe/internal/fetchref"
	"civicpipe/internal/httpapi"
	"civicpipe/internal/llm"
	"civicpipe/internal/migrate"
	"civicpipe/internal/pipeline"
	"civicpipe/internal/promptclient"
	"civicpipe/internal/store"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadAppConfig(*configPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{}))

	if err := migrate.Run(cfg.Database.DSN); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	conn, err := sql.Open("pgx", cfg.Database.DSN)
	if err != nil {
		log.Fatalf("open db failed: %v", err)
	}
	conn.SetMaxOpenConns(20)
	conn.SetMaxIdleConns(10)
	conn.SetConnMaxLifetime(30 * time.Minute)

	manifestStore := store.New(store.NewSQL(conn))

	llmClient, err := llm.NewClientFromConfig(llm.Config{
		DefaultProvider: cfg.LLM.DefaultProvider,
		OpenAI:          llm.ProviderConfig(cfg.LLM.OpenAI),
		Anthropic:       llm.ProviderConfig(cfg.LLM.Anthropic),
		Google:          llm.ProviderConfig(cfg.LLM.Google),
	}, "", "")
	if err != nil {
		log.Fatalf("configure llm client failed: %v", err)
	}

	structuralAnalyzer := analyzer.New(llmClient, promptclient.NewEmbeddedClient())
	httpFetcher := fetchref.NewHTTPFetcher(30 * time.Second)
	downloadClient := &http.Client{Timeout: 5 * time.Minute}

	orch := pipeline.New(httpFetcher, structuralAnalyzer, manifestStore, downloadClient, downloadClient)
	orch.Logger = logger

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		orch.Locker = distlock.New(rdb, "civicpipe:lock:")
	}

	app := httpapi.NewServer(orch, logger)

	addr := cfg.Server.Host + ":" + portOrDefault(cfg.Server.Port)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

func portOrDefault(port int) string {
	if port == 0 {
		return "8080"
	}
	return strconv.Itoa(port)
}

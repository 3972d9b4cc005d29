package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/hazemksouri/parley/internal/chat"
	"github.com/hazemksouri/parley/internal/completion"
	"github.com/hazemksouri/parley/internal/config"
	"github.com/hazemksouri/parley/internal/history"
	"github.com/hazemksouri/parley/internal/providers"
	"github.com/hazemksouri/parley/internal/storage"
	"github.com/hazemksouri/parley/internal/websearch"
)

func main() {
	// Load .env if present; real environment still wins.
	_ = godotenv.Load()

	dbFlag := flag.String("db", "", "Path to the session database (default: user config dir)")
	flag.Parse()

	if err := run(context.Background(), *dbFlag); err != nil {
		log.Fatalf("parley failed: %v", err)
	}
}

func run(ctx context.Context, dbPath string) error {
	cfgManager, err := config.NewManager()
	if err != nil {
		return err
	}
	cfg, err := cfgManager.Load()
	if err != nil {
		log.Printf("failed to load config, continuing with defaults: %v", err)
		cfg = &config.Config{}
	}
	cfg.ApplyEnv()

	provider, modelName, err := providers.NewProviderFromConfig(cfg)
	if err != nil {
		return err
	}
	log.Printf("using model %s", modelName)

	if cfg.SearchAPIKey == "" {
		log.Printf("no search API key configured; web search will be unavailable")
	}
	searcher := websearch.NewClient(cfg.SearchAPIKey)

	completer := completion.NewClient(provider, searcher, completion.ChatOptions{
		Temperature:     0.7,
		MaxOutputTokens: 1024,
	})

	if dbPath == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			return fmt.Errorf("failed to get user config dir: %w", err)
		}
		dir := filepath.Join(configDir, "parley")
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create data dir: %w", err)
		}
		dbPath = filepath.Join(dir, "sessions.db")
	}

	persister, err := storage.NewStore(ctx, dbPath)
	if err != nil {
		return err
	}
	defer persister.Close()

	r := newREPL()

	store := chat.NewStore(chat.StoreConfig{
		Completer: completer,
		Persister: persister,
		Confirm:   r.confirm,
		OnStatus:  r.showStatus,
	})
	if err := store.Load(); err != nil {
		return fmt.Errorf("failed to load sessions: %w", err)
	}

	index, err := history.NewIndex()
	if err != nil {
		log.Printf("history search disabled: %v", err)
	} else {
		defer index.Close()
		if err := index.Rebuild(store.Sessions()); err != nil {
			log.Printf("failed to index history: %v", err)
		}
	}

	return r.loop(ctx, store, index)
}

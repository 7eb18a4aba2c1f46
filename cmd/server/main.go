package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"slidecast/internal/api"
	"slidecast/internal/config"
	"slidecast/internal/deck"
	"slidecast/internal/hub"
	"slidecast/internal/questions"
	"slidecast/internal/routers"
	"slidecast/internal/watcher"
)

func main() {
	cfg := config.LoadConfig()

	root := &cobra.Command{
		Use:          "slidecast",
		Short:        "Serve a slide deck with a synced presenter console",
		SilenceUsage: true,
	}

	serve := &cobra.Command{
		Use:   "serve <path|url>",
		Short: "Serve a deck directory or proxy a remote deck",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runServe(cfg, args[0])
		},
	}
	serve.Flags().StringVarP(&cfg.Port, "port", "p", cfg.Port, "port to listen on")
	serve.Flags().StringVarP(&cfg.PresenterKey, "key", "k", cfg.PresenterKey, "presenter key (random if empty)")
	serve.Flags().BoolVarP(&cfg.Watch, "watch", "w", cfg.Watch, "reload displays on deck changes")
	serve.Flags().StringVar(&cfg.QuestionsDB, "questions-db", cfg.QuestionsDB, "path to the questions database")

	root.AddCommand(serve)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cfg *config.Config, target string) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer logger.Sync()

	source, err := newSource(target)
	if err != nil {
		return err
	}

	deckConfig, err := source.Config()
	if err != nil {
		return fmt.Errorf("failed to load presenter config: %w", err)
	}

	presenterKey := cfg.PresenterKey
	if presenterKey == "" {
		presenterKey = config.GenerateKey()
	}

	h := hub.New(logger, deckConfig, presenterKey)

	var store *questions.Store
	if dir, ok := source.(*deck.Dir); ok {
		dbPath := cfg.QuestionsDB
		if dbPath == "" {
			dbPath = filepath.Join(dir.Root(), ".slidecast-questions.db")
		}
		store, err = questions.Open(dbPath)
		if err != nil {
			return err
		}
		defer store.Close()

		if cfg.Watch {
			w, err := watcher.New(dir.Root(), logger, func(string) {
				h.BroadcastReload(true)
			})
			if err != nil {
				return fmt.Errorf("failed to watch deck: %w", err)
			}
			defer w.Close()
		}
	}

	handlers := api.NewHandlers(logger, h, source, store, presenterKey)
	router := routers.New(handlers)

	addr := ":" + cfg.Port
	logger.Info("slidecast listening",
		zap.String("addr", addr),
		zap.String("deck", target),
		zap.String("presenterKey", presenterKey),
		zap.String("sessionId", h.SessionID()))
	fmt.Printf("presenter console: http://localhost:%s/_/presenter?key=%s\n", cfg.Port, presenterKey)

	return http.ListenAndServe(addr, router)
}

func newSource(target string) (deck.Source, error) {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return deck.NewRemote(target)
	}
	return deck.NewDir(target)
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dreschagin/process-detector/internal/bootstrap"
	"github.com/dreschagin/process-detector/pkg/config"
	"github.com/dreschagin/process-detector/pkg/logger"
)

var (
	historyDir string
	backend    string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "process-detector",
	Short:         "Анализ журналов событий тикетов: задержки, SLA, риск и тренды по тенантам",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&historyDir, "history-dir", "", "каталог истории (по умолчанию HISTORY_DIR)")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "", "backend истории: file или postgres (по умолчанию HISTORY_BACKEND)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "уровень логирования")
}

// session объединяет конфигурацию, logger и открытые хранилища одной команды
type session struct {
	cfg    *config.Config
	log    *logger.Logger
	stores *bootstrap.Stores
}

func openSession(ctx context.Context) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if strings.TrimSpace(historyDir) != "" {
		cfg.History.Dir = historyDir
	}
	if strings.TrimSpace(backend) != "" {
		cfg.History.Backend = backend
	}

	log := logger.New(logLevel)
	stores, err := bootstrap.OpenStores(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, log: log, stores: stores}, nil
}

func (s *session) Close() {
	_ = s.stores.Close()
}

func printJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

package main

import (
	"github.com/spf13/cobra"

	"github.com/dreschagin/process-detector/internal/application/usecase"
)

var (
	queryTenant  string
	historyLimit int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Показать последние снимки тенанта",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var trendCmd = &cobra.Command{
	Use:   "trend",
	Short: "Показать тренд соблюдения SLA по сохранённой истории",
	Args:  cobra.NoArgs,
	RunE:  runTrend,
}

func init() {
	for _, c := range []*cobra.Command{historyCmd, trendCmd} {
		c.Flags().StringVar(&queryTenant, "tenant", "default", "идентификатор тенанта")
		rootCmd.AddCommand(c)
	}
	historyCmd.Flags().IntVar(&historyLimit, "limit", 10, "количество снимков (1..100)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	history, err := usecase.NewGetHistoryUseCase(s.stores.History, nil, s.log).
		Execute(cmd.Context(), queryTenant, historyLimit)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), history)
}

func runTrend(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	trend, err := usecase.NewGetTrendUseCase(s.stores.History, nil, s.log).
		Execute(cmd.Context(), queryTenant)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), trend)
}

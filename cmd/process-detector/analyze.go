package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/dreschagin/process-detector/internal/application/dto"
	"github.com/dreschagin/process-detector/internal/application/usecase"
	"github.com/dreschagin/process-detector/internal/bootstrap"
	"github.com/dreschagin/process-detector/internal/domain/service"
	"github.com/dreschagin/process-detector/internal/infrastructure/ingest/csvtable"
)

var (
	analyzeRate   float64
	analyzeTenant string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze file...",
	Short: "Проанализировать один или несколько журналов и добавить снимки в историю",
	Long: "Файлы обрабатываются по порядку: каждый прогон видит снимки предыдущих, " +
		"поэтому несколько файлов работают как дозагрузка истории.",
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().Float64Var(&analyzeRate, "rate", 0, "ставка EUR/час (по умолчанию DEFAULT_RATE)")
	analyzeCmd.Flags().StringVar(&analyzeTenant, "tenant", "default", "идентификатор тенанта")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	analyzer, err := bootstrap.NewAnalyzer(s.cfg.Analysis)
	if err != nil {
		return fmt.Errorf("invalid analysis configuration: %w", err)
	}

	rate := s.cfg.Analysis.DefaultRate
	if cmd.Flags().Changed("rate") {
		rate = analyzeRate
	}
	if err := service.ValidateRate(rate); err != nil {
		return fmt.Errorf("invalid --rate: %w", err)
	}

	policies := usecase.NewPolicyResolver(s.stores.Policies, nil, s.log)
	analyzeUC := usecase.NewAnalyzeEventLogUseCase(usecase.AnalyzeEventLogDeps{
		Reader:   csvtable.NewReader(),
		Analyzer: analyzer,
		History:  s.stores.History,
		Policies: policies,
	}, usecase.AnalyzeEventLogConfig{}, s.log)

	// Для одного файла прогресс не нужен, печатаем только отчёт
	var bar *progressbar.ProgressBar
	if len(args) > 1 {
		bar = progressbar.NewOptions(len(args),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("analyzing"),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}

	reports := make([]*dto.AnalysisReportDTO, 0, len(args))
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		report, err := analyzeUC.Execute(ctx, usecase.AnalyzeEventLogCommand{
			TenantID:   analyzeTenant,
			Rate:       rate,
			SourceName: filepath.Base(path),
			Data:       data,
		})
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		reports = append(reports, report)

		if bar != nil {
			_ = bar.Add(1)
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}

	if len(reports) == 1 {
		return printJSON(cmd.OutOrStdout(), reports[0])
	}
	return printJSON(cmd.OutOrStdout(), reports)
}

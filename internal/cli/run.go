package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"museum-api-verifier/internal/config"
	"museum-api-verifier/internal/executor"
	"museum-api-verifier/internal/llm"
	"museum-api-verifier/internal/logger"
	"museum-api-verifier/internal/matrix"
	"museum-api-verifier/internal/metrics"
	"museum-api-verifier/internal/parser"
	"museum-api-verifier/internal/reporter"
	"museum-api-verifier/internal/resolver"
	"museum-api-verifier/internal/transport"
	"museum-api-verifier/internal/types"
)

// TextfileName is the Prometheus textfile written for the prom format
const TextfileName = "verifier.prom"

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	var only []string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the verification matrix against the configured API",
		Long: `Resolve dynamic identifiers, execute every case of the matrix and write
the report. The exit status is non-zero when any case fails.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd.Context(), rootOpts.ConfigPath, only, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringSliceVar(&only, "only", nil, "run only cases whose name starts with one of these prefixes")

	return cmd
}

func runVerify(ctx context.Context, configPath string, only []string, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load configuration", err)
	}

	log, err := logger.NewLogger(cfg.Logging.Level, cfg.Logging.Dir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create logger", err)
	}
	defer log.Close()

	doc, err := parser.LoadContract(ctx, cfg.Environment.Contract)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load contract", err)
	}
	if missing := doc.Missing(endpointTemplates()); len(missing) > 0 {
		log.Warn("contract does not document every endpoint", zap.Strings("missing", missing))
	}

	if len(only) == 0 {
		only = cfg.Test.Only
	}
	cases := matrix.Filter(matrix.Build(doc), only)
	if err := matrix.Validate(cases); err != nil {
		return WrapExitError(ExitCommandError, "invalid case matrix", err)
	}
	if len(cases) == 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("no cases match %v", only))
	}

	adapter, err := transport.NewHTTPAdapter(transport.Options{
		BaseURL:       cfg.Environment.BaseURL,
		InsecureTLS:   cfg.Environment.InsecureTLS,
		Timeout:       time.Duration(cfg.Test.TimeoutMS) * time.Millisecond,
		RetryAttempts: *cfg.Test.Retry.Attempts,
		RetryDelay:    time.Duration(cfg.Test.Retry.DelayMS) * time.Millisecond,
		RatePerSecond: cfg.Test.RatePerSecond,
	}, log.Logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create transport", err)
	}

	recorder := metrics.NewRecorder()
	exec := executor.New(executor.Config{
		MaxWorkers: cfg.Test.MaxWorkers,
		APIKey:     cfg.Environment.APIKey,
		Detailed:   cfg.Reporting.Detailed,
	}, adapter, resolver.New(adapter, cfg.Environment.APIKey, log.Logger), log.Logger, recorder)

	log.Info("starting run",
		zap.String("base_url", cfg.Environment.BaseURL),
		zap.String("contract", doc.Source),
		zap.Int("cases", len(cases)),
	)
	start := time.Now()
	results := exec.Run(ctx, cases)

	rep := reporter.New(reporter.Config{Format: cfg.Reporting.Format, OutputDir: cfg.Reporting.OutputDir})
	report := rep.Build("", results, time.Since(start))

	if cfg.LLM.Enabled {
		report.Triage = triage(ctx, cfg.LLM, report.Failures(), log.Logger)
	}

	files, err := rep.Write(report, out)
	if err != nil {
		return err
	}
	if hasFormat(cfg.Reporting.Format, "prom") {
		recorder.MarkRun(report.Timestamp)
		path, err := writeTextfile(recorder, cfg.Reporting.OutputDir)
		if err != nil {
			return err
		}
		files = append(files, path)
	}

	log.Info("run finished",
		zap.String("run_id", report.RunID),
		zap.Int("passed", report.Summary.Passed),
		zap.Int("failed", report.Summary.Failed),
		zap.Int("skipped", report.Summary.Skipped),
		zap.Int("infrastructure_errors", report.Summary.InfrastructureErrors),
		zap.Strings("files", files),
	)

	if code := report.ExitCode(cfg.Test.FailOnInfrastructureError); code != 0 {
		return NewExitError(code, fmt.Sprintf("%d case(s) failed, %d infrastructure error(s)",
			report.Summary.Failed, report.Summary.InfrastructureErrors))
	}
	return nil
}

// triage asks the LLM for a summary. Failures here never affect the run.
func triage(ctx context.Context, cfg config.LLMConfig, failures []types.VerificationResult, log *zap.Logger) string {
	client, err := llm.NewClient(&llm.Config{
		Provider:    cfg.Provider,
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		BaseURL:     cfg.BaseURL,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		MaxFailures: llm.NewDefaultConfig().MaxFailures,
	}, log)
	if err != nil {
		log.Warn("llm triage unavailable", zap.Error(err))
		return ""
	}

	summary, err := client.Triage(ctx, failures)
	if err != nil {
		if !errors.Is(err, llm.ErrNothingToTriage) {
			log.Warn("llm triage failed", zap.Error(err))
		}
		return ""
	}
	return summary
}

func writeTextfile(recorder *metrics.Recorder, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(dir, TextfileName)
	return path, recorder.WriteTextfile(path)
}

func endpointTemplates() []string {
	var templates []string
	for _, spec := range matrix.Endpoints() {
		templates = append(templates, spec.PathTemplate)
	}
	return templates
}

func hasFormat(formats []string, want string) bool {
	for _, f := range formats {
		if f == want {
			return true
		}
	}
	return false
}

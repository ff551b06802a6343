// Command triage runs tickets from a file or stdin through the triage pipeline
// and prints the resulting records as JSON. With --eval it scores the pipeline
// against a file of labelled cases instead.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-triage/internal/classifier"
	"github.com/spec-kit/ticket-triage/internal/config"
	"github.com/spec-kit/ticket-triage/internal/domain"
	"github.com/spec-kit/ticket-triage/internal/evaluation"
	"github.com/spec-kit/ticket-triage/internal/ingest"
	"github.com/spec-kit/ticket-triage/internal/llm"
	"github.com/spec-kit/ticket-triage/internal/llm/providers"
	"github.com/spec-kit/ticket-triage/internal/observability"
	"github.com/spec-kit/ticket-triage/internal/pipeline"
	"github.com/spec-kit/ticket-triage/internal/policy"
)

// exitError carries a process exit code.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(1)
	}
}

// output is one printed entry.
type output struct {
	Index  int                  `json:"index"`
	Record *domain.TriageResult `json:"record,omitempty"`
	Error  string               `json:"error,omitempty"`
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var filePath, evalPath string
	var compact bool
	flagSet := pflag.NewFlagSet("triage", pflag.ContinueOnError)
	flagSet.StringVarP(&filePath, "file", "f", "", "read tickets from this file instead of stdin")
	flagSet.StringVar(&cfg.LLM.Provider, "provider", cfg.LLM.Provider, "model provider: none, anthropic, openai, gemini, ollama")
	flagSet.StringVar(&cfg.LLM.Model, "model", cfg.LLM.Model, "model name")
	flagSet.StringVar(&cfg.Classifier.Mode, "classifier", cfg.Classifier.Mode, "classifier mode: rules, llm, llm+rules")
	flagSet.StringVar(&cfg.Classifier.RulesFile, "rules", cfg.Classifier.RulesFile, "keyword rule file (YAML)")
	flagSet.DurationVar(&cfg.Pipeline.StageTimeout, "stage-timeout", cfg.Pipeline.StageTimeout, "timeout for each pipeline stage")
	flagSet.IntVar(&cfg.Pipeline.BatchConcurrency, "concurrency", cfg.Pipeline.BatchConcurrency, "tickets triaged in parallel")
	flagSet.StringVar(&cfg.Logger.Level, "log-level", cfg.Logger.Level, "log level")
	flagSet.BoolVar(&compact, "compact", false, "print one JSON document per line")
	flagSet.StringVar(&evalPath, "eval", "", "score the pipeline against labelled cases in this file")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return &exitError{code: 2, err: err}
	}
	if flagSet.NArg() > 0 {
		return &exitError{code: 2, err: fmt.Errorf("unexpected argument: %s", flagSet.Arg(0))}
	}
	if flagSet.Changed("provider") {
		if !flagSet.Changed("model") {
			cfg.LLM.Model = config.DefaultModel(cfg.LLM.Provider)
		}
		if !flagSet.Changed("classifier") && cfg.LLM.Provider != "none" {
			cfg.Classifier.Mode = classifier.ModeLLMAndRules
		}
	}
	cfg.Logger.Output = "stderr"
	if err := cfg.Validate(); err != nil {
		return &exitError{code: 2, err: err}
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	orchestrator, err := buildPipeline(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	enc := json.NewEncoder(stdout)
	if !compact {
		enc.SetIndent("", "  ")
	}

	if evalPath != "" {
		return evaluate(ctx, orchestrator, evalPath, enc)
	}

	payload, err := readInput(filePath, stdin)
	if err != nil {
		return err
	}

	outputs := triage(ctx, orchestrator, payload)
	failed := 0
	for _, out := range outputs {
		if out.Error != "" {
			failed++
		}
		if err := enc.Encode(out); err != nil {
			return err
		}
	}
	if failed > 0 {
		return &exitError{code: 1, err: fmt.Errorf("%d of %d tickets did not triage cleanly", failed, len(outputs))}
	}
	return nil
}

func evaluate(ctx context.Context, o *pipeline.Orchestrator, path string, enc *json.Encoder) error {
	cases, err := evaluation.LoadCases(path)
	if err != nil {
		return &exitError{code: 2, err: err}
	}
	report := evaluation.Evaluate(ctx, o, cases)
	if err := enc.Encode(report); err != nil {
		return err
	}
	if !report.Passed() || len(report.Errors) > 0 {
		return &exitError{code: 1, err: fmt.Errorf("%d mismatches and %d errors across %d cases",
			len(report.Mismatches), len(report.Errors), report.Cases)}
	}
	return nil
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

func buildPipeline(cfg *config.Config, logger *zap.Logger) (*pipeline.Orchestrator, error) {
	counter, err := llm.NewTokenCounter()
	if err != nil {
		logger.Warn("tokenizer unavailable; estimating token counts", zap.Error(err))
	}
	client, err := providers.New(cfg.LLM, counter, nil)
	if err != nil {
		return nil, err
	}
	c, err := classifier.Build(cfg.Classifier.Mode, cfg.Classifier.RulesFile, client,
		cfg.LLM.MaxTokens, float32(cfg.LLM.Temperature), logger)
	if err != nil {
		return nil, err
	}
	return pipeline.NewOrchestrator(pipeline.Dependencies{
		Classifier:   c,
		Prioritizer:  policy.PolicyPrioritizer{},
		Router:       policy.TableRouter{},
		StageTimeout: cfg.Pipeline.StageTimeout,
		Limits: llm.Limits{
			RequestLimit:     cfg.Pipeline.RequestLimit,
			TotalTokensLimit: cfg.Pipeline.TotalTokensLimit,
		},
		BatchConcurrency: cfg.Pipeline.BatchConcurrency,
		Logger:           logger,
	})
}

// triage runs a single object or an array of tickets. An array of exactly one
// element is treated as an array so output shape follows input shape.
func triage(ctx context.Context, o *pipeline.Orchestrator, payload []byte) []output {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		items, err := ingest.ParseBatch(trimmed)
		if err != nil {
			return []output{{Error: err.Error()}}
		}
		results := o.ProcessBatch(ctx, items)
		outputs := make([]output, len(results))
		for i, item := range results {
			outputs[i] = toOutput(item.Index, item.Result, item.Err)
		}
		return outputs
	}
	result, err := o.Process(ctx, trimmed)
	return []output{toOutput(0, result, err)}
}

func toOutput(index int, result *domain.TriageResult, err error) output {
	out := output{Index: index, Record: result}
	if err != nil {
		out.Error = err.Error()
	}
	return out
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/docrag/internal/app"
	"github.com/efebarandurmaz/docrag/internal/config"
	"github.com/efebarandurmaz/docrag/internal/durable"
	"github.com/efebarandurmaz/docrag/internal/llm"
	"github.com/efebarandurmaz/docrag/internal/metrics"
	"github.com/efebarandurmaz/docrag/internal/observability"
	"github.com/efebarandurmaz/docrag/internal/rag"
	"github.com/efebarandurmaz/docrag/internal/server"
	"github.com/efebarandurmaz/docrag/internal/tui"
)

type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

func main() {
	var g globalFlags

	rootCmd := &cobra.Command{
		Use:           "docrag",
		Short:         "Ingest PDFs into a vector index and answer questions over them",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&g.configPath, "config", "", "Config file path (YAML)")
	rootCmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&g.logFormat, "log-format", "", "Override log format (text, json)")

	rootCmd.AddCommand(
		serveCmd(&g),
		ingestCmd(&g),
		queryCmd(&g),
		askCmd(&g),
		configCmd(&g),
		providersCmd(),
		journalCmd(&g),
		sourcesCmd(&g),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// load reads the config and builds the logger. Logs go to stderr so that
// --json output stays clean.
func (g *globalFlags) load() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, nil, err
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if g.logFormat != "" {
		cfg.Log.Format = g.logFormat
	}
	logger, err := observability.NewLogger(os.Stderr, observability.LogConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// open builds the components and the configured backend. The returned
// cleanup closes both.
func (g *globalFlags) open(ctx context.Context) (*app.Components, *app.Backend, func(), error) {
	cfg, logger, err := g.load()
	if err != nil {
		return nil, nil, nil, err
	}
	comps, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	backend, err := comps.NewBackend(ctx)
	if err != nil {
		_ = comps.Close(ctx)
		return nil, nil, nil, err
	}
	cleanup := func() {
		if err := errors.Join(backend.Close(), comps.Close(context.Background())); err != nil {
			logger.Warn("cleanup failed", "error", err)
		}
	}
	return comps, backend, cleanup, nil
}

func serveCmd(g *globalFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the ingest and query events over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			comps, backend, cleanup, err := g.open(ctx)
			if err != nil {
				return err
			}
			cfg := comps.Config
			if addr == "" {
				addr = cfg.Server.Addr
			}

			gs := server.NewGracefulServer(
				&server.HealthConfig{Version: app.Version},
				&server.ShutdownConfig{
					Timeout: cfg.Server.ShutdownTimeout,
					Signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
					Logger:  comps.Logger,
				},
			)
			comps.RegisterHealth(gs.Health, backend.Temporal)
			gs.Shutdown.AddHook(server.TracingShutdownHook(comps.Tracer.Shutdown))
			gs.Shutdown.AddHook(server.VectorStoreShutdownHook(comps.Store.Close))
			gs.Shutdown.AddHook(server.JournalShutdownHook(backend.Close))

			api := server.NewAPI(backend, comps.Metrics, gs.Health, comps.Logger)
			if err := gs.Start(addr, api.Router()); err != nil {
				cleanup()
				return fmt.Errorf("listen %s: %w", addr, err)
			}
			comps.Logger.Info("serving", "addr", addr, "backend", backend.Name)
			gs.Wait()
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from server.addr)")
	return cmd
}

func ingestCmd(g *globalFlags) *cobra.Command {
	var (
		pdfPath    string
		sourceID   string
		jsonReport bool
	)
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Load, chunk, embed and index one PDF",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			_, backend, cleanup, err := g.open(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			ev := rag.IngestEvent{PDFPath: pdfPath, SourceID: sourceID}
			report := metrics.NewIngest(backend.Name, ev)
			res, err := backend.Ingest(ctx, ev)
			report.FinishIngest(res, err)
			return printReport(report, jsonReport, err)
		},
	}
	cmd.Flags().StringVar(&pdfPath, "pdf", "", "Path to the PDF to ingest")
	cmd.Flags().StringVar(&sourceID, "source", "", "Source id stored with each chunk (default: the path)")
	cmd.Flags().BoolVar(&jsonReport, "json", false, "Print the run report as JSON")
	_ = cmd.MarkFlagRequired("pdf")
	return cmd
}

func queryCmd(g *globalFlags) *cobra.Command {
	var (
		question   string
		topK       int
		jsonReport bool
	)
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Answer a question from the indexed documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			_, backend, cleanup, err := g.open(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			ev := rag.QueryEvent{Question: question, TopK: topK}
			report := metrics.NewQuery(backend.Name, ev)
			res, err := backend.Query(ctx, ev)
			report.FinishQuery(res, err)
			if err == nil && !jsonReport {
				fmt.Println(res.Answer)
				fmt.Println()
			}
			return printReport(report, jsonReport, err)
		},
	}
	cmd.Flags().StringVarP(&question, "question", "q", "", "Question to answer")
	cmd.Flags().IntVar(&topK, "top-k", 0, "Number of chunks to retrieve (default from query.default_top_k)")
	cmd.Flags().BoolVar(&jsonReport, "json", false, "Print the run report as JSON")
	_ = cmd.MarkFlagRequired("question")
	return cmd
}

func printReport(report *metrics.RunReport, asJSON bool, runErr error) error {
	if asJSON {
		data, err := report.JSON()
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	} else {
		report.PrintSummary(os.Stdout)
	}
	return runErr
}

func askCmd(g *globalFlags) *cobra.Command {
	var savePath string
	cmd := &cobra.Command{
		Use:   "ask",
		Short: "Ask questions interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			comps, backend, cleanup, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			session, err := tui.RunAsk(backend, comps.Config.Query.DefaultTopK, comps.Config.Chat.Timeout)
			if err != nil {
				return err
			}
			if savePath != "" {
				if err := tui.SaveTranscript(session, savePath); err != nil {
					return err
				}
				fmt.Printf("Transcript saved to %s\n", savePath)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&savePath, "save", "", "Write the session transcript to this JSON file")
	return cmd
}

func configCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := g.load()
			if err != nil {
				return err
			}
			return cfg.Redacted().Write(os.Stdout)
		},
	}
}

func providersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List available model providers",
		Run: func(cmd *cobra.Command, args []string) {
			names := make([]string, 0, len(llm.KnownProviders))
			for name := range llm.KnownProviders {
				names = append(names, name)
			}
			sort.Strings(names)

			fmt.Println("Available model providers:")
			fmt.Println()
			for _, name := range names {
				fmt.Printf("  %-10s %s\n", name, llm.KnownProviders[name])
			}
			fmt.Println("  custom     (set base_url to any OpenAI-compatible endpoint)")
			fmt.Println()
			fmt.Println("Configure in docrag.yaml or via environment:")
			fmt.Println("  DOCRAG_EMBEDDING_PROVIDER=ollama")
			fmt.Println("  DOCRAG_CHAT_PROVIDER=groq")
			fmt.Println("  DOCRAG_CHAT_API_KEY=gsk_...")
		},
	}
}

func sourcesCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List the source ids held in the vector index",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger, err := g.load()
			if err != nil {
				return err
			}
			comps, err := app.Build(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer comps.Close(context.Background()) //nolint:errcheck

			sources, err := comps.Store.Sources(ctx)
			if errors.Is(err, errors.ErrUnsupported) {
				return fmt.Errorf("the %s vector backend cannot list sources", cfg.Vector.Backend)
			}
			if err != nil {
				return err
			}
			if len(sources) == 0 {
				fmt.Println("No sources indexed.")
			}
			for _, s := range sources {
				fmt.Println(s)
			}
			return nil
		},
	}
}

func journalCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect the local step journal",
	}

	pending := &cobra.Command{
		Use:   "pending",
		Short: "List runs that have recorded steps but never finished",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJournal(cmd.Context(), g, func(ctx context.Context, j *durable.Journal) error {
				keys, err := j.Pending(ctx)
				if err != nil {
					return err
				}
				if len(keys) == 0 {
					fmt.Println("No pending runs.")
				}
				for _, k := range keys {
					fmt.Println(k)
				}
				return nil
			})
		},
	}

	steps := &cobra.Command{
		Use:   "steps RUN_KEY",
		Short: "Show the recorded steps of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJournal(cmd.Context(), g, func(ctx context.Context, j *durable.Journal) error {
				records, err := j.Steps(ctx, args[0])
				if err != nil {
					return err
				}
				for _, r := range records {
					fmt.Printf("%-18s %s  %s\n", r.Name, r.CreatedAt.Format("2006-01-02 15:04:05"), r.Output)
				}
				return nil
			})
		},
	}

	forget := &cobra.Command{
		Use:   "forget RUN_KEY",
		Short: "Drop the recorded steps of a run so it starts over",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJournal(cmd.Context(), g, func(ctx context.Context, j *durable.Journal) error {
				return j.Forget(ctx, args[0])
			})
		},
	}

	cmd.AddCommand(pending, steps, forget)
	return cmd
}

func withJournal(ctx context.Context, g *globalFlags, fn func(context.Context, *durable.Journal) error) error {
	cfg, _, err := g.load()
	if err != nil {
		return err
	}
	j, err := durable.OpenJournal(ctx, cfg.Journal.Path)
	if err != nil {
		return err
	}
	defer j.Close()
	return fn(ctx, j)
}

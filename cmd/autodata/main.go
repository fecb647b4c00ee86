package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/term"

	"github.com/GraphResearcher/AutoData/agents"
	"github.com/GraphResearcher/AutoData/engine"
	"github.com/GraphResearcher/AutoData/nats"
	"github.com/GraphResearcher/AutoData/store"
	"github.com/GraphResearcher/AutoData/types"
)

// Default configuration values
const (
	DefaultDataDir      = "data"
	DefaultDBName       = "runs.db"
	DisabledDB          = "none"
	shutdownGracePeriod = 10 * time.Second
	natsSetupTimeout    = 10 * time.Second
)

type ServingFn func(ctx context.Context) error

type options struct {
	URL        string
	Keywords   string
	Project    string
	DataDir    string
	NatsURL    string
	DB         string
	JSON       bool
	History    int
	Show       string
	Checkpoint string
	Engine     engine.Config
	SearchURL  string
	SearchKey  string
	SearchCX   string
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Getenv)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	asJSON := opts.JSON || !term.IsTerminal(int(os.Stdout.Fd()))
	logw := io.Writer(os.Stderr)

	var serveFn ServingFn
	switch {
	case opts.History > 0:
		serveFn = func(ctx context.Context) error { return showHistory(ctx, opts, os.Stdout, asJSON) }
	case opts.Show != "":
		serveFn = func(ctx context.Context) error { return showRun(ctx, opts, os.Stdout, asJSON) }
	case opts.Checkpoint != "":
		serveFn = func(ctx context.Context) error { return showCheckpoint(ctx, opts, os.Stdout, logw) }
	default:
		serveFn = func(ctx context.Context) error {
			report, err := run(ctx, opts, logw)
			if perr := printReport(os.Stdout, report, asJSON); perr != nil {
				log.Printf("Failed to print report: %v", perr)
			}
			return err
		}
	}

	if err := runWithGracefulShutdown(ctx, cancel, serveFn); err != nil {
		log.Printf("Run failed: %v", err)
		os.Exit(1)
	}
}

func parseFlags(args []string, getenv func(string) string) (options, error) {
	env := func(key, def string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return def
	}

	var opts options
	fs := flag.NewFlagSet("autodata", flag.ContinueOnError)
	fs.StringVar(&opts.URL, "url", env("AUTODATA_URL", ""), "page (or PDF) to collect the document from")
	fs.StringVar(&opts.Keywords, "keywords", env("AUTODATA_KEYWORDS", ""), "keywords used to search for the document when no url is given")
	fs.StringVar(&opts.Project, "project", env("AUTODATA_PROJECT", ""), "project name, defaults to the keywords")
	fs.StringVar(&opts.DataDir, "data-dir", env("AUTODATA_DATA_DIR", DefaultDataDir), "directory for downloads and exports")
	fs.StringVar(&opts.NatsURL, "nats-url", env("NATS_URL", ""), "NATS server for events and checkpoints, empty disables")
	fs.StringVar(&opts.DB, "db", env("AUTODATA_DB", ""), `run history database, "none" disables (default <data-dir>/runs.db)`)
	fs.BoolVar(&opts.JSON, "json", false, "print the report as JSON")
	fs.IntVar(&opts.History, "history", 0, "list the last N runs and exit")
	fs.StringVar(&opts.Show, "show", "", "print a stored run and its tasks and exit")
	fs.StringVar(&opts.Checkpoint, "checkpoint", "", "print the last NATS checkpoint of a run and exit")
	fs.IntVar(&opts.Engine.MaxIterations, "max-iterations", envInt(getenv, "AUTODATA_MAX_ITERATIONS", engine.DefaultMaxIterations), "maximum dispatched tasks per run")
	fs.IntVar(&opts.Engine.ErrorThreshold, "error-threshold", envInt(getenv, "AUTODATA_ERROR_THRESHOLD", engine.DefaultErrorThreshold), "stop once more errors than this are recorded")
	fs.DurationVar(&opts.Engine.TaskTimeout, "task-timeout", envDuration(getenv, "AUTODATA_TASK_TIMEOUT", engine.DefaultTaskTimeout), "timeout of a single worker call")
	fs.StringVar(&opts.SearchURL, "search-endpoint", env("GOOGLE_SEARCH_ENDPOINT", agents.DefaultSearchEndpoint), "custom search API endpoint")
	fs.StringVar(&opts.SearchKey, "search-key", env("GOOGLE_SEARCH_API_KEY", ""), "custom search API key")
	fs.StringVar(&opts.SearchCX, "search-cx", env("GOOGLE_CSE_ID", ""), "custom search engine id")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.DB == "" {
		opts.DB = filepath.Join(opts.DataDir, DefaultDBName)
	}
	if opts.History > 0 || opts.Show != "" || opts.Checkpoint != "" {
		return opts, nil
	}
	if opts.URL == "" && opts.Keywords == "" {
		return opts, errors.New("either -url or -keywords is required")
	}
	return opts, nil
}

func envInt(getenv func(string) string, key string, def int) int {
	if n, err := strconv.Atoi(getenv(key)); err == nil {
		return n
	}
	return def
}

func envDuration(getenv func(string) string, key string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(getenv(key)); err == nil {
		return d
	}
	return def
}

// run executes one workflow and returns its report. The report is valid
// even when an error is returned.
func run(ctx context.Context, opts options, logw io.Writer) (engine.Report, error) {
	logger := log.New(logw, "[AUTODATA] ", log.LstdFlags)

	var searcher agents.Searcher
	if opts.SearchKey != "" && opts.SearchCX != "" {
		searcher = &agents.GoogleSearcher{
			Endpoint:  opts.SearchURL,
			APIKey:    opts.SearchKey,
			EngineID:  opts.SearchCX,
			UserAgent: agents.DefaultUserAgent,
		}
	} else {
		logger.Println("No search API credentials, searches will return no results")
	}

	cfg := agents.Config{DataDir: opts.DataDir}
	registry, err := engine.NewRegistry(agents.Workers(cfg, searcher, logw)...)
	if err != nil {
		return engine.BuildReport(nil, time.Now()), fmt.Errorf("failed to register workers: %w", err)
	}

	engineOpts := []engine.Option{
		engine.WithLogger(log.New(logw, "[ENGINE] ", log.LstdFlags)),
		engine.WithRouter(engine.NewRouter(engine.WithRouterLogger(log.New(logw, "[ROUTER] ", log.LstdFlags)))),
	}

	var client *nats.Client
	if opts.NatsURL != "" {
		client, err = connectNATS(ctx, opts.NatsURL, logw)
		if err != nil {
			logger.Printf("NATS unavailable, continuing without events: %v", err)
		} else {
			defer client.Close()
			engineOpts = append(engineOpts, engine.WithEventSink(nats.NewEventPublisher(client)))
			if cp, err := stateCheckpointer(ctx, client); err != nil {
				logger.Printf("Checkpoints disabled: %v", err)
			} else {
				engineOpts = append(engineOpts, engine.WithCheckpointer(cp))
			}
		}
	}

	var db *store.Store
	if opts.DB != DisabledDB {
		if err := os.MkdirAll(filepath.Dir(opts.DB), 0o755); err != nil {
			logger.Printf("Run history disabled: %v", err)
		} else if db, err = store.Open(opts.DB); err != nil {
			logger.Printf("Run history disabled: %v", err)
			db = nil
		} else {
			defer db.Close()
		}
	}

	eng, err := engine.New(opts.Engine, registry, engineOpts...)
	if err != nil {
		return engine.BuildReport(nil, time.Now()), err
	}

	st := types.NewState(types.Params{
		RunID:       uuid.NewString(),
		ProjectName: opts.Project,
		TargetURL:   opts.URL,
		Query:       opts.Keywords,
	}, time.Now())

	final, runErr := eng.Run(ctx, st)
	report := engine.BuildReport(final, time.Now())

	saveCtx := context.WithoutCancel(ctx)
	if db != nil {
		if err := db.SaveRun(saveCtx, report, final); err != nil {
			logger.Printf("Failed to save run history: %v", err)
		}
	}
	if client != nil {
		if data, err := report.ToJSON(); err == nil {
			if _, err := client.PublishSync(saveCtx, nats.ReportSubject(report.RunID), data); err != nil {
				logger.Printf("Failed to publish report: %v", err)
			}
		}
	}
	return report, runErr
}

func connectNATS(ctx context.Context, url string, logw io.Writer) (*nats.Client, error) {
	client, err := nats.NewClient(ctx, url, log.New(logw, "[NATS] ", log.LstdFlags))
	if err != nil {
		return nil, err
	}
	setupCtx, cancel := context.WithTimeout(ctx, natsSetupTimeout)
	defer cancel()
	if _, err := client.EnsureStream(setupCtx, nats.EventStreamConfig()); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func stateCheckpointer(ctx context.Context, client *nats.Client) (*nats.KVCheckpointer, error) {
	setupCtx, cancel := context.WithTimeout(ctx, natsSetupTimeout)
	defer cancel()
	kv, err := client.EnsureKV(setupCtx, nats.StateBucketConfig())
	if err != nil {
		return nil, err
	}
	return nats.NewKVCheckpointer(kv), nil
}

func printReport(w io.Writer, report engine.Report, asJSON bool) error {
	if !asJSON {
		_, err := io.WriteString(w, report.String())
		return err
	}
	data, err := report.ToJSON()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func showHistory(ctx context.Context, opts options, w io.Writer, asJSON bool) error {
	db, err := store.Open(opts.DB)
	if err != nil {
		return err
	}
	defer db.Close()

	reports, err := db.ListRuns(ctx, opts.History)
	if err != nil {
		return err
	}
	for _, r := range reports {
		if asJSON {
			if err := printReport(w, r, true); err != nil {
				return err
			}
			continue
		}
		fmt.Fprintf(w, "%s  %-28s %-20s tasks=%d failed=%d articles=%d\n",
			r.StartedAt.Format(time.DateTime), r.ProjectName, r.StopReason, r.TotalTasks, r.FailedTasks, r.ArticlesCount)
	}
	return nil
}

func showRun(ctx context.Context, opts options, w io.Writer, asJSON bool) error {
	db, err := store.Open(opts.DB)
	if err != nil {
		return err
	}
	defer db.Close()

	report, err := db.GetRun(ctx, opts.Show)
	if err != nil {
		return err
	}
	if err := printReport(w, report, asJSON); err != nil {
		return err
	}
	tasks, err := db.ListTasks(ctx, opts.Show)
	if err != nil {
		return err
	}
	for i, t := range tasks {
		fmt.Fprintf(w, "%3d  %-24s %-12s %s\n", i+1, t.Type, t.Status, t.Error)
	}
	return nil
}

func showCheckpoint(ctx context.Context, opts options, w io.Writer, logw io.Writer) error {
	if opts.NatsURL == "" {
		return errors.New("-checkpoint requires -nats-url")
	}
	client, err := nats.NewClient(ctx, opts.NatsURL, log.New(logw, "[NATS] ", log.LstdFlags))
	if err != nil {
		return err
	}
	defer client.Close()

	cp, err := stateCheckpointer(ctx, client)
	if err != nil {
		return err
	}
	st, err := cp.Load(ctx, opts.Checkpoint)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, st.Debug())
	return err
}

func runWithGracefulShutdown(ctx context.Context, cancel context.CancelFunc, fn ServingFn) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)

	go func() {
		errChan <- fn(ctx)
	}()

	select {
	case sig := <-sigChan:
		log.Printf("Received signal %v, initiating shutdown...", sig)
		cancel()

		// Wait for the in-flight worker to return
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer shutdownCancel()

		select {
		case err := <-errChan:
			return err
		case <-shutdownCtx.Done():
			return fmt.Errorf("shutdown timeout exceeded")
		}
	case err := <-errChan:
		return err
	}
}

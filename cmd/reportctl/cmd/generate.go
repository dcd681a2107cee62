package cmd

import (
	"context"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/dipak0000812/credtrack/internal/logger"
	"github.com/dipak0000812/credtrack/internal/metrics"
	"github.com/dipak0000812/credtrack/internal/notify"
	"github.com/dipak0000812/credtrack/internal/report/artifact"
	"github.com/dipak0000812/credtrack/internal/report/cache"
	"github.com/dipak0000812/credtrack/internal/report/client"
	"github.com/dipak0000812/credtrack/internal/report/model"
	"github.com/dipak0000812/credtrack/internal/report/retry"
	"github.com/dipak0000812/credtrack/internal/report/service"
)

func newGenerateCommand(v *viper.Viper) *cobra.Command {
	var (
		kindName string
		filters  model.Filters
		mode     string
		outDir   string
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a report and wait for it",
		Long: `Start a report job, poll its status until it completes and deliver the CSV.

In display mode the rows are printed as a table. In download mode the CSV is
written to --out under the report's fixed filename. Reports generated in the
last 24 hours with the same filters are served from the cache.`,
		Example: `  reportctl generate --kind pass-rate --modality online --content "CPR Basics" --start 2024-01-01 --end 2024-01-31
  reportctl generate --kind competency-assignments --agency 7 --content "CPR Basics" --start 2024-01-01 --end 2024-01-31 --mode download --out ./reports`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			return runGenerate(ctx, v, cmd.OutOrStdout(), generateOptions{
				kind:    kindName,
				filters: filters,
				mode:    service.Mode(mode),
				outDir:  outDir,
				policy: retry.Policy{
					InitialDelay: v.GetDuration("poll-interval"),
					MaxDelay:     v.GetDuration("poll-max-interval"),
					MaxJitter:    v.GetDuration("poll-jitter"),
					MaxRetries:   v.GetInt("max-retries"),
				},
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&kindName, "kind", "", "report kind, see 'reportctl kinds'")
	f.StringVar(&filters.AgencyID, "agency", "", "agency id")
	f.StringVar(&filters.ContentName, "content", "", "content name")
	f.StringVar(&filters.Modality, "modality", "", "modality")
	f.StringVar(&filters.StartDate, "start", "", "start date (YYYY-MM-DD)")
	f.StringVar(&filters.EndDate, "end", "", "end date (YYYY-MM-DD)")
	f.StringVar(&mode, "mode", string(service.ModeDisplay), "download or display")
	f.StringVar(&outDir, "out", ".", "output directory for download mode")

	policy := retry.DefaultPolicy()
	f.Duration("poll-interval", policy.InitialDelay, "initial status poll interval")
	f.Duration("poll-max-interval", policy.MaxDelay, "maximum status poll interval")
	f.Duration("poll-jitter", policy.MaxJitter, "maximum random jitter added per retry")
	f.Int("max-retries", policy.MaxRetries, "status retries before giving up")
	for _, name := range []string{"poll-interval", "poll-max-interval", "poll-jitter", "max-retries"} {
		_ = v.BindPFlag(name, f.Lookup(name))
	}
	_ = cmd.MarkFlagRequired("kind")

	return cmd
}

type generateOptions struct {
	kind    string
	filters model.Filters
	mode    service.Mode
	outDir  string
	policy  retry.Policy
}

func runGenerate(ctx context.Context, v *viper.Viper, w io.Writer, opts generateOptions) error {
	// Notifications arrive from the polling goroutine.
	out := &lockedWriter{w: w}

	kinds := model.DefaultKinds()
	if !kinds.Has(opts.kind) {
		return errors.Newf("unknown report kind %q, see 'reportctl kinds'", opts.kind)
	}
	kind, err := kinds.Get(opts.kind)
	if err != nil {
		return err
	}

	log, err := logger.New(v.GetString("log-level"), "text")
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	api, err := client.New(client.Config{
		BaseURL: v.GetString("url"),
		Token:   v.GetString("token"),
		Timeout: v.GetDuration("timeout"),
	}, client.WithLogger(log.Named("client")))
	if err != nil {
		return err
	}

	store, closeStore, err := openCacheStore(ctx, v)
	if err != nil {
		return err
	}
	defer closeStore()

	ctrl, err := service.New(service.Config{
		Kind:     kind,
		API:      api,
		Cache:    cache.New(store, cache.WithTTL(v.GetDuration("cache-ttl")), cache.WithLogger(log.Named("cache"))),
		Notifier: notify.Multi{newTerminalNotifier(out), notify.NewLog(log)},
		Policy:   opts.policy,
		Metrics:  metrics.NewMetrics(prometheus.NewRegistry()),
		Log:      log.Named("report"),
	})
	if err != nil {
		return err
	}
	defer ctrl.Close()

	if err := ctrl.Generate(ctx, service.Request{
		Filters: opts.filters,
		Mode:    opts.mode,
		OutDir:  opts.outDir,
	}); err != nil {
		return err
	}

	if st := ctrl.Snapshot(); st.Generating {
		pterm.Info.WithWriter(out).Println("Generating " + kind.Name + " report, job " + st.JobID)
	}
	if err := ctrl.Wait(ctx); err != nil {
		return err
	}

	st := ctrl.Snapshot()
	if st.FromCache {
		log.Debug("report served from cache", zap.String("kind", kind.Name))
	}
	if opts.mode == service.ModeDownload {
		return nil
	}
	return renderTable(out, st.Headers, st.Rows)
}

func openCacheStore(ctx context.Context, v *viper.Viper) (cache.Store, func(), error) {
	noop := func() {}

	switch backend := v.GetString("cache-backend"); backend {
	case "memory":
		return cache.NewMemoryStore(), noop, nil
	case "file":
		path := v.GetString("cache-path")
		if path == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, noop, errors.Wrap(err, "resolve cache path")
			}
			path = filepath.Join(home, ".reportctl-cache.json")
		}
		store, err := cache.NewFileStore(path)
		if err != nil {
			return nil, noop, err
		}
		return store, noop, nil
	case "redis":
		store, err := cache.NewRedisStore(ctx, cache.RedisConfig{
			Addr:     v.GetString("redis-addr"),
			Password: v.GetString("redis-password"),
			DB:       v.GetInt("redis-db"),
		})
		if err != nil {
			return nil, noop, err
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return nil, noop, errors.Newf("unknown cache backend: %s", backend)
	}
}

func renderTable(out io.Writer, headers []string, rows []artifact.Row) error {
	if len(rows) == 0 {
		pterm.Info.WithWriter(out).Println("The report has no rows.")
		return nil
	}

	data := make(pterm.TableData, 0, len(rows)+1)
	data = append(data, headers)
	for _, row := range rows {
		line := make([]string, len(headers))
		for i, h := range headers {
			line[i] = row[h]
		}
		data = append(data, line)
	}
	return pterm.DefaultTable.WithHasHeader().WithBoxed().WithWriter(out).WithData(data).Render()
}

// terminalNotifier prints notifications with pterm prefixes.
type terminalNotifier struct {
	out io.Writer
}

func newTerminalNotifier(out io.Writer) *terminalNotifier {
	return &terminalNotifier{out: out}
}

func (t *terminalNotifier) Notify(n notify.Notification) {
	printer := pterm.Info
	switch n.Type {
	case notify.Success:
		printer = pterm.Success
	case notify.Warning:
		printer = pterm.Warning
	case notify.Error:
		printer = pterm.Error
	}

	msg := n.Title
	if n.Description != "" {
		msg += ": " + n.Description
	}
	printer.WithWriter(t.out).Println(msg)
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

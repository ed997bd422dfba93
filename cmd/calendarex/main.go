package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"

	"calendarex/internal/capture"
	"calendarex/internal/config"
	"calendarex/internal/ics"
	appLog "calendarex/internal/log"
	"calendarex/internal/portlet"
	"calendarex/internal/query"
	"calendarex/internal/repository"
	"calendarex/internal/web"
)

const version = "0.1.0"

func main() {
	// A missing .env is fine.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:    "calendarex",
		Usage:   "Render month calendar portlets over a content repository.",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "./config.yaml",
				EnvVars: []string{"CALENDAREX_CONFIG"},
				Usage:   "path to the YAML config file",
			},
			&cli.StringFlag{
				Name:    "log-level",
				EnvVars: []string{"CALENDAREX_LOG_LEVEL"},
				Usage:   "debug, info, warn or error (overrides config)",
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			renderCommand(),
			snapshotCommand(),
			sourcesCommand(),
			checkConfigCommand(),
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		appLog.Error("calendarex failed", err)
		os.Exit(1)
	}
}

// env is everything a command needs, wired from the config.
type env struct {
	cfg      *config.Config
	repo     *repository.Repository
	renderer *portlet.Renderer
	sync     *ics.Sync
}

func setup(c *cli.Context) (*env, error) {
	path := c.String("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	level := cfg.LogLevel
	if c.IsSet("log-level") {
		level = c.String("log-level")
	}
	appLog.SetLevel(appLog.ParseLevel(level))

	repo := repository.New()
	if cfg.Content != "" {
		if _, err := repo.LoadSeed(cfg.Content); err != nil {
			return nil, err
		}
	}

	settings, err := portlet.SettingsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	cache, err := portlet.NewCache(cfg.CacheSize)
	if err != nil {
		return nil, err
	}
	renderer, err := portlet.NewRenderer(repo, settings, cache)
	if err != nil {
		return nil, err
	}

	return &env{
		cfg:      cfg,
		repo:     repo,
		renderer: renderer,
		sync: &ics.Sync{
			Importer: ics.NewImporter(ics.NewFetcher(cfg.CacheDir), settings.Location, cfg.ExpandMonths),
			Store:    repo,
			Sources:  cfg.Sources,
		},
	}, nil
}

func (e *env) refresh(ctx context.Context) {
	if len(e.cfg.Sources) == 0 {
		return
	}
	if _, err := e.sync.Run(ctx); err != nil {
		appLog.Warn("source refresh incomplete", "err", err)
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve portlets over HTTP and refresh sources on the configured schedule.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen", Usage: "HTTP listen address (overrides config)"},
			&cli.BoolFlag{Name: "no-refresh", Usage: "do not import sources"},
		},
		Action: func(c *cli.Context) error {
			e, err := setup(c)
			if err != nil {
				return err
			}
			if c.IsSet("listen") {
				e.cfg.Listen = c.String("listen")
			}
			ctx := c.Context

			appLog.Info("calendarex starting",
				"version", version,
				"listen", e.cfg.Listen,
				"timezone", e.cfg.Timezone,
				"portlets", len(e.cfg.Portlets),
				"sources", len(e.cfg.Sources),
				"refresh", e.cfg.RefreshCron,
			)

			var refresher web.Refresher
			if !c.Bool("no-refresh") && len(e.cfg.Sources) > 0 {
				refresher = e.sync
				go e.refresh(ctx)

				sched := cron.New()
				if _, err := sched.AddFunc(e.cfg.RefreshCron, func() { e.refresh(ctx) }); err != nil {
					return fmt.Errorf("invalid refresh schedule %q: %w", e.cfg.RefreshCron, err)
				}
				sched.Start()
				defer func() { <-sched.Stop().Done() }()
			}

			srv := web.NewServer(e.cfg, e.renderer, refresher)
			if err := srv.ListenAndServe(ctx); err != nil {
				return err
			}
			appLog.Info("calendarex exiting")
			return nil
		},
	}
}

func monthFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "portlet", Aliases: []string{"p"}, Value: "calendar", Usage: "portlet id"},
		&cli.IntFlag{Name: "year", Usage: "year to render (default: current)"},
		&cli.IntFlag{Name: "month", Usage: "month 1-12 to render (default: current)"},
	}
}

func selectedMonth(c *cli.Context, r *portlet.Renderer) (query.Month, error) {
	m := r.CurrentMonth()
	year, month := m.Year, int(m.Month)
	if c.IsSet("year") {
		year = c.Int("year")
	}
	if c.IsSet("month") {
		month = c.Int("month")
	}
	if month < 1 || month > 12 {
		return query.Month{}, fmt.Errorf("invalid month %d", month)
	}
	return r.Month(year, time.Month(month)), nil
}

func renderCommand() *cli.Command {
	return &cli.Command{
		Name:  "render",
		Usage: "Print one portlet month as HTML or as a JSON grid.",
		Flags: append(monthFlags(),
			&cli.BoolFlag{Name: "json", Usage: "print the decorated month grid instead of HTML"},
			&cli.BoolFlag{Name: "refresh", Usage: "import sources before rendering"},
		),
		Action: func(c *cli.Context) error {
			e, err := setup(c)
			if err != nil {
				return err
			}
			p, err := e.cfg.Portlet(c.String("portlet"))
			if err != nil {
				return err
			}
			m, err := selectedMonth(c, e.renderer)
			if err != nil {
				return err
			}
			if c.Bool("refresh") {
				e.refresh(c.Context)
			}

			if c.Bool("json") {
				grid, err := e.renderer.MonthGrid(c.Context, p, m)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(c.App.Writer)
				enc.SetIndent("", "  ")
				return enc.Encode(grid)
			}
			html, err := e.renderer.Render(c.Context, p, m)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(c.App.Writer, html)
			return err
		},
	}
}

func snapshotCommand() *cli.Command {
	return &cli.Command{
		Name:  "snapshot",
		Usage: "Capture a PNG of a portlet served by a running instance.",
		Flags: append(monthFlags(),
			&cli.StringFlag{Name: "base-url", Usage: "server base URL (default: http://<listen>)"},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output PNG path (default: <snapshot_dir>/<portlet>.png)"},
			&cli.DurationFlag{Name: "timeout", Value: capture.DefaultTimeout},
		),
		Action: func(c *cli.Context) error {
			e, err := setup(c)
			if err != nil {
				return err
			}
			p, err := e.cfg.Portlet(c.String("portlet"))
			if err != nil {
				return err
			}
			m, err := selectedMonth(c, e.renderer)
			if err != nil {
				return err
			}
			base := c.String("base-url")
			if base == "" {
				base = "http://" + e.cfg.Listen
			}
			out := c.String("out")
			if out == "" {
				out = filepath.Join(e.cfg.SnapshotDir, p.ID+".png")
			}

			err = capture.PortletPNG(c.Context, capture.Options{
				URL:        base + portlet.MonthURL(p.ID, m),
				OutputPath: out,
				Timeout:    c.Duration("timeout"),
			})
			if err != nil {
				return err
			}
			appLog.Info("snapshot written", "portlet", p.ID, "path", out)
			return nil
		},
	}
}

func sourcesCommand() *cli.Command {
	return &cli.Command{
		Name:  "sources",
		Usage: "Import all configured sources once and print the results.",
		Action: func(c *cli.Context) error {
			e, err := setup(c)
			if err != nil {
				return err
			}
			results, runErr := e.sync.Run(c.Context)
			enc := json.NewEncoder(c.App.Writer)
			enc.SetIndent("", "  ")
			if err := enc.Encode(results); err != nil {
				return err
			}
			return runErr
		},
	}
}

func checkConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "check-config",
		Usage: "Validate the config file and list portlets and sources.",
		Action: func(c *cli.Context) error {
			e, err := setup(c)
			if err != nil {
				return err
			}
			w := c.App.Writer
			fmt.Fprintf(w, "config ok: %s\n", c.String("config"))
			for _, p := range e.cfg.Portlets {
				fmt.Fprintf(w, "  portlet %-12s %s -> %s\n", p.ID, p.Title(), e.renderer.Root(p))
			}
			for _, s := range e.cfg.Sources {
				fmt.Fprintf(w, "  source  %-12s %s -> %s\n", s.ID, s.Type, s.Folder)
			}
			fmt.Fprintf(w, "  content items: %d\n", e.repo.Len())
			return nil
		},
	}
}

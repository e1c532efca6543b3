package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/pflag"
	"gorm.io/gorm"

	"github.com/freewebtopdf/redirector/internal/analytics"
	"github.com/freewebtopdf/redirector/internal/cache"
	"github.com/freewebtopdf/redirector/internal/config"
	"github.com/freewebtopdf/redirector/internal/domain"
	"github.com/freewebtopdf/redirector/internal/loader"
	"github.com/freewebtopdf/redirector/internal/resolver"
	"github.com/freewebtopdf/redirector/internal/rules"
	"github.com/freewebtopdf/redirector/internal/storage"
)

// session is the state shared by every command invocation
type session struct {
	cfg    *config.Config
	siteID uint64
	stdout io.Writer

	db      *gorm.DB
	store   *storage.Store
	service *rules.Service
}

type command struct {
	name    string
	summary string
	usage   string
	flags   func(fs *pflag.FlagSet)
	run     func(ctx context.Context, s *session, fs *pflag.FlagSet) error
}

var commands = []*command{
	{
		name:    "import",
		summary: "Import rules from a redirect file or a directory of them",
		usage:   "import <file|dir>",
		run:     runImport,
	},
	{
		name:    "export",
		summary: "Export rules as YAML or JSON",
		usage:   "export [--format yaml|json] [--out path]",
		flags: func(fs *pflag.FlagSet) {
			fs.String("format", loader.FormatYAML, "output format, yaml or json")
			fs.StringP("out", "o", "", "write to a .yaml, .yml or .json file instead of stdout")
		},
		run: runExport,
	},
	{
		name:    "list",
		summary: "List rules in a table",
		usage:   "list [--all-sites] [--limit n]",
		flags: func(fs *pflag.FlagSet) {
			fs.Bool("all-sites", false, "list rules of every site")
			fs.Int("limit", 0, "maximum rows, 0 for no limit")
		},
		run: runList,
	},
	{
		name:    "check-loop",
		summary: "Report whether a redirect from source to destination would loop",
		usage:   "check-loop <source> <destination>",
		run:     runCheckLoop,
	},
	{
		name:    "resolve",
		summary: "Resolve a URL against the stored rules",
		usage:   "resolve <url>",
		run:     runResolve,
	},
}

// run parses global flags, opens storage and dispatches the command
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	global := pflag.NewFlagSet("redirectctl", pflag.ContinueOnError)
	global.SetOutput(stderr)
	global.SetInterspersed(false)
	driver := global.String("driver", cfg.Storage.Driver, "storage driver")
	dsn := global.String("dsn", cfg.Storage.DSN, "database DSN")
	siteID := global.Uint64("site", cfg.Redirects.DefaultSiteID, "site ID")
	global.Usage = func() { printUsage(stderr) }

	if err := global.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return usagef("%v", err)
	}

	rest := global.Args()
	if len(rest) == 0 {
		return usagef("no command given")
	}

	cmd := lookup(rest[0])
	if cmd == nil {
		return usagef("unknown command %q", rest[0])
	}

	fs := pflag.NewFlagSet(cmd.name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: redirectctl %s\n\n%s\n", cmd.usage, cmd.summary)
		if fs.HasFlags() {
			fmt.Fprintf(stderr, "\nFlags:\n%s", fs.FlagUsages())
		}
	}
	if cmd.flags != nil {
		cmd.flags(fs)
	}
	if err := fs.Parse(rest[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return usagef("%s: %v", cmd.name, err)
	}

	cfg.Storage.Driver = *driver
	cfg.Storage.DSN = *dsn
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	s, err := openSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = storage.Close(s.db) }()
	s.siteID = *siteID
	s.stdout = stdout

	return cmd.run(ctx, s, fs)
}

func lookup(name string) *command {
	for _, cmd := range commands {
		if cmd.name == name {
			return cmd
		}
	}
	return nil
}

func openSession(ctx context.Context, cfg *config.Config) (*session, error) {
	db, err := storage.Open(ctx, storage.Options{
		Driver:        cfg.Storage.Driver,
		DSN:           cfg.Storage.DSN,
		MaxOpenConns:  cfg.Storage.MaxOpenConns,
		SlowThreshold: cfg.Storage.SlowQuery,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	store, err := storage.NewStore(db)
	if err != nil {
		_ = storage.Close(db)
		return nil, err
	}
	return &session{
		cfg:     cfg,
		db:      db,
		store:   store,
		service: rules.NewService(store, cache.NewNoopCache(), domain.NewValidator()),
	}, nil
}

func runImport(ctx context.Context, s *session, fs *pflag.FlagSet) error {
	if fs.NArg() != 1 {
		return usagef("import: expected exactly one path")
	}
	path := fs.Arg(0)

	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	var ruleList []domain.RedirectRule
	if info.IsDir() {
		var loadErrors []loader.LoadError
		ruleList, loadErrors, err = loader.LoadDir(ctx, path)
		if err != nil {
			return err
		}
		for _, le := range loadErrors {
			fmt.Fprintf(s.stdout, "skipped %s: %s\n", le.FilePath, le.Error)
		}
	} else {
		var loadErr *loader.LoadError
		ruleList, loadErr = loader.ParseFile(path)
		if loadErr != nil {
			if loadErr.Line > 0 {
				return fmt.Errorf("%s:%d: %s", loadErr.FilePath, loadErr.Line, loadErr.Error)
			}
			return fmt.Errorf("%s: %s", loadErr.FilePath, loadErr.Error)
		}
	}

	for i := range ruleList {
		if ruleList[i].SiteID == 0 {
			ruleList[i].SiteID = s.siteID
		}
	}

	result := s.service.Import(ctx, ruleList)
	fmt.Fprintf(s.stdout, "created %d, skipped %d, failed %d\n", result.Created, result.Skipped, len(result.Failed))
	for _, f := range result.Failed {
		fmt.Fprintf(s.stdout, "  #%d %s: [%s] %s\n", f.Index, f.Source, f.Code, f.Error)
	}
	if len(result.Failed) > 0 {
		return fmt.Errorf("%d rules failed to import", len(result.Failed))
	}
	return nil
}

func runExport(ctx context.Context, s *session, fs *pflag.FlagSet) error {
	format, _ := fs.GetString("format")
	out, _ := fs.GetString("out")
	if format != loader.FormatYAML && format != loader.FormatJSON {
		return usagef("export: unsupported format %q", format)
	}

	siteID := s.siteID
	ruleList, err := s.service.List(ctx, domain.RuleFilter{SiteID: &siteID})
	if err != nil {
		return err
	}

	// the file extension decides the format of --out
	if out != "" {
		if err := loader.WriteFile(out, ruleList); err != nil {
			return err
		}
		fmt.Fprintf(s.stdout, "exported %d rules to %s\n", len(ruleList), out)
		return nil
	}

	data, err := loader.Encode(ruleList, format)
	if err != nil {
		return err
	}
	_, err = s.stdout.Write(data)
	return err
}

func runList(ctx context.Context, s *session, fs *pflag.FlagSet) error {
	allSites, _ := fs.GetBool("all-sites")
	limit, _ := fs.GetInt("limit")

	filter := domain.RuleFilter{Limit: limit}
	if !allSites {
		siteID := s.siteID
		filter.SiteID = &siteID
	}

	ruleList, err := s.service.List(ctx, filter)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(s.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSITE\tSTATUS\tMATCH\tSOURCE\tDESTINATION\tENABLED\tHITS")
	for _, r := range ruleList {
		dest := r.Destination
		if dest == "" {
			dest = "-"
		}
		fmt.Fprintf(tw, "%d\t%d\t%d\t%s\t%s\t%s\t%s\t%d\n",
			r.ID, r.SiteID, r.StatusCode, r.MatchStrategy, r.SourcePattern, dest, strconv.FormatBool(r.Enabled), r.HitCount)
	}
	return tw.Flush()
}

func runCheckLoop(ctx context.Context, s *session, fs *pflag.FlagSet) error {
	if fs.NArg() != 2 {
		return usagef("check-loop: expected <source> <destination>")
	}

	loops, err := s.service.WouldCreateLoop(ctx, fs.Arg(0), fs.Arg(1), s.siteID, 0)
	if err != nil {
		return err
	}
	if loops {
		fmt.Fprintf(s.stdout, "loop: %s -> %s would redirect back to its source\n", fs.Arg(0), fs.Arg(1))
		return fmt.Errorf("redirect loop detected")
	}
	fmt.Fprintln(s.stdout, "ok: no loop")
	return nil
}

func runResolve(ctx context.Context, s *session, fs *pflag.FlagSet) error {
	if fs.NArg() != 1 {
		return usagef("resolve: expected exactly one URL")
	}

	target := fs.Arg(0)
	fullURL, path := "", target
	if domain.IsAbsoluteURL(target) {
		fullURL, path = target, domain.PathOf(target)
	}

	res := resolver.New(s.store, cache.NewNoopCache(), analytics.NopRecorder{}, resolver.Options{
		ExcludePatterns: s.cfg.Redirects.ExcludePatterns,
		BaseURL:         s.cfg.Redirects.BaseURL,
	})
	result, ok := res.Resolve(ctx, fullURL, path, s.siteID)
	if !ok {
		fmt.Fprintf(s.stdout, "no redirect for %s\n", target)
		return nil
	}

	enc := json.NewEncoder(s.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/gpr-bridge/bridge"
	"github.com/wippyai/gpr-bridge/config"
	"github.com/wippyai/gpr-bridge/errors"
	"github.com/wippyai/gpr-bridge/metrics"
	"github.com/wippyai/gpr-bridge/native"
	"github.com/wippyai/gpr-bridge/project"
)

// scenarioFlag collects repeated -X name=value flags.
type scenarioFlag map[string]string

func (s scenarioFlag) String() string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	pairs := make([]string, len(names))
	for i, name := range names {
		pairs[i] = name + "=" + s[name]
	}
	return strings.Join(pairs, ",")
}

func (s scenarioFlag) Set(v string) error {
	name, value, ok := strings.Cut(v, "=")
	if !ok || name == "" {
		return fmt.Errorf("expected name=value, got %q", v)
	}
	s[name] = value
	return nil
}

type options struct {
	scenario    scenarioFlag
	libFile     string
	projectFile string
	target      string
	runtime     string
	configFile  string
	subproject  string
	mode        project.Mode
	adaOnly     bool
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	opts := options{scenario: scenarioFlag{}}
	var (
		modeName    = flag.String("mode", "default", "Source files mode (default, root, whole, runtime)")
		charset     = flag.String("charset", cfg.Charset, "Charset of strings exchanged with the library")
		strict      = flag.Bool("strict", cfg.StrictDiagnostics, "Fail the load on any diagnostic")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
		showMetrics = flag.Bool("metrics", false, "Print bridge metrics to stderr on exit")
		logLevel    = flag.String("log", cfg.LogLevel, "Log level")
	)
	flag.StringVar(&opts.libFile, "lib", cfg.LibraryPath, "Path to the project library wasm file")
	flag.StringVar(&opts.projectFile, "P", "", "Project file (implicit project when empty)")
	flag.Var(opts.scenario, "X", "Scenario variable name=value (repeatable)")
	flag.StringVar(&opts.target, "target", "", "Target triplet")
	flag.StringVar(&opts.runtime, "runtime", "", "Runtime name")
	flag.StringVar(&opts.configFile, "config", "", "Configuration file")
	flag.StringVar(&opts.subproject, "project", "", "Subproject for charset and source queries")
	flag.BoolVar(&opts.adaOnly, "ada-only", false, "Only consider Ada sources")
	flag.Parse()

	if opts.libFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: gprinspect -lib <gpr.wasm> [-P project.gpr] [-X name=value ...] [-mode whole]")
		fmt.Fprintln(os.Stderr, "       gprinspect -lib <gpr.wasm> -P project.gpr -i  (interactive mode)")
		fmt.Fprintln(os.Stderr, "The library path can also come from GPR_BRIDGE_LIBRARY.")
		os.Exit(1)
	}

	opts.mode, err = project.ParseMode(*modeName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	cfg.Charset = *charset
	cfg.StrictDiagnostics = *strict
	cfg.LogLevel = *logLevel
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	log, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	native.SetLogger(log)

	reg := prometheus.NewRegistry()
	code := run(cfg, opts, log, metrics.New(reg), *interactive)
	if *showMetrics {
		if err := metrics.WriteText(os.Stderr, reg); err != nil {
			log.Warn("write metrics", zap.Error(err))
		}
	}
	os.Exit(code)
}

func run(cfg config.Config, opts options, log *zap.Logger, col *metrics.Collector, interactive bool) int {
	ctx := context.Background()

	data, err := os.ReadFile(opts.libFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: read library: %v\n", err)
		return 1
	}

	lib, err := native.Open(ctx, data, cfg.Native())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	lopts, err := cfg.LoaderOptions(log,
		bridge.WithHandleObserver(col),
		bridge.WithOutcomeObserver(col),
	)
	if err != nil {
		_ = lib.Close(ctx)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	loader := project.NewLoader(lib, lopts...)
	defer func() {
		if err := loader.Close(ctx); err != nil {
			log.Warn("close loader", zap.Error(err))
		}
	}()

	if err := loader.Bridge().Verify(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: library does not match the operation table: %v\n", err)
		return 1
	}

	if interactive {
		if err := runInteractive(ctx, loader, opts); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	st := plainStyles()
	if term.IsTerminal(int(os.Stdout.Fd())) {
		st = colorStyles()
	}
	return inspect(ctx, loader, opts, os.Stdout, st)
}

// styles renders the report. Plain styles leave text unchanged.
type styles struct {
	heading lipgloss.Style
	warning lipgloss.Style
	failure lipgloss.Style
}

func plainStyles() styles {
	return styles{
		heading: lipgloss.NewStyle(),
		warning: lipgloss.NewStyle(),
		failure: lipgloss.NewStyle(),
	}
}

func colorStyles() styles {
	return styles{
		heading: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4")),
		warning: lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD700")),
		failure: lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")),
	}
}

// load runs the explicit or implicit load opts asks for.
func load(ctx context.Context, loader *project.Loader, opts options) (*project.Project, []string, error) {
	if opts.projectFile == "" {
		return loader.LoadImplicit(ctx, project.ImplicitOptions{
			Target:     opts.target,
			Runtime:    opts.runtime,
			ConfigFile: opts.configFile,
		})
	}
	return loader.Load(ctx, project.LoadOptions{
		Scenario:    opts.scenario,
		ProjectFile: opts.projectFile,
		Target:      opts.target,
		Runtime:     opts.runtime,
		ConfigFile:  opts.configFile,
		AdaOnly:     opts.adaOnly,
	})
}

// inspect loads the project and prints diagnostics, the default charset
// and the source files. It returns the process exit code: 2 for a hard
// failure, 1 for any other error.
func inspect(ctx context.Context, loader *project.Loader, opts options, w io.Writer, st styles) int {
	prj, diags, err := load(ctx, loader, opts)
	for _, d := range diags {
		fmt.Fprintln(w, st.warning.Render("warning: "+d))
	}
	if err != nil {
		fmt.Fprintln(w, st.failure.Render("error: "+err.Error()))
		if errors.IsKind(err, errors.KindHardFailure) {
			return 2
		}
		return 1
	}
	defer func() { _ = prj.Close(ctx) }()

	name := prj.File()
	if name == "" {
		name = "(implicit)"
	}
	fmt.Fprintf(w, "%s %s\n", st.heading.Render("Project:"), name)

	cs, err := prj.DefaultCharset(ctx, opts.subproject)
	if err != nil {
		fmt.Fprintln(w, st.failure.Render("error: "+err.Error()))
		return 1
	}
	fmt.Fprintf(w, "%s %s\n", st.heading.Render("Charset:"), cs)

	var subprojects []string
	if opts.subproject != "" {
		subprojects = append(subprojects, opts.subproject)
	}
	files, err := prj.SourceFiles(ctx, opts.mode, subprojects...)
	if err != nil {
		fmt.Fprintln(w, st.failure.Render("error: "+err.Error()))
		return 1
	}
	fmt.Fprintf(w, "%s %d (%s)\n", st.heading.Render("Sources:"), len(files), opts.mode)
	for _, f := range files {
		fmt.Fprintf(w, "  %s\n", f)
	}
	return 0
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xde-mcp/cmdgate/internal/api"
	"github.com/xde-mcp/cmdgate/internal/audit"
	"github.com/xde-mcp/cmdgate/internal/completion"
	"github.com/xde-mcp/cmdgate/internal/config"
	"github.com/xde-mcp/cmdgate/internal/hook"
	"github.com/xde-mcp/cmdgate/internal/logger"
	"github.com/xde-mcp/cmdgate/internal/rules"
	"github.com/xde-mcp/cmdgate/internal/shell"
	"github.com/xde-mcp/cmdgate/internal/tui"
	"github.com/xde-mcp/cmdgate/internal/types"
)

// Version is set at build time
var Version = "0.3.0"

var log = logger.New("main")

func main() {
	if completion.Run() {
		return
	}

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "hook":
		runHook(os.Args[2:])
	case "check":
		runCheck(os.Args[2:])
	case "scan":
		runScan(os.Args[2:])
	case "serve":
		runServe(os.Args[2:])
	case "lint-rules":
		runLintRules(os.Args[2:])
	case "list-rules":
		runListRules(os.Args[2:])
	case "audit":
		runAudit(os.Args[2:])
	case "completion":
		runCompletion(os.Args[2:])
	case "version", "-v", "--version":
		runVersion(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// commonFlags are accepted by every subcommand that loads the config.
type commonFlags struct {
	config   string
	logLevel string
	noColor  bool
}

func addCommonFlags(fs *flag.FlagSet) *commonFlags {
	cf := &commonFlags{}
	fs.StringVar(&cf.config, "config", "", "Path to configuration file (default $CMDGATE_CONFIG or ~/.cmdgate/config.yaml)")
	fs.StringVar(&cf.logLevel, "log-level", "", "Log level: trace, debug, info, warn, error")
	fs.BoolVar(&cf.noColor, "no-color", false, "Disable colored output")
	return cf
}

// loadConfig resolves the config and applies the logging settings.
func loadConfig(cf *commonFlags) (*config.Config, error) {
	if cf.logLevel != "" {
		if _, err := logger.ParseLevel(cf.logLevel); err != nil {
			return nil, err
		}
	}
	cfg, _, err := config.ResolveFile(cf.config)
	if err != nil {
		return nil, err
	}
	level := string(cfg.Log.Level)
	if cf.logLevel != "" {
		level = cf.logLevel
	}
	logger.SetGlobalLevelFromString(level)
	if cf.noColor || cfg.Log.NoColor {
		logger.SetColored(false)
		tui.SetPlainMode(true)
	}
	return cfg, nil
}

// newEngine builds the classifier for cfg. The environment snapshot is
// taken once here; the engine never reads the process environment.
func newEngine(cfg *config.Config) (*rules.Engine, error) {
	userFile := cfg.Rules.UserFile
	if userFile == "" {
		userFile = rules.DefaultUserRulesFile()
	}
	return rules.NewEngine(rules.EngineConfig{
		ProjectDir:     cfg.ProjectDir,
		BoundaryDir:    cfg.BoundaryDir,
		Env:            os.Environ(),
		SafePipes:      cfg.SafePipes,
		Modules:        cfg.Interpreter.Modules,
		UserRulesFile:  userFile,
		DisableBuiltin: cfg.Rules.DisableBuiltin,
	})
}

// openTrail opens the audit trail when enabled. Failures are logged and
// yield a nil trail; auditing never blocks a decision.
func openTrail(cfg *config.Config) *audit.Trail {
	if !cfg.Audit.Enabled {
		return nil
	}
	trail, err := audit.Open(cfg.Audit.Path)
	if err != nil {
		log.Warn("Audit trail disabled: %v", err)
		return nil
	}
	return trail
}

// =============================================================================
// hook
// =============================================================================

// runHook is the agent-facing entry point. It always exits 0.
func runHook(args []string) {
	hookMain(args, os.Stdin, os.Stdout, os.Stderr)
}

// hookMain reads one hook request from in and writes the decision to out.
// stdout carries only decision JSON; all diagnostics go to errOut.
func hookMain(args []string, in io.Reader, out, errOut io.Writer) {
	logger.SetOutput(errOut)
	logger.SetColored(false)

	hookFlags := flag.NewFlagSet("hook", flag.ContinueOnError)
	hookFlags.SetOutput(errOut)
	event := hookFlags.String("event", "pre-tool-use", "Hook event: pre-tool-use or permission-request")
	configPath := hookFlags.String("config", "", "Path to configuration file")
	if err := hookFlags.Parse(args); err != nil {
		return
	}
	ev := types.ParseHookEvent(*event)
	if !ev.Valid() {
		log.Warn("Unknown hook event %q", *event)
		return
	}

	// The kill-switch is honored before stdin is touched.
	env, err := config.LoadEnv()
	if err != nil {
		log.Warn("%v", err)
		return
	}
	if env.Disabled() {
		log.Debug("Gate disabled by environment")
		return
	}

	cfg, _, err := config.ResolveFile(*configPath)
	if err != nil {
		log.Warn("Config: %v", err)
		return
	}
	if cfg.Disabled {
		return
	}
	logger.SetGlobalLevelFromString(string(cfg.Log.Level))

	engine, err := newEngine(cfg)
	if err != nil {
		log.Warn("Rules engine: %v", err)
		return
	}

	var recorder hook.Recorder
	if trail := openTrail(cfg); trail != nil {
		defer func() { _ = trail.Close() }()
		recorder = trail
	}

	if err := hook.NewGate(engine, recorder).Run(in, out, ev); err != nil {
		log.Warn("Failed to write decision: %v", err)
	}
}

// =============================================================================
// check / scan
// =============================================================================

func runCheck(args []string) {
	os.Exit(checkMain(args, os.Stdout))
}

// checkMain classifies one command and prints the decision.
// Returns the process exit code.
func checkMain(args []string, out io.Writer) int {
	checkFlags := flag.NewFlagSet("check", flag.ContinueOnError)
	jsonOutput := checkFlags.Bool("json", false, "Output as JSON")
	explain := checkFlags.Bool("explain", false, "Also print the parsed invocation facts")
	cf := addCommonFlags(checkFlags)
	if err := checkFlags.Parse(args); err != nil {
		return 2
	}
	if checkFlags.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Usage: cmdgate check [--json] [--explain] <command>")
		return 2
	}
	cmd := strings.Join(checkFlags.Args(), " ")

	cfg, err := loadConfig(cf)
	if err != nil {
		tui.PrintError(err.Error())
		return 1
	}
	engine, err := newEngine(cfg)
	if err != nil {
		tui.PrintError(err.Error())
		return 1
	}

	d := engine.Classify(cmd)
	var facts *rules.Facts
	if *explain {
		facts, _ = engine.Facts(cmd)
	}

	if *jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if *explain {
			_ = enc.Encode(struct {
				rules.Decision
				Facts *rules.Facts `json:"facts,omitempty"`
			}{d, facts})
		} else {
			_ = enc.Encode(d)
		}
		return 0
	}

	fmt.Fprintf(out, "%s  %s\n", tui.VerdictBadge(d.Verdict), tui.StyleCommand.Render(cmd))
	fmt.Fprint(out, tui.Fields([]tui.Field{
		{Label: "grammar", Value: d.Grammar},
		{Label: "rule", Value: d.Rule},
		{Label: "reason", Value: d.Reason},
	}, "  "))
	if facts != nil {
		data, err := json.MarshalIndent(facts, "  ", "  ")
		if err == nil {
			fmt.Fprintf(out, "  facts:\n  %s\n", data)
		}
	}
	return 0
}

func runScan(args []string) {
	os.Exit(scanMain(args, os.Stdout))
}

// scanMain runs only the injection scanner and shows the masked command.
func scanMain(args []string, out io.Writer) int {
	scanFlags := flag.NewFlagSet("scan", flag.ContinueOnError)
	grammar := scanFlags.String("grammar", "gh", "Grammar whose scan profile to use")
	cf := addCommonFlags(scanFlags)
	if err := scanFlags.Parse(args); err != nil {
		return 2
	}
	if scanFlags.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Usage: cmdgate scan [--grammar gh|python] <command>")
		return 2
	}
	cmd := strings.Join(scanFlags.Args(), " ")

	cfg, err := loadConfig(cf)
	if err != nil {
		tui.PrintError(err.Error())
		return 1
	}
	engine, err := newEngine(cfg)
	if err != nil {
		tui.PrintError(err.Error())
		return 1
	}
	scanner, ok := engine.Scanner(*grammar)
	if !ok {
		tui.PrintError(fmt.Sprintf("unknown grammar %q (known: %s)", *grammar, strings.Join(engine.Grammars(), ", ")))
		return 2
	}

	masked := shell.Mask(cmd)
	fmt.Fprintf(out, "masked:      %s\n", masked)
	fmt.Fprintf(out, "neutralized: %s\n", scanner.Neutralize(masked))
	if f := scanner.Scan(cmd); f != nil {
		fmt.Fprintf(out, "%s %s %q\n", tui.StyleError.Render("finding:"), f.Kind.Description(), f.Text)
		return 1
	}
	fmt.Fprintln(out, tui.StyleSuccess.Render("no injection found"))
	return 0
}

// =============================================================================
// serve
// =============================================================================

func runServe(args []string) {
	serveFlags := flag.NewFlagSet("serve", flag.ExitOnError)
	listen := serveFlags.String("listen", "", "Listen address (default from config)")
	noWatch := serveFlags.Bool("no-watch", false, "Do not hot reload the user rule file")
	cf := addCommonFlags(serveFlags)
	_ = serveFlags.Parse(args)

	cfg, err := loadConfig(cf)
	if err != nil {
		tui.PrintError(err.Error())
		os.Exit(1)
	}
	if *listen != "" {
		cfg.Server.Listen = *listen
		if err := cfg.Validate(); err != nil {
			tui.PrintError(err.Error())
			os.Exit(1)
		}
	}
	if cf.logLevel == "" && cfg.Log.Level == types.LogLevelWarn {
		logger.SetGlobalLevel(logger.LevelInfo)
	}

	engine, err := newEngine(cfg)
	if err != nil {
		log.Error("Failed to initialize rules engine: %v", err)
		os.Exit(1)
	}
	log.Info("Rules engine: %d rules loaded for %s", engine.RuleCount(), strings.Join(engine.Grammars(), ", "))

	var watcher *rules.Watcher
	if cfg.Server.Watch && !*noWatch {
		watcher, err = rules.NewWatcher(engine)
		if err != nil {
			log.Warn("Failed to create rule watcher: %v", err)
		} else if err := watcher.Start(); err != nil {
			log.Warn("Failed to start rule watcher: %v", err)
			watcher = nil
		}
	}

	trail := openTrail(cfg)

	gin.SetMode(gin.ReleaseMode)
	server := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           newRouter(engine, trail, watcher),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server error: %v", err)
			os.Exit(1)
		}
	}()
	log.Info("cmdgate listening on %s (project %s)", cfg.Server.Listen, cfg.ProjectDir)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown: %v", err)
	}
	if watcher != nil {
		_ = watcher.Stop()
	}
	if err := trail.Close(); err != nil {
		log.Warn("Failed to close audit trail: %v", err)
	}
	log.Info("cmdgate stopped")
}

// newRouter mounts the classifier API. trail and watcher may be nil.
func newRouter(engine *rules.Engine, trail *audit.Trail, watcher *rules.Watcher) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), api.RequestLogMiddleware(), api.SecurityHeadersMiddleware(),
		api.BodySizeLimitMiddleware(api.MaxBodySize), api.JSONBodyMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	var observe rules.Observer
	var recorder hook.Recorder
	if trail != nil {
		observe = trail.Record
		recorder = trail
	}
	handler := rules.NewAPIHandler(engine, observe)
	if watcher != nil {
		handler = handler.WithReloadClock(watcher.LastReload)
	}

	group := r.Group("/api")
	handler.Register(group)
	group.POST("/hook", hook.NewGate(engine, recorder).HandleHook)
	return r
}

// =============================================================================
// rule tooling
// =============================================================================

func runLintRules(args []string) {
	lintFlags := flag.NewFlagSet("lint-rules", flag.ExitOnError)
	showInfo := lintFlags.Bool("info", false, "Show informational messages")
	cf := addCommonFlags(lintFlags)
	_ = lintFlags.Parse(args)

	cfg, err := loadConfig(cf)
	if err != nil {
		tui.PrintError(err.Error())
		os.Exit(1)
	}

	linter := rules.NewLinter(grammarNames())
	var result rules.LintResult

	if lintFlags.NArg() > 0 {
		filePath := lintFlags.Arg(0)
		fmt.Printf("Linting %s...\n\n", filePath)
		result, err = linter.LintFile(filePath)
	} else {
		fmt.Println("Linting all rules...")

		userFile := cfg.Rules.UserFile
		if userFile == "" {
			userFile = rules.DefaultUserRulesFile()
		}
		loader := rules.NewLoader(userFile)
		builtinRules, loadErr := loader.LoadBuiltin()
		if loadErr != nil {
			tui.PrintWarning(fmt.Sprintf("Failed to load builtin rules: %v", loadErr))
		}
		fmt.Printf("Builtin rules: %d\n", len(builtinRules))

		userRules, loadErr := loader.LoadUser()
		if loadErr != nil {
			tui.PrintWarning(fmt.Sprintf("Failed to load user rules: %v", loadErr))
		}
		fmt.Printf("User rules: %d\n\n", len(userRules))

		result = linter.LintRules(append(builtinRules, userRules...))
	}

	if err != nil {
		tui.PrintError(err.Error())
		os.Exit(1)
	}

	fmt.Print(result.FormatIssues(*showInfo))
	fmt.Println()
	switch {
	case result.Errors > 0:
		tui.PrintError(fmt.Sprintf("%d error(s), %d warning(s)", result.Errors, result.Warns))
		os.Exit(1)
	case result.Warns > 0:
		tui.PrintWarning(fmt.Sprintf("%d warning(s)", result.Warns))
	default:
		tui.PrintSuccess("All rules valid")
	}
}

func grammarNames() []string {
	var names []string
	for _, g := range rules.DefaultGrammars() {
		names = append(names, g.Name)
	}
	return names
}

func runListRules(args []string) {
	listFlags := flag.NewFlagSet("list-rules", flag.ExitOnError)
	jsonOutput := listFlags.Bool("json", false, "Output as JSON")
	grammar := listFlags.String("grammar", "", "Only list rules for this grammar")
	cf := addCommonFlags(listFlags)
	_ = listFlags.Parse(args)

	cfg, err := loadConfig(cf)
	if err != nil {
		tui.PrintError(err.Error())
		os.Exit(1)
	}
	engine, err := newEngine(cfg)
	if err != nil {
		tui.PrintError(err.Error())
		os.Exit(1)
	}

	if err := writeRules(os.Stdout, engine.GetRules(), *grammar, *jsonOutput); err != nil {
		tui.PrintError(err.Error())
		os.Exit(1)
	}
}

// writeRules prints rules grouped by grammar, in evaluation order.
func writeRules(out io.Writer, all []rules.Rule, grammar string, asJSON bool) error {
	var selected []rules.Rule
	for _, r := range all {
		if grammar == "" || r.Grammar == grammar {
			selected = append(selected, r)
		}
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"total": len(selected), "rules": selected})
	}

	byGrammar := make(map[string][]rules.Rule)
	var order []string
	for _, r := range selected {
		if _, seen := byGrammar[r.Grammar]; !seen {
			order = append(order, r.Grammar)
		}
		byGrammar[r.Grammar] = append(byGrammar[r.Grammar], r)
	}
	sort.Strings(order)

	fmt.Fprintf(out, "%s (%d total)\n", tui.StyleTitle.Render("cmdgate rules"), len(selected))
	for _, g := range order {
		group := byGrammar[g]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Class.Tier() < group[j].Class.Tier()
		})
		fmt.Fprintf(out, "\n%s\n", tui.StyleBold.Render(g))
		for _, r := range group {
			status := tui.StyleSuccess.Render(tui.IconCheck)
			if r.Enabled != nil && !*r.Enabled {
				status = tui.StyleMuted.Render(tui.IconCircle)
			}
			if tui.IsPlainMode() {
				status = "+"
				if r.Enabled != nil && !*r.Enabled {
					status = "-"
				}
			}
			source := r.Source
			if r.FilePath != "" {
				source = filepath.Base(r.FilePath)
			}
			fmt.Fprintf(out, "  %s %s %s %s\n", status, tui.VerdictBadge(r.Class.Verdict()),
				tui.StyleBold.Render(r.Name), tui.StyleMuted.Render("["+string(r.Class)+", "+source+"]"))
			if r.Message != "" {
				fmt.Fprintf(out, "      %s\n", tui.StyleMuted.Render(r.Message))
			}
		}
	}
	return nil
}

// =============================================================================
// audit
// =============================================================================

func runAudit(args []string) {
	auditFlags := flag.NewFlagSet("audit", flag.ExitOnError)
	lines := auditFlags.Int("n", 20, "Number of records to show")
	jsonOutput := auditFlags.Bool("json", false, "Output raw JSON lines")
	cf := addCommonFlags(auditFlags)
	_ = auditFlags.Parse(args)

	if *lines < 1 {
		*lines = 20
	} else if *lines > 10000 {
		*lines = 10000
	}

	cfg, err := loadConfig(cf)
	if err != nil {
		tui.PrintError(err.Error())
		os.Exit(1)
	}
	records, err := audit.Read(cfg.Audit.Path, *lines)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			tui.PrintInfo(fmt.Sprintf("No audit trail at %s (audit.enabled: %t)", cfg.Audit.Path, cfg.Audit.Enabled))
			return
		}
		tui.PrintError(err.Error())
		os.Exit(1)
	}
	writeAudit(os.Stdout, records, *jsonOutput)
}

func writeAudit(out io.Writer, records []audit.Record, asJSON bool) {
	if asJSON {
		enc := json.NewEncoder(out)
		for _, r := range records {
			_ = enc.Encode(r)
		}
		return
	}
	for _, r := range records {
		fmt.Fprintf(out, "%s %s %s %s\n",
			tui.StyleMuted.Render(r.Time.Local().Format("2006-01-02 15:04:05")),
			tui.VerdictBadge(r.Verdict),
			tui.StyleCommand.Render(r.Command),
			tui.StyleMuted.Render("("+r.Rule+")"))
	}
}

// =============================================================================
// completion / version / help
// =============================================================================

func runCompletion(args []string) {
	action := "install"
	if len(args) > 0 {
		action = args[0]
	}
	switch action {
	case "install":
		if completion.IsInstalled() {
			tui.PrintInfo("Shell completion is already installed")
			return
		}
		if err := completion.Install(); err != nil {
			tui.PrintError(fmt.Sprintf("Failed to install completion: %v", err))
			os.Exit(1)
		}
		tui.PrintSuccess("Shell completion installed; restart your shell to use it")
	case "uninstall":
		if err := completion.Uninstall(); err != nil {
			tui.PrintError(fmt.Sprintf("Failed to uninstall completion: %v", err))
			os.Exit(1)
		}
		tui.PrintSuccess("Shell completion removed")
	default:
		fmt.Fprintln(os.Stderr, "Usage: cmdgate completion [install|uninstall]")
		os.Exit(2)
	}
}

func runVersion(args []string) {
	versionFlags := flag.NewFlagSet("version", flag.ExitOnError)
	jsonOutput := versionFlags.Bool("json", false, "Output as JSON")
	_ = versionFlags.Parse(args)

	if *jsonOutput {
		_ = json.NewEncoder(os.Stdout).Encode(map[string]string{
			"version": Version,
			"go":      runtime.Version(),
			"os":      runtime.GOOS,
			"arch":    runtime.GOARCH,
		})
		return
	}
	fmt.Printf("cmdgate %s (%s %s/%s)\n", Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

func printUsage() {
	fmt.Println(`cmdgate - Command-safety gate for agent Bash tool calls

Usage:
  cmdgate hook [--event E]             Read a hook request on stdin, print the decision
  cmdgate check [--json] <command>     Classify a command and print the verdict
  cmdgate scan [--grammar G] <command> Run only the injection scanner
  cmdgate serve [--listen ADDR]        Serve the classifier over HTTP

  cmdgate list-rules [--json]          List all active rules
  cmdgate lint-rules [file.yaml]       Validate rule syntax and patterns
  cmdgate audit [-n N] [--json]        Show recent audited decisions

  cmdgate completion [install|uninstall]  Manage shell completion
  cmdgate help                         Show this help message
  cmdgate version                      Show version

Common Flags:
  --config string       Path to configuration file (default ~/.cmdgate/config.yaml)
  --log-level string    Log level: trace, debug, info, warn, error
  --no-color            Disable colored output

Hook Events:
  pre-tool-use          Emit permissionDecision allow|deny|ask (default)
  permission-request    Emit decision.behavior allow|deny

Environment Variables:
  CLAUDE_PROJECT_DIR               Project root (default: working directory)
  DYAD_DISABLE_CLAUDE_CODE_HOOKS   true/1/yes disables the gate
  CMDGATE_CONFIG                   Configuration file path
  CMDGATE_LOG_LEVEL                Log level override

Examples:
  cmdgate check 'gh pr view 12 --json title'
  cmdgate check --explain 'python .claude/hooks/check.py'
  echo '{"tool_name":"Bash","tool_input":{"command":"gh api repos/o/r"}}' | cmdgate hook`)
}

package rules

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/xde-mcp/cmdgate/internal/logger"
	"github.com/xde-mcp/cmdgate/internal/shell"
	"github.com/xde-mcp/cmdgate/internal/types"
)

// Rule names reported for decisions made before the rule tables run.
const (
	RuleInjection  = "builtin:injection"
	RuleFailClosed = "builtin:fail-closed"
)

// Engine classifies commands against the grammars' rule tables. It is
// safe for concurrent use; only rule reloads take the write lock.
type Engine struct {
	mu sync.RWMutex

	grammars []*compiledGrammar
	byName   map[string]*compiledGrammar

	// Immutable after init (unless DisableBuiltin)
	builtin []CompiledRule
	// Can be hot-reloaded
	user []CompiledRule
	// Per grammar, sorted by class tier (rebuilt on reload)
	merged map[string][]CompiledRule

	loader *Loader
	ctx    *parseContext
	config EngineConfig

	hitCounts map[string]*int64
	verdicts  map[types.Verdict]*int64

	onReloadCallbacks []ReloadCallback
}

// EngineConfig holds engine configuration. The engine never reads the
// process environment; Env is the snapshot used for $VAR expansion.
type EngineConfig struct {
	// ProjectDir is the absolute project root.
	ProjectDir string
	// BoundaryDir is the script boundary relative to ProjectDir.
	BoundaryDir string
	Env         []string
	SafePipes   []string
	// Modules are the interpreter modules that may run with -m.
	Modules        []string
	UserRulesFile  string
	DisableBuiltin bool
	// Grammars defaults to gh and python.
	Grammars []*Grammar
}

// ReloadCallback is called after rules are reloaded
type ReloadCallback func(rules []Rule)

// Stats summarizes classifications since the engine started.
type Stats struct {
	Verdicts map[types.Verdict]int64 `json:"verdicts"`
	Rules    map[string]int64        `json:"rules"`
	Active   int                     `json:"active_rules"`
}

// DefaultGrammars returns the grammar descriptors the engine knows.
func DefaultGrammars() []*Grammar {
	return []*Grammar{GHGrammar(), PythonGrammar()}
}

// NewEngine creates an engine with the builtin rule tables and the user
// rule file, if any.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	e, err := newEngine(cfg)
	if err != nil {
		return nil, err
	}

	if !cfg.DisableBuiltin {
		builtinRules, err := e.loader.LoadBuiltin()
		if err != nil {
			return nil, err
		}
		compiled, err := e.compileRules(builtinRules, true)
		if err != nil {
			return nil, err
		}
		e.builtin = compiled
		log.Debug("Loaded %d builtin rules", len(compiled))
	} else {
		log.Warn("Builtin rules disabled")
	}

	if err := e.ReloadUserRules(); err != nil {
		log.Warn("Failed to load user rules: %v", err)
		e.mu.Lock()
		e.rebuildMergedLocked()
		e.mu.Unlock()
	}
	return e, nil
}

// NewTestEngine creates an engine from a list of rules, bypassing the
// embedded tables and the user file.
func NewTestEngine(cfg EngineConfig, rules []Rule) (*Engine, error) {
	cfg.DisableBuiltin = true
	cfg.UserRulesFile = ""
	e, err := newEngine(cfg)
	if err != nil {
		return nil, err
	}
	compiled, err := e.compileRules(rules, true)
	if err != nil {
		return nil, err
	}
	e.builtin = compiled
	e.rebuildMergedLocked()
	return e, nil
}

func newEngine(cfg EngineConfig) (*Engine, error) {
	if !filepath.IsAbs(cfg.ProjectDir) {
		return nil, fmt.Errorf("project dir %q must be absolute", cfg.ProjectDir)
	}
	if cfg.Grammars == nil {
		cfg.Grammars = DefaultGrammars()
	}
	e := &Engine{
		byName:    make(map[string]*compiledGrammar),
		merged:    make(map[string][]CompiledRule),
		loader:    NewLoader(cfg.UserRulesFile),
		config:    cfg,
		hitCounts: make(map[string]*int64),
		verdicts:  make(map[types.Verdict]*int64),
		ctx: &parseContext{
			env:         cfg.Env,
			containment: NewContainment(cfg.ProjectDir),
			boundary:    filepath.Join(cfg.ProjectDir, cfg.BoundaryDir),
			modules:     set(cfg.Modules...),
		},
	}
	for _, v := range []types.Verdict{types.VerdictAllow, types.VerdictDeny, types.VerdictAsk, types.VerdictNoOpinion} {
		e.verdicts[v] = new(int64)
	}
	for _, g := range cfg.Grammars {
		cg, err := compileGrammar(g, cfg.SafePipes)
		if err != nil {
			return nil, err
		}
		if _, dup := e.byName[g.Name]; dup {
			return nil, fmt.Errorf("duplicate grammar %q", g.Name)
		}
		e.grammars = append(e.grammars, cg)
		e.byName[g.Name] = cg
	}
	return e, nil
}

// Classify decides one command. It never panics; an internal failure is
// reported as no opinion.
func (e *Engine) Classify(cmd string) (d Decision) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Classifier panic: %v", r)
			d = noOpinion("internal classifier error")
		}
		atomic.AddInt64(e.verdicts[d.Verdict], 1)
	}()

	g, inv := e.recognize(cmd)
	if g == nil {
		return noOpinion("not a recognized command")
	}

	d = e.classify(g, inv, cmd)
	d.Grammar = g.Name
	if d.Verdict == types.VerdictAllow && inv.Sudo() {
		log.Debug("Downgrading %s: sudo wrapper", d.Rule)
		d.Verdict = types.VerdictNoOpinion
		d.Reason = "sudo-wrapped commands are never auto-approved (" + d.Reason + ")"
	}
	if logger.Enabled(logger.LevelDebug) {
		log.Debug("[%s] %s -> %s (%s)", g.Name, d.Rule, d.Verdict, d.Reason)
	}
	return d
}

// recognize returns the first grammar whose programs match cmd.
func (e *Engine) recognize(cmd string) (*compiledGrammar, *shell.Invocation) {
	for _, g := range e.grammars {
		if inv, ok := shell.Extract(cmd, g.programs); ok {
			return g, inv
		}
	}
	return nil, nil
}

func (e *Engine) classify(g *compiledGrammar, inv *shell.Invocation, cmd string) Decision {
	var finding *shell.Finding
	if g.scanExempt(inv) {
		finding = g.scanner.ScanRelaxed(cmd)
	} else {
		finding = g.scanner.Scan(cmd)
	}
	if finding != nil {
		return Decision{
			Verdict: types.VerdictDeny,
			Rule:    RuleInjection,
			Reason: fmt.Sprintf("%s command contains shell metacharacters that could allow injection (%s %q)",
				g.Display, finding.Kind.Description(), finding.Text),
		}
	}

	f := g.parse(inv, e.ctx)
	failClosed := f.Malformed != "" || f.UnsafeEnv != ""
	if f.Unrecognized != "" && !failClosed {
		return noOpinion(f.Unrecognized)
	}

	e.mu.RLock()
	rules := e.merged[g.Name]
	e.mu.RUnlock()

	for i := range rules {
		cr := &rules[i]
		verdict := cr.Rule.Class.Verdict()
		if failClosed && verdict == types.VerdictAllow {
			continue
		}
		if !cr.Matches(f) {
			continue
		}
		e.incrementHitCount(g.Name, cr.Rule.Name)
		return Decision{
			Verdict: verdict,
			Rule:    cr.Rule.Name,
			Reason:  renderMessage(cr.Rule.Message, f, e.ctx.boundary),
		}
	}

	if failClosed {
		return Decision{
			Verdict: types.VerdictDeny,
			Rule:    RuleFailClosed,
			Reason:  fmt.Sprintf("%s command cannot be analyzed safely: %s", g.Display, factDetail(f)),
		}
	}
	return noOpinion("no rule matched")
}

// Facts parses cmd without evaluating rules. Used by the check command's
// explain output.
func (e *Engine) Facts(cmd string) (*Facts, bool) {
	g, inv := e.recognize(cmd)
	if g == nil {
		return nil, false
	}
	return g.parse(inv, e.ctx), true
}

// Scanner returns the injection scanner of the named grammar.
func (e *Engine) Scanner(grammar string) (*shell.Scanner, bool) {
	g, ok := e.byName[grammar]
	if !ok {
		return nil, false
	}
	return g.scanner, true
}

// Grammars returns the grammar names in recognition order.
func (e *Engine) Grammars() []string {
	names := make([]string, len(e.grammars))
	for i, g := range e.grammars {
		names[i] = g.Name
	}
	return names
}

// ReloadUserRules reloads the user rule file. On error the previous user
// rules stay active.
func (e *Engine) ReloadUserRules() error {
	userRules, err := e.loader.LoadUser()
	if err != nil {
		return err
	}

	compiled, err := e.compileRules(userRules, false)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.user = compiled
	e.rebuildMergedLocked()
	total := e.countLocked()
	e.mu.Unlock()

	log.Info("Loaded %d user rules, total %d active rules", len(compiled), total)
	e.notifyReload()
	return nil
}

// GetLoader returns the rule loader
func (e *Engine) GetLoader() *Loader {
	return e.loader
}

// GetRules returns all active rules in evaluation order per grammar.
func (e *Engine) GetRules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var rules []Rule
	for _, g := range e.grammars {
		for _, cr := range e.merged[g.Name] {
			rule := cr.Rule
			if count := e.hitCounts[hitKey(g.Name, rule.Name)]; count != nil {
				rule.HitCount = atomic.LoadInt64(count)
			}
			rules = append(rules, rule)
		}
	}
	return rules
}

// RuleCount returns total number of active rules
func (e *Engine) RuleCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.countLocked()
}

func (e *Engine) countLocked() int {
	n := 0
	for _, rules := range e.merged {
		n += len(rules)
	}
	return n
}

// Stats returns verdict and rule hit counters.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s := Stats{
		Verdicts: make(map[types.Verdict]int64, len(e.verdicts)),
		Rules:    make(map[string]int64),
		Active:   e.countLocked(),
	}
	for v, n := range e.verdicts {
		s.Verdicts[v] = atomic.LoadInt64(n)
	}
	for name, n := range e.hitCounts {
		if c := atomic.LoadInt64(n); c > 0 {
			s.Rules[name] = c
		}
	}
	return s
}

// OnReload registers a callback to be called after rules are reloaded.
func (e *Engine) OnReload(callback ReloadCallback) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onReloadCallbacks = append(e.onReloadCallbacks, callback)
}

func (e *Engine) notifyReload() {
	rules := e.GetRules()
	e.mu.RLock()
	callbacks := append([]ReloadCallback(nil), e.onReloadCallbacks...)
	e.mu.RUnlock()
	for _, cb := range callbacks {
		go cb(rules)
	}
}

// compileRules compiles rules for known grammars.
// When strict is true (builtin rules), any error aborts the entire batch.
// When strict is false (user rules), bad rules are skipped with a warning.
func (e *Engine) compileRules(rules []Rule, strict bool) ([]CompiledRule, error) {
	compiled := make([]CompiledRule, 0, len(rules))
	for _, rule := range rules {
		if !rule.IsEnabled() {
			continue
		}
		cr, err := compileRule(rule)
		if err == nil {
			if _, ok := e.byName[rule.Grammar]; !ok {
				err = fmt.Errorf("rule %q: %w %q", rule.Name, errUnknownGrammar, rule.Grammar)
			}
		}
		if err != nil {
			if strict {
				return nil, err
			}
			log.Warn("Skipping rule %q from %s: %v", rule.Name, rule.FilePath, err)
			continue
		}
		compiled = append(compiled, cr)
	}
	return compiled, nil
}

var errUnknownGrammar = errors.New("unknown grammar")

// rebuildMergedLocked rebuilds the per-grammar rule lists (must hold write lock)
func (e *Engine) rebuildMergedLocked() {
	merged := make(map[string][]CompiledRule, len(e.grammars))
	for _, group := range [][]CompiledRule{e.builtin, e.user} {
		for _, cr := range group {
			merged[cr.Rule.Grammar] = append(merged[cr.Rule.Grammar], cr)
		}
	}
	for name, rules := range merged {
		sort.SliceStable(rules, func(i, j int) bool {
			return rules[i].Rule.Class.Tier() < rules[j].Rule.Class.Tier()
		})
		for _, cr := range rules {
			key := hitKey(name, cr.Rule.Name)
			if _, exists := e.hitCounts[key]; !exists {
				e.hitCounts[key] = new(int64)
			}
		}
	}
	e.merged = merged
}

func hitKey(grammar, rule string) string {
	return grammar + "/" + rule
}

func (e *Engine) incrementHitCount(grammar, rule string) {
	e.mu.RLock()
	count := e.hitCounts[hitKey(grammar, rule)]
	e.mu.RUnlock()
	if count != nil {
		atomic.AddInt64(count, 1)
	}
}

// Command janus is the process entry point (spec.md §6 command-line
// surface): a default action that runs the interactive terminal channel,
// a one-shot `-m` flag, and four subcommands (onboard, gateway, mcp-server,
// setup). No subcommand framework in the teacher's own go.mod and no
// main.go in its pack to imitate, so this dispatches by hand the way the
// rest of the workspace favors the standard library over an ungrounded
// new dependency.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"
	"golang.org/x/sync/errgroup"

	"github.com/janus-run/janus/internal/agent"
	"github.com/janus-run/janus/internal/auth"
	"github.com/janus-run/janus/internal/bus"
	"github.com/janus-run/janus/internal/channel/discord"
	"github.com/janus-run/janus/internal/channel/slack"
	"github.com/janus-run/janus/internal/channel/telegram"
	"github.com/janus-run/janus/internal/channel/terminal"
	"github.com/janus-run/janus/internal/config"
	"github.com/janus-run/janus/internal/gate"
	"github.com/janus-run/janus/internal/learner"
	"github.com/janus-run/janus/internal/logger"
	"github.com/janus-run/janus/internal/mcp"
	"github.com/janus-run/janus/internal/mcpserver"
	"github.com/janus-run/janus/internal/memory"
	"github.com/janus-run/janus/internal/metrics"
	"github.com/janus-run/janus/internal/providers"
	"github.com/janus-run/janus/internal/scheduler"
	"github.com/janus-run/janus/internal/session"
	"github.com/janus-run/janus/internal/skills"
	"github.com/janus-run/janus/internal/store"
	"github.com/janus-run/janus/internal/summarizer"
	"github.com/janus-run/janus/internal/tools"
	"github.com/janus-run/janus/internal/userprofile"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) > 0 {
		switch args[0] {
		case "onboard":
			return runOnboard(args[1:])
		case "gateway":
			return runGateway(args[1:])
		case "mcp-server":
			return runMCPServer(args[1:])
		case "setup":
			return runSetup(args[1:])
		}
	}
	return runInteractiveOrOneShot(args)
}

// runInteractiveOrOneShot is the default action: with `-m <text>` it runs
// one message through the agent loop and exits; with no flags it starts
// the readline-backed terminal channel (spec.md §6).
func runInteractiveOrOneShot(args []string) int {
	fs := flag.NewFlagSet("janus", flag.ContinueOnError)
	message := fs.String("m", "", "run one message through the agent and exit")
	workspace := fs.String("workspace", ".", "workspace directory")
	cfgPath := fs.String("config", "", "path to a workspace config.json")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := loadConfig(*workspace, *cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "janus: fatal:", err)
		return 1
	}

	app, err := newApp(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "janus: fatal:", err)
		return 1
	}
	defer app.Close()

	ctx, cancel := signalContext()
	defer cancel()

	if *message != "" {
		reply, err := app.loop.ProcessDirect(ctx, *message, "terminal", "one-shot")
		if err != nil {
			fmt.Fprintln(os.Stderr, "janus: error:", err)
			return 1
		}
		fmt.Println(reply)
		return 0
	}

	term, err := terminal.New(app.msgBus)
	if err != nil {
		fmt.Fprintln(os.Stderr, "janus: fatal:", err)
		return 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { app.msgBus.RunDispatcher(gctx); return nil })
	g.Go(func() error { return app.loop.Run(gctx) })
	if app.scheduler != nil {
		g.Go(func() error { return app.scheduler.Run(gctx) })
	}
	g.Go(func() error { return term.Start(gctx) })

	if err := g.Wait(); err != nil && gctx.Err() == nil {
		fmt.Fprintln(os.Stderr, "janus: error:", err)
		return 1
	}
	return 0
}

// runGateway runs headless: every configured chat-bot channel plus the
// dispatcher, agent loop, and scheduler, until signalled (spec.md §6
// "gateway runs headless with chat-bot channel").
func runGateway(args []string) int {
	fs := flag.NewFlagSet("gateway", flag.ContinueOnError)
	workspace := fs.String("workspace", ".", "workspace directory")
	cfgPath := fs.String("config", "", "path to a workspace config.json")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := loadConfig(*workspace, *cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "janus: fatal:", err)
		return 1
	}

	app, err := newApp(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "janus: fatal:", err)
		return 1
	}
	defer app.Close()

	ctx, cancel := signalContext()
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { app.msgBus.RunDispatcher(gctx); return nil })
	g.Go(func() error { return app.loop.Run(gctx) })
	if app.scheduler != nil {
		g.Go(func() error { return app.scheduler.Run(gctx) })
	}

	if token := os.Getenv("JANUS_DISCORD_TOKEN"); token != "" {
		ch, err := discord.New(token, app.msgBus)
		if err != nil {
			fmt.Fprintln(os.Stderr, "janus: discord:", err)
		} else {
			g.Go(func() error { return ch.Start(gctx) })
		}
	}
	if token := os.Getenv("JANUS_TELEGRAM_TOKEN"); token != "" {
		ch, err := telegram.New(token, app.msgBus)
		if err != nil {
			fmt.Fprintln(os.Stderr, "janus: telegram:", err)
		} else {
			g.Go(func() error { return ch.Start(gctx) })
		}
	}
	if botToken, appToken := os.Getenv("JANUS_SLACK_BOT_TOKEN"), os.Getenv("JANUS_SLACK_APP_TOKEN"); botToken != "" && appToken != "" {
		ch := slack.New(botToken, appToken, app.msgBus)
		g.Go(func() error { return ch.Start(gctx) })
	}

	logger.InfoCF("main", "gateway started", nil)
	if err := g.Wait(); err != nil && gctx.Err() == nil {
		fmt.Fprintln(os.Stderr, "janus: error:", err)
		return 1
	}
	return 0
}

// runMCPServer wires the editor-integration JSON-RPC server onto stdio
// (spec.md §6 "mcp-server runs the editor JSON-RPC server").
func runMCPServer(args []string) int {
	fs := flag.NewFlagSet("mcp-server", flag.ContinueOnError)
	workspace := fs.String("workspace", ".", "workspace directory")
	cfgPath := fs.String("config", "", "path to a workspace config.json")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := loadConfig(*workspace, *cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "janus: fatal:", err)
		return 1
	}

	app, err := newApp(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "janus: fatal:", err)
		return 1
	}
	defer app.Close()

	ctx, cancel := signalContext()
	defer cancel()

	execCtx := tools.ExecContext{
		WorkspaceDir:     cfg.Workspace.Dir,
		ExecDenyPatterns: cfg.Tools.ExecDenyPatterns,
		ExecTimeoutMs:    cfg.Tools.ExecTimeoutMS,
		MaxFileSize:      cfg.Tools.MaxFileSize,
		Channel:          "mcp-server",
	}
	srv := mcpserver.New(app.toolRegistry, app.skillLoader, execCtx)
	if err := srv.Serve(ctx, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "janus: mcp-server:", err)
		return 1
	}
	return 0
}

// runOnboard scaffolds a fresh workspace directory with the files the
// context builder and scheduler expect to find (spec.md §6 "onboard [dir]
// scaffolds a workspace").
func runOnboard(args []string) int {
	fs := flag.NewFlagSet("onboard", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	dir := "."
	if fs.NArg() > 0 {
		dir = fs.Arg(0)
	}

	dirs := []string{
		dir,
		filepath.Join(dir, "memory"),
		filepath.Join(dir, "sessions"),
		filepath.Join(dir, "skills"),
		filepath.Join(dir, ".janus"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			fmt.Fprintln(os.Stderr, "janus: onboard:", err)
			return 1
		}
	}

	memoryPath := filepath.Join(dir, "memory", "MEMORY.md")
	if _, err := os.Stat(memoryPath); os.IsNotExist(err) {
		if err := os.WriteFile(memoryPath, []byte("# Memory\n\nEvergreen notes the agent should always see go here.\n"), 0o644); err != nil {
			fmt.Fprintln(os.Stderr, "janus: onboard:", err)
			return 1
		}
	}

	heartbeatPath := filepath.Join(dir, "HEARTBEAT.md")
	if _, err := os.Stat(heartbeatPath); os.IsNotExist(err) {
		if err := os.WriteFile(heartbeatPath, []byte("# Heartbeat\n\nRecurring tasks go here as level-2 headings with `- schedule:` and `- task:` bullets.\n"), 0o644); err != nil {
			fmt.Fprintln(os.Stderr, "janus: onboard:", err)
			return 1
		}
	}

	cfgPath := filepath.Join(dir, "config.json")
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		defaults := config.Defaults()
		defaults.Workspace.Dir = dir
		data, err := configToJSON(defaults)
		if err != nil {
			fmt.Fprintln(os.Stderr, "janus: onboard:", err)
			return 1
		}
		if err := os.WriteFile(cfgPath, data, 0o644); err != nil {
			fmt.Fprintln(os.Stderr, "janus: onboard:", err)
			return 1
		}
	}

	fmt.Printf("janus: workspace scaffolded at %s\n", dir)
	fmt.Println("janus: set an API key (ANTHROPIC_API_KEY, OPENAI_API_KEY, ...) and run `janus setup` or `janus` to start")
	return 0
}

// runSetup walks the operator through the minimum configuration needed to
// start the agent (spec.md §6 "setup runs the guided configuration flow").
func runSetup(args []string) int {
	fs := flag.NewFlagSet("setup", flag.ContinueOnError)
	workspace := fs.String("workspace", ".", "workspace directory")
	useOAuth := fs.Bool("oauth", false, "authenticate with Claude Max/Pro OAuth instead of an API key")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg := config.Defaults()
	cfg.Workspace.Dir = *workspace

	reader := bufio.NewReader(os.Stdin)

	if *useOAuth {
		if err := runOAuthSetup(reader, &cfg); err != nil {
			fmt.Fprintln(os.Stderr, "janus: setup:", err)
			return 1
		}
	} else {
		fmt.Print("LLM provider [anthropic]: ")
		provider, _ := reader.ReadString('\n')
		provider = strings.TrimSpace(provider)
		if provider != "" {
			cfg.LLM.Provider = provider
		}

		fmt.Printf("API key for %s: ", cfg.LLM.Provider)
		apiKey, _ := reader.ReadString('\n')
		cfg.LLM.APIKey = strings.TrimSpace(apiKey)
	}

	fmt.Printf("Model [%s]: ", cfg.LLM.Model)
	model, _ := reader.ReadString('\n')
	model = strings.TrimSpace(model)
	if model != "" {
		cfg.LLM.Model = model
	}

	if err := os.MkdirAll(*workspace, 0o755); err != nil {
		fmt.Fprintln(os.Stderr, "janus: setup:", err)
		return 1
	}

	data, err := configToJSON(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "janus: setup:", err)
		return 1
	}
	cfgPath := filepath.Join(*workspace, "config.json")
	if err := os.WriteFile(cfgPath, data, 0o644); err != nil {
		fmt.Fprintln(os.Stderr, "janus: setup:", err)
		return 1
	}

	fmt.Printf("janus: wrote %s\n", cfgPath)
	return 0
}

// runOAuthSetup drives the authorization-code-with-PKCE flow by hand: print
// the browser URL, let the user paste back the redirect's `code` query
// param, exchange it, and persist the resulting credential so
// buildOAuthClaudeProvider can pick it up on every future run.
func runOAuthSetup(reader *bufio.Reader, cfg *config.Config) error {
	cfg.LLM.Provider = "anthropic"
	cfg.LLM.UseOAuth = true

	authCfg := auth.AnthropicOAuthConfig()
	pkce, err := auth.GeneratePKCE()
	if err != nil {
		return fmt.Errorf("generate pkce codes: %w", err)
	}

	redirectURI := fmt.Sprintf("http://localhost:%d/callback", authCfg.Port)
	state := uuid.NewString()
	authorizeURL := auth.BuildAuthorizeURL(authCfg, pkce, state, redirectURI)

	fmt.Println("Open this URL in a browser and approve access:")
	fmt.Println(authorizeURL)
	fmt.Print("Paste the authorization code from the redirect: ")
	code, _ := reader.ReadString('\n')
	code = strings.TrimSpace(code)

	cred, err := auth.ExchangeAuthorizationCode(authCfg, code, pkce.CodeVerifier, redirectURI)
	if err != nil {
		return fmt.Errorf("exchange authorization code: %w", err)
	}

	credStore := auth.NewCredentialStore(filepath.Join(config.UserHomeConfigDir(), "credentials"))
	if err := credStore.SetCredential(cred); err != nil {
		return fmt.Errorf("store oauth credential: %w", err)
	}

	fmt.Println("janus: stored OAuth credential for anthropic")
	return nil
}

func loadConfig(workspace, explicitPath string) (config.Config, error) {
	workspaceCfg := explicitPath
	if workspaceCfg == "" {
		workspaceCfg = filepath.Join(workspace, "config.json")
	}
	userCfg := filepath.Join(config.UserHomeConfigDir(), "config.json")

	cfg, err := config.Load(userCfg, workspaceCfg, func(c *config.Config) {
		if c.Workspace.Dir == "" || c.Workspace.Dir == "." {
			c.Workspace.Dir = workspace
		}
	})
	if err != nil {
		return cfg, err
	}
	if cfg.LLM.APIKey == "" {
		return cfg, fmt.Errorf("no LLM API key configured (set llm.apiKey, run `janus setup`, or export ANTHROPIC_API_KEY/OPENAI_API_KEY/...)")
	}
	return cfg, nil
}

// app bundles every long-lived component the agent loop and its siblings
// depend on, wired once at startup.
type app struct {
	cfg          config.Config
	msgBus       *bus.MessageBus
	db           *store.Store
	loop         *agent.AgentLoop
	scheduler    *scheduler.Scheduler
	toolRegistry *tools.Registry
	skillLoader  *skills.Loader
	mcpManager   *mcp.Manager
}

func (a *app) Close() {
	if a.mcpManager != nil {
		a.mcpManager.CloseAll()
	}
	if a.db != nil {
		a.db.Close()
	}
}

// newApp wires the bus, persistence layer, memory index, tool registry,
// provider registry, context builder, and agent loop from one config
// (spec.md §4 end-to-end wiring).
func newApp(cfg config.Config) (*app, error) {
	logger.SetLevelName(os.Getenv("JANUS_LOG_LEVEL"))

	workspace := cfg.WorkspacePath()
	msgBus := bus.NewMessageBus(256)

	var db *store.Store
	if cfg.Database.Enabled {
		var err error
		db, err = store.Open(filepath.Join(workspace, cfg.Database.Path))
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
	}

	sessions := session.NewStore(filepath.Join(workspace, cfg.Workspace.SessionsDir))

	var memIndex *memory.Index
	var lrn *learner.Learner
	var schedStore *scheduler.Store
	if db != nil {
		embedder := memory.NewLocalHashEmbedder()
		memIndex = memory.NewIndex(db, embedder)
		if cfg.Memory.VectorSearch {
			mirror, err := newChromemMirror(workspace, embedder)
			if err != nil {
				logger.WarnCF("main", "chromem mirror disabled", map[string]interface{}{"error": err.Error()})
			} else {
				memIndex.WithChromemMirror(mirror)
			}
		}
		lrn = learner.New(db.DB)
		schedStore = scheduler.NewStore(db.DB)
	}

	skillLoader := skills.NewLoader(
		filepath.Join(workspace, cfg.Workspace.SkillsDir),
		filepath.Join(config.UserHomeConfigDir(), "skills"),
		filepath.Join(workspace, "skills", "builtin"),
	)

	toolRegistry := tools.NewRegistry()
	toolRegistry.Register(tools.NewExecTool(workspace, true))
	toolRegistry.Register(tools.NewReadFileTool(workspace, true))
	toolRegistry.Register(tools.NewWriteFileTool(workspace, true))
	toolRegistry.Register(tools.NewEditFileTool(workspace, true))
	toolRegistry.Register(tools.NewAppendFileTool(workspace, true))
	toolRegistry.Register(tools.NewListDirTool(workspace, true))
	toolRegistry.Register(tools.NewMessageTool(msgBus))
	if memIndex != nil {
		toolRegistry.Register(tools.NewMemorySearchTool(memIndex))
	}
	if cfg.Gates.Enabled {
		g := gate.New(cfg.Gates.ExecPatterns, gate.AutoDenyConfirmer, 0)
		toolRegistry.SetGate(g)
	}

	mcpManager := mcp.NewManager()
	mcpManager.StartFromConfig(context.Background(), cfg.MCPServers)
	registered := mcp.RegisterTools(mcpManager, toolRegistry)
	if registered > 0 {
		logger.InfoCF("main", "bridged mcp tools", map[string]interface{}{"count": registered})
	}

	registry, err := buildProviderRegistry(cfg)
	if err != nil {
		return nil, err
	}

	contextBuilder := agent.NewContextBuilder(workspace, skillLoader, memIndex, lrn, cfg.Agent)
	profiles := userprofile.NewResolver(&cfg)
	summ := summarizer.New(sessions, registry, workspace)
	tracker := metrics.NewTracker(workspace)

	loop := agent.NewAgentLoop(cfg, msgBus, sessions, registry, contextBuilder, toolRegistry, profiles, summ, lrn, tracker)
	toolRegistry.Register(tools.NewSpawnSubagentTool(loop, cfg.Agent.MaxSubagentIterations))

	var sched *scheduler.Scheduler
	if schedStore != nil {
		sched = scheduler.New(schedStore, msgBus)
		heartbeatPath := filepath.Join(workspace, "HEARTBEAT.md")
		if err := scheduler.LoadHeartbeat(context.Background(), heartbeatPath, schedStore, "terminal", "scheduled"); err != nil {
			logger.WarnCF("main", "failed to load heartbeat", map[string]interface{}{"error": err.Error()})
		}
	}

	return &app{
		cfg:          cfg,
		msgBus:       msgBus,
		db:           db,
		loop:         loop,
		scheduler:    sched,
		toolRegistry: toolRegistry,
		skillLoader:  skillLoader,
		mcpManager:   mcpManager,
	}, nil
}

func buildProviderRegistry(cfg config.Config) (*providers.Registry, error) {
	if len(cfg.LLM.Providers) > 0 {
		entries := make([]providers.Entry, 0, len(cfg.LLM.Providers))
		for _, p := range cfg.LLM.Providers {
			kind := p.Kind
			if p.UseOAuth && kind == "claude" {
				kind = "claude-oauth"
			}
			provider, err := buildProvider(kind, p.APIKey, p.APIBase, p.DefaultModel)
			if err != nil {
				return nil, err
			}
			entries = append(entries, providers.Entry{
				Name:         p.Name,
				Provider:     provider,
				DefaultModel: p.DefaultModel,
				PurposeTags:  p.PurposeTags,
				Priority:     p.Priority,
			})
		}
		return providers.NewRegistry(entries...), nil
	}

	kind := providerKind(cfg.LLM.Provider)
	if cfg.LLM.UseOAuth && kind == "claude" {
		kind = "claude-oauth"
	}
	provider, err := buildProvider(kind, cfg.LLM.APIKey, cfg.LLM.APIBase, cfg.LLM.Model)
	if err != nil {
		return nil, err
	}
	return providers.NewRegistry(providers.Entry{
		Name:         cfg.LLM.Provider,
		Provider:     provider,
		DefaultModel: cfg.LLM.Model,
		Priority:     0,
	}), nil
}

func providerKind(name string) string {
	if name == "anthropic" {
		return "claude"
	}
	return "openai-compat"
}

func buildProvider(kind, apiKey, apiBase, defaultModel string) (providers.LLMProvider, error) {
	switch kind {
	case "claude":
		return providers.NewClaudeProvider(apiKey, defaultModel), nil
	case "claude-oauth":
		return buildOAuthClaudeProvider(defaultModel)
	case "openai-compat":
		return providers.NewOpenAICompatProvider(apiKey, apiBase, defaultModel), nil
	default:
		return nil, fmt.Errorf("unknown provider kind %q", kind)
	}
}

// buildOAuthClaudeProvider wires providers.NewClaudeProviderOAuth to a
// credential persisted by `janus setup --oauth`, closing the loop the
// teacher's own pkg/auth never did (internal/auth only implemented the PKCE
// exchange, never a stored-credential-to-provider path).
func buildOAuthClaudeProvider(defaultModel string) (providers.LLMProvider, error) {
	authCfg := auth.AnthropicOAuthConfig()
	credStore := auth.NewCredentialStore(filepath.Join(config.UserHomeConfigDir(), "credentials"))

	cred, err := credStore.GetCredential(authCfg.Provider)
	if err != nil {
		return nil, fmt.Errorf("load oauth credential: %w", err)
	}
	if cred == nil {
		return nil, fmt.Errorf("no stored oauth credential for %s; run `janus setup --oauth` first", authCfg.Provider)
	}

	return providers.NewClaudeProviderOAuth(credStore.TokenSource(authCfg), defaultModel), nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func configToJSON(cfg config.Config) ([]byte, error) {
	return json.MarshalIndent(cfg, "", "  ")
}

// newChromemMirror opens a persistent chromem-go collection alongside the
// SQLite store, adapting the teacher's pkg/memory/vectorstore.go
// NewPersistentDB/GetOrCreateCollection call shape to mirror the hybrid
// index's embeddings instead of being the source of truth.
func newChromemMirror(workspace string, embedder memory.Embedder) (*chromem.Collection, error) {
	dbPath := filepath.Join(workspace, "memory", "vectors")
	if err := os.MkdirAll(dbPath, 0o755); err != nil {
		return nil, fmt.Errorf("create vector db dir: %w", err)
	}
	db, err := chromem.NewPersistentDB(dbPath, false)
	if err != nil {
		return nil, fmt.Errorf("open chromem db: %w", err)
	}
	embeddingFn := func(ctx context.Context, text string) ([]float32, error) {
		return embedder.Embed(ctx, text)
	}
	return db.GetOrCreateCollection("janus-memory", nil, embeddingFn)
}

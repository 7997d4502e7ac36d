package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/aj47/nvidia-control-center-sub003/config"
	"github.com/aj47/nvidia-control-center-sub003/invoke"
	"github.com/aj47/nvidia-control-center-sub003/llm"
	invokelogger "github.com/aj47/nvidia-control-center-sub003/logger"
	"github.com/aj47/nvidia-control-center-sub003/mcp"
	"github.com/aj47/nvidia-control-center-sub003/toolname"
	"github.com/rs/zerolog"
)

const usage = `usage: invoke [flags] <complete|invoke|stream> [prompt]

Modes:
  complete  one-shot text generation
  invoke    tool-capable call; runs tools from configured MCP servers until done
  stream    streams the reply to stdout as it arrives

The prompt is read from stdin when omitted or "-".
`

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath    = flag.String("config", "", "Path to config file (default: ~/.invoke/config.yaml)")
		logFile       = flag.String("logfile", "", "Path to log file. If not set, logs to stderr")
		pretty        = flag.Bool("pretty", false, "Use pretty console output (only valid when logfile is not set)")
		provider      = flag.String("provider", "", "Provider override: openai, anthropic or ollama")
		model         = flag.String("model", "", "Model override")
		baseURL       = flag.String("base-url", "", "Endpoint base URL override")
		system        = flag.String("system", "", "System prompt")
		session       = flag.String("session", "", "Session id used to scope stop requests")
		maxTokens     = flag.Int64("max-tokens", 0, "Maximum output tokens")
		maxRetries    = flag.Int("max-retries", 0, "Retry ceiling for non-rate-limit failures (negative disables)")
		maxIterations = flag.Int("max-iterations", invoke.DefaultMaxIterations, "Maximum tool rounds in invoke mode")
	)
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		return fmt.Errorf("mode is required")
	}
	mode := flag.Arg(0)

	if *logFile != "" && *pretty {
		return fmt.Errorf("--logfile and --pretty are mutually exclusive")
	}

	logger, err := invokelogger.InitWithOptions(*logFile, *pretty)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	path := *configPath
	if path == "" {
		path = config.GetConfigPath()
	}
	appConfig, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	prompt, err := readPrompt(flag.Args()[1:])
	if err != nil {
		return err
	}

	invoker := newInvoker(appConfig, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(ctx, cancel, invoker.Coordinator(), logger)

	cfg := invoke.CallConfig{
		Provider:   *provider,
		Model:      *model,
		BaseURL:    *baseURL,
		MaxTokens:  *maxTokens,
		MaxRetries: *maxRetries,
	}
	opts := invoke.Options{
		SessionID: *session,
		Progress:  invoke.ProgressFunc(printProgress),
	}

	switch mode {
	case "complete":
		text, err := invoker.Complete(ctx, prompt, cfg, opts)
		if err != nil {
			return err
		}
		fmt.Println(text)
		return nil

	case "stream":
		_, err := invoker.InvokeStreaming(ctx, messages(*system, prompt), invoke.ChunkFunc(func(fragment, _ string) error {
			_, werr := io.WriteString(os.Stdout, fragment)
			return werr
		}), cfg, opts)
		fmt.Println()
		return err

	case "invoke":
		return runTools(ctx, invoker, appConfig, logger, messages(*system, prompt), cfg, opts, *maxIterations)

	default:
		flag.Usage()
		return fmt.Errorf("unknown mode %q", mode)
	}
}

func newInvoker(appConfig *config.Config, logger zerolog.Logger) *invoke.Invoker {
	registry := llm.NewProviderRegistry(appConfig.ProviderConfig(), config.NewClient(logger))
	codec := toolname.NewCodec(appConfig.GatewayPrefixes(), logger)
	parser := invoke.NewParser(codec, appConfig.InlineMarkers(), logger)
	executor := invoke.NewExecutor(invoke.NewCoordinator(), logger)
	return invoke.NewInvoker(registry, codec, parser, executor, appConfig.CallConfig(), logger)
}

func runTools(ctx context.Context, invoker *invoke.Invoker, appConfig *config.Config, logger zerolog.Logger, msgs []llm.ChatMessage, cfg invoke.CallConfig, opts invoke.Options, maxIterations int) error {
	servers, err := appConfig.MCPServerConfigs(logger)
	if err != nil {
		return fmt.Errorf("failed to load MCP servers: %w", err)
	}

	catalog := mcp.NewCatalog(logger)
	defer func() {
		if err := catalog.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close MCP servers")
		}
	}()
	for name, server := range servers {
		if err := catalog.Connect(ctx, name, server); err != nil {
			logger.Warn().Str("server", name).Err(err).Msg("Skipping MCP server")
		}
	}

	tools, err := catalog.Tools(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tools: %w", err)
	}
	logger.Info().Int("tools", len(tools)).Strs("servers", catalog.Servers()).Msg("Tool catalog ready")

	result, turns, err := invoker.RunTools(ctx, msgs, tools, catalog, cfg, opts, maxIterations)
	for _, turn := range turns {
		for _, out := range turn.Outputs {
			status := "ok"
			if out.IsError {
				status = "error"
			}
			fmt.Fprintf(os.Stderr, "[tool %s: %s]\n", out.Call.Name, status)
		}
	}
	if err != nil {
		return err
	}
	fmt.Println(result.Content)
	return nil
}

// handleSignals turns the first interrupt into an emergency stop and the
// second into cancellation of everything still running.
func handleSignals(ctx context.Context, cancel context.CancelFunc, aborts *invoke.Coordinator, logger zerolog.Logger) {
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	stopped := false
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigChan:
			if stopped {
				cancel()
				return
			}
			stopped = true
			n := aborts.EmergencyStop()
			logger.Info().Str("signal", sig.String()).Int("cancelled", n).Msg("Emergency stop")
		}
	}
}

func printProgress(p invoke.RetryProgress) {
	if !p.IsRetrying {
		return
	}
	limit := "unbounded"
	if p.MaxAttempts > 0 {
		limit = fmt.Sprintf("%d", p.MaxAttempts)
	}
	fmt.Fprintf(os.Stderr, "retry %d/%s in %.1fs: %s\n", p.Attempt, limit, p.DelaySeconds, p.Reason)
}

func messages(system, prompt string) []llm.ChatMessage {
	var msgs []llm.ChatMessage
	if system != "" {
		msgs = append(msgs, llm.ChatMessage{Role: llm.RoleSystem, Content: system})
	}
	return append(msgs, llm.ChatMessage{Role: llm.RoleUser, Content: prompt})
}

func readPrompt(args []string) (string, error) {
	if len(args) > 0 && !(len(args) == 1 && args[0] == "-") {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read prompt from stdin: %w", err)
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", fmt.Errorf("prompt is empty")
	}
	return prompt, nil
}

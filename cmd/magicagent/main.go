// Package main provides the magicagent CLI application entry point.
// magicagent is a session-based agent runtime for chatting with LLM backends.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"magicagent/internal/agent"
	"magicagent/internal/config"
	"magicagent/internal/llm"
	"magicagent/internal/logger"
	"magicagent/internal/version"
	"magicagent/pkg/agenttypes"
)

var (
	configPath string
	logLevel   string
	logFile    string
	sessionID  string
	agentType  string
	provider   string
	model      string
	plain      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "magicagent",
	Short: "magicagent - session-based LLM agent runtime",
	Long: `magicagent runs conversational agents with persistent sessions.
Each session owns one agent, its conversation history, and its lifecycle
state; sessions survive restarts and expire after a retention window.`,
	RunE: runChat, // Default behavior is the interactive chat loop
}

// chatCmd represents the chat command (explicit version of default behavior)
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long:  `Start (or resume) an agent session and chat interactively.`,
	RunE:  runChat,
}

// askCmd sends a single message and prints the reply, for scripting.
var askCmd = &cobra.Command{
	Use:   "ask <message>",
	Short: "Send one message and print the response",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

// runCmd drives the agent non-interactively until its run loop terminates.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the agent without the interactive chat loop",
	Long: `Start an agent session and drive it in non-interactive mode. The agent
loops until its status leaves RUNNING or the configured iteration cap is hit.`,
	RunE: runHeadless,
}

// sessionsCmd lists the sessions known to the session store.
var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List stored sessions",
	RunE:  runSessions,
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE: func(_ *cobra.Command, _ []string) error {
		info, err := version.GetInfo()
		if err != nil {
			return err
		}
		fmt.Println(info.String())
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Set log level (debug|info|warn|error) [default: info]")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to file instead of stderr")
	rootCmd.PersistentFlags().StringVarP(&sessionID, "session", "s", "", "Session id to resume (default: new session)")
	rootCmd.PersistentFlags().StringVar(&agentType, "agent", "", "Agent type to run (default: from config)")
	rootCmd.PersistentFlags().StringVar(&provider, "provider", "", "LLM provider (openai|anthropic|gemini|mock)")
	rootCmd.PersistentFlags().StringVar(&model, "model", "", "Model name (default: from config)")
	rootCmd.PersistentFlags().BoolVar(&plain, "plain", false, "Disable markdown rendering of responses")

	if err := viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level")); err != nil {
		fmt.Fprintf(os.Stderr, "Error binding log-level flag: %v\n", err)
		os.Exit(1)
	}
	if err := viper.BindPFlag("log-file", rootCmd.PersistentFlags().Lookup("log-file")); err != nil {
		fmt.Fprintf(os.Stderr, "Error binding log-file flag: %v\n", err)
		os.Exit(1)
	}

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(versionCmd)

	cobra.OnInitialize(initLogging)
}

func initLogging() {
	if err := logger.Configure(logLevel, logFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring logger: %v\n", err)
		os.Exit(1)
	}
}

// setup loads configuration, applies flag overrides, and wires the backend,
// registry, and session manager.
func setup() (*config.Config, *agent.SessionManager, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if provider != "" && provider != cfg.LLM.Provider {
		cfg.LLM.Provider = provider
		cfg.LLM.APIKey = config.APIKeyFromEnv(provider)
	}
	if model != "" {
		cfg.LLM.Model = model
	}
	if agentType != "" {
		cfg.Agent.Type = agentType
	}

	backend, err := llm.New(cfg)
	if err != nil {
		return nil, nil, err
	}

	registry := agent.NewRegistry()
	agent.RegisterDefault(registry)

	manager, err := agent.NewSessionManager(cfg, registry, backend)
	if err != nil {
		return nil, nil, err
	}
	return cfg, manager, nil
}

// openSession resumes the requested session or creates a fresh one.
func openSession(ctx context.Context, cfg *config.Config, manager *agent.SessionManager) (agenttypes.Agent, error) {
	if sessionID != "" {
		if a, err := manager.GetSession(ctx, sessionID); err == nil {
			return a, nil
		}
		logger.Warn("session not found on disk, creating it", "session_id", sessionID)
	}
	return manager.CreateSession(ctx, cfg.Agent.Type, sessionID)
}

func runChat(_ *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, manager, err := setup()
	if err != nil {
		return err
	}
	defer manager.Cleanup(context.Background())

	a, err := openSession(ctx, cfg, manager)
	if err != nil {
		return err
	}

	promptStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	infoStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	fmt.Printf("magicagent v%s - %s via %s\n", version.GetVersion(), cfg.LLM.Model, cfg.LLM.Provider)
	fmt.Println(infoStyle.Render(fmt.Sprintf("session %s - type 'exit' to quit, 'clear' to reset", a.ID())))

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for {
		fmt.Print(promptStyle.Render("you> "))
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		switch input {
		case "exit", "quit", "q":
			return nil
		case "clear":
			if resettable, ok := a.(interface{ Reset(context.Context) }); ok {
				resettable.Reset(ctx)
			}
			fmt.Println(infoStyle.Render("conversation cleared"))
			continue
		case "status":
			fmt.Println(infoStyle.Render(fmt.Sprintf("agent %s status: %s", a.ID(), a.Status())))
			continue
		}

		result, err := a.Process(ctx, input)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Println(infoStyle.Render(fmt.Sprintf("error: %v", err)))
			continue
		}

		printResponse(fmt.Sprintf("%v", result))
	}
	return scanner.Err()
}

func runAsk(_ *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, manager, err := setup()
	if err != nil {
		return err
	}
	defer manager.Cleanup(context.Background())

	a, err := openSession(ctx, cfg, manager)
	if err != nil {
		return err
	}

	result, err := a.Process(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	printResponse(fmt.Sprintf("%v", result))
	return nil
}

func runHeadless(_ *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, manager, err := setup()
	if err != nil {
		return err
	}
	defer manager.Cleanup(context.Background())

	a, err := openSession(ctx, cfg, manager)
	if err != nil {
		return err
	}

	logger.Info("running agent", "session", a.ID(), "agent", a.Name())
	if err := a.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func runSessions(_ *cobra.Command, _ []string) error {
	_, manager, err := setup()
	if err != nil {
		return err
	}

	sessions := manager.ListSessions()
	if len(sessions) == 0 {
		fmt.Println("No stored sessions.")
		return nil
	}

	for _, info := range sessions {
		marker := " "
		if info.Active {
			marker = "*"
		}
		fmt.Printf("%s %s  agent=%s  last-active=%s\n",
			marker, info.SessionID, info.Metadata.AgentType,
			info.Metadata.LastActive.Format("2006-01-02 15:04:05"))
	}
	return nil
}

// printResponse renders a response as markdown, falling back to plain text
// when rendering is disabled or fails.
func printResponse(text string) {
	if !plain {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(100),
		)
		if err == nil {
			if rendered, rerr := renderer.Render(text); rerr == nil {
				fmt.Print(rendered)
				return
			}
		}
	}
	fmt.Println(text)
}

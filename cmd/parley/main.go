package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"parley/internal/adapters"
	"parley/internal/agents"
	"parley/internal/audit"
	"parley/internal/config"
	"parley/internal/engine"
	"parley/internal/executor"
	"parley/internal/server"
	"parley/internal/workflow"
	parleysdk "parley/sdk/go"
)

var rootCmd = &cobra.Command{
	Use:   "parley",
	Short: "Parley CLI",
	Long: `Parley orchestrates stakeholder outreach for development proposals.
Core concepts:
- Thread: one proposal's workflow state (stakeholders, chat history, instructions).
- Instructions: the derived outreach plan (emails, meetings, slack, milestone);
  regenerated from scratch after every mutation.
- Actions: batch operations staged behind a confirmation gate; nothing executes
  until an explicit approve.
- Agents: specialized assistants (sustainability, indigenous, proposal) you can
  ask directly with 'parley agent ask'.
- Event log: the audit diary, view with 'parley log tail'.`,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("PARLEY")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("server", "http://127.0.0.1:8787", "API server base URL")
	rootCmd.PersistentFlags().String("token", "", "bearer token for the API")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
	_ = viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(threadCmd())
	rootCmd.AddCommand(messageCmd())
	rootCmd.AddCommand(actionCmd())
	rootCmd.AddCommand(agentCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
}

// --- serve ---

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}

			logger, err := zap.NewProduction()
			if err != nil {
				return err
			}
			defer logger.Sync()

			log, err := audit.Open(workspace)
			if err != nil {
				return err
			}
			defer log.Close()

			eng := buildEngine(cmd.Context(), cfg, log, logger)

			jwtSecret := os.Getenv("PARLEY_JWT_SECRET")
			if jwtSecret == "" {
				jwtSecret = cfg.Auth.JWTSecret
			}
			authCfg := server.AuthConfig{
				JWTSecret:              jwtSecret,
				AllowLegacyActorHeader: cfg.Auth.AllowLegacyActorHeader,
				Logger:                 logger,
			}
			if jwtSecret == "" && !cfg.Auth.AllowLegacyActorHeader {
				return fmt.Errorf("PARLEY_JWT_SECRET is required when the legacy actor header is disabled")
			}

			handler, err := server.New(server.Config{Engine: eng, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Parley API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8787", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// buildEngine assembles collaborators from config. Unconfigured integrations
// fall back to the in-process mocks so the server always starts.
func buildEngine(ctx context.Context, cfg *config.Config, log *audit.Log, logger *zap.Logger) *engine.Engine {
	var (
		email    executor.EmailSender = adapters.MockEmailSender{Logger: logger}
		calendar executor.Calendar    = &adapters.MockCalendar{Logger: logger}
		notifier executor.Notifier    = adapters.MockNotifier{Logger: logger}
		composer workflow.Composer    = workflow.TemplateComposer{}
		gen      agents.TextGenerator
		geo      adapters.GeoScorer
	)
	if cfg.Integrations.EmailRelayURL != "" {
		email = adapters.NewRelayEmailSender(cfg.Integrations.EmailRelayURL)
	}
	if cfg.Integrations.CalendarAPIBase != "" {
		calendar = adapters.NewCalendarClient(cfg.Integrations.CalendarAPIBase, cfg.Integrations.CalendarToken)
	}
	if cfg.Integrations.SlackWebhookURL != "" {
		notifier = adapters.NewSlackNotifier(cfg.Integrations.SlackWebhookURL)
	}
	if cfg.Integrations.GeoServiceURL != "" {
		geo = adapters.NewGeoClient(cfg.Integrations.GeoServiceURL)
	}
	if apiKey := os.Getenv(cfg.LLM.APIKeyEnv); apiKey != "" {
		client, err := adapters.NewGeminiClient(ctx, apiKey, cfg.LLM.Model)
		if err != nil {
			logger.Warn("gemini client unavailable, using template composer", zap.Error(err))
		} else {
			composer = adapters.GeminiComposer{Client: client}
			gen = client
		}
	}

	generator := workflow.NewGenerator(composer)
	if cfg.Outreach.SlackChannel != "" {
		generator.SlackChannel = cfg.Outreach.SlackChannel
	}

	prompts := make(map[string]string, len(cfg.Agents))
	for name, a := range cfg.Agents {
		prompts[name] = a.Prompt
	}

	return engine.New(engine.Options{
		Generator:        generator,
		Executor:         executor.New(email, calendar, notifier, logger),
		Agents:           agents.NewRegistry(gen, prompts),
		Geo:              geo,
		Audit:            log,
		Logger:           logger,
		DefaultSender:    cfg.Outreach.EmailSender,
		DefaultOrganizer: cfg.Outreach.MeetingOrganizer,
		StarterContacts:  cfg.Outreach.StarterContacts,
	})
}

// --- thread ---

func threadCmd() *cobra.Command {
	thread := &cobra.Command{Use: "thread", Short: "Manage workflow threads"}
	thread.AddCommand(threadCreateCmd())
	thread.AddCommand(threadListCmd())
	thread.AddCommand(threadShowCmd())
	thread.AddCommand(threadDeleteCmd())
	thread.AddCommand(threadConfigCmd())
	return thread
}

func threadCreateCmd() *cobra.Command {
	var title, location, sustainability, indigenous string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Initialize a workflow thread",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := apiClient().InitThread(cmd.Context(), title, location, sustainability, indigenous)
			if err != nil {
				return err
			}
			return printJSONOrTable(result)
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "proposal title")
	cmd.Flags().StringVar(&location, "location", "", "proposal location")
	cmd.Flags().StringVar(&sustainability, "sustainability", "", "sustainability context")
	cmd.Flags().StringVar(&indigenous, "indigenous", "", "indigenous context")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("location")
	return cmd
}

func threadListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List workflow threads",
		RunE: func(cmd *cobra.Command, args []string) error {
			threads, err := apiClient().ListThreads(cmd.Context())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(threads)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Thread", "Proposal", "Location", "Stakeholders", "Instructions", "Updated"})
			for _, t := range threads {
				tw.AppendRow(table.Row{t.ThreadID, t.ProposalTitle, t.Location, t.StakeholderCount, t.InstructionCount, t.LastUpdated})
			}
			tw.Render()
			return nil
		},
	}
	return cmd
}

func threadShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <thread-id>",
		Short: "Show full thread state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := apiClient().GetThread(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSONOrTable(t)
		},
	}
	return cmd
}

func threadDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <thread-id>",
		Short: "Delete a thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := apiClient().DeleteThread(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted %s\n", args[0])
			return nil
		},
	}
	return cmd
}

func threadConfigCmd() *cobra.Command {
	var sender, organizer string
	cmd := &cobra.Command{
		Use:   "config <thread-id>",
		Short: "Update thread sender/organizer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := apiClient().UpdateThreadConfig(cmd.Context(), args[0], sender, organizer)
			if err != nil {
				return err
			}
			return printJSONOrTable(t)
		},
	}
	cmd.Flags().StringVar(&sender, "sender", "", "email sender address")
	cmd.Flags().StringVar(&organizer, "organizer", "", "meeting organizer address")
	return cmd
}

// --- message ---

func messageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "message <thread-id> <text>",
		Short: "Post a chat message and regenerate instructions",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := apiClient().PostMessage(cmd.Context(), args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(result)
			}
			fmt.Println(result.Response)
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"ID", "Type", "Target", "Subject"})
			for _, inst := range result.Instructions {
				tw.AppendRow(table.Row{inst.ID, inst.Type, inst.Target, inst.Subject})
			}
			tw.Render()
			return nil
		},
	}
	return cmd
}

// --- action ---

func actionCmd() *cobra.Command {
	action := &cobra.Command{Use: "action", Short: "Confirmable batch actions"}
	action.AddCommand(actionRequestCmd())
	action.AddCommand(actionConfirmCmd())
	action.AddCommand(actionRejectCmd())
	action.AddCommand(actionPendingCmd())
	action.AddCommand(actionSweepCmd())
	return action
}

func actionRequestCmd() *cobra.Command {
	var actionType, contact, eventType string
	cmd := &cobra.Command{
		Use:   "request <thread-id>",
		Short: "Stage an action for confirmation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			action, err := apiClient().RequestAction(cmd.Context(), args[0], actionType, contact, eventType)
			if err != nil {
				return err
			}
			return printJSONOrTable(action)
		},
	}
	cmd.Flags().StringVar(&actionType, "type", "full_outreach", "action type (send_email, schedule_meeting, full_outreach, delete_contact)")
	cmd.Flags().StringVar(&contact, "contact", "", "contact address (delete_contact only)")
	cmd.Flags().StringVar(&eventType, "event-type", "", "calendar event type name (required for schedule_meeting)")
	return cmd
}

func actionConfirmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "confirm <action-id>",
		Short: "Approve and execute a pending action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := apiClient().ConfirmAction(cmd.Context(), args[0], true)
			if err != nil {
				return err
			}
			return printJSONOrTable(result)
		},
	}
	return cmd
}

func actionRejectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reject <action-id>",
		Short: "Reject a pending action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := apiClient().ConfirmAction(cmd.Context(), args[0], false)
			if err != nil {
				return err
			}
			return printJSONOrTable(result)
		},
	}
	return cmd
}

func actionPendingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List pending confirmations",
		RunE: func(cmd *cobra.Command, args []string) error {
			pending, err := apiClient().PendingActions(cmd.Context())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(pending)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Action", "Type", "Description", "Requested"})
			for _, a := range pending {
				tw.AppendRow(table.Row{a.ActionID, a.Type, a.Description, a.RequestedAt})
			}
			tw.Render()
			return nil
		},
	}
	return cmd
}

func actionSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Purge resolved confirmations",
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := apiClient().SweepActions(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d resolved actions\n", removed)
			return nil
		},
	}
	return cmd
}

// --- agent ---

func agentCmd() *cobra.Command {
	agent := &cobra.Command{Use: "agent", Short: "Specialized agents"}
	agent.AddCommand(agentAskCmd())
	return agent
}

func agentAskCmd() *cobra.Command {
	var contextText string
	var lat, lon float64
	cmd := &cobra.Command{
		Use:   "ask <agent> <message>",
		Short: "Ask a specialized agent (sustainability, indigenous, proposal)",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var latPtr, lonPtr *float64
			if cmd.Flags().Changed("lat") && cmd.Flags().Changed("lon") {
				latPtr, lonPtr = &lat, &lon
			}
			answer, err := apiClient().AskAgent(cmd.Context(), args[0], strings.Join(args[1:], " "), contextText, latPtr, lonPtr)
			if err != nil {
				return err
			}
			fmt.Println(answer)
			return nil
		},
	}
	cmd.Flags().StringVar(&contextText, "context", "", "extra context for the agent")
	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude for geo enrichment")
	cmd.Flags().Float64Var(&lon, "lon", 0, "longitude for geo enrichment")
	return cmd
}

// --- config ---

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Workspace configuration"}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var projectID string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default parley.yml to the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(projectID)), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "parley", "project id")
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <path>",
		Short: "Parse and validate a config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.FromFile(args[0]); err != nil {
				return err
			}
			fmt.Printf("%s is valid\n", args[0])
			return nil
		},
	}
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective workspace config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
	return cmd
}

// --- log ---

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The audit diary of everything that happened: messages, config changes, confirmations, executions.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := audit.Open(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			defer log.Close()
			events, err := log.Tail(cmd.Context(), n)
			if err != nil {
				return err
			}
			return printJSONOrTable(events)
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	return cmd
}

// --- helpers ---

func apiClient() *parleysdk.Client {
	c := parleysdk.New(viper.GetString("server"), viper.GetString("actor-id"))
	c.BearerToken = viper.GetString("token")
	return c
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Command strand is the agent orchestrator: `strand serve` exposes
// interactive sessions over HTTP, `strand eval` runs a task suite
// against the agent and reports pass@k.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/strandworks/strand/internal/agent"
	"github.com/strandworks/strand/internal/config"
	"github.com/strandworks/strand/internal/cost"
	"github.com/strandworks/strand/internal/eval"
	"github.com/strandworks/strand/internal/llm"
	"github.com/strandworks/strand/internal/llm/openai"
	"github.com/strandworks/strand/internal/mcp"
	"github.com/strandworks/strand/internal/memory"
	"github.com/strandworks/strand/internal/subagent"
	"github.com/strandworks/strand/internal/tool"
	"github.com/strandworks/strand/internal/tool/builtin"
	"github.com/strandworks/strand/internal/web"
)

func main() {
	config.LoadEnv()

	rootCmd := &cobra.Command{
		Use:   "strand",
		Short: "strand - tool-using agent orchestrator",
	}
	rootCmd.PersistentFlags().String("config", "config.yaml", "path to config.yaml")
	rootCmd.AddCommand(buildServeCmd(), buildEvalCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("❌ %v", err)
	}
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

// buildLLMConfig merges file config over the environment defaults.
func buildLLMConfig(cfg config.Config) (*openai.Config, error) {
	llmCfg, err := openai.NewConfigFromEnv()
	if err != nil {
		return nil, err
	}
	if cfg.LLM.Model != "" {
		llmCfg.Model = cfg.LLM.Model
	}
	if cfg.LLM.BaseURL != "" {
		llmCfg.BaseURL = cfg.LLM.BaseURL
	}
	if cfg.LLM.MaxRetries > 0 {
		llmCfg.MaxRetries = cfg.LLM.MaxRetries
	}
	return llmCfg, nil
}

// buildCostTracker opens the cost log when COST_LOG_PATH is set. The
// tracker is nil when disabled; the cleanup func is always safe to call.
func buildCostTracker() (*cost.Tracker, func()) {
	path := os.Getenv("COST_LOG_PATH")
	if path == "" {
		return nil, func() {}
	}
	budget := 0.0
	fmt.Sscanf(os.Getenv("COST_BUDGET_USD"), "%f", &budget)
	tracker, err := cost.NewTracker(path, budget)
	if err != nil {
		log.Printf("[Cost] Disabled: %v", err)
		return nil, func() {}
	}
	return tracker, func() { tracker.Close() }
}

// buildProvider creates the LLM client, with the cost tracker attached
// when COST_LOG_PATH is set.
func buildProvider(cfg config.Config) (*openai.Client, func(), error) {
	llmCfg, err := buildLLMConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	client, err := openai.NewClient(llmCfg)
	if err != nil {
		return nil, nil, err
	}
	tracker, cleanup := buildCostTracker()
	if tracker != nil {
		client.SetCostTracker(tracker)
	}
	return client, cleanup, nil
}

// buildRegistry assembles the full local tool set: builtins, memory,
// tool search and the sub-agent Task tool.
func buildRegistry(cfg config.Config, provider llm.Provider) (*tool.Registry, func(), error) {
	workspaceDir := cfg.Agent.WorkspaceDir
	if err := os.MkdirAll(workspaceDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create workspace %q: %w", workspaceDir, err)
	}

	registry := tool.NewRegistry()
	registry.Add(builtin.NewShellTool(workspaceDir, cfg.Agent.ShellEnabled), tool.SourceLocal)
	registry.Add(builtin.NewCodeExecTool(workspaceDir, ""), tool.SourceLocal)
	registry.Add(builtin.NewEditorTool(workspaceDir), tool.SourceLocal)
	registry.Add(builtin.NewTestRunnerTool(workspaceDir), tool.SourceLocal)
	registry.Add(builtin.NewBrowserTool(), tool.SourceLocal)
	registry.Add(builtin.NewTerminateTool(), tool.SourceLocal)
	registry.Add(tool.NewSearchTool(registry), tool.SourceLocal)

	closers := []func(){}

	if cfg.Memory.Enabled {
		store, err := memory.OpenStore(cfg.Memory.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open memory store: %w", err)
		}
		registry.Add(memory.NewMemoryTool(store), tool.SourceLocal)
		closers = append(closers, func() { store.Close() })
	}

	subagents := subagent.NewRegistry(provider, workspaceDir)
	for agentType, sub := range cfg.SubAgent {
		if sub.MaxSteps > 0 {
			if err := subagents.SetMaxSteps(agentType, sub.MaxSteps); err != nil {
				log.Printf("[SubAgent] %v", err)
			}
		}
	}
	registry.Add(subagent.NewTaskTool(subagents), tool.SourceLocal)

	if err := registry.InitAll(context.Background()); err != nil {
		return nil, nil, fmt.Errorf("init tools: %w", err)
	}

	cleanup := func() {
		registry.CloseAll()
		for _, c := range closers {
			c()
		}
	}
	return registry, cleanup, nil
}

// buildStrategy maps the configured compaction strategy name to an
// implementation.
func buildStrategy(cfg config.Config, provider llm.Provider) memory.Strategy {
	switch cfg.Memory.Strategy {
	case "summarize":
		return &memory.Summarize{Provider: provider}
	case "composite":
		return &memory.Composite{Strategies: []memory.Strategy{
			&memory.DropOldToolResults{KeepRecent: 5},
			&memory.StripReasoning{Markers: []memory.MarkerPair{{Start: "<thinking>", End: "</thinking>"}}},
			&memory.Summarize{Provider: provider},
		}}
	default:
		return &memory.SelectiveRetention{}
	}
}

func configureAgent(a *agent.ToolCallAgent, cfg config.Config, provider llm.Provider) {
	a.MaxSteps = cfg.Agent.MaxSteps
	a.EffortLevel = cfg.Agent.EffortLevel
	a.HighEffortMode = cfg.Agent.HighEffortMode
	a.EnableReflection = cfg.Agent.EnableReflection
	a.MaxObserve = cfg.Agent.MaxObserve
	a.ContextManager = memory.NewContextManager(provider, buildStrategy(cfg, provider), cfg.Memory.CompactionThresholdTokens)
}

func buildServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the session gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			fmt.Println(`  ░█▀▀░▀█▀░█▀▄░█▀█░█▀█░█▀▄`)
			fmt.Println(`  ░▀▀█░░█░░█▀▄░█▀█░█░█░█░█`)
			fmt.Println(`  ░▀▀▀░░▀░░▀░▀░▀░▀░▀░▀░▀▀░`)

			provider, closeCost, err := buildProvider(cfg)
			if err != nil {
				return err
			}
			defer closeCost()
			fmt.Printf("🤖 LLM: %s\n", provider.GetConfig().Model)

			registry, closeTools, err := buildRegistry(cfg, provider)
			if err != nil {
				return err
			}
			defer closeTools()
			fmt.Printf("🛠️  Tools: %d registered\n", registry.Len())

			// Remote tool servers are optional; a missing mcp.json just
			// means no remote tools.
			mcpMgr := mcp.NewManager(registry)
			mcpPath := cfg.MCP.ConfigPath
			if mcpPath == "" {
				mcpPath = filepath.Join(cfg.Agent.WorkspaceDir, "mcp.json")
			}
			if servers, err := mcp.LoadConfig(mcpPath); err == nil {
				mcpMgr.ConnectAll(cmd.Context(), servers)
				if n := len(mcpMgr.Servers()); n > 0 {
					fmt.Printf("🔌 Remote tool servers: %d connected\n", n)
				}
			}
			defer mcpMgr.DisconnectAll()

			ttl, err := time.ParseDuration(cfg.Server.SessionTTL)
			if err != nil {
				ttl = 30 * time.Minute
			}
			factory := func() *agent.ToolCallAgent {
				a := agent.NewToolCallAgent("strand", provider, registry)
				configureAgent(a, cfg, provider)
				return a
			}
			gateway := web.NewGateway(factory, cfg.Server.LogDir, provider.GetConfig().Model, ttl)

			return web.NewServer(gateway).Start(":" + cfg.Server.Port)
		},
	}
}

func buildEvalCmd() *cobra.Command {
	var (
		trials   int
		parallel int
		k        int
		useModel bool
		jsonOut  bool
	)
	cmd := &cobra.Command{
		Use:   "eval <suite.yaml>",
		Short: "Run an evaluation suite and report pass@k",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			tasks, err := eval.LoadTasks(args[0])
			if err != nil {
				return err
			}

			llmCfg, err := buildLLMConfig(cfg)
			if err != nil {
				return err
			}
			tracker, closeCost := buildCostTracker()
			defer closeCost()

			provider, err := openai.NewClient(llmCfg)
			if err != nil {
				return err
			}
			if tracker != nil {
				provider.SetCostTracker(tracker)
			}

			registry, closeTools, err := buildRegistry(cfg, provider)
			if err != nil {
				return err
			}
			defer closeTools()

			graders := []eval.Grader{&eval.CodeGrader{}}
			if useModel {
				graders = append(graders, &eval.ModelGrader{Provider: provider})
			}
			runner := eval.NewTrialRunner(graders...)

			// Trials run concurrently, so each gets its own client;
			// per-trial token usage is read off that client's counters
			// and must not include other trials' traffic.
			factory := func() (*agent.ToolCallAgent, error) {
				trialProvider, err := openai.NewClient(llmCfg)
				if err != nil {
					return nil, err
				}
				if tracker != nil {
					trialProvider.SetCostTracker(tracker)
				}
				a := agent.NewToolCallAgent("eval", trialProvider, registry)
				configureAgent(a, cfg, trialProvider)
				return a, nil
			}

			var all []eval.TrialOutcome
			perTask := make(map[string][]eval.TrialOutcome)
			for _, task := range tasks {
				fmt.Printf("▶ %s (%d trials)\n", task.TaskID, trials)
				outcomes := runner.RunTrials(cmd.Context(), task, trials, parallel, factory)
				perTask[task.TaskID] = outcomes
				all = append(all, outcomes...)
			}

			agg := eval.Summarize(all, tasks)
			if jsonOut {
				return json.NewEncoder(os.Stdout).Encode(struct {
					Aggregate eval.Aggregate     `json:"aggregate"`
					PassAtK   map[string]float64 `json:"pass_at_k"`
				}{agg, passAtKByTask(perTask, k)})
			}

			fmt.Printf("\n═══ Results ═══\n")
			fmt.Printf("Trials: %d  Passed: %d  Success rate: %.1f%%  Mean score: %.2f\n",
				agg.Total, agg.Passed, agg.SuccessRate*100, agg.MeanScore)
			fmt.Printf("Token efficiency: %.1f tokens/success\n", eval.TokenEfficiency(all))

			taskIDs := make([]string, 0, len(perTask))
			for id := range perTask {
				taskIDs = append(taskIDs, id)
			}
			sort.Strings(taskIDs)
			for _, id := range taskIDs {
				outcomes := perTask[id]
				c := 0
				for _, o := range outcomes {
					if o.Passed {
						c++
					}
				}
				fmt.Printf("  %-24s pass@%d = %.3f (%d/%d)\n", id, k, eval.PassAtK(len(outcomes), c, k), c, len(outcomes))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&trials, "trials", "n", 5, "trials per task")
	cmd.Flags().IntVarP(&parallel, "parallel", "p", 2, "concurrent trials")
	cmd.Flags().IntVarP(&k, "k", "k", 1, "k for pass@k")
	cmd.Flags().BoolVar(&useModel, "model-grader", false, "also grade with the model")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit JSON instead of text")
	return cmd
}

func passAtKByTask(perTask map[string][]eval.TrialOutcome, k int) map[string]float64 {
	out := make(map[string]float64, len(perTask))
	for id, outcomes := range perTask {
		c := 0
		for _, o := range outcomes {
			if o.Passed {
				c++
			}
		}
		out[id] = eval.PassAtK(len(outcomes), c, k)
	}
	return out
}

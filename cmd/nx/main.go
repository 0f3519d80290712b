package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Garrett-s-Apps/nexus-sub001/internal/app"
	"github.com/Garrett-s-Apps/nexus-sub001/internal/config"
	"github.com/Garrett-s-Apps/nexus-sub001/internal/cost"
	"github.com/Garrett-s-Apps/nexus-sub001/internal/db"
	"github.com/Garrett-s-Apps/nexus-sub001/internal/domain"
	"github.com/Garrett-s-Apps/nexus-sub001/internal/events"
	"github.com/Garrett-s-Apps/nexus-sub001/internal/registry"
	"github.com/Garrett-s-Apps/nexus-sub001/internal/server"
	"github.com/Garrett-s-Apps/nexus-sub001/internal/world"
)

var rootCmd = &cobra.Command{
	Use:   "nx",
	Short: "Nexus coordination CLI",
	Long: `Nexus coordinates a crew of agents executing one directive at a time.
Core concepts:
- Workspace: the .nexus directory holding the world, registry, and cost databases.
- Directive: the high-level goal; it flows received -> building -> reviewing -> complete.
- Board: tasks decomposed from the directive; agents claim them, dependencies gate availability.
- Agents: the hired roster with a reporting tree; consolidate merges redundant agents into one.
- Circuit events: trip/recovery records per agent; reliability is derived from the log, never stored.
- Cost ledger: every model call priced and checked against hourly, session, and monthly budgets.
- Event log: the append-only diary of everything that happened; view it with 'nx log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		if viper.GetBool("verbose") {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		}
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
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
	viper.SetEnvPrefix("NEXUS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().Bool("verbose", false, "debug logging")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func registerCommands() {
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(directiveCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(defectCmd())
	rootCmd.AddCommand(agentCmd())
	rootCmd.AddCommand(orgCmd())
	rootCmd.AddCommand(circuitCmd())
	rootCmd.AddCommand(costCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(contextCmd())
	rootCmd.AddCommand(serviceCmd())
	rootCmd.AddCommand(decisionCmd())
	rootCmd.AddCommand(keyCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show world status",
		Long:  "See the scoreboard: the active directive, the board, and roster and event counts.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				snap, err := a.World.Snapshot(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(snap)
				}
				if snap.Directive != nil {
					fmt.Printf("Directive: %s (%s)\n", snap.Directive.ID, snap.Directive.Status)
					fmt.Printf("  %s\n", snap.Directive.Text)
				} else {
					fmt.Println("Directive: none active")
				}
				counts := map[string]int{}
				for _, t := range snap.Tasks {
					counts[t.Status]++
				}
				fmt.Println("Tasks:")
				for status, c := range counts {
					fmt.Printf("  %s: %d\n", status, c)
				}
				if len(counts) == 0 {
					fmt.Println("  none")
				}
				fmt.Printf("Agents: %d active\n", snap.Stats.ActiveAgents)
				fmt.Printf("Open defects: %d\n", len(snap.OpenDefects))
				fmt.Printf("Events: %d total\n", snap.Stats.TotalEvents)
				return nil
			})
		},
	}
	return cmd
}

func directiveCmd() *cobra.Command {
	dir := &cobra.Command{
		Use:   "directive",
		Short: "Manage directives",
		Long:  "Directives are the high-level goals. One is active at a time; tasks on the board belong to it.",
	}
	dir.AddCommand(directiveCreateCmd())
	dir.AddCommand(directiveListCmd())
	dir.AddCommand(directiveShowCmd())
	dir.AddCommand(directiveActiveCmd())
	dir.AddCommand(directiveSetStatusCmd())
	return dir
}

func directiveCreateCmd() *cobra.Command {
	var opts world.DirectiveCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a directive",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Actor = actor()
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				d, err := a.World.CreateDirective(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "directive id")
	cmd.Flags().StringVar(&opts.Text, "text", "", "directive text")
	cmd.Flags().StringVar(&opts.Intent, "intent", "", "interpreted intent")
	cmd.Flags().StringVar(&opts.ProjectPath, "project-path", "", "project path the work targets")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("text")
	return cmd
}

func directiveListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List directives",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.World.ListDirectives(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Status", "Text", "Created"})
				for _, d := range items {
					tw.AppendRow(table.Row{d.ID, d.Status, d.Text, d.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func directiveShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a directive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				d, err := a.World.GetDirective(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	return cmd
}

func directiveActiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "active",
		Short: "Show the active directive",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				d, err := a.World.GetActiveDirective(ctx)
				if err != nil {
					return err
				}
				if d == nil {
					if viper.GetBool("json") {
						return printJSON(nil)
					}
					fmt.Println("no active directive")
					return nil
				}
				return printJSONOrTable(d)
			})
		},
	}
	return cmd
}

func directiveSetStatusCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "set-status <id>",
		Short: "Advance a directive's status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				updated, err := a.World.UpdateDirective(ctx, id, world.DirectiveUpdateOptions{
					Status: &status,
					Actor:  actor(),
				})
				if err != nil {
					return err
				}
				if !updated {
					return fmt.Errorf("directive %s not found", id)
				}
				d, err := a.World.GetDirective(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "new status (received, building, reviewing, complete, cancelled)")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage board tasks",
		Long:  "Tasks are the units of work on the board. They flow available -> claimed -> complete/failed, can depend on each other, and a claim is exclusive: one agent per task.",
	}
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskAvailableCmd())
	task.AddCommand(taskShowCmd())
	task.AddCommand(taskClaimCmd())
	task.AddCommand(taskCompleteCmd())
	task.AddCommand(taskFailCmd())
	task.AddCommand(taskResetCmd())
	task.AddCommand(taskDepsCmd())
	return task
}

func taskCreateCmd() *cobra.Command {
	var opts world.TaskCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Add a task to the board",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Actor = actor()
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				t, err := a.World.CreateBoardTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "task id (optional, UUID if omitted)")
	cmd.Flags().StringVar(&opts.DirectiveID, "directive", "", "directive id")
	cmd.Flags().StringVar(&opts.Description, "description", "", "what the task does")
	cmd.Flags().IntVar(&opts.Priority, "priority", 0, "priority (higher claims first)")
	cmd.Flags().StringArrayVar(&opts.DependsOn, "depends-on", []string{}, "dependency task id (repeatable)")
	_ = cmd.MarkFlagRequired("directive")
	_ = cmd.MarkFlagRequired("description")
	return cmd
}

func taskListCmd() *cobra.Command {
	var directiveID, status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List board tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				tasks, err := a.World.BoardTasks(ctx, directiveID, status)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Description", "Status", "Claimed By", "Priority"})
				for _, t := range tasks {
					claimed := ""
					if t.ClaimedBy != nil {
						claimed = *t.ClaimedBy
					}
					tw.AppendRow(table.Row{t.ID, t.Description, t.Status, claimed, t.Priority})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&directiveID, "directive", "", "directive filter")
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	return cmd
}

func taskAvailableCmd() *cobra.Command {
	var directiveID string
	cmd := &cobra.Command{
		Use:   "available",
		Short: "List claimable tasks, highest priority first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				tasks, err := a.World.AvailableTasks(ctx, directiveID)
				if err != nil {
					return err
				}
				return printJSONOrTable(tasks)
			})
		},
	}
	cmd.Flags().StringVar(&directiveID, "directive", "", "directive filter")
	return cmd
}

func taskShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				t, err := a.World.GetBoardTask(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func taskClaimCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "claim <id>",
		Short: "Claim a task for the current actor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				claimed, err := a.World.ClaimTask(ctx, id, actor())
				if err != nil {
					return err
				}
				if !claimed {
					if viper.GetBool("json") {
						return printJSON(map[string]any{"claimed": false})
					}
					fmt.Println("not claimed (task missing, already taken, or blocked by dependencies)")
					return nil
				}
				t, err := a.World.GetBoardTask(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func taskCompleteCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "complete <id>",
		Short: "Mark a claimed task done",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				var out *string
				if cmd.Flags().Changed("output") {
					out = &output
				}
				if err := a.World.CompleteBoardTask(ctx, id, out, actor()); err != nil {
					return err
				}
				t, err := a.World.GetBoardTask(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&output, "output", "", "result summary")
	return cmd
}

func taskFailCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "fail <id>",
		Short: "Mark a claimed task failed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.World.FailBoardTask(ctx, id, reason, actor()); err != nil {
					return err
				}
				t, err := a.World.GetBoardTask(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "error", "", "failure reason")
	_ = cmd.MarkFlagRequired("error")
	return cmd
}

func taskResetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset <id>",
		Short: "Return a task to the board",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.World.ResetBoardTask(ctx, id, actor()); err != nil {
					return err
				}
				t, err := a.World.GetBoardTask(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func taskDepsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deps <id>",
		Short: "Check whether a task's dependencies are met",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				met, err := a.World.AreDependenciesMet(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"task_id": id, "met": met})
			})
		},
	}
	return cmd
}

func defectCmd() *cobra.Command {
	def := &cobra.Command{
		Use:   "defect",
		Short: "Manage defects",
		Long:  "Defects track what broke: filed against a directive, optionally a task, assigned to an agent, resolved once.",
	}
	def.AddCommand(defectFileCmd())
	def.AddCommand(defectListCmd())
	def.AddCommand(defectAssignCmd())
	def.AddCommand(defectResolveCmd())
	return def
}

func defectFileCmd() *cobra.Command {
	var opts world.DefectFileOptions
	cmd := &cobra.Command{
		Use:   "file",
		Short: "File a defect",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.FiledBy = actor()
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				d, err := a.World.FileDefect(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&opts.DirectiveID, "directive", "", "directive id")
	cmd.Flags().StringVar(&opts.TaskID, "task", "", "task id")
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.Severity, "severity", "medium", "severity (low, medium, high, critical)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func defectListCmd() *cobra.Command {
	var directiveID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List open defects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.World.OpenDefects(ctx, directiveID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Severity", "Assigned", "Filed By"})
				for _, d := range items {
					assigned := ""
					if d.AssignedTo != nil {
						assigned = *d.AssignedTo
					}
					tw.AppendRow(table.Row{d.ID, d.Title, d.Severity, assigned, d.FiledBy})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&directiveID, "directive", "", "directive filter")
	return cmd
}

func defectAssignCmd() *cobra.Command {
	var agentID string
	cmd := &cobra.Command{
		Use:   "assign <id>",
		Short: "Assign a defect to an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.World.AssignDefect(ctx, id, agentID, actor()); err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"id": id, "assigned_to": agentID})
			})
		},
	}
	cmd.Flags().StringVar(&agentID, "agent", "", "agent id")
	_ = cmd.MarkFlagRequired("agent")
	return cmd
}

func defectResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve <id>",
		Short: "Resolve a defect",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				resolved, err := a.World.ResolveDefect(ctx, id, actor())
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"id": id, "resolved": resolved})
			})
		},
	}
	return cmd
}

func agentCmd() *cobra.Command {
	agent := &cobra.Command{
		Use:   "agent",
		Short: "Manage the roster",
		Long:  "Agents are the hired workers. Each reports to a manager, carries a model assignment, and flips between idle and working.",
	}
	agent.AddCommand(agentHireCmd())
	agent.AddCommand(agentListCmd())
	agent.AddCommand(agentShowCmd())
	agent.AddCommand(agentUpdateCmd())
	agent.AddCommand(agentFireCmd())
	return agent
}

func agentHireCmd() *cobra.Command {
	var opts registry.HireOptions
	cmd := &cobra.Command{
		Use:   "hire",
		Short: "Hire an agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				rec, err := a.Registry.Hire(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(rec)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "agent id (optional, UUID if omitted)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "display name")
	cmd.Flags().StringVar(&opts.Role, "role", "", "role (builder, reviewer, ...)")
	cmd.Flags().StringVar(&opts.Model, "model", "", "model assignment")
	cmd.Flags().StringVar(&opts.ReportsTo, "reports-to", "", "manager agent id")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func agentListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				agents, err := a.Registry.ActiveAgents(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(agents)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Role", "Model", "Status", "Reports To"})
				for _, ag := range agents {
					reports := ""
					if ag.ReportsTo != nil {
						reports = *ag.ReportsTo
					}
					tw.AppendRow(table.Row{ag.ID, ag.Name, ag.Role, ag.Model, ag.Status, reports})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func agentShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				rec, err := a.Registry.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(rec)
			})
		},
	}
	return cmd
}

func agentUpdateCmd() *cobra.Command {
	var status, lastAction, name, model, role, description string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			var opts registry.UpdateOptions
			if cmd.Flags().Changed("status") {
				opts.Status = &status
			}
			if cmd.Flags().Changed("last-action") {
				opts.LastAction = &lastAction
			}
			if cmd.Flags().Changed("name") {
				opts.Name = &name
			}
			if cmd.Flags().Changed("model") {
				opts.Model = &model
			}
			if cmd.Flags().Changed("role") {
				opts.Role = &role
			}
			if cmd.Flags().Changed("description") {
				opts.Description = &description
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				rec, err := a.Registry.Update(ctx, id, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(rec)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status (idle, working)")
	cmd.Flags().StringVar(&lastAction, "last-action", "", "last action note")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&model, "model", "", "model assignment")
	cmd.Flags().StringVar(&role, "role", "", "role")
	cmd.Flags().StringVar(&description, "description", "", "description")
	return cmd
}

func agentFireCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fire <id>",
		Short: "Fire an agent",
		Long:  "Removes the agent from the roster. Its direct reports are re-pointed to its manager.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Registry.Fire(ctx, id); err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"id": id, "fired": true})
			})
		},
	}
	return cmd
}

func orgCmd() *cobra.Command {
	org := &cobra.Command{
		Use:   "org",
		Short: "Inspect and reshape the org",
		Long:  "The org is the reporting tree over the roster. Reassign moves an agent under a new manager; consolidate merges several agents into one and hands their claimed tasks to the merged agent.",
	}
	org.AddCommand(orgTreeCmd())
	org.AddCommand(orgReportsCmd())
	org.AddCommand(orgReassignCmd())
	org.AddCommand(orgConsolidateCmd())
	org.AddCommand(orgSummaryCmd())
	org.AddCommand(orgChangelogCmd())
	return org
}

func orgTreeCmd() *cobra.Command {
	var root string
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Show the reporting tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				node, err := a.Registry.ReportingTree(ctx, root)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(node)
				}
				if node == nil {
					fmt.Println("no agents hired")
					return nil
				}
				fmt.Printf("%s (%s)\n", node.Agent.Name, node.Agent.ID)
				for i, child := range node.Reports {
					printOrgTree(child, "", i == len(node.Reports)-1)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&root, "root", "", "root agent id (default: the top of the org)")
	return cmd
}

func orgReportsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports <manager-id>",
		Short: "List an agent's direct reports",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				reports, err := a.Registry.DirectReports(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(reports)
			})
		},
	}
	return cmd
}

func orgReassignCmd() *cobra.Command {
	var manager string
	cmd := &cobra.Command{
		Use:   "reassign <agent-id>",
		Short: "Move an agent under a new manager",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Registry.Reassign(ctx, id, manager); err != nil {
					return err
				}
				rec, err := a.Registry.Get(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(rec)
			})
		},
	}
	cmd.Flags().StringVar(&manager, "to", "", "new manager agent id")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func orgConsolidateCmd() *cobra.Command {
	var opts registry.ConsolidateOptions
	cmd := &cobra.Command{
		Use:   "consolidate",
		Short: "Merge agents into one",
		Long:  "Fires the listed agents, hires one merged agent in their place, re-points reports, and hands over any claimed board tasks.",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Actor = actor()
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				merged, err := a.Registry.Consolidate(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(merged)
			})
		},
	}
	cmd.Flags().StringArrayVar(&opts.IDs, "id", []string{}, "agent to merge (repeatable, at least two)")
	cmd.Flags().StringVar(&opts.NewID, "new-id", "", "merged agent id (optional)")
	cmd.Flags().StringVar(&opts.NewName, "new-name", "", "merged agent name")
	cmd.Flags().StringVar(&opts.NewDescription, "description", "", "merged agent description")
	_ = cmd.MarkFlagRequired("new-name")
	return cmd
}

func orgSummaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Summarize the org by role",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				sum, err := a.Registry.OrgSummary(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(sum)
			})
		},
	}
	return cmd
}

func orgChangelogCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "changelog",
		Short: "Show recent org changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				changes, err := a.Registry.Changelog(ctx, n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(changes)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"At", "Action", "Agent", "Detail"})
				for _, c := range changes {
					tw.AppendRow(table.Row{c.CreatedAt, c.Action, c.AgentID, c.Detail})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of entries")
	return cmd
}

func circuitCmd() *cobra.Command {
	circuit := &cobra.Command{
		Use:   "circuit",
		Short: "Agent reliability",
		Long:  "Circuit events record agent failures (trips) and recoveries. An agent with a trip after its last recovery is considered broken; the state is always derived from the log.",
	}
	circuit.AddCommand(circuitTripCmd())
	circuit.AddCommand(circuitRecoverCmd())
	circuit.AddCommand(circuitStateCmd())
	circuit.AddCommand(circuitStatsCmd())
	return circuit
}

func circuitTripCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "trip <agent-id>",
		Short: "Record a circuit trip",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				evt, err := a.Registry.RecordCircuitEvent(ctx, args[0], "trip", reason)
				if err != nil {
					return err
				}
				return printJSONOrTable(evt)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "what went wrong")
	return cmd
}

func circuitRecoverCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "recover <agent-id>",
		Short: "Record a circuit recovery",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				evt, err := a.Registry.RecordCircuitEvent(ctx, args[0], "recovery", reason)
				if err != nil {
					return err
				}
				return printJSONOrTable(evt)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "what recovered")
	return cmd
}

func circuitStateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state <agent-id>",
		Short: "Show whether an agent's circuit is broken",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				broken, err := a.Registry.IsCircuitBroken(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"agent_id": id, "broken": broken})
			})
		},
	}
	return cmd
}

func circuitStatsCmd() *cobra.Command {
	var windowHours int
	cmd := &cobra.Command{
		Use:   "stats <agent-id>",
		Short: "Show trip and recovery counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				rel, err := a.Registry.Reliability(ctx, args[0], windowHours)
				if err != nil {
					return err
				}
				return printJSONOrTable(rel)
			})
		},
	}
	cmd.Flags().IntVar(&windowHours, "window-hours", 24, "trailing window in hours (0 for all time)")
	return cmd
}

func costCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "cost",
		Short: "Cost tracking and budgets",
		Long:  "Every model call lands in the cost ledger with its computed price. Budgets fire warnings and hard caps; a hard cap downgrades model routing until reset.",
	}
	c.AddCommand(costRecordCmd())
	c.AddCommand(costSessionCmd())
	c.AddCommand(costMonthlyCmd())
	c.AddCommand(costReportCmd())
	c.AddCommand(costModelsCmd())
	c.AddCommand(costAgentsCmd())
	c.AddCommand(costDailyCmd())
	c.AddCommand(costEffectiveModelCmd())
	c.AddCommand(costResetDowngradeCmd())
	return c
}

func costRecordCmd() *cobra.Command {
	var opts cost.RecordOptions
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a model call",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.AgentID == "" {
				opts.AgentID = actor()
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				status, err := a.Cost.Record(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(status)
				}
				fmt.Printf("cost $%.4f, session $%.4f\n", status.Cost, status.SessionCost)
				for _, alert := range status.Alerts {
					fmt.Println("ALERT:", alert)
				}
				if status.Downgrade {
					fmt.Println("model routing downgraded")
				}
				if status.KillSession {
					fmt.Println("session over hard cap, stop now")
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.Model, "model", "", "model used")
	cmd.Flags().StringVar(&opts.AgentID, "agent", "", "agent id (default: actor)")
	cmd.Flags().StringVar(&opts.Project, "project", "", "project label")
	cmd.Flags().Int64Var(&opts.InputTokens, "input-tokens", 0, "input tokens")
	cmd.Flags().Int64Var(&opts.OutputTokens, "output-tokens", 0, "output tokens")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}

func costSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Show session spend",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return printJSONOrTable(a.Cost.Session())
			})
		},
	}
	return cmd
}

func costMonthlyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monthly",
		Short: "Show month-to-date spend",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				monthly, err := a.Cost.MonthlyCost(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"monthly_cost": monthly})
			})
		},
	}
	return cmd
}

func costReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render the full cost report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				report, err := a.Cost.CFOReport(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"report": report})
				}
				fmt.Println(report)
				return nil
			})
		},
	}
	return cmd
}

func costModelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Month-to-date spend by model",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Cost.ModelBreakdown(ctx, monthStartUTC())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Model", "Cost", "Input", "Output", "Calls"})
				for _, m := range items {
					tw.AppendRow(table.Row{m.Model, fmt.Sprintf("$%.2f", m.Cost), m.InputTokens, m.OutputTokens, m.Calls})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func costAgentsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "Month-to-date spend by agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Cost.AgentBreakdown(ctx, monthStartUTC(), limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Agent", "Cost", "Calls"})
				for _, ag := range items {
					name := ag.AgentID
					if name == "" {
						name = "(unattributed)"
					}
					tw.AppendRow(table.Row{name, fmt.Sprintf("$%.2f", ag.Cost), ag.Calls})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "max agents")
	return cmd
}

func costDailyCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "daily",
		Short: "Recent daily spend",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Cost.DailyBreakdown(ctx, days)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Day", "Cost", "Calls"})
				for _, d := range items {
					tw.AppendRow(table.Row{d.Day, fmt.Sprintf("$%.2f", d.Cost), d.Calls})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 7, "number of days")
	return cmd
}

func costEffectiveModelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "effective-model <model>",
		Short: "Show the model to use after any active downgrade",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return printJSONOrTable(map[string]any{
					"requested":  args[0],
					"model":      a.Cost.EffectiveModel(args[0]),
					"downgraded": a.Cost.Downgraded(),
				})
			})
		},
	}
	return cmd
}

func costResetDowngradeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset-downgrade",
		Short: "Restore normal model routing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				a.Cost.ResetDowngrade()
				return printJSONOrTable(map[string]any{"downgraded": false})
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: directive changes, claims, completions, org moves, and custom events.",
	}
	lg.AddCommand(logTailCmd())
	lg.AddCommand(logEmitCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var n int
	var since int64
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				var items []domain.Event
				var err error
				if cmd.Flags().Changed("since") {
					items, err = a.World.EventsSince(ctx, since, n)
				} else {
					items, err = a.World.RecentEvents(ctx, n)
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "At", "Actor", "Type"})
				for _, e := range items {
					tw.AppendRow(table.Row{e.ID, e.CreatedAt, e.Actor, e.Type})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().Int64Var(&since, "since", 0, "list events after this id, oldest first")
	return cmd
}

func logEmitCmd() *cobra.Command {
	var evtType, payloadJSON string
	cmd := &cobra.Command{
		Use:   "emit",
		Short: "Append a custom event",
		RunE: func(cmd *cobra.Command, args []string) error {
			var payload events.EventPayload
			if payloadJSON != "" {
				if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
					return fmt.Errorf("invalid --payload-json: %w", err)
				}
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				id, err := a.World.EmitEvent(ctx, actor(), evtType, payload)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"id": id})
			})
		},
	}
	cmd.Flags().StringVar(&evtType, "type", "", "event type")
	cmd.Flags().StringVar(&payloadJSON, "payload-json", "", "payload JSON object")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func contextCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "context",
		Short: "Agent context feed",
		Long:  "Context entries are addressed notes between agents. An interrupt entry flags the recipient to stop and read; consume clears pending interrupts.",
	}
	c.AddCommand(contextPostCmd())
	c.AddCommand(contextListCmd())
	c.AddCommand(contextConsumeCmd())
	return c
}

func contextPostCmd() *cobra.Command {
	var agentID, kind, content string
	cmd := &cobra.Command{
		Use:   "post",
		Short: "Post a context entry to an agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				entry, err := a.World.PostContext(ctx, agentID, kind, content)
				if err != nil {
					return err
				}
				return printJSONOrTable(entry)
			})
		},
	}
	cmd.Flags().StringVar(&agentID, "agent", "", "recipient agent id")
	cmd.Flags().StringVar(&kind, "kind", "note", "entry kind (note, interrupt, ...)")
	cmd.Flags().StringVar(&content, "content", "", "entry content")
	_ = cmd.MarkFlagRequired("agent")
	_ = cmd.MarkFlagRequired("content")
	return cmd
}

func contextListCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "list <agent-id>",
		Short: "Show an agent's recent context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				entries, err := a.World.RecentContext(ctx, id, n)
				if err != nil {
					return err
				}
				interrupted, err := a.World.HasInterruption(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"entries": entries, "interrupted": interrupted})
				}
				if interrupted {
					fmt.Println("INTERRUPTED: unconsumed interrupt entries pending")
				}
				for _, e := range entries {
					fmt.Printf("[%s] %s %s: %s\n", e.CreatedAt, e.Kind, e.AgentID, e.Content)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of entries")
	return cmd
}

func contextConsumeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "consume <agent-id>",
		Short: "Consume pending interrupts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				consumed, err := a.World.ConsumeInterruptions(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"agent_id": id, "consumed": consumed})
			})
		},
	}
	return cmd
}

func serviceCmd() *cobra.Command {
	svc := &cobra.Command{
		Use:   "service",
		Short: "Track running services",
		Long:  "Services are long-lived processes agents start (dev servers, watchers). Registering the same name again overwrites the record.",
	}
	svc.AddCommand(serviceRegisterCmd())
	svc.AddCommand(serviceListCmd())
	svc.AddCommand(serviceStopCmd())
	return svc
}

func serviceRegisterCmd() *cobra.Command {
	var name, detail string
	var pid, port int
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a running service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				rec, err := a.World.RegisterService(ctx, name, pid, port, detail, actor())
				if err != nil {
					return err
				}
				return printJSONOrTable(rec)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "service name")
	cmd.Flags().IntVar(&pid, "pid", 0, "process id")
	cmd.Flags().IntVar(&port, "port", 0, "listen port")
	cmd.Flags().StringVar(&detail, "detail", "", "free-form detail")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("pid")
	return cmd
}

func serviceListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List running services",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.World.RunningServices(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func serviceStopCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop <name>",
		Short: "Remove a service record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				stopped, err := a.World.StopService(ctx, name, actor())
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"name": name, "stopped": stopped})
			})
		},
	}
	return cmd
}

func decisionCmd() *cobra.Command {
	dec := &cobra.Command{
		Use:   "decision",
		Short: "Peer decisions",
		Long:  "Decisions capture what an agent chose on a topic and why, so peers stop re-deciding the same thing.",
	}
	dec.AddCommand(decisionRecordCmd())
	dec.AddCommand(decisionListCmd())
	return dec
}

func decisionRecordCmd() *cobra.Command {
	var agentID, topic, decision, rationale string
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a decision",
		RunE: func(cmd *cobra.Command, args []string) error {
			if agentID == "" {
				agentID = actor()
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				d, err := a.World.RecordDecision(ctx, agentID, topic, decision, rationale)
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&agentID, "agent", "", "deciding agent (default: actor)")
	cmd.Flags().StringVar(&topic, "topic", "", "topic")
	cmd.Flags().StringVar(&decision, "decision", "", "decision text")
	cmd.Flags().StringVar(&rationale, "rationale", "", "why")
	_ = cmd.MarkFlagRequired("topic")
	_ = cmd.MarkFlagRequired("decision")
	return cmd
}

func decisionListCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "list <topic>",
		Short: "List decisions on a topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.World.DecisionsByTopic(ctx, args[0], n)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of decisions")
	return cmd
}

func keyCmd() *cobra.Command {
	key := &cobra.Command{
		Use:   "key",
		Short: "Agent API keys",
		Long:  "API keys authenticate agents against the HTTP API. The plaintext is shown once at creation; only its hash is stored.",
	}
	key.AddCommand(keyCreateCmd())
	key.AddCommand(keyListCmd())
	key.AddCommand(keyRevokeCmd())
	return key
}

func keyCreateCmd() *cobra.Command {
	var agentID, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Mint an API key for an agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				k, plaintext, err := a.Registry.CreateKey(ctx, agentID, name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"key": k, "plaintext": plaintext})
				}
				fmt.Printf("key %s for %s\n", k.ID, k.AgentID)
				fmt.Printf("plaintext (shown once): %s\n", plaintext)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&agentID, "agent", "", "agent id")
	cmd.Flags().StringVar(&name, "name", "", "key label")
	_ = cmd.MarkFlagRequired("agent")
	return cmd
}

func keyListCmd() *cobra.Command {
	var agentID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				keys, err := a.Registry.Keys(ctx, agentID)
				if err != nil {
					return err
				}
				return printJSONOrTable(keys)
			})
		},
	}
	cmd.Flags().StringVar(&agentID, "agent", "", "agent filter")
	return cmd
}

func keyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Registry.DeleteKey(ctx, id); err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"id": id, "revoked": true})
			})
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
		Long:  "Config lives in nexus.yml: project name, budgets, pricing overrides, the seed roster, server address, and webhook targets.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return printJSONOrTable(a.Config)
			})
		},
	}
	return cmd
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default nexus.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			abs, err := filepath.Abs(workspace)
			if err != nil {
				return err
			}
			content := config.GenerateDefault(filepath.Base(abs))
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate nexus.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := config.LoadOptional(workspace)
			if err == nil && cfg == nil {
				err = fmt.Errorf("no nexus.yml at %s (defaults apply)", config.Path(workspace))
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowActorHeader bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			a, err := app.New(cmd.Context(), app.Options{Workspace: workspace})
			if err != nil {
				return err
			}
			defer a.Close()
			authCfg := server.AuthConfig{
				JWTSecret:        os.Getenv("NEXUS_JWT_SECRET"),
				AllowActorHeader: allowActorHeader,
			}
			if authCfg.JWTSecret == "" && !allowActorHeader {
				return fmt.Errorf("set NEXUS_JWT_SECRET for bearer auth, or pass --allow-actor-header for local use")
			}
			handler, err := server.New(server.Config{App: a, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			if addr == "" {
				addr = a.Config.Server.Addr
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Nexus API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: config server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&allowActorHeader, "allow-actor-header", false, "accept X-Actor-Id without credentials (local only)")
	return cmd
}

// --- helpers ---

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	a, err := app.New(ctx, app.Options{Workspace: viper.GetString("workspace")})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func actor() string {
	return viper.GetString("actor-id")
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

func printOrgTree(node *registry.OrgNode, prefix string, last bool) {
	connector := "├── "
	newPrefix := prefix + "│   "
	if last {
		connector = "└── "
		newPrefix = prefix + "    "
	}
	fmt.Printf("%s%s%s (%s)\n", prefix, connector, node.Agent.Name, node.Agent.ID)
	for i, child := range node.Reports {
		printOrgTree(child, newPrefix, i == len(node.Reports)-1)
	}
}

func monthStartUTC() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}

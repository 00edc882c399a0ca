// Package cli provides entity management commands.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Enntity/pulse/internal/db"
	"github.com/Enntity/pulse/internal/models"
	"github.com/Enntity/pulse/internal/names"
)

var (
	entityName         string
	entityWorkspaceURL string
	entityInterval     int
	entityMaxDepth     int
	entityBudgetWakes  int
	entityBudgetTokens int
	entityActiveStart  string
	entityActiveEnd    string
	entityTimezone     string
	entityModel        string
)

func init() {
	rootCmd.AddCommand(entitiesCmd)
	entitiesCmd.AddCommand(entitiesListCmd)
	entitiesCmd.AddCommand(entitiesAddCmd)
	entitiesCmd.AddCommand(entitiesEnableCmd)
	entitiesCmd.AddCommand(entitiesDisableCmd)
	entitiesCmd.AddCommand(entitiesImportCmd)

	entitiesAddCmd.Flags().StringVar(&entityName, "name", "", "entity display name (generated if omitted)")
	entitiesAddCmd.Flags().StringVar(&entityWorkspaceURL, "workspace", "", "workspace URL included in wake prompts")
	entitiesAddCmd.Flags().IntVar(&entityInterval, "interval", 0, "wake interval in minutes (default 15)")
	entitiesAddCmd.Flags().IntVar(&entityMaxDepth, "max-depth", 0, "maximum chain depth (default 5)")
	entitiesAddCmd.Flags().IntVar(&entityBudgetWakes, "budget-wakes", 0, "daily wake budget (default 96)")
	entitiesAddCmd.Flags().IntVar(&entityBudgetTokens, "budget-tokens", 0, "daily token budget (default 500000)")
	entitiesAddCmd.Flags().StringVar(&entityActiveStart, "active-start", "", "active window start (HH:MM)")
	entitiesAddCmd.Flags().StringVar(&entityActiveEnd, "active-end", "", "active window end (HH:MM)")
	entitiesAddCmd.Flags().StringVar(&entityTimezone, "timezone", "", "active window timezone (IANA name)")
	entitiesAddCmd.Flags().StringVar(&entityModel, "model", "", "model override for this entity")
}

var entitiesCmd = &cobra.Command{
	Use:   "entities",
	Short: "Manage pulse entities",
	Long: `Manage the entities Pulse wakes.

Each entity carries its own wake interval, chain depth bound, daily
budgets, optional active-hours window, and optional model override.`,
}

var entitiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List entities",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		entities, err := db.NewEntityRepository(database).List(ctx)
		if err != nil {
			return err
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return NewFormatter(os.Stdout).Write(entities)
		}

		if len(entities) == 0 {
			cmd.Println("No entities configured")
			return nil
		}

		return table(os.Stdout, "ID\tNAME\tPULSE\tINTERVAL\tMAX DEPTH\tACTIVE HOURS\tMODEL", func(w io.Writer) {
			for _, entity := range entities {
				window := "-"
				if entity.Pulse.ActiveHours != nil && entity.Pulse.ActiveHours.Configured() {
					window = entity.Pulse.ActiveHours.Start + "-" + entity.Pulse.ActiveHours.End
					if entity.Pulse.ActiveHours.Timezone != "" {
						window += " " + entity.Pulse.ActiveHours.Timezone
					}
				}
				model := entity.Pulse.Model
				if model == "" {
					model = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
					entity.ID,
					entity.Name,
					renderEnabled(entity.Pulse.Enabled),
					entity.Pulse.WakeInterval(),
					entity.Pulse.ChainDepthLimit(),
					window,
					model,
				)
			}
		})
	},
}

var entitiesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a new entity",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		name := entityName
		if name == "" {
			name = names.Random(nil)
		}

		entity := &models.Entity{
			Name:         name,
			WorkspaceURL: entityWorkspaceURL,
			Pulse: models.PulseConfig{
				Enabled:             true,
				WakeIntervalMinutes: entityInterval,
				MaxChainDepth:       entityMaxDepth,
				DailyBudgetWakes:    entityBudgetWakes,
				DailyBudgetTokens:   entityBudgetTokens,
				Model:               entityModel,
			},
		}
		if entityActiveStart != "" || entityActiveEnd != "" {
			entity.Pulse.ActiveHours = &models.ActiveHours{
				Start:    entityActiveStart,
				End:      entityActiveEnd,
				Timezone: entityTimezone,
			}
		}

		if err := db.NewEntityRepository(database).Create(ctx, entity); err != nil {
			return err
		}

		cmd.Printf("Created entity %s (%s)\n", entity.Name, entity.ID)
		return nil
	},
}

var entitiesEnableCmd = &cobra.Command{
	Use:   "enable <entity-id>",
	Short: "Enable pulse wakes for an entity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setEntityEnabled(cmd, args[0], true)
	},
}

var entitiesDisableCmd = &cobra.Command{
	Use:   "disable <entity-id>",
	Short: "Disable pulse wakes for an entity",
	Long: `Disable pulse wakes for an entity.

A chain already in flight notices on its next attempt and ends,
releasing the entity's lock.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setEntityEnabled(cmd, args[0], false)
	},
}

func setEntityEnabled(cmd *cobra.Command, entityID string, enabled bool) error {
	ctx := context.Background()

	database, err := openDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.NewEntityRepository(database).SetEnabled(ctx, entityID, enabled); err != nil {
		return err
	}

	state := "disabled"
	if enabled {
		state = "enabled"
	}
	cmd.Printf("Entity %s %s\n", entityID, state)
	return nil
}

// entityImportFile is the YAML schema for bulk entity import.
type entityImportFile struct {
	Entities []struct {
		Name         string `yaml:"name"`
		WorkspaceURL string `yaml:"workspace_url"`
		Pulse        struct {
			Enabled             bool   `yaml:"enabled"`
			WakeIntervalMinutes int    `yaml:"wake_interval_minutes"`
			MaxChainDepth       int    `yaml:"max_chain_depth"`
			DailyBudgetWakes    int    `yaml:"daily_budget_wakes"`
			DailyBudgetTokens   int    `yaml:"daily_budget_tokens"`
			Model               string `yaml:"model"`
			ActiveHours         *struct {
				Start    string `yaml:"start"`
				End      string `yaml:"end"`
				Timezone string `yaml:"timezone"`
			} `yaml:"active_hours"`
		} `yaml:"pulse"`
	} `yaml:"entities"`
}

var entitiesImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import entities from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read import file: %w", err)
		}

		var file entityImportFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return fmt.Errorf("failed to parse import file: %w", err)
		}
		if len(file.Entities) == 0 {
			return fmt.Errorf("import file contains no entities")
		}

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		repo := db.NewEntityRepository(database)
		for _, spec := range file.Entities {
			entity := &models.Entity{
				Name:         spec.Name,
				WorkspaceURL: spec.WorkspaceURL,
				Pulse: models.PulseConfig{
					Enabled:             spec.Pulse.Enabled,
					WakeIntervalMinutes: spec.Pulse.WakeIntervalMinutes,
					MaxChainDepth:       spec.Pulse.MaxChainDepth,
					DailyBudgetWakes:    spec.Pulse.DailyBudgetWakes,
					DailyBudgetTokens:   spec.Pulse.DailyBudgetTokens,
					Model:               spec.Pulse.Model,
				},
			}
			if spec.Pulse.ActiveHours != nil {
				entity.Pulse.ActiveHours = &models.ActiveHours{
					Start:    spec.Pulse.ActiveHours.Start,
					End:      spec.Pulse.ActiveHours.End,
					Timezone: spec.Pulse.ActiveHours.Timezone,
				}
			}

			if err := repo.Create(ctx, entity); err != nil {
				return fmt.Errorf("failed to import entity %q: %w", spec.Name, err)
			}
			cmd.Printf("Imported %s (%s)\n", entity.Name, entity.ID)
		}

		return nil
	},
}

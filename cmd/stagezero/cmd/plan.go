package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hookline/stagezero/pkg/config"
	"github.com/hookline/stagezero/pkg/lifecycle"
)

// planCmd represents the plan command
var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the launch sequence without running it",
	Long: `Resolve the manifest and print the exact ordered invocations the
launch would perform, including the final process replacement. Nothing
is executed.`,
	RunE: runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)
}

type planStage struct {
	Stage   string `json:"stage" yaml:"stage"`
	Phase   string `json:"phase" yaml:"phase"`
	Action  string `json:"action" yaml:"action"`
	OnError string `json:"on_error" yaml:"on_error"`
}

type launchPlan struct {
	BaseImage string      `json:"base_image" yaml:"base_image"`
	WorkDir   string      `json:"workdir" yaml:"workdir"`
	Service   string      `json:"service" yaml:"service"`
	Artifact  string      `json:"artifact" yaml:"artifact"`
	Stages    []planStage `json:"stages" yaml:"stages"`
}

func buildPlan(cfg config.Config) launchPlan {
	env := cfg.Environment()
	install := append(append([]string(nil), cfg.Trust.InstallCommand...), cfg.Trust.Packages...)

	return launchPlan{
		BaseImage: cfg.BaseImage,
		WorkDir:   cfg.WorkDir,
		Service:   cfg.Service.Name,
		Artifact:  env.ArtifactAbs(),
		Stages: []planStage{
			{
				Stage:   "workdir",
				Phase:   string(lifecycle.PhaseEnvReady),
				Action:  fmt.Sprintf("mkdir -p %s && cd %s", cfg.WorkDir, cfg.WorkDir),
				OnError: "exit 1",
			},
			{
				Stage:   "trust",
				Phase:   string(lifecycle.PhaseTrustInstalled),
				Action:  strings.Join(cfg.Trust.RefreshCommand, " ") + "; " + strings.Join(install, " "),
				OnError: "exit with the command's own status",
			},
			{
				Stage:   "build",
				Phase:   string(lifecycle.PhaseBuilt),
				Action:  strings.Join(cfg.Build.Command, " "),
				OnError: "exit with the build tool's own status",
			},
			{
				Stage:   "handoff",
				Phase:   string(lifecycle.PhaseRunning),
				Action:  "exec " + strings.Join(append([]string{env.ArtifactAbs()}, cfg.Service.Args...), " "),
				OnError: "exit 127 if missing, 126 if not executable",
			},
		},
	}
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := loadManifest()
	if err != nil {
		return err
	}
	plan := buildPlan(cfg)

	switch {
	case IsJSONOutput():
		out, err := json.MarshalIndent(plan, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal plan: %w", err)
		}
		fmt.Println(string(out))
	case IsYAMLOutput():
		out, err := yaml.Marshal(plan)
		if err != nil {
			return fmt.Errorf("marshal plan: %w", err)
		}
		fmt.Print(string(out))
	default:
		fmt.Printf("Base image: %s\nWorkdir:    %s\nService:    %s\n\n",
			plan.BaseImage, plan.WorkDir, plan.Service)

		table := tablewriter.NewWriter(os.Stdout)
		table.Header("#", "Stage", "Phase", "Action")
		for i, st := range plan.Stages {
			table.Append(fmt.Sprintf("%d", i+1), st.Stage, st.Phase, st.Action)
		}
		table.Render()
	}
	return nil
}

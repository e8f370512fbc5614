package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hookline/stagezero/pkg/sysinfo"
)

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show the resolved manifest and host fingerprint",
	Long: `Print the fully resolved launch manifest (defaults applied) together
with a fingerprint of the host stagezero is running on. Useful for
verifying what a launch would see before it runs.`,
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	cfg, err := loadManifest()
	if err != nil {
		return err
	}
	fp := sysinfo.Collect()

	report := struct {
		Manifest interface{}         `json:"manifest" yaml:"manifest"`
		Host     sysinfo.Fingerprint `json:"host" yaml:"host"`
	}{Manifest: cfg, Host: fp}

	switch {
	case IsJSONOutput():
		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal report: %w", err)
		}
		fmt.Println(string(out))
	case IsYAMLOutput():
		out, err := yaml.Marshal(report)
		if err != nil {
			return fmt.Errorf("marshal report: %w", err)
		}
		fmt.Print(string(out))
	default:
		env := cfg.Environment()

		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Property", "Value")
		table.Append("Base image", cfg.BaseImage)
		table.Append("Workdir", cfg.WorkDir)
		table.Append("Service", cfg.Service.Name)
		table.Append("Artifact", env.ArtifactAbs())
		table.Append("Hostname", fp.Hostname)
		table.Append("OS/Arch", fp.OS+"/"+fp.Arch)
		if fp.Platform != "" {
			table.Append("Platform", fp.Platform)
		}
		if fp.KernelVersion != "" {
			table.Append("Kernel", fp.KernelVersion)
		}
		if fp.Virtualization != "" {
			table.Append("Virtualization", fp.Virtualization)
		}
		if fp.CPUModel != "" {
			table.Append("CPU", fmt.Sprintf("%s (%d threads)", fp.CPUModel, fp.CPUThreads))
		} else {
			table.Append("CPU", fmt.Sprintf("%d threads", fp.CPUThreads))
		}
		if fp.MemTotalBytes > 0 {
			table.Append("Memory", fmt.Sprintf("%.2f GB", float64(fp.MemTotalBytes)/(1024*1024*1024)))
		}
		table.Render()
	}
	return nil
}

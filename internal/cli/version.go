package cli

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

var (
	// Set via ldflags at build time
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

func currentVersion() versionInfo {
	info := versionInfo{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
	// go install builds carry no ldflags; fall back to the module version.
	if info.Version == "dev" {
		if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			info.Version = bi.Main.Version
		}
	}
	return info
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		info := currentVersion()
		if JSONOutput() {
			return writeJSON(cmd.OutOrStdout(), info)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "encore %s\n", info.Version)
		if Verbose() {
			fmt.Fprintf(out, "  commit:     %s\n", info.Commit)
			fmt.Fprintf(out, "  built:      %s\n", info.BuildDate)
			fmt.Fprintf(out, "  go version: %s\n", info.GoVersion)
			fmt.Fprintf(out, "  platform:   %s/%s\n", info.OS, info.Arch)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

package main

import (
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"
)

// buildInfo describes the running binary. Revision details come from the VCS
// stamp the go tool embeds; they are empty for builds outside a checkout.
type buildInfo struct {
	Version  string `json:"version"`
	Revision string `json:"revision,omitempty"`
	Modified bool   `json:"modified,omitempty"`
	Time     string `json:"time,omitempty"`
	Go       string `json:"go"`
}

func newVersionCmd() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version metadata",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bi, _ := debug.ReadBuildInfo()
			info := describeBuild(version, bi)
			out := cmd.OutOrStdout()

			if jsonOut {
				return json.NewEncoder(out).Encode(info)
			}
			fmt.Fprintln(out, info.String())
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output version metadata as JSON")
	return cmd
}

// describeBuild combines the release version with the module's build stamp.
// bi may be nil.
func describeBuild(release string, bi *debug.BuildInfo) buildInfo {
	info := buildInfo{Version: strings.TrimSpace(release)}
	if bi == nil {
		if info.Version == "" {
			info.Version = "devel"
		}
		return info
	}

	info.Go = bi.GoVersion
	if info.Version == "" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	if info.Version == "" {
		info.Version = "devel"
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			info.Revision = s.Value
		case "vcs.time":
			info.Time = s.Value
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	return info
}

// String renders "smsdemo <version> (<rev>[+dirty], <time>, <go>)".
func (b buildInfo) String() string {
	var details []string
	if b.Revision != "" {
		rev := b.Revision
		if len(rev) > 12 {
			rev = rev[:12]
		}
		if b.Modified {
			rev += "+dirty"
		}
		details = append(details, rev)
	}
	if b.Time != "" {
		details = append(details, b.Time)
	}
	if b.Go != "" {
		details = append(details, b.Go)
	}
	if len(details) == 0 {
		return "smsdemo " + b.Version
	}
	return fmt.Sprintf("smsdemo %s (%s)", b.Version, strings.Join(details, ", "))
}

package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cloudloader/cloudinstaller/internal/artifact"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <descriptor>...",
	Short: "Show where an artifact descriptor lives in a repository",
	Long: `Resolve parses group:name:version[:classifier][@ext] descriptors and prints
the file name, the repository-relative path and the local path under --base.

Examples:
  cloudinstaller resolve net.minecraftforge:forge:1.17.1-37.0.0:installer
  cloudinstaller resolve de.oceanlabs.mcp:mcp_config:1.17.1@zip --base ./libraries --format=json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResolve,
}

var (
	resolveBaseFlag   string
	resolveFormatFlag string
)

func init() {
	resolveCmd.Flags().StringVar(&resolveBaseFlag, "base", "libraries", "Library root used for the local path")
	resolveCmd.Flags().StringVar(&resolveFormatFlag, "format", "text", "Output format: text or json")
}

// GetResolveCmd export
func GetResolveCmd() *cobra.Command {
	return resolveCmd
}

// Resolved is the json output of resolve.
type Resolved struct {
	Descriptor string `json:"descriptor"`
	Group      string `json:"group"`
	Name       string `json:"name"`
	Version    string `json:"version"`
	Classifier string `json:"classifier,omitempty"`
	Extension  string `json:"extension"`
	File       string `json:"file"`
	Path       string `json:"path"`
	Local      string `json:"local"`
}

func runResolve(cmd *cobra.Command, args []string) error {
	if resolveFormatFlag != "text" && resolveFormatFlag != "json" {
		return fmt.Errorf("invalid format: %s (use text or json)", resolveFormatFlag)
	}

	var out []Resolved
	for _, d := range args {
		c, err := artifact.Parse(d)
		if err != nil {
			return err
		}
		out = append(out, Resolved{
			Descriptor: c.Descriptor(),
			Group:      c.Group(),
			Name:       c.Name(),
			Version:    c.Version(),
			Classifier: c.Classifier(),
			Extension:  c.Extension(),
			File:       c.FileName(),
			Path:       c.Path(),
			Local:      c.LocalPath(resolveBaseFlag),
		})
	}

	w := cmd.OutOrStdout()
	if resolveFormatFlag == "json" {
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(data))
		return nil
	}
	for _, r := range out {
		fmt.Fprintf(w, "%s\n  file:  %s\n  path:  %s\n  local: %s\n", r.Descriptor, r.File, r.Path, r.Local)
	}
	return nil
}

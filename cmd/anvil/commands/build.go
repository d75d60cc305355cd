package commands

import (
	"strings"

	"github.com/spf13/cobra"
	"go.trai.ch/anvil/internal/app"
	"go.trai.ch/zerr"
)

func (c *CLI) newBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build [targets...]",
		Short: "Build the given targets (default targets when none are named)",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := cmd.Flags().GetString("file")
			if err != nil {
				return err
			}
			toolsVersion, err := cmd.Flags().GetString("tools-version")
			if err != nil {
				return err
			}
			propFlags, err := cmd.Flags().GetStringArray("property")
			if err != nil {
				return err
			}
			props, err := parseProperties(propFlags)
			if err != nil {
				return err
			}

			return c.app.Run(cmd.Context(), app.BuildParams{
				ProjectFile:      file,
				Targets:          args,
				GlobalProperties: props,
				ToolsVersion:     toolsVersion,
			})
		},
	}

	cmd.Flags().StringP("file", "f", "anvil.yaml", "Path to the project file")
	cmd.Flags().StringArrayP("property", "p", nil, "Global property as key=value (repeatable)")
	cmd.Flags().String("tools-version", "", "Tools version for the build")

	return cmd
}

func parseProperties(entries []string) (map[string]string, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	props := make(map[string]string, len(entries))
	for _, entry := range entries {
		k, v, ok := strings.Cut(entry, "=")
		if !ok || k == "" {
			return nil, zerr.With(zerr.New("invalid property, expected key=value"), "property", entry)
		}
		props[k] = v
	}
	return props, nil
}

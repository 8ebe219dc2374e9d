package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/maauso/voice-emotion-api/internal/model"
)

func newModelsCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "Load both model artifacts and report their status",
		Long: `Load the CNN and MLP artifacts and print whether each loaded, its
layers and parameter count. Exits non-zero when any artifact fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			deps, err := loadDeps(ctx, flags)
			if err != nil {
				return err
			}

			// Failures are reported through Status.
			_ = deps.Registry.Preload(ctx)
			statuses := deps.Registry.Status()

			if flags.jsonOut {
				if err := printJSON(cmd.OutOrStdout(), statuses); err != nil {
					return err
				}
			} else if err := printModels(cmd, statuses); err != nil {
				return err
			}

			failed := 0
			for _, s := range statuses {
				if !s.Loaded {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d models failed to load", failed, len(statuses))
			}
			return nil
		},
	}
}

func printModels(cmd *cobra.Command, statuses []model.Status) error {
	rows := make([][]string, 0, len(statuses))
	for _, s := range statuses {
		loaded, layers, params := "no", "-", "-"
		if s.Loaded {
			loaded = "yes"
		}
		if s.Description != nil {
			layers = strings.Join(s.Description.Layers, " > ")
			params = strconv.Itoa(s.Description.Params)
		}
		detail := layers
		if s.Error != "" {
			detail = s.Error
		}
		rows = append(rows, []string{string(s.Variant), loaded, s.Path, params, detail})
	}
	return table(cmd.OutOrStdout(), []string{"MODEL", "LOADED", "PATH", "PARAMS", "LAYERS"}, rows)
}

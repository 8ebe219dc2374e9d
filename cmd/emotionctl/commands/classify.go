package commands

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/maauso/voice-emotion-api/internal/model"
	"github.com/maauso/voice-emotion-api/internal/result"
	"github.com/maauso/voice-emotion-api/internal/session"
)

// classifyResult is one model's answer, or its failure.
type classifyResult struct {
	Model  string          `json:"model"`
	Result *result.Payload `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
	Stage  string          `json:"stage,omitempty"`
}

func newClassifyCmd(flags *globalFlags) *cobra.Command {
	var modelName string

	cmd := &cobra.Command{
		Use:   "classify <file>",
		Short: "Predict the emotion of an audio file",
		Long: `Decode an audio file and classify it with one or both models.

With --model all the clip is decoded once and both models run against it.
A model that fails to load or predict is reported without stopping the other.

Examples:
  emotionctl classify speech.wav
  emotionctl classify speech.mp3 --model mlp --json
  emotionctl classify speech.flac --model all`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			variants, err := parseVariants(modelName)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			deps, err := loadDeps(ctx, flags)
			if err != nil {
				return err
			}

			data, err := readAudio(args[0])
			if err != nil {
				return err
			}
			clip, err := deps.Loader.LoadNamed(ctx, filepath.Base(args[0]), data)
			if err != nil {
				return fmt.Errorf("decode %s: %w", args[0], err)
			}

			results := make([]classifyResult, 0, len(variants))
			failed := 0
			for _, v := range variants {
				res := classifyResult{Model: string(v)}
				out, err := deps.Service.ClassifyClip(ctx, clip, v)
				if err != nil {
					failed++
					res.Error = err.Error()
					var se *session.StageError
					if errors.As(err, &se) {
						res.Stage = string(se.Stage)
					}
				} else {
					res.Result = &out.Payload
				}
				results = append(results, res)
			}

			if err := printClassify(cmd, flags.jsonOut, results); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d models failed", failed, len(variants))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&modelName, "model", "m", "cnn", "model to run: cnn, mlp or all")
	return cmd
}

func parseVariants(name string) ([]model.Variant, error) {
	if strings.EqualFold(strings.TrimSpace(name), "all") {
		return model.Variants(), nil
	}
	v, err := model.ParseVariant(name)
	if err != nil {
		return nil, err
	}
	return []model.Variant{v}, nil
}

func printClassify(cmd *cobra.Command, jsonOut bool, results []classifyResult) error {
	w := cmd.OutOrStdout()
	if jsonOut {
		return printJSON(w, results)
	}

	rows := make([][]string, 0, len(results))
	for _, r := range results {
		if r.Result == nil {
			rows = append(rows, []string{r.Model, "-", "-", "-", "failed at " + r.Stage + ": " + r.Error})
			continue
		}
		p := r.Result
		rows = append(rows, []string{
			r.Model,
			p.DisplayLabel,
			p.ConfidenceText,
			p.DurationText,
			fmt.Sprintf("%d Hz", p.SampleRate),
		})
	}
	return table(w, []string{"MODEL", "EMOTION", "CONFIDENCE", "DURATION", "SAMPLE RATE"}, rows)
}

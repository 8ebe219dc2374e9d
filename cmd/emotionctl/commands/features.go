package commands

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/maauso/voice-emotion-api/internal/feature"
)

type featuresOutput struct {
	File         string      `json:"file"`
	SampleRate   int         `json:"sample_rate"`
	Duration     float64     `json:"duration_seconds"`
	Coefficients []float64   `json:"coefficients,omitempty"`
	Frames       [][]float64 `json:"frames,omitempty"`
}

func newFeaturesCmd(flags *globalFlags) *cobra.Command {
	var perFrame bool

	cmd := &cobra.Command{
		Use:   "features <file>",
		Short: "Print the MFCC feature vector of an audio file",
		Long: `Decode an audio file and print its 40 MFCC coefficients averaged over
time, the vector both models receive. With --frames the per-frame
coefficients are printed instead.

Examples:
  emotionctl features speech.wav
  emotionctl features speech.ogg --frames --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			out := featuresOutput{
				File:       clip.Name(),
				SampleRate: clip.SampleRate(),
				Duration:   clip.Duration(),
			}
			if perFrame {
				frames, err := deps.Extractor.Frames(clip)
				if err != nil {
					return err
				}
				for _, f := range frames {
					out.Frames = append(out.Frames, f.Slice())
				}
			} else {
				vec, err := deps.Extractor.Extract(clip)
				if err != nil {
					return err
				}
				out.Coefficients = vec.Slice()
			}

			if flags.jsonOut {
				return printJSON(cmd.OutOrStdout(), out)
			}
			return printFeatures(cmd, out)
		},
	}

	cmd.Flags().BoolVar(&perFrame, "frames", false, "print per-frame coefficients")
	return cmd
}

func printFeatures(cmd *cobra.Command, out featuresOutput) error {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s: %d Hz, %.2f seconds\n", out.File, out.SampleRate, out.Duration)

	if out.Frames == nil {
		rows := make([][]string, len(out.Coefficients))
		for i, c := range out.Coefficients {
			rows[i] = []string{strconv.Itoa(i), strconv.FormatFloat(c, 'f', 4, 64)}
		}
		return table(w, []string{"COEF", "VALUE"}, rows)
	}

	header := make([]string, 0, feature.Coefficients+1)
	header = append(header, "FRAME")
	for i := 0; i < feature.Coefficients; i++ {
		header = append(header, "c"+strconv.Itoa(i))
	}
	rows := make([][]string, len(out.Frames))
	for i, f := range out.Frames {
		row := make([]string, 0, len(f)+1)
		row = append(row, strconv.Itoa(i))
		for _, c := range f {
			row = append(row, strconv.FormatFloat(c, 'f', 2, 64))
		}
		rows[i] = row
	}
	return table(w, header, rows)
}

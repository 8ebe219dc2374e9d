// Package main provides the emotionctl CLI.
//
// Usage:
//
//	emotionctl classify <file> [--model cnn|mlp|all] [--json]
//	emotionctl features <file> [--frames] [--json]
//	emotionctl models [--json]
//
// Model artifacts and decoding options are read from the same environment
// variables as the server (CNN_MODEL_PATH, MLP_MODEL_PATH, MODEL_S3_BUCKET,
// FFMPEG_FALLBACK, ...). The --cnn-model and --mlp-model flags override them.
package main

import (
	"fmt"
	"os"

	"github.com/maauso/voice-emotion-api/cmd/emotionctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

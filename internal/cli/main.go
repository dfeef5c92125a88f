package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func Main() {
	_ = godotenv.Load() // best-effort: load .env if present

	root := &cobra.Command{
		Use:          "clipforge <video-key>",
		Short:        "Split a stored video into tagged, quality-rated clips",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args[0])
		},
	}

	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)
	root.SilenceErrors = true

	root.Flags().String("source-id", "", "Source video id (default: derived from the key)")
	root.Flags().String("webhook", "", "Completion webhook URL")
	root.Flags().String("language", "", "Transcription language hint")
	root.Flags().Float64("min", 3.0, "Minimum clip duration in seconds")
	root.Flags().Float64("max", 20.0, "Maximum clip duration in seconds")
	root.Flags().Float64("min-scene", 1.5, "Minimum scene length in seconds")
	root.Flags().String("out", "", "Write the result JSON to this file instead of stdout")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

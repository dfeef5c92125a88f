package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/clipforge/clipforge/internal/logger"
	"github.com/clipforge/clipforge/internal/pipeline"
)

func run(cmd *cobra.Command, videoKey string) error {
	sourceID, _ := cmd.Flags().GetString("source-id")
	webhookURL, _ := cmd.Flags().GetString("webhook")
	language, _ := cmd.Flags().GetString("language")
	minDur, _ := cmd.Flags().GetFloat64("min")
	maxDur, _ := cmd.Flags().GetFloat64("max")
	minScene, _ := cmd.Flags().GetFloat64("min-scene")
	outPath, _ := cmd.Flags().GetString("out")

	if sourceID == "" {
		sourceID = strings.TrimSuffix(path.Base(videoKey), path.Ext(videoKey))
	}

	cfg, err := pipeline.ConfigFromEnv()
	if err != nil {
		return err
	}
	cfg.SourceID = sourceID
	cfg.VideoKey = videoKey
	cfg.WebhookURL = webhookURL
	cfg.Language = language
	cfg.MinClipDuration = minDur
	cfg.MaxClipDuration = maxDur
	cfg.MinSceneLength = minScene

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Hour)
	defer cancel()

	log := logger.New().WithField("component", "cli")
	result, err := pipeline.Run(ctx, cfg, log)
	if err != nil {
		return err
	}

	b, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if outPath != "" {
		return os.WriteFile(outPath, b, 0o644)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return nil
}

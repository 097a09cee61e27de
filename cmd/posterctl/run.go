package main

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"posterd/internal/bootstrap"
	"posterd/internal/domain"
	"posterd/internal/storage"
)

var runOpts struct {
	image     string
	prompt    string
	batch     int
	middle    bool
	noOptim   bool
	seed      int64
	width     int
	height    int
	outputDir string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one image2poster task locally",
	Long: `Run the full image2poster pipeline for a local product image and print the result.

Images are written under --out; the printed result lists their paths.`,
	RunE: runPoster,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runOpts.image, "image", "", "Path to the product image")
	f.StringVar(&runOpts.prompt, "prompt", "", "Product description")
	f.IntVar(&runOpts.batch, "batch", 1, "Number of posters to render")
	f.BoolVar(&runOpts.middle, "middle", false, "Also save intermediate stages")
	f.BoolVar(&runOpts.noOptim, "no-optimize", false, "Use the description as the image prompt verbatim")
	f.Int64Var(&runOpts.seed, "seed", 0, "Noise seed (random when 0)")
	f.IntVar(&runOpts.width, "width", 0, "Output width (config default when 0)")
	f.IntVar(&runOpts.height, "height", 0, "Output height (config default when 0)")
	f.StringVar(&runOpts.outputDir, "out", ".", "Directory receiving the output folder")
	_ = runCmd.MarkFlagRequired("image")
	_ = runCmd.MarkFlagRequired("prompt")
}

func runPoster(cmd *cobra.Command, _ []string) error {
	ctx, cancel, cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer cancel()

	store, err := storage.NewFileStore(runOpts.outputDir)
	if err != nil {
		return err
	}
	var total uint64
	pipeline, err := bootstrap.NewPipeline(ctx, cfg, bootstrap.Deps{
		Store: store,
		OnAsset: func(_ context.Context, asset domain.Asset) error {
			total += uint64(asset.Bytes)
			return nil
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}

	image, err := filepath.Abs(runOpts.image)
	if err != nil {
		return err
	}
	req := domain.PosterRequest{
		ImagePath:        image,
		InputPrompt:      runOpts.prompt,
		BatchSize:        &runOpts.batch,
		ShowMiddleResult: runOpts.middle,
	}
	if runOpts.noOptim {
		off := false
		req.PromptOptimizer = &off
	}
	if runOpts.seed != 0 {
		req.Seed = &runOpts.seed
	}
	if runOpts.width > 0 {
		req.Width = &runOpts.width
	}
	if runOpts.height > 0 {
		req.Height = &runOpts.height
	}

	result := pipeline.Processor.Process(ctx, uuid.NewString(), req)
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	if !result.Status {
		return fmt.Errorf("task failed: %s", result.Message)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s under %s\n", humanize.IBytes(total), store.BasePath())
	return nil
}

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"posterd/internal/bootstrap"
	"posterd/internal/workflow"
)

var submitOut string

// submitCmd sends a raw graph and saves whatever images the engine streams back.
var submitCmd = &cobra.Command{
	Use:   "submit <graph.json>",
	Short: "Submit a raw workflow graph and save its streamed images",
	Args:  cobra.ExactArgs(1),
	RunE:  runSubmit,
}

var engineCmd = &cobra.Command{
	Use:   "engine",
	Short: "Inspect the execution engine",
}

var engineQueueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Show running and pending jobs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel, cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		eng, err := bootstrap.NewEngineClient(cfg, logger)
		if err != nil {
			return err
		}
		q, err := eng.QueueStatus(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "running: %d\npending: %d\n", len(q.Running), len(q.Pending))
		return nil
	},
}

var engineHistoryCmd = &cobra.Command{
	Use:   "history <job_id>",
	Short: "Print the engine's execution record for a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel, cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		eng, err := bootstrap.NewEngineClient(cfg, logger)
		if err != nil {
			return err
		}
		record, err := eng.History(ctx, args[0])
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(record, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func init() {
	submitCmd.Flags().StringVar(&submitOut, "out", ".", "Directory for the streamed images")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	ctx, cancel, cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer cancel()

	tpl, err := workflow.LoadTemplate(args[0])
	if err != nil {
		return err
	}
	graph := tpl.Clone()
	wanted := workflow.StreamOutputs(graph)
	if len(wanted) == 0 {
		return fmt.Errorf("graph %s has no image output nodes", args[0])
	}

	eng, err := bootstrap.NewEngineClient(cfg, logger)
	if err != nil {
		return err
	}
	handle, err := eng.Submit(ctx, graph)
	if err != nil {
		return err
	}
	if !handle.OK() {
		return fmt.Errorf("engine rejected graph: %s", handle.Message)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "job %s queued\n", handle.JobID)

	outputs, err := eng.Collect(ctx, handle.JobID, wanted)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(submitOut, 0o755); err != nil {
		return err
	}
	for _, id := range wanted.NodeIDs() {
		for i, data := range outputs[id] {
			name := filepath.Join(submitOut, fmt.Sprintf("%s-%s_%d.png", handle.JobID, wanted[id], i+1))
			if err := os.WriteFile(name, data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", name, humanize.IBytes(uint64(len(data))))
		}
	}
	return nil
}

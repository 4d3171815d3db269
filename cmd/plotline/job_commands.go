package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"plotline/internal/api"
)

// errJobNotSucceeded is returned by --wait when the job ends failed or canceled.
var errJobNotSucceeded = errors.New("job did not succeed")

func newJobCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newStartCommand(ctx),
		newStatusCommand(ctx),
		newCancelCommand(ctx),
		newJobsCommand(ctx),
		newItemsCommand(ctx),
		newRetryCommand(ctx),
		newDeleteCommand(ctx),
	}
}

func newStartCommand(ctx *commandContext) *cobra.Command {
	var (
		projectID      string
		file           string
		preset         string
		language       string
		stages         string
		imagesPerScene int
		wait           bool
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start an illustration job for a project",
		Long: `Start an illustration job for a project.

The manuscript is read from --file ("-" reads stdin). Without --stages the
full pipeline runs: characters, chapters, scenes, linking, prompts, images.
--stages runs a custom, ordered subset such as "prompts,images".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readManuscript(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			req := api.StartJobRequest{
				ManuscriptText: text,
				StylePreset:    preset,
				Language:       language,
				Options:        api.StartJobOptions{ImagesPerScene: imagesPerScene},
			}
			if list := splitList(stages); len(list) > 0 {
				req.Type = "custom"
				req.Stages = list
			}
			return ctx.withClient(func(client *api.Client) error {
				job, err := client.StartJob(cmd.Context(), projectID, req)
				if err != nil {
					return err
				}
				return reportJob(cmd, ctx, client, job, wait)
			})
		},
	}

	cmd.Flags().StringVarP(&projectID, "project", "p", "", "Project identifier")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Manuscript text file (- for stdin)")
	cmd.Flags().StringVar(&preset, "preset", "", "Image style preset (defaults to images.default_style_preset)")
	cmd.Flags().StringVar(&language, "language", "", "Manuscript language, e.g. en or French")
	cmd.Flags().StringVar(&stages, "stages", "", "Comma-separated stage subset for a custom job")
	cmd.Flags().IntVar(&imagesPerScene, "images-per-scene", 0, "Images to generate per scene")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Follow the job until it finishes")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show a job's status and progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				job, err := client.GetJob(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return reportJob(cmd, ctx, client, job, wait)
			})
		},
	}
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Follow the job until it finishes")
	return cmd
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Request cancellation of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				if err := client.CancelJob(cmd.Context(), args[0]); err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, api.CancelResponse{Acknowledged: true})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cancellation requested for job %s\n", args[0])
				return nil
			})
		},
	}
}

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var projectID string
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List a project's jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				list, err := client.ListJobs(cmd.Context(), projectID)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, api.JobListResponse{Jobs: list})
				}
				if len(list) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "No jobs for project %s\n", projectID)
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderJobTable(list, colorEnabled(cmd)))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&projectID, "project", "p", "", "Project identifier")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func newItemsCommand(ctx *commandContext) *cobra.Command {
	var stage string
	var failedOnly bool
	cmd := &cobra.Command{
		Use:   "items <job-id>",
		Short: "List the work items of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				items, err := client.Items(cmd.Context(), args[0], stage)
				if err != nil {
					return err
				}
				if failedOnly {
					filtered := items[:0]
					for _, item := range items {
						if item.Status == "failed" {
							filtered = append(filtered, item)
						}
					}
					items = filtered
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, api.ItemListResponse{Items: items})
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No items")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderItemTable(items, colorEnabled(cmd)))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&stage, "stage", "s", "", "Only show items of this stage")
	cmd.Flags().BoolVar(&failedOnly, "failed", false, "Only show failed items")
	return cmd
}

func newRetryCommand(ctx *commandContext) *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "retry <job-id>",
		Short: "Start a new job with the inputs of a finished one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				job, err := client.RetryJob(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return reportJob(cmd, ctx, client, job, wait)
			})
		},
	}
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Follow the new job until it finishes")
	return cmd
}

func newDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <job-id>",
		Short: "Delete a finished job and its item history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				if err := client.DeleteJob(cmd.Context(), args[0]); err != nil {
					return err
				}
				if !ctx.jsonOutput() {
					fmt.Fprintf(cmd.OutOrStdout(), "Deleted job %s\n", args[0])
				}
				return nil
			})
		},
	}
}

// reportJob prints job, optionally following it to a terminal state first.
func reportJob(cmd *cobra.Command, ctx *commandContext, client *api.Client, job api.Job, wait bool) error {
	out := cmd.OutOrStdout()
	color := colorEnabled(cmd)
	if wait && !job.Terminal() {
		var err error
		job, err = followJob(cmd.Context(), client, job, func(update api.Job) {
			if !ctx.jsonOutput() {
				fmt.Fprintf(out, "%-10s %-10s %3d%%\n", update.Status, dash(update.CurrentStage), update.Progress)
			}
		})
		if err != nil {
			return err
		}
	}
	if ctx.jsonOutput() {
		if err := writeJSON(cmd, api.JobResponse{Job: job}); err != nil {
			return err
		}
	} else {
		renderJob(out, job, color)
	}
	if wait && job.Status != "succeeded" {
		return fmt.Errorf("%w: %s", errJobNotSucceeded, job.Status)
	}
	return nil
}

// followJob prints one line per visible change until the job is terminal.
func followJob(ctx context.Context, client *api.Client, job api.Job, print func(api.Job)) (api.Job, error) {
	lastStage, lastProgress, lastStatus := "", -1, ""
	return client.Watch(ctx, job.ID, func(update api.Job) {
		if update.CurrentStage == lastStage && update.Progress == lastProgress && update.Status == lastStatus {
			return
		}
		lastStage, lastProgress, lastStatus = update.CurrentStage, update.Progress, update.Status
		print(update)
	})
}

func readManuscript(stdin io.Reader, path string) (string, error) {
	path = strings.TrimSpace(path)
	var (
		data []byte
		err  error
	)
	switch path {
	case "":
		return "", errors.New("--file is required")
	case "-":
		data, err = io.ReadAll(stdin)
	default:
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read manuscript: %w", err)
	}
	return string(data), nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

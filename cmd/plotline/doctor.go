package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"plotline/internal/api"
	"plotline/internal/config"
	"plotline/internal/notifications"
	"plotline/internal/preflight"
	"plotline/internal/services/imagegen"
	"plotline/internal/services/llm"
	"plotline/internal/services/textanalysis"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const statusLabelWidth = 26

var errDoctorFailed = errors.New("one or more checks failed")

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var offline, notify bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check directories, credentials, providers and the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg)
			if !offline {
				results = append(results, providerChecks(cmd.Context(), cfg)...)
			}
			results = append(results, daemonCheck(cmd.Context(), ctx))
			if notify {
				results = append(results, notificationCheck(cmd.Context(), cfg))
			}

			if ctx.jsonOutput() {
				if err := writeJSON(cmd, results); err != nil {
					return err
				}
			} else {
				color := colorEnabled(cmd)
				out := cmd.OutOrStdout()
				for _, r := range results {
					fmt.Fprintln(out, renderStatusLine(r.Name, resultKind(r), r.Detail, color))
				}
			}
			if len(preflight.Blocking(results)) > 0 {
				return errDoctorFailed
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "Skip provider health checks")
	cmd.Flags().BoolVar(&notify, "notify", false, "Send a test notification to the ntfy topic")
	return cmd
}

// providerChecks calls each configured provider once.
func providerChecks(ctx context.Context, cfg *config.Config) []preflight.Result {
	var out []preflight.Result
	completer := llm.NewClient(llm.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		Referer:        cfg.LLM.Referer,
		Title:          cfg.LLM.Title,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
	}, llm.WithRetryMaxAttempts(1))
	if analyzer := textanalysis.New(completer); analyzer.Configured() {
		out = append(out, advisory(preflight.CheckService(ctx, "Text analysis API", analyzer)))
	}
	images := imagegen.NewClient(imagegen.Config{
		APIKey:  cfg.Images.APIKey,
		BaseURL: cfg.Images.BaseURL,
		Model:   cfg.Images.Model,
		Timeout: time.Duration(cfg.Images.TimeoutSeconds) * time.Second,
	})
	if images.Configured() {
		out = append(out, advisory(preflight.CheckService(ctx, "Image generation API", images)))
	}
	return out
}

func daemonCheck(ctx context.Context, cmdCtx *commandContext) preflight.Result {
	name := "Daemon"
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	status, err := cmdCtx.client().Status(checkCtx)
	switch {
	case errors.Is(err, api.ErrDaemonUnavailable):
		return preflight.Result{Name: name, Advisory: true, Detail: fmt.Sprintf("not running at %s", cmdCtx.apiBaseURL())}
	case err != nil:
		return preflight.Result{Name: name, Advisory: true, Detail: err.Error()}
	}
	return preflight.Result{
		Name:     name,
		Passed:   true,
		Advisory: true,
		Detail:   fmt.Sprintf("pid %d, %d active, %d queued", status.PID, status.Workflow.ActiveJobs, status.Workflow.QueuedJobs),
	}
}

func notificationCheck(ctx context.Context, cfg *config.Config) preflight.Result {
	name := "Notifications"
	if cfg.Notifications.NtfyTopic == "" {
		return preflight.Result{Name: name, Advisory: true, Detail: "disabled (set notifications.ntfy_topic)"}
	}
	if err := notifications.NewService(cfg).TestNotification(ctx); err != nil {
		return preflight.Result{Name: name, Advisory: true, Detail: err.Error()}
	}
	return preflight.Result{Name: name, Passed: true, Advisory: true, Detail: "test notification sent"}
}

// advisory keeps provider outages from failing doctor; the daemon still starts
// without them.
func advisory(r preflight.Result) preflight.Result {
	r.Advisory = true
	return r
}

func resultKind(r preflight.Result) statusKind {
	switch {
	case r.Passed:
		return statusOK
	case r.Advisory:
		return statusWarn
	default:
		return statusError
	}
}

func renderStatusLine(label string, kind statusKind, message string, color bool) string {
	statusText := fmt.Sprintf("[%s]", statusKindLabel(kind))
	if message != "" {
		statusText += " " + message
	}
	base := fmt.Sprintf("  %-*s %s", statusLabelWidth, label+":", statusText)
	if color {
		return statusKindColors(kind).Sprint(base)
	}
	return base
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColors(kind statusKind) text.Colors {
	switch kind {
	case statusOK:
		return text.Colors{text.FgGreen}
	case statusWarn:
		return text.Colors{text.FgYellow}
	case statusError:
		return text.Colors{text.FgRed}
	default:
		return text.Colors{text.FgBlue}
	}
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rahul/conduit/internal/orchestrator"
)

// planFile is the on-disk form of a plan for `conduit run`.
type planFile struct {
	SessionID   string                     `json:"session_id"`
	Steps       []*orchestrator.ActionStep `json:"steps"`
	Resolutions map[string]json.RawMessage `json:"resolutions"`
}

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run <plan.json>",
		Short: "Execute a plan file and print the execution result as JSON",
		Long: `run executes the steps of a plan file against the configured actions.
Chat messages produced by the plan are printed to stderr instead of being sent.

Plan file format:
  {"session_id": "tg:42",
   "steps": [{"id": "a1", "action": "create_task", "params": {"description": "Call Marc"}}],
   "resolutions": {"contact:Marc": {"name": "Marc", "email": "marc@example.com"}}}`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			sessionID, steps, resolutions, err := readPlan(f)
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cfg, cmd.ErrOrStderr(), printMessenger{w: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			result, err := orchestrator.ExecutePlan(ctx, a.actions, sessionID, steps, resolutions, a.executorOptions()...)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
}

// readPlan decodes a plan file. Resolution keys are "kind:mention".
func readPlan(r io.Reader) (string, []*orchestrator.ActionStep, orchestrator.Resolutions, error) {
	var pf planFile
	if err := json.NewDecoder(r).Decode(&pf); err != nil {
		return "", nil, nil, fmt.Errorf("decode plan: %w", err)
	}

	steps := make([]*orchestrator.ActionStep, 0, len(pf.Steps))
	for _, s := range pf.Steps {
		if s == nil {
			continue
		}
		var opts []orchestrator.StepOption
		if s.ID != "" {
			opts = append(opts, orchestrator.WithID(s.ID))
		}
		opts = append(opts, orchestrator.WithDependsOn(s.DependsOn...))
		steps = append(steps, orchestrator.NewStep(s.Action, s.Params, opts...))
	}

	resolutions := orchestrator.Resolutions{}
	for key, raw := range pf.Resolutions {
		kind, mention, ok := strings.Cut(key, ":")
		if !ok || kind == "" || mention == "" {
			return "", nil, nil, fmt.Errorf("resolution key %q is not kind:mention", key)
		}
		var record any
		if err := json.Unmarshal(raw, &record); err != nil {
			return "", nil, nil, fmt.Errorf("resolution %s: %w", key, err)
		}
		resolutions.Add(kind, mention, record)
	}
	return pf.SessionID, steps, resolutions, nil
}

// printMessenger stands in for the gateways when running offline.
type printMessenger struct {
	w io.Writer
}

func (p printMessenger) Send(_ context.Context, chatID, text string) error {
	_, err := fmt.Fprintf(p.w, "[%s] %s\n", chatID, text)
	return err
}

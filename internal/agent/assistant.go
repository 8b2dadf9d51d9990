package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/rahul/conduit/internal/observability"
	"github.com/rahul/conduit/internal/orchestrator"
	"github.com/rahul/conduit/internal/resolver"
	"github.com/rahul/conduit/internal/store"
)

// Brain answers one inbound chat message.
type Brain interface {
	Think(ctx context.Context, chatID string, input string) (string, error)
}

type HistoryStore interface {
	AddMessage(ctx context.Context, chatID, role, content string) error
	GetHistory(ctx context.Context, chatID string, limit int) ([]llms.MessageContent, error)
}

// Outcome statuses.
const (
	OutcomeReplied     = "replied"
	OutcomeMissingInfo = "missing_info"
	OutcomeExecuted    = "executed"
	OutcomeInvalidPlan = "invalid_plan"
)

// Outcome describes how one message was handled.
type Outcome struct {
	Status     string
	Text       string
	Analysis   *Analysis
	Unresolved []string
	Result     *orchestrator.ExecutionResult
	// Reason is set when no plan ran: resolver.ErrUnresolved or orchestrator.ErrInvalidPlan.
	Reason error
}

const historyWindow = 20

// Assistant classifies each message, resolves the entities it mentions and
// runs the resulting plan on the executor.
type Assistant struct {
	Analyzer  *IntentAnalyzer
	Responder *Responder
	Resolver  *resolver.Resolver
	Registry  *orchestrator.Registry
	History   HistoryStore
	Logger    *observability.Logger
	Options   []orchestrator.Option
}

func (a *Assistant) Think(ctx context.Context, chatID string, input string) (string, error) {
	out, err := a.Handle(ctx, chatID, input)
	if err != nil {
		return "", err
	}
	return out.Text, nil
}

// Handle runs the full pipeline for one message. Errors are reserved for
// collaborator failures (history, model, resolver); a plan that cannot run
// or needs more information is reported through the Outcome.
func (a *Assistant) Handle(ctx context.Context, chatID string, input string) (*Outcome, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return &Outcome{Status: OutcomeReplied}, nil
	}

	observability.SetStatus(observability.RolePlanning, input)
	defer observability.SetStatus(observability.RoleIdle, "")

	history, err := a.History.GetHistory(ctx, chatID, historyWindow)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if err := a.History.AddMessage(ctx, chatID, store.RoleHuman, input); err != nil {
		return nil, fmt.Errorf("save message: %w", err)
	}

	analysis, err := a.Analyzer.Analyze(ctx, chatID, history, input)
	if err != nil {
		return nil, err
	}
	a.Logger.LogIntent(chatID, string(analysis.PrimaryIntent), analysis.Confidence, len(analysis.ActionSequence))

	if !analysis.Actionable() {
		text, err := a.Responder.Reply(ctx, history, input)
		if err != nil {
			return nil, err
		}
		return a.finish(ctx, chatID, &Outcome{Status: OutcomeReplied, Text: text, Analysis: analysis})
	}

	steps, mentions := BuildSteps(analysis)
	resolutions, unresolved, err := a.Resolver.Resolve(ctx, mentions)
	if err != nil {
		return nil, err
	}
	a.Logger.LogResolution(chatID, resolutions.Keys(), unresolved)

	if len(unresolved) > 0 || len(analysis.MissingDetails()) > 0 {
		prompt := resolver.Missing(unresolved, analysis.MissingDetails()...)
		out := &Outcome{
			Status:     OutcomeMissingInfo,
			Text:       prompt,
			Analysis:   analysis,
			Unresolved: unresolved,
		}
		if len(unresolved) > 0 {
			out.Reason = fmt.Errorf("%w: %s", resolver.ErrUnresolved, strings.Join(unresolved, ", "))
		}
		return a.finish(ctx, chatID, out)
	}

	observability.SetStatus(observability.RoleExecuting, string(analysis.PrimaryIntent))
	result, err := orchestrator.ExecutePlan(ctx, a.Registry, chatID, steps, resolutions, a.Options...)
	if errors.Is(err, orchestrator.ErrInvalidPlan) {
		log.Printf("rejected plan for chat %s: %v", chatID, err)
		return a.finish(ctx, chatID, &Outcome{
			Status:   OutcomeInvalidPlan,
			Text:     "I couldn't put together a workable plan for that. Could you rephrase the request?",
			Analysis: analysis,
			Reason:   err,
		})
	}
	if err != nil {
		return nil, err
	}

	out := &Outcome{Status: OutcomeExecuted, Analysis: analysis, Result: result}
	if !SpokeForItself(result) {
		out.Text = Summarize(result)
	}
	return a.finish(ctx, chatID, out)
}

func (a *Assistant) finish(ctx context.Context, chatID string, out *Outcome) (*Outcome, error) {
	if out.Text == "" {
		return out, nil
	}
	if err := a.History.AddMessage(ctx, chatID, store.RoleAI, out.Text); err != nil {
		return nil, fmt.Errorf("save reply: %w", err)
	}
	return out, nil
}

const defaultPersona = `You are Conduit, a concise and friendly business assistant working inside team chats.
You help with email, documents, tasks and quick research. Answer directly; do not invent facts.`

// Responder produces plain conversational replies when there is nothing to
// execute.
type Responder struct {
	Model   llms.Model
	Prompts *PromptManager
}

func NewResponder(model llms.Model, prompts *PromptManager) *Responder {
	return &Responder{Model: model, Prompts: prompts}
}

func (r *Responder) Reply(ctx context.Context, history []llms.MessageContent, input string) (string, error) {
	system := defaultPersona
	if r.Prompts != nil {
		if persona, err := r.Prompts.GetWorkerPrompt(); err == nil {
			system = persona
		}
	}

	msgs := []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeSystem, system)}
	msgs = append(msgs, history...)
	msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeHuman, input))

	resp, err := r.Model.GenerateContent(ctx, msgs, llms.WithTemperature(0.7))
	if err != nil {
		return "", fmt.Errorf("generate reply: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("generate reply: empty response")
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}

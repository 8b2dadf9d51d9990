package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/rahul/conduit/internal/observability"
)

// Intent is the classifier's label for what the user wants.
type Intent string

const (
	IntentReply             Intent = "reply"
	IntentSendEmail         Intent = "send_email"
	IntentScheduleMeeting   Intent = "schedule_meeting"
	IntentCancelMeeting     Intent = "cancel_meeting"
	IntentGenerateDocument  Intent = "generate_document"
	IntentShareDocument     Intent = "share_document"
	IntentCreateTask        Intent = "create_task"
	IntentUpdateTask        Intent = "update_task"
	IntentGenerateReport    Intent = "generate_report"
	IntentMeetingSummary    Intent = "meeting_summary"
	IntentProactiveFollowup Intent = "proactive_followup"
	IntentAlertHuman        Intent = "alert_human"
	IntentSearchInfo        Intent = "search_info"
	IntentUnknown           Intent = "unknown"
)

var knownIntents = map[Intent]bool{
	IntentReply: true, IntentSendEmail: true, IntentScheduleMeeting: true, IntentCancelMeeting: true,
	IntentGenerateDocument: true, IntentShareDocument: true, IntentCreateTask: true, IntentUpdateTask: true,
	IntentGenerateReport: true, IntentMeetingSummary: true, IntentProactiveFollowup: true,
	IntentAlertHuman: true, IntentSearchInfo: true, IntentUnknown: true,
}

var ErrMalformedAnalysis = errors.New("malformed intent analysis")

// PlannedAction is one entry of the classifier's action sequence.
type PlannedAction struct {
	ID                 string         `json:"id,omitempty"`
	Action             string         `json:"action"`
	Params             map[string]any `json:"params,omitempty"`
	RequiresResolution []string       `json:"requires_resolution,omitempty"`
	DependsOn          []string       `json:"depends_on,omitempty"`
}

// Analysis is the structured output of intent classification.
type Analysis struct {
	PrimaryIntent     Intent              `json:"primary_intent"`
	ActionSequence    []PlannedAction     `json:"action_sequence"`
	Urgency           string              `json:"urgency"`
	Tone              string              `json:"tone"`
	MissingInfo       map[string]any      `json:"missing_info,omitempty"`
	EntitiesMentioned map[string][]string `json:"entities_mentioned,omitempty"`
	Confidence        float64             `json:"confidence"`
}

// MissingDetails returns the classifier's missing-information reasons,
// ordered by field name.
func (a *Analysis) MissingDetails() []string {
	keys := make([]string, 0, len(a.MissingInfo))
	for k := range a.MissingInfo {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []string
	for _, k := range keys {
		v := a.MissingInfo[k]
		if v == nil {
			continue
		}
		reason := strings.TrimSpace(fmt.Sprint(v))
		if reason == "" {
			continue
		}
		out = append(out, reason)
	}
	return out
}

// Actionable reports whether the analysis carries a plan worth executing.
func (a *Analysis) Actionable() bool {
	return a.PrimaryIntent != IntentUnknown && len(a.ActionSequence) > 0
}

func (a *Analysis) normalize() {
	a.PrimaryIntent = Intent(strings.ToLower(strings.TrimSpace(string(a.PrimaryIntent))))
	if !knownIntents[a.PrimaryIntent] {
		a.PrimaryIntent = IntentUnknown
	}
	if a.Urgency == "" {
		a.Urgency = "medium"
	}
	if a.Tone == "" {
		a.Tone = "neutral"
	}
	if a.Confidence <= 0 || a.Confidence > 1 {
		a.Confidence = 0.5
	}
	kept := a.ActionSequence[:0]
	for _, pa := range a.ActionSequence {
		if strings.TrimSpace(pa.Action) != "" {
			kept = append(kept, pa)
		}
	}
	a.ActionSequence = kept
}

const analyzerPrompt = `You are the intent analyzer of a business assistant that lives in team chats.
Analyze the user's latest message and answer with a single JSON object:

- primary_intent: one of reply, send_email, schedule_meeting, cancel_meeting, generate_document,
  share_document, create_task, update_task, generate_report, meeting_summary, proactive_followup,
  alert_human, search_info, unknown
- action_sequence: the actions needed, in order. Each has:
  - id: short unique id (e.g. "a1")
  - action: one of the available actions below
  - params: parameters for the action
  - requires_resolution: entities the action needs, as "kind:mention" (kinds: contact, document, task)
  - depends_on: ids of earlier actions whose output this action uses
- urgency: low, medium, high or critical
- tone: neutral, positive, negative or urgent
- missing_info: object of field -> question for the user, or null
- entities_mentioned: object of kind -> mentions, e.g. {"contacts": ["Marc"], "documents": ["meeting summary"]}
- confidence: 0.0 to 1.0

Reference a resolved entity with "{{resolved:contact:Marc}}" and an earlier action's output with
"{{result:a1.field}}". Use the exact mention text in both places.

Example for "Send the meeting summary to Marc":
{"primary_intent":"send_email","action_sequence":[
 {"id":"a1","action":"send_email","params":{"to":"{{resolved:contact:Marc}}","subject":"Meeting summary","body":"{{resolved:document:meeting summary}}"},
  "requires_resolution":["contact:Marc","document:meeting summary"]}],
 "urgency":"medium","tone":"neutral","missing_info":null,
 "entities_mentioned":{"contacts":["Marc"],"documents":["meeting summary"]},"confidence":0.85}`

// IntentAnalyzer classifies a message into an Analysis with the language
// model in JSON mode.
type IntentAnalyzer struct {
	Model   llms.Model
	Prompts *PromptManager
	// Catalog lists the actions the planner may use, one per line.
	Catalog string
	Logger  *observability.Logger
}

func NewIntentAnalyzer(model llms.Model, prompts *PromptManager, catalog string, logger *observability.Logger) *IntentAnalyzer {
	return &IntentAnalyzer{Model: model, Prompts: prompts, Catalog: catalog, Logger: logger}
}

func (a *IntentAnalyzer) systemPrompt() string {
	prompt := analyzerPrompt
	if a.Prompts != nil {
		if custom, err := a.Prompts.GetPlannerPrompt(); err == nil && strings.TrimSpace(custom) != "" {
			prompt = custom
		}
	}
	if a.Catalog != "" {
		prompt += "\n\n## Available actions\n" + a.Catalog
	}
	return prompt
}

// Analyze classifies input in the context of the chat history.
func (a *IntentAnalyzer) Analyze(ctx context.Context, chatID string, history []llms.MessageContent, input string) (*Analysis, error) {
	msgs := []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeSystem, a.systemPrompt())}
	msgs = append(msgs, history...)
	msgs = append(msgs,
		llms.TextParts(llms.ChatMessageTypeHuman, input),
		llms.TextParts(llms.ChatMessageTypeSystem, "Analyze the intent and return the JSON response."),
	)

	resp, err := a.Model.GenerateContent(ctx, msgs, llms.WithJSONMode(), llms.WithTemperature(0.3))
	if err != nil {
		return nil, fmt.Errorf("classify intent: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrMalformedAnalysis)
	}
	raw := resp.Choices[0].Content
	a.Logger.LogLLM(chatID, input, raw)
	logUsage(a.Logger, chatID, resp.Choices[0])

	return ParseAnalysis(raw)
}

// ParseAnalysis decodes a classifier response, tolerating code fences and
// filling defaults for absent fields.
func ParseAnalysis(raw string) (*Analysis, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var analysis Analysis
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &analysis); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedAnalysis, err)
	}
	analysis.normalize()
	return &analysis, nil
}

// logUsage records token counts when the provider reports them.
func logUsage(logger *observability.Logger, chatID string, choice *llms.ContentChoice) {
	prompt, _ := choice.GenerationInfo["PromptTokens"].(int)
	completion, _ := choice.GenerationInfo["CompletionTokens"].(int)
	if prompt+completion == 0 {
		return
	}
	logger.LogCost(chatID, prompt, completion, "")
}

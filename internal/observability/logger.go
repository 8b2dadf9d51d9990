package observability

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypeIntent     EventType = "intent"
	EventTypeResolution EventType = "resolution"
	EventTypePlan       EventType = "plan"
	EventTypeStep       EventType = "step"
	EventTypePolicy     EventType = "policy_check"
	EventTypeCost       EventType = "cost"
	EventTypeHeartbeat  EventType = "heartbeat"
	EventTypeLLM        EventType = "llm"
)

// Event represents a structured log entry.
type Event struct {
	Type      EventType `json:"type"`
	ChatID    string    `json:"chat_id,omitempty"`
	PlanID    string    `json:"plan_id,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Logger emits structured events through zap. LLM exchanges are also
// appended to a size-capped jsonl file for offline inspection.
type Logger struct {
	zl         *zap.Logger
	llmLogPath string
	maxSize    int64
	fileMu     sync.Mutex
}

// NewLogger builds a JSON logger writing to w. An empty logDir disables the
// LLM transcript file.
func NewLogger(w io.Writer, level zapcore.Level, logDir string) *Logger {
	if w == nil {
		w = os.Stdout
	}
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.Lock(zapcore.AddSync(w)),
		level,
	)
	l := &Logger{
		zl:      zap.New(core),
		maxSize: 10 * 1024 * 1024, // 10MB
	}
	if logDir != "" {
		l.llmLogPath = filepath.Join(logDir, "llm.jsonl")
	}
	return l
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{zl: zap.NewNop()}
}

// Zap exposes the underlying zap logger for packages that log directly.
func (l *Logger) Zap() *zap.Logger {
	if l == nil || l.zl == nil {
		return zap.NewNop()
	}
	return l.zl
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	if l == nil || l.zl == nil {
		return nil
	}
	return l.zl.Sync()
}

// Log emits a structured event.
func (l *Logger) Log(evt Event) {
	if l == nil || l.zl == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	l.zl.Info(string(evt.Type),
		zap.String("chat_id", evt.ChatID),
		zap.String("plan_id", evt.PlanID),
		zap.Any("data", evt.Data),
		zap.Time("timestamp", evt.Timestamp),
	)

	if evt.Type == EventTypeLLM && l.llmLogPath != "" {
		data, err := json.Marshal(evt)
		if err != nil {
			l.zl.Warn("failed to marshal llm event", zap.Error(err))
			return
		}
		l.writeToFile(data)
	}
}

func (l *Logger) writeToFile(data []byte) {
	l.fileMu.Lock()
	defer l.fileMu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.llmLogPath), 0755); err != nil {
		log.Printf("failed to create log directory: %v", err)
		return
	}

	info, err := os.Stat(l.llmLogPath)
	if err == nil && info.Size() > l.maxSize {
		l.rotateLogs()
	}

	f, err := os.OpenFile(l.llmLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("failed to open log file: %v", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		log.Printf("failed to write to log file: %v", err)
	}
}

// keep one .old generation
func (l *Logger) rotateLogs() {
	oldPath := l.llmLogPath + ".old"
	_ = os.Remove(oldPath)
	_ = os.Rename(l.llmLogPath, oldPath)
}

func (l *Logger) LogIntent(chatID, intent string, confidence float64, actions int) {
	l.Log(Event{
		Type:   EventTypeIntent,
		ChatID: chatID,
		Data: map[string]any{
			"intent":     intent,
			"confidence": confidence,
			"actions":    actions,
		},
	})
}

func (l *Logger) LogResolution(chatID string, resolved, unresolved []string) {
	l.Log(Event{
		Type:   EventTypeResolution,
		ChatID: chatID,
		Data: map[string]any{
			"resolved":   resolved,
			"unresolved": unresolved,
		},
	})
}

// LogPlan records the aggregate outcome of one orchestration run.
func (l *Logger) LogPlan(chatID, planID string, total, completed, failed, skipped int, took time.Duration) {
	l.Log(Event{
		Type:   EventTypePlan,
		ChatID: chatID,
		PlanID: planID,
		Data: map[string]any{
			"total":       total,
			"completed":   completed,
			"failed":      failed,
			"skipped":     skipped,
			"duration_ms": took.Milliseconds(),
		},
	})
}

func (l *Logger) LogStep(chatID, planID, stepID, action, status string, took time.Duration, errMsg string) {
	data := map[string]any{
		"step_id":     stepID,
		"action":      action,
		"status":      status,
		"duration_ms": took.Milliseconds(),
	}
	if errMsg != "" {
		data["error"] = errMsg
	}
	l.Log(Event{
		Type:   EventTypeStep,
		ChatID: chatID,
		PlanID: planID,
		Data:   data,
	})
}

func (l *Logger) LogPolicy(chatID, action, effect, reason string) {
	l.Log(Event{
		Type:   EventTypePolicy,
		ChatID: chatID,
		Data: map[string]string{
			"action": action,
			"effect": effect,
			"reason": reason,
		},
	})
}

func (l *Logger) LogCost(chatID string, promptTokens, completionTokens int, model string) {
	l.Log(Event{
		Type:   EventTypeCost,
		ChatID: chatID,
		Data: map[string]any{
			"prompt_tokens":     promptTokens,
			"completion_tokens": completionTokens,
			"total_tokens":      promptTokens + completionTokens,
			"model":             model,
		},
	})
}

func (l *Logger) LogHeartbeat() {
	l.Log(Event{
		Type: EventTypeHeartbeat,
		Data: map[string]string{"status": "alive"},
	})
}

func (l *Logger) LogLLM(chatID string, prompt any, response string) {
	l.Log(Event{
		Type:   EventTypeLLM,
		ChatID: chatID,
		Data: map[string]any{
			"prompt":   prompt,
			"response": response,
		},
	})
}

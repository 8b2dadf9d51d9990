package agent

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const plannerFile = "planner.md"

// personaOrder fixes where the well-known persona files appear; any other
// markdown file follows in name order.
var personaOrder = map[string]int{
	"identity.md":     1,
	"soul.md":         2,
	"capabilities.md": 3,
	"directive.md":    4,
	"user.md":         5,
}

// PromptManager loads prompt overrides from a directory of markdown files.
// Every method returns an error when the directory holds nothing usable, so
// callers can fall back to the built-in prompts.
type PromptManager struct {
	Directory string
}

func NewPromptManager(dir string) *PromptManager {
	return &PromptManager{Directory: dir}
}

// GetWorkerPrompt concatenates the persona files used for plain replies.
func (pm *PromptManager) GetWorkerPrompt() (string, error) {
	entries, err := os.ReadDir(pm.Directory)
	if err != nil {
		return "", fmt.Errorf("read prompts directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		oi, okI := personaOrder[entries[i].Name()]
		oj, okJ := personaOrder[entries[j].Name()]
		switch {
		case okI && okJ:
			return oi < oj
		case okI:
			return true
		case okJ:
			return false
		}
		return entries[i].Name() < entries[j].Name()
	})

	var contents []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".md") || name == plannerFile {
			continue
		}
		path := filepath.Join(pm.Directory, name)
		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("skipping prompt file %s: %v", path, err)
			continue
		}
		if text := strings.TrimSpace(string(data)); text != "" {
			contents = append(contents, text)
		}
	}

	if len(contents) == 0 {
		return "", fmt.Errorf("no prompt files found in %s", pm.Directory)
	}
	return strings.Join(contents, "\n\n---\n\n"), nil
}

// GetPlannerPrompt returns the intent analyzer override, planner.md.
func (pm *PromptManager) GetPlannerPrompt() (string, error) {
	data, err := os.ReadFile(filepath.Join(pm.Directory, plannerFile))
	if err != nil {
		return "", fmt.Errorf("read planner prompt: %w", err)
	}
	return string(data), nil
}

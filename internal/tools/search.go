package tools

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/tools/duckduckgo"
)

type searcher interface {
	Call(ctx context.Context, input string) (string, error)
}

// SearchTool answers search_info with DuckDuckGo results.
type SearchTool struct {
	client searcher
}

func NewSearchTool() (*SearchTool, error) {
	ddg, err := duckduckgo.New(10, duckduckgo.DefaultUserAgent)
	if err != nil {
		return nil, err
	}
	return &SearchTool{client: ddg}, nil
}

func (s *SearchTool) Name() string {
	return "search"
}

func (s *SearchTool) Actions() map[string]string {
	return map[string]string{
		"search_info": "Search the web for real-time information. Params: query.",
	}
}

func (s *SearchTool) Execute(ctx context.Context, action string, params map[string]any) (map[string]any, error) {
	query := stringParam(params, "query", "q", "text")
	if err := requireParam(action, "query", query); err != nil {
		return nil, err
	}
	res, err := s.client.Call(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	return map[string]any{"query": query, "results": res}, nil
}

package completion

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hazemksouri/parley/internal/websearch"
)

// Status is the coarse progress signal surfaced to the UI while a completion
// is in flight.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusThinking  Status = "thinking"
	StatusSearching Status = "searching"
)

// Searcher executes one web search. Satisfied by *websearch.Client.
type Searcher interface {
	Search(ctx context.Context, query string) ([]websearch.Result, error)
}

// searchFallbackPayload is substituted for the tool result when the search
// call fails, so the conversation can still complete.
const searchFallbackPayload = "Web search is currently unavailable. Answer the question from your training knowledge and mention that you could not verify with a live search."

const systemPromptFormat = "You are a helpful assistant. You can call the web_search tool when the user asks about current events or information you may not know. Answer concisely in markdown. Current date: %s."

// webSearchTool is the single tool declared on the first request of every
// exchange. The model decides whether to use it (tool-choice auto).
var webSearchTool = ToolSchema{
	Name:        "web_search",
	Description: "Search the web for up-to-date information. Use for questions about current events, recent releases, prices, weather, or anything likely to have changed after your training data.",
	JSONSchema: `{
		"type": "object",
		"properties": {
			"query": {
				"type": "string",
				"description": "The search query"
			}
		},
		"required": ["query"]
	}`,
}

// Client drives the two-phase completion protocol: a first request with the
// search tool declared, an optional search round-trip, and a second request
// feeding the tool result back to the model.
type Client struct {
	provider Provider
	searcher Searcher
	opts     ChatOptions

	// now is injectable so tests can pin the dated system prompt.
	now func() time.Time
}

// NewClient creates a completion client on top of a provider and a searcher.
func NewClient(provider Provider, searcher Searcher, opts ChatOptions) *Client {
	return &Client{
		provider: provider,
		searcher: searcher,
		opts:     opts,
		now:      time.Now,
	}
}

// Complete runs one full exchange for the given history and returns the final
// assistant text. onStatus, when non-nil, is notified in the fixed order
// thinking -> [searching -> thinking]; it is never called after Complete
// returns.
func (c *Client) Complete(ctx context.Context, history []ChatMessage, onStatus func(Status)) (string, error) {
	notify := func(s Status) {
		if onStatus != nil {
			onStatus(s)
		}
	}

	system := ChatMessage{
		Role:    RoleSystem,
		Content: fmt.Sprintf(systemPromptFormat, c.now().Format("Monday, January 2, 2006")),
	}
	messages := append([]ChatMessage{system}, history...)

	notify(StatusThinking)
	result, err := c.provider.Chat(ctx, messages, []ToolSchema{webSearchTool}, c.opts)
	if err != nil {
		// The one defined retry: a 400 reporting a malformed tool-call
		// generation is reissued once without the tool declaration.
		if IsKind(err, KindMalformedToolCall) {
			retried, retryErr := c.provider.Chat(ctx, messages, nil, c.opts)
			if retryErr != nil {
				return "", retryErr
			}
			return nonEmptyContent(retried.Content)
		}
		return "", err
	}

	if result.FinishReason != FinishReasonToolCalls || len(result.ToolCalls) == 0 {
		return nonEmptyContent(result.Content)
	}

	call := result.ToolCalls[0]
	query, err := parseSearchQuery(call.Arguments)
	if err != nil {
		return "", err
	}

	notify(StatusSearching)
	var results []websearch.Result
	payload := searchFallbackPayload
	if c.searcher != nil {
		found, searchErr := c.searcher.Search(ctx, query)
		if searchErr == nil {
			results = found
			payload = formatToolPayload(query, found)
		}
		// Search failures are deliberately swallowed: the fallback payload
		// lets the model answer without live results.
	}

	notify(StatusThinking)
	followup := append([]ChatMessage{}, messages...)
	followup = append(followup,
		ChatMessage{Role: RoleAssistant, ToolCalls: []ToolCall{call}},
		ChatMessage{Role: RoleTool, ToolCallID: call.ID, Content: payload},
	)

	final, err := c.provider.Chat(ctx, followup, nil, c.opts)
	if err != nil {
		return "", err
	}
	content, err := nonEmptyContent(final.Content)
	if err != nil {
		return "", err
	}
	return content + websearch.FormatSources(results), nil
}

// parseSearchQuery extracts the query string from a tool call's JSON-encoded
// arguments.
func parseSearchQuery(arguments string) (string, error) {
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return "", &Error{Kind: KindInvalidToolArguments, Message: "could not parse tool arguments", Err: err}
	}
	if strings.TrimSpace(args.Query) == "" {
		return "", NewError(KindInvalidToolArguments, "tool arguments missing query")
	}
	return args.Query, nil
}

// formatToolPayload renders search results as the tool-result content fed
// back to the model.
func formatToolPayload(query string, results []websearch.Result) string {
	if len(results) == 0 {
		return fmt.Sprintf("No results found for %q.", query)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Search results for %q:\n", query)
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s (%s)\n%s\n", i+1, r.Title, r.URL, r.Snippet)
	}
	return b.String()
}

func nonEmptyContent(content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", NewError(KindEmptyResponse, "the model returned an empty response")
	}
	return content, nil
}

package completion

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hazemksouri/parley/internal/websearch"
)

type providerCall struct {
	messages []ChatMessage
	tools    []ToolSchema
}

// scriptedProvider returns its results (or errors) in order and records every
// call it receives.
type scriptedProvider struct {
	calls   []providerCall
	results []ChatResult
	errs    []error
}

func (p *scriptedProvider) Chat(_ context.Context, messages []ChatMessage, tools []ToolSchema, _ ChatOptions) (ChatResult, error) {
	i := len(p.calls)
	p.calls = append(p.calls, providerCall{messages: messages, tools: tools})
	if i < len(p.errs) && p.errs[i] != nil {
		return ChatResult{}, p.errs[i]
	}
	if i < len(p.results) {
		return p.results[i], nil
	}
	return ChatResult{}, errors.New("unexpected provider call")
}

type fakeSearcher struct {
	query   string
	results []websearch.Result
	err     error
}

func (s *fakeSearcher) Search(_ context.Context, query string) ([]websearch.Result, error) {
	s.query = query
	return s.results, s.err
}

func toolCallResult(id, args string) ChatResult {
	return ChatResult{
		FinishReason: FinishReasonToolCalls,
		ToolCalls:    []ToolCall{{ID: id, Name: "web_search", Arguments: args}},
	}
}

func newTestClient(p Provider, s Searcher) *Client {
	c := NewClient(p, s, ChatOptions{Temperature: 0.7, MaxOutputTokens: 1024})
	c.now = func() time.Time { return time.Date(2025, time.March, 14, 12, 0, 0, 0, time.UTC) }
	return c
}

func TestCompleteDirectAnswer(t *testing.T) {
	provider := &scriptedProvider{
		results: []ChatResult{{Content: "Paris.", FinishReason: "stop"}},
	}
	client := newTestClient(provider, &fakeSearcher{})

	got, err := client.Complete(context.Background(), []ChatMessage{
		{Role: RoleUser, Content: "Capital of France?"},
	}, nil)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if got != "Paris." {
		t.Errorf("unexpected answer %q", got)
	}
	if len(provider.calls) != 1 {
		t.Fatalf("expected 1 provider call, got %d", len(provider.calls))
	}

	first := provider.calls[0]
	if len(first.tools) != 1 || first.tools[0].Name != "web_search" {
		t.Errorf("first request must declare the web_search tool")
	}
	if first.messages[0].Role != RoleSystem {
		t.Fatalf("expected a leading system message")
	}
	if !strings.Contains(first.messages[0].Content, "Friday, March 14, 2025") {
		t.Errorf("system prompt missing the pinned date: %q", first.messages[0].Content)
	}
}

func TestCompleteToolPath(t *testing.T) {
	provider := &scriptedProvider{
		results: []ChatResult{
			toolCallResult("call_1", `{"query":"go 1.24 release"}`),
			{Content: "Go 1.24 shipped in February.", FinishReason: "stop"},
		},
	}
	searcher := &fakeSearcher{results: []websearch.Result{
		{Title: "Go Blog", URL: "https://go.dev/blog/go1.24", Snippet: "Go 1.24 is released"},
		{Title: "Release Notes", URL: "https://go.dev/doc/go1.24", Snippet: "changes in 1.24"},
	}}
	client := newTestClient(provider, searcher)

	var statuses []Status
	got, err := client.Complete(context.Background(), []ChatMessage{
		{Role: RoleUser, Content: "When did Go 1.24 ship?"},
	}, func(s Status) { statuses = append(statuses, s) })
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if searcher.query != "go 1.24 release" {
		t.Errorf("unexpected search query %q", searcher.query)
	}
	if !strings.HasPrefix(got, "Go 1.24 shipped in February.") {
		t.Errorf("answer missing model content: %q", got)
	}
	if !strings.Contains(got, "**Sources:**") ||
		!strings.Contains(got, "1. [Go Blog](https://go.dev/blog/go1.24)") ||
		!strings.Contains(got, "2. [Release Notes](https://go.dev/doc/go1.24)") {
		t.Errorf("missing citation block: %q", got)
	}

	if len(provider.calls) != 2 {
		t.Fatalf("expected 2 provider calls, got %d", len(provider.calls))
	}
	second := provider.calls[1]
	if second.tools != nil {
		t.Errorf("second request must not declare tools")
	}
	n := len(second.messages)
	assistant, tool := second.messages[n-2], second.messages[n-1]
	if assistant.Role != RoleAssistant || len(assistant.ToolCalls) != 1 || assistant.ToolCalls[0].ID != "call_1" {
		t.Errorf("missing assistant tool-call record: %+v", assistant)
	}
	if tool.Role != RoleTool || tool.ToolCallID != "call_1" {
		t.Errorf("missing tool-result message: %+v", tool)
	}
	if !strings.Contains(tool.Content, "Go Blog") {
		t.Errorf("tool payload should carry the results: %q", tool.Content)
	}

	want := []Status{StatusThinking, StatusSearching, StatusThinking}
	if len(statuses) != len(want) {
		t.Fatalf("expected statuses %v, got %v", want, statuses)
	}
	for i := range want {
		if statuses[i] != want[i] {
			t.Errorf("status %d: expected %s, got %s", i, want[i], statuses[i])
		}
	}
}

func TestCompleteSearchFailureUsesFallback(t *testing.T) {
	provider := &scriptedProvider{
		results: []ChatResult{
			toolCallResult("call_1", `{"query":"latest news"}`),
			{Content: "From what I know, nothing changed.", FinishReason: "stop"},
		},
	}
	searcher := &fakeSearcher{err: errors.New("dns failure")}
	client := newTestClient(provider, searcher)

	got, err := client.Complete(context.Background(), []ChatMessage{
		{Role: RoleUser, Content: "any news?"},
	}, nil)
	if err != nil {
		t.Fatalf("search failure must not abort the exchange: %v", err)
	}
	if strings.Contains(got, "Sources") {
		t.Errorf("no citation block without live results: %q", got)
	}

	tool := provider.calls[1].messages[len(provider.calls[1].messages)-1]
	if tool.Content != searchFallbackPayload {
		t.Errorf("expected fallback payload, got %q", tool.Content)
	}
}

func TestCompleteMalformedToolCallRetry(t *testing.T) {
	provider := &scriptedProvider{
		errs: []error{NewError(KindMalformedToolCall, "Failed to call a function.")},
		results: []ChatResult{
			{}, // consumed by the malformed first attempt
			{Content: "Plain answer.", FinishReason: "stop"},
		},
	}
	client := newTestClient(provider, &fakeSearcher{})

	got, err := client.Complete(context.Background(), []ChatMessage{
		{Role: RoleUser, Content: "hi"},
	}, nil)
	if err != nil {
		t.Fatalf("retry should succeed: %v", err)
	}
	if got != "Plain answer." {
		t.Errorf("unexpected answer %q", got)
	}
	if len(provider.calls) != 2 {
		t.Fatalf("expected exactly 2 provider calls, got %d", len(provider.calls))
	}
	if provider.calls[1].tools != nil {
		t.Errorf("retry must omit the tool declaration")
	}
}

func TestCompleteMalformedToolCallRetryFails(t *testing.T) {
	provider := &scriptedProvider{
		errs: []error{
			NewError(KindMalformedToolCall, "Failed to call a function."),
			NewHTTPError(500, "boom"),
		},
	}
	client := newTestClient(provider, &fakeSearcher{})

	_, err := client.Complete(context.Background(), []ChatMessage{
		{Role: RoleUser, Content: "hi"},
	}, nil)
	if !IsKind(err, KindServerError) {
		t.Fatalf("expected the retry error to surface, got %v", err)
	}
	if len(provider.calls) != 2 {
		t.Errorf("there is exactly one retry, got %d calls", len(provider.calls))
	}
}

func TestCompleteOtherErrorsAreNotRetried(t *testing.T) {
	provider := &scriptedProvider{
		errs: []error{NewHTTPError(429, "slow down")},
	}
	client := newTestClient(provider, &fakeSearcher{})

	_, err := client.Complete(context.Background(), []ChatMessage{
		{Role: RoleUser, Content: "hi"},
	}, nil)
	if !IsKind(err, KindRateLimited) {
		t.Fatalf("expected rate-limit error, got %v", err)
	}
	if len(provider.calls) != 1 {
		t.Errorf("non-malformed errors must not be retried, got %d calls", len(provider.calls))
	}
}

func TestCompleteInvalidToolArguments(t *testing.T) {
	cases := []struct {
		name string
		args string
	}{
		{"not json", `{"query":`},
		{"missing query", `{}`},
		{"blank query", `{"query":"   "}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			provider := &scriptedProvider{
				results: []ChatResult{toolCallResult("call_1", tc.args)},
			}
			client := newTestClient(provider, &fakeSearcher{})

			_, err := client.Complete(context.Background(), []ChatMessage{
				{Role: RoleUser, Content: "hi"},
			}, nil)
			if !IsKind(err, KindInvalidToolArguments) {
				t.Errorf("expected invalid_tool_arguments, got %v", err)
			}
		})
	}
}

func TestCompleteEmptyResponse(t *testing.T) {
	provider := &scriptedProvider{
		results: []ChatResult{{Content: "   ", FinishReason: "stop"}},
	}
	client := newTestClient(provider, &fakeSearcher{})

	_, err := client.Complete(context.Background(), []ChatMessage{
		{Role: RoleUser, Content: "hi"},
	}, nil)
	if !IsKind(err, KindEmptyResponse) {
		t.Fatalf("expected empty_response, got %v", err)
	}
}

func TestCompleteNilSearcherStillAnswers(t *testing.T) {
	provider := &scriptedProvider{
		results: []ChatResult{
			toolCallResult("call_1", `{"query":"anything"}`),
			{Content: "Best effort answer.", FinishReason: "stop"},
		},
	}
	client := newTestClient(provider, nil)

	got, err := client.Complete(context.Background(), []ChatMessage{
		{Role: RoleUser, Content: "hi"},
	}, nil)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if got != "Best effort answer." {
		t.Errorf("unexpected answer %q", got)
	}
	tool := provider.calls[1].messages[len(provider.calls[1].messages)-1]
	if tool.Content != searchFallbackPayload {
		t.Errorf("expected fallback payload without a searcher, got %q", tool.Content)
	}
}

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// Representative Groq streaming chunks for a reasoning model.
var groqStream = []string{
	`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"openai/gpt-oss-20b","choices":[{"index":0,"delta":{"role":"assistant","content":""}}]}`,
	`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"openai/gpt-oss-20b","choices":[{"index":0,"delta":{"reasoning":"User says hi. "}}]}`,
	`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"openai/gpt-oss-20b","choices":[{"index":0,"delta":{"reasoning":"Greet back."}}]}`,
	`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"openai/gpt-oss-20b","choices":[{"index":0,"delta":{"content":"Hello"}}]}`,
	`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"openai/gpt-oss-20b","choices":[{"index":0,"delta":{"content":" there!"},"finish_reason":"stop"}]}`,
	`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"openai/gpt-oss-20b","choices":[],"usage":{"prompt_tokens":12,"completion_tokens":9,"total_tokens":21}}`,
}

func streamServer(t *testing.T, chunks []string, gotBody *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		if gotBody != nil {
			body, _ := io.ReadAll(r.Body)
			if err := json.Unmarshal(body, gotBody); err != nil {
				t.Errorf("request body: %v", err)
			}
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", c)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testClient(url string) *OpenAIClient {
	return NewOpenAIClient(OpenAIConfig{
		Name:    "groq",
		BaseURL: url,
		APIKey:  "test-key",
	}, nil)
}

func TestOpenAIClient_ChatStream(t *testing.T) {
	var body map[string]any
	srv := streamServer(t, groqStream, &body)
	c := NewOpenAIClient(OpenAIConfig{
		BaseURL:         srv.URL,
		APIKey:          "test-key",
		ReasoningEffort: "low",
	}, nil)

	var events []StreamEvent
	resp, err := c.ChatStream(context.Background(), "openai/gpt-oss-20b",
		[]Message{
			{Role: "system", Content: "be nice"},
			{Role: "user", Content: "hi"},
		},
		func(e StreamEvent) { events = append(events, e) },
	)
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}

	wantKinds := []StreamEventKind{KindReasoning, KindReasoning, KindText, KindText, KindDone}
	if len(events) != len(wantKinds) {
		t.Fatalf("got %d events, want %d: %+v", len(events), len(wantKinds), events)
	}
	for i, k := range wantKinds {
		if events[i].Kind != k {
			t.Errorf("event[%d].Kind = %v, want %v", i, events[i].Kind, k)
		}
	}
	if events[4].Response != resp {
		t.Error("done event should carry the returned response")
	}

	if resp.Message.Content != "Hello there!" {
		t.Errorf("Content = %q", resp.Message.Content)
	}
	if resp.Reasoning != "User says hi. Greet back." {
		t.Errorf("Reasoning = %q", resp.Reasoning)
	}
	if resp.FinishReason != "stop" {
		t.Errorf("FinishReason = %q", resp.FinishReason)
	}
	if resp.InputTokens != 12 || resp.OutputTokens != 9 {
		t.Errorf("tokens = %d/%d, want 12/9", resp.InputTokens, resp.OutputTokens)
	}

	if body["model"] != "openai/gpt-oss-20b" {
		t.Errorf("request model = %v", body["model"])
	}
	if body["stream"] != true {
		t.Errorf("request stream = %v", body["stream"])
	}
	if body["reasoning_effort"] != "low" {
		t.Errorf("request reasoning_effort = %v", body["reasoning_effort"])
	}
	msgs, _ := body["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("request messages = %v", body["messages"])
	}
}

func TestOpenAIClient_ChatStream_ReasoningContent(t *testing.T) {
	srv := streamServer(t, []string{
		`{"id":"c2","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"reasoning_content":"hmm"}}]}`,
		`{"id":"c2","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"content":"ok"},"finish_reason":"stop"}]}`,
	}, nil)

	var reasoning strings.Builder
	resp, err := testClient(srv.URL).ChatStream(context.Background(), "m",
		[]Message{{Role: "user", Content: "?"}},
		func(e StreamEvent) {
			if e.Kind == KindReasoning {
				reasoning.WriteString(e.Token)
			}
		},
	)
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}
	if reasoning.String() != "hmm" {
		t.Errorf("reasoning tokens = %q", reasoning.String())
	}
	if resp.Message.Content != "ok" {
		t.Errorf("Content = %q", resp.Message.Content)
	}
}

func TestOpenAIClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrProviderAuth},
		{http.StatusForbidden, ErrProviderAuth},
		{http.StatusTooManyRequests, ErrProviderRateLimited},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				fmt.Fprint(w, `{"error":{"message":"nope","type":"invalid_request_error"}}`)
			}))
			defer srv.Close()

			_, err := testClient(srv.URL).ChatStream(context.Background(), "m",
				[]Message{{Role: "user", Content: "hi"}},
				func(StreamEvent) {},
			)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestOpenAIClient_ChatStream_Cancelled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "data: %s\n\n", groqStream[3])
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	_, err := testClient(srv.URL).ChatStream(ctx, "m",
		[]Message{{Role: "user", Content: "hi"}},
		func(e StreamEvent) {
			if e.Kind == KindText {
				cancel()
			}
		},
	)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestOpenAIClient_ChatStreamNilCallback(t *testing.T) {
	srv := streamServer(t, groqStream, nil)

	resp, err := testClient(srv.URL).ChatStream(context.Background(), "openai/gpt-oss-20b",
		[]Message{{Role: "user", Content: "hi"}}, nil)
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}
	if resp.Message.Content != "Hello there!" {
		t.Errorf("Content = %q", resp.Message.Content)
	}
	if resp.Reasoning != "User says hi. Greet back." {
		t.Errorf("Reasoning = %q", resp.Reasoning)
	}
	if resp.FinishReason != "stop" || resp.OutputTokens != 9 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestToOpenAIMessages_DropsUnknownRoles(t *testing.T) {
	got := toOpenAIMessages([]Message{
		{Role: "system", Content: "s"},
		{Role: "tool", Content: "t"},
		{Role: "user", Content: "u"},
		{Role: "assistant", Content: "a"},
	})
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].OfSystem == nil || got[1].OfUser == nil || got[2].OfAssistant == nil {
		t.Errorf("unexpected message kinds: %+v", got)
	}
}

func TestReasoningFrom(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{``, ""},
		{`{"content":"x"}`, ""},
		{`{"reasoning":"a"}`, "a"},
		{`{"reasoning_content":"b"}`, "b"},
		{`{"reasoning":null,"reasoning_content":"c"}`, "c"},
	}
	for _, tt := range tests {
		if got := reasoningFrom(tt.raw); got != tt.want {
			t.Errorf("reasoningFrom(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestStreamEventKind_String(t *testing.T) {
	for k, want := range map[StreamEventKind]string{
		KindText:            "text",
		KindReasoning:       "reasoning",
		KindDone:            "done",
		StreamEventKind(99): "unknown",
	} {
		if got := k.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", k, got, want)
		}
	}
}

func TestClientsImplementInterface(t *testing.T) {
	var _ Client = (*OpenAIClient)(nil)
	var _ Client = (*MultiClient)(nil)
}

package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rcliao/element-memory/internal/model"
)

func navDescriptor() model.ElementDescriptor {
	return model.ElementDescriptor{
		Tag:     "nav",
		Classes: "navbar",
		Text:    "Home About",
		Rect:    model.Rect{X: 0, Y: 0, Width: 800, Height: 60},
	}
}

func TestParseResponse(t *testing.T) {
	reply := "Here is my analysis:\n```json\n{\"understanding\": \"Main navigation bar\", \"purpose\": \"Navigate\", \"confidence\": 0.9, \"key_elements\": [\"links\"]}\n```"
	c, err := ParseResponse(reply)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	u, ok := c.Understanding()
	if !ok || u != "Main navigation bar" {
		t.Errorf("understanding = %q, %v", u, ok)
	}
	if c.Confidence() != 0.9 {
		t.Errorf("confidence = %v, want 0.9", c.Confidence())
	}
	if _, ok := c["key_elements"]; !ok {
		t.Error("extra keys should be kept")
	}
}

func TestParseResponseUnusable(t *testing.T) {
	cases := map[string]string{
		"no json":             "I cannot analyze this element.",
		"invalid json":        "{understanding: nope}",
		"missing key":         `{"purpose": "x"}`,
		"empty understanding": `{"understanding": "  "}`,
		"wrong type":          `{"understanding": 42}`,
	}
	for name, reply := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseResponse(reply)
			if !errors.Is(err, ErrUnusableResponse) {
				t.Errorf("err = %v, want ErrUnusableResponse", err)
			}
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	d := navDescriptor()
	d.Clickable = true
	d.Href = "/home"
	d.Context = &model.StructuralContext{
		Parent:   &model.NodeSummary{Tag: "header", Selector: "header.top"},
		Siblings: []model.NodeSummary{{Tag: "div"}, {Tag: "form"}},
		Children: []model.NodeSummary{{Tag: "a", Text: "Home"}},
	}

	p := BuildPrompt(d)
	for _, want := range []string{
		"- Tag: <nav>",
		"- Classes: navbar",
		"- ID: none",
		"- Size: 800x60 pixels",
		"- Href: /home",
		"Parent element: <header> header.top",
		"Sibling elements: div, form",
		"Child elements: a (Home...)",
		`"click_behavior"`,
		`"understanding"`,
	} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestBuildPromptNotClickable(t *testing.T) {
	p := BuildPrompt(navDescriptor())
	if strings.Contains(p, "click_behavior") {
		t.Error("non-clickable prompt should not ask for click behavior")
	}
	if !strings.Contains(p, "- Href: N/A") {
		t.Error("non-clickable prompt should show N/A href")
	}
}

func TestHeuristicTagMatch(t *testing.T) {
	c, err := NewHeuristic().Classify(context.Background(), navDescriptor())
	if err != nil {
		t.Fatal(err)
	}
	if c["section"] != "navigation" {
		t.Errorf("section = %v, want navigation", c["section"])
	}
	if c.Confidence() != 0.8 {
		t.Errorf("confidence = %v, want 0.8", c.Confidence())
	}
	if _, ok := c.Understanding(); !ok {
		t.Error("missing understanding")
	}
}

func TestHeuristicClassMatch(t *testing.T) {
	d := model.ElementDescriptor{Tag: "div", Classes: "site-footer dark", Clickable: true, Href: "/legal"}
	c, err := NewHeuristic().Classify(context.Background(), d)
	if err != nil {
		t.Fatal(err)
	}
	if c["section"] != "footer" {
		t.Errorf("section = %v, want footer", c["section"])
	}
	if c.Confidence() != 0.6 {
		t.Errorf("confidence = %v, want 0.6", c.Confidence())
	}
	if c["click_behavior"] != "Navigates to /legal" {
		t.Errorf("click_behavior = %v", c["click_behavior"])
	}
}

func TestHeuristicNoMatch(t *testing.T) {
	c, err := NewHeuristic().Classify(context.Background(), model.ElementDescriptor{Tag: "div", Classes: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if u, _ := c.Understanding(); u != "Generic <div> element" {
		t.Errorf("understanding = %q", u)
	}
	if c.Confidence() != 0.3 {
		t.Errorf("confidence = %v, want 0.3", c.Confidence())
	}
}

func TestHeuristicCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewHeuristic().Classify(ctx, navDescriptor()); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestNew(t *testing.T) {
	c, err := New(Config{})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := c.(*Heuristic); !ok {
		t.Errorf("default classifier = %T, want *Heuristic", c)
	}

	if _, err := New(Config{Provider: "anthropic"}); err == nil {
		t.Error("expected error for unsupported provider")
	}
	if _, err := New(Config{Provider: ProviderOpenAI}); err == nil {
		t.Error("expected error for openai without API key")
	}
	if _, err := New(Config{Provider: ProviderGroq}); err == nil {
		t.Error("expected error for groq without API key")
	}

	c, err = New(Config{Provider: ProviderOllama})
	if err != nil {
		t.Fatal(err)
	}
	llm, ok := c.(*LLM)
	if !ok {
		t.Fatalf("ollama classifier = %T, want *LLM", c)
	}
	if llm.Model() != "llama3.1" {
		t.Errorf("model = %q, want llama3.1", llm.Model())
	}
}

func chatServer(t *testing.T, status int, content string, got *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if got != nil {
			_ = json.Unmarshal(body, got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"message":"bad request","type":"invalid_request_error"}}`))
			return
		}
		resp := map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gpt-4o",
			"choices": []any{map[string]any{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
			"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLLMClassify(t *testing.T) {
	var req map[string]any
	srv := chatServer(t, http.StatusOK, `{"understanding": "Primary site navigation", "purpose": "Move around", "confidence": 0.85}`, &req)

	c, err := NewLLM(Config{Provider: ProviderOpenAI, APIKey: "test", BaseURL: srv.URL + "/", Model: "gpt-4o"})
	if err != nil {
		t.Fatal(err)
	}
	got, err := c.Classify(context.Background(), navDescriptor())
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if u, _ := got.Understanding(); u != "Primary site navigation" {
		t.Errorf("understanding = %q", u)
	}
	if got.Purpose() != "Move around" {
		t.Errorf("purpose = %q", got.Purpose())
	}

	if req["model"] != "gpt-4o" {
		t.Errorf("request model = %v", req["model"])
	}
	if req["temperature"] != 0.3 {
		t.Errorf("request temperature = %v, want 0.3", req["temperature"])
	}
	msgs, _ := req["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
}

func TestLLMClassifyUnusable(t *testing.T) {
	srv := chatServer(t, http.StatusOK, "Sorry, I can't help with that.", nil)
	c, err := NewLLM(Config{Provider: ProviderOpenAI, APIKey: "test", BaseURL: srv.URL + "/"})
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.Classify(context.Background(), navDescriptor())
	if !errors.Is(err, ErrUnusableResponse) {
		t.Errorf("err = %v, want ErrUnusableResponse", err)
	}
}

func TestLLMClassifyTransportError(t *testing.T) {
	srv := chatServer(t, http.StatusBadRequest, "", nil)
	c, err := NewLLM(Config{Provider: ProviderOpenAI, APIKey: "test", BaseURL: srv.URL + "/"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Classify(context.Background(), navDescriptor()); err == nil {
		t.Error("expected error for failed request")
	}
}

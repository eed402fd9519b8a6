package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"autodialer/internal/config"
)

func testParser(t *testing.T, outputText string) *Parser {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			t.Errorf("expected authorization header")
		}
		resp := map[string]any{
			"output": []map[string]any{
				{
					"type": "message",
					"role": "assistant",
					"content": []map[string]any{
						{"type": "output_text", "text": outputText},
					},
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)

	p, err := NewParser(config.OpenAIConfig{APIKey: "sk-test", Model: "gpt-4o-mini"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	p.baseURL = srv.URL
	return p
}

func TestNewParser_RequiresKey(t *testing.T) {
	if _, err := NewParser(config.OpenAIConfig{}); err == nil {
		t.Fatalf("expected error for missing api key")
	}
}

func TestParsePrompt_ExtractsNumberAndMessage(t *testing.T) {
	p := testParser(t, `{"number":"+1500 555 0006","message":"Your order shipped"}`)

	res, err := p.ParsePrompt(context.Background(), "call +15005550006 and tell them the order shipped")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.Number != "+15005550006" {
		t.Fatalf("expected normalized number, got %q", res.Number)
	}
	if res.Message != "Your order shipped" {
		t.Fatalf("unexpected message %q", res.Message)
	}
}

func TestParsePrompt_FallsBackToDigitScan(t *testing.T) {
	p := testParser(t, `{"number":"","message":"hi"}`)

	res, err := p.ParsePrompt(context.Background(), "please ring 15005550006 for me")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.Number == "" {
		t.Fatalf("expected fallback number from prompt")
	}
}

func TestParsePrompt_ToleratesFencedJSON(t *testing.T) {
	p := testParser(t, "```json\n{\"number\":\"+15005550006\",\"message\":\"hello\"}\n```")

	res, err := p.ParsePrompt(context.Background(), "whatever")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.Number != "+15005550006" {
		t.Fatalf("expected number from fenced json, got %q", res.Number)
	}
}

func TestParsePrompt_APIErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p, err := NewParser(config.OpenAIConfig{APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	p.baseURL = srv.URL

	if _, err := p.ParsePrompt(context.Background(), "call someone"); err == nil {
		t.Fatalf("expected error")
	}
}

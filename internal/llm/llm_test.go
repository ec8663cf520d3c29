package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/TobiSchelling/noticeflow/internal/config"
)

func TestParseJSONResponsePlain(t *testing.T) {
	result, err := ParseJSONResponse(`{"key": "value", "num": 42}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result["key"] != "value" {
		t.Errorf("expected key='value', got %v", result["key"])
	}
	if result["num"] != float64(42) {
		t.Errorf("expected num=42, got %v", result["num"])
	}
}

func TestParseJSONResponseWithCodeFence(t *testing.T) {
	text := "```json\n{\"key\": \"value\"}\n```"
	result, err := ParseJSONResponse(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result["key"] != "value" {
		t.Errorf("expected key='value', got %v", result["key"])
	}
}

func TestParseJSONResponseWithProse(t *testing.T) {
	text := "Here is the result:\n{\"a\": {\"b\": 1}}\nLet me know if you need more."
	span, err := ExtractJSON(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if span != `{"a": {"b": 1}}` {
		t.Errorf("unexpected span %q", span)
	}
}

func TestExtractJSONGreedySpanMustBeValid(t *testing.T) {
	// The span runs from the first '{' to the last '}', so two objects
	// separated by prose do not form valid JSON.
	_, err := ExtractJSON(`{"a": 1} and {"b": 2}`)
	if err == nil {
		t.Fatal("expected error for invalid greedy span")
	}
	if errors.Is(err, ErrNoJSON) {
		t.Error("invalid span should not be reported as missing")
	}
}

func TestParseJSONResponseInvalid(t *testing.T) {
	if _, err := ParseJSONResponse("not json at all"); !errors.Is(err, ErrNoJSON) {
		t.Errorf("expected ErrNoJSON, got %v", err)
	}
}

func TestParseJSONResponseEmpty(t *testing.T) {
	if _, err := ParseJSONResponse(""); !errors.Is(err, ErrNoJSON) {
		t.Errorf("expected ErrNoJSON, got %v", err)
	}
}

func TestParseJSONResponseWhitespace(t *testing.T) {
	result, err := ParseJSONResponse("  \n  {\"key\": \"value\"}  \n  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result["key"] != "value" {
		t.Errorf("expected key='value', got %v", result["key"])
	}
}

func TestGeminiGenerate(t *testing.T) {
	var got geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/gemini-2.5-flash:generateContent" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "k" {
			t.Errorf("missing api key header")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"title\":"},{"text":"\"x\"}"}]}}]}`))
	}))
	defer srv.Close()

	p := NewGeminiProvider("gemini-2.5-flash", "k", 0.2)
	p.BaseURL = srv.URL
	out, err := p.Generate(context.Background(), "hello", 100)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if out != `{"title":"x"}` {
		t.Errorf("unexpected output %q", out)
	}
	if len(got.SafetySettings) != 2 || got.SafetySettings[0].Threshold != "BLOCK_NONE" {
		t.Errorf("unexpected safety settings: %+v", got.SafetySettings)
	}
	if got.GenerationConfig["temperature"] != 0.2 {
		t.Errorf("expected temperature 0.2, got %v", got.GenerationConfig["temperature"])
	}
	if got.Contents[0].Parts[0].Text != "hello" {
		t.Errorf("prompt not sent")
	}
}

func TestGeminiAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "API key not valid", http.StatusForbidden)
	}))
	defer srv.Close()

	p := NewGeminiProvider("m", "bad", 0.2)
	p.BaseURL = srv.URL
	_, err := p.Generate(context.Background(), "hello", 100)
	if !IsAuthError(err) {
		t.Fatalf("expected auth error, got %v", err)
	}

	_, err = NewGeminiProvider("m", "", 0.2).Generate(context.Background(), "x", 1)
	if !IsAuthError(err) {
		t.Errorf("missing key should be an auth error, got %v", err)
	}
}

func TestOpenAIGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk" {
			t.Errorf("missing bearer token")
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("gpt-4o-mini", "sk", 0.2)
	p.URL = srv.URL
	out, err := p.Generate(context.Background(), "hi", 10)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if out != "ok" {
		t.Errorf("expected ok, got %q", out)
	}
}

func TestOllamaGenerateAndConfigured(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			w.Write([]byte(`{"models":[{"name":"llama3.2:latest"}]}`))
		case "/api/chat":
			w.Write([]byte(`{"message":{"content":"pong"}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	p := NewOllamaProvider("llama3.2", srv.URL, 0.2)
	if !p.IsConfigured() {
		t.Fatal("expected ollama to be configured")
	}
	out, err := p.Generate(context.Background(), "ping", 10)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if out != "pong" {
		t.Errorf("expected pong, got %q", out)
	}

	if NewOllamaProvider("mistral", srv.URL, 0.2).IsConfigured() {
		t.Error("expected missing model to be unconfigured")
	}
}

func TestStatusErrorIsNotAuth(t *testing.T) {
	err := &StatusError{Provider: "gemini", StatusCode: 500, Body: "boom"}
	if IsAuthError(err) {
		t.Error("500 should not be an auth error")
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestCreateProvider(t *testing.T) {
	cfg := config.Summarization{Provider: "gemini", Model: "gemini-2.5-flash", OpenAIModel: "gpt-4o-mini"}

	if p := CreateProvider(cfg, config.Secrets{GoogleAPIKey: "g"}); p == nil {
		t.Fatal("expected gemini provider")
	} else if _, ok := p.(*GeminiProvider); !ok {
		t.Errorf("expected *GeminiProvider, got %T", p)
	}

	if p, ok := CreateProvider(cfg, config.Secrets{OpenAIAPIKey: "o"}).(*OpenAIProvider); !ok || p.Model != "gpt-4o-mini" {
		t.Errorf("expected OpenAI fallback, got %v", p)
	}

	if p := CreateProvider(cfg, config.Secrets{}); p != nil {
		t.Errorf("expected nil provider without keys, got %T", p)
	}
}

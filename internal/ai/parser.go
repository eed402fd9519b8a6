package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"autodialer/internal/config"
	"autodialer/internal/phone"
)

const openAIBase = "https://api.openai.com"

const extractionInstruction = "Extract the destination phone number and the message to deliver via a phone call. " +
	"Return JSON with keys 'number' and 'message'. Only include digits and '+' in the number. " +
	"If the number is missing, leave it empty. Keep the message short and friendly. " +
	"Respond with JSON only."

var fallbackNumberRegex = regexp.MustCompile(`\+?\d{7,15}`)

// ParseResult is the structured output of interpreting a natural-language
// call instruction. Number is best-effort and must be re-validated by the
// caller; the model is never trusted with the allow-list decision.
type ParseResult struct {
	Number  string
	Message string
	Raw     string
}

// Parser extracts (number, message) pairs from free text via OpenAI.
type Parser struct {
	apiKey string
	model  string

	// baseURL is swapped for an httptest server in tests.
	baseURL    string
	httpClient *http.Client
}

func NewParser(cfg config.OpenAIConfig) (*Parser, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("ai: OPENAI_API_KEY is required")
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &Parser{
		apiKey:     cfg.APIKey,
		model:      model,
		baseURL:    openAIBase,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// ParsePrompt interprets a user's natural-language command. The extracted
// number is normalized but not validated here. When the model produces no
// number, a plain digit scan of the prompt serves as fallback.
func (p *Parser) ParsePrompt(ctx context.Context, prompt string) (ParseResult, error) {
	structured, raw, err := p.invokeModel(ctx, prompt)
	if err != nil {
		return ParseResult{}, err
	}

	number := strings.TrimSpace(structured.Number)
	if number != "" {
		number = phone.Normalize(number)
	}
	if number == "" {
		if m := fallbackNumberRegex.FindString(prompt); m != "" {
			number = phone.Normalize(m)
		}
	}

	message := strings.TrimSpace(structured.Message)

	return ParseResult{Number: number, Message: message, Raw: raw}, nil
}

type extraction struct {
	Number  string `json:"number"`
	Message string `json:"message"`
}

func (p *Parser) invokeModel(ctx context.Context, prompt string) (extraction, string, error) {
	reqBody := map[string]any{
		"model":        p.model,
		"instructions": extractionInstruction,
		"input":        fmt.Sprintf("Prompt:\n%s\n\nJSON:", prompt),
	}
	b, _ := json.Marshal(reqBody)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/responses", bytes.NewReader(b))
	if err != nil {
		return extraction{}, "", err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return extraction{}, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return extraction{}, "", fmt.Errorf("ai: openai error %d: %s", resp.StatusCode, string(body))
	}

	var parsed struct {
		Output []struct {
			Type    string `json:"type"`
			Role    string `json:"role"`
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		} `json:"output"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return extraction{}, "", err
	}

	var sb strings.Builder
	for _, item := range parsed.Output {
		if item.Type != "message" || item.Role != "assistant" {
			continue
		}
		for _, c := range item.Content {
			if c.Type == "output_text" && strings.TrimSpace(c.Text) != "" {
				sb.WriteString(c.Text)
			}
		}
	}

	raw := strings.TrimSpace(sb.String())

	// Models occasionally wrap the JSON in fences or prose; tolerate that by
	// decoding the first object found. Undecodable output degrades to the
	// regex fallback rather than an error.
	var out extraction
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			_ = json.Unmarshal([]byte(raw[start:end+1]), &out)
		}
	}
	return out, raw, nil
}

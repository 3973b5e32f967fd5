// Package gemini implements booking-field extraction with the Gemini API.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/holdgrid/bookingwatch/internal/extract"
)

type Config struct {
	APIKey string
	Model  string

	// BaseURL overrides the Gemini API base URL. Useful for proxies/testing.
	BaseURL string
}

type Extractor struct {
	client *genai.Client
	model  string
}

func New(ctx context.Context, cfg Config) (*Extractor, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("GEMINI_MODEL is required")
	}

	cc := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		cc.HTTPOptions.BaseURL = strings.TrimSpace(cfg.BaseURL)
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	return &Extractor{
		client: client,
		model:  strings.TrimSpace(cfg.Model),
	}, nil
}

type responseSchema struct {
	Applicable     bool   `json:"applicable"`
	VenueName      string `json:"venue_name"`
	City           string `json:"city"`
	RequestedDates string `json:"requested_dates"`
	ContactEmail   string `json:"contact_email"`
}

var outputSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"applicable":      {Type: genai.TypeBoolean},
		"venue_name":      {Type: genai.TypeString},
		"city":            {Type: genai.TypeString},
		"requested_dates": {Type: genai.TypeString},
		"contact_email":   {Type: genai.TypeString},
	},
	Required: []string{
		"applicable",
		"venue_name",
		"city",
		"requested_dates",
		"contact_email",
	},
}

// Extract asks the model for booking fields in structured JSON. Every
// upstream failure, including an unparseable response, is wrapped as an
// ExtractionError so the caller retries with backoff.
func (e *Extractor) Extract(ctx context.Context, bodyText string) (extract.Result, error) {
	if strings.TrimSpace(bodyText) == "" {
		// Nothing to extract from; not an upstream failure.
		return extract.Result{Applicable: false}, nil
	}

	resp, err := e.client.Models.GenerateContent(
		ctx,
		e.model,
		genai.Text(buildPrompt(bodyText)),
		&genai.GenerateContentConfig{
			CandidateCount:   1,
			ResponseMIMEType: "application/json",
			ResponseSchema:   outputSchema,
		},
	)
	if err != nil {
		return extract.Result{}, &extract.ExtractionError{Err: err}
	}

	return parseResult(resp.Text())
}

func parseResult(text string) (extract.Result, error) {
	var parsed responseSchema
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return extract.Result{}, &extract.ExtractionError{Err: fmt.Errorf("gemini: parse structured json: %w", err)}
	}
	return extract.Result{
		Applicable:     parsed.Applicable,
		VenueName:      strings.TrimSpace(parsed.VenueName),
		City:           strings.TrimSpace(parsed.City),
		RequestedDates: strings.TrimSpace(parsed.RequestedDates),
		ContactEmail:   strings.TrimSpace(parsed.ContactEmail),
	}, nil
}

func buildPrompt(bodyText string) string {
	// Keep this prompt public-safe: it embeds only the email body, which is
	// the required extraction input.
	return strings.TrimSpace(`
You extract venue booking details from sent emails.

Return ONLY a single JSON object with these keys:
- applicable (boolean; true only if the email is about booking or holding a venue)
- venue_name (string)
- city (string; if not named, infer from the venue location, otherwise empty)
- requested_dates (string; join multiple date ranges with " & ")
- contact_email (string)

Rules:
- If the email is not booking-related, set applicable to false and every other field to an empty string.
- If a field is not present in the text, set it to an empty string. Never invent a value.
- Do not include extra keys.

Email content:
` + bodyText + `
`)
}

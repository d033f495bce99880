// Package remotecoach implements the Remote NL Coach Adapter (§4.12):
// asynchronous, text-only enrichment of a CoachingInsight via a
// Gemini-backed client, circuit-breaker protected, with a manual
// confidence-defaulted response parser grounded on the teacher's
// StrategyEngine.requestAnalysis/parseResponse.
package remotecoach

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/psybedev/coachtrace/internal/circuitbreaker"
	contextbuilder "github.com/psybedev/coachtrace/internal/context"
	"github.com/psybedev/coachtrace/internal/model"
	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

// DefaultRequestTimeout is the §4.12 5s request timeout.
const DefaultRequestTimeout = 5 * time.Second

// Enrichment is the §6.5 response shape.
type Enrichment struct {
	Text            string
	Audio           []byte
	ConfidenceHint  float64
}

// Client abstracts the generative backend so Adapter can be tested
// without reaching the network.
type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GenAIClient wraps google.golang.org/genai's text generation call.
type GenAIClient struct {
	client      *genai.Client
	model       string
	maxTokens   int32
	temperature float32
}

func NewGenAIClient(ctx context.Context, apiKey, model string, maxTokens int, temperature float64) (*GenAIClient, error) {
	c, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GenAIClient{client: c, model: model, maxTokens: int32(maxTokens), temperature: float32(temperature)}, nil
}

func (g *GenAIClient) Generate(ctx context.Context, prompt string) (string, error) {
	temp := g.temperature
	genConfig := &genai.GenerateContentConfig{
		Temperature:     &temp,
		MaxOutputTokens: g.maxTokens,
	}
	result, err := g.client.Models.GenerateContent(ctx, g.model, []*genai.Content{
		{Parts: []*genai.Part{{Text: prompt}}},
	}, genConfig)
	if err != nil {
		return "", err
	}
	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return "", fmt.Errorf("empty response from gemini")
	}
	var sb strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("empty response text from gemini")
	}
	return sb.String(), nil
}

// Adapter is the only component permitted to reach network resources
// along the coaching path (§4.12).
type Adapter struct {
	client  Client
	breaker *circuitbreaker.Breaker
	timeout time.Duration
	log     zerolog.Logger
}

func New(client Client, timeout time.Duration, log zerolog.Logger) *Adapter {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &Adapter{
		client:  client,
		breaker: circuitbreaker.New(circuitbreaker.DefaultConfig()),
		timeout: timeout,
		log:     log.With().Str("component", "remotecoach").Logger(),
	}
}

// Enrich enriches insight with the given context snapshot and coaching
// mode. It is a blocking call, bounded by the adapter's request timeout;
// the supervisor runs it in its own goroutine. On any failure (timeout, circuit open, malformed
// response) it returns the original insight text unchanged, per §4.12's
// failure mode — never an error the caller must branch on.
func (a *Adapter) Enrich(ctx context.Context, insight model.CoachingInsight, snap contextbuilder.Snapshot, mode string) Enrichment {
	fallback := Enrichment{Text: insight.Text, ConfidenceHint: insight.Confidence}

	if !a.breaker.CanExecute() {
		a.log.Debug().Msg("circuit open, skipping remote enrichment")
		return fallback
	}

	reqCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	prompt := constructPrompt(insight, snap, mode)

	raw, err := a.client.Generate(reqCtx, prompt)
	if err != nil {
		a.breaker.RecordFailure()
		a.log.Warn().Err(err).Msg("remote enrichment failed, using local text")
		return fallback
	}
	a.breaker.RecordSuccess()

	enriched, ok := parseResponse(raw)
	if !ok {
		a.log.Debug().Msg("remote response not parseable, using local text")
		return fallback
	}
	if enriched.Text == "" {
		enriched.Text = insight.Text
	}
	if enriched.ConfidenceHint == 0 {
		enriched.ConfidenceHint = insight.Confidence
	}
	return enriched
}

func constructPrompt(insight model.CoachingInsight, snap contextbuilder.Snapshot, mode string) string {
	var sb strings.Builder
	sb.WriteString("You are a sim-racing driving coach. Rephrase the following coaching ")
	sb.WriteString("insight as a short, natural-language tip for a driver in ")
	sb.WriteString(mode)
	sb.WriteString(" mode.\n\n")
	fmt.Fprintf(&sb, "Category: %s\n", insight.Category)
	fmt.Fprintf(&sb, "Insight: %s\n", insight.Text)
	fmt.Fprintf(&sb, "Track: %s, Car: %s\n", snap.Session.TrackDisplayName, snap.Session.CarScreenName)
	fmt.Fprintf(&sb, "Apex speed: driver %.1f km/h vs best %.1f km/h\n",
		snap.Reference.DriverApexSpeedKmh, snap.Reference.BestApexSpeedKmh)
	sb.WriteString("\nRespond with JSON only: {\"text\": \"...\", \"confidence\": 0.0-1.0}")
	return sb.String()
}

// parseResponse mirrors the teacher's locate-first-brace-then-unmarshal
// approach: a remote LLM cannot be trusted to always return exactly the
// declared shape, so fields are extracted with safe defaults rather than
// a strict schema unmarshal.
func parseResponse(response string) (Enrichment, bool) {
	response = strings.TrimSpace(response)
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start == -1 || end == -1 || end <= start {
		return Enrichment{}, false
	}

	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(response[start:end+1]), &raw); err != nil {
		return Enrichment{}, false
	}

	var e Enrichment
	if v, ok := raw["text"].(string); ok {
		e.Text = v
	}
	if v, ok := raw["confidence"].(float64); ok {
		e.ConfidenceHint = v
	}
	return e, e.Text != ""
}

package remotecoach

import (
	"context"
	"errors"
	"testing"
	"time"

	contextbuilder "github.com/psybedev/coachtrace/internal/context"
	"github.com/psybedev/coachtrace/internal/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	response string
	err      error
}

func (f *fakeClient) Generate(ctx context.Context, prompt string) (string, error) {
	return f.response, f.err
}

func TestEnrich_ParsesWellFormedJSONResponse(t *testing.T) {
	client := &fakeClient{response: `{"text": "brake ten meters later", "confidence": 0.9}`}
	a := New(client, time.Second, zerolog.Nop())

	out := a.Enrich(context.Background(), model.CoachingInsight{Text: "original", Confidence: 0.5}, contextbuilder.Snapshot{}, "race")
	require.Equal(t, "brake ten meters later", out.Text)
	require.Equal(t, 0.9, out.ConfidenceHint)
}

func TestEnrich_FallsBackToOriginalTextOnClientError(t *testing.T) {
	client := &fakeClient{err: errors.New("network down")}
	a := New(client, time.Second, zerolog.Nop())

	out := a.Enrich(context.Background(), model.CoachingInsight{Text: "original", Confidence: 0.4}, contextbuilder.Snapshot{}, "race")
	require.Equal(t, "original", out.Text)
	require.Equal(t, 0.4, out.ConfidenceHint)
}

func TestEnrich_FallsBackOnUnparseableResponse(t *testing.T) {
	client := &fakeClient{response: "not json at all"}
	a := New(client, time.Second, zerolog.Nop())

	out := a.Enrich(context.Background(), model.CoachingInsight{Text: "original", Confidence: 0.4}, contextbuilder.Snapshot{}, "race")
	require.Equal(t, "original", out.Text)
}

func TestParseResponse_ExtractsEmbeddedJSON(t *testing.T) {
	e, ok := parseResponse("here you go: {\"text\": \"hi\", \"confidence\": 0.7} thanks")
	require.True(t, ok)
	require.Equal(t, "hi", e.Text)
	require.Equal(t, 0.7, e.ConfidenceHint)
}

func TestParseResponse_RejectsMissingBraces(t *testing.T) {
	_, ok := parseResponse("no braces here")
	require.False(t, ok)
}

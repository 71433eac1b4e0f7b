package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erkebulan/ustazai/internal/domain/entities"
	"github.com/erkebulan/ustazai/internal/domain/ports"
)

type fakeCompletionServer struct {
	srv      *httptest.Server
	requests []map[string]any
	status   int
	content  string
}

func newFakeCompletionServer(t *testing.T) *fakeCompletionServer {
	t.Helper()
	f := &fakeCompletionServer{status: http.StatusOK, content: "stub answer"}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.requests = append(f.requests, body)

		if f.status != http.StatusOK {
			w.WriteHeader(f.status)
			json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "boom", "type": "server_error"}})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": f.content}},
			},
		})
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func TestOpenAIClient_UnavailableWithoutKey(t *testing.T) {
	c := NewOpenAIClient("", "", "", nil)

	assert.False(t, c.Available())

	_, err := c.Generate(context.Background(), "q", nil, nil, "kk")
	assert.ErrorIs(t, err, ports.ErrModelUnavailable)
}

func TestOpenAIClient_GenerateReturnsCompletion(t *testing.T) {
	f := newFakeCompletionServer(t)
	c := NewOpenAIClient("test-key", f.srv.URL+"/v1", "gpt-4o-mini", nil)

	got, err := c.Generate(context.Background(), "Ораза қашан?", nil, nil, "kk")
	require.NoError(t, err)
	assert.Equal(t, "stub answer", got)
}

func TestOpenAIClient_MessagesCarryHistoryAndContext(t *testing.T) {
	f := newFakeCompletionServer(t)
	c := NewOpenAIClient("test-key", f.srv.URL+"/v1", "gpt-4o-mini", nil)

	history := []entities.Turn{
		{Role: entities.RoleUser, Text: "алдыңғы сұрақ"},
		{Role: entities.RoleAssistant, Text: "алдыңғы жауап"},
	}
	contextResults := []entities.RetrievalResult{
		{Question: "Ифтар деген не?", Answer: "Ауызашар.", Source: "islam_basics", BookTitle: "Кітап", Page: "12"},
	}

	_, err := c.Generate(context.Background(), "Ал сәресі ше?", contextResults, history, "ru")
	require.NoError(t, err)

	require.Len(t, f.requests, 1)
	messages := f.requests[0]["messages"].([]any)
	require.Len(t, messages, 4) // system + 2 history + user prompt

	system := messages[0].(map[string]any)
	assert.Equal(t, "system", system["role"])
	assert.Contains(t, system["content"], "[SUGGESTIONS]")

	assert.Equal(t, "user", messages[1].(map[string]any)["role"])
	assert.Equal(t, "assistant", messages[2].(map[string]any)["role"])

	prompt := messages[3].(map[string]any)["content"].(string)
	assert.Contains(t, prompt, "Ифтар деген не?")
	assert.Contains(t, prompt, "Кітап")
	assert.Contains(t, prompt, "Ал сәресі ше?")
	assert.Contains(t, prompt, "Russian")
}

func TestOpenAIClient_RetriesThenUnavailable(t *testing.T) {
	f := newFakeCompletionServer(t)
	f.status = http.StatusInternalServerError
	c := NewOpenAIClient("test-key", f.srv.URL+"/v1", "gpt-4o-mini", nil)

	_, err := c.Generate(context.Background(), "q", nil, nil, "kk")
	assert.ErrorIs(t, err, ports.ErrModelUnavailable)
	assert.Len(t, f.requests, maxAttempts)
}

func TestBuildContext_Empty(t *testing.T) {
	assert.Equal(t, "(no context found)", buildContext(nil))
}

func TestIsTransient(t *testing.T) {
	assert.False(t, isTransient(context.Canceled))
	assert.True(t, isTransient(errors.New("connection reset")))
}

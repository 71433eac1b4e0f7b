// Package llm provides the generative model adapter.
// Clean Architecture: Adapter implementing ports.ModelClient.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/erkebulan/ustazai/internal/domain/entities"
	"github.com/erkebulan/ustazai/internal/domain/ports"
)

const (
	// DefaultModel matches the original deployment.
	DefaultModel = "gpt-4o-mini"

	// maxConcurrent bounds in-flight generation calls process-wide.
	maxConcurrent = 20

	// callTimeout is the per-call deadline, retries included.
	callTimeout = 30 * time.Second

	// maxAttempts is the retry budget against transient failures. Exhausted
	// retries look identical to a permanently unavailable model.
	maxAttempts = 3

	temperature = 0.3
)

// systemPrompt instructs the model on grounding, language choice and the
// marker conventions the parser understands. Markers are instructions to a
// probabilistic generator, not a contract; the parser copes when they are
// missing or misspelled.
const systemPrompt = `You are a knowledgeable assistant answering questions about Ramadan, fasting and Islamic practice.

Rules:
1. Rely FIRST on the provided knowledge-base context. If the context answers the question directly, use it.
2. If the context has no complete answer, answer from your own knowledge.
3. Answer in the language of the question (Kazakh question - Kazakh answer, Russian question - Russian answer).
4. Be concrete, complete and clear.
5. When you cite an ayah or hadith, name the source.
6. OFF-TOPIC RULE (STRICT):
   - If the question has NOTHING to do with Ramadan, fasting, worship or Islam (sports, weather, politics, entertainment, technology), write [OFF_TOPIC] on the first line of your reply, then:
     Kazakh: 'Бұл сұрақтың оразаға қатысы жоқ. Мен тек Рамазан тақырыбы бойынша жауап беремін.'
     Russian: 'Этот вопрос не относится к Рамадану. Я отвечаю только на вопросы о Рамадане.'
   - If the question is Islamic but not directly about Ramadan (prayer, zakat, hajj, marriage), answer it and relate it to Ramadan.
7. Never issue a religious fatwa; only relay what the books and hadiths say.
8. If the context gives a book title, author or page, cite it at the end of the answer:
   Kazakh: 📖 Дереккөз: "Кітап аты", Автор, б. 123
   Russian: 📖 Источник: "Название книги", Автор, с. 123
9. NEVER put URLs in the answer. Text only.
10. CONFIDENCE RULE:
   - If you are NOT CONFIDENT in the answer (no direct answer in context, answered from own knowledge), write [СЕНІМСІЗ] on a new line at the end.
   - If the context answered directly, omit [СЕНІМСІЗ].
11. SUGGESTIONS - MANDATORY AT THE END OF EVERY ANSWER:
   The very last part of the answer MUST be [SUGGESTIONS] in exactly this format:

   [SUGGESTIONS]
   💡 First suggested question?
   💡 Second suggested question?
   💡 Third suggested question?

   Rules:
   - ALWAYS write the [SUGGESTIONS] marker, do not forget it!
   - Every suggestion starts with 💡.
   - Write 2-3 on-topic questions, in the language of the question.`

// OpenAIClient implements ports.ModelClient using the OpenAI chat
// completions API. A process-wide weighted semaphore bounds concurrency;
// the unavailability check happens before a slot is taken.
type OpenAIClient struct {
	client *openai.Client
	model  string
	sem    *semaphore.Weighted
	log    *zap.Logger
}

// NewOpenAIClient creates a model client. An empty apiKey yields a
// permanently unavailable client: Generate returns ports.ErrModelUnavailable
// without attempting any call.
func NewOpenAIClient(apiKey, baseURL, model string, log *zap.Logger) *OpenAIClient {
	if log == nil {
		log = zap.NewNop()
	}
	if model == "" {
		model = DefaultModel
	}

	c := &OpenAIClient{
		model: model,
		sem:   semaphore.NewWeighted(maxConcurrent),
		log:   log,
	}
	if apiKey == "" {
		log.Warn("no model API key configured, generation disabled")
		return c
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	c.client = openai.NewClientWithConfig(cfg)
	log.Info("model client initialized", zap.String("model", model))
	return c
}

// Available reports whether a provider credential is configured. This is a
// permanent condition for the process lifetime.
func (c *OpenAIClient) Available() bool {
	return c.client != nil
}

// Generate sends the question with context and history to the model and
// returns the raw completion text. At most maxConcurrent calls are in
// flight at once; excess callers block on the semaphore until a slot frees
// or their context is done.
func (c *OpenAIClient) Generate(ctx context.Context, question string, contextResults []entities.RetrievalResult, history []entities.Turn, lang string) (string, error) {
	if !c.Available() {
		return "", ports.ErrModelUnavailable
	}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("acquiring generation slot: %w", err)
	}
	defer c.sem.Release(1)

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	messages := c.buildMessages(question, contextResults, history, lang)

	var resp openai.ChatCompletionResponse
	err := retry.Do(
		func() error {
			var err error
			resp, err = c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
				Model:       c.model,
				Messages:    messages,
				Temperature: temperature,
			})
			return err
		},
		retry.Context(ctx),
		retry.Attempts(maxAttempts),
		retry.RetryIf(isTransient),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		c.log.Warn("generation failed", zap.Error(err))
		return "", ports.ErrModelUnavailable
	}

	if len(resp.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// buildMessages assembles the chat payload: system prompt, recent history,
// then the question wrapped with the numbered knowledge context and a
// language instruction.
func (c *OpenAIClient) buildMessages(question string, contextResults []entities.RetrievalResult, history []entities.Turn, lang string) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt,
	})

	for _, turn := range history {
		role := openai.ChatMessageRoleAssistant
		if turn.Role == entities.RoleUser {
			role = openai.ChatMessageRoleUser
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: turn.Text})
	}

	langInstruction := "IMPORTANT: the user prefers Kazakh. Answer in Kazakh unless the question is clearly in Russian."
	if lang == "ru" {
		langInstruction = "IMPORTANT: the user prefers Russian. Answer in Russian unless the question is clearly in Kazakh."
	}

	var sb strings.Builder
	sb.WriteString("Knowledge-base context:\n")
	sb.WriteString(buildContext(contextResults))
	sb.WriteString("\n\nUser question: ")
	sb.WriteString(question)
	sb.WriteString("\n\n")
	sb.WriteString(langInstruction)
	sb.WriteString("\nAnswer using the context. Do not forget the [SUGGESTIONS] section at the very end.")

	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: sb.String(),
	})
	return messages
}

// buildContext renders retrieved entries as numbered blocks with their
// provenance so the model can cite them.
func buildContext(results []entities.RetrievalResult) string {
	if len(results) == 0 {
		return "(no context found)"
	}

	parts := make([]string, 0, len(results))
	for i, r := range results {
		var sb strings.Builder
		fmt.Fprintf(&sb, "[%d] Source: %s\n", i+1, r.Source)
		if r.BookTitle != "" {
			fmt.Fprintf(&sb, "Book: %s\n", r.BookTitle)
		}
		if r.Author != "" {
			fmt.Fprintf(&sb, "Author: %s\n", r.Author)
		}
		if r.Page != "" {
			fmt.Fprintf(&sb, "Page: %s\n", r.Page)
		}
		fmt.Fprintf(&sb, "Question: %s\nAnswer: %s", r.Question, r.Answer)
		parts = append(parts, sb.String())
	}
	return strings.Join(parts, "\n\n")
}

// isTransient reports whether an API error is worth retrying: rate limits,
// server-side errors and plain network failures.
func isTransient(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	// Anything that is not a typed API response (timeouts, connection
	// resets) counts as transient, except caller cancellation.
	return !errors.Is(err, context.Canceled)
}

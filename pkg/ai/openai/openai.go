package openai

import (
	"sync"
	"time"

	"github.com/chronicler-ai/chronicler/pkg/ai"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// OpenAIClient implements ai.Client against any OpenAI-compatible endpoint.
// It manages separate clients for embeddings and chat/completion tasks and
// rate-limits outgoing requests.
//
// An OpenAIClient should be created using NewOpenAIClient.
type OpenAIClient struct {
	chatModel      string
	embeddingModel string

	chatURL      string
	chatKey      string
	embeddingURL string
	embeddingKey string

	timeout       time.Duration
	limiter       *rate.Limiter
	embeddingLock *semaphore.Weighted

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	ChatClient      *openai.Client
	EmbeddingClient *openai.Client
}

// NewOpenAIClientParams defines the configuration for creating an
// OpenAIClient.
//
// ChatModel is used for completions and structured output; EmbeddingModel
// for embeddings. RequestTimeout bounds each request; RequestsPerMinute
// rate-limits the chat endpoint (0 disables limiting).
type NewOpenAIClientParams struct {
	ChatModel      string
	EmbeddingModel string

	ChatURL      string
	ChatKey      string
	EmbeddingURL string
	EmbeddingKey string

	RequestTimeout          time.Duration
	RequestsPerMinute       int
	MaxConcurrentEmbeddings int64
}

// NewOpenAIClient creates an OpenAIClient configured with the provided
// parameters. It initializes separate clients for embeddings and
// chat/completion tasks.
func NewOpenAIClient(params NewOpenAIClientParams) *OpenAIClient {
	chatClient := newOpenaiClient(params.ChatURL, params.ChatKey)
	embedClient := newOpenaiClient(params.EmbeddingURL, params.EmbeddingKey)

	timeout := params.RequestTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if params.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(params.RequestsPerMinute)/60.0), params.RequestsPerMinute)
	}

	maxEmbeds := params.MaxConcurrentEmbeddings
	if maxEmbeds <= 0 {
		maxEmbeds = 4
	}

	return &OpenAIClient{
		chatModel:      params.ChatModel,
		embeddingModel: params.EmbeddingModel,

		chatURL:      params.ChatURL,
		chatKey:      params.ChatKey,
		embeddingURL: params.EmbeddingURL,
		embeddingKey: params.EmbeddingKey,

		timeout:       timeout,
		limiter:       limiter,
		embeddingLock: semaphore.NewWeighted(maxEmbeds),

		metricsLock: sync.Mutex{},
		metrics:     ai.ModelMetrics{},

		ChatClient:      chatClient,
		EmbeddingClient: embedClient,
	}
}

func newOpenaiClient(
	baseURL string,
	apiKey string,
) *openai.Client {
	if apiKey == "" {
		return nil
	}
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}

	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(options...)

	return &client
}

// ResetMetrics clears all accumulated token and timing metrics to zero.
func (c *OpenAIClient) ResetMetrics() {
	c.metricsLock.Lock()
	c.metrics = ai.ModelMetrics{}
	c.metricsLock.Unlock()
}

// GetMetrics returns the accumulated token usage and timing metrics since
// the last reset.
func (c *OpenAIClient) GetMetrics() ai.ModelMetrics {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	return c.metrics
}

func (c *OpenAIClient) modifyMetrics(m ai.ModelMetrics) {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()

	c.metrics.InputTokens += m.InputTokens
	c.metrics.OutputTokens += m.OutputTokens
	c.metrics.TotalTokens += m.TotalTokens
	c.metrics.DurationMs += m.DurationMs
}

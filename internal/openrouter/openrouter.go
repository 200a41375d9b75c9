package openrouter

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/chriskillpack/glance/describer"

	oagc "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	DefaultBaseURL = "https://openrouter.ai/api/v1/"
	DefaultModel   = "qwen/qwen2.5-vl-72b-instruct:free"

	// Free tier allowance.
	defaultRate = 20
)

type Options struct {
	APIKey  string
	BaseURL string // if empty uses DefaultBaseURL
	Model   string // if empty uses DefaultModel
	Prompt  string // if empty uses describer.Prompt

	// Requests per minute. Zero uses the free tier default, negative disables
	// rate limiting.
	RateLimit int

	// Sent as HTTP-Referer and X-Title so requests are attributed to the app
	// in the OpenRouter dashboard. Optional.
	Referer string
	Title   string

	HttpClient *http.Client // if nil uses http.DefaultClient
}

type openrouter struct {
	oac    *oagc.Client
	model  string
	prompt string
	rl     *rateLimiter
}

var _ describer.Describer = &openrouter{}

func Init(o Options) (*openrouter, error) {
	if o.APIKey == "" {
		return nil, errors.New("openrouter: missing API key")
	}

	httpClient := o.HttpClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	baseURL := cmp.Or(o.BaseURL, DefaultBaseURL)
	// The SDK resolves endpoint paths relative to the base URL, which drops
	// the last path segment unless it ends in a slash.
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	rate := o.RateLimit
	if rate == 0 {
		rate = defaultRate
	}

	opts := []option.RequestOption{
		option.WithBaseURL(baseURL),
		option.WithAPIKey(o.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	}
	if o.Referer != "" {
		opts = append(opts, option.WithHeader("HTTP-Referer", o.Referer))
	}
	if o.Title != "" {
		opts = append(opts, option.WithHeader("X-Title", o.Title))
	}

	return &openrouter{
		oac:    oagc.NewClient(opts...),
		model:  cmp.Or(o.Model, DefaultModel),
		prompt: cmp.Or(o.Prompt, describer.Prompt),
		rl:     newRateLimiter(rate, time.Minute),
	}, nil
}

func (o *openrouter) Name() string { return "openrouter" }

func (o *openrouter) Model() string { return o.model }

func (o *openrouter) IsHealthy(ctx context.Context) bool {
	_, err := o.oac.Models.List(ctx)
	return err == nil
}

func (o *openrouter) DescribeImage(ctx context.Context, dataURL string) (string, error) {
	if err := o.rl.Acquire(ctx); err != nil {
		return "", err
	}

	params := oagc.ChatCompletionNewParams{
		Model: oagc.F(oagc.ChatModel(o.model)),
		Messages: oagc.F([]oagc.ChatCompletionMessageParamUnion{
			oagc.UserMessageParts(
				oagc.TextPart(o.prompt),
				oagc.ImagePart(dataURL),
			),
		}),
	}
	resp, err := o.oac.Chat.Completions.New(ctx, params)
	if err != nil {
		var apierr *oagc.Error
		if errors.As(err, &apierr) {
			return "", fmt.Errorf("status %d %s: %w", apierr.StatusCode, http.StatusText(apierr.StatusCode), err)
		}
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("response contained no choices")
	}

	return resp.Choices[0].Message.Content, nil
}

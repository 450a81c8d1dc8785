package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"commerce-agent/internal/errs"
	"commerce-agent/internal/util"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"go.uber.org/zap"
)

// Request defaults for Anthropic models on Bedrock
const (
	AnthropicVersion   = "bedrock-2023-05-31"
	DefaultMaxTokens   = 512
	DefaultTemperature = 0.7
)

// Bedrock streams completions from an Anthropic model on Amazon Bedrock
type Bedrock struct {
	client  *bedrockruntime.Client
	modelID string
	logger  *zap.Logger
}

// NewBedrock creates a Bedrock passthrough using the default AWS credential chain
func NewBedrock(ctx context.Context, region, modelID string) (*Bedrock, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &Bedrock{
		client:  bedrockruntime.NewFromConfig(cfg),
		modelID: modelID,
		logger:  util.GetLogger(),
	}, nil
}

func (b *Bedrock) Name() string {
	return "bedrock"
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type messagesRequest struct {
	AnthropicVersion string    `json:"anthropic_version"`
	Messages         []message `json:"messages"`
	MaxTokens        int       `json:"max_tokens"`
	Temperature      float64   `json:"temperature"`
}

type streamChunk struct {
	Type  string `json:"type"`
	Delta struct {
		Text string `json:"text"`
	} `json:"delta"`
}

func requestBody(prompt string) ([]byte, error) {
	return json.Marshal(messagesRequest{
		AnthropicVersion: AnthropicVersion,
		Messages: []message{{
			Role:    "user",
			Content: []contentBlock{{Type: "text", Text: prompt}},
		}},
		MaxTokens:   DefaultMaxTokens,
		Temperature: DefaultTemperature,
	})
}

func (b *Bedrock) Stream(ctx context.Context, prompt string, fn func(string) error) error {
	ctx, span := util.StartSpan(ctx, "Bedrock.Stream")
	defer span.End()

	start := time.Now()
	defer func() {
		util.UpstreamLatency.WithLabelValues("llm").Observe(time.Since(start).Seconds())
	}()

	body, err := requestBody(prompt)
	if err != nil {
		return err
	}

	out, err := b.client.InvokeModelWithResponseStream(ctx, &bedrockruntime.InvokeModelWithResponseStreamInput{
		ModelId:     aws.String(b.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		b.logger.Error("Bedrock invoke failed", zap.String("model", b.modelID), zap.Error(err))
		return fmt.Errorf("%w: bedrock invoke: %w", errs.ErrUpstream, err)
	}

	es := out.GetStream()
	defer es.Close()

	if err := forwardChunks(ctx, es.Events(), fn); err != nil {
		return err
	}
	if err := es.Err(); err != nil {
		return fmt.Errorf("%w: bedrock stream: %w", errs.ErrUpstream, err)
	}
	return nil
}

// forwardChunks passes the text of every content_block_delta chunk to fn.
// Chunks that are not valid JSON are skipped.
func forwardChunks(ctx context.Context, events <-chan types.ResponseStream, fn func(string) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			chunk, ok := ev.(*types.ResponseStreamMemberChunk)
			if !ok || len(chunk.Value.Bytes) == 0 {
				continue
			}
			var data streamChunk
			if err := json.Unmarshal(chunk.Value.Bytes, &data); err != nil {
				continue
			}
			if data.Type != "content_block_delta" || data.Delta.Text == "" {
				continue
			}
			if err := fn(data.Delta.Text); err != nil {
				return err
			}
		}
	}
}

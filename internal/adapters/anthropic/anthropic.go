// Package anthropic adapts the Anthropic Messages API into the
// message-generation capability. The prompt asks for a short, factual
// customer notification; anything the model returns is used verbatim as the
// message body with a generated subject line.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/domain/freight"
	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/domain/providers"
)

const (
	providerName    = "anthropic"
	defaultPriority = 10
	model           = anthropic.Model("claude-sonnet-4-5")
	maxTokens       = 512
)

const systemPrompt = "You write short delay notifications for freight customers. " +
	"Be factual and courteous, two to four sentences, no subject line, no placeholders, " +
	"no apologies beyond a single brief one."

// Generator implements providers.MessageGenerator.
type Generator struct {
	client    *anthropic.Client
	available bool
}

// New builds the adapter. With an empty API key the generator reports itself
// unavailable and the chain falls through.
func New(apiKey string) *Generator {
	if apiKey == "" {
		return &Generator{}
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &Generator{client: &client, available: true}
}

func (g *Generator) ProviderName() string           { return providerName }
func (g *Generator) Priority() int                  { return defaultPriority }
func (g *Generator) Available(context.Context) bool { return g.available }

// Generate asks the model for the notification body.
func (g *Generator) Generate(ctx context.Context, mctx providers.MessageContext) (providers.Message, error) {
	prompt := buildPrompt(mctx)

	resp, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     model,
		MaxTokens: maxTokens,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return providers.Message{}, freight.WrapE(err, freight.KindInfrastructure, "anthropic generate")
	}

	var body strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			body.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(body.String())
	if text == "" {
		return providers.Message{}, freight.E(freight.KindInfrastructure, "anthropic returned no text")
	}

	return providers.Message{
		Subject:    fmt.Sprintf("Delivery %s delayed by %d minutes", mctx.TrackingNumber, mctx.DelayMinutes),
		Body:       text,
		ModelName:  string(resp.Model),
		TokenCount: int(resp.Usage.OutputTokens),
	}, nil
}

func buildPrompt(mctx providers.MessageContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a delay notification for delivery %s", mctx.TrackingNumber)
	if mctx.CustomerName != "" {
		fmt.Fprintf(&b, " addressed to %s", mctx.CustomerName)
	}
	fmt.Fprintf(&b, ".\nRoute: %s to %s.\n", mctx.Origin, mctx.Destination)
	fmt.Fprintf(&b, "Traffic: %s, delay %d minutes.\n", mctx.Condition, mctx.DelayMinutes)
	fmt.Fprintf(&b, "Original arrival: %s.\nNew estimated arrival: %s.\n",
		mctx.OriginalArrival.Format("Mon, Jan 2 15:04 MST"),
		mctx.EstimatedArrival.Format("Mon, Jan 2 15:04 MST"))
	return b.String()
}

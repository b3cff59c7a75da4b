// Package llm asks Anthropic for a short executive summary of a weekly report.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"statuslink/internal/config"
	"statuslink/internal/domain"
	"statuslink/internal/httpx"
	"statuslink/internal/report"
)

const (
	maxItemsPerCategory = 40
	maxItemChars        = 300
	maxSummaryTokens    = 1024
)

var ErrNotConfigured = errors.New("anthropic_api_key is not set")

type Usage struct {
	InputTokens              int64
	OutputTokens             int64
	CacheCreationInputTokens int64
	CacheReadInputTokens     int64
}

func (u Usage) TotalTokens() int64 {
	return u.InputTokens + u.OutputTokens
}

const summarySystemPrompt = `You write weekly engineering status summaries for managers.
You get one application's work items grouped by category.
Reply with 3 to 6 short Markdown bullet points covering what shipped, what is in flight and what is blocked.
Do not invent work that is not listed. Do not add headings or a preamble.`

// callAnthropic is a variable so tests can stub the API.
var callAnthropic = func(ctx context.Context, apiKey, model, systemPrompt, userPrompt string) (string, Usage, error) {
	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httpx.Client()),
	)

	message, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxSummaryTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt, CacheControl: anthropic.NewCacheControlEphemeralParam()},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		log.Printf("llm anthropic error: %v", err)
		return "", Usage{}, fmt.Errorf("Anthropic API error: %w", err)
	}
	usage := Usage{
		InputTokens:              message.Usage.InputTokens,
		OutputTokens:             message.Usage.OutputTokens,
		CacheCreationInputTokens: message.Usage.CacheCreationInputTokens,
		CacheReadInputTokens:     message.Usage.CacheReadInputTokens,
	}
	for _, block := range message.Content {
		if block.Type == "text" {
			log.Printf("llm anthropic response size=%d tokens_in=%d tokens_out=%d cache_create=%d cache_read=%d", len(block.Text), usage.InputTokens, usage.OutputTokens, usage.CacheCreationInputTokens, usage.CacheReadInputTokens)
			return block.Text, usage, nil
		}
	}
	return "", usage, fmt.Errorf("no text content in Anthropic response")
}

// SummarizeWeekly returns a Markdown bullet summary of reports. A report with
// no items is summarized locally without calling the API.
func SummarizeWeekly(ctx context.Context, cfg config.Config, app string, reports []domain.CategorizedReport) (string, Usage, error) {
	userPrompt, items := buildSummaryPrompt(app, reports)
	if items == 0 {
		return fmt.Sprintf("- No tracked work for %s this week.", app), Usage{}, nil
	}
	if !cfg.LLMConfigured() {
		return "", Usage{}, ErrNotConfigured
	}
	text, usage, err := callAnthropic(ctx, cfg.AnthropicAPIKey, cfg.LLMModel, summarySystemPrompt, userPrompt)
	if err != nil {
		return "", usage, err
	}
	return cleanSummary(text), usage, nil
}

// buildSummaryPrompt lists the items of every non-empty category as plain
// text. It returns the prompt and the number of items it contains.
func buildSummaryPrompt(app string, reports []domain.CategorizedReport) (string, int) {
	var b strings.Builder
	fmt.Fprintf(&b, "Application: %s\n", app)
	count := 0
	for _, r := range reports {
		if len(r.Items) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n## %s (%d)\n", r.Category, len(r.Items))
		for i, item := range r.Items {
			if i == maxItemsPerCategory {
				fmt.Fprintf(&b, "- ... %d more\n", len(r.Items)-maxItemsPerCategory)
				break
			}
			text := report.InlineText(item.Content)
			if runes := []rune(text); len(runes) > maxItemChars {
				text = string(runes[:maxItemChars]) + "..."
			}
			fmt.Fprintf(&b, "- %s\n", text)
			count++
		}
	}
	return b.String(), count
}

func cleanSummary(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```markdown")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	return strings.TrimSpace(text)
}

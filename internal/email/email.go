// Package email writes the notice sent to a driver when a violation is
// recorded. A live text-generation backend is preferred; a fixed template is
// used whenever it is missing, slow or failing.
package email

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
)

const (
	timestampLayout = "2006-01-02 15:04"
	dateLayout      = "2006-01-02"
)

var ErrEmptyCompletion = errors.New("empty completion")

// Notice carries everything a violation email mentions.
type Notice struct {
	DriverName     string
	DriverEmail    string
	PlateNo        string
	ViolationLabel string
	Points         float64
	Timestamp      time.Time
	ExpiryDate     time.Time
	PenaltyAmount  float64
}

type Generator interface {
	Generate(ctx context.Context, n Notice) (string, error)
}

// ChatGenerator asks an OpenAI-compatible chat completion endpoint to write
// the email body.
type ChatGenerator struct {
	client *openai.Client
	model  string
}

func NewChatGenerator(apiKey, baseURL, model string) *ChatGenerator {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &ChatGenerator{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func (g *ChatGenerator) Generate(ctx context.Context, n Notice) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "You are a helpful traffic safety assistant."},
			{Role: openai.ChatMessageRoleUser, Content: prompt(n)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyCompletion
	}
	return resp.Choices[0].Message.Content, nil
}

func prompt(n Notice) string {
	var b strings.Builder
	b.WriteString("You are the GoodRoad Traffic Enforcement assistant.\n")
	b.WriteString("Write a formal email body to a driver.\n\n")
	fmt.Fprintf(&b, "Driver Name: %s\n", n.DriverName)
	fmt.Fprintf(&b, "Vehicle No: %s\n", n.PlateNo)
	fmt.Fprintf(&b, "Violation Type: %s\n", n.ViolationLabel)
	fmt.Fprintf(&b, "Date/Time: %s\n", n.Timestamp.Format(timestampLayout))
	fmt.Fprintf(&b, "Added Points: %s\n", formatPoints(n.Points))
	fmt.Fprintf(&b, "Expiry Date: %s\n\n", n.ExpiryDate.Format(dateLayout))
	fmt.Fprintf(&b, "Start with \"Dear %s,\". State that a violation was detected, ", n.DriverName)
	b.WriteString("name the violation and the points added, say when the points expire, ")
	fmt.Fprintf(&b, "give one short safety tip about %s, ", n.ViolationLabel)
	b.WriteString("and end with \"Safe Driving, GoodRoad Enforcement Team\". Keep it concise.")
	return b.String()
}

// TemplateGenerator renders a fixed notice. It never fails.
type TemplateGenerator struct {
	Currency string
}

func (t TemplateGenerator) Generate(_ context.Context, n Notice) (string, error) {
	return t.Render(n), nil
}

func (t TemplateGenerator) Render(n Notice) string {
	currency := t.Currency
	if currency == "" {
		currency = "LKR"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n", n.DriverName)
	b.WriteString("A traffic violation has been recorded against your vehicle.\n\n")
	fmt.Fprintf(&b, "Vehicle No: %s\n", n.PlateNo)
	fmt.Fprintf(&b, "Violation Type: %s\n", n.ViolationLabel)
	fmt.Fprintf(&b, "Date/Time: %s\n", n.Timestamp.Format(timestampLayout))
	fmt.Fprintf(&b, "Points Added: %s\n", formatPoints(n.Points))
	if n.PenaltyAmount > 0 {
		fmt.Fprintf(&b, "Penalty: %s %s\n", currency, humanize.Commaf(n.PenaltyAmount))
	}
	fmt.Fprintf(&b, "Expiry Date: %s\n\n", n.ExpiryDate.Format(dateLayout))
	b.WriteString("Safe Driving,\nGoodRoad Enforcement Team\n")
	return b.String()
}

func formatPoints(p float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", p), "0"), ".")
}

// Composer tries the live generator first and substitutes the template on
// any error or timeout.
type Composer struct {
	live     Generator
	template TemplateGenerator
	timeout  time.Duration
	log      zerolog.Logger
}

// NewComposer accepts a nil live generator, in which case every notice comes
// from the template.
func NewComposer(live Generator, template TemplateGenerator, timeout time.Duration, log zerolog.Logger) *Composer {
	return &Composer{
		live:     live,
		template: template,
		timeout:  timeout,
		log:      log,
	}
}

func (c *Composer) Compose(ctx context.Context, n Notice) (string, bool) {
	if c.live == nil {
		return c.template.Render(n), true
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	text, err := c.live.Generate(ctx, n)
	if err != nil {
		c.log.Warn().
			Err(err).
			Str("plate", n.PlateNo).
			Msg("email generation failed, using template")
		return c.template.Render(n), true
	}
	return text, false
}

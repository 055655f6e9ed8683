// Package ai implements the conversational model adapters on the OpenAI
// chat completions API.
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/quietline/quietline/pkg/screen"
)

const (
	defaultModel = openai.GPT4oMini

	generateMaxTokens = 200
	summaryMaxTokens  = 300

	shortenPrompt = "Shorten the following reply so it can be spoken in a few seconds. Keep the meaning, drop everything else. Reply with the shortened text only."
	summaryPrompt = "Summarize this screened phone call in two or three sentences for the person who missed it. Mention who called and what they wanted if known."
	analyzePrompt = `Classify this screened phone call. Respond with a JSON object with exactly these keys: "sentiment" (positive|neutral|negative), "urgency" (low|medium|high), "action_required" (boolean), "follow_up_needed" (boolean).`
)

// client is the slice of the OpenAI SDK we call, split out so tests can
// substitute a fake.
type client interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAI serves both the in-call assistant surface (Generate, Shorten) and
// the post-call surface (Summarize, Analyze).
type OpenAI struct {
	client client
	model  string
}

func NewOpenAI(apiKey string) *OpenAI {
	return &OpenAI{client: openai.NewClient(apiKey), model: defaultModel}
}

func NewOpenAIWithClient(c client, model string) *OpenAI {
	if model == "" {
		model = defaultModel
	}
	return &OpenAI{client: c, model: model}
}

// Generate produces the next spoken reply from a bounded conversation
// context.
func (o *OpenAI) Generate(ctx context.Context, c screen.Context) (string, error) {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt(c)},
	}
	for _, turn := range c.Turns {
		messages = append(messages,
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: turn.UserInput},
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: turn.AIResponse},
		)
	}
	if c.TranscriptTail != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: c.TranscriptTail,
		})
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     o.model,
		Messages:  messages,
		MaxTokens: generateMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", screen.ErrGeneration, err)
	}
	text := firstChoice(resp)
	if text == "" {
		return "", fmt.Errorf("%w: empty completion", screen.ErrGeneration)
	}
	return text, nil
}

// Shorten asks the model for a compressed version of an over-long reply.
func (o *OpenAI) Shorten(ctx context.Context, text string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: shortenPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		MaxTokens: generateMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", screen.ErrGeneration, err)
	}
	return firstChoice(resp), nil
}

// Summarize condenses a full call transcript.
func (o *OpenAI) Summarize(ctx context.Context, transcript []screen.TranscriptEvent) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: summaryPrompt},
			{Role: openai.ChatMessageRoleUser, Content: renderTranscript(transcript)},
		},
		MaxTokens: summaryMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", screen.ErrGeneration, err)
	}
	summary := firstChoice(resp)
	if summary == "" {
		return "", fmt.Errorf("%w: empty summary", screen.ErrGeneration)
	}
	return summary, nil
}

// Analyze classifies the call. Malformed model output is an error; the
// finalizer substitutes defaults.
func (o *OpenAI) Analyze(ctx context.Context, transcript []screen.TranscriptEvent) (screen.Analysis, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: analyzePrompt},
			{Role: openai.ChatMessageRoleUser, Content: renderTranscript(transcript)},
		},
		MaxTokens: generateMaxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return screen.Analysis{}, fmt.Errorf("%w: %v", screen.ErrGeneration, err)
	}

	var parsed struct {
		Sentiment      string `json:"sentiment"`
		Urgency        string `json:"urgency"`
		ActionRequired bool   `json:"action_required"`
		FollowUpNeeded bool   `json:"follow_up_needed"`
	}
	if err := json.Unmarshal([]byte(firstChoice(resp)), &parsed); err != nil {
		return screen.Analysis{}, fmt.Errorf("%w: malformed analysis: %v", screen.ErrGeneration, err)
	}
	return screen.Analysis{
		Sentiment:      screen.Sentiment(strings.ToLower(parsed.Sentiment)),
		Urgency:        screen.Urgency(strings.ToLower(parsed.Urgency)),
		ActionRequired: parsed.ActionRequired,
		FollowUpNeeded: parsed.FollowUpNeeded,
	}, nil
}

func systemPrompt(c screen.Context) string {
	base := strings.TrimSpace(c.Instructions)
	if base == "" {
		base = "You are screening a phone call on the user's behalf. Be brief, polite, and find out who is calling and why. Speak plain sentences with no markup."
	}
	if c.CallerNumber != "" {
		base += "\nThe caller's number is " + c.CallerNumber + "."
	}
	return base
}

func firstChoice(resp openai.ChatCompletionResponse) string {
	if len(resp.Choices) == 0 {
		return ""
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content)
}

func renderTranscript(transcript []screen.TranscriptEvent) string {
	var b strings.Builder
	for _, ev := range transcript {
		if !ev.IsFinal || strings.TrimSpace(ev.Text) == "" {
			continue
		}
		label := "Caller"
		if ev.Speaker == screen.SpeakerAssistant {
			label = "Assistant"
		}
		fmt.Fprintf(&b, "%s: %s\n", label, ev.Text)
	}
	return b.String()
}

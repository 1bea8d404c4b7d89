package adapters

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"parley/internal/workflow"
)

// GeminiClient is the text-generation collaborator. It backs both the agent
// responders and the personalized email composer.
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient creates a Gemini-backed text generator.
func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if model == "" {
		model = "gemini-1.5-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiClient{client: client, model: model}, nil
}

// Ask sends one prompt under the given system instructions and returns the
// model's text.
func (g *GeminiClient) Ask(ctx context.Context, system, prompt string) (string, error) {
	config := &genai.GenerateContentConfig{}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	result, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), config)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	text := result.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("gemini returned empty response")
	}
	return text, nil
}

// GeminiComposer writes personalized outreach emails with the full proposal
// context. Parse failures surface as errors so the generator's template
// fallback kicks in.
type GeminiComposer struct {
	Client *GeminiClient
}

const composerSystemPrompt = "You are a professional email writer for development proposal consultations. Generate clear, personalized emails."

// Compose implements workflow.Composer.
func (c GeminiComposer) Compose(ctx context.Context, req workflow.ComposeRequest) (string, string, error) {
	if c.Client == nil {
		return "", "", fmt.Errorf("gemini client not configured")
	}
	expertise := req.RecipientContext
	if expertise == "" {
		expertise = req.RecipientRole
	}
	prompt := fmt.Sprintf(`You are writing a professional consultation request email for a development project.

PROJECT DETAILS:
Title: %s
Location: %s

SUSTAINABILITY ANALYSIS:
%s

INDIGENOUS PERSPECTIVES:
%s

RECIPIENT INFORMATION:
- Role/Title: %s
- Area of Expertise: %s
- Email: %s

INSTRUCTIONS:
Write a personalized, professional email: a specific subject mentioning the project location and their expertise, a warm greeting by role, why their expertise matters for this project, 2-3 concrete questions you need input on, and a proposal for a 30-minute consultation.

Format your response exactly as:
SUBJECT: [specific subject line]
BODY: [complete email body]`,
		req.ProposalTitle, req.Location, req.SustainabilityContext, req.IndigenousContext,
		req.RecipientRole, expertise, req.RecipientAddress)

	text, err := c.Client.Ask(ctx, composerSystemPrompt, prompt)
	if err != nil {
		return "", "", err
	}
	return parseComposedEmail(text)
}

// parseComposedEmail splits a SUBJECT:/BODY: formatted response; as a second
// chance it treats the first line as the subject.
func parseComposedEmail(text string) (string, string, error) {
	if strings.Contains(text, "SUBJECT:") && strings.Contains(text, "BODY:") {
		afterSubject := strings.SplitN(text, "SUBJECT:", 2)[1]
		parts := strings.SplitN(afterSubject, "BODY:", 2)
		subject := strings.TrimSpace(strings.SplitN(parts[0], "\n", 2)[0])
		body := strings.TrimSpace(parts[1])
		if subject != "" && body != "" {
			return subject, body, nil
		}
	}
	lines := strings.SplitN(strings.TrimSpace(text), "\n", 2)
	if len(lines) == 2 {
		subject := strings.TrimSpace(lines[0])
		body := strings.TrimSpace(lines[1])
		if subject != "" && body != "" {
			return subject, body, nil
		}
	}
	return "", "", fmt.Errorf("unparsable email response")
}

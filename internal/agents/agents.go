// Package agents holds the specialized assistants requests are routed to.
// The set is closed: sustainability analysis, indigenous-context
// consultation, and proposal-workflow guidance. Each variant keeps its own
// conversational memory and satisfies the same narrow Responder interface;
// when no text generator is wired (or it fails) a deterministic local
// fallback answers instead, so Respond is total.
package agents

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"parley/internal/domain"
)

// TextGenerator is the text-generation collaborator: one prompt in, text
// out. May fail; callers must tolerate that.
type TextGenerator interface {
	Ask(ctx context.Context, system, prompt string) (string, error)
}

// Responder answers one message with optional extra context.
type Responder interface {
	Name() string
	Respond(ctx context.Context, message, contextText string) string
	History() []domain.Message
}

type core struct {
	name   string
	prompt string
	gen    TextGenerator

	mu      sync.Mutex
	history []domain.Message
	now     func() time.Time
}

func newCore(name, prompt string, gen TextGenerator) core {
	return core{name: name, prompt: prompt, gen: gen, now: time.Now}
}

func (c *core) Name() string { return c.name }

// History returns a copy of the conversational memory.
func (c *core) History() []domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Message, len(c.history))
	copy(out, c.history)
	return out
}

func (c *core) record(role, content string) {
	c.history = append(c.history, domain.Message{
		Role:      role,
		Content:   content,
		Timestamp: c.now().UTC().Format(time.RFC3339),
	})
}

func (c *core) historyText() string {
	if len(c.history) == 0 {
		return "(no prior messages)"
	}
	var b strings.Builder
	start := 0
	if len(c.history) > 10 {
		start = len(c.history) - 10
	}
	for _, m := range c.history[start:] {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	return b.String()
}

// respond runs the shared ask-with-fallback flow under the agent lock so
// history stays consistent.
func (c *core) respond(ctx context.Context, message, contextText string, fallback func(message, contextText string) string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	contextLine := "Context: none provided"
	if contextText != "" {
		contextLine = "Context: " + contextText
	}
	prompt := strings.Join([]string{
		contextLine,
		"User request: " + message,
		"Conversation so far:",
		c.historyText(),
	}, "\n\n")

	c.record("user", message)

	var answer string
	if c.gen != nil {
		if text, err := c.gen.Ask(ctx, c.prompt, prompt); err == nil {
			answer = strings.TrimSpace(text)
		}
	}
	if answer == "" {
		answer = fallback(message, contextText)
	}
	c.record("assistant", answer)
	return answer
}

// SustainabilityAgent analyzes land use and proposes sustainable redesigns.
type SustainabilityAgent struct{ core }

// NewSustainability wires the sustainability variant.
func NewSustainability(prompt string, gen TextGenerator) *SustainabilityAgent {
	if prompt == "" {
		prompt = "You are an expert in sustainable land design that respects indigenous practices."
	}
	return &SustainabilityAgent{core: newCore("sustainability", prompt, gen)}
}

func (a *SustainabilityAgent) Respond(ctx context.Context, message, contextText string) string {
	return a.respond(ctx, message, contextText, func(message, contextText string) string {
		focus := contextText
		if focus == "" {
			focus = "the proposed site"
		}
		return fmt.Sprintf("Sustainability review (offline): for %s, prioritize water systems, native biodiversity, and low-impact siting. Request: %s", focus, message)
	})
}

// IndigenousContextAgent provides consultation-protocol and land-stewardship
// context.
type IndigenousContextAgent struct{ core }

// NewIndigenousContext wires the indigenous-context variant.
func NewIndigenousContext(prompt string, gen TextGenerator) *IndigenousContextAgent {
	if prompt == "" {
		prompt = "You provide context on Indigenous land stewardship, consultation protocols, and treaty obligations."
	}
	return &IndigenousContextAgent{core: newCore("indigenous", prompt, gen)}
}

func (a *IndigenousContextAgent) Respond(ctx context.Context, message, contextText string) string {
	return a.respond(ctx, message, contextText, func(message, contextText string) string {
		focus := contextText
		if focus == "" {
			focus = "this territory"
		}
		return fmt.Sprintf("Indigenous-context review (offline): consultation for %s should begin with the recognized nations and follow their protocols before any commitments. Request: %s", focus, message)
	})
}

// ProposalWorkflowAgent guides the outreach workflow itself.
type ProposalWorkflowAgent struct{ core }

// NewProposalWorkflow wires the proposal-workflow variant.
func NewProposalWorkflow(prompt string, gen TextGenerator) *ProposalWorkflowAgent {
	if prompt == "" {
		prompt = "You manage proposal outreach workflows: stakeholders, consultation emails, and meeting scheduling."
	}
	return &ProposalWorkflowAgent{core: newCore("proposal", prompt, gen)}
}

func (a *ProposalWorkflowAgent) Respond(ctx context.Context, message, contextText string) string {
	return a.respond(ctx, message, contextText, func(message, contextText string) string {
		return fmt.Sprintf("Workflow guidance (offline): add stakeholders with 'add [Role] at [email]', then request an outreach action and approve it to execute. Request: %s", message)
	})
}

// Registry is the fixed name -> agent lookup used by the API and CLI.
type Registry struct {
	agents map[string]Responder
	names  []string
}

// NewRegistry builds the closed agent set. prompts may override the default
// system prompt per agent name.
func NewRegistry(gen TextGenerator, prompts map[string]string) *Registry {
	get := func(name string) string { return prompts[name] }
	list := []Responder{
		NewSustainability(get("sustainability"), gen),
		NewIndigenousContext(get("indigenous"), gen),
		NewProposalWorkflow(get("proposal"), gen),
	}
	r := &Registry{agents: make(map[string]Responder, len(list))}
	for _, a := range list {
		r.agents[a.Name()] = a
		r.names = append(r.names, a.Name())
	}
	return r
}

// Lookup returns the named agent.
func (r *Registry) Lookup(name string) (Responder, bool) {
	a, ok := r.agents[name]
	return a, ok
}

// Names lists the available agents in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

package agents

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type scriptedGenerator struct {
	answer  string
	err     error
	prompts []string
	systems []string
}

func (g *scriptedGenerator) Ask(_ context.Context, system, prompt string) (string, error) {
	g.systems = append(g.systems, system)
	g.prompts = append(g.prompts, prompt)
	return g.answer, g.err
}

func TestRespondUsesGenerator(t *testing.T) {
	gen := &scriptedGenerator{answer: "Consider rainwater catchment."}
	agent := NewSustainability("", gen)
	got := agent.Respond(context.Background(), "How should we handle water?", "riverside site")
	if got != "Consider rainwater catchment." {
		t.Fatalf("unexpected answer %q", got)
	}
	if len(gen.prompts) != 1 {
		t.Fatalf("expected 1 generator call, got %d", len(gen.prompts))
	}
	if !strings.Contains(gen.prompts[0], "Context: riverside site") {
		t.Fatalf("context missing from prompt:\n%s", gen.prompts[0])
	}
	if !strings.Contains(gen.prompts[0], "User request: How should we handle water?") {
		t.Fatalf("request missing from prompt:\n%s", gen.prompts[0])
	}
}

func TestRespondFallsBackWithoutGenerator(t *testing.T) {
	agent := NewSustainability("", nil)
	got := agent.Respond(context.Background(), "assess the site", "")
	if !strings.Contains(got, "Sustainability review (offline)") {
		t.Fatalf("expected offline fallback, got %q", got)
	}
	if !strings.Contains(got, "assess the site") {
		t.Fatalf("fallback should echo the request, got %q", got)
	}
}

func TestRespondFallsBackOnGeneratorError(t *testing.T) {
	gen := &scriptedGenerator{err: errors.New("quota exceeded")}
	agent := NewIndigenousContext("", gen)
	got := agent.Respond(context.Background(), "consultation steps?", "Squamish territory")
	if !strings.Contains(got, "Indigenous-context review (offline)") {
		t.Fatalf("expected offline fallback, got %q", got)
	}
	if !strings.Contains(got, "Squamish territory") {
		t.Fatalf("fallback should use the context, got %q", got)
	}
}

func TestHistoryRecordsBothSides(t *testing.T) {
	agent := NewProposalWorkflow("", nil)
	agent.Respond(context.Background(), "first question", "")
	agent.Respond(context.Background(), "second question", "")

	history := agent.History()
	if len(history) != 4 {
		t.Fatalf("expected 4 history entries, got %d", len(history))
	}
	if history[0].Role != "user" || history[0].Content != "first question" {
		t.Fatalf("unexpected first entry %+v", history[0])
	}
	if history[1].Role != "assistant" {
		t.Fatalf("expected assistant entry, got %+v", history[1])
	}
}

func TestPriorHistoryReachesGenerator(t *testing.T) {
	gen := &scriptedGenerator{answer: "ok"}
	agent := NewProposalWorkflow("", gen)
	agent.Respond(context.Background(), "first question", "")
	agent.Respond(context.Background(), "second question", "")

	if len(gen.prompts) != 2 {
		t.Fatalf("expected 2 generator calls, got %d", len(gen.prompts))
	}
	if !strings.Contains(gen.prompts[1], "user: first question") {
		t.Fatalf("prior turn missing from second prompt:\n%s", gen.prompts[1])
	}
}

func TestCustomPromptOverridesDefault(t *testing.T) {
	gen := &scriptedGenerator{answer: "ok"}
	agent := NewSustainability("You only talk about wetlands.", gen)
	agent.Respond(context.Background(), "hello", "")
	if gen.systems[0] != "You only talk about wetlands." {
		t.Fatalf("custom prompt not used: %q", gen.systems[0])
	}
}

func TestRegistryClosedSet(t *testing.T) {
	r := NewRegistry(nil, nil)
	names := r.Names()
	want := []string{"sustainability", "indigenous", "proposal"}
	if len(names) != len(want) {
		t.Fatalf("expected %d agents, got %v", len(want), names)
	}
	for i, name := range want {
		if names[i] != name {
			t.Fatalf("names[%d]: expected %s, got %s", i, name, names[i])
		}
		if _, ok := r.Lookup(name); !ok {
			t.Fatalf("lookup %s failed", name)
		}
	}
	if _, ok := r.Lookup("astrology"); ok {
		t.Fatal("unknown agent must not resolve")
	}
}

package provider

import (
	"context"
	"sort"
	"testing"
)

type stubAdapter struct{ name string }

func (s *stubAdapter) Name() string { return s.name }

func (s *stubAdapter) ListConversations(ctx context.Context, apiKey string, opts ListOptions) ([]ConversationSummary, error) {
	return nil, nil
}

func (s *stubAdapter) FetchConversation(ctx context.Context, apiKey, id string) (*ConversationDetail, error) {
	return &ConversationDetail{ProviderConversationID: id}, nil
}

func (s *stubAdapter) FetchArtifacts(ctx context.Context, apiKey string, detail *ConversationDetail) ([]ArtifactDescriptor, error) {
	return nil, nil
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubAdapter{name: "OpenAI"})
	r.Register(&stubAdapter{name: "anthropic"})

	// lookup is case-insensitive
	a, err := r.Get("openai")
	if err != nil {
		t.Fatalf("get openai: %v", err)
	}
	if a.Name() != "OpenAI" {
		t.Fatalf("unexpected adapter: %s", a.Name())
	}

	if _, err := r.Get("gemini"); err == nil {
		t.Fatalf("expected error for unregistered provider")
	}

	names := r.Names()
	sort.Strings(names)
	if len(names) != 2 || names[0] != "anthropic" || names[1] != "openai" {
		t.Fatalf("unexpected names: %v", names)
	}
}

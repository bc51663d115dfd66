package router

import (
	"context"
	"testing"

	"supportmesh/internal/a2a"
	"supportmesh/internal/directory"
)

func specialistEntry(url string) *directory.Entry {
	card := a2a.BuildCard(a2a.CardSpec{
		Name:    "data-specialist",
		URL:     url,
		Version: "1.0.0",
		Org:     "supportmesh",
		Skills:  []a2a.Skill{{ID: "record-lookup", Name: "Record Lookup"}},
	})
	return &directory.Entry{AgentID: "data-specialist", BaseURL: url, Card: card}
}

func TestDispatcherReusesClientForSameCard(t *testing.T) {
	t.Parallel()
	d := NewA2ADispatcher()
	defer d.Close()

	entry := specialistEntry("http://localhost:7342")
	first, err := d.client(context.Background(), entry)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	second, err := d.client(context.Background(), entry)
	if err != nil {
		t.Fatalf("client again: %v", err)
	}
	if first != second {
		t.Fatal("expected cached client to be reused for an unchanged card")
	}
}

func TestDispatcherRebuildsClientWhenCardMoves(t *testing.T) {
	t.Parallel()
	d := NewA2ADispatcher()
	defer d.Close()

	entry := specialistEntry("http://localhost:7342")
	first, err := d.client(context.Background(), entry)
	if err != nil {
		t.Fatalf("client: %v", err)
	}

	// A card refresh after the specialist restarts on a new port.
	moved := specialistEntry("http://localhost:9342")
	second, err := d.client(context.Background(), moved)
	if err != nil {
		t.Fatalf("client after move: %v", err)
	}
	if first == second {
		t.Fatal("expected a fresh client after the agent card changed endpoints")
	}

	third, err := d.client(context.Background(), moved)
	if err != nil {
		t.Fatalf("client after rebuild: %v", err)
	}
	if second != third {
		t.Fatal("expected the rebuilt client to be cached")
	}
}

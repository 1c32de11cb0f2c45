package devserver

import (
	"context"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreAgentCRUD(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	agent := &Agent{
		AgentID:      "a1",
		Name:         "helper",
		SystemPrompt: "be helpful",
		Model:        "llama3",
		CreatedAt:    time.Now().UTC(),
	}
	if err := store.CreateAgent(ctx, agent); err != nil {
		t.Fatalf("CreateAgent failed: %v", err)
	}

	got, err := store.GetAgent(ctx, "a1")
	if err != nil {
		t.Fatalf("GetAgent failed: %v", err)
	}
	if got == nil || got.Name != "helper" || got.Model != "llama3" {
		t.Fatalf("unexpected agent: %+v", got)
	}

	agent.Name = "renamed"
	ok, err := store.UpdateAgent(ctx, agent)
	if err != nil || !ok {
		t.Fatalf("UpdateAgent failed: ok=%v err=%v", ok, err)
	}
	got, _ = store.GetAgent(ctx, "a1")
	if got.Name != "renamed" {
		t.Fatalf("update not applied: %+v", got)
	}

	agents, err := store.ListAgents(ctx)
	if err != nil || len(agents) != 1 {
		t.Fatalf("ListAgents: %v (err %v)", agents, err)
	}

	ok, err = store.DeleteAgent(ctx, "a1")
	if err != nil || !ok {
		t.Fatalf("DeleteAgent failed: ok=%v err=%v", ok, err)
	}
	got, err = store.GetAgent(ctx, "a1")
	if err != nil || got != nil {
		t.Fatalf("agent still present after delete: %+v (err %v)", got, err)
	}
}

func TestStoreConversationsAndMessages(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	agent := &Agent{AgentID: "a1", Name: "helper", CreatedAt: time.Now().UTC()}
	if err := store.CreateAgent(ctx, agent); err != nil {
		t.Fatalf("CreateAgent failed: %v", err)
	}
	conv := &Conversation{ConversationID: "c1", AgentID: "a1", CreatedAt: time.Now().UTC()}
	if err := store.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	for i, row := range []struct{ id, role, content string }{
		{"m1", "user", "hello"},
		{"m2", "agent", "hi!"},
	} {
		msg := &StoredMessage{
			MessageID:      row.id,
			ConversationID: "c1",
			Role:           row.role,
			Content:        row.content,
			CreatedAt:      time.Now().UTC().Add(time.Duration(i) * time.Second),
		}
		if err := store.CreateMessage(ctx, msg); err != nil {
			t.Fatalf("CreateMessage failed: %v", err)
		}
	}

	convs, err := store.ListConversations(ctx, "a1")
	if err != nil || len(convs) != 1 {
		t.Fatalf("ListConversations: %v (err %v)", convs, err)
	}
	msgs, err := store.ListMessages(ctx, "c1")
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Role != "user" || msgs[1].Role != "agent" {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
}

func TestStoreChunkSearch(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	agent := &Agent{AgentID: "a1", Name: "helper", CreatedAt: time.Now().UTC()}
	if err := store.CreateAgent(ctx, agent); err != nil {
		t.Fatalf("CreateAgent failed: %v", err)
	}

	contents := []string{"gophers burrow underground", "ducks swim in ponds", "gophers eat roots"}
	for i, content := range contents {
		chunk := &Chunk{
			ChunkID:   "k" + string(rune('1'+i)),
			AgentID:   "a1",
			Source:    "animals.txt",
			Content:   content,
			CreatedAt: time.Now().UTC().Add(time.Duration(i) * time.Second),
		}
		if err := store.CreateChunk(ctx, chunk); err != nil {
			t.Fatalf("CreateChunk failed: %v", err)
		}
	}

	found, err := store.SearchChunks(ctx, "a1", "gophers", 10)
	if err != nil {
		t.Fatalf("SearchChunks failed: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(found))
	}

	limited, err := store.SearchChunks(ctx, "a1", "gophers", 1)
	if err != nil || len(limited) != 1 {
		t.Fatalf("limit ignored: %v (err %v)", limited, err)
	}

	ok, err := store.DeleteChunk(ctx, "a1", "k1")
	if err != nil || !ok {
		t.Fatalf("DeleteChunk failed: ok=%v err=%v", ok, err)
	}
	remaining, _ := store.ListChunks(ctx, "a1")
	if len(remaining) != 2 {
		t.Fatalf("expected 2 chunks after delete, got %d", len(remaining))
	}
}

func TestSplitChunks(t *testing.T) {
	if got := splitChunks("", 10); got != nil {
		t.Fatalf("empty input should yield no chunks: %v", got)
	}
	chunks := splitChunks("abcdefghij", 4)
	if len(chunks) != 3 || chunks[0] != "abcd" || chunks[2] != "ij" {
		t.Fatalf("unexpected chunks: %v", chunks)
	}
}

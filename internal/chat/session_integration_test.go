package chat_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ZahurZaidi/Bawaal/internal/auth"
	"github.com/ZahurZaidi/Bawaal/internal/chat"
	"github.com/ZahurZaidi/Bawaal/internal/devserver"
)

// startBackend brings up the development backend with one agent and
// returns its ws:// base URL.
func startBackend(t *testing.T, opts ...devserver.Option) (string, *devserver.Store, string) {
	t.Helper()
	store, err := devserver.NewStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	agent := &devserver.Agent{
		AgentID:   "a1",
		Name:      "helper",
		CreatedAt: time.Now().UTC(),
	}
	if err := store.CreateAgent(context.Background(), agent); err != nil {
		t.Fatalf("failed to create agent: %v", err)
	}

	ts := httptest.NewServer(devserver.New(store, opts...).Handler())
	t.Cleanup(ts.Close)

	return "ws" + strings.TrimPrefix(ts.URL, "http"), store, agent.AgentID
}

func TestSessionAgainstBackend(t *testing.T) {
	base, store, agentID := startBackend(t, devserver.WithToken("sekret"))

	session := chat.NewSession(agentID, chat.Options{
		ChatBaseURL: base,
		Tokens:      auth.Static("sekret"),
	})
	defer session.Disconnect()

	if err := session.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := session.Send("Hello there"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	var msgs []chat.Message
	for {
		msgs = session.Messages()
		if len(msgs) == 2 && msgs[1].Status == chat.StatusComplete {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("reply never finalized: %+v", msgs)
		}
		time.Sleep(5 * time.Millisecond)
	}

	if msgs[1].Content != "You said: Hello there" {
		t.Fatalf("unexpected reply: %q", msgs[1].Content)
	}
	if msgs[1].ID == "" {
		t.Fatal("finalized reply has no server-assigned id")
	}

	// The backend stored both sides of the turn.
	convs, err := store.ListConversations(context.Background(), agentID)
	if err != nil || len(convs) != 1 {
		t.Fatalf("expected 1 conversation, got %v (err %v)", convs, err)
	}
	stored, err := store.ListMessages(context.Background(), convs[0].ConversationID)
	if err != nil || len(stored) != 2 {
		t.Fatalf("expected 2 stored messages, got %v (err %v)", stored, err)
	}
	if stored[1].MessageID != msgs[1].ID {
		t.Fatalf("server id mismatch: stored %q, timeline %q", stored[1].MessageID, msgs[1].ID)
	}
}

func TestSessionRejectedToken(t *testing.T) {
	base, _, agentID := startBackend(t, devserver.WithToken("sekret"))

	session := chat.NewSession(agentID, chat.Options{
		ChatBaseURL:        base,
		Tokens:             auth.Static("wrong"),
		ReconnectBaseDelay: time.Hour,
	})
	defer session.Disconnect()

	if err := session.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	// The backend drops the socket with an application close code, which
	// counts as abnormal and arms the reconnect slot.
	deadline := time.Now().Add(5 * time.Second)
	for {
		snap := session.Snapshot()
		if snap.State == chat.StateDisconnected && snap.ReconnectPending {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected disconnect with pending reconnect, got %+v", snap)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

package chat

import (
	"testing"
	"time"
)

func TestTimelineAppendAndLookup(t *testing.T) {
	tl := NewTimeline()
	tl.Append(Message{ID: "u1", Role: RoleUser, Content: "hi", Status: StatusComplete, CreatedAt: time.Now()})
	tl.Append(Message{ID: "p1", Role: RoleAgent, Status: StatusStreaming, CreatedAt: time.Now()})

	if tl.Len() != 2 {
		t.Fatalf("expected 2 messages, got %d", tl.Len())
	}
	msg, ok := tl.ByID("u1")
	if !ok || msg.Content != "hi" {
		t.Fatalf("unexpected lookup result: %+v ok=%v", msg, ok)
	}
	streaming, ok := tl.Streaming()
	if !ok || streaming.ID != "p1" {
		t.Fatalf("expected p1 streaming, got %+v ok=%v", streaming, ok)
	}
}

func TestTimelineContentAccumulates(t *testing.T) {
	tl := NewTimeline()
	tl.Append(Message{ID: "p1", Role: RoleAgent, Status: StatusStreaming})

	for _, chunk := range []string{"Hel", "lo", ", world"} {
		if !tl.AppendContent(chunk) {
			t.Fatalf("AppendContent(%q) reported no streaming message", chunk)
		}
	}
	streaming, _ := tl.Streaming()
	if streaming.Content != "Hello, world" {
		t.Fatalf("unexpected content: %q", streaming.Content)
	}
}

func TestTimelineFinalizeReplacesID(t *testing.T) {
	tl := NewTimeline()
	tl.Append(Message{ID: "p1", Role: RoleAgent, Status: StatusStreaming})
	tl.AppendContent("done")

	if !tl.Finalize("m42") {
		t.Fatal("Finalize reported no streaming message")
	}
	if _, ok := tl.ByID("p1"); ok {
		t.Fatal("placeholder id still resolvable after finalize")
	}
	msg, ok := tl.ByID("m42")
	if !ok || msg.Status != StatusComplete || msg.Content != "done" {
		t.Fatalf("unexpected finalized message: %+v ok=%v", msg, ok)
	}
	if _, streaming := tl.Streaming(); streaming {
		t.Fatal("timeline still reports a streaming message")
	}
}

func TestTimelineFinalizedIsImmutable(t *testing.T) {
	tl := NewTimeline()
	tl.Append(Message{ID: "p1", Role: RoleAgent, Status: StatusStreaming})
	tl.AppendContent("final")
	tl.Finalize("m1")

	// Stray frames after the terminator must not mutate the message.
	if tl.AppendContent("stray") {
		t.Fatal("AppendContent mutated a finalized message")
	}
	if tl.Finalize("m2") {
		t.Fatal("Finalize re-finalized a completed message")
	}
	msg, _ := tl.ByID("m1")
	if msg.Content != "final" {
		t.Fatalf("finalized content changed: %q", msg.Content)
	}
}

func TestTimelineFailKeepsPartialContent(t *testing.T) {
	tl := NewTimeline()
	tl.Append(Message{ID: "p1", Role: RoleAgent, Status: StatusStreaming})
	tl.AppendContent("par")

	if !tl.Fail() {
		t.Fatal("Fail reported no streaming message")
	}
	msg, _ := tl.ByID("p1")
	if msg.Status != StatusErrored || msg.Content != "par" {
		t.Fatalf("unexpected errored message: %+v", msg)
	}
	if tl.AppendContent("tial") {
		t.Fatal("AppendContent mutated an errored message")
	}
}

func TestTimelineMessagesReturnsCopy(t *testing.T) {
	tl := NewTimeline()
	tl.Append(Message{ID: "u1", Role: RoleUser, Content: "hi", Status: StatusComplete})

	msgs := tl.Messages()
	msgs[0].Content = "mutated"

	fresh, _ := tl.ByID("u1")
	if fresh.Content != "hi" {
		t.Fatalf("timeline mutated through returned slice: %q", fresh.Content)
	}
}

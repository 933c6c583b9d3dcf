package bot

import (
	"testing"
	"time"
)

func TestConversationLifecycle(t *testing.T) {
	c := newConversations(time.Minute)

	c.begin(1, &conversation{state: stateUploadName, fileID: "x", fileSize: 10})
	conv, live := c.get(1)
	if !live || conv.state != stateUploadName {
		t.Fatalf("conversation not live after begin: live=%v conv=%+v", live, conv)
	}
	if conv, _ := c.get(2); conv != nil {
		t.Fatalf("no conversation expected for user 2")
	}

	taken, ok := c.take(1)
	if !ok || taken.fileID != "x" {
		t.Fatalf("take must return the conversation: ok=%v conv=%+v", ok, taken)
	}
	if conv, _ := c.get(1); conv != nil {
		t.Fatalf("conversation survived take")
	}
	if _, ok := c.take(1); ok {
		t.Fatalf("second take must report nothing to take")
	}

	c.begin(1, &conversation{state: stateSupportSubject})
	c.clear(1)
	if conv, _ := c.get(1); conv != nil {
		t.Fatalf("conversation survived clear")
	}
}

func TestConversationTimesOutOnAccess(t *testing.T) {
	c := newConversations(time.Minute)
	c.begin(1, &conversation{state: stateUploadName, fileSize: 100})
	c.m[1].startedAt = time.Now().Add(-2 * time.Minute)

	conv, live := c.get(1)
	if live {
		t.Fatalf("stale conversation reported live")
	}
	if conv == nil || conv.fileSize != 100 {
		t.Fatalf("stale conversation must be handed back for cleanup, got %+v", conv)
	}
	if _, held := c.m[1]; held {
		t.Fatalf("stale conversation must be deleted, not just hidden")
	}
}

func TestPurgeStale(t *testing.T) {
	c := newConversations(time.Minute)
	c.begin(1, &conversation{state: stateUploadName, fileSize: 50})
	c.begin(2, &conversation{state: stateSupportSubject})
	c.m[1].startedAt = time.Now().Add(-2 * time.Minute)

	stale := c.purgeStale(time.Now())
	if len(stale) != 1 {
		t.Fatalf("want 1 purged, got %d", len(stale))
	}
	if conv := stale[1]; conv == nil || conv.fileSize != 50 {
		t.Fatalf("purge must hand back the dropped conversation, got %+v", conv)
	}
	if _, live := c.get(2); !live {
		t.Fatalf("fresh conversation must survive the purge")
	}
}

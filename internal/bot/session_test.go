package bot

import "testing"

func TestSessionLifecycle(t *testing.T) {
	s := newSessions()

	if _, ok := s.id(7); ok {
		t.Fatal("fresh store reports an active session")
	}
	if got := s.start(7); got != "user_7" {
		t.Errorf("start = %q", got)
	}
	id, ok := s.id(7)
	if !ok || id != "user_7" {
		t.Errorf("id = %q/%v", id, ok)
	}
	if _, ok := s.id(8); ok {
		t.Error("another user inherited the session")
	}

	s.clear(7)
	if _, ok := s.id(7); ok {
		t.Error("session survived clear")
	}
}

func TestSessionAwaitingImage(t *testing.T) {
	s := newSessions()
	s.start(7)

	if _, waiting := s.pending(7); waiting {
		t.Fatal("new session is already awaiting an image")
	}

	s.markAwaiting(7, "docs/2026-01-sesc-metaverso", "section_2_before")
	p, waiting := s.pending(7)
	if !waiting || p.ProposalDir != "docs/2026-01-sesc-metaverso" || p.Position != "section_2_before" {
		t.Errorf("pending = %+v/%v", p, waiting)
	}

	s.clearAwaiting(7)
	if _, waiting := s.pending(7); waiting {
		t.Error("still awaiting after clearAwaiting")
	}

	// Restarting the session drops a stale wait.
	s.markAwaiting(7, "docs/x", "before_first_section")
	s.start(7)
	if _, waiting := s.pending(7); waiting {
		t.Error("restart kept the pending image")
	}
}

func TestMarkAwaitingWithoutSessionIsNoop(t *testing.T) {
	s := newSessions()
	s.markAwaiting(7, "docs/x", "before_first_section")
	if _, waiting := s.pending(7); waiting {
		t.Error("pending image without a session")
	}
}

package persona

import (
	"strings"
	"testing"
)

func TestSeedContainsRoomCast(t *testing.T) {
	store := NewMemoryStore(Seed())

	host, ok := store.FindByID(HostID)
	if !ok || host.Name != "MoMo" || host.Role != RoleHost {
		t.Fatalf("unexpected host persona: %+v", host)
	}
	if host.Fallback == "" || host.SystemPrompt == "" {
		t.Fatalf("host persona must carry a prompt and a fallback")
	}

	participant, ok := store.FindByID(ParticipantID)
	if !ok || participant.Name != "Morgan" {
		t.Fatalf("unexpected participant persona: %+v", participant)
	}

	if _, ok := store.FindByID("unknown"); ok {
		t.Fatalf("expected unknown persona lookup to fail")
	}
	if got := store.MustFind("ghost"); got.Name != "ghost" {
		t.Fatalf("MustFind should fall back to the id, got %+v", got)
	}
}

func TestListReturnsCopy(t *testing.T) {
	store := NewMemoryStore(Seed())
	items := store.List()
	items[0].Name = "changed"

	if store.List()[0].Name == "changed" {
		t.Fatal("List must not expose internal slice")
	}
}

func TestPromptForSubstitutesName(t *testing.T) {
	morgan := NewMemoryStore(Seed()).MustFind(ParticipantID)

	prompt := morgan.PromptFor("Jamie")
	if !strings.HasPrefix(prompt, "You are Jamie, ") {
		t.Fatalf("expected prompt to introduce Jamie, got %q", prompt[:40])
	}
	if morgan.PromptFor("") != morgan.SystemPrompt {
		t.Fatalf("blank name should keep the original prompt")
	}
}

package prompt

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

const sampleCard = `name: Daredevil
bio: Fearless sports companion.
adjectives: [bold, witty]
style:
  - Keep it short.
examples:
  - user: who won?
    reply: Verstappen, by a mile.
`

func writeCard(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "character.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write card: %v", err)
	}
	return path
}

func TestCardStoreLoads(t *testing.T) {
	path := writeCard(t, sampleCard)
	store := NewCardStore(path, zap.NewNop())

	card := store.Card()
	if card.Name != "Daredevil" {
		t.Errorf("name = %q", card.Name)
	}
	if card.Bio != "Fearless sports companion." {
		t.Errorf("bio = %q", card.Bio)
	}
	if len(card.Adjectives) != 2 || card.Adjectives[0] != "bold" {
		t.Errorf("adjectives = %v", card.Adjectives)
	}
	if len(card.Examples) != 1 || card.Examples[0].Reply != "Verstappen, by a mile." {
		t.Errorf("examples = %+v", card.Examples)
	}
	if store.Path() != path {
		t.Errorf("path = %q", store.Path())
	}
}

func TestSystemHeader(t *testing.T) {
	card := CharacterCard{Name: "Daredevil", Bio: "Fearless sports companion."}
	if got := card.SystemHeader(); got != "You are Daredevil. Fearless sports companion." {
		t.Errorf("SystemHeader = %q", got)
	}

	bare := CharacterCard{Name: "Matador"}
	if got := bare.SystemHeader(); got != "You are Matador." {
		t.Errorf("SystemHeader without bio = %q", got)
	}
}

func TestCardStoreMissingFileFallsBack(t *testing.T) {
	store := NewCardStore(filepath.Join(t.TempDir(), "absent.yaml"), zap.NewNop())
	if store.Card().Name != DefaultCard().Name {
		t.Errorf("card = %+v, want built-in default", store.Card())
	}
}

func TestCardStoreReloadKeepsOldOnError(t *testing.T) {
	path := writeCard(t, sampleCard)
	store := NewCardStore(path, zap.NewNop())

	if err := os.WriteFile(path, []byte(":\n  - not valid yaml: ["), 0o644); err != nil {
		t.Fatalf("overwrite card: %v", err)
	}
	if err := store.Reload(); err == nil {
		t.Fatal("expected reload error for malformed card")
	}
	if store.Card().Name != "Daredevil" {
		t.Errorf("card after failed reload = %q, want previous card kept", store.Card().Name)
	}
}

func TestCardStoreReloadRejectsNamelessCard(t *testing.T) {
	path := writeCard(t, sampleCard)
	store := NewCardStore(path, zap.NewNop())

	if err := os.WriteFile(path, []byte("bio: nobody home\n"), 0o644); err != nil {
		t.Fatalf("overwrite card: %v", err)
	}
	if err := store.Reload(); err == nil {
		t.Fatal("expected reload error for card without a name")
	}
	if store.Card().Name != "Daredevil" {
		t.Errorf("card = %q, want previous card kept", store.Card().Name)
	}
}

func TestCardStoreReloadPicksUpChanges(t *testing.T) {
	path := writeCard(t, sampleCard)
	store := NewCardStore(path, zap.NewNop())

	if err := os.WriteFile(path, []byte("name: Matador\nbio: New voice.\n"), 0o644); err != nil {
		t.Fatalf("overwrite card: %v", err)
	}
	if err := store.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if store.Card().Name != "Matador" {
		t.Errorf("card = %q, want reloaded persona", store.Card().Name)
	}
}

package prompt

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// CharacterCard is the persona definition behind every response. Cards
// live in a YAML file so operators can retune the voice without a
// rebuild.
type CharacterCard struct {
	Name       string    `yaml:"name"`
	Bio        string    `yaml:"bio"`
	Adjectives []string  `yaml:"adjectives"`
	Style      []string  `yaml:"style"`
	Examples   []Example `yaml:"examples"`
}

// SystemHeader renders the short system-channel message for providers
// that support one. It carries only the persona identity; evidence,
// style and instructions all travel in the user prompt.
func (c CharacterCard) SystemHeader() string {
	header := "You are " + strings.TrimSpace(c.Name) + "."
	if bio := strings.TrimSpace(c.Bio); bio != "" {
		header += " " + bio
	}
	return header
}

// Example is one sample exchange used to anchor the persona's voice.
type Example struct {
	User  string `yaml:"user"`
	Reply string `yaml:"reply"`
}

// DefaultCard is the built-in persona used when no card file exists.
func DefaultCard() CharacterCard {
	return CharacterCard{
		Name: "Daredevil",
		Bio:  "A sharp, enthusiastic sports companion who lives for Formula 1 strategy calls and NBA box scores.",
		Adjectives: []string{
			"bold", "witty", "data-driven", "loyal to the facts",
		},
		Style: []string{
			"Keep answers short and punchy.",
			"Lead with the number when there is one.",
			"Never hedge about facts that are in front of you.",
		},
	}
}

// CardStore loads the persona card and serves snapshots to the
// assembler. Reload is safe to call from a file watcher.
type CardStore struct {
	mu     sync.RWMutex
	path   string
	card   CharacterCard
	logger *zap.Logger
}

// NewCardStore reads the card at path. A missing or malformed file
// falls back to the built-in default so the pipeline never starts
// without a persona.
func NewCardStore(path string, logger *zap.Logger) *CardStore {
	s := &CardStore{
		path:   path,
		card:   DefaultCard(),
		logger: logger.With(zap.String("component", "character")),
	}
	if err := s.Reload(); err != nil {
		s.logger.Warn("Using built-in persona card", zap.String("path", path), zap.Error(err))
	}
	return s
}

// Card returns the current persona snapshot.
func (s *CardStore) Card() CharacterCard {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.card
}

// Path returns the card file location, for wiring a config watcher.
func (s *CardStore) Path() string {
	return s.path
}

// Reload re-reads the card file. The previous card stays active when
// the new one fails to parse or names no persona.
func (s *CardStore) Reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read character card: %w", err)
	}

	var card CharacterCard
	if err := yaml.Unmarshal(data, &card); err != nil {
		return fmt.Errorf("parse character card: %w", err)
	}
	if strings.TrimSpace(card.Name) == "" {
		return fmt.Errorf("character card %s names no persona", s.path)
	}

	s.mu.Lock()
	s.card = card
	s.mu.Unlock()

	s.logger.Info("Character card loaded",
		zap.String("path", s.path),
		zap.String("name", card.Name),
		zap.Int("examples", len(card.Examples)),
	)
	return nil
}

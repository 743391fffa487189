// Package autoresponse decides and sends automatic replies to chat messages
// and reviews, driven by an operator-edited settings file.
package autoresponse

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	logx "sellerbot/pkg/logx"
)

// MaxRespondedChats bounds the greeted-chats list kept in the settings file.
const MaxRespondedChats = 500

type Keyword struct {
	Trigger string
	Reply   string
}

// Settings is one read of the settings file. A missing or invalid file
// reads as the zero value, which disables everything.
type Settings struct {
	Enabled           bool
	GreetingEnabled   bool
	GreetingMessage   string
	GreetingOnlyFirst bool
	RespondedChats    []string
	// Keywords keep file order; the first matching trigger wins.
	Keywords []Keyword

	ReviewAutoReplyEnabled bool
	ReviewReplies          map[string]string
	ReviewDefaultReply     string
}

func (s Settings) Responded(chatID string) bool {
	for _, c := range s.RespondedChats {
		if c == chatID {
			return true
		}
	}
	return false
}

type wireSettings struct {
	Enabled                bool              `json:"enabled"`
	GreetingEnabled        bool              `json:"greeting_enabled"`
	GreetingMessage        string            `json:"greeting_message"`
	GreetingOnlyFirst      bool              `json:"greeting_only_first_message"`
	ReviewAutoReplyEnabled bool              `json:"review_auto_reply_enabled"`
	ReviewReplies          map[string]string `json:"review_replies"`
	ReviewDefaultReply     string            `json:"review_default_reply"`
	Keywords               map[string]string `json:"keywords"`
	RespondedUsers         []any             `json:"responded_users"`
}

// Store reads and updates the settings file. The file is re-read on every
// Load so operator edits apply to the next event.
type Store struct {
	path string
	log  logx.Logger

	mu sync.Mutex
}

func NewStore(path string, log logx.Logger) *Store {
	return &Store{path: path, log: log.With(logx.String("comp", "autoresponse"))}
}

func (s *Store) Path() string { return s.path }

// Load returns the current settings. Read or validation errors are logged
// and yield disabled settings.
func (s *Store) Load() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.loadLocked()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.log.Debug("auto-response settings missing", logx.String("path", s.path))
		} else {
			s.log.Warn("auto-response settings unusable; treating as disabled", logx.String("path", s.path), logx.Err(err))
		}
		return Settings{}
	}
	return st
}

func (s *Store) loadLocked() (Settings, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return Settings{}, err
	}
	return decodeSettings(raw)
}

func decodeSettings(raw []byte) (Settings, error) {
	if err := validate(raw); err != nil {
		return Settings{}, err
	}
	var w wireSettings
	if err := json.Unmarshal(raw, &w); err != nil {
		return Settings{}, err
	}
	st := Settings{
		Enabled:                w.Enabled,
		GreetingEnabled:        w.GreetingEnabled,
		GreetingMessage:        w.GreetingMessage,
		GreetingOnlyFirst:      w.GreetingOnlyFirst,
		ReviewAutoReplyEnabled: w.ReviewAutoReplyEnabled,
		ReviewReplies:          w.ReviewReplies,
		ReviewDefaultReply:     w.ReviewDefaultReply,
	}

	root, err := parseDocument(raw)
	if err != nil {
		// Valid JSON the YAML parser rejects: keep going with sorted keywords.
		for k, v := range w.Keywords {
			st.Keywords = append(st.Keywords, Keyword{Trigger: k, Reply: v})
		}
		sort.Slice(st.Keywords, func(i, j int) bool { return st.Keywords[i].Trigger < st.Keywords[j].Trigger })
		for _, u := range w.RespondedUsers {
			st.RespondedChats = append(st.RespondedChats, fmt.Sprint(u))
		}
		return st, nil
	}
	st.Keywords = orderedPairs(lookup(root, "keywords"))
	st.RespondedChats = scalarStrings(lookup(root, "responded_users"))
	return st, nil
}

// MarkResponded records chatID as greeted, keeping the most recent
// MaxRespondedChats entries. Other keys and their order are preserved.
func (s *Store) MarkResponded(chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		raw = []byte("{}")
	} else if err != nil {
		return err
	}
	root, err := parseDocument(raw)
	if err != nil {
		return fmt.Errorf("parse settings: %w", err)
	}

	chats := scalarStrings(lookup(root, "responded_users"))
	for _, c := range chats {
		if c == chatID {
			return nil
		}
	}
	chats = append(chats, chatID)
	if n := len(chats) - MaxRespondedChats; n > 0 {
		chats = chats[n:]
	}
	setKey(root, "responded_users", stringSeq(chats))

	out, err := encodeJSON(root)
	if err != nil {
		return err
	}
	return writeFileAtomic(s.path, out)
}

func writeFileAtomic(path string, b []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

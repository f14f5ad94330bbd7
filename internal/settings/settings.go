// Package settings loads the editor settings file.
package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type Settings struct {
	DataDir   string `yaml:"data_dir"`
	UndoLimit int    `yaml:"undo_limit"`

	// Actions overrides labels and shortcuts by action id.
	Actions map[string]ActionOverride `yaml:"actions,omitempty"`

	Journal JournalSettings `yaml:"journal"`
	Index   IndexSettings   `yaml:"index"`
	Archive ArchiveSettings `yaml:"archive"`
	Server  ServerSettings  `yaml:"server"`
	Scripts ScriptSettings  `yaml:"scripts"`
}

type ActionOverride struct {
	Text     string `yaml:"text,omitempty"`
	Shortcut string `yaml:"shortcut,omitempty"`
	Disabled bool   `yaml:"disabled,omitempty"`
}

type JournalSettings struct {
	Enabled bool `yaml:"enabled"`
}

type IndexSettings struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type ArchiveSettings struct {
	Enabled bool `yaml:"enabled"`
}

type ServerSettings struct {
	Addr            string `yaml:"addr"`
	MaxMessageBytes int64  `yaml:"max_message_bytes"`
	WriteTimeoutMS  int    `yaml:"write_timeout_ms"`
	SendQueue       int    `yaml:"send_queue"`
}

type ScriptSettings struct {
	Dir       string `yaml:"dir"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

func Load(path string) (Settings, error) {
	s := defaults()
	if strings.TrimSpace(path) == "" {
		s.Normalize()
		return s, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	if err := yaml.Unmarshal(b, &s); err != nil {
		return s, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	s.Normalize()
	if err := s.Validate(); err != nil {
		return s, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return s, nil
}

// Default returns the settings used when no file is given.
func Default() Settings {
	s := defaults()
	s.Normalize()
	return s
}

func defaults() Settings {
	return Settings{
		DataDir:   "data",
		UndoLimit: 100,
		Journal:   JournalSettings{Enabled: true},
		Index:     IndexSettings{Enabled: true},
		Archive:   ArchiveSettings{Enabled: true},
		Server: ServerSettings{
			Addr:            ":8080",
			MaxMessageBytes: 1 << 20,
			WriteTimeoutMS:  2000,
			SendQueue:       64,
		},
		Scripts: ScriptSettings{TimeoutMS: 2000},
	}
}

func (s *Settings) Normalize() {
	if s == nil {
		return
	}
	s.DataDir = strings.TrimSpace(s.DataDir)
	if s.DataDir == "" {
		s.DataDir = "data"
	}
	if s.Index.Path == "" {
		s.Index.Path = filepath.Join(s.DataDir, "index.sqlite")
	}
	if s.Scripts.Dir == "" {
		s.Scripts.Dir = filepath.Join(s.DataDir, "scripts")
	}
	if s.Server.SendQueue <= 0 {
		s.Server.SendQueue = 64
	}
	for id, o := range s.Actions {
		o.Text = strings.TrimSpace(o.Text)
		o.Shortcut = strings.TrimSpace(o.Shortcut)
		s.Actions[id] = o
	}
}

func (s Settings) Validate() error {
	if s.UndoLimit < 1 {
		return fmt.Errorf("undo_limit must be >= 1")
	}
	if s.Server.MaxMessageBytes <= 0 {
		return fmt.Errorf("server.max_message_bytes must be > 0")
	}
	if s.Server.WriteTimeoutMS <= 0 {
		return fmt.Errorf("server.write_timeout_ms must be > 0")
	}
	if s.Scripts.TimeoutMS <= 0 {
		return fmt.Errorf("scripts.timeout_ms must be > 0")
	}
	shortcuts := map[string]string{}
	for id, o := range s.Actions {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("actions: empty action id")
		}
		if o.Shortcut == "" || o.Disabled {
			continue
		}
		key := strings.ToLower(o.Shortcut)
		if other, ok := shortcuts[key]; ok {
			return fmt.Errorf("actions: shortcut %q bound to both %s and %s", o.Shortcut, other, id)
		}
		shortcuts[key] = id
	}
	return nil
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/presence-chat/internal/util"
)

// =============================================================================
// CONFIG TYPES
// =============================================================================

// Config is the main configuration structure.
type Config struct {
	// DefaultWidget selects the widget profile when none is given.
	DefaultWidget string `toml:"default_widget"`

	// Offline restricts the backend to localhost.
	Offline bool `toml:"offline"`

	Server   ServerConfig            `toml:"server"`
	Status   StatusConfig            `toml:"status"`
	Retry    RetryConfig             `toml:"retry"`
	Rate     RateConfig              `toml:"rate"`
	Log      LogConfig               `toml:"log"`
	Storage  StorageConfig           `toml:"storage"`
	Messages Messages                `toml:"messages"`
	Widgets  map[string]WidgetConfig `toml:"widgets"`
}

// ServerConfig locates the backend.
type ServerConfig struct {
	BaseURL     string `toml:"base_url"`
	TimeoutSecs int    `toml:"timeout_secs"`
}

// StatusConfig controls capability polling.
type StatusConfig struct {
	PollIntervalSecs int `toml:"poll_interval_secs"`
}

// RetryConfig bounds user-triggered retries.
type RetryConfig struct {
	MaxAttempts int `toml:"max_attempts"`
}

// RateConfig throttles outgoing requests. Zero disables the limiter.
type RateConfig struct {
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // text, json
	File   string `toml:"file"`   // empty: stderr
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Backend       string `toml:"backend"` // file, sqlite, redis, memory
	Dir           string `toml:"dir"`
	SQLitePath    string `toml:"sqlite_path"`
	RedisURL      string `toml:"redis_url"`
	RedisPrefix   string `toml:"redis_prefix"`
	RedisTTLHours int    `toml:"redis_ttl_hours"`
}

// Messages are the localized strings used for failed or interrupted turns.
type Messages struct {
	ConnectionError    string `toml:"connection_error"`
	CommunicationError string `toml:"communication_error"`
	NoReply            string `toml:"no_reply"`
	ServerError        string `toml:"server_error"` // format with one %s
	UnknownError       string `toml:"unknown_error"`
	Interrupted        string `toml:"interrupted"`
}

// WidgetConfig is one chat widget's profile.
type WidgetConfig struct {
	StreamPath   string `toml:"stream_path"`
	AskPath      string `toml:"ask_path"`
	StatusPath   string `toml:"status_path"`
	ClearPath    string `toml:"clear_path"`
	MessageField string `toml:"message_field"`
	AskField     string `toml:"ask_field"`
	OmitUserID   bool   `toml:"omit_user_id"`
	StorageKey   string `toml:"storage_key"`
	UserIDKey    string `toml:"user_id_key"`
	Greeting     string `toml:"greeting"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Widget preset names.
const (
	WidgetChatbot       = "chatbot"
	WidgetSmartPresence = "smartpresence"
	WidgetNTIC2         = "ntic2"
	WidgetAssistant     = "assistant"
)

// DefaultMessages returns the French strings of the original widgets.
func DefaultMessages() Messages {
	return Messages{
		ConnectionError:    "Erreur de connexion. Veuillez réessayer.",
		CommunicationError: "Erreur de communication avec le serveur.",
		NoReply:            "Je n'ai pas pu générer une réponse.",
		ServerError:        "Désolé, une erreur est survenue : %s",
		UnknownError:       "Erreur inconnue",
		Interrupted:        "Réponse interrompue.",
	}
}

// Presets returns the built-in widget profiles.
func Presets() map[string]WidgetConfig {
	return map[string]WidgetConfig{
		WidgetChatbot: {
			StreamPath:   "/api/chatbot/ask/stream",
			AskPath:      "/api/chatbot/ask",
			StatusPath:   "/api/chatbot/status",
			MessageField: "question",
			AskField:     "question",
			OmitUserID:   true,
			StorageKey:   "spa_chatbot_messages",
			UserIDKey:    "spa_chatbot_user_id",
			Greeting:     "Bonjour ! Posez-moi une question sur les présences, les absences ou les retards.",
		},
		WidgetSmartPresence: {
			StreamPath:   "/api/chatbot/stream",
			AskPath:      "/api/chatbot/ask",
			StatusPath:   "/api/chatbot/status",
			MessageField: "message",
			AskField:     "question",
			StorageKey:   "smartpresence_chat_messages",
			UserIDKey:    "smartpresence_chat_user_id",
			Greeting:     "👋 Bienvenue dans Smart Presence AI ! Je suis votre assistant intelligent pour la gestion des présences.\n\n" +
				"Je peux vous aider avec:\n✅ Procédures de check-in/check-out\n👤 Reconnaissance faciale et QR codes\n" +
				"📊 Consultation des présences et statistiques\n📝 Justifications d'absences\n📈 Tableau de bord et rapports\n" +
				"🔧 Dépannage et support technique\n\nPosez-moi vos questions !",
		},
		WidgetNTIC2: {
			StreamPath:   "/api/chat/stream",
			AskPath:      "/api/chat",
			StatusPath:   "/api/chat/status",
			ClearPath:    "/api/chat/clear",
			MessageField: "message",
			AskField:     "message",
			StorageKey:   "ntic2_chat_messages",
			UserIDKey:    "ntic2_chat_user_id",
			Greeting:     "👋 Bonjour! Je suis votre assistant intelligent ISTA NTIC. Je peux vous aider avec:\n\n" +
				"📅 Emplois du temps\n📝 EFM et examens\n👨‍🏫 Professeurs parrains\n💼 Débouchés professionnels\n" +
				"📞 Informations de contact\n\nPosez-moi vos questions!",
		},
		WidgetAssistant: {
			StreamPath:   "/api/chat/stream",
			AskPath:      "/api/chat/message",
			StatusPath:   "/api/chat/status",
			ClearPath:    "/api/chat/clear",
			MessageField: "message",
			AskField:     "message",
			StorageKey:   "chat_messages",
			UserIDKey:    "chat_user_id",
			Greeting:     "Bonjour ! 👋 Je suis votre assistant intelligent pour l'ISTA NTIC Sidi Maarouf. " +
				"Je peux répondre à vos questions sur les cours, les emplois du temps, les résultats, " +
				"les documents et bien plus encore. Comment puis-je vous aider ?",
		},
	}
}

// Default returns a configuration with every default filled in.
func Default() *Config {
	dir, err := ConfigDir()
	if err != nil {
		dir = filepath.Join(os.TempDir(), "presence-chat")
	}
	return &Config{
		DefaultWidget: WidgetAssistant,
		Server: ServerConfig{
			BaseURL:     "http://localhost:8000",
			TimeoutSecs: 30,
		},
		Status:   StatusConfig{PollIntervalSecs: 10},
		Retry:    RetryConfig{MaxAttempts: 2},
		Rate:     RateConfig{RequestsPerSecond: 2, Burst: 4},
		Log:      LogConfig{Level: "info", Format: "text"},
		Messages: DefaultMessages(),
		Storage: StorageConfig{
			Backend:       "file",
			Dir:           filepath.Join(dir, "widgets"),
			RedisPrefix:   "presence-chat:",
			RedisTTLHours: 24 * 30,
		},
		Widgets: Presets(),
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the presence-chat configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".presence-chat"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load reads ~/.presence-chat/config.toml when it exists, applies
// environment overrides and validates the result.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return finish(Default())
	}
	return LoadFromPath(path)
}

// LoadFromPath loads the config at path. A missing file yields defaults.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); err == nil {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat config: %w", err)
	}
	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	fillDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file over cfg.
func LoadTOML(cfg *Config, path string) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		fmt.Fprintf(os.Stderr, "Warning: unknown config keys in %s: %s\n", path, strings.Join(keys, ", "))
	}
	return nil
}

// fillDefaults fills in any missing values with defaults. User-defined
// widgets that share a preset's name inherit the preset's empty fields.
func fillDefaults(cfg *Config) {
	defaults := Default()

	if cfg.DefaultWidget == "" {
		cfg.DefaultWidget = defaults.DefaultWidget
	}
	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = defaults.Server.BaseURL
	}
	cfg.Server.BaseURL = strings.TrimRight(cfg.Server.BaseURL, "/")
	if cfg.Server.TimeoutSecs == 0 {
		cfg.Server.TimeoutSecs = defaults.Server.TimeoutSecs
	}
	if cfg.Status.PollIntervalSecs == 0 {
		cfg.Status.PollIntervalSecs = defaults.Status.PollIntervalSecs
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = defaults.Retry.MaxAttempts
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaults.Log.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = defaults.Log.Format
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = defaults.Storage.Backend
	}
	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = defaults.Storage.Dir
	}
	if cfg.Storage.RedisPrefix == "" {
		cfg.Storage.RedisPrefix = defaults.Storage.RedisPrefix
	}

	m, dm := &cfg.Messages, defaults.Messages
	fill(&m.ConnectionError, dm.ConnectionError)
	fill(&m.CommunicationError, dm.CommunicationError)
	fill(&m.NoReply, dm.NoReply)
	fill(&m.ServerError, dm.ServerError)
	fill(&m.UnknownError, dm.UnknownError)
	fill(&m.Interrupted, dm.Interrupted)

	if cfg.Widgets == nil {
		cfg.Widgets = make(map[string]WidgetConfig)
	}
	for name, preset := range Presets() {
		w, ok := cfg.Widgets[name]
		if !ok {
			cfg.Widgets[name] = preset
			continue
		}
		fill(&w.StreamPath, preset.StreamPath)
		fill(&w.AskPath, preset.AskPath)
		fill(&w.StatusPath, preset.StatusPath)
		fill(&w.ClearPath, preset.ClearPath)
		fill(&w.MessageField, preset.MessageField)
		fill(&w.AskField, preset.AskField)
		fill(&w.StorageKey, preset.StorageKey)
		fill(&w.UserIDKey, preset.UserIDKey)
		fill(&w.Greeting, preset.Greeting)
		w.OmitUserID = w.OmitUserID || preset.OmitUserID
		cfg.Widgets[name] = w
	}
	for name, w := range cfg.Widgets {
		fill(&w.MessageField, "message")
		fill(&w.AskField, w.MessageField)
		fill(&w.StorageKey, name+"_messages")
		fill(&w.UserIDKey, name+"_user_id")
		cfg.Widgets[name] = w
	}
}

func fill(field *string, def string) {
	if *field == "" {
		*field = def
	}
}

// =============================================================================
// ACCESSORS
// =============================================================================

// Widget returns the profile with the given name.
func (c *Config) Widget(name string) (WidgetConfig, error) {
	if name == "" {
		name = c.DefaultWidget
	}
	w, ok := c.Widgets[name]
	if !ok {
		return WidgetConfig{}, fmt.Errorf("unknown widget %q (known: %s)", name, strings.Join(c.WidgetNames(), ", "))
	}
	return w, nil
}

// WidgetNames returns the configured widget names, sorted.
func (c *Config) WidgetNames() []string {
	names := make([]string, 0, len(c.Widgets))
	for name := range c.Widgets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Timeout returns the non-streaming request timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Server.TimeoutSecs) * time.Second
}

// PollInterval returns the status polling interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Status.PollIntervalSecs) * time.Second
}

// RedisTTL returns the snapshot expiry for the redis backend.
func (c *Config) RedisTTL() time.Duration {
	return time.Duration(c.Storage.RedisTTLHours) * time.Hour
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes the configuration to the default TOML file.
func Save(cfg *Config) error {
	if err := EnsureConfigDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes cfg to path with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	var b strings.Builder
	b.WriteString("# presence-chat configuration file\n")
	b.WriteString("# Generated by presence-chat - edit with care\n\n")

	if err := toml.NewEncoder(&b).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, []byte(b.String()), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

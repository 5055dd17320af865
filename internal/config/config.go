// Package config merges defaults, an optional YAML file, the environment and command-line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	cli "github.com/spf13/pflag"
	"github.com/spf13/viper"

	"voxmail/internal/domain"
)

type Config struct {
	Provider string   `mapstructure:"provider"`
	Proxy    string   `mapstructure:"proxy"`
	TmpDir   string   `mapstructure:"tmp_dir"`
	Log      Log      `mapstructure:"log"`
	Telegram Telegram `mapstructure:"telegram"`
	OpenAI   API      `mapstructure:"openai"`
	Groq     API      `mapstructure:"groq"`
	AI       AI       `mapstructure:"ai"`
	Defaults Defaults `mapstructure:"defaults"`
	Store    Store    `mapstructure:"store"`
	STT      STT      `mapstructure:"stt"`
	Reply    Reply    `mapstructure:"reply"`
	Limits   Limits   `mapstructure:"limits"`
	Bus      Bus      `mapstructure:"bus"`
	IPC      IPC      `mapstructure:"ipc"`
	Shutdown Shutdown `mapstructure:"shutdown"`
}

type Log struct {
	Level string `mapstructure:"level"`
}

type Telegram struct {
	Token       string `mapstructure:"token"`
	PollTimeout int    `mapstructure:"poll_timeout"`
	DropPending bool   `mapstructure:"drop_pending"`
}

type API struct {
	APIKey          string `mapstructure:"api_key"`
	BaseURL         string `mapstructure:"base_url"`
	ChatModel       string `mapstructure:"chat_model"`
	TranscribeModel string `mapstructure:"transcribe_model"`
}

type AI struct {
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type Defaults struct {
	Language string `mapstructure:"language"`
	Tone     string `mapstructure:"tone"`
}

type Store struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// STT selects who transcribes voice: the chat provider's API or a local whisper model.
type STT struct {
	Backend    string `mapstructure:"backend"`
	Model      string `mapstructure:"model"`
	Language   string `mapstructure:"language"`
	Threads    int    `mapstructure:"threads"`
	MaxSeconds int    `mapstructure:"max_seconds"`
}

type Reply struct {
	ShowTranscript bool `mapstructure:"show_transcript"`
	ChunkSize      int  `mapstructure:"chunk_size"`
}

type Limits struct {
	PerMinute int `mapstructure:"per_minute"`
	Burst     int `mapstructure:"burst"`
}

type Bus struct {
	URL       string        `mapstructure:"url"`
	Name      string        `mapstructure:"name"`
	Reconnect time.Duration `mapstructure:"reconnect"`
}

// Shutdown.Grace is how long in-flight messages may keep running after a stop signal.
type Shutdown struct {
	Grace time.Duration `mapstructure:"grace"`
}

type IPC struct {
	Socket string `mapstructure:"socket"`
}

var defaults = map[string]any{
	"provider":                "openai",
	"proxy":                   "",
	"tmp_dir":                 "",
	"log.level":               "info",
	"telegram.token":          "",
	"telegram.poll_timeout":   60,
	"telegram.drop_pending":   true,
	"openai.api_key":          "",
	"openai.base_url":         "",
	"openai.chat_model":       "gpt-4o-mini",
	"openai.transcribe_model": "whisper-1",
	"groq.api_key":            "",
	"groq.base_url":           "https://api.groq.com/openai/v1",
	"groq.chat_model":         "llama-3.1-8b-instant",
	"groq.transcribe_model":   "whisper-large-v3",
	"ai.temperature":          0.3,
	"ai.timeout":              "90s",
	"defaults.language":       "pl",
	"defaults.tone":           "formal",
	"store.driver":            "memory",
	"store.dsn":               "",
	"stt.backend":             "api",
	"stt.model":               "",
	"stt.language":            "auto",
	"stt.threads":             0,
	"stt.max_seconds":         300,
	"reply.show_transcript":   true,
	"reply.chunk_size":        3800,
	"limits.per_minute":       0,
	"limits.burst":            3,
	"bus.url":                 "",
	"bus.name":                "voxmail",
	"bus.reconnect":           "3s",
	"ipc.socket":              "/tmp/voxmail.sock",
	"shutdown.grace":          "20s",
}

// Variable names the bot has always been configured with.
var legacyEnv = map[string]string{
	"telegram.token":    "TELEGRAM_BOT_TOKEN",
	"provider":          "PROVIDER",
	"openai.api_key":    "OPENAI_API_KEY",
	"openai.chat_model": "OPENAI_CHAT_MODEL",
	"groq.api_key":      "GROQ_API_KEY",
	"groq.chat_model":   "GROQ_CHAT_MODEL",
	"defaults.language": "DEFAULT_LANG",
	"defaults.tone":     "DEFAULT_TONE",
}

// Flags maps command-line flags onto config keys.
var Flags = map[string]string{
	"log":   "log.level",
	"proxy": "proxy",
	"store": "store.driver",
}

// Load reads path when non-empty. Flags that were set on fs override everything else.
func Load(path string, fs *cli.FlagSet) (Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix("VOXMAIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		prefixed := "VOXMAIL_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return Config{}, err
		}
	}

	if fs != nil {
		for flag, key := range Flags {
			if f := fs.Lookup(flag); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, err
				}
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	c.STT.Backend = strings.ToLower(strings.TrimSpace(c.STT.Backend))
	return c, nil
}

// ProviderAPI returns the credentials and models of the selected provider.
func (c Config) ProviderAPI() API {
	if c.Provider == "groq" {
		return c.Groq
	}
	return c.OpenAI
}

func (c Config) Preferences() (domain.Language, domain.Tone, error) {
	lang, err := domain.ParseLanguage(c.Defaults.Language)
	if err != nil {
		return "", "", fmt.Errorf("defaults.language %q: want one of pl|en|ua", c.Defaults.Language)
	}
	tone, err := domain.ParseTone(c.Defaults.Tone)
	if err != nil {
		return "", "", fmt.Errorf("defaults.tone %q: want one of formal|friendly|firm", c.Defaults.Tone)
	}
	return lang, tone, nil
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error

	switch c.Provider {
	case "openai", "groq":
		if c.ProviderAPI().APIKey == "" {
			errs = append(errs, fmt.Errorf("%s.api_key is required for provider %s", c.Provider, c.Provider))
		}
	default:
		errs = append(errs, fmt.Errorf("provider %q: want openai|groq", c.Provider))
	}

	if c.Telegram.Token == "" && c.Bus.URL == "" {
		errs = append(errs, errors.New("telegram.token (TELEGRAM_BOT_TOKEN) is required unless bus.url is set"))
	}

	switch c.Store.Driver {
	case "memory":
	case "sqlite", "postgres":
		if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("store.dsn is required for driver %s", c.Store.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver %q: want memory|sqlite|postgres", c.Store.Driver))
	}

	switch c.STT.Backend {
	case "api":
	case "whisper":
		if c.STT.Model == "" {
			errs = append(errs, errors.New("stt.model is required for the whisper backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("stt.backend %q: want api|whisper", c.STT.Backend))
	}

	if _, _, err := c.Preferences(); err != nil {
		errs = append(errs, err)
	}

	if c.Reply.ChunkSize <= 0 || c.Reply.ChunkSize > 4096 {
		errs = append(errs, fmt.Errorf("reply.chunk_size %d: want 1..4096", c.Reply.ChunkSize))
	}
	if c.Limits.PerMinute < 0 || c.Limits.Burst < 0 {
		errs = append(errs, errors.New("limits must not be negative"))
	}

	return errors.Join(errs...)
}

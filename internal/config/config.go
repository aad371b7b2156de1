package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/blackmichael/bluesky-thread2page/internal/bot"
	"github.com/blackmichael/bluesky-thread2page/internal/compiler"
)

const (
	defaultBlueskyAPIURL      = "https://bsky.social"
	defaultTelegraphAPIURL    = "https://api.telegra.ph"
	defaultTelegraphUploadURL = "https://telegra.ph/upload"
	defaultFirehoseURL        = "wss://jetstream1.us-east.bsky.network/subscribe"
	defaultDBPath             = "data/thread2page.db"
	defaultTriggerWords       = "رتبها,سرد,ترتيب,رتب"
	defaultReplyText          = "تفضل معلم هي السرد"
	defaultAuthorName         = "Thread Compiler"
)

// ErrMissingCredentials is returned by RequireCredentials when the bot
// account is not configured.
var ErrMissingCredentials = errors.New("BLUESKY_IDENTIFIER and BLUESKY_PASSWORD are required")

// Config holds all configuration for the application.
type Config struct {
	// Identifier and Password are the bot account's login.
	Identifier string `yaml:"identifier"`
	Password   string `yaml:"password"`

	// BlueskyAPIURL is the PDS the bot logs in to.
	BlueskyAPIURL string `yaml:"bluesky_api_url"`

	TelegraphAPIURL    string `yaml:"telegraph_api_url"`
	TelegraphUploadURL string `yaml:"telegraph_upload_url"`

	// TelegraphAccessToken is optional; without it a stored token is used or
	// an account is created.
	TelegraphAccessToken string `yaml:"telegraph_access_token"`
	AuthorName           string `yaml:"author_name"`
	AuthorURL            string `yaml:"author_url"`

	TriggerWords      []string `yaml:"trigger_words"`
	MaxMentionsPerRun int      `yaml:"max_mentions_per_run"`
	ThreadDepth       int      `yaml:"thread_depth"`
	DryRun            bool     `yaml:"dry_run"`
	ReplyText         string   `yaml:"reply_text"`
	ReplyHashtag      string   `yaml:"reply_hashtag"`

	// DBPath is the SQLite database file.
	DBPath string `yaml:"db_path"`

	// RedisURL enables the image rehost cache when set.
	RedisURL string        `yaml:"redis_url"`
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// ProcessedRetention is how long processed mentions are remembered.
	ProcessedRetention time.Duration `yaml:"processed_retention"`

	// Port is the HTTP server port.
	Port int `yaml:"port"`

	// FirehoseURL is the Jetstream WebSocket endpoint.
	FirehoseURL string `yaml:"firehose_url"`

	Compiler compiler.Options `yaml:"compiler"`
}

func defaults() *Config {
	return &Config{
		BlueskyAPIURL:      defaultBlueskyAPIURL,
		TelegraphAPIURL:    defaultTelegraphAPIURL,
		TelegraphUploadURL: defaultTelegraphUploadURL,
		AuthorName:         defaultAuthorName,
		TriggerWords:       splitList(defaultTriggerWords),
		MaxMentionsPerRun:  3,
		ThreadDepth:        80,
		ReplyText:          defaultReplyText,
		DBPath:             defaultDBPath,
		CacheTTL:           30 * 24 * time.Hour,
		ProcessedRetention: 90 * 24 * time.Hour,
		Port:               3000,
		FirehoseURL:        defaultFirehoseURL,
		Compiler:           compiler.DefaultOptions(),
	}
}

// Load reads configuration from the optional YAML file at path, then applies
// environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Identifier, "BLUESKY_IDENTIFIER")
	setString(&c.Password, "BLUESKY_PASSWORD")
	setString(&c.BlueskyAPIURL, "BLUESKY_API_URL")
	setString(&c.TelegraphAPIURL, "TELEGRAPH_API_URL")
	setString(&c.TelegraphUploadURL, "TELEGRAPH_UPLOAD_URL")
	setString(&c.TelegraphAccessToken, "TELEGRAPH_ACCESS_TOKEN")
	setString(&c.AuthorName, "TELEGRAPH_AUTHOR_NAME")
	setString(&c.AuthorURL, "TELEGRAPH_AUTHOR_URL")
	setString(&c.ReplyText, "REPLY_TEXT")
	setString(&c.ReplyHashtag, "REPLY_HASHTAG")
	setString(&c.DBPath, "DB_PATH")
	setString(&c.RedisURL, "REDIS_URL")
	setString(&c.FirehoseURL, "FEEDGEN_FIREHOSE_URL")

	if v := os.Getenv("TRIGGER_WORDS"); v != "" {
		c.TriggerWords = splitList(v)
	}
	if v := os.Getenv("DRY_RUN"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid DRY_RUN: %w", err)
		}
		c.DryRun = b
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"MAX_MENTIONS_PER_RUN", &c.MaxMentionsPerRun},
		{"THREAD_DEPTH", &c.ThreadDepth},
		{"PORT", &c.Port},
		{"INTERLEAVED_CHUNK_LEN", &c.Compiler.InterleavedChunkLen},
		{"PLAIN_CHUNK_LEN", &c.Compiler.PlainChunkLen},
		{"NODE_CEILING", &c.Compiler.NodeCeiling},
		{"MERGE_THRESHOLD", &c.Compiler.MergeThreshold},
		{"MAX_CONTENT_BYTES", &c.Compiler.MaxContentBytes},
		{"TITLE_MAX_LEN", &c.Compiler.TitleMaxLen},
	}
	for _, e := range ints {
		if err := setInt(e.dst, e.name); err != nil {
			return err
		}
	}

	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{"CACHE_TTL", &c.CacheTTL},
		{"PROCESSED_RETENTION", &c.ProcessedRetention},
	}
	for _, e := range durations {
		if v := os.Getenv(e.name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", e.name, err)
			}
			*e.dst = d
		}
	}

	return nil
}

// Validate checks that limits are usable. Credentials are checked separately
// by the commands that talk to the network.
func (c *Config) Validate() error {
	if c.MaxMentionsPerRun <= 0 {
		return fmt.Errorf("MAX_MENTIONS_PER_RUN must be positive, got %d", c.MaxMentionsPerRun)
	}
	if c.ThreadDepth <= 0 {
		return fmt.Errorf("THREAD_DEPTH must be positive, got %d", c.ThreadDepth)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT out of range: %d", c.Port)
	}
	if len(c.TriggerWords) == 0 {
		return fmt.Errorf("TRIGGER_WORDS must not be empty")
	}
	if c.ProcessedRetention <= 0 {
		return fmt.Errorf("PROCESSED_RETENTION must be positive, got %s", c.ProcessedRetention)
	}

	limits := []struct {
		name  string
		value int
	}{
		{"INTERLEAVED_CHUNK_LEN", c.Compiler.InterleavedChunkLen},
		{"PLAIN_CHUNK_LEN", c.Compiler.PlainChunkLen},
		{"NODE_CEILING", c.Compiler.NodeCeiling},
		{"MERGE_THRESHOLD", c.Compiler.MergeThreshold},
		{"MAX_CONTENT_BYTES", c.Compiler.MaxContentBytes},
		{"TITLE_MAX_LEN", c.Compiler.TitleMaxLen},
	}
	for _, l := range limits {
		if l.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", l.name, l.value)
		}
	}
	return nil
}

// RequireCredentials reports whether the bot account is configured.
func (c *Config) RequireCredentials() error {
	if c.Identifier == "" || c.Password == "" {
		return ErrMissingCredentials
	}
	return nil
}

// BotOptions returns the bot settings.
func (c *Config) BotOptions() bot.Options {
	return bot.Options{
		TriggerWords:      c.TriggerWords,
		MaxMentionsPerRun: c.MaxMentionsPerRun,
		ThreadDepth:       c.ThreadDepth,
		DryRun:            c.DryRun,
		ReplyText:         c.ReplyText,
		ReplyHashtag:      c.ReplyHashtag,
		AccessToken:       c.TelegraphAccessToken,
		AuthorName:        c.AuthorName,
		AuthorURL:         c.AuthorURL,
	}
}

func setString(dst *string, name string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

func setInt(dst *int, name string) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = n
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

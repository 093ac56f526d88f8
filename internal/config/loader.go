package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists the providers shipped with chorus.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = []string{"youtube", "ytmusic"}

// Environment variables that override secrets from the YAML file.
const (
	EnvDiscordToken    = "CHORUS_DISCORD_TOKEN"
	EnvHistoryDSN      = "CHORUS_HISTORY_DSN"
	EnvMinIOAccessKey  = "CHORUS_MINIO_ACCESS_KEY"
	EnvMinIOSecretKey  = "CHORUS_MINIO_SECRET_KEY"
	EnvDownloadBaseURL = "CHORUS_DOWNLOAD_BASE_URL"
)

// Load reads the YAML configuration file at path, overlays secrets from the
// environment and returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and the
// environment overlay, and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyEnv(cfg, os.Getenv)
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=value pairs from the given files (".env" when none
// are given) into the process environment. Variables that are already set
// win. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("config: load env files: %w", err)
	}
	return nil
}

// ApplyEnv overrides secrets in cfg with non-empty environment values read
// through getenv.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&cfg.Discord.Token, EnvDiscordToken)
	set(&cfg.History.PostgresDSN, EnvHistoryDSN)
	set(&cfg.Cache.MinIO.AccessKey, EnvMinIOAccessKey)
	set(&cfg.Cache.MinIO.SecretKey, EnvMinIOSecretKey)
	set(&cfg.Cache.DownloadBaseURL, EnvDownloadBaseURL)
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Discord
	if cfg.Discord.Token == "" {
		slog.Warn("discord.token is empty; set " + EnvDiscordToken + " or the bot cannot connect")
	}
	if cfg.Discord.Bitrate < 0 || cfg.Discord.Bitrate > 512000 {
		errs = append(errs, fmt.Errorf("discord.bitrate %d is out of range [0, 512000]", cfg.Discord.Bitrate))
	}

	// Providers
	seen := make(map[string]int, len(cfg.Providers.Entries))
	for i, e := range cfg.Providers.Entries {
		prefix := fmt.Sprintf("providers.entries[%d]", i)
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		if prev, ok := seen[e.Name]; ok {
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of providers.entries[%d]", prefix, e.Name, prev))
		}
		seen[e.Name] = i
		if e.SearchLimit < 0 {
			errs = append(errs, fmt.Errorf("%s.search_limit must not be negative", prefix))
		}
		validateProviderName(e.Name)
	}
	if cfg.Providers.Default != "" {
		if _, ok := seen[cfg.Providers.Default]; !ok && len(cfg.Providers.Entries) > 0 {
			errs = append(errs, fmt.Errorf("providers.default %q is not listed in providers.entries", cfg.Providers.Default))
		}
	}

	// Cache
	if cfg.Cache.Backend != "" && !cfg.Cache.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("cache.backend %q is invalid; valid values: disk, minio, remote", cfg.Cache.Backend))
	}
	if cfg.Cache.RetrieveTimeout < 0 {
		errs = append(errs, errors.New("cache.retrieve_timeout must not be negative"))
	}
	switch cfg.Cache.Backend {
	case CacheMinIO:
		if cfg.Cache.MinIO.Endpoint == "" {
			errs = append(errs, errors.New("cache.minio.endpoint is required when cache.backend is minio"))
		}
	case CacheRemote:
		if cfg.Cache.DownloadBaseURL == "" {
			errs = append(errs, errors.New("cache.download_base_url is required when cache.backend is remote"))
		}
	}
	if cfg.Cache.Backend != CacheRemote && cfg.Cache.DownloadBaseURL == "" && !cfg.Cache.YTDLP.Enabled {
		errs = append(errs, errors.New("cache: no retriever configured; set cache.download_base_url or enable cache.ytdlp"))
	}

	// Queue
	if cfg.Queue.MaxPending < 0 {
		errs = append(errs, errors.New("queue.max_pending must not be negative"))
	}

	// History
	if cfg.History.PostgresDSN == "" {
		slog.Info("history.postgres_dsn is empty; play history is kept in memory only")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is not a provider shipped with
// chorus.
func validateProviderName(name string) {
	if slices.Contains(ValidProviderNames, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"name", name,
		"known", ValidProviderNames,
	)
}

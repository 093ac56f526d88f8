// Package config provides the configuration schema, loader, and provider
// registry for chorus.
package config

import "time"

// LogLevel controls log verbosity for the chorus server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// CacheBackend selects where downloaded audio is kept.
type CacheBackend string

const (
	// CacheDisk stores files under cache.dir.
	CacheDisk CacheBackend = "disk"

	// CacheMinIO stores objects in an S3-compatible bucket.
	CacheMinIO CacheBackend = "minio"

	// CacheRemote stores nothing and hands the download URL to the transport
	// once a HEAD request confirms it exists.
	CacheRemote CacheBackend = "remote"
)

// IsValid reports whether b is a recognised cache backend.
func (b CacheBackend) IsValid() bool {
	switch b {
	case CacheDisk, CacheMinIO, CacheRemote:
		return true
	}
	return false
}

// Config is the root configuration structure for chorus.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Discord   DiscordConfig   `yaml:"discord"`
	Providers ProvidersConfig `yaml:"providers"`
	Cache     CacheConfig     `yaml:"cache"`
	Queue     QueueConfig     `yaml:"queue"`
	History   HistoryConfig   `yaml:"history"`
}

// ServerConfig holds network and logging settings for the HTTP surface.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	// Empty disables the HTTP server.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`

	// Debug enables the /debug endpoints.
	Debug bool `yaml:"debug"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// DiscordConfig holds the bot connection settings.
type DiscordConfig struct {
	// Token is the bot token. Usually supplied via CHORUS_DISCORD_TOKEN.
	Token string `yaml:"token"`

	// GuildID restricts command registration to one guild, which makes new
	// commands show up instantly. Empty registers them globally.
	GuildID string `yaml:"guild_id"`

	// DJRole is the role ID required for /skip and /stop. Empty allows
	// everyone.
	DJRole string `yaml:"dj_role"`

	// FFmpegPath is the ffmpeg binary used to decode audio. Default "ffmpeg".
	FFmpegPath string `yaml:"ffmpeg_path"`

	// Bitrate is the Opus bitrate in bits per second. 0 keeps the default.
	Bitrate int `yaml:"bitrate"`

	// LeaveWhenIdle disconnects from voice once a guild's queue runs dry.
	LeaveWhenIdle bool `yaml:"leave_when_idle"`
}

// ProvidersConfig declares the available song providers.
type ProvidersConfig struct {
	// Default names the provider used by /play and /search when the user does
	// not pick one. Defaults to the first entry.
	Default string `yaml:"default"`

	// Entries lists the enabled providers in order of preference. Providers
	// after the first act as fallbacks for the first.
	Entries []ProviderEntry `yaml:"entries"`
}

// ProviderEntry configures one provider. The Name field is used to look up
// the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "youtube").
	Name string `yaml:"name"`

	// SearchLimit caps the number of search results. Default 10.
	SearchLimit int `yaml:"search_limit"`

	// DefaultThumbnail replaces missing artwork.
	DefaultThumbnail string `yaml:"default_thumbnail"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// CacheConfig configures the download cache and its retrievers.
type CacheConfig struct {
	// Backend selects the store. Default "disk".
	Backend CacheBackend `yaml:"backend"`

	// Dir is the directory used by the disk backend. Default "./cache".
	Dir string `yaml:"dir"`

	// Extension is the file extension of cached audio. Default "mp3".
	Extension string `yaml:"extension"`

	// RetrieveTimeout bounds one download. Default 5m.
	RetrieveTimeout time.Duration `yaml:"retrieve_timeout"`

	// DownloadBaseURL is the base of the download service that serves
	// GET /download/song/{id}. Empty disables the HTTP retriever.
	DownloadBaseURL string `yaml:"download_base_url"`

	// MaxDownloadBytes caps a single download. 0 keeps the default.
	MaxDownloadBytes int64 `yaml:"max_download_bytes"`

	// YTDLP configures the yt-dlp fallback retriever.
	YTDLP YTDLPConfig `yaml:"ytdlp"`

	// MinIO configures the object store backend.
	MinIO MinIOConfig `yaml:"minio"`

	// Breaker tunes the circuit breakers in front of each retriever.
	Breaker BreakerConfig `yaml:"breaker"`
}

// YTDLPConfig configures the yt-dlp retriever.
type YTDLPConfig struct {
	Enabled     bool   `yaml:"enabled"`
	AudioFormat string `yaml:"audio_format"`
	Proxy       string `yaml:"proxy"`
}

// MinIOConfig holds the object store connection.
type MinIOConfig struct {
	Endpoint      string        `yaml:"endpoint"`
	AccessKey     string        `yaml:"access_key"`
	SecretKey     string        `yaml:"secret_key"`
	Bucket        string        `yaml:"bucket"`
	Region        string        `yaml:"region"`
	UseSSL        bool          `yaml:"use_ssl"`
	Prefix        string        `yaml:"prefix"`
	PublicBaseURL string        `yaml:"public_base_url"`
	PresignExpiry time.Duration `yaml:"presign_expiry"`
}

// BreakerConfig tunes a circuit breaker. Zero values select the defaults.
type BreakerConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// QueueConfig bounds the per-chat queues.
type QueueConfig struct {
	// MaxPending caps the pending tracks per chat. 0 means unbounded.
	MaxPending int `yaml:"max_pending"`
}

// HistoryConfig configures the play history.
type HistoryConfig struct {
	// PostgresDSN selects the PostgreSQL store. Empty keeps history in
	// memory. Usually supplied via CHORUS_HISTORY_DSN.
	PostgresDSN string `yaml:"postgres_dsn"`

	// PerChat is the number of plays the in-memory store keeps per chat.
	PerChat int `yaml:"per_chat"`
}

// ApplyDefaults fills unset fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}
	if c.Discord.FFmpegPath == "" {
		c.Discord.FFmpegPath = "ffmpeg"
	}
	if len(c.Providers.Entries) == 0 {
		c.Providers.Entries = []ProviderEntry{{Name: "youtube"}}
	}
	if c.Providers.Default == "" {
		c.Providers.Default = c.Providers.Entries[0].Name
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = CacheDisk
	}
	if c.Cache.Dir == "" {
		c.Cache.Dir = "./cache"
	}
	if c.Cache.Extension == "" {
		c.Cache.Extension = "mp3"
	}
	if c.Cache.RetrieveTimeout == 0 {
		c.Cache.RetrieveTimeout = 5 * time.Minute
	}
	if c.Cache.YTDLP.AudioFormat == "" {
		c.Cache.YTDLP.AudioFormat = c.Cache.Extension
	}
	if c.Cache.MinIO.Bucket == "" {
		c.Cache.MinIO.Bucket = "chorus-audio"
	}
}

// Entry returns the provider entry called name.
func (p ProvidersConfig) Entry(name string) (ProviderEntry, bool) {
	for _, e := range p.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return ProviderEntry{}, false
}

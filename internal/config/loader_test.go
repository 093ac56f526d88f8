package config_test

import (
	"strings"
	"testing"

	"github.com/MrWong99/chorus/internal/config"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "minimal",
			yaml: `
cache:
  download_base_url: http://dl.local
`,
		},
		{
			name: "ytdlp only",
			yaml: `
cache:
  ytdlp:
    enabled: true
`,
		},
		{
			name:    "no retriever",
			yaml:    `server: {log_level: info}`,
			wantErr: "no retriever configured",
		},
		{
			name: "bad log level",
			yaml: `
server: {log_level: bananas}
cache: {download_base_url: http://dl.local}
`,
			wantErr: "server.log_level",
		},
		{
			name: "unknown field",
			yaml: `
playlists: []
`,
			wantErr: "field playlists not found",
		},
		{
			name: "duplicate provider",
			yaml: `
providers:
  entries: [{name: youtube}, {name: youtube}]
cache: {download_base_url: http://dl.local}
`,
			wantErr: "duplicate",
		},
		{
			name: "default not listed",
			yaml: `
providers:
  default: spotify
  entries: [{name: youtube}]
cache: {download_base_url: http://dl.local}
`,
			wantErr: "providers.default",
		},
		{
			name: "bad backend",
			yaml: `
cache: {backend: tape, download_base_url: http://dl.local}
`,
			wantErr: "cache.backend",
		},
		{
			name: "minio without endpoint",
			yaml: `
cache: {backend: minio, download_base_url: http://dl.local}
`,
			wantErr: "cache.minio.endpoint",
		},
		{
			name: "remote without url",
			yaml: `
cache: {backend: remote}
`,
			wantErr: "cache.download_base_url is required",
		},
		{
			name: "negative max pending",
			yaml: `
queue: {max_pending: -1}
cache: {download_base_url: http://dl.local}
`,
			wantErr: "queue.max_pending",
		},
		{
			name: "half tls",
			yaml: `
server: {tls: {cert_file: a.pem}}
cache: {download_base_url: http://dl.local}
`,
			wantErr: "server.tls",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if cfg == nil {
					t.Fatal("nil config")
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	t.Parallel()

	yaml := `
server: {log_level: loud}
queue: {max_pending: -3}
cache: {backend: floppy}
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"server.log_level", "queue.max_pending", "cache.backend"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestLoad_ExampleConfig(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load("../../configs/example.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Providers.Default != "youtube" || len(cfg.Providers.Entries) != 2 {
		t.Errorf("providers = %+v", cfg.Providers)
	}
	if cfg.Cache.Backend != config.CacheDisk || !cfg.Cache.YTDLP.Enabled {
		t.Errorf("cache = %+v", cfg.Cache)
	}
}

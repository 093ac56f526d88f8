package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	DefaultProviderChanged bool
	NewDefaultProvider     string

	DJRoleChanged bool
	NewDJRole     string

	// RestartRequired lists the top-level sections that changed in ways that
	// only take effect after a restart.
	RestartRequired []string
}

// Changed reports whether anything differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.DefaultProviderChanged || d.DJRoleChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Providers.Default != new.Providers.Default {
		d.DefaultProviderChanged = true
		d.NewDefaultProvider = new.Providers.Default
	}
	if old.Discord.DJRole != new.Discord.DJRole {
		d.DJRoleChanged = true
		d.NewDJRole = new.Discord.DJRole
	}

	oldServer, newServer := old.Server, new.Server
	oldServer.LogLevel, newServer.LogLevel = "", ""
	if oldServer.ListenAddr != newServer.ListenAddr || oldServer.Debug != newServer.Debug || !sameTLS(oldServer.TLS, newServer.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}

	oldDiscord, newDiscord := old.Discord, new.Discord
	oldDiscord.DJRole, newDiscord.DJRole = "", ""
	if oldDiscord != newDiscord {
		d.RestartRequired = append(d.RestartRequired, "discord")
	}

	if !sameProviders(old.Providers.Entries, new.Providers.Entries) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Cache != new.Cache {
		d.RestartRequired = append(d.RestartRequired, "cache")
	}
	if old.Queue != new.Queue {
		d.RestartRequired = append(d.RestartRequired, "queue")
	}
	if old.History != new.History {
		d.RestartRequired = append(d.RestartRequired, "history")
	}
	return d
}

func sameTLS(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// sameProviders compares entries by name and scalar settings. Options maps
// are not compared.
func sameProviders(a, b []ProviderEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name || a[i].SearchLimit != b[i].SearchLimit || a[i].DefaultThumbnail != b[i].DefaultThumbnail {
			return false
		}
	}
	return true
}

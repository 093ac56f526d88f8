// Package commands implements the Discord slash command handlers for chorus.
package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/chorus/internal/discord"
	"github.com/MrWong99/chorus/internal/dispatch"
	"github.com/MrWong99/chorus/internal/history"
	"github.com/MrWong99/chorus/internal/observe"
	"github.com/MrWong99/chorus/internal/queue"
	"github.com/MrWong99/chorus/internal/selection"
	"github.com/MrWong99/chorus/pkg/provider"
	"github.com/MrWong99/chorus/pkg/track"
)

// Replies shown to members.
const (
	msgNoResults      = "No Results Found"
	msgFetchFailed    = "Failed to fetch the audio file."
	msgNotAllowed     = "You aren't allowed"
	msgResumeFailed   = "Queued **%s** at position %d, but **%s** failed to start. Request another song to try again."
	msgGuildOnly      = "This command only works in a server."
	msgJoinVoice      = "Join a voice channel first."
	msgQueueFull      = "The queue is full. Try again after a few songs."
	msgSomethingWrong = "Something went wrong while processing your request."
)

// defaultTimeout bounds one request including the download of its audio.
const defaultTimeout = 2 * time.Minute

// Directory answers questions about members and guilds from the gateway
// state. [discord.Bot] implements it.
type Directory interface {
	VoiceChannel(guildID, userID string) (string, bool)
	GuildName(guildID string) string
}

// VoiceBinder selects the voice channel a guild's next stream goes to.
type VoiceBinder interface {
	Bind(guildID int64, channelID string)
}

// ChannelTracker learns where playback announcements should be posted.
// [discord.Announcer] implements it.
type ChannelTracker interface {
	SetChannel(guildID int64, channelID string)
}

// MusicConfig holds the dependencies of [MusicCommands].
type MusicConfig struct {
	Dispatcher *dispatch.Dispatcher

	// Providers lists the available providers. The first one is the default
	// unless Default names another.
	Providers []provider.Provider
	Default   string

	// History backs /history. Nil disables the command.
	History history.Store

	Perms     *discord.PermissionChecker
	Directory Directory
	Voice     VoiceBinder

	// Announcer is optional.
	Announcer ChannelTracker

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// Timeout bounds one request. Default 2 minutes.
	Timeout time.Duration
}

// MusicCommands handles /play, /search, /queue, /skip, /stop, /history and
// /help, plus the buttons attached to search results.
type MusicCommands struct {
	dispatcher *dispatch.Dispatcher
	history    history.Store
	perms      *discord.PermissionChecker
	directory  Directory
	voice      VoiceBinder
	announcer  ChannelTracker
	metrics    *observe.Metrics
	timeout    time.Duration

	mu          sync.RWMutex
	providers   map[string]provider.Provider
	defaultName string
}

// NewMusicCommands validates cfg and creates a MusicCommands.
func NewMusicCommands(cfg MusicConfig) (*MusicCommands, error) {
	if cfg.Dispatcher == nil {
		return nil, errors.New("commands: dispatcher is required")
	}
	if len(cfg.Providers) == 0 {
		return nil, errors.New("commands: at least one provider is required")
	}
	if cfg.Directory == nil || cfg.Voice == nil {
		return nil, errors.New("commands: directory and voice binder are required")
	}
	mc := &MusicCommands{
		dispatcher: cfg.Dispatcher,
		history:    cfg.History,
		perms:      cfg.Perms,
		directory:  cfg.Directory,
		voice:      cfg.Voice,
		announcer:  cfg.Announcer,
		metrics:    cfg.Metrics,
		timeout:    cfg.Timeout,
		providers:  make(map[string]provider.Provider, len(cfg.Providers)),
	}
	if mc.perms == nil {
		mc.perms = discord.NewPermissionChecker("")
	}
	if mc.metrics == nil {
		mc.metrics = observe.DefaultMetrics()
	}
	if mc.timeout <= 0 {
		mc.timeout = defaultTimeout
	}
	for _, p := range cfg.Providers {
		mc.providers[p.Name()] = p
	}
	mc.defaultName = cfg.Providers[0].Name()
	if cfg.Default != "" {
		if err := mc.SetDefaultProvider(cfg.Default); err != nil {
			return nil, err
		}
	}
	return mc, nil
}

// SetDefaultProvider switches the provider used by /play and /search.
func (mc *MusicCommands) SetDefaultProvider(name string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if _, ok := mc.providers[name]; !ok {
		return fmt.Errorf("commands: default provider %q is not available", name)
	}
	mc.defaultName = name
	return nil
}

// provider returns the provider called name, or the default one.
func (mc *MusicCommands) provider(name string) provider.Provider {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	if p, ok := mc.providers[name]; ok {
		return p
	}
	return mc.providers[mc.defaultName]
}

// Register registers all music commands and the selection buttons with the
// router.
func (mc *MusicCommands) Register(router *discord.CommandRouter) {
	for _, def := range mc.Definitions() {
		var h discord.HandlerFunc
		switch def.Name {
		case "play":
			h = mc.handlePlay
		case "search":
			h = mc.handleSearch
		case "queue":
			h = mc.handleQueue
		case "skip":
			h = mc.handleSkip
		case "stop":
			h = mc.handleStop
		case "history":
			h = mc.handleHistory
		case "help":
			h = mc.handleHelp
		}
		router.RegisterCommand(def.Name, def, h)
	}
	for _, action := range selection.Actions() {
		router.RegisterComponentPrefix(action+":", mc.handleSelect)
	}
}

// Definitions returns the ApplicationCommand definitions for Discord.
func (mc *MusicCommands) Definitions() []*discordgo.ApplicationCommand {
	queryOption := func(desc string) []*discordgo.ApplicationCommandOption {
		return []*discordgo.ApplicationCommandOption{{
			Name:        "query",
			Description: desc,
			Type:        discordgo.ApplicationCommandOptionString,
			Required:    true,
		}}
	}
	minLimit := 1.0
	defs := []*discordgo.ApplicationCommand{
		{Name: "play", Description: "Play a song by name or link", Options: queryOption("Song name or link")},
		{Name: "search", Description: "Search for songs and pick one", Options: queryOption("Search keywords")},
		{Name: "queue", Description: "Show what is playing and what comes next"},
		{Name: "skip", Description: "Skip the current song"},
		{Name: "stop", Description: "Stop playback and clear the queue"},
		{Name: "help", Description: "Show what chorus can do"},
	}
	if mc.history != nil {
		defs = append(defs, &discordgo.ApplicationCommand{
			Name:        "history",
			Description: "Show recently played songs",
			Options: []*discordgo.ApplicationCommandOption{{
				Name:        "limit",
				Description: "How many songs to show",
				Type:        discordgo.ApplicationCommandOptionInteger,
				MinValue:    &minLimit,
				MaxValue:    25,
			}},
		})
	}
	return defs
}

// request is a validated guild interaction.
type request struct {
	chat         queue.Chat
	requester    track.Requester
	voiceChannel string
}

// guildRequest checks that i comes from a guild member in a voice channel.
// It answers the interaction itself and returns false otherwise.
func (mc *MusicCommands) guildRequest(s discord.Responder, i *discordgo.InteractionCreate, needVoice bool) (request, bool) {
	guildID, err := strconv.ParseInt(i.GuildID, 10, 64)
	if err != nil || i.Member == nil {
		discord.RespondEphemeral(s, i, msgGuildOnly)
		return request{}, false
	}
	user := interactionUser(i)
	uid, _ := strconv.ParseInt(user.ID, 10, 64)
	req := request{
		chat:      queue.Chat{ID: guildID, Title: mc.directory.GuildName(i.GuildID)},
		requester: track.Requester{ID: uid, DisplayName: displayName(i)},
	}
	if needVoice {
		ch, ok := mc.directory.VoiceChannel(i.GuildID, user.ID)
		if !ok {
			discord.RespondEphemeral(s, i, msgJoinVoice)
			return request{}, false
		}
		req.voiceChannel = ch
	}
	return req, true
}

// interactionUser returns the user behind an interaction in guilds and DMs.
func interactionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	if i.User != nil {
		return i.User
	}
	return &discordgo.User{}
}

func displayName(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.Nick != "" {
		return i.Member.Nick
	}
	u := interactionUser(i)
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

// stringOption returns the value of a top-level string option.
func stringOption(i *discordgo.InteractionCreate, name string) string {
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == name && opt.Type == discordgo.ApplicationCommandOptionString {
			return opt.StringValue()
		}
	}
	return ""
}

// intOption returns the value of a top-level integer option, or def.
func intOption(i *discordgo.InteractionCreate, name string, def int) int {
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == name && opt.Type == discordgo.ApplicationCommandOptionInteger {
			return int(opt.IntValue())
		}
	}
	return def
}

// replyFor maps a request failure to the message shown to the member.
func replyFor(err error) string {
	switch {
	case errors.Is(err, provider.ErrNoResults), errors.Is(err, provider.ErrResolution):
		return msgNoResults
	case errors.Is(err, dispatch.ErrAudioUnavailable):
		return msgFetchFailed
	case errors.Is(err, queue.ErrQueueFull):
		return msgQueueFull
	case errors.Is(err, dispatch.ErrTransportStart):
		return "Couldn't start playback in your voice channel. Request another song to try again."
	default:
		slog.Warn("commands: unexpected error", "err", err)
		return msgSomethingWrong
	}
}

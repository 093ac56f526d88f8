package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/chorus/internal/dispatch"
	"github.com/MrWong99/chorus/pkg/track"
)

// Embed sidebar colors.
const (
	embedColorGreen = 0x2ECC71
	embedColorBlue  = 0x3498DB
	embedColorRed   = 0xE74C3C
	embedColorGrey  = 0x95A5A6
)

// MessageSender is the part of [discordgo.Session] the [Announcer] needs.
type MessageSender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditEmbed(channelID, messageID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

var _ MessageSender = (*discordgo.Session)(nil)

// announcement is the last now-playing message posted for a guild.
type announcement struct {
	channelID string
	messageID string
	rec       track.Record
}

// Announcer posts a "Now Playing" embed whenever a guild's stream changes
// and edits the previous one once its track is over. It implements
// [dispatch.Notifier].
//
// Thread-safe for concurrent use.
type Announcer struct {
	sender MessageSender

	mu       sync.Mutex
	channels map[int64]string       // guild → text channel of the latest request
	current  map[int64]announcement // guild → message of the playing track
}

var _ dispatch.Notifier = (*Announcer)(nil)

// NewAnnouncer creates an Announcer that sends through sender.
func NewAnnouncer(sender MessageSender) *Announcer {
	return &Announcer{
		sender:   sender,
		channels: make(map[int64]string),
		current:  make(map[int64]announcement),
	}
}

// SetChannel selects the text channel announcements for guildID go to.
func (a *Announcer) SetChannel(guildID int64, channelID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.channels[guildID] = channelID
}

// Notify implements [dispatch.Notifier]. Queued events are answered by the
// command that caused them and are ignored here.
func (a *Announcer) Notify(_ context.Context, ev dispatch.Event) {
	switch ev.Kind {
	case dispatch.EventNowPlaying:
		a.retire(ev.Chat.ID)
		a.post(ev.Chat.ID, ev.Track, TrackEmbed("Now Playing", ev.Track, embedColorGreen))
	case dispatch.EventStartFailed:
		a.retire(ev.Chat.ID)
		embed := TrackEmbed("Couldn't play", ev.Track, embedColorRed)
		embed.Description = "The voice connection refused the stream. Request another song to continue."
		a.post(ev.Chat.ID, track.Record{}, embed)
	case dispatch.EventIdle:
		a.retire(ev.Chat.ID)
	}
}

// post sends embed to the guild's channel and remembers it when rec is set.
func (a *Announcer) post(guildID int64, rec track.Record, embed *discordgo.MessageEmbed) {
	a.mu.Lock()
	channelID, ok := a.channels[guildID]
	a.mu.Unlock()
	if !ok {
		slog.Debug("announcer: no channel for guild", "chat_id", guildID)
		return
	}

	msg, err := a.sender.ChannelMessageSendEmbed(channelID, embed)
	if err != nil {
		slog.Warn("announcer: failed to send embed", "chat_id", guildID, "channel", channelID, "err", err)
		return
	}
	if rec.SourceID == "" {
		return
	}
	a.mu.Lock()
	a.current[guildID] = announcement{channelID: channelID, messageID: msg.ID, rec: rec}
	a.mu.Unlock()
}

// retire edits the guild's now-playing message into a "Played" entry.
func (a *Announcer) retire(guildID int64) {
	a.mu.Lock()
	prev, ok := a.current[guildID]
	delete(a.current, guildID)
	a.mu.Unlock()
	if !ok {
		return
	}

	embed := TrackEmbed("Played", prev.rec, embedColorGrey)
	if _, err := a.sender.ChannelMessageEditEmbed(prev.channelID, prev.messageID, embed); err != nil {
		slog.Warn("announcer: failed to edit embed", "chat_id", guildID, "message_id", prev.messageID, "err", err)
	}
}

// TrackEmbed renders rec as an embed titled heading.
func TrackEmbed(heading string, rec track.Record, color int) *discordgo.MessageEmbed {
	title := rec.Title
	if rec.Link != "" {
		title = fmt.Sprintf("[%s](%s)", rec.Title, rec.Link)
	}
	fields := []*discordgo.MessageEmbedField{
		{Name: "Title", Value: title, Inline: false},
		{Name: "Artist", Value: rec.Artist, Inline: true},
	}
	if rec.Duration != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Duration", Value: rec.Duration, Inline: true})
	}
	fields = append(fields, &discordgo.MessageEmbedField{Name: "Requested by", Value: rec.RequestedBy.Mention(), Inline: true})

	embed := &discordgo.MessageEmbed{
		Title:     heading,
		Color:     color,
		Fields:    fields,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if rec.ImageURL != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: rec.ImageURL}
	}
	if rec.Provider != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: rec.Provider}
	}
	return embed
}

// QueuedEmbed renders the reply for a request that joined the queue.
func QueuedEmbed(rec track.Record, position int) *discordgo.MessageEmbed {
	embed := TrackEmbed("Queued", rec, embedColorBlue)
	embed.Description = fmt.Sprintf("Position **%d** in the queue.", position)
	return embed
}

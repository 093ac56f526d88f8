package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/chorus/internal/discord"
	"github.com/MrWong99/chorus/internal/dispatch"
	"github.com/MrWong99/chorus/internal/observe"
	"github.com/MrWong99/chorus/internal/queue"
)

// maxListed caps how many pending tracks /queue prints.
const maxListed = 15

func (mc *MusicCommands) handleQueue(s discord.Responder, i *discordgo.InteractionCreate) {
	ctx := context.Background()
	req, ok := mc.guildRequest(s, i, false)
	if !ok {
		mc.metrics.RecordCommand(ctx, "queue", "rejected")
		return
	}
	snap, _ := mc.dispatcher.Store().Peek(req.chat.ID)
	discord.RespondMessage(s, i, FormatQueue(snap))
	mc.metrics.RecordCommand(ctx, "queue", "ok")
}

// FormatQueue renders a chat's now-playing track and pending tracks.
func FormatQueue(snap queue.ChatState) string {
	if snap.NowPlaying == nil && len(snap.Pending) == 0 {
		return "Nothing is playing and the queue is empty."
	}
	var b strings.Builder
	if np := snap.NowPlaying; np != nil {
		fmt.Fprintf(&b, "**Now playing:** %s", np.Track)
		if np.Track.Duration != "" {
			fmt.Fprintf(&b, " (%s)", np.Track.Duration)
		}
		fmt.Fprintf(&b, " requested by %s\n", np.Track.RequestedBy.Mention())
	} else {
		b.WriteString("**Now playing:** nothing\n")
	}
	if len(snap.Pending) == 0 {
		b.WriteString("The queue is empty.")
		return b.String()
	}
	b.WriteString("**Up next:**\n")
	for n, rec := range snap.Pending {
		if n == maxListed {
			fmt.Fprintf(&b, "...and %d more", len(snap.Pending)-maxListed)
			break
		}
		fmt.Fprintf(&b, "%d. %s\n", n+1, rec)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (mc *MusicCommands) handleSkip(s discord.Responder, i *discordgo.InteractionCreate) {
	ctx := context.Background()
	req, ok := mc.djRequest(ctx, s, i, "skip")
	if !ok {
		return
	}
	entry, err := mc.dispatcher.Skip(ctx, req.chat.ID)
	switch {
	case errors.Is(err, dispatch.ErrNotPlaying):
		discord.RespondEphemeral(s, i, "Nothing is playing.")
	case err != nil:
		observe.Logger(ctx).Warn("commands: skip failed", "chat_id", req.chat.ID, "err", err)
		discord.RespondEphemeral(s, i, msgSomethingWrong)
	default:
		discord.RespondMessage(s, i, fmt.Sprintf("Skipped **%s**", entry.Track))
	}
	mc.metrics.RecordCommand(ctx, "skip", commandStatus(err))
}

func (mc *MusicCommands) handleStop(s discord.Responder, i *discordgo.InteractionCreate) {
	ctx := context.Background()
	req, ok := mc.djRequest(ctx, s, i, "stop")
	if !ok {
		return
	}
	dropped, err := mc.dispatcher.Stop(ctx, req.chat.ID)
	if err != nil {
		observe.Logger(ctx).Warn("commands: stop failed", "chat_id", req.chat.ID, "err", err)
		discord.RespondEphemeral(s, i, msgSomethingWrong)
	} else {
		discord.RespondMessage(s, i, fmt.Sprintf("Stopped. Cleared %d queued track(s).", dropped))
	}
	mc.metrics.RecordCommand(ctx, "stop", commandStatus(err))
}

// djRequest is guildRequest plus the DJ role check.
func (mc *MusicCommands) djRequest(ctx context.Context, s discord.Responder, i *discordgo.InteractionCreate, cmd string) (request, bool) {
	req, ok := mc.guildRequest(s, i, false)
	if !ok {
		mc.metrics.RecordCommand(ctx, cmd, "rejected")
		return request{}, false
	}
	if !mc.perms.IsDJ(i) {
		discord.RespondEphemeral(s, i, "You need the DJ role for that.")
		mc.metrics.RecordCommand(ctx, cmd, "rejected")
		return request{}, false
	}
	return req, true
}

// commandStatus treats an idle chat as a normal outcome.
func commandStatus(err error) string {
	if errors.Is(err, dispatch.ErrNotPlaying) {
		return "ok"
	}
	return observe.Status(err)
}

package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/chorus/internal/discord"
	"github.com/MrWong99/chorus/internal/dispatch"
	"github.com/MrWong99/chorus/internal/observe"
	"github.com/MrWong99/chorus/internal/selection"
	"github.com/MrWong99/chorus/pkg/provider/youtube"
	"github.com/MrWong99/chorus/pkg/track"
)

// handlePlay resolves the query with the default provider and plays or queues
// the result.
func (mc *MusicCommands) handlePlay(s discord.Responder, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), mc.timeout)
	defer cancel()

	req, ok := mc.guildRequest(s, i, true)
	if !ok {
		mc.metrics.RecordCommand(ctx, "play", "rejected")
		return
	}
	query := stringOption(i, "query")
	if query == "" {
		discord.RespondEphemeral(s, i, "Tell me what to play.")
		mc.metrics.RecordCommand(ctx, "play", "rejected")
		return
	}

	discord.DeferReply(s, i)

	p := mc.provider("")
	rec, err := p.Resolve(ctx, query, req.requester)
	if err != nil {
		observe.Logger(ctx).Info("commands: play resolve failed",
			"chat_id", req.chat.ID, "provider", p.Name(), "err", err)
		discord.FollowUp(s, i, replyFor(err))
		mc.metrics.RecordCommand(ctx, "play", observe.Status(err))
		return
	}

	err = mc.dispatch(ctx, s, i, req, rec)
	mc.metrics.RecordCommand(ctx, "play", observe.Status(err))
}

// dispatch hands rec to the dispatcher and follows up on the deferred
// interaction with the outcome.
func (mc *MusicCommands) dispatch(ctx context.Context, s discord.Responder, i *discordgo.InteractionCreate, req request, rec track.Record) error {
	if mc.dispatcher.Store().IsIdle(req.chat.ID) {
		mc.voice.Bind(req.chat.ID, req.voiceChannel)
	}
	if mc.announcer != nil {
		mc.announcer.SetChannel(req.chat.ID, i.ChannelID)
	}

	out, err := mc.dispatcher.StreamOrQueue(ctx, req.chat, rec)
	var re *dispatch.ResumeError
	if errors.As(err, &re) {
		observe.Logger(ctx).Warn("commands: queued track behind a failed resume",
			"chat_id", req.chat.ID, "source_id", rec.SourceID, "head", re.Head.SourceID, "err", err)
		discord.FollowUp(s, i, fmt.Sprintf(msgResumeFailed, rec, out.Position, re.Head))
		return nil
	}
	if err != nil {
		if !errors.Is(err, dispatch.ErrTransportStart) {
			observe.Logger(ctx).Warn("commands: dispatch failed",
				"chat_id", req.chat.ID, "source_id", rec.SourceID, "err", err)
		}
		discord.FollowUp(s, i, replyFor(err))
		return err
	}
	if out.Started {
		discord.FollowUp(s, i, fmt.Sprintf("Playing **%s**", rec))
		return nil
	}
	discord.FollowUpEmbed(s, i, discord.QueuedEmbed(rec, out.Position))
	return nil
}

// handleSelect plays the search result behind a selection button. Only the
// member who ran the search may press its buttons; anyone else gets an
// ephemeral refusal and nothing changes.
func (mc *MusicCommands) handleSelect(s discord.Responder, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), mc.timeout)
	defer cancel()

	ctrl, err := selection.Decode(i.MessageComponentData().CustomID)
	if err != nil {
		discord.RespondEphemeral(s, i, "This button is no longer valid.")
		mc.metrics.RecordCommand(ctx, "select", "rejected")
		return
	}
	uid, _ := strconv.ParseInt(interactionUser(i).ID, 10, 64)
	if err := selection.Authorize(ctrl, uid); err != nil {
		discord.RespondEphemeral(s, i, msgNotAllowed)
		mc.metrics.SelectionRejections.Add(ctx, 1)
		mc.metrics.RecordCommand(ctx, "select", "rejected")
		return
	}

	req, ok := mc.guildRequest(s, i, true)
	if !ok {
		mc.metrics.RecordCommand(ctx, "select", "rejected")
		return
	}

	discord.DeferUpdate(s, i)

	name, err := selection.ProviderFor(ctrl.Action)
	if err != nil {
		observe.Logger(ctx).Warn("commands: selection for unknown provider",
			"action", ctrl.Action, "err", err)
	}
	p := mc.provider(name)
	rec, err := p.Resolve(ctx, youtube.WatchURL(ctrl.SourceID), req.requester)
	if err != nil {
		observe.Logger(ctx).Info("commands: selection resolve failed",
			"chat_id", req.chat.ID, "source_id", ctrl.SourceID, "err", err)
		discord.FollowUp(s, i, replyFor(err))
		mc.metrics.RecordCommand(ctx, "select", observe.Status(err))
		return
	}

	discord.ClearComponents(s, i, fmt.Sprintf("Picked **%s**", rec))
	err = mc.dispatch(ctx, s, i, req, rec)
	mc.metrics.RecordCommand(ctx, "select", observe.Status(err))
}

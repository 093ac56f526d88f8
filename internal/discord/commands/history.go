package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/chorus/internal/discord"
	"github.com/MrWong99/chorus/internal/history"
	"github.com/MrWong99/chorus/internal/observe"
)

func (mc *MusicCommands) handleHistory(s discord.Responder, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, ok := mc.guildRequest(s, i, false)
	if !ok {
		mc.metrics.RecordCommand(ctx, "history", "rejected")
		return
	}
	plays, err := mc.history.Recent(ctx, req.chat.ID, intOption(i, "limit", history.DefaultLimit))
	if err != nil {
		observe.Logger(ctx).Warn("commands: load history", "chat_id", req.chat.ID, "err", err)
		discord.RespondEphemeral(s, i, "Couldn't load the play history.")
		mc.metrics.RecordCommand(ctx, "history", "error")
		return
	}
	discord.RespondMessage(s, i, FormatHistory(plays))
	mc.metrics.RecordCommand(ctx, "history", "ok")
}

// FormatHistory renders plays newest first.
func FormatHistory(plays []history.Play) string {
	if len(plays) == 0 {
		return "Nothing has been played here yet."
	}
	var b strings.Builder
	b.WriteString("**Recently played:**")
	for n, p := range plays {
		fmt.Fprintf(&b, "\n%d. %s - %s", n+1, p.Title, p.Artist)
		if !p.StartedAt.IsZero() {
			fmt.Fprintf(&b, " <t:%d:R>", p.StartedAt.Unix())
		}
		fmt.Fprintf(&b, " (%s)", p.RequestedBy.Mention())
	}
	return b.String()
}

package commands

import (
	"context"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/chorus/internal/discord"
)

func (mc *MusicCommands) handleHelp(s discord.Responder, i *discordgo.InteractionCreate) {
	var b strings.Builder
	for _, def := range mc.Definitions() {
		b.WriteString("`/" + def.Name)
		for _, opt := range def.Options {
			b.WriteString(" " + opt.Name)
		}
		b.WriteString("` " + def.Description + "\n")
	}
	b.WriteString("Search buttons only work for the member who ran the search.")
	discord.RespondEmbed(s, i, &discordgo.MessageEmbed{
		Title:       "chorus",
		Description: b.String(),
	})
	mc.metrics.RecordCommand(context.Background(), "help", "ok")
}

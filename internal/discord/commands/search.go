package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/chorus/internal/discord"
	"github.com/MrWong99/chorus/internal/observe"
	"github.com/MrWong99/chorus/internal/selection"
	"github.com/MrWong99/chorus/pkg/provider"
	"github.com/MrWong99/chorus/pkg/track"
)

// buttonsPerRow is the most buttons Discord allows in one action row.
const buttonsPerRow = 5

// handleSearch lists the default provider's results for the query with one
// selection button per result.
func (mc *MusicCommands) handleSearch(s discord.Responder, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), mc.timeout)
	defer cancel()

	req, ok := mc.guildRequest(s, i, false)
	if !ok {
		mc.metrics.RecordCommand(ctx, "search", "rejected")
		return
	}
	query := stringOption(i, "query")
	if query == "" {
		discord.RespondEphemeral(s, i, "Tell me what to search for.")
		mc.metrics.RecordCommand(ctx, "search", "rejected")
		return
	}

	discord.DeferReply(s, i)

	p := mc.provider("")
	results, err := p.Search(ctx, query)
	if err == nil && len(results) == 0 {
		err = provider.ErrNoResults
	}
	if err != nil {
		observe.Logger(ctx).Info("commands: search failed",
			"chat_id", req.chat.ID, "provider", p.Name(), "err", err)
		discord.FollowUp(s, i, replyFor(err))
		mc.metrics.RecordCommand(ctx, "search", observe.Status(err))
		return
	}
	if len(results) > provider.DefaultSearchLimit {
		results = results[:provider.DefaultSearchLimit]
	}

	var components []discordgo.MessageComponent
	if action, ok := selection.ActionFor(p.Name()); ok {
		components = selectionRows(action, req.requester.ID, results)
	} else {
		observe.Logger(ctx).Warn("commands: provider has no selection action", "provider", p.Name())
	}
	discord.FollowUpComponents(s, i, FormatResults(results), components)
	mc.metrics.RecordCommand(ctx, "search", "ok")
}

// FormatResults renders search results as a numbered list:
//
//	01 : Title (3:45)
//	By : Artist
func FormatResults(results []track.Summary) string {
	var b strings.Builder
	for n, r := range results {
		if n > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%02d : %s", n+1, track.OrUnknown(r.Title))
		if r.Duration != "" {
			fmt.Fprintf(&b, " (%s)", r.Duration)
		}
		fmt.Fprintf(&b, "\nBy : %s", track.OrUnknown(r.Artist))
	}
	return b.String()
}

// selectionRows builds one button per result, labelled with its list number
// and carrying an encoded selection control. Results whose control cannot be
// encoded are left without a button.
func selectionRows(action string, userID int64, results []track.Summary) []discordgo.MessageComponent {
	var (
		rows []discordgo.MessageComponent
		row  discordgo.ActionsRow
		seen = make(map[string]bool, len(results))
	)
	for n, r := range results {
		id, err := selection.Control{Action: action, UserID: userID, SourceID: r.ID}.Encode()
		if err != nil || seen[id] {
			continue
		}
		seen[id] = true
		row.Components = append(row.Components, discordgo.Button{
			Label:    strconv.Itoa(n + 1),
			Style:    discordgo.SecondaryButton,
			CustomID: id,
		})
		if len(row.Components) == buttonsPerRow {
			rows = append(rows, row)
			row = discordgo.ActionsRow{}
		}
	}
	if len(row.Components) > 0 {
		rows = append(rows, row)
	}
	return rows
}

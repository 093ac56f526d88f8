package discord

import (
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/chorus/internal/discord/mock"
)

func TestPermissionChecker_IsDJ(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		djRoleID string
		inter    *discordgo.InteractionCreate
		want     bool
	}{
		{
			name:     "member with DJ role",
			djRoleID: "role-123",
			inter: &discordgo.InteractionCreate{
				Interaction: &discordgo.Interaction{
					Member: &discordgo.Member{Roles: []string{"role-456", "role-123", "role-789"}},
				},
			},
			want: true,
		},
		{
			name:     "member without DJ role",
			djRoleID: "role-123",
			inter: &discordgo.InteractionCreate{
				Interaction: &discordgo.Interaction{
					Member: &discordgo.Member{Roles: []string{"role-456", "role-789"}},
				},
			},
			want: false,
		},
		{
			name:     "empty role allows all",
			djRoleID: "",
			inter: &discordgo.InteractionCreate{
				Interaction: &discordgo.Interaction{
					Member: &discordgo.Member{Roles: []string{"role-456"}},
				},
			},
			want: true,
		},
		{
			name:     "nil Member returns false",
			djRoleID: "role-123",
			inter:    &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{}},
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			pc := NewPermissionChecker(tt.djRoleID)
			if got := pc.IsDJ(tt.inter); got != tt.want {
				t.Errorf("IsDJ() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPermissionChecker_SetRole(t *testing.T) {
	t.Parallel()

	pc := NewPermissionChecker("")
	i := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Member: &discordgo.Member{Roles: []string{"listener"}},
	}}
	if !pc.IsDJ(i) {
		t.Fatal("expected everyone to be DJ without a role")
	}
	pc.SetRole("dj")
	if pc.IsDJ(i) {
		t.Error("expected member without the new role to be rejected")
	}
}

func TestCommandRouter_ApplicationCommands_Dedup(t *testing.T) {
	t.Parallel()

	r := NewCommandRouter()
	cmd := &discordgo.ApplicationCommand{Name: "queue"}
	r.RegisterCommand("queue/show", cmd, func(Responder, *discordgo.InteractionCreate) {})
	r.RegisterCommand("queue/clear", cmd, func(Responder, *discordgo.InteractionCreate) {})
	r.RegisterHandler("hidden", func(Responder, *discordgo.InteractionCreate) {})

	cmds := r.ApplicationCommands()
	if len(cmds) != 1 {
		t.Fatalf("expected 1 deduplicated command, got %d", len(cmds))
	}
	if cmds[0].Name != "queue" {
		t.Errorf("command name = %q, want queue", cmds[0].Name)
	}
}

func TestCommandRouter_HandleCommand(t *testing.T) {
	t.Parallel()

	r := NewCommandRouter()
	var got string
	r.RegisterCommand("play", &discordgo.ApplicationCommand{Name: "play"}, func(Responder, *discordgo.InteractionCreate) {
		got = "play"
	})
	r.RegisterHandler("queue/clear", func(Responder, *discordgo.InteractionCreate) {
		got = "queue/clear"
	})

	tests := []struct {
		name string
		data discordgo.ApplicationCommandInteractionData
		want string
	}{
		{name: "top level", data: discordgo.ApplicationCommandInteractionData{Name: "play"}, want: "play"},
		{
			name: "subcommand",
			data: discordgo.ApplicationCommandInteractionData{
				Name: "queue",
				Options: []*discordgo.ApplicationCommandInteractionDataOption{
					{Name: "clear", Type: discordgo.ApplicationCommandOptionSubCommand},
				},
			},
			want: "queue/clear",
		},
	}
	for _, tt := range tests {
		got = ""
		s := &mock.Session{}
		r.Handle(s, &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
			Type: discordgo.InteractionApplicationCommand,
			Data: tt.data,
		}})
		if got != tt.want {
			t.Errorf("%s: handler = %q, want %q", tt.name, got, tt.want)
		}
		if len(s.Responses) != 0 {
			t.Errorf("%s: router responded itself", tt.name)
		}
	}
}

func TestCommandRouter_UnknownCommand(t *testing.T) {
	t.Parallel()

	s := &mock.Session{}
	NewCommandRouter().Handle(s, &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type: discordgo.InteractionApplicationCommand,
		Data: discordgo.ApplicationCommandInteractionData{Name: "nope"},
	}})
	resp := s.LastResponse()
	if resp == nil || resp.Data.Content != "Unknown command." || resp.Data.Flags != discordgo.MessageFlagsEphemeral {
		t.Errorf("response = %+v", resp)
	}
}

func TestCommandRouter_ComponentPrefix(t *testing.T) {
	t.Parallel()

	r := NewCommandRouter()
	var got string
	r.RegisterComponentPrefix("yt:", func(Responder, *discordgo.InteractionCreate) { got = "yt" })
	r.RegisterComponentPrefix("ytm:", func(Responder, *discordgo.InteractionCreate) { got = "ytm" })
	r.RegisterComponent("help", func(Responder, *discordgo.InteractionCreate) { got = "help" })

	for customID, want := range map[string]string{
		"yt:1:abc123xyz90":  "yt",
		"ytm:1:abc123xyz90": "ytm",
		"help":              "help",
	} {
		got = ""
		r.Handle(&mock.Session{}, &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
			Type: discordgo.InteractionMessageComponent,
			Data: discordgo.MessageComponentInteractionData{CustomID: customID},
		}})
		if got != want {
			t.Errorf("custom id %q routed to %q, want %q", customID, got, want)
		}
	}

	s := &mock.Session{}
	r.Handle(s, &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type: discordgo.InteractionMessageComponent,
		Data: discordgo.MessageComponentInteractionData{CustomID: "sp:1:x"},
	}})
	if resp := s.LastResponse(); resp == nil || resp.Data.Content != "Unknown component." {
		t.Errorf("unknown component response = %+v", resp)
	}
}

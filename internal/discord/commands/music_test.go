package commands

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/chorus/internal/discord"
	dmock "github.com/MrWong99/chorus/internal/discord/mock"
	"github.com/MrWong99/chorus/internal/dispatch"
	"github.com/MrWong99/chorus/internal/history"
	"github.com/MrWong99/chorus/internal/observe"
	"github.com/MrWong99/chorus/internal/queue"
	"github.com/MrWong99/chorus/pkg/provider"
	"github.com/MrWong99/chorus/pkg/provider/mock"
	"github.com/MrWong99/chorus/pkg/provider/youtube"
	"github.com/MrWong99/chorus/pkg/track"
	trmock "github.com/MrWong99/chorus/pkg/transport/mock"
)

// ─── test helpers ─────────────────────────────────────────────────────────────

const (
	testGuild   = "42"
	testChatID  = int64(42)
	ownerID     = "100"
	strangerID  = "200"
	testVoiceCh = "voice-1"
	testTextCh  = "text-1"
)

type fakeDirectory struct {
	voice map[string]string
}

func (d fakeDirectory) VoiceChannel(_, userID string) (string, bool) {
	ch, ok := d.voice[userID]
	return ch, ok
}

func (fakeDirectory) GuildName(string) string { return "Friday Night" }

type bind struct {
	guildID   int64
	channelID string
}

type fakeBinder struct {
	mu    sync.Mutex
	binds []bind
}

func (b *fakeBinder) Bind(guildID int64, channelID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.binds = append(b.binds, bind{guildID, channelID})
}

type fixture struct {
	mc       *MusicCommands
	router   *discord.CommandRouter
	session  *dmock.Session
	tr       *trmock.Transport
	yt       *mock.Provider
	ytm      *mock.Provider
	binder   *fakeBinder
	history  *history.Memory
	reader   *sdkmetric.ManualReader
	dispatch *dispatch.Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	f := &fixture{
		session: &dmock.Session{},
		tr:      &trmock.Transport{},
		yt: &mock.Provider{
			ProviderName:  "youtube",
			ResolveResult: song("abc123xyz90"),
		},
		ytm: &mock.Provider{
			ProviderName:  "ytmusic",
			ResolveResult: song("mus123xyz90"),
		},
		binder:  &fakeBinder{},
		history: history.NewMemory(10),
		reader:  reader,
	}
	f.dispatch = dispatch.New(queue.NewStore(queue.WithMetrics(m)), f.tr, dispatch.WithMetrics(m))
	f.mc, err = NewMusicCommands(MusicConfig{
		Dispatcher: f.dispatch,
		Providers:  []provider.Provider{f.yt, f.ytm},
		History:    f.history,
		Perms:      discord.NewPermissionChecker("dj"),
		Directory:  fakeDirectory{voice: map[string]string{ownerID: testVoiceCh}},
		Voice:      f.binder,
		Metrics:    m,
	})
	if err != nil {
		t.Fatalf("NewMusicCommands: %v", err)
	}
	f.router = discord.NewCommandRouter()
	f.mc.Register(f.router)
	return f
}

func song(id string) track.Record {
	return track.Record{
		SourceID: id,
		Title:    "Title " + id,
		Artist:   "Artist",
		Duration: "3:45",
		Link:     youtube.WatchURL(id),
		AudioRef: "/cache/" + id + ".mp3",
	}
}

func member(userID string, roles ...string) *discordgo.Member {
	return &discordgo.Member{User: &discordgo.User{ID: userID, Username: "user" + userID}, Roles: roles}
}

func slash(name string, m *discordgo.Member, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type:      discordgo.InteractionApplicationCommand,
		GuildID:   testGuild,
		ChannelID: testTextCh,
		Member:    m,
		Data:      discordgo.ApplicationCommandInteractionData{Name: name, Options: opts},
	}}
}

func query(q string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Name: "query", Type: discordgo.ApplicationCommandOptionString, Value: q,
	}
}

func button(customID string, m *discordgo.Member) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type:      discordgo.InteractionMessageComponent,
		GuildID:   testGuild,
		ChannelID: testTextCh,
		Member:    m,
		Data:      discordgo.MessageComponentInteractionData{CustomID: customID, ComponentType: discordgo.ButtonComponent},
	}}
}

func (f *fixture) handle(i *discordgo.InteractionCreate) {
	f.router.Handle(f.session, i)
}

// ephemeral returns the content of the last response if it was ephemeral.
func ephemeral(t *testing.T, s *dmock.Session) string {
	t.Helper()
	resp := s.LastResponse()
	if resp == nil || resp.Data == nil {
		t.Fatal("no message response recorded")
	}
	if resp.Data.Flags&discordgo.MessageFlagsEphemeral == 0 {
		t.Fatalf("response %q is not ephemeral", resp.Data.Content)
	}
	return resp.Data.Content
}

func followUp(t *testing.T, s *dmock.Session) *discordgo.WebhookParams {
	t.Helper()
	fu := s.LastFollowUp()
	if fu == nil {
		t.Fatal("no follow-up recorded")
	}
	return fu
}

func counter(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != name {
				continue
			}
			if sum, ok := met.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					total += dp.Value
				}
			}
		}
	}
	return total
}

// ─── /play ───────────────────────────────────────────────────────────────────

func TestPlay_IdleStarts(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.handle(slash("play", member(ownerID), query("some song")))

	if got := f.session.Responses[0].Type; got != discordgo.InteractionResponseDeferredChannelMessageWithSource {
		t.Errorf("first response type = %v, want deferred reply", got)
	}
	if len(f.yt.ResolveCalls) != 1 || f.yt.ResolveCalls[0].Input != "some song" {
		t.Fatalf("resolve calls = %+v", f.yt.ResolveCalls)
	}
	if got := f.yt.ResolveCalls[0].Requester.ID; got != 100 {
		t.Errorf("requester id = %d, want 100", got)
	}
	s, ok := f.tr.Active(testChatID)
	if !ok || s.AudioRef != "/cache/abc123xyz90.mp3" {
		t.Fatalf("active stream = %+v, %v", s, ok)
	}
	if len(f.binder.binds) != 1 || f.binder.binds[0] != (bind{testChatID, testVoiceCh}) {
		t.Errorf("binds = %+v", f.binder.binds)
	}
	if got := followUp(t, f.session).Content; !strings.Contains(got, "Playing **Title abc123xyz90 - Artist**") {
		t.Errorf("follow-up = %q", got)
	}
}

func TestPlay_QueuesWhilePlaying(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.handle(slash("play", member(ownerID), query("first")))
	f.yt.ResolveResult = song("second12345")
	f.handle(slash("play", member(ownerID), query("second")))

	if f.tr.StartCount() != 1 {
		t.Errorf("starts = %d, want 1", f.tr.StartCount())
	}
	if len(f.binder.binds) != 1 {
		t.Errorf("rebound a playing chat: %+v", f.binder.binds)
	}
	fu := followUp(t, f.session)
	if len(fu.Embeds) != 1 || !strings.Contains(fu.Embeds[0].Description, "Position **1**") {
		t.Fatalf("queued follow-up = %+v", fu)
	}
	snap, _ := f.dispatch.Store().Peek(testChatID)
	if len(snap.Pending) != 1 || snap.Pending[0].SourceID != "second12345" {
		t.Errorf("pending = %+v", snap.Pending)
	}
}

func TestPlay_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		setup   func(f *fixture)
		user    string
		want    string
		wantEph bool
	}{
		{
			name:    "not in voice",
			user:    strangerID,
			want:    msgJoinVoice,
			wantEph: true,
		},
		{
			name:  "no results",
			setup: func(f *fixture) { f.yt.ResolveErr = provider.ErrNoResults },
			user:  ownerID,
			want:  msgNoResults,
		},
		{
			name:  "resolution error",
			setup: func(f *fixture) { f.yt.ResolveErr = provider.ErrResolution },
			user:  ownerID,
			want:  msgNoResults,
		},
		{
			name: "audio unavailable",
			setup: func(f *fixture) {
				rec := song("noaudio1234")
				rec.AudioRef = ""
				f.yt.ResolveResult = rec
			},
			user: ownerID,
			want: msgFetchFailed,
		},
		{
			name:  "transport refuses",
			setup: func(f *fixture) { f.tr.StartErr = errors.New("voice gateway down") },
			user:  ownerID,
			want:  "Couldn't start playback",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			if tt.setup != nil {
				tt.setup(f)
			}

			f.handle(slash("play", member(tt.user), query("x")))

			var got string
			if tt.wantEph {
				got = ephemeral(t, f.session)
			} else {
				got = followUp(t, f.session).Content
			}
			if !strings.Contains(got, tt.want) {
				t.Errorf("reply = %q, want it to contain %q", got, tt.want)
			}
			if !f.dispatch.Store().IsIdle(testChatID) {
				t.Error("chat is not idle after a failed request")
			}
		})
	}
}

func TestPlay_QueuedBehindFailedResume(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	for _, id := range []string{"aaaaaaaaaaa", "bbbbbbbbbbb", "ccccccccccc"} {
		f.yt.ResolveResult = song(id)
		f.handle(slash("play", member(ownerID), query(id)))
	}
	f.tr.StartErrFor = map[string]error{
		"/cache/bbbbbbbbbbb.mp3": errors.New("voice gateway down"),
		"/cache/ccccccccccc.mp3": errors.New("voice gateway down"),
	}
	if !f.tr.Finish(testChatID, nil) {
		t.Fatal("nothing was playing")
	}

	f.yt.ResolveResult = song("ddddddddddd")
	f.handle(slash("play", member(ownerID), query("d")))

	got := followUp(t, f.session).Content
	want := "Queued **Title ddddddddddd - Artist** at position 1, but **Title ccccccccccc - Artist** failed to start."
	if !strings.Contains(got, want) {
		t.Errorf("reply = %q, want it to contain %q", got, want)
	}
	snap, _ := f.dispatch.Store().Peek(testChatID)
	if len(snap.Pending) != 1 || snap.Pending[0].SourceID != "ddddddddddd" {
		t.Errorf("pending = %+v, want [ddddddddddd]", snap.Pending)
	}
}

func TestPlay_OutsideGuild(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	i := slash("play", nil, query("x"))
	i.GuildID = ""
	i.User = &discordgo.User{ID: ownerID}
	f.handle(i)

	if got := ephemeral(t, f.session); got != msgGuildOnly {
		t.Errorf("reply = %q", got)
	}
	if len(f.yt.ResolveCalls) != 0 {
		t.Error("resolved outside a guild")
	}
}

// ─── /search and selection ───────────────────────────────────────────────────

func summaries(n int) []track.Summary {
	out := make([]track.Summary, n)
	for k := range out {
		id := strings.Repeat(string(rune('a'+k)), 11)
		out[k] = track.Summary{ID: id, Title: "Song " + id[:1], Artist: "Band", Duration: "2:00"}
	}
	return out
}

func TestSearch_ListsResultsWithButtons(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.yt.SearchResults = summaries(7)

	f.handle(slash("search", member(strangerID), query("band")))

	fu := followUp(t, f.session)
	if !strings.HasPrefix(fu.Content, "01 : Song a (2:00)\nBy : Band\n02 : Song b") {
		t.Errorf("content = %q", fu.Content)
	}
	if len(fu.Components) != 2 {
		t.Fatalf("rows = %d, want 2", len(fu.Components))
	}
	first := fu.Components[0].(discordgo.ActionsRow)
	second := fu.Components[1].(discordgo.ActionsRow)
	if len(first.Components) != 5 || len(second.Components) != 2 {
		t.Fatalf("row sizes = %d, %d", len(first.Components), len(second.Components))
	}
	b := first.Components[0].(discordgo.Button)
	if b.Label != "1" || b.CustomID != "yt:200:aaaaaaaaaaa" {
		t.Errorf("first button = %+v", b)
	}
	if f.tr.StartCount() != 0 {
		t.Error("search started playback")
	}
}

func TestSearch_NoResults(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.yt.SearchErr = provider.ErrNoResults

	f.handle(slash("search", member(ownerID), query("nothing")))

	if got := followUp(t, f.session).Content; got != msgNoResults {
		t.Errorf("reply = %q", got)
	}
}

func TestSearch_CapsResults(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.yt.SearchResults = summaries(14)

	f.handle(slash("search", member(ownerID), query("band")))

	fu := followUp(t, f.session)
	if n := strings.Count(fu.Content, "By : "); n != provider.DefaultSearchLimit {
		t.Errorf("listed %d results, want %d", n, provider.DefaultSearchLimit)
	}
	if len(fu.Components) != 2 {
		t.Errorf("rows = %d, want 2", len(fu.Components))
	}
}

func TestSelect_RejectsOtherUser(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.handle(button("yt:100:abc123xyz90", member(strangerID)))

	if got := ephemeral(t, f.session); got != msgNotAllowed {
		t.Errorf("reply = %q, want %q", got, msgNotAllowed)
	}
	if len(f.yt.ResolveCalls) != 0 || f.tr.StartCount() != 0 {
		t.Error("rejected selection changed state")
	}
	if len(f.session.Edits) != 0 {
		t.Error("rejected selection edited the result message")
	}
	if !f.dispatch.Store().IsIdle(testChatID) {
		t.Error("chat is no longer idle")
	}
	if got := counter(t, f.reader, "chorus.selection.rejections"); got != 1 {
		t.Errorf("selection rejections = %d, want 1", got)
	}
}

func TestSelect_OwnerPlays(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.handle(button("ytm:100:mus123xyz90", member(ownerID)))

	if got := f.session.Responses[0].Type; got != discordgo.InteractionResponseDeferredMessageUpdate {
		t.Errorf("first response type = %v, want deferred update", got)
	}
	if len(f.yt.ResolveCalls) != 0 {
		t.Error("selection resolved with the wrong provider")
	}
	if len(f.ytm.ResolveCalls) != 1 || f.ytm.ResolveCalls[0].Input != youtube.WatchURL("mus123xyz90") {
		t.Fatalf("ytmusic resolve calls = %+v", f.ytm.ResolveCalls)
	}
	if s, ok := f.tr.Active(testChatID); !ok || s.AudioRef != "/cache/mus123xyz90.mp3" {
		t.Errorf("active stream = %+v, %v", s, ok)
	}
	if len(f.session.Edits) != 1 || f.session.Edits[0].Components == nil || len(*f.session.Edits[0].Components) != 0 {
		t.Errorf("buttons were not cleared: %+v", f.session.Edits)
	}
}

func TestSelect_InvalidPayload(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.handle(button("yt:notanumber:abc", member(ownerID)))

	if got := ephemeral(t, f.session); !strings.Contains(got, "no longer valid") {
		t.Errorf("reply = %q", got)
	}
}

// ─── /queue, /skip, /stop ────────────────────────────────────────────────────

func TestQueueSkipStop(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.tr.FinishOnStop = true
	dj := member(ownerID, "dj")

	f.handle(slash("play", dj, query("one")))
	f.yt.ResolveResult = song("two12345678")
	f.handle(slash("play", dj, query("two")))
	f.yt.ResolveResult = song("three123456")
	f.handle(slash("play", dj, query("three")))

	f.handle(slash("queue", member(strangerID)))
	got := f.session.LastResponse().Data.Content
	if !strings.Contains(got, "**Now playing:** Title abc123xyz90 - Artist (3:45)") ||
		!strings.Contains(got, "1. Title two12345678 - Artist") ||
		!strings.Contains(got, "2. Title three123456 - Artist") {
		t.Errorf("queue = %q", got)
	}

	f.handle(slash("skip", member(strangerID)))
	if got := ephemeral(t, f.session); !strings.Contains(got, "DJ role") {
		t.Errorf("non-DJ skip reply = %q", got)
	}
	if len(f.tr.Stops) != 0 {
		t.Fatal("non-DJ skip stopped playback")
	}

	f.handle(slash("skip", dj))
	if got := f.session.LastResponse().Data.Content; got != "Skipped **Title abc123xyz90 - Artist**" {
		t.Errorf("skip reply = %q", got)
	}
	if s, ok := f.tr.Active(testChatID); !ok || s.AudioRef != "/cache/two12345678.mp3" {
		t.Errorf("after skip active = %+v, %v", s, ok)
	}

	f.handle(slash("stop", dj))
	if got := f.session.LastResponse().Data.Content; !strings.Contains(got, "Cleared 1") {
		t.Errorf("stop reply = %q", got)
	}
	if !f.dispatch.Store().IsIdle(testChatID) {
		t.Error("chat not idle after stop")
	}

	f.handle(slash("skip", dj))
	if got := ephemeral(t, f.session); got != "Nothing is playing." {
		t.Errorf("idle skip reply = %q", got)
	}
}

func TestFormatQueue_Empty(t *testing.T) {
	t.Parallel()
	if got := FormatQueue(queue.ChatState{}); got != "Nothing is playing and the queue is empty." {
		t.Errorf("FormatQueue = %q", got)
	}
}

// ─── /history, /help ─────────────────────────────────────────────────────────

func TestHistory(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	for _, id := range []string{"old", "new"} {
		if err := f.history.Record(ctx, history.Play{ChatID: testChatID, Title: id, Artist: "Band",
			RequestedBy: track.Requester{ID: 1, DisplayName: "ann"}}); err != nil {
			t.Fatal(err)
		}
	}

	f.handle(slash("history", member(ownerID), &discordgo.ApplicationCommandInteractionDataOption{
		Name: "limit", Type: discordgo.ApplicationCommandOptionInteger, Value: float64(1),
	}))

	got := f.session.LastResponse().Data.Content
	if !strings.Contains(got, "1. new - Band (ann)") || strings.Contains(got, "old") {
		t.Errorf("history = %q", got)
	}
}

func TestHelp_ListsCommands(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.handle(slash("help", member(ownerID)))

	resp := f.session.LastResponse()
	if resp == nil || len(resp.Data.Embeds) != 1 {
		t.Fatalf("help response = %+v", resp)
	}
	for _, cmd := range []string{"/play query", "/search query", "/queue", "/skip", "/stop", "/history limit"} {
		if !strings.Contains(resp.Data.Embeds[0].Description, cmd) {
			t.Errorf("help does not mention %q", cmd)
		}
	}
}

// ─── construction ────────────────────────────────────────────────────────────

func TestNewMusicCommands_Validation(t *testing.T) {
	t.Parallel()
	d := dispatch.New(queue.NewStore(), &trmock.Transport{})
	dir := fakeDirectory{}
	yt := &mock.Provider{ProviderName: "youtube"}

	tests := []struct {
		name string
		cfg  MusicConfig
	}{
		{"no dispatcher", MusicConfig{Providers: []provider.Provider{yt}, Directory: dir, Voice: &fakeBinder{}}},
		{"no providers", MusicConfig{Dispatcher: d, Directory: dir, Voice: &fakeBinder{}}},
		{"no directory", MusicConfig{Dispatcher: d, Providers: []provider.Provider{yt}, Voice: &fakeBinder{}}},
		{"unknown default", MusicConfig{Dispatcher: d, Providers: []provider.Provider{yt}, Directory: dir, Voice: &fakeBinder{}, Default: "spotify"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := NewMusicCommands(tt.cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSetDefaultProvider(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	if err := f.mc.SetDefaultProvider("ytmusic"); err != nil {
		t.Fatalf("SetDefaultProvider: %v", err)
	}
	f.handle(slash("play", member(ownerID), query("x")))
	if len(f.ytm.ResolveCalls) != 1 || len(f.yt.ResolveCalls) != 0 {
		t.Errorf("resolve calls yt=%d ytm=%d", len(f.yt.ResolveCalls), len(f.ytm.ResolveCalls))
	}
	if err := f.mc.SetDefaultProvider("spotify"); err == nil {
		t.Error("unknown provider accepted")
	}
}

func TestFormatResults(t *testing.T) {
	t.Parallel()

	got := FormatResults([]track.Summary{
		{ID: "a", Title: "Yellow", Artist: "Coldplay", Duration: "4:29"},
		{ID: "b"},
	})
	want := "01 : Yellow (4:29)\nBy : Coldplay\n02 : " + track.UnknownField + "\nBy : " + track.UnknownField
	if got != want {
		t.Errorf("FormatResults =\n%s\nwant\n%s", got, want)
	}
}

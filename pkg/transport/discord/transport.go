// Package discord provides a [transport.Transport] backed by Discord voice
// channels via the bwmarrin/discordgo library.
//
// A chat is a Discord guild. Before a guild can play, the bot layer binds it
// to a voice channel with [Transport.Bind], usually the channel of the member
// who made the request. Start joins that channel, decodes the audio reference
// to 48 kHz stereo PCM, encodes it to Opus and feeds the voice connection.
package discord

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/chorus/pkg/transport"
)

var _ transport.Transport = (*Transport)(nil)

// Option is a functional option for [New].
type Option func(*Transport)

// WithDecoder replaces the ffmpeg decoder.
func WithDecoder(d Decoder) Option {
	return func(t *Transport) {
		t.decode = d
	}
}

// WithBitrate sets the Opus bitrate in bits per second. Zero keeps the
// encoder default.
func WithBitrate(bps int) Option {
	return func(t *Transport) {
		t.bitrate = bps
	}
}

// joinFunc joins a voice channel. Overridden in tests.
type joinFunc func(guildID, channelID string) (*discordgo.VoiceConnection, error)

// Transport implements [transport.Transport] for Discord.
//
// Transport is safe for concurrent use.
type Transport struct {
	join       joinFunc
	disconnect func(*discordgo.VoiceConnection) error
	decode     Decoder
	bitrate    int

	mu       sync.Mutex
	channels map[int64]string
	players  map[int64]*player
	voice    map[int64]*discordgo.VoiceConnection
}

// New creates a Transport that joins voice channels through session.
func New(session *discordgo.Session, opts ...Option) *Transport {
	t := &Transport{
		join: func(guildID, channelID string) (*discordgo.VoiceConnection, error) {
			// mute=false (we send audio), deaf=true (we never listen).
			return session.ChannelVoiceJoin(guildID, channelID, false, true)
		},
		disconnect: func(vc *discordgo.VoiceConnection) error { return vc.Disconnect() },
		decode:     FFmpegDecoder(""),
		channels:   make(map[int64]string),
		players:    make(map[int64]*player),
		voice:      make(map[int64]*discordgo.VoiceConnection),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Bind sets the voice channel used for the guild's next stream.
func (t *Transport) Bind(guildID int64, channelID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.channels[guildID] = channelID
}

// Channel returns the voice channel bound to the guild.
func (t *Transport) Channel(guildID int64) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch, ok := t.channels[guildID]
	return ch, ok
}

// Start implements [transport.Transport].
func (t *Transport) Start(ctx context.Context, s transport.Stream, onFinish transport.FinishFunc) error {
	channelID, ok := t.Channel(s.ChatID)
	if !ok {
		return fmt.Errorf("discord: guild %d: %w", s.ChatID, transport.ErrNoChannel)
	}
	guildID := strconv.FormatInt(s.ChatID, 10)

	vc, err := t.join(guildID, channelID)
	if err != nil {
		return fmt.Errorf("discord: join voice channel %q: %w", channelID, err)
	}
	// Remember the connection before anything else can fail so Leave and
	// Close still disconnect it.
	t.mu.Lock()
	t.voice[s.ChatID] = vc
	t.mu.Unlock()

	// The stream outlives the request that started it; Stop and Close end it.
	pcm, err := t.decode(context.WithoutCancel(ctx), s.AudioRef)
	if err != nil {
		return fmt.Errorf("discord: open %q: %w", s.AudioRef, err)
	}

	enc, err := newOpusEncoder(t.bitrate)
	if err != nil {
		_ = pcm.Close()
		return err
	}

	p := &player{
		stream:   s,
		vc:       vc,
		pcm:      pcm,
		enc:      enc,
		onFinish: onFinish,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	t.mu.Lock()
	prev := t.players[s.ChatID]
	t.players[s.ChatID] = p
	t.mu.Unlock()

	if prev != nil {
		prev.halt()
		<-prev.done
	}

	go func() {
		p.run()
		t.mu.Lock()
		if t.players[s.ChatID] == p {
			delete(t.players, s.ChatID)
		}
		t.mu.Unlock()
		p.finish()
	}()
	return nil
}

// Stop implements [transport.Transport]. It returns once the stream has
// stopped sending audio; the finish callback runs afterwards.
func (t *Transport) Stop(ctx context.Context, chatID int64) error {
	t.mu.Lock()
	p := t.players[chatID]
	t.mu.Unlock()
	if p == nil {
		return nil
	}
	p.halt()
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("discord: stop guild %d: %w", chatID, ctx.Err())
	}
}

// Leave stops any stream in the guild and disconnects from voice.
func (t *Transport) Leave(ctx context.Context, guildID int64) error {
	if err := t.Stop(ctx, guildID); err != nil {
		return err
	}
	t.mu.Lock()
	vc := t.voice[guildID]
	delete(t.voice, guildID)
	t.mu.Unlock()
	if vc == nil {
		return nil
	}
	if err := t.disconnect(vc); err != nil {
		return fmt.Errorf("discord: leave guild %d: %w", guildID, err)
	}
	return nil
}

// Close leaves every guild.
func (t *Transport) Close(ctx context.Context) error {
	t.mu.Lock()
	ids := make([]int64, 0, len(t.voice))
	for id := range t.voice {
		ids = append(ids, id)
	}
	t.mu.Unlock()

	var errs []error
	for _, id := range ids {
		errs = append(errs, t.Leave(ctx, id))
	}
	return errors.Join(errs...)
}

// player pumps one stream into a voice connection.
type player struct {
	stream   transport.Stream
	vc       *discordgo.VoiceConnection
	pcm      io.ReadCloser
	enc      *opusEncoder
	onFinish transport.FinishFunc

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	err      error

	closeOnce sync.Once
	closeErr  error
}

// halt signals the pump to stop and closes the decoder so that a blocked
// read returns.
func (p *player) halt() {
	p.stopOnce.Do(func() {
		close(p.stop)
		p.closePCM()
	})
}

func (p *player) closePCM() error {
	p.closeOnce.Do(func() { p.closeErr = p.pcm.Close() })
	return p.closeErr
}

func (p *player) stopped() bool {
	select {
	case <-p.stop:
		return true
	default:
		return false
	}
}

func (p *player) run() {
	defer close(p.done)

	log := slog.With("chat_id", p.stream.ChatID, "session_id", p.stream.SessionID)
	p.setSpeaking(true)
	defer p.setSpeaking(false)

	frame := make([]byte, pcmFrameBytes)
	for {
		if p.stopped() {
			break
		}
		_, err := io.ReadFull(p.pcm, frame)
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			// A trailing partial frame is dropped.
			break
		}
		if err != nil {
			if !p.stopped() {
				p.err = fmt.Errorf("discord: read pcm: %w", err)
			}
			break
		}

		opus, err := p.enc.encode(frame)
		if err != nil {
			log.Warn("discord: opus encode error", "err", err)
			continue
		}

		select {
		case p.vc.OpusSend <- opus:
		case <-p.stop:
		}
	}

	closeErr := p.closePCM()
	if p.err == nil && closeErr != nil && !p.stopped() {
		p.err = closeErr
	}
}

func (p *player) finish() {
	if p.err != nil {
		slog.Warn("discord: playback ended with error",
			"chat_id", p.stream.ChatID, "title", p.stream.Title, "err", p.err)
	}
	if p.onFinish != nil {
		p.onFinish(p.stream, p.err)
	}
}

func (p *player) setSpeaking(b bool) {
	if err := p.vc.Speaking(b); err != nil {
		slog.Debug("discord: speaking notification error", "speaking", b, "err", err)
	}
}

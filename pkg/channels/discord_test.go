package channels

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/sipeed/ordersync/pkg/bus"
	"github.com/sipeed/ordersync/pkg/config"
)

type discordSent struct {
	channelID string
	content   string
	replyTo   string
}

type discordRecorder struct {
	mu   sync.Mutex
	sent []discordSent
}

func (r *discordRecorder) all() []discordSent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]discordSent(nil), r.sent...)
}

func newTestDiscordChannel(t *testing.T, allow []string) (*DiscordChannel, *bus.MessageBus, *discordRecorder) {
	t.Helper()
	mb := bus.NewMessageBus()
	t.Cleanup(mb.Close)

	rec := &discordRecorder{}
	ch := &DiscordChannel{
		BaseChannel: NewBaseChannel("discord", mb, allow),
		config:      config.DiscordConfig{Command: "syncorders"},
		ctx:         context.Background(),
	}
	ch.sendMessageFn = func(channelID, content string) (string, error) {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.sent = append(rec.sent, discordSent{channelID: channelID, content: content})
		return "m1", nil
	}
	ch.sendReplyFn = func(channelID, content, replyTo string) error {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.sent = append(rec.sent, discordSent{channelID: channelID, content: content, replyTo: replyTo})
		return nil
	}
	ch.respondFn = func(*discordgo.Interaction, string) error { return nil }
	ch.setRunning(true)
	return ch, mb, rec
}

func commandInteraction(name, channelID string, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.Interaction {
	return &discordgo.Interaction{
		Type:      discordgo.InteractionApplicationCommand,
		ChannelID: channelID,
		Member: &discordgo.Member{
			User: &discordgo.User{ID: "42", Username: "alice"},
		},
		Data: discordgo.ApplicationCommandInteractionData{
			Name:    name,
			Options: opts,
		},
	}
}

func TestNormalizeDiscordBotToken(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "raw", in: "abc123", want: "abc123"},
		{name: "bot prefix", in: "Bot abc123", want: "abc123"},
		{name: "bot prefix lowercase", in: "bot abc123", want: "abc123"},
		{name: "quoted", in: "\"abc123\"", want: "abc123"},
		{name: "quoted with bot prefix", in: "'Bot abc123'", want: "abc123"},
		{name: "spaces", in: "   Bot   abc123   ", want: "abc123"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizeDiscordBotToken(tc.in); got != tc.want {
				t.Fatalf("NormalizeDiscordBotToken(%q)=%q want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestDiscordCommandQueuesInvokingChannel(t *testing.T) {
	ch, mb, _ := newTestDiscordChannel(t, nil)

	reply := ch.handleCommand(context.Background(), commandInteraction("syncorders", "100"))
	if !strings.Contains(reply, "<#100>") {
		t.Fatalf("reply = %q", reply)
	}

	req, ok := mb.Consume(context.Background())
	if !ok {
		t.Fatal("no request queued")
	}
	want := bus.SyncRequest{Channel: "discord", ChatID: "100", SenderID: "42|alice", Trigger: "discord:/syncorders"}
	if req != want {
		t.Fatalf("request = %+v, want %+v", req, want)
	}
}

func TestDiscordCommandChannelOption(t *testing.T) {
	ch, mb, _ := newTestDiscordChannel(t, nil)

	ch.handleCommand(context.Background(), commandInteraction("syncorders", "100",
		&discordgo.ApplicationCommandInteractionDataOption{
			Name:  "channel",
			Type:  discordgo.ApplicationCommandOptionChannel,
			Value: "200",
		},
	))

	req, _ := mb.Consume(context.Background())
	if req.ChatID != "200" {
		t.Fatalf("chat id = %q, want 200", req.ChatID)
	}
}

func TestDiscordCommandAllowlist(t *testing.T) {
	ch, _, _ := newTestDiscordChannel(t, []string{"7"})

	reply := ch.handleCommand(context.Background(), commandInteraction("syncorders", "100"))
	if !strings.Contains(reply, "not allowed") {
		t.Fatalf("reply = %q", reply)
	}
}

func TestDiscordIgnoresOtherCommands(t *testing.T) {
	ch, _, _ := newTestDiscordChannel(t, nil)

	if reply := ch.handleCommand(context.Background(), commandInteraction("other", "100")); reply != "" {
		t.Fatalf("reply = %q", reply)
	}
}

func TestDiscordApplicationCommandShape(t *testing.T) {
	ch, _, _ := newTestDiscordChannel(t, nil)
	ch.config.Command = "/syncorders"

	cmd := ch.applicationCommand()
	if cmd.Name != "syncorders" {
		t.Fatalf("name = %q", cmd.Name)
	}
	if len(cmd.Options) != 1 || cmd.Options[0].Required || cmd.Options[0].Type != discordgo.ApplicationCommandOptionChannel {
		t.Fatalf("options = %+v", cmd.Options)
	}
}

func TestDiscordPostThenReply(t *testing.T) {
	ch, _, rec := newTestDiscordChannel(t, nil)
	ctx := context.Background()

	ref, err := ch.Post(ctx, "100", ":arrows_counterclockwise: Starting order sync…")
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if err := ch.Reply(ctx, "100", ref, "Found 1 order row(s) in column B."); err != nil {
		t.Fatalf("Reply: %v", err)
	}

	sent := rec.all()
	if len(sent) != 2 {
		t.Fatalf("sent = %+v", sent)
	}
	if sent[0].replyTo != "" || sent[1].replyTo != "m1" {
		t.Fatalf("sent = %+v", sent)
	}
}

func TestDiscordReplySplitsLongMessages(t *testing.T) {
	ch, _, rec := newTestDiscordChannel(t, nil)

	long := strings.Repeat(strings.Repeat("y", 99)+"\n", 50)
	if err := ch.Reply(context.Background(), "100", "m1", long); err != nil {
		t.Fatalf("Reply: %v", err)
	}
	sent := rec.all()
	if len(sent) < 3 {
		t.Fatalf("expected at least 3 chunks, got %d", len(sent))
	}
	for _, s := range sent {
		if runeCount(s.content) > discordChunkRunes {
			t.Fatalf("chunk too long: %d", runeCount(s.content))
		}
	}
}

func TestDiscordPostTimeout(t *testing.T) {
	ch, _, _ := newTestDiscordChannel(t, nil)
	release := make(chan struct{})
	defer close(release)
	ch.sendMessageFn = func(string, string) (string, error) {
		<-release
		return "", nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := ch.Post(ctx, "100", "hello")
	if err == nil || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestDiscordPostRequiresChannel(t *testing.T) {
	ch, _, _ := newTestDiscordChannel(t, nil)
	if _, err := ch.Post(context.Background(), "", "hello"); err == nil {
		t.Fatal("expected error for empty channel")
	}
}

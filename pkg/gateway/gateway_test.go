package gateway

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sipeed/ordersync/pkg/bus"
	"github.com/sipeed/ordersync/pkg/channels"
	"github.com/sipeed/ordersync/pkg/syncer"
)

type posted struct {
	chatID string
	ref    string
	text   string
}

type fakeChannel struct {
	mu      sync.Mutex
	posts   []posted
	replies []posted
	postErr error
}

func (f *fakeChannel) Name() string                { return "slack" }
func (f *fakeChannel) Start(context.Context) error { return nil }
func (f *fakeChannel) Stop(context.Context) error  { return nil }
func (f *fakeChannel) IsRunning() bool             { return true }

func (f *fakeChannel) Post(_ context.Context, chatID, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.postErr != nil {
		return "", f.postErr
	}
	f.posts = append(f.posts, posted{chatID: chatID, text: text})
	return "ts-1", nil
}

func (f *fakeChannel) Reply(_ context.Context, chatID, ref, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, posted{chatID: chatID, ref: ref, text: text})
	return nil
}

func (f *fakeChannel) snapshot() ([]posted, []posted) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]posted(nil), f.posts...), append([]posted(nil), f.replies...)
}

type lookup map[string]channels.Channel

func (l lookup) Get(name string) (channels.Channel, bool) {
	ch, ok := l[name]
	return ch, ok
}

type runnerFunc func(ctx context.Context, trigger string) (*syncer.Result, error)

func (f runnerFunc) Run(ctx context.Context, trigger string) (*syncer.Result, error) {
	return f(ctx, trigger)
}

func TestTriggerPostsNoticeThenThreadedSummary(t *testing.T) {
	ch := &fakeChannel{}
	var gotTrigger string
	g := New(bus.NewMessageBus(), lookup{"slack": ch}, runnerFunc(func(_ context.Context, trigger string) (*syncer.Result, error) {
		gotTrigger = trigger
		return &syncer.Result{InputColumn: "B"}, nil
	}))

	err := g.Trigger(context.Background(), bus.SyncRequest{Channel: "slack", ChatID: "C1", Trigger: "slack:/syncorders"})
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if gotTrigger != "slack:/syncorders" {
		t.Fatalf("trigger = %q", gotTrigger)
	}

	posts, replies := ch.snapshot()
	if len(posts) != 1 || posts[0].text != StartingNotice || posts[0].chatID != "C1" {
		t.Fatalf("posts = %+v", posts)
	}
	if len(replies) != 1 || replies[0].ref != "ts-1" {
		t.Fatalf("replies = %+v", replies)
	}
	if !strings.HasPrefix(replies[0].text, "No order numbers") {
		t.Fatalf("summary = %q", replies[0].text)
	}
}

func TestTriggerRepliesWithFailure(t *testing.T) {
	ch := &fakeChannel{}
	g := New(bus.NewMessageBus(), lookup{"slack": ch}, runnerFunc(func(context.Context, string) (*syncer.Result, error) {
		return nil, errors.New("read sheet: 403 forbidden")
	}))

	if err := g.Trigger(context.Background(), bus.SyncRequest{Channel: "slack", ChatID: "C1"}); err == nil {
		t.Fatal("expected run error")
	}
	_, replies := ch.snapshot()
	if len(replies) != 1 || replies[0].text != "Order sync failed: read sheet: 403 forbidden" {
		t.Fatalf("replies = %+v", replies)
	}
}

func TestTriggerRecoversPanic(t *testing.T) {
	ch := &fakeChannel{}
	g := New(bus.NewMessageBus(), lookup{"slack": ch}, runnerFunc(func(context.Context, string) (*syncer.Result, error) {
		panic("nil map")
	}))

	err := g.Trigger(context.Background(), bus.SyncRequest{Channel: "slack", ChatID: "C1"})
	if err == nil || !strings.Contains(err.Error(), "nil map") {
		t.Fatalf("err = %v", err)
	}
	_, replies := ch.snapshot()
	if len(replies) != 1 || !strings.HasPrefix(replies[0].text, "Order sync failed:") {
		t.Fatalf("replies = %+v", replies)
	}
}

func TestTriggerStillRunsWhenNoticeFails(t *testing.T) {
	ch := &fakeChannel{postErr: errors.New("not_in_channel")}
	ran := false
	g := New(bus.NewMessageBus(), lookup{"slack": ch}, runnerFunc(func(context.Context, string) (*syncer.Result, error) {
		ran = true
		return &syncer.Result{InputColumn: "B"}, nil
	}))

	g.Trigger(context.Background(), bus.SyncRequest{Channel: "slack", ChatID: "C1"})
	if !ran {
		t.Fatal("run was skipped")
	}
	_, replies := ch.snapshot()
	if len(replies) != 1 || replies[0].ref != "" {
		t.Fatalf("replies = %+v", replies)
	}
}

func TestTriggerUnknownChannel(t *testing.T) {
	g := New(bus.NewMessageBus(), lookup{}, runnerFunc(func(context.Context, string) (*syncer.Result, error) {
		t.Fatal("runner should not be called")
		return nil, nil
	}))
	if err := g.Trigger(context.Background(), bus.SyncRequest{Channel: "irc"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestRunDispatchesUntilBusCloses(t *testing.T) {
	ch := &fakeChannel{}
	mb := bus.NewMessageBus()
	var mu sync.Mutex
	runs := 0
	g := New(mb, lookup{"slack": ch}, runnerFunc(func(context.Context, string) (*syncer.Result, error) {
		mu.Lock()
		runs++
		mu.Unlock()
		return &syncer.Result{InputColumn: "B"}, nil
	}))

	done := make(chan error, 1)
	go func() { done <- g.Run(context.Background()) }()

	for i := 0; i < 3; i++ {
		if err := mb.Publish(context.Background(), bus.SyncRequest{Channel: "slack", ChatID: "C1"}); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		_, replies := ch.snapshot()
		if len(replies) == 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("replies = %d, want 3", len(replies))
		}
		time.Sleep(5 * time.Millisecond)
	}

	mb.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Close")
	}
	mu.Lock()
	defer mu.Unlock()
	if runs != 3 {
		t.Fatalf("runs = %d, want 3", runs)
	}
}

type targetLog struct {
	targets []string
}

func (l *targetLog) SetLastTarget(channel, chatID string) error {
	l.targets = append(l.targets, channel+":"+chatID)
	return nil
}

func TestTriggerRecordsChatTargetsOnly(t *testing.T) {
	ch := &fakeChannel{}
	g := New(bus.NewMessageBus(), lookup{"slack": ch}, runnerFunc(func(context.Context, string) (*syncer.Result, error) {
		return &syncer.Result{InputColumn: "B"}, nil
	}))
	rec := &targetLog{}
	g.SetTargetRecorder(rec)

	g.Trigger(context.Background(), bus.SyncRequest{Channel: "slack", ChatID: "C1", SenderID: "U1"})
	g.Trigger(context.Background(), bus.SyncRequest{Channel: "slack", ChatID: "C2", SenderID: bus.SchedulerSender})

	if len(rec.targets) != 1 || rec.targets[0] != "slack:C1" {
		t.Fatalf("targets = %v", rec.targets)
	}
}

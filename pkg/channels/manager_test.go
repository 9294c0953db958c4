package channels

import (
	"context"
	"errors"
	"testing"

	"github.com/sipeed/ordersync/pkg/bus"
	"github.com/sipeed/ordersync/pkg/config"
)

type stubChannel struct {
	*BaseChannel
	startErr error
	stopped  bool
}

func (s *stubChannel) Start(context.Context) error {
	if s.startErr != nil {
		return s.startErr
	}
	s.setRunning(true)
	return nil
}

func (s *stubChannel) Stop(context.Context) error {
	s.stopped = true
	s.setRunning(false)
	return nil
}

func (s *stubChannel) Post(context.Context, string, string) (string, error) { return "", nil }

func (s *stubChannel) Reply(context.Context, string, string, string) error { return nil }

func TestManagerStartAllRollsBackOnFailure(t *testing.T) {
	m := NewManager()
	a := &stubChannel{BaseChannel: NewBaseChannel("a", nil, nil)}
	b := &stubChannel{BaseChannel: NewBaseChannel("b", nil, nil), startErr: errors.New("boom")}
	m.Register(a)
	m.Register(b)

	if err := m.StartAll(context.Background()); err == nil {
		t.Fatal("expected start error")
	}
	if !a.stopped || a.IsRunning() {
		t.Fatal("started channel was not stopped after failure")
	}
}

func TestManagerGetAndNames(t *testing.T) {
	m := NewManager()
	m.Register(&stubChannel{BaseChannel: NewBaseChannel("telegram", nil, nil)})
	m.Register(&stubChannel{BaseChannel: NewBaseChannel("slack", nil, nil)})

	if got := m.Names(); len(got) != 2 || got[0] != "slack" || got[1] != "telegram" {
		t.Fatalf("Names = %v", got)
	}
	if _, ok := m.Get("discord"); ok {
		t.Fatal("unexpected discord channel")
	}
	if ch, ok := m.Get("slack"); !ok || ch.Name() != "slack" {
		t.Fatal("slack channel missing")
	}
}

func TestNewManagerFromConfigSkipsDisabledChannels(t *testing.T) {
	cfg := &config.Config{
		Slack: config.SlackConfig{BotToken: "xoxb-1", AppToken: "xapp-1", Command: "/syncorders"},
	}
	m, err := NewManagerFromConfig(cfg, bus.NewMessageBus())
	if err != nil {
		t.Fatalf("NewManagerFromConfig: %v", err)
	}
	if got := m.Names(); len(got) != 1 || got[0] != "slack" {
		t.Fatalf("Names = %v", got)
	}
}

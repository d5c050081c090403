package commands

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"newsrelay/internal/eventbus"
	kit "newsrelay/internal/transport"
	"newsrelay/pkg/logx"
)

const botID = 99

type memRegistry struct {
	mu  sync.Mutex
	ids []int64
}

func (r *memRegistry) Add(id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if slices.Contains(r.ids, id) {
		return false, nil
	}
	r.ids = append(r.ids, id)
	return true, nil
}

func (r *memRegistry) Remove(id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := slices.Index(r.ids, id)
	if i < 0 {
		return false, nil
	}
	r.ids = slices.Delete(r.ids, i, i+1)
	return true, nil
}

func (r *memRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ids)
}

func (r *memRegistry) list() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.ids)
}

type reply struct {
	chatID int64
	text   string
}

type chanSender struct{ out chan reply }

func (s chanSender) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	s.out <- reply{chatID: to.ChatID, text: text}
	return kit.MessageRef{ChatID: to.ChatID, MessageID: 1}, nil
}

func membership(chatID int64, kind kit.ChatKind, userID int64, was, is bool) kit.Update {
	return kit.Update{Kind: kit.UpdateMembership, Membership: &kit.Membership{
		ChatID: chatID, ChatKind: kind, UserID: userID, WasMember: was, IsMember: is,
	}}
}

func message(chatID int64, kind kit.ChatKind, text string) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: chatID, ChatKind: kind, Text: text}}
}

func TestMembershipMaintainsRegistry(t *testing.T) {
	t.Parallel()
	reg := &memRegistry{}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()
	d := New(Config{}, Deps{Registry: reg, SelfID: botID, Bus: bus, Log: logx.Nop()})
	ctx := context.Background()

	steps := []struct {
		name string
		up   kit.Update
		want []int64
	}{
		{"join group", membership(-1, kit.ChatGroup, botID, false, true), []int64{-1}},
		{"join again", membership(-1, kit.ChatGroup, botID, false, true), []int64{-1}},
		{"join supergroup", membership(-2, kit.ChatSupergroup, botID, false, true), []int64{-1, -2}},
		{"other user joins", membership(-3, kit.ChatGroup, 1234, false, true), []int64{-1, -2}},
		{"private chat start", membership(42, kit.ChatPrivate, botID, false, true), []int64{-1, -2}},
		{"promotion", membership(-2, kit.ChatSupergroup, botID, true, true), []int64{-1, -2}},
		{"kicked", membership(-1, kit.ChatGroup, botID, true, false), []int64{-2}},
		{"leave unknown", membership(-5, kit.ChatGroup, botID, true, false), []int64{-2}},
		{"re-added", membership(-1, kit.ChatGroup, botID, false, true), []int64{-2, -1}},
	}
	for _, st := range steps {
		d.Handle(ctx, st.up)
		if got := reg.list(); !slices.Equal(got, st.want) {
			t.Fatalf("%s: registry = %v, want %v", st.name, got, st.want)
		}
	}

	var types []string
	for len(events) > 0 {
		types = append(types, (<-events).Type)
	}
	want := []string{
		eventbus.TypeDestinationAdded, eventbus.TypeDestinationAdded,
		eventbus.TypeDestinationRemoved, eventbus.TypeDestinationAdded,
	}
	if !slices.Equal(types, want) {
		t.Fatalf("events = %v, want %v", types, want)
	}
}

func TestRepliesThroughDispatchLoop(t *testing.T) {
	t.Parallel()
	out := make(chan reply, 4)
	d := New(Config{PrivateReply: "add me to a group"}, Deps{
		Sender:   chanSender{out: out},
		Registry: &memRegistry{},
		SelfID:   botID,
		Username: "StankinNewsBot",
		Log:      logx.Nop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates := make(chan kit.Update, 8)
	done := make(chan error, 1)
	go func() { done <- d.DispatchLoop(ctx, updates) }()

	updates <- message(42, kit.ChatPrivate, "hello")
	updates <- message(-1, kit.ChatGroup, "just chatting")
	updates <- message(-1, kit.ChatGroup, "/code@OtherBot")
	updates <- message(-1, kit.ChatGroup, "/code@StankinNewsBot")
	updates <- message(42, kit.ChatPrivate, "/code")
	// photos, stickers and voice notes carry no text
	updates <- message(43, kit.ChatPrivate, "")
	updates <- message(-1, kit.ChatGroup, "")

	got := map[reply]bool{}
	for i := 0; i < 4; i++ {
		select {
		case r := <-out:
			got[r] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d replies arrived: %v", i, got)
		}
	}
	want := []reply{
		{chatID: 42, text: "add me to a group"},
		{chatID: -1, text: DefaultSourceText},
		{chatID: 42, text: DefaultSourceText},
		{chatID: 43, text: "add me to a group"},
	}
	for _, w := range want {
		if !got[w] {
			t.Fatalf("missing reply %+v in %v", w, got)
		}
	}
	select {
	case r := <-out:
		t.Fatalf("unexpected extra reply %+v", r)
	case <-time.After(50 * time.Millisecond):
	}

	close(updates)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("DispatchLoop = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("DispatchLoop did not return after updates closed")
	}
}

func TestCommandParsing(t *testing.T) {
	t.Parallel()
	d := New(Config{}, Deps{Username: "@NewsBot"})
	cases := []struct {
		text string
		cmd  string
		ok   bool
	}{
		{"/code", "code", true},
		{"  /CODE extra args", "code", true},
		{"/code@newsbot", "code", true},
		{"/code@other_bot", "", false},
		{"code", "", false},
		{"/", "", false},
	}
	for _, tc := range cases {
		cmd, ok := d.command(tc.text)
		if cmd != tc.cmd || ok != tc.ok {
			t.Errorf("command(%q) = %q, %v; want %q, %v", tc.text, cmd, ok, tc.cmd, tc.ok)
		}
	}
}

func TestMenuCommandsFollowConfig(t *testing.T) {
	t.Parallel()
	d := New(Config{}, Deps{})
	if got := d.MenuCommands(); len(got) != 1 || got[0].Command != "code" || got[0].Description != DefaultSourceDesc {
		t.Fatalf("menu = %+v", got)
	}
	d.Apply(Config{SourceDesc: "source"})
	if got := d.MenuCommands(); got[0].Description != "source" {
		t.Fatalf("menu after Apply = %+v", got)
	}
}

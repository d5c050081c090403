package adapter

import (
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	kit "newsrelay/internal/transport"
	"newsrelay/pkg/logx"
)

func TestHandlersForwardEveryMessageKind(t *testing.T) {
	t.Parallel()
	a, err := New(Config{Token: "offline", Offline: true}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out := make(chan kit.Update, 8)
	var send chan<- kit.Update = out
	a.out.Store(send)

	private := &tele.Chat{ID: 42, Type: tele.ChatPrivate}
	sender := &tele.User{ID: 7}
	msgs := []*tele.Message{
		{ID: 1, Chat: private, Sender: sender, Text: "hello"},
		{ID: 2, Chat: private, Sender: sender, Photo: &tele.Photo{File: tele.File{FileID: "p"}}},
		{ID: 3, Chat: private, Sender: sender, Sticker: &tele.Sticker{File: tele.File{FileID: "s"}}},
		{ID: 4, Chat: private, Sender: sender, Voice: &tele.Voice{File: tele.File{FileID: "v"}}},
		{ID: 5, Chat: private, Sender: sender, Location: &tele.Location{Lat: 55.7, Lng: 37.6}},
	}
	for i, m := range msgs {
		a.bot.ProcessUpdate(tele.Update{ID: i + 1, Message: m})
	}

	seen := map[int]string{}
	for range msgs {
		select {
		case up := <-out:
			if up.Kind != kit.UpdateMessage || up.Message == nil {
				t.Fatalf("unexpected update %+v", up)
			}
			if up.Message.ChatKind != kit.ChatPrivate || up.Message.ChatID != 42 {
				t.Fatalf("message %d chat = %d/%s", up.Message.ID, up.Message.ChatID, up.Message.ChatKind)
			}
			seen[up.Message.ID] = up.Message.Text
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of %d messages forwarded: %v", len(seen), len(msgs), seen)
		}
	}
	if seen[1] != "hello" || seen[2] != "" || seen[3] != "" {
		t.Fatalf("forwarded texts = %v", seen)
	}
}

package adapter

import (
	tele "gopkg.in/telebot.v4"

	kit "newsrelay/internal/transport"
)

func chatKind(t tele.ChatType) kit.ChatKind {
	switch t {
	case tele.ChatPrivate:
		return kit.ChatPrivate
	case tele.ChatGroup:
		return kit.ChatGroup
	case tele.ChatSuperGroup:
		return kit.ChatSupergroup
	case tele.ChatChannel, tele.ChatChannelPrivate:
		return kit.ChatChannel
	default:
		return kit.ChatKind(t)
	}
}

func messageUpdate(m *tele.Message) (kit.Update, bool) {
	if m == nil || m.Chat == nil {
		return kit.Update{}, false
	}
	msg := &kit.Message{
		ID:       m.ID,
		ChatID:   m.Chat.ID,
		ChatKind: chatKind(m.Chat.Type),
		ThreadID: m.ThreadID,
		Text:     m.Text,
	}
	if m.Sender != nil {
		msg.FromID = m.Sender.ID
		msg.FromUsername = m.Sender.Username
	}
	return kit.Update{Kind: kit.UpdateMessage, Message: msg}, true
}

// isMember mirrors the Bot API notion of "present in the chat".
func isMember(cm *tele.ChatMember) bool {
	if cm == nil {
		return false
	}
	switch cm.Role {
	case tele.Creator, tele.Administrator, tele.Member:
		return true
	case tele.Restricted:
		return cm.Member
	default:
		return false
	}
}

func membershipUpdate(u *tele.ChatMemberUpdate) (kit.Update, bool) {
	if u == nil || u.Chat == nil || u.NewChatMember == nil || u.NewChatMember.User == nil {
		return kit.Update{}, false
	}
	ms := &kit.Membership{
		ChatID:    u.Chat.ID,
		ChatKind:  chatKind(u.Chat.Type),
		ChatTitle: u.Chat.Title,
		UserID:    u.NewChatMember.User.ID,
		WasMember: isMember(u.OldChatMember),
		IsMember:  isMember(u.NewChatMember),
	}
	if u.Sender != nil {
		ms.ActorID = u.Sender.ID
	}
	return kit.Update{Kind: kit.UpdateMembership, Membership: ms}, true
}

func replyMarkup(links []kit.LinkButton) *tele.ReplyMarkup {
	if len(links) == 0 {
		return nil
	}
	rm := &tele.ReplyMarkup{}
	rows := make([]tele.Row, 0, len(links))
	for _, l := range links {
		if l.URL == "" {
			continue
		}
		rows = append(rows, rm.Row(rm.URL(l.Text, l.URL)))
	}
	if len(rows) == 0 {
		return nil
	}
	rm.Inline(rows...)
	return rm
}

func sendOptions(to kit.ChatTarget, opt *kit.SendOptions) *tele.SendOptions {
	so := &tele.SendOptions{ThreadID: to.ThreadID}
	if opt == nil {
		return so
	}
	so.ParseMode = tele.ParseMode(opt.ParseMode)
	so.DisableWebPagePreview = opt.DisablePreview
	if rm := replyMarkup(opt.Links); rm != nil {
		so.ReplyMarkup = rm
	}
	return so
}

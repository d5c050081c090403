package transport

import "context"

type UpdateKind string

const (
	UpdateMessage    UpdateKind = "message"
	UpdateMembership UpdateKind = "membership"
)

type ChatKind string

const (
	ChatPrivate    ChatKind = "private"
	ChatGroup      ChatKind = "group"
	ChatSupergroup ChatKind = "supergroup"
	ChatChannel    ChatKind = "channel"
)

// IsGroup reports whether broadcasts to this chat reach more than one person.
func (k ChatKind) IsGroup() bool {
	return k == ChatGroup || k == ChatSupergroup || k == ChatChannel
}

type Update struct {
	Kind       UpdateKind
	Message    *Message
	Membership *Membership
}

type Message struct {
	ID           int
	ChatID       int64
	ChatKind     ChatKind
	ThreadID     int // telegram forum topic thread id (0 if none)
	FromID       int64
	FromUsername string
	Text         string
}

// Membership describes a change of the bot's own membership in a chat
// (Telegram my_chat_member).
type Membership struct {
	ChatID    int64
	ChatKind  ChatKind
	ChatTitle string
	UserID    int64 // member whose status changed
	ActorID   int64 // who made the change
	WasMember bool
	IsMember  bool
}

// Joined reports a transition from non-member to member.
func (m Membership) Joined() bool { return !m.WasMember && m.IsMember }

// Left reports a transition from member to non-member (left or kicked).
func (m Membership) Left() bool { return m.WasMember && !m.IsMember }

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

// LinkButton is rendered as an inline URL button under the message.
type LinkButton struct {
	Text string
	URL  string
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	// Links are laid out one button per row.
	Links []LinkButton
}

// Photo is a picture referenced by URL with an optional caption.
type Photo struct {
	URL     string
	Caption string
}

// TextSender is the minimal capability needed to reply or to forward log records.
type TextSender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

// PhotoSender delivers a captioned photo. It is all the broadcaster needs.
type PhotoSender interface {
	SendPhoto(ctx context.Context, to ChatTarget, photo Photo, opt *SendOptions) (MessageRef, error)
}

// Adapter is the messaging platform boundary. Start feeds incoming updates
// (messages and membership changes) into out until Stop or ctx cancellation.
type Adapter interface {
	TextSender
	PhotoSender

	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is an optional interface that adapters can implement
// to update platform-specific bot command menus (e.g. Telegram /menu list).
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}

// SelfIdentifier is implemented by adapters that know the bot's own identity.
type SelfIdentifier interface {
	SelfID() int64
	Username() string
}

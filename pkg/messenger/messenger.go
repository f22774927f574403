package messenger

import (
	"context"
	"strings"
)

// Messenger delivers messages to chats and acknowledges control presses.
type Messenger interface {
	SendText(ctx context.Context, chatID string, text string, markup Markup) error
	AnswerControl(ctx context.Context, queryID string, text string, alert bool) error
}

// Markup is attached to an outgoing message. It is one of InlineKeyboard or
// ContactKeyboard; nil sends a plain message.
type Markup interface {
	markup()
}

// Button is an inline control. Exactly one of CallbackData and WebAppURL is
// set.
type Button struct {
	Text         string
	CallbackData string
	WebAppURL    string
}

func CallbackButton(text, data string) Button {
	return Button{Text: text, CallbackData: data}
}

func WebAppButton(text, url string) Button {
	return Button{Text: text, WebAppURL: url}
}

type InlineKeyboard [][]Button

func (InlineKeyboard) markup() {}

// ContactKeyboard is a one-time reply keyboard with a single button that
// shares the user's phone number.
type ContactKeyboard struct {
	Text string
}

func (ContactKeyboard) markup() {}

// Actor is the chat user who caused an event.
type Actor struct {
	ID        int64
	FirstName string
	LastName  string
	Username  string
}

func (a Actor) FullName() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

// Origin identifies who sent an event and where replies go.
type Origin struct {
	Actor  Actor
	ChatID int64
}

func (o Origin) Source() Origin { return o }

// Event is an inbound update.
type Event interface {
	Source() Origin
}

// Started is the /start command.
type Started struct {
	Origin
}

// CommandReceived is any other slash command.
type CommandReceived struct {
	Origin
	Command string
	Args    string
}

type ContactShared struct {
	Origin
	ContactUserID int64
	PhoneNumber   string
}

// PayloadReceived carries data submitted by the storefront web view.
type PayloadReceived struct {
	Origin
	Data string
}

// ControlPressed is an inline button press; QueryID must be acknowledged with
// AnswerControl.
type ControlPressed struct {
	Origin
	QueryID string
	Data    string
}

// ParseCommand splits "/cmd@bot args" into "cmd" and "args". ok is false
// when text is not a command.
func ParseCommand(text string) (cmd, args string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head, rest, _ := strings.Cut(text[1:], " ")
	head, _, _ = strings.Cut(head, "@")
	if head == "" {
		return "", "", false
	}
	return strings.ToLower(head), strings.TrimSpace(rest), true
}

// Package notify sends best-effort upload notifications to a bot chat.
//
// A notification never affects the upload it reports on. Notify degrades
// from a photo with an HTML caption to a plain text message, and finally
// drops the notification; the returned Outcome says which happened so the
// caller can discard it explicitly.
package notify

import (
	"context"
	"fmt"
	"html"
	"time"

	"github.com/koustreak/imgbed/internal/botapi"
	"github.com/koustreak/imgbed/internal/logger"
)

const (
	// Timeout bounds one Notify call including the fallback.
	Timeout = 15 * time.Second

	// MaxPreviewBytes is the largest payload attached as a photo preview.
	MaxPreviewBytes = 10 * 1024 * 1024
)

// Mode is how a notification was delivered.
type Mode int

const (
	ModeSkipped Mode = iota // no target configured
	ModeRich                // photo preview with HTML caption
	ModePlain               // text-only fallback
	ModeDropped             // every attempt failed
)

func (m Mode) String() string {
	switch m {
	case ModeRich:
		return "rich"
	case ModePlain:
		return "plain"
	case ModeDropped:
		return "dropped"
	default:
		return "skipped"
	}
}

// Outcome reports what Notify did. Err holds the last failure for Plain
// (why rich failed) and Dropped (why plain failed).
type Outcome struct {
	Mode Mode
	Err  error
}

// Delivered reports whether any message reached the chat.
func (o Outcome) Delivered() bool {
	return o.Mode == ModeRich || o.Mode == ModePlain
}

// Sender is the subset of the bot client Notify needs.
type Sender interface {
	SendPhoto(ctx context.Context, chatID string, photo botapi.Upload, caption, parseMode string) (*botapi.Message, error)
	SendMessage(ctx context.Context, chatID, text, parseMode string) (*botapi.Message, error)
}

// Event describes one finished upload.
type Event struct {
	Source      string // human-readable backend name, e.g. "Cloudflare R2"
	URL         string
	DisplayName string
	MimeType    string
	Data        []byte
}

// Notifier posts events to one chat.
type Notifier struct {
	sender Sender
	chatID string
	log    *logger.Logger
}

// New returns a Notifier. A nil sender or empty chat id makes every Notify
// a no-op with ModeSkipped.
func New(sender Sender, chatID string, log *logger.Logger) *Notifier {
	return &Notifier{sender: sender, chatID: chatID, log: logger.OrNop(log).Component("notify")}
}

// Notify delivers ev, degrading as needed.
func (n *Notifier) Notify(ctx context.Context, ev Event) Outcome {
	if n == nil || n.sender == nil || n.chatID == "" {
		return Outcome{Mode: ModeSkipped}
	}

	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	var richErr error
	if len(ev.Data) > 0 && len(ev.Data) < MaxPreviewBytes {
		photo := botapi.Upload{Name: ev.DisplayName, ContentType: ev.MimeType, Data: ev.Data}
		if _, richErr = n.sender.SendPhoto(ctx, n.chatID, photo, richCaption(ev), "HTML"); richErr == nil {
			return Outcome{Mode: ModeRich}
		}
		n.log.WarnWith("rich notification failed, falling back to text", richErr, map[string]interface{}{"url": ev.URL})
	}

	if _, err := n.sender.SendMessage(ctx, n.chatID, plainText(ev), ""); err != nil {
		n.log.WarnWith("notification dropped", err, map[string]interface{}{"url": ev.URL})
		return Outcome{Mode: ModeDropped, Err: err}
	}
	return Outcome{Mode: ModePlain, Err: richErr}
}

func richCaption(ev Event) string {
	return fmt.Sprintf("<b>%s upload succeeded</b>\n\n<b>Link:</b>\n<code>%s</code>\n\n<b>File:</b>\n<code>%s</code>",
		html.EscapeString(ev.Source), html.EscapeString(ev.URL), html.EscapeString(ev.DisplayName))
}

func plainText(ev Event) string {
	return fmt.Sprintf("%s upload succeeded\n\nLink: %s\nFile: %s", ev.Source, ev.URL, ev.DisplayName)
}

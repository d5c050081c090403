package broadcast

import (
	"unicode/utf8"

	"newsrelay/internal/news"
	"newsrelay/pkg/tgui"
)

const (
	DefaultButtonText = "Прочитать"
	DefaultDateIcon   = "🗓"

	// CaptionLimit is Telegram's photo caption limit, counted on the
	// visible text after HTML parsing.
	CaptionLimit = 1024
)

// Caption renders the HTML caption: a linked bold title, a blank line and
// the calendar line. Long titles are shortened before escaping so the
// visible text fits CaptionLimit and the markup stays balanced.
func Caption(it news.Item, url, dateIcon string) string {
	if dateIcon == "" {
		dateIcon = DefaultDateIcon
	}
	dateLine := dateIcon + " " + it.Date()
	room := CaptionLimit - utf8.RuneCountInString("\n\n"+dateLine)
	return tgui.JoinH("\n\n",
		tgui.Link(url, tgui.B(tgui.TruncRunes(it.Title, room))),
		tgui.Esc(dateLine),
	).String()
}

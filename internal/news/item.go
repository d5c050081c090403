// Package news fetches the university news feed and filters it against the
// watermark.
package news

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DefaultURLTemplate builds the public page of an item from its id.
const DefaultURLTemplate = "https://stankin.ru/news/item_%d"

// upstream sends "2024-05-14 00:00:00+03".
const upstreamDateLayout = "2006-01-02 15:04:05-07"

// Item is one news entry. Immutable once fetched.
type Item struct {
	ID        int64
	Title     string
	Published time.Time // zero if RawDate could not be parsed
	RawDate   string
}

// URL renders tmpl (a fmt template with one %d verb) for this item.
func (it Item) URL(tmpl string) string {
	if tmpl == "" {
		tmpl = DefaultURLTemplate
	}
	return fmt.Sprintf(tmpl, it.ID)
}

// Date returns the publication day as DD.MM.YYYY in the upstream offset.
func (it Item) Date() string {
	if !it.Published.IsZero() {
		return it.Published.Format("02.01.2006")
	}
	day, _, _ := strings.Cut(strings.TrimSpace(it.RawDate), " ")
	parts := strings.Split(day, "-")
	if len(parts) != 3 {
		return day
	}
	return parts[2] + "." + parts[1] + "." + parts[0]
}

type wireItem struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	Date  string `json:"date"`
}

type wireResponse struct {
	Data struct {
		News []wireItem `json:"news"`
	} `json:"data"`
}

func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range []string{upstreamDateLayout, "2006-01-02 15:04:05-07:00", time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// decodeItems parses the endpoint body ({"data":{"news":[...]}}).
func decodeItems(body []byte) ([]Item, error) {
	var resp wireResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	out := make([]Item, 0, len(resp.Data.News))
	for _, w := range resp.Data.News {
		out = append(out, Item{
			ID:        w.ID,
			Title:     strings.TrimSpace(w.Title),
			Published: parseDate(w.Date),
			RawDate:   w.Date,
		})
	}
	return out, nil
}

// FilterNew returns the items with ID > watermark in their original order,
// plus the highest such id (0 when none qualify).
func FilterNew(items []Item, watermark int64) (fresh []Item, maxID int64) {
	for _, it := range items {
		if it.ID <= watermark {
			continue
		}
		fresh = append(fresh, it)
		if it.ID > maxID {
			maxID = it.ID
		}
	}
	return fresh, maxID
}

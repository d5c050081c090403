package app

import (
	"context"
	"fmt"
	"io"

	"newsrelay/internal/config"
	"newsrelay/internal/news"
	"newsrelay/pkg/logx"
)

func loadOffline(cfgPath string) (*config.Config, *State, error) {
	cfg, err := config.NewConfigManager(cfgPath).Load()
	if err != nil {
		return nil, nil, err
	}
	st, err := OpenState(cfg, logx.Nop())
	if err != nil {
		return nil, nil, err
	}
	return cfg, st, nil
}

// Check fetches the feed once and prints every item, marking those above the
// stored watermark. Nothing is sent and the watermark is left untouched.
func Check(ctx context.Context, cfgPath string, w io.Writer) error {
	cfg, st, err := loadOffline(cfgPath)
	if err != nil {
		return err
	}
	req, err := mapNewsRequest(cfg)
	if err != nil {
		return err
	}
	f := news.NewFetcher(req, st.Watermark, logx.Nop())
	items, err := f.Peek(ctx)
	if err != nil {
		return err
	}

	wm := st.Watermark.Get()
	fresh, _ := news.FilterNew(items, wm)
	fmt.Fprintf(w, "watermark: %d, items: %d, new: %d\n", wm, len(items), len(fresh))
	for _, it := range items {
		mark := " "
		if it.ID > wm {
			mark = "*"
		}
		fmt.Fprintf(w, "%s %d\t%s\t%s\n\t%s\n", mark, it.ID, it.Date(), it.Title, it.URL(cfg.News.ItemURLTemplate))
	}
	return nil
}

// ListDestinations prints the registered chat ids, one per line.
func ListDestinations(cfgPath string, w io.Writer) error {
	_, st, err := loadOffline(cfgPath)
	if err != nil {
		return err
	}
	for _, id := range st.Destinations.List() {
		fmt.Fprintln(w, id)
	}
	return nil
}

package app

import (
	"newsrelay/internal/config"
	"newsrelay/internal/destinations"
	"newsrelay/internal/storage"
	"newsrelay/internal/watermark"
	"newsrelay/pkg/logx"
)

// State is the persisted relay state: the watermark and the destination set.
type State struct {
	Watermark    *watermark.Store
	Destinations *destinations.Registry
}

// OpenState loads both state files. A corrupt or unreadable file is an
// error; missing files start empty.
func OpenState(cfg *config.Config, log logx.Logger) (*State, error) {
	wf, err := storage.NewJSONFile[watermark.State](cfg.Storage.WatermarkFile)
	if err != nil {
		return nil, err
	}
	df, err := storage.NewJSONFile[[]int64](cfg.Storage.DestinationsFile)
	if err != nil {
		return nil, err
	}
	wm, err := watermark.Open(wf, log.With(logx.String("comp", "watermark")))
	if err != nil {
		return nil, err
	}
	reg, err := destinations.Open(df, log.With(logx.String("comp", "destinations")))
	if err != nil {
		return nil, err
	}
	return &State{Watermark: wm, Destinations: reg}, nil
}

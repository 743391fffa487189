package reviewtracker

import (
	"context"
	"fmt"

	"sellerbot/pkg/pluginapi"
)

func NewPlugin(ctx *pluginapi.Context) (*pluginapi.Plugin, error) {
	seen := 0
	return &pluginapi.Plugin{
		Info:    pluginapi.Info{Name: "Review tracker", Version: "2.0.0"},
		Enabled: true,
		Commands: []pluginapi.Command{{
			Name:        "reviews",
			Description: "Reviews seen since start",
			Handler: func(_ context.Context, _ pluginapi.Request) (string, error) {
				return fmt.Sprintf("reviews: %d", seen), nil
			},
		}},
		OnEvent: func(_ context.Context, ev pluginapi.Event) error {
			if ev.Kind == pluginapi.KindReview {
				seen++
			}
			return nil
		},
	}, nil
}

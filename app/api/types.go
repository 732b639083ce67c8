package api

import (
	"context"

	"feedprobe/app/database"
	"feedprobe/app/discovery"
	"feedprobe/app/feed"
)

type DiscovererInterface interface {
	Discover(ctx context.Context, rawURL string, refresh bool) (*discovery.Result, error)
}

var _ DiscovererInterface = (*discovery.Discoverer)(nil)

type Handler struct {
	discoverer DiscovererInterface
	repo       database.DiscoveryRepository
	parser     *feed.Parser
}

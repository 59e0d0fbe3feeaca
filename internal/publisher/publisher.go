package publisher

import (
	"context"

	"herald/internal/models"
)

// Publisher is the per-platform publish capability. Implementations hide the
// platform's authentication and upload protocol behind a single call.
//
// Publish never returns an error for ordinary platform or network failures;
// those are converted to a failed PublishResult with a diagnostic message.
type Publisher interface {
	Platform() models.Platform
	Publish(ctx context.Context, text string, media [][]byte) models.PublishResult
}

// Registry maps platform tags to their adapters. Adding a platform means
// adding one adapter here; the worker never changes.
type Registry map[models.Platform]Publisher

// NewRegistry builds a registry from the given adapters.
func NewRegistry(publishers ...Publisher) Registry {
	r := make(Registry, len(publishers))
	for _, p := range publishers {
		r[p.Platform()] = p
	}
	return r
}

// Resolve returns the adapter for a platform tag.
func (r Registry) Resolve(platform models.Platform) (Publisher, bool) {
	p, ok := r[platform]
	return p, ok
}

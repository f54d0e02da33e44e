// Package feed ingests peer location snapshots from an upstream source and
// hands them to the refresh pipeline. Every delivery is a complete snapshot
// superseding all prior data; the feed never sends increments.
package feed

import (
	"context"

	"github.com/signalsfoundry/peerglobe/model"
)

// Handler receives each decoded snapshot. Implementations must treat the
// slice as read-only once handed over.
type Handler func(ctx context.Context, snapshot []model.PeerRecord)

// Source is a feed transport that delivers snapshots until its context is
// cancelled.
type Source interface {
	Run(ctx context.Context) error
}

// maxSnapshotBytes bounds how much upstream payload a single delivery may
// carry. The service is sized for a few hundred peers; anything larger is a
// misbehaving upstream.
const maxSnapshotBytes = 8 << 20

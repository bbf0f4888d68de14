package qbsync

import (
	"context"

	"github.com/covxx/Paleta-sub000/internal/model"
)

// Syncer is the uniform contract every entity sync module implements.
// SyncOutbound pushes local dirty records; SyncInbound pulls provider
// records not yet known locally. A returned error aborts the run (no valid
// credential, store unavailable); per-record problems land in the result
// instead.
type Syncer interface {
	EntityType() model.EntityType
	SyncOutbound(ctx context.Context) (*SyncResult, error)
	SyncInbound(ctx context.Context) (*SyncResult, error)
}

// RunHistory is the slice of run bookkeeping the entity modules need: the
// start time of the last fully successful run is the incremental-pull
// watermark.
type RunHistory interface {
	LastSuccess(ctx context.Context, entityType model.EntityType) (*model.SyncRun, error)
}

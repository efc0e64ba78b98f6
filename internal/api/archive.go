package api

import (
	"bytes"
	"context"
	"encoding/json"
	"path"

	"go.uber.org/zap"

	"github.com/yourorg/bulk-tickets/internal/storage"
	"github.com/yourorg/bulk-tickets/internal/types"
)

// Archiver copies each finished batch, the uploaded file and its report,
// under <base>/<batch_id>/. Failures are logged and never reach the caller.
type Archiver struct {
	store  storage.ObjectStore
	base   string
	logger *zap.Logger
}

func NewArchiver(store storage.ObjectStore, base string, logger *zap.Logger) *Archiver {
	return &Archiver{store: store, base: base, logger: logger}
}

func (a *Archiver) Archive(ctx context.Context, req types.BatchRequest, report *types.BatchReport) {
	log := a.logger.With(zap.String("batch_id", report.BatchID))

	name := path.Base(req.Filename)
	if name == "." || name == "/" {
		name = "upload"
	}
	if _, err := a.store.Put(ctx, storage.Join(a.base, report.BatchID, name), bytes.NewReader(req.File)); err != nil {
		log.Warn("archive upload failed", zap.String("file", name), zap.Error(err))
	}

	b, err := json.Marshal(report)
	if err != nil {
		log.Warn("archive report encode failed", zap.Error(err))
		return
	}
	uri, err := a.store.Put(ctx, storage.Join(a.base, report.BatchID, "report.json"), bytes.NewReader(b))
	if err != nil {
		log.Warn("archive report failed", zap.Error(err))
		return
	}
	log.Info("batch archived", zap.String("uri", uri))
}

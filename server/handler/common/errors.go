package common

import (
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/indieinfra/plume/ingest"
	"github.com/indieinfra/plume/media"
	"github.com/indieinfra/plume/processing"
	"github.com/indieinfra/plume/server/resp"
	"github.com/indieinfra/plume/server/util"
	"github.com/indieinfra/plume/storage/entries"
)

// LogAndWriteError logs an error with request context and maps known conditions to client responses.
func LogAndWriteError(w http.ResponseWriter, r *http.Request, log *zap.Logger, op string, err error) {
	rl := util.LoggerOr(r, log)

	var fe *ingest.FieldError
	switch {
	case errors.As(err, &fe):
		rl.Info(op+" rejected", zap.Any("fields", fe.Fields))
		resp.WriteFieldErrors(w, fe.Fields)
	case errors.Is(err, media.ErrMissingComponents):
		rl.Error(op+" failed: server is missing media components", zap.Error(err))
		resp.WriteServiceUnavailable(w, "this server cannot handle that media type right now")
	case errors.Is(err, processing.ErrBacklogFull):
		rl.Warn(op+" failed: processing backlog is full", zap.Error(err))
		resp.WriteServiceUnavailable(w, "the server is busy, try again shortly")
	case errors.Is(err, entries.ErrNotFound):
		rl.Debug(op+" found nothing", zap.Error(err))
		resp.WriteNotFound(w, "not found")
	default:
		rl.Error(op+" failed", zap.Error(err))
		resp.WriteInternalServerError(w, fmt.Sprintf("%s failed", op))
	}
}

package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/deusflow/aidigest/internal/archive"
	"github.com/deusflow/aidigest/internal/storage"
)

const mirrorConnectTimeout = 10 * time.Second

// openMirror connects the PostgreSQL archive copy when dsn is set. The JSON
// archive stays authoritative, so a database that cannot be reached only
// disables mirroring for this run.
func openMirror(ctx context.Context, dsn string, log *slog.Logger) (archive.Mirror, func()) {
	if dsn == "" {
		return nil, func() {}
	}

	connectCtx, cancel := context.WithTimeout(ctx, mirrorConnectTimeout)
	defer cancel()

	pg, err := storage.NewPostgresArchive(connectCtx, dsn)
	if err != nil {
		log.Warn("archive mirror unavailable", "err", err)
		return nil, func() {}
	}
	log.Debug("archive mirror connected")
	return pg, func() {
		if err := pg.Close(); err != nil {
			log.Warn("closing archive mirror", "err", err)
		}
	}
}

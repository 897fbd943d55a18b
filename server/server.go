package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/indieinfra/plume/server/handler/entry"
	"github.com/indieinfra/plume/server/handler/oembed"
	"github.com/indieinfra/plume/server/handler/submit"
	"github.com/indieinfra/plume/server/middleware"
	"github.com/indieinfra/plume/server/state"
)

const shutdownTimeout = 10 * time.Second

func NewHandler(st *state.PlumeState) http.Handler {
	limits := st.Cfg.Server.Limits

	mux := http.NewServeMux()
	mux.Handle("POST /submit", middleware.ValidateTokenMiddleware(st.Store, st.Log,
		middleware.RateLimitMiddleware(limits.SubmissionsPerMinute, submit.HandleSubmit(st))))
	mux.Handle("GET /oembed", oembed.HandleOEmbed(st))
	mux.Handle("GET /u/{user}/m/{media}/", entry.HandleGet(st))

	return mux
}

// StartServer serves until ctx is cancelled, then drains in-flight requests.
func StartServer(ctx context.Context, st *state.PlumeState) error {
	bindAddress := net.JoinHostPort(st.Cfg.Server.Address, strconv.Itoa(st.Cfg.Server.Port))
	ln, err := net.Listen("tcp", bindAddress)
	if err != nil {
		return fmt.Errorf("listen on %q: %w", bindAddress, err)
	}

	return serve(ctx, st, ln)
}

func serve(ctx context.Context, st *state.PlumeState, ln net.Listener) error {
	srv := &http.Server{
		Handler:           NewHandler(st),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          zap.NewStdLog(st.Log),
	}

	errCh := make(chan error, 1)
	go func() {
		st.Log.Info("serving http requests", zap.String("address", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	st.Log.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

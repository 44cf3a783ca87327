package web

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/phonoplay/internal/observe"
)

const wsWriteTimeout = 5 * time.Second

// WithOriginPatterns allows cross-origin websocket clients whose Origin host
// matches one of patterns. Same-origin clients are always accepted.
func WithOriginPatterns(patterns ...string) Option {
	return func(srv *Server) { srv.originPatterns = append(srv.originPatterns, patterns...) }
}

func (s *Server) acceptOptions() *websocket.AcceptOptions {
	return &websocket.AcceptOptions{OriginPatterns: s.originPatterns}
}

// handleEvents streams the session's snapshots as JSON text messages until
// the session ends or the client goes away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ch, unsubscribe, err := s.sessions.Subscribe(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer unsubscribe()

	conn, err := websocket.Accept(w, r, s.acceptOptions())
	if err != nil {
		observe.Logger(r.Context()).Debug("events: websocket accept failed", "session_id", id, "error", err)
		return
	}
	defer conn.CloseNow()

	// Clients never send on this channel; CloseRead handles pings and the
	// close handshake and cancels ctx when the peer leaves.
	ctx := conn.CloseRead(r.Context())

	var last uint64
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-ch:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "session ended")
				return
			}
			if snap.Version <= last {
				continue
			}
			last = snap.Version

			wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := wsjson.Write(wctx, conn, s.snapshotDTO(snap))
			cancel()
			if err != nil {
				observe.Logger(ctx).Debug("events: write failed", "session_id", id, "error", err)
				return
			}
		}
	}
}

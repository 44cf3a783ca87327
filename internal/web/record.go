package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/phonoplay/internal/observe"
	"github.com/MrWong99/phonoplay/internal/session"
	"github.com/MrWong99/phonoplay/pkg/provider/stt"
)

const (
	maxRecordFrame = 1 << 20
	// maxRecordBytes is two minutes of 16 kHz mono s16le.
	maxRecordBytes = 2 * 60 * stt.DefaultSampleRate * 2
)

// recordMessage is a control message on the record channel.
type recordMessage struct {
	Type       string       `json:"type"`
	SampleRate int          `json:"sample_rate,omitempty"`
	Error      string       `json:"error,omitempty"`
	Snapshot   *snapshotDTO `json:"snapshot,omitempty"`
}

// wsCapture collects PCM frames from the browser. It implements
// [session.Capture]; done is closed once the session stops or discards it.
type wsCapture struct {
	mu         sync.Mutex
	buf        bytes.Buffer
	sampleRate int
	done       chan struct{}
	once       sync.Once
}

func newWSCapture(sampleRate int) *wsCapture {
	if sampleRate <= 0 {
		sampleRate = stt.DefaultSampleRate
	}
	return &wsCapture{sampleRate: sampleRate, done: make(chan struct{})}
}

func (c *wsCapture) write(p []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.done:
		return
	default:
	}
	if c.buf.Len()+len(p) > maxRecordBytes {
		p = p[:max(0, maxRecordBytes-c.buf.Len())]
	}
	c.buf.Write(p)
}

// Stop implements [session.Capture].
func (c *wsCapture) Stop() (stt.Audio, error) {
	c.finish()
	c.mu.Lock()
	defer c.mu.Unlock()
	return stt.Audio{
		Data:       bytes.Clone(c.buf.Bytes()),
		MIMEType:   stt.MIMEPCM,
		SampleRate: c.sampleRate,
		Channels:   1,
	}, nil
}

// Close implements [session.Capture].
func (c *wsCapture) Close() error {
	c.finish()
	return nil
}

func (c *wsCapture) finish() { c.once.Do(func() { close(c.done) }) }

// wsMicrophone hands the session the capture opened by the browser, or the
// browser's refusal.
type wsMicrophone struct {
	capture *wsCapture
	denied  bool
}

func (m *wsMicrophone) Open(context.Context) (session.Capture, error) {
	if m.denied {
		return nil, fmt.Errorf("web: browser refused microphone access: %w", session.ErrMicrophoneDenied)
	}
	return m.capture, nil
}

type wsFrame struct {
	typ  websocket.MessageType
	data []byte
}

// handleRecord runs one recording over a websocket. The client opens with
// {"type":"start"} (or {"type":"denied"} when the browser refused the
// microphone), streams binary 16-bit mono PCM frames and ends with
// {"type":"stop"}. The session may stop the recording on its own after its
// timeout; either way the server answers {"type":"stopped"} with the
// grading snapshot and closes. A client that disconnects mid-recording
// cancels it.
func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ss, err := s.sessions.Resume(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	conn, err := websocket.Accept(w, r, s.acceptOptions())
	if err != nil {
		observe.Logger(r.Context()).Debug("record: websocket accept failed", "session_id", id, "error", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxRecordFrame)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	log := observe.Logger(ctx).With("session_id", id)

	var start recordMessage
	if err := wsjson.Read(ctx, conn, &start); err != nil {
		log.Debug("record: reading start message", "error", err)
		return
	}

	switch start.Type {
	case "denied":
		_, err := ss.Record(ctx, &wsMicrophone{denied: true})
		s.finishRecord(ctx, conn, ss, "denied", err)
		return
	case "start":
	default:
		s.finishRecord(ctx, conn, ss, "error", fmt.Errorf("%w: expected start message, got %q", errBadRequest, start.Type))
		return
	}

	capture := newWSCapture(start.SampleRate)
	if _, err := ss.Record(ctx, &wsMicrophone{capture: capture}); err != nil {
		s.finishRecord(ctx, conn, ss, "error", err)
		return
	}
	log.Debug("record: recording started", "sample_rate", capture.sampleRate)

	frames := make(chan wsFrame)
	readErr := make(chan error, 1)
	go func() {
		for {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				readErr <- err
				return
			}
			select {
			case frames <- wsFrame{typ: typ, data: data}:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case f := <-frames:
			if f.typ == websocket.MessageBinary {
				capture.write(f.data)
				continue
			}
			var msg recordMessage
			if err := json.Unmarshal(f.data, &msg); err != nil || msg.Type != "stop" {
				continue
			}
			if _, err := ss.StopRecording(); err != nil && !errors.Is(err, session.ErrInvalidTransition) {
				log.Warn("record: stop failed", "error", err)
			}
		case <-capture.done:
			s.finishRecord(ctx, conn, ss, "stopped", nil)
			return
		case err := <-readErr:
			if _, cerr := ss.CancelRecording(); cerr == nil {
				log.Debug("record: client left, recording cancelled", "error", err)
			}
			return
		case <-ctx.Done():
			_, _ = ss.CancelRecording()
			return
		}
	}
}

// finishRecord sends the final message with the current snapshot and
// closes the connection normally.
func (s *Server) finishRecord(ctx context.Context, conn *websocket.Conn, ss *session.Session, typ string, err error) {
	dto := s.snapshotDTO(ss.Snapshot())
	msg := recordMessage{Type: typ, Snapshot: &dto}
	if err != nil && !errors.Is(err, session.ErrMicrophoneDenied) {
		msg.Type = "error"
		msg.Error = err.Error()
	}
	wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	if werr := wsjson.Write(wctx, conn, msg); werr != nil {
		observe.Logger(ctx).Debug("record: write final message", "session_id", ss.ID(), "error", werr)
		return
	}
	conn.Close(websocket.StatusNormalClosure, typ)
}

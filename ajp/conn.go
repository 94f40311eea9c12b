// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package ajp

import (
	"bufio"
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/z5labs/harbor/internal/try"
	"github.com/z5labs/harbor/pkg/slogfield"
)

type connState int32

const (
	stateNew connState = iota
	stateIdle
	stateActive
)

var errSecretMismatch = errors.New("ajp: request secret does not match")

type conn struct {
	server *Server
	rwc    net.Conn
	bw     *bufio.Writer
	buf    []byte
	state  atomic.Int32
}

func (c *conn) setState(st connState) {
	c.state.Store(int32(st))
}

func (c *conn) serve(ctx context.Context) {
	log := c.server.log().With(slogfield.String("remote_addr", c.rwc.RemoteAddr().String()))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer c.server.forgetConn(c)
	defer c.rwc.Close()

	c.bw = bufio.NewWriterSize(c.rwc, c.server.packetSize())

	for {
		if c.server.inShutdown.Load() {
			return
		}
		if d := c.server.IdleTimeout; d > 0 {
			c.rwc.SetReadDeadline(time.Now().Add(d))
		}
		c.setState(stateIdle)

		payload, err := readPacket(c.rwc, c.buf)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.DebugContext(ctx, "closing ajp connection", slogfield.Error(err))
			}
			return
		}
		c.setState(stateActive)
		c.rwc.SetReadDeadline(time.Time{})

		if len(payload) == 0 {
			log.WarnContext(ctx, "received empty ajp packet")
			return
		}

		switch payload[0] {
		case codeCPing:
			if err := c.write(encodeCPong()); err != nil {
				return
			}
		case codeForwardRequest:
			reuse, err := c.serveRequest(ctx, payload)
			if err != nil {
				log.WarnContext(ctx, "failed to serve ajp request", slogfield.Error(err))
			}
			if !reuse {
				return
			}
		case codeShutdown, codePing:
			log.WarnContext(ctx, "ignoring ajp control message", slogfield.Int("code", int(payload[0])))
		default:
			log.WarnContext(ctx, "unexpected ajp prefix code", slogfield.Int("code", int(payload[0])))
			return
		}
	}
}

func (c *conn) write(b []byte) error {
	if _, err := c.bw.Write(b); err != nil {
		return err
	}
	return c.bw.Flush()
}

// serveRequest handles one forward request and reports whether the
// connection may be reused.
func (c *conn) serveRequest(ctx context.Context, payload []byte) (bool, error) {
	fr, err := decodeForwardRequest(payload)
	if err != nil {
		return false, err
	}

	w := &responseWriter{
		conn:   c,
		header: make(http.Header),
	}

	if secret := c.server.Secret; secret != "" {
		if subtle.ConstantTimeCompare([]byte(secret), []byte(fr.secret)) != 1 {
			w.WriteHeader(http.StatusForbidden)
			w.end(false)
			return false, errSecretMismatch
		}
	}

	contentLength, err := fr.contentLength()
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		w.end(false)
		return false, err
	}

	var body io.ReadCloser = http.NoBody
	var br *bodyReader
	if contentLength != 0 {
		br = &bodyReader{conn: c, remaining: contentLength, first: true}
		body = br
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := fr.httpRequest(ctx, body, contentLength)
	if err != nil {
		if br != nil {
			br.drain()
		}
		w.WriteHeader(http.StatusBadRequest)
		w.end(false)
		return false, err
	}
	w.head = req.Method == http.MethodHead

	err = c.handle(w, req)
	if err != nil {
		if !w.wroteHeader {
			w.WriteHeader(http.StatusInternalServerError)
		}
		w.end(false)
		if errors.Is(err, http.ErrAbortHandler) {
			return false, nil
		}
		return false, err
	}

	if br != nil {
		br.drain()
		if br.err != nil {
			w.end(false)
			return false, br.err
		}
	}
	reuse := w.end(true)
	return reuse, w.err
}

func (c *conn) handle(w http.ResponseWriter, req *http.Request) (err error) {
	defer try.Recover(&err)

	h := c.server.Handler
	if h == nil {
		h = http.NotFoundHandler()
	}
	h.ServeHTTP(w, req)
	return nil
}

// bodyReader streams a request body out of SEND_BODY packets. The first
// packet arrives unsolicited; later ones are requested with
// GET_BODY_CHUNK.
type bodyReader struct {
	conn      *conn
	remaining int64
	first     bool
	eof       bool
	chunk     []byte
	store     []byte
	err       error
}

func (b *bodyReader) Read(p []byte) (int, error) {
	for len(b.chunk) == 0 {
		if b.eof {
			return 0, io.EOF
		}
		if err := b.next(); err != nil {
			return 0, err
		}
	}
	n := copy(p, b.chunk)
	b.chunk = b.chunk[n:]
	return n, nil
}

func (b *bodyReader) Close() error {
	return nil
}

func (b *bodyReader) next() error {
	if b.err != nil {
		return b.err
	}
	if b.remaining == 0 {
		b.eof = true
		return nil
	}

	if !b.first {
		want := len(b.conn.buf) - headerSize - 2
		if err := b.conn.write(encodeGetBodyChunk(want)); err != nil {
			b.err = err
			return err
		}
	}
	b.first = false

	payload, err := readPacket(b.conn.rwc, b.conn.buf)
	if err != nil {
		b.err = err
		return err
	}
	if len(payload) < 2 {
		b.eof = true
		return nil
	}
	n := int(payload[0])<<8 | int(payload[1])
	if n == 0 {
		b.eof = true
		return nil
	}
	if 2+n > len(payload) {
		b.err = io.ErrUnexpectedEOF
		return b.err
	}

	b.store = append(b.store[:0], payload[2:2+n]...)
	b.chunk = b.store
	if b.remaining > 0 {
		b.remaining = max(b.remaining-int64(n), 0)
	}
	return nil
}

// drain discards whatever the handler left unread so the connection is
// positioned at the next request.
func (b *bodyReader) drain() {
	for !b.eof && b.err == nil {
		b.chunk = nil
		b.next()
	}
}

type responseWriter struct {
	conn        *conn
	header      http.Header
	head        bool
	wroteHeader bool
	status      int
	ended       bool
	err         error
}

func (w *responseWriter) Header() http.Header {
	return w.header
}

func (w *responseWriter) WriteHeader(status int) {
	if w.wroteHeader || w.err != nil {
		return
	}
	if status >= 100 && status < 200 {
		return
	}
	w.wroteHeader = true
	w.status = status

	b, err := encodeSendHeaders(status, w.header, len(w.conn.buf))
	if err != nil {
		w.err = err
		return
	}
	_, w.err = w.conn.bw.Write(b)
}

func (w *responseWriter) Write(p []byte) (int, error) {
	if !w.wroteHeader {
		if w.header.Get("Content-Type") == "" && len(p) > 0 {
			w.header.Set("Content-Type", http.DetectContentType(p))
		}
		w.WriteHeader(http.StatusOK)
	}
	if w.err != nil {
		return 0, w.err
	}
	if w.head {
		return len(p), nil
	}

	maxChunk := len(w.conn.buf) - chunkOverhead
	written := 0
	for len(p) > 0 {
		n := min(len(p), maxChunk)
		b, err := encodeSendBodyChunk(p[:n], len(w.conn.buf))
		if err != nil {
			w.err = err
			return written, err
		}
		if _, err := w.conn.bw.Write(b); err != nil {
			w.err = err
			return written, err
		}
		written += n
		p = p[n:]
	}
	return written, nil
}

// Flush implements [http.Flusher].
func (w *responseWriter) Flush() {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	if w.err != nil {
		return
	}
	w.err = w.conn.bw.Flush()
}

// end finishes the response and reports whether the connection may be
// reused.
func (w *responseWriter) end(reuse bool) bool {
	if w.ended {
		return false
	}
	w.ended = true
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	if w.err != nil {
		return false
	}
	reuse = reuse && w.err == nil
	if _, err := w.conn.bw.Write(encodeEndResponse(reuse)); err != nil {
		w.err = err
		return false
	}
	if err := w.conn.bw.Flush(); err != nil {
		w.err = err
		return false
	}
	return reuse
}

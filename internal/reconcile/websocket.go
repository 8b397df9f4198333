package reconcile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

// frameTerminator ends every code sent by the scanner bridge.
const frameTerminator = "\r\n"

// ErrInvalidFrame is returned when the bridge sends a frame not terminated
// by CRLF.
var ErrInvalidFrame = errors.New("reconcile: scanner frame not terminated by CRLF")

// ParseFrame extracts the codes of one text frame. A frame may carry several
// CRLF-terminated codes; blank ones are skipped.
func ParseFrame(data []byte) ([]string, error) {
	if !bytes.HasSuffix(data, []byte(frameTerminator)) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFrame, data)
	}
	var codes []string
	for _, part := range bytes.Split(bytes.TrimSuffix(data, []byte(frameTerminator)), []byte(frameTerminator)) {
		code := string(bytes.TrimSpace(part))
		if code != "" {
			codes = append(codes, code)
		}
	}
	return codes, nil
}

// ScanReply is written back to the bridge for every handled code.
type ScanReply struct {
	Kind        EffectKind `json:"kind"`
	Code        string     `json:"code"`
	ArticleID   string     `json:"article_id,omitempty"`
	Description string     `json:"description,omitempty"`
	Loaded      string     `json:"loaded"`
	Ordered     string     `json:"ordered"`
	Pending     bool       `json:"pending"`
	Error       string     `json:"error,omitempty"`
}

func newScanReply(e Effect, err error) ScanReply {
	r := ScanReply{
		Kind:        e.Kind,
		Code:        e.Code,
		ArticleID:   e.ArticleID,
		Description: e.Description,
		Loaded:      e.Loaded.StringFixed(3),
		Ordered:     e.Ordered.StringFixed(3),
		Pending:     e.NeedsConfirmation() && err == nil,
	}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// ScanObserver is told about bridge connections and every handled code.
type ScanObserver interface {
	ScannerConnected()
	ScannerDisconnected()
	ScanHandled(effect string)
}

type noopObserver struct{}

func (noopObserver) ScannerConnected() {}
func (noopObserver) ScannerDisconnected() {}
func (noopObserver) ScanHandled(string) {}

// WSSource accepts scanner bridge connections and feeds their codes into a
// live session.
type WSSource struct {
	upgrader ws.Upgrader
	logger   *slog.Logger
	observer ScanObserver
}

// NewWSSource builds a source. An empty allowedOrigin accepts any origin.
func NewWSSource(allowedOrigin string, logger *slog.Logger) *WSSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSSource{
		upgrader: ws.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowedOrigin == "" || origin == "" || origin == allowedOrigin
			},
		},
		logger:   logger,
		observer: noopObserver{},
	}
}

// WithObserver reports connections and scans to o.
func (s *WSSource) WithObserver(o ScanObserver) *WSSource {
	if o != nil {
		s.observer = o
	}
	return s
}

// Serve upgrades the request and scans until the bridge disconnects, sends
// an invalid frame or ctx is done. Scans already applied stay in the session.
func (s *WSSource) Serve(ctx context.Context, w http.ResponseWriter, r *http.Request, live *Live) error {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("reconcile: upgrade scanner: %w", err)
	}
	defer conn.Close()
	// the server read timeout still applies to the hijacked connection
	_ = conn.SetReadDeadline(time.Time{})
	s.observer.ScannerConnected()
	defer s.observer.ScannerDisconnected()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	codes := make(chan string)

	var wmu sync.Mutex
	reply := func(e Effect, err error) {
		effect := string(e.Kind)
		if effect == "" {
			effect = "ERROR"
		}
		s.observer.ScanHandled(effect)
		data, mErr := json.Marshal(newScanReply(e, err))
		if mErr != nil {
			s.logger.Warn("scanner reply marshal", slog.Any("error", mErr))
			return
		}
		wmu.Lock()
		defer wmu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(ws.TextMessage, data); err != nil {
			s.logger.Debug("scanner reply", slog.Any("error", err))
		}
	}

	g.Go(func() error {
		<-gctx.Done()
		_ = conn.Close()
		return nil
	})
	g.Go(func() error {
		defer cancel()
		defer close(codes)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if ws.IsCloseError(err, ws.CloseNormalClosure, ws.CloseGoingAway) {
					return nil
				}
				if gctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("reconcile: read scanner: %w", err)
			}
			batch, err := ParseFrame(data)
			if err != nil {
				wmu.Lock()
				_ = conn.WriteControl(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseUnsupportedData, "frame must end with CRLF"), time.Now().Add(time.Second))
				wmu.Unlock()
				return err
			}
			for _, code := range batch {
				select {
				case codes <- code:
				case <-gctx.Done():
					return nil
				}
			}
		}
	})
	g.Go(func() error {
		err := NewScanner(live, reply, s.logger).Run(gctx, codes)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	err = g.Wait()
	s.logger.Info("scanner disconnected", slog.Int64("order_id", live.OrderID()), slog.Any("error", err))
	return err
}

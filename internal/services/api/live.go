package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	domain "github.com/NordCoder/Puntos/internal/domain/reminder"
	"github.com/NordCoder/Puntos/internal/services/reminder"
)

const (
	frameNotification      = "notification"
	framePermissionRequest = "permission_request"
	framePermission        = "permission"
	framePush              = "push"

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 20 * time.Second
)

var liveSessions = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "live_sessions",
	Help: "Open foreground websocket sessions.",
})

// frame is the single message shape in both directions.
type frame struct {
	Type         string               `json:"type"`
	ID           string               `json:"id,omitempty"`
	Notification *domain.Notification `json:"notification,omitempty"`
	Permission   string               `json:"permission,omitempty"`
	Push         *domain.PushEvent    `json:"push,omitempty"`
}

type session struct {
	userID string
	conn   *websocket.Conn
	done   chan struct{}

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan domain.Permission
}

func (s *session) write(f frame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(f)
}

func (s *session) ping() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// Hub tracks one live session per user. It shows foreground notifications and
// carries permission prompts to the browser.
type Hub struct {
	log      *zap.Logger
	upgrader websocket.Upgrader

	// OnPush and OnPermission receive client frames that are not replies.
	OnPush       func(ctx context.Context, userID string, ev domain.PushEvent) error
	OnPermission func(ctx context.Context, userID string, p domain.Permission) error

	mu       sync.Mutex
	sessions map[string]*session
}

var (
	_ reminder.Sessions = (*Hub)(nil)
	_ reminder.Prompter = (*Hub)(nil)
)

func NewHub(log *zap.Logger, allowedOrigins []string) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Hub{
		log:      log.With(zap.String("component", "api.live")),
		sessions: make(map[string]*session),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

func (h *Hub) get(userID string) *session {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sessions[userID]
}

func (h *Hub) Connected(userID string) bool { return h.get(userID) != nil }

// Notify shows n in the user's open session.
func (h *Hub) Notify(_ context.Context, userID string, n domain.Notification) error {
	s := h.get(userID)
	if s == nil {
		return reminder.ErrNoLiveSession
	}
	if err := s.write(frame{Type: frameNotification, Notification: &n}); err != nil {
		return fmt.Errorf("live write: %w", err)
	}
	return nil
}

// Prompt asks the connected browser for permission and waits for its reply.
func (h *Hub) Prompt(ctx context.Context, userID string) (domain.Permission, error) {
	s := h.get(userID)
	if s == nil {
		return "", domain.ErrNotUserInitiated
	}
	id := uuid.NewString()
	ch := make(chan domain.Permission, 1)
	s.mu.Lock()
	s.pending[id] = ch
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}()

	if err := s.write(frame{Type: framePermissionRequest, ID: id}); err != nil {
		return "", fmt.Errorf("live write: %w", err)
	}
	select {
	case p := <-ch:
		return p, nil
	case <-s.done:
		return "", domain.ErrNotUserInitiated
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// ServeWS upgrades the request and runs the session until the client leaves.
// A new session for the same user replaces the old one.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	s := &session{
		userID:  userID,
		conn:    conn,
		done:    make(chan struct{}),
		pending: make(map[string]chan domain.Permission),
	}

	h.mu.Lock()
	prev := h.sessions[userID]
	h.sessions[userID] = s
	h.mu.Unlock()
	if prev != nil {
		_ = prev.conn.Close()
	} else {
		liveSessions.Inc()
	}
	log := h.log.With(zap.String("user_id", userID))
	log.Info("live session opened")

	go h.keepalive(s)
	h.readLoop(r.Context(), s, log)

	h.mu.Lock()
	if h.sessions[userID] == s {
		delete(h.sessions, userID)
		liveSessions.Dec()
	}
	h.mu.Unlock()
	close(s.done)
	_ = conn.Close()
	log.Info("live session closed")
}

func (h *Hub) keepalive(s *session) {
	t := time.NewTicker(pingPeriod)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if err := s.ping(); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

func (h *Hub) readLoop(ctx context.Context, s *session, log *zap.Logger) {
	s.conn.SetReadLimit(4096)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	ctx = context.WithoutCancel(ctx)

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("live read failed", zap.Error(err))
			}
			return
		}
		var f frame
		if err := json.Unmarshal(raw, &f); err != nil {
			log.Debug("bad live frame", zap.Error(err))
			continue
		}
		if err := h.dispatch(ctx, s, f); err != nil {
			log.Warn("live frame rejected", zap.String("type", f.Type), zap.Error(err))
		}
	}
}

var errUnknownFrame = errors.New("unknown frame type")

func (h *Hub) dispatch(ctx context.Context, s *session, f frame) error {
	switch f.Type {
	case framePermission:
		p, err := domain.ParsePermission(f.Permission)
		if err != nil {
			return err
		}
		if f.ID != "" {
			s.mu.Lock()
			ch, ok := s.pending[f.ID]
			s.mu.Unlock()
			if ok {
				select {
				case ch <- p:
				default:
				}
				return nil
			}
		}
		if h.OnPermission != nil {
			return h.OnPermission(ctx, s.userID, p)
		}
		return nil
	case framePush:
		if f.Push == nil {
			return errors.New("push frame without payload")
		}
		if h.OnPush != nil {
			return h.OnPush(ctx, s.userID, *f.Push)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", errUnknownFrame, f.Type)
	}
}

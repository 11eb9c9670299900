package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"go.uber.org/zap"

	"github.com/NordCoder/Puntos/internal/apperr"
	"github.com/NordCoder/Puntos/internal/domain/notification"
	"github.com/NordCoder/Puntos/internal/domain/promo"
	domain "github.com/NordCoder/Puntos/internal/domain/reminder"
	"github.com/NordCoder/Puntos/internal/obs"
	"github.com/NordCoder/Puntos/internal/services/reminder"
)

type Deps struct {
	Log       *zap.Logger
	Manager   *reminder.Manager
	Inbox     notification.Repo
	Directory promo.Directory
	Ledger    promo.Ledger
	Hub       *Hub
	// PointsLink is where opened notifications redirect to.
	PointsLink string
}

type Server struct {
	Deps
	log      *zap.Logger
	validate *validator.Validate
}

func NewServer(d Deps) *Server {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	s := &Server{
		Deps:     d,
		log:      d.Log.With(zap.String("component", "api")),
		validate: validator.New(),
	}
	if d.Hub != nil {
		d.Hub.OnPush = s.onLivePush
		d.Hub.OnPermission = s.onLivePermission
	}
	return s
}

type route struct {
	method  string
	pattern string
	h       func(w http.ResponseWriter, r *http.Request, p map[string]string) error
}

func (s *Server) routes() []route {
	return []route{
		{http.MethodPost, "/v1/reminders/{user_id}/init", s.initScheduler},
		{http.MethodPut, "/v1/reminders/{user_id}/context", s.updateContext},
		{http.MethodPut, "/v1/reminders/{user_id}/permission", s.reportPermission},
		{http.MethodPost, "/v1/reminders/{user_id}/permission/request", s.requestPermission},
		{http.MethodPost, "/v1/reminders/{user_id}/token", s.registerToken},
		{http.MethodPost, "/v1/reminders/{user_id}/unsubscribe", s.unsubscribe},
		{http.MethodDelete, "/v1/reminders/{user_id}", s.destroy},
		{http.MethodGet, "/v1/reminders/{user_id}", s.status},
		{http.MethodPost, "/v1/promo/decode", s.decodePromo},
		{http.MethodPost, "/v1/promo/redeem", s.redeemPromo},
		{http.MethodGet, "/v1/promo/qr", s.promoQR},
		{http.MethodGet, "/v1/clients/{client_id}/statement", s.statement},
		{http.MethodPost, "/v1/purchases", s.registerPurchase},
		{http.MethodPost, "/v1/campaigns", s.saveCampaign},
		{http.MethodGet, "/v1/notifications/{user_id}", s.inbox},
		{http.MethodGet, "/v1/notifications/open/{id}", s.openNotification},
		{http.MethodGet, "/v1/live/{user_id}", s.live},
	}
}

// Register mounts every route on mux.
func (s *Server) Register(mux *runtime.ServeMux) error {
	for _, rt := range s.routes() {
		if err := mux.HandlePath(rt.method, rt.pattern, s.wrap(rt.h)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) wrap(h func(http.ResponseWriter, *http.Request, map[string]string) error) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, p map[string]string) {
		err := h(w, r, p)
		if err == nil {
			return
		}
		err = toAppErr(err)
		log := obs.WithTrace(r.Context(), s.log)
		if apperr.Status(err) >= http.StatusInternalServerError {
			log.Error("request failed", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
		} else {
			log.Debug("request rejected", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
		}
		apperr.Write(w, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// decode reads a JSON body into dst and validates it. An empty body is an
// error unless optional is set, in which case it reports false.
func (s *Server) decode(r *http.Request, dst any, optional bool) (bool, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return false, badRequest("read body: %v", err)
	}
	if len(body) == 0 {
		if optional {
			return false, nil
		}
		return false, apperr.ErrEmptyBody
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return false, badRequest("malformed json: %v", err)
	}
	if err := s.validate.Struct(dst); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Server) scheduler(p map[string]string) (*reminder.Scheduler, error) {
	return s.Manager.Lookup(p["user_id"])
}

func (s *Server) onLivePush(ctx context.Context, userID string, ev domain.PushEvent) error {
	sch, err := s.Manager.Lookup(userID)
	if err != nil {
		return err
	}
	return sch.HandlePush(ctx, ev)
}

func (s *Server) onLivePermission(ctx context.Context, userID string, p domain.Permission) error {
	sch, err := s.Manager.Lookup(userID)
	if err != nil {
		return err
	}
	return sch.ReportPermission(ctx, p)
}

var (
	errMissingUser = errors.New("user_id is required")
	errNoDirectory = errors.New("no upstream directory")
	errNoInbox     = errors.New("no inbox repository")
)

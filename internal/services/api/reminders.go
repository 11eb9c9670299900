package api

import (
	"net/http"

	domain "github.com/NordCoder/Puntos/internal/domain/reminder"
)

func (s *Server) initScheduler(w http.ResponseWriter, r *http.Request, p map[string]string) error {
	userID := p["user_id"]
	if userID == "" {
		return badRequest("%v", errMissingUser)
	}
	var req contextRequest
	has, err := s.decode(r, &req, true)
	if err != nil {
		return err
	}
	var uc *domain.UserContext
	if has {
		c := req.toDomain(userID)
		uc = &c
	}
	sch, err := s.Manager.Init(r.Context(), userID, uc)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, sch.Status())
}

func (s *Server) updateContext(w http.ResponseWriter, r *http.Request, p map[string]string) error {
	sch, err := s.scheduler(p)
	if err != nil {
		return err
	}
	var req contextRequest
	if _, err := s.decode(r, &req, false); err != nil {
		return err
	}
	if err := sch.UpdateContext(r.Context(), req.toDomain(sch.UserID())); err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, sch.Status())
}

func (s *Server) reportPermission(w http.ResponseWriter, r *http.Request, p map[string]string) error {
	sch, err := s.scheduler(p)
	if err != nil {
		return err
	}
	var req permissionRequest
	if _, err := s.decode(r, &req, false); err != nil {
		return err
	}
	perm, err := domain.ParsePermission(req.State)
	if err != nil {
		return badRequest("%v", err)
	}
	if err := sch.ReportPermission(r.Context(), perm); err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, sch.Status())
}

func (s *Server) requestPermission(w http.ResponseWriter, r *http.Request, p map[string]string) error {
	sch, err := s.scheduler(p)
	if err != nil {
		return err
	}
	granted, err := sch.RequestPermission(r.Context())
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, grantedResponse{Granted: granted})
}

func (s *Server) registerToken(w http.ResponseWriter, r *http.Request, p map[string]string) error {
	sch, err := s.scheduler(p)
	if err != nil {
		return err
	}
	var req tokenRequest
	if _, err := s.decode(r, &req, false); err != nil {
		return err
	}
	if err := sch.RegisterDevice(r.Context(), req.Token); err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, sch.Status())
}

func (s *Server) unsubscribe(w http.ResponseWriter, r *http.Request, p map[string]string) error {
	sch, err := s.scheduler(p)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, okResponse{OK: sch.Unsubscribe(r.Context())})
}

func (s *Server) destroy(w http.ResponseWriter, _ *http.Request, p map[string]string) error {
	s.Manager.Destroy(p["user_id"])
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request, p map[string]string) error {
	sch, err := s.scheduler(p)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, sch.Status())
}

func (s *Server) live(w http.ResponseWriter, r *http.Request, p map[string]string) error {
	if s.Hub == nil {
		return badRequest("live sessions are disabled")
	}
	s.Hub.ServeWS(w, r, p["user_id"])
	return nil
}

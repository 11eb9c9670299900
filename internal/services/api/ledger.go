package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/NordCoder/Puntos/internal/apperr"
)

var errNoLedger = errors.New("no upstream ledger")

func (s *Server) statement(w http.ResponseWriter, r *http.Request, p map[string]string) error {
	if s.Ledger == nil {
		return apperr.Wrap(errNoLedger, apperr.ErrUnavailable, "loyalty backend not configured")
	}
	id := p["client_id"]
	if id == "" {
		return badRequest("client_id is required")
	}
	out, err := s.Ledger.Statement(r.Context(), id)
	if err != nil {
		return err
	}
	return writeRaw(w, http.StatusOK, out)
}

func (s *Server) registerPurchase(w http.ResponseWriter, r *http.Request, _ map[string]string) error {
	if s.Ledger == nil {
		return apperr.Wrap(errNoLedger, apperr.ErrUnavailable, "loyalty backend not configured")
	}
	body, err := readObject(r)
	if err != nil {
		return err
	}
	out, err := s.Ledger.RegisterPurchase(r.Context(), body)
	if err != nil {
		return err
	}
	return writeRaw(w, http.StatusCreated, out)
}

func (s *Server) saveCampaign(w http.ResponseWriter, r *http.Request, _ map[string]string) error {
	if s.Ledger == nil {
		return apperr.Wrap(errNoLedger, apperr.ErrUnavailable, "loyalty backend not configured")
	}
	body, err := readObject(r)
	if err != nil {
		return err
	}
	out, err := s.Ledger.SaveCampaign(r.Context(), body)
	if err != nil {
		return err
	}
	return writeRaw(w, http.StatusCreated, out)
}

// readObject accepts any JSON object; its shape belongs to the backend.
func readObject(r *http.Request) (json.RawMessage, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return nil, badRequest("read body: %v", err)
	}
	if len(body) == 0 {
		return nil, apperr.ErrEmptyBody
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, badRequest("body must be a json object")
	}
	return body, nil
}

func writeRaw(w http.ResponseWriter, status int, raw json.RawMessage) error {
	if len(raw) == 0 {
		raw = json.RawMessage("null")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err := w.Write(raw)
	return err
}

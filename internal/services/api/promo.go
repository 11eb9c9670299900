package api

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/NordCoder/Puntos/internal/apperr"
	"github.com/NordCoder/Puntos/internal/domain/promo"
)

func (s *Server) decodePromo(w http.ResponseWriter, r *http.Request, _ map[string]string) error {
	var req rawRequest
	if _, err := s.decode(r, &req, false); err != nil {
		return err
	}
	payload, ok := promo.Decode(req.Raw)
	if !ok {
		return promo.ErrNotRecognized
	}
	return writeJSON(w, http.StatusOK, payload)
}

// redeemPromo decodes a scanned code and resolves its client and campaign
// against the upstream directory.
func (s *Server) redeemPromo(w http.ResponseWriter, r *http.Request, _ map[string]string) error {
	if s.Directory == nil {
		return apperr.Wrap(errNoDirectory, apperr.ErrUnavailable, "loyalty backend not configured")
	}
	var req rawRequest
	if _, err := s.decode(r, &req, false); err != nil {
		return err
	}
	payload, ok := promo.Decode(req.Raw)
	if !ok {
		return promo.ErrNotRecognized
	}

	resp := redeemResponse{Payload: payload}
	clients, err := s.Directory.ListClients(r.Context())
	if err != nil {
		return err
	}
	if c, ok := promo.FindClientByPhone(clients, payload.PhoneNumber); ok {
		resp.Client = &c
	}
	if payload.Kind == promo.KindPromo {
		campaigns, err := s.Directory.ListCampaigns(r.Context())
		if err != nil {
			return err
		}
		if c, ok := promo.FindCampaignByID(campaigns, payload.CampaignID); ok {
			resp.Campaign = &c
		}
	}
	return writeJSON(w, http.StatusOK, resp)
}

func (s *Server) promoQR(w http.ResponseWriter, r *http.Request, _ map[string]string) error {
	q := r.URL.Query()
	req := qrQuery{CampaignID: q.Get("campaign_id"), Phone: q.Get("phone")}
	if raw := q.Get("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return badRequest("size must be an integer")
		}
		req.Size = n
	}
	if err := s.validate.Struct(req); err != nil {
		return err
	}
	content, err := promo.Encode(req.CampaignID, req.Phone)
	if err != nil {
		return err
	}
	png, err := promo.RenderPNG(content, req.Size)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, err = w.Write(png)
	return err
}

func (s *Server) inbox(w http.ResponseWriter, r *http.Request, p map[string]string) error {
	if s.Inbox == nil {
		return apperr.Wrap(errNoInbox, apperr.ErrUnavailable, "inbox not configured")
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 200 {
			return badRequest("limit must be between 1 and 200")
		}
		limit = n
	}
	list, err := s.Inbox.ListByUser(r.Context(), p["user_id"], limit)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, inboxResponse{Notifications: list})
}

// openNotification marks an inbox entry opened and sends the browser on to
// the points page.
func (s *Server) openNotification(w http.ResponseWriter, r *http.Request, p map[string]string) error {
	if s.Inbox == nil {
		return apperr.Wrap(errNoInbox, apperr.ErrUnavailable, "inbox not configured")
	}
	id, err := uuid.Parse(p["id"])
	if err != nil {
		return badRequest("invalid notification id")
	}
	n, err := s.Inbox.MarkOpened(r.Context(), id)
	if err != nil {
		return err
	}
	target := n.Link
	if target == "" {
		target = s.PointsLink
	}
	http.Redirect(w, r, target, http.StatusFound)
	return nil
}

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/mailpipe/pkg/producer"
	"github.com/dmitrymomot/mailpipe/pkg/queue"
)

type campaignResponse struct {
	CreatedAt time.Time           `json:"created_at"`
	ID        string              `json:"id"`
	Name      string              `json:"name"`
	Subject   string              `json:"subject"`
	Segment   string              `json:"segment"`
	Status    string              `json:"status"`
	CreatedBy string              `json:"created_by,omitempty"`
	Stats     queue.CampaignStats `json:"stats"`
}

type itemResponse struct {
	ID       string `json:"id"`
	To       string `json:"to"`
	Subject  string `json:"subject"`
	Status   string `json:"status"`
	Priority int    `json:"priority"`
}

func toItemResponse(it *queue.Item) itemResponse {
	return itemResponse{ID: it.ID, To: it.To, Subject: it.Subject, Status: string(it.Status), Priority: it.Priority}
}

func (s *server) createCampaign(w http.ResponseWriter, r *http.Request) {
	var req producer.CampaignRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	res, err := s.deps.Campaigns.Create(r.Context(), req)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *server) getCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := s.deps.Store.GetCampaign(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, campaignResponse{
		CreatedAt: c.CreatedAt,
		ID:        c.ID,
		Name:      c.Name,
		Subject:   c.Subject,
		Segment:   c.Segment,
		Status:    string(c.Status),
		CreatedBy: c.CreatedBy,
		Stats:     c.Stats,
	})
}

func (s *server) signup(w http.ResponseWriter, r *http.Request) {
	var u producer.User
	if err := decodeJSON(w, r, &u); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	if u.Email == "" {
		writeError(w, r, s.log, producer.ErrNoRecipient)
		return
	}

	if s.deps.Welcome != nil {
		if err := s.deps.Welcome.ScheduleWelcome(r.Context(), u); err != nil {
			writeError(w, r, s.log, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]bool{"scheduled": true})
		return
	}

	it, err := s.deps.Hooks.Signup(r.Context(), u)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, toItemResponse(it))
}

func (s *server) contactMessage(w http.ResponseWriter, r *http.Request) {
	var m producer.ContactMessage
	if err := decodeJSON(w, r, &m); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	items, err := s.deps.Hooks.ContactMessage(r.Context(), m)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	out := make([]itemResponse, 0, len(items))
	for _, it := range items {
		out = append(out, toItemResponse(it))
	}
	writeJSON(w, http.StatusCreated, map[string]any{"items": out})
}

func (s *server) contactReply(w http.ResponseWriter, r *http.Request) {
	var req producer.ReplyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	it, err := s.deps.Hooks.ContactReply(r.Context(), req)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, toItemResponse(it))
}

func (s *server) sendNotice(w http.ResponseWriter, r *http.Request) {
	var req producer.NoticeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	res, err := s.deps.Notices.Send(r.Context(), req)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *server) stats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.queueStats(r.Context())
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

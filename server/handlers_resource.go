package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/jrsteele09/go-agent-auth/paymentpages"
	"github.com/jrsteele09/go-agent-auth/oauthmodel"
	"github.com/rs/zerolog/log"
)

type meResponse struct {
	UserID           string          `json:"userId"`
	SessionID        string          `json:"sessionId"`
	ClientID         string          `json:"clientId"`
	CreatedAt        time.Time       `json:"createdAt"`
	LastUsedAt       time.Time       `json:"lastUsedAt"`
	SessionExpiresAt time.Time       `json:"sessionExpiresAt"`
	DeliveryAddress  json.RawMessage `json:"deliveryAddress,omitempty"`
}

// Me describes the session behind the caller's credential.
func (s *Server) Me() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := SessionFromContext(r.Context())
		if !ok {
			s.unauthorized(w, "")
			return
		}
		writeJSON(w, http.StatusOK, meResponse{
			UserID:           sess.UserID,
			SessionID:        sess.ID,
			ClientID:         sess.ClientID,
			CreatedAt:        sess.CreatedAt,
			LastUsedAt:       sess.LastUsedAt,
			SessionExpiresAt: sess.SessionExpiresAt,
			DeliveryAddress:  sess.DeliveryAddress,
		})
	}
}

type paymentPageResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// CreatePaymentPage stores a card verification page the agent hands to the
// user, returning the link to open.
func (s *Server) CreatePaymentPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			HTML string `json:"html"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body); err != nil || body.HTML == "" {
			writeOAuthError(w, oauthmodel.InvalidRequest("body must be JSON with a non-empty html field"))
			return
		}

		id, err := s.payments.Create(r.Context(), body.HTML)
		if err != nil {
			writeServiceError(w, "[Server.CreatePaymentPage] create failed", err)
			return
		}
		writeJSON(w, http.StatusCreated, paymentPageResponse{ID: id, URL: s.issuerURL() + "/3ds/" + id})
	}
}

// PaymentPage serves a stored verification page. Opening it shortens the
// remaining lifetime of the link.
func (s *Server) PaymentPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := s.payments.Get(r.Context(), r.PathValue("pageId"))
		if errors.Is(err, paymentpages.ErrNotFound) {
			http.Error(w, "This payment link has expired.", http.StatusNotFound)
			return
		}
		if err != nil {
			log.Err(err).Msg("[Server.PaymentPage] lookup failed")
			http.Error(w, "Payment page unavailable", http.StatusInternalServerError)
			return
		}

		if err := s.payments.MarkUsed(r.Context(), page); err != nil {
			log.Warn().Err(err).Str("pageId", page.ID).Msg("failed to mark payment page used")
		}

		w.Header().Set("Content-Type", contentTypeHTML)
		_, _ = io.WriteString(w, page.HTML)
	}
}

package api

import (
	"fmt"
	"net/http"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/labelforge/labelforge/internal/server"
	"github.com/labelforge/labelforge/pkg/notifications"
)

// SendEmailRequest is the body of POST /api/send-email/.
type SendEmailRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// SendEmailResponse is returned after a successful send.
type SendEmailResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// SendEmailHandler sends a plain text email on behalf of the requester.
func SendEmailHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			respondMethodNotAllowed(w, srv.Logger, r.Method)
			return
		}
		user, ok := requestUser(srv, w, r)
		if !ok {
			return
		}
		logArgs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"user_id", user.ID,
		}

		var req SendEmailRequest
		if err := decodeRequest(r, &req); err != nil {
			srv.Logger.Warn("error decoding request",
				append([]any{"error", err}, logArgs...)...)
			respondError(w, srv.Logger, http.StatusBadRequest,
				"Missing required fields: to, subject, message")
			return
		}
		req.To = strings.TrimSpace(req.To)
		if req.To == "" || req.Subject == "" || req.Message == "" {
			respondError(w, srv.Logger, http.StatusBadRequest,
				"Missing required fields: to, subject, message")
			return
		}

		addr, err := mail.ParseAddress(req.To)
		if err != nil {
			respondError(w, srv.Logger, http.StatusBadRequest,
				"Invalid recipient email address")
			return
		}

		if !srv.EmailLimiter.Allow(strconv.FormatUint(uint64(user.ID), 10), time.Now()) {
			srv.Logger.Warn("email rate limit exceeded", logArgs...)
			respondError(w, srv.Logger, http.StatusTooManyRequests,
				"Too many email requests")
			return
		}

		from := ""
		if srv.Config.Email != nil {
			from = srv.Config.Email.FromAddress
		}
		msg := notifications.NewEmail(user.ID, addr.Address, from, req.Subject, req.Message)
		msg.Recipients[0].Name = addr.Name

		err = srv.Dispatcher.Dispatch(r.Context(), msg)
		srv.Metrics.EmailResult(err)
		if err != nil {
			srv.Logger.Error("failed to send email",
				append([]any{
					"error", err,
					"to", addr.Address,
					"message_id", msg.ID,
				}, logArgs...)...)
			respondError(w, srv.Logger, http.StatusInternalServerError,
				fmt.Sprintf("Failed to send email: %v", err))
			return
		}

		srv.Logger.Info("email sent",
			append([]any{
				"to", addr.Address,
				"message_id", msg.ID,
			}, logArgs...)...)
		respondJSON(w, srv.Logger, http.StatusOK, SendEmailResponse{
			Success: true,
			Message: "Email sent successfully to " + req.To,
		})
	})
}

package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/healthtrack/internal/guard"
	"github.com/hitoshi/healthtrack/internal/middleware"
	"github.com/hitoshi/healthtrack/internal/reminder"
)

// reminderRoute はリマインダー画面のパス。
const reminderRoute = "/reminders/new"

// ReminderHandler はリマインダー登録画面のハンドラー。
type ReminderHandler struct {
	sessions  SessionService
	reminders ReminderService
	views     *views
	msg       messages
}

// NewReminderHandler はReminderHandlerを生成する。
func NewReminderHandler(sessions SessionService, rs ReminderService, v *views, msg messages) *ReminderHandler {
	return &ReminderHandler{sessions: sessions, reminders: rs, views: v, msg: msg}
}

// Form はリマインダー登録フォームを表示する。
// GET /reminders/new
func (h *ReminderHandler) Form(w http.ResponseWriter, r *http.Request) {
	data := h.formData(r)
	if r.URL.Query().Get("saved") == "1" {
		data.Flash = "リマインダーを登録しました。"
	}
	h.views.render(w, http.StatusOK, pageReminder, data)
}

// Submit はリマインダー登録フォームの送信を処理する。
// POST /reminders/new
func (h *ReminderHandler) Submit(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		http.Redirect(w, r, guard.LoginURL(reminderRoute), http.StatusSeeOther)
		return
	}

	in := reminder.Input{
		Medicine: strings.TrimSpace(r.PostFormValue("medicine")),
		Time:     strings.TrimSpace(r.PostFormValue("time")),
		Dosage:   strings.TrimSpace(r.PostFormValue("dosage")),
	}

	token := h.sessions.CurrentSession().Token
	err = h.reminders.Submit(r.Context(), userID, in)
	if err == nil {
		http.Redirect(w, r, reminderRoute+"?saved=1", http.StatusSeeOther)
		return
	}
	if redirectIfRejected(w, r, h.sessions, reminderRoute, token, err) {
		return
	}

	slog.Info("failed to submit reminder", slog.String("error", err.Error()))
	data := h.formData(r)
	data.Form["medicine"] = in.Medicine
	data.Form["time"] = in.Time
	data.Form["dosage"] = in.Dosage
	data.Error = h.msg.userMessage(err)

	status := http.StatusBadGateway
	if isValidationError(err) {
		status = http.StatusBadRequest
	}
	h.views.render(w, status, pageReminder, data)
}

func (h *ReminderHandler) formData(r *http.Request) *pageData {
	data := newPageData(r, "リマインダー", h.sessions.CurrentSession())
	data.GuardRoute = reminderRoute
	return data
}

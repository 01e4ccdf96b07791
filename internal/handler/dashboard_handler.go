package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/healthtrack/internal/health"
	"github.com/hitoshi/healthtrack/internal/middleware"
)

// DashboardHandler はダッシュボードとプロフィール画面のハンドラー。
type DashboardHandler struct {
	sessions SessionService
	health   HealthService
	views    *views
	msg      messages
}

// NewDashboardHandler はDashboardHandlerを生成する。
func NewDashboardHandler(sessions SessionService, hs HealthService, v *views, msg messages) *DashboardHandler {
	return &DashboardHandler{sessions: sessions, health: hs, views: v, msg: msg}
}

// Dashboard は測定記録の一覧と平均値（小数1桁）、記録フォームを表示する。
// GET /dashboard
func (h *DashboardHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	data := h.dashboardData(r)
	if r.URL.Query().Get("saved") == "1" {
		data.Flash = "記録を保存しました。"
	}

	token := h.sessions.CurrentSession().Token
	readings, err := h.health.List(r.Context())
	if err != nil {
		if redirectIfRejected(w, r, h.sessions, "/dashboard", token, err) {
			return
		}
		slog.Warn("failed to list readings", slog.String("error", err.Error()))
		data.Error = h.msg.userMessage(err)
		h.views.render(w, http.StatusBadGateway, pageDashboard, data)
		return
	}

	data.Readings = readings
	data.Stats = health.OneDecimal(health.ComputeStats(readings))
	h.views.render(w, http.StatusOK, pageDashboard, data)
}

// SubmitReading は記録フォームの送信を処理する。
// POST /dashboard/readings
// 成功した場合はダッシュボードへリダイレクトし、再読み込みによる二重送信を防ぐ。
func (h *DashboardHandler) SubmitReading(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	in := health.ReadingInput{
		Systolic:    strings.TrimSpace(r.PostForm.Get("systolic")),
		Diastolic:   strings.TrimSpace(r.PostForm.Get("diastolic")),
		SugarLevel:  strings.TrimSpace(r.PostForm.Get("sugarLevel")),
		Medications: medicationsFromForm(r),
	}

	token := h.sessions.CurrentSession().Token
	err := h.health.Submit(r.Context(), in)
	if err == nil {
		http.Redirect(w, r, "/dashboard?saved=1", http.StatusSeeOther)
		return
	}
	if redirectIfRejected(w, r, h.sessions, "/dashboard", token, err) {
		return
	}

	slog.Info("failed to submit reading", slog.String("error", err.Error()))
	data := h.dashboardData(r)
	data.Form["systolic"] = in.Systolic
	data.Form["diastolic"] = in.Diastolic
	data.Form["sugarLevel"] = in.SugarLevel
	data.Error = h.msg.userMessage(err)

	// 一覧の再取得に失敗しても入力エラーの表示を優先する
	if readings, listErr := h.health.List(r.Context()); listErr == nil {
		data.Readings = readings
		data.Stats = health.OneDecimal(health.ComputeStats(readings))
	}

	status := http.StatusBadGateway
	if isValidationError(err) {
		status = http.StatusBadRequest
	}
	h.views.render(w, status, pageDashboard, data)
}

// Profile はログインユーザーと平均値（整数に丸めたもの）を表示する。
// GET /profile
func (h *DashboardHandler) Profile(w http.ResponseWriter, r *http.Request) {
	data := newPageData(r, "プロフィール", h.sessions.CurrentSession())
	data.GuardRoute = "/profile"
	if identity, ok := middleware.IdentityFromContext(r.Context()); ok {
		data.Identity = &identity
	}

	token := h.sessions.CurrentSession().Token
	readings, err := h.health.List(r.Context())
	if err != nil {
		if redirectIfRejected(w, r, h.sessions, "/profile", token, err) {
			return
		}
		slog.Warn("failed to list readings", slog.String("error", err.Error()))
		data.Error = h.msg.userMessage(err)
		h.views.render(w, http.StatusBadGateway, pageProfile, data)
		return
	}

	data.Rounded = health.Round(health.ComputeStats(readings))
	h.views.render(w, http.StatusOK, pageProfile, data)
}

func (h *DashboardHandler) dashboardData(r *http.Request) *pageData {
	data := newPageData(r, "ダッシュボード", h.sessions.CurrentSession())
	data.GuardRoute = "/dashboard"
	data.MedicationRows = make([]int, medicationRows)
	return data
}

// medicationsFromForm は服薬入力欄を名前と時刻の組にまとめる。
func medicationsFromForm(r *http.Request) []health.MedicationInput {
	names := r.PostForm["medication_name"]
	times := r.PostForm["medication_time"]

	meds := make([]health.MedicationInput, 0, len(names))
	for i, name := range names {
		var t string
		if i < len(times) {
			t = times[i]
		}
		meds = append(meds, health.MedicationInput{
			Name: strings.TrimSpace(name),
			Time: strings.TrimSpace(t),
		})
	}
	return meds
}

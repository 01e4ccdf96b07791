package handler

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/healthtrack/internal/health"
	"github.com/hitoshi/healthtrack/internal/middleware"
	"github.com/hitoshi/healthtrack/internal/model"
)

// APIHandler はローカルUI向けのJSONエンドポイントのハンドラー。
type APIHandler struct {
	sessions SessionService
	health   HealthService
}

// NewAPIHandler はAPIHandlerを生成する。
func NewAPIHandler(sessions SessionService, hs HealthService) *APIHandler {
	return &APIHandler{sessions: sessions, health: hs}
}

// sessionResponse は/api/sessionのレスポンス。トークンは含めない。
type sessionResponse struct {
	Authenticated bool            `json:"authenticated"`
	Identity      *model.Identity `json:"identity"`
}

// Session は現在のセッション状態を返す。
// GET /api/session
func (h *APIHandler) Session(w http.ResponseWriter, r *http.Request) {
	snap := h.sessions.CurrentSession()
	resp := sessionResponse{Authenticated: snap.Authenticated()}
	if resp.Authenticated {
		resp.Identity = snap.Identity
	}
	writeJSON(w, http.StatusOK, resp)
}

// Stats は測定記録の平均値（小数1桁）を返す。
// GET /api/stats
func (h *APIHandler) Stats(w http.ResponseWriter, r *http.Request) {
	token := h.sessions.CurrentSession().Token
	readings, err := h.health.List(r.Context())
	if rejected, expired := expireRejected(r.Context(), h.sessions, token, err); rejected && !expired {
		// 送信後に切り替わったセッションのトークンで一度だけ再取得する
		token = h.sessions.CurrentSession().Token
		readings, err = h.health.List(r.Context())
		expireRejected(r.Context(), h.sessions, token, err)
	}
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, health.OneDecimal(health.ComputeStats(readings)))
}

// writeJSON はvをJSONとしてレスポンスに書き込む。
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

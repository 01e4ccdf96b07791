package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/hitoshi/healthtrack/internal/guard"
)

// defaultHeartbeat はイベントストリームの死活確認コメントの送信間隔。
const defaultHeartbeat = 25 * time.Second

// decisionEvent はクライアントへ送る判定結果。
type decisionEvent struct {
	Route    string `json:"route"`
	Outcome  string `json:"outcome"`
	Location string `json:"location,omitempty"`
}

// EventsHandler はルートガードの判定結果をServer-Sent Eventsで配信する。
// 保護された画面を開いたままログアウトされた場合に、ブラウザを直ちにログイン画面へ移動させる。
type EventsHandler struct {
	sessions  guard.SessionSource
	heartbeat time.Duration
}

// NewEventsHandler はEventsHandlerを生成する。
func NewEventsHandler(sessions guard.SessionSource) *EventsHandler {
	return &EventsHandler{sessions: sessions, heartbeat: defaultHeartbeat}
}

// Stream は判定結果のストリームを返す。
// GET /events?route=/dashboard
// 接続直後に現在の判定を1件送り、以後セッションが変わるたびに送る。
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	route := r.URL.Query().Get("route")
	if route == "" {
		route = guard.DefaultAfterLogin
	}
	route = guard.SafeNext(route)

	rc := http.NewResponseController(w)
	// 長時間接続のためサーバーの書き込みタイムアウトを解除する
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		slog.Debug("write deadline not supported", slog.String("error", err.Error()))
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		slog.Warn("event stream not supported", slog.String("error", err.Error()))
		return
	}

	// 通知側をブロックしないよう、最新の判定だけを保持する
	var (
		mu     sync.Mutex
		latest guard.Decision
	)
	signal := make(chan struct{}, 1)
	stop := guard.Watch(h.sessions, route, func(d guard.Decision) {
		mu.Lock()
		latest = d
		mu.Unlock()
		select {
		case signal <- struct{}{}:
		default:
		}
	})
	defer stop()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-signal:
			mu.Lock()
			d := latest
			mu.Unlock()
			if err := writeDecision(w, d); err != nil {
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

// writeDecision は判定結果を1件のdecisionイベントとして書き込む。
func writeDecision(w http.ResponseWriter, d guard.Decision) error {
	payload, err := json.Marshal(decisionEvent{
		Route:    d.Route,
		Outcome:  d.Outcome.String(),
		Location: d.Location,
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: decision\ndata: %s\n\n", payload)
	return err
}

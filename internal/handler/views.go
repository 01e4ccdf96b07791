package handler

import (
	"bytes"
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/hitoshi/healthtrack/internal/health"
	"github.com/hitoshi/healthtrack/internal/middleware"
	"github.com/hitoshi/healthtrack/internal/model"
	"github.com/hitoshi/healthtrack/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// 画面名
const (
	pageHome      = "home"
	pageLogin     = "login"
	pageSignup    = "signup"
	pageDashboard = "dashboard"
	pageProfile   = "profile"
	pageReminder  = "reminder"
)

// medicationRows はフォームに表示する服薬入力欄の行数。
const medicationRows = 3

// views は画面ごとにレイアウトと結合済みのテンプレートを保持する。
type views struct {
	pages map[string]*template.Template
}

func newViews() (*views, error) {
	v := &views{pages: make(map[string]*template.Template)}
	for _, name := range []string{pageHome, pageLogin, pageSignup, pageDashboard, pageProfile, pageReminder} {
		t, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, err
		}
		v.pages[name] = t
	}
	return v, nil
}

// sessionView はテンプレートに渡すセッション情報。トークンは含めない。
type sessionView struct {
	Authenticated bool
	Name          string
}

// pageData は全画面共通のテンプレートデータ。
type pageData struct {
	Title      string
	Session    sessionView
	CSRFToken  string
	GuardRoute string
	Error      string
	Flash      string
	Form       map[string]string
	Next       string

	Identity       *model.Identity
	Readings       []model.HealthReading
	Stats          model.Stats
	Rounded        health.RoundedStats
	MedicationRows []int
}

// newPageData はリクエストから共通項目を埋めたpageDataを生成する。
func newPageData(r *http.Request, title string, snap session.Snapshot) *pageData {
	d := &pageData{
		Title:     title,
		CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
		Form:      map[string]string{},
	}
	if snap.Authenticated() && snap.Identity != nil {
		d.Session = sessionView{Authenticated: true, Name: snap.Identity.Name}
	}
	return d
}

// render はテンプレートをバッファに書き出してからレスポンスを返す。
// 実行途中で失敗した場合に中途半端なHTMLを返さない。
func (v *views) render(w http.ResponseWriter, status int, name string, data *pageData) {
	t, ok := v.pages[name]
	if !ok {
		slog.Error("unknown page", slog.String("page", name))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		slog.Error("failed to render page", slog.String("page", name), slog.String("error", err.Error()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

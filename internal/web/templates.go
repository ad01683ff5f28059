// Package web はコンソール画面のルーティング、ハンドラー、テンプレート描画を提供する。
package web

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/authgate/internal/model"
)

//go:embed templates/*.html
var templatesFS embed.FS

// pageNames は描画可能なページテンプレートの一覧。
// 各ページはlayout.htmlと組み合わせてパースする。
var pageNames = []string{
	"home",
	"login",
	"register",
	"consent",
	"profile",
	"admin_users",
	"admin_user_edit",
	"admin_apps",
	"admin_app_edit",
	"denied",
	"error",
}

// Renderer はページテンプレートの描画を提供する。
type Renderer struct {
	pages map[string]*template.Template
}

// NewRenderer は埋め込みテンプレートをパースしたRendererを生成する。
// テンプレートの不備は起動時に検出する。
func NewRenderer() (*Renderer, error) {
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		t, err := template.ParseFS(templatesFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		pages[name] = t
	}
	return &Renderer{pages: pages}, nil
}

// basePage は全ページ共通のテンプレートデータ。
type basePage struct {
	Title     string
	User      *model.UserRecord // 匿名の場合はnil
	CSRFToken string
}

// Render は指定ページをlayoutと合成して書き込む。
func (r *Renderer) Render(w io.Writer, page string, data any) error {
	t, ok := r.pages[page]
	if !ok {
		return fmt.Errorf("unknown template page: %s", page)
	}
	return t.ExecuteTemplate(w, "layout", data)
}

// RenderPage はHTTPレスポンスとしてページを描画する。
// 描画エラーはログに残し、既にヘッダーが書かれている可能性があるため
// レスポンスには手を加えない。
func (r *Renderer) RenderPage(w http.ResponseWriter, statusCode int, page string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(statusCode)
	if err := r.Render(w, page, data); err != nil {
		slog.Error("failed to render template",
			slog.String("page", page),
			slog.String("error", err.Error()),
		)
	}
}

package handler

import (
	"html/template"
	"log/slog"
	"net/http"

	"github.com/parlorhq/parlor/internal/model"
	"github.com/parlorhq/parlor/internal/richtext"
	"github.com/parlorhq/parlor/internal/store"
)

// postPage is the minimal server-rendered view used for share links and
// post permalinks. The rendered body comes through richtext.RenderHTML,
// which escapes everything it emits.
var postPage = template.Must(template.New("post").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}} - Parlor</title>
<meta property="og:title" content="{{.Title}}">
<meta property="og:description" content="{{.Excerpt}}">
</head>
<body>
<article>
<h1>{{.Title}}</h1>
<p class="byline">by {{.AuthorName}}</p>
{{.BodyHTML}}
</article>
</body>
</html>
`))

type PageHandler struct {
	postStore  *store.PostStore
	shareStore *store.ShareStore
	logger     *slog.Logger
}

func NewPageHandler(ps *store.PostStore, ss *store.ShareStore, logger *slog.Logger) *PageHandler {
	return &PageHandler{postStore: ps, shareStore: ss, logger: logger}
}

type postPageData struct {
	Title      string
	AuthorName string
	Excerpt    string
	BodyHTML   template.HTML
}

func (h *PageHandler) renderPost(w http.ResponseWriter, post *model.Post) {
	doc, err := richtext.Parse(post.Body)
	if err != nil {
		h.logger.Error("stored post body failed to parse", "post_id", post.ID, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	postPage.Execute(w, postPageData{
		Title:      post.Title,
		AuthorName: post.AuthorName,
		Excerpt:    post.Excerpt,
		BodyHTML:   template.HTML(richtext.RenderHTML(doc)),
	})
}

// Post handles GET /p/{slug}, the post permalink.
func (h *PageHandler) Post(w http.ResponseWriter, r *http.Request) {
	post, err := h.postStore.GetBySlug(r.PathValue("slug"))
	if err != nil {
		h.logger.Error("load post page", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if post == nil || post.Hidden() || !post.Published {
		http.NotFound(w, r)
		return
	}
	h.renderPost(w, post)
}

// Share handles GET /s/{slug}, resolving a share slug to its post.
func (h *PageHandler) Share(w http.ResponseWriter, r *http.Request) {
	share, err := h.shareStore.GetBySlug(r.PathValue("slug"))
	if err != nil {
		h.logger.Error("resolve share slug", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if share == nil {
		http.NotFound(w, r)
		return
	}

	post, err := h.postStore.GetByID(share.PostID)
	if err != nil {
		h.logger.Error("load shared post", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if post == nil || post.Hidden() || !post.Published {
		http.NotFound(w, r)
		return
	}
	h.renderPost(w, post)
}

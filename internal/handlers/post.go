package handlers

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/inkwell-blog/apiserver/internal/logging"
	"github.com/inkwell-blog/apiserver/internal/services"
	"github.com/inkwell-blog/apiserver/types"
)

const (
	maxMultipartMemory = 8 << 20
	maxUploadBytes     = 32 << 20
	formFieldFile      = "file"
	formFieldID        = "id"
	formFieldTitle     = "title"
	formFieldSummary   = "summary"
	formFieldContent   = "content"
)

// PostHandler provides HTTP handlers for posts.
type PostHandler struct {
	posts *services.PostService
	log   logging.Logger
}

func NewPostHandler(posts *services.PostService, log logging.Logger) *PostHandler {
	return &PostHandler{posts: posts, log: log.With("component", "posts")}
}

// PostRouter registers post routes. Writes go through requireSession.
func PostRouter(r chi.Router, h *PostHandler, requireSession func(http.Handler) http.Handler) {
	r.Get("/", h.ListPosts)
	r.Get("/{postID}", h.GetPost)
	r.With(requireSession).Post("/", h.CreatePost)
	r.With(requireSession).Put("/", h.UpdatePost)
}

func (h *PostHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := h.posts.List(r.Context())
	if err != nil {
		writeServiceError(w, r, h.log, err, "failed to list posts")
		return
	}
	if posts == nil {
		posts = []types.Post{}
	}
	writeJSON(w, http.StatusOK, posts)
}

func (h *PostHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "postID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid post id")
		return
	}

	post, err := h.posts.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.log, err, "failed to fetch post")
		return
	}
	writeJSON(w, http.StatusOK, post)
}

// CreatePost accepts a multipart form with title, summary, content and the
// cover in "file".
func (h *PostHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "token must be provided")
		return
	}

	form, err := parsePostForm(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer form.close()

	post, err := h.posts.Create(r.Context(), claims, services.PostInput{
		Title:   form.value(formFieldTitle),
		Summary: form.value(formFieldSummary),
		Content: form.value(formFieldContent),
	}, form.upload)
	if err != nil {
		writeServiceError(w, r, h.log, err, "failed to create post")
		return
	}
	writeJSON(w, http.StatusOK, post)
}

// UpdatePost edits the post named by the "id" form field. Only fields
// present in the form are changed and the cover only when a file is sent.
func (h *PostHandler) UpdatePost(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "token must be provided")
		return
	}

	form, err := parsePostForm(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer form.close()

	id, err := uuid.Parse(strings.TrimSpace(form.value(formFieldID)))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid post id")
		return
	}

	post, err := h.posts.Update(r.Context(), claims, id, services.PostUpdate{
		Title:   form.optional(formFieldTitle),
		Summary: form.optional(formFieldSummary),
		Content: form.optional(formFieldContent),
	}, form.upload)
	if err != nil {
		writeServiceError(w, r, h.log, err, "failed to update post")
		return
	}
	writeJSON(w, http.StatusOK, post)
}

type postForm struct {
	form   *multipart.Form
	file   multipart.File
	upload *services.Upload
}

func parsePostForm(w http.ResponseWriter, r *http.Request) (*postForm, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errors.New("upload too large")
		}
		return nil, errors.New("invalid multipart form")
	}

	pf := &postForm{form: r.MultipartForm}
	files := r.MultipartForm.File[formFieldFile]
	if len(files) > 1 {
		pf.close()
		return nil, errors.New("only one cover file is allowed")
	}
	if len(files) == 1 {
		file, err := files[0].Open()
		if err != nil {
			pf.close()
			return nil, errors.New("failed to read cover file")
		}
		pf.file = file
		pf.upload = &services.Upload{Filename: files[0].Filename, Body: file}
	}
	return pf, nil
}

func (f *postForm) value(key string) string {
	if vals := f.form.Value[key]; len(vals) > 0 {
		return vals[0]
	}
	return ""
}

func (f *postForm) optional(key string) *string {
	vals, ok := f.form.Value[key]
	if !ok || len(vals) == 0 {
		return nil
	}
	v := vals[0]
	return &v
}

func (f *postForm) close() {
	if f.file != nil {
		_ = f.file.Close()
	}
	if f.form != nil {
		_ = f.form.RemoveAll()
	}
}

package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/subit-dev/posterd/internal/server/accounts"
	"github.com/subit-dev/posterd/internal/server/posts"
)

// uploadLimit bounds how much of a request body is read; the cache
// applies its own 50 MB rule, this just keeps one extra byte to let it
// see the overflow.
const uploadLimit = 50<<20 + 1

func (s *Server) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	id, _, ok := s.authenticate(w, r, accounts.PermissionPost)
	if !ok {
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, uploadLimit))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable request body"})
		return
	}

	hash, err := s.images.Push(r.Context(), data, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"hash": hash})
}

func (s *Server) handleGetImage(w http.ResponseWriter, r *http.Request) {
	_, _, ok := s.authenticate(w, r, accounts.PermissionView)
	if !ok {
		return
	}

	hash, err := strconv.ParseUint(mux.Vars(r)["hash"], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid image hash"})
		return
	}

	data, err := s.images.Get(r.Context(), hash)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handlePostCreate(w http.ResponseWriter, r *http.Request) {
	id, _, ok := s.authenticate(w, r, accounts.PermissionPost)
	if !ok {
		return
	}
	var req struct {
		Title       string    `json:"title"`
		Description string    `json:"description"`
		Images      []uint64  `json:"images"`
		Start       time.Time `json:"start"`
		End         time.Time `json:"end"`
	}
	if !decode(w, r, &req) {
		return
	}

	postID, err := s.posts.Create(r.Context(), id, posts.Descriptor{
		Title:       req.Title,
		Description: req.Description,
		Images:      req.Images,
		Start:       req.Start,
		End:         req.End,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"post_id": postID})
}

func (s *Server) handlePostQuery(w http.ResponseWriter, r *http.Request) {
	id, _, ok := s.authenticate(w, r, accounts.PermissionView)
	if !ok {
		return
	}
	var req struct {
		Status    *posts.Status `json:"status,omitempty"`
		Publisher *uint64       `json:"publisher,omitempty"`
		Before    *time.Time    `json:"before,omitempty"`
		After     *time.Time    `json:"after,omitempty"`
		Keywords  string        `json:"keywords,omitempty"`
	}
	if !decode(w, r, &req) {
		return
	}

	ids := s.posts.Query(r.Context(), id, posts.Filter{
		Status:    req.Status,
		Publisher: req.Publisher,
		Before:    req.Before,
		After:     req.After,
		Keywords:  req.Keywords,
	})
	writeJSON(w, http.StatusOK, map[string][]uint64{"posts": ids})
}

func (s *Server) handlePostInfo(w http.ResponseWriter, r *http.Request) {
	id, _, ok := s.authenticate(w, r, accounts.PermissionView)
	if !ok {
		return
	}
	var req struct {
		Posts []uint64 `json:"posts"`
	}
	if !decode(w, r, &req) {
		return
	}

	results := s.posts.GetInfo(r.Context(), id, req.Posts)
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// postEditDTO is the wire form of one post edit variant.
type postEditDTO struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value,omitempty"`
}

func (s *Server) handlePostEdit(w http.ResponseWriter, r *http.Request) {
	id, _, ok := s.authenticate(w, r, accounts.PermissionPost)
	if !ok {
		return
	}
	var req struct {
		Post     uint64        `json:"post"`
		Variants []postEditDTO `json:"variants"`
	}
	if !decode(w, r, &req) {
		return
	}

	// workflow variants run as standalone transitions; field edits are
	// batched into one atomic Edit call
	var fieldEdits []posts.EditVariant
	ctx := r.Context()
	for _, dto := range req.Variants {
		switch dto.Type {
		case "title":
			var v string
			if json.Unmarshal(dto.Value, &v) != nil {
				badVariant(w, dto.Type)
				return
			}
			fieldEdits = append(fieldEdits, posts.EditTitle{Value: v})
		case "description":
			var v string
			if json.Unmarshal(dto.Value, &v) != nil {
				badVariant(w, dto.Type)
				return
			}
			fieldEdits = append(fieldEdits, posts.EditDescription{Value: v})
		case "images":
			var v []uint64
			if json.Unmarshal(dto.Value, &v) != nil {
				badVariant(w, dto.Type)
				return
			}
			fieldEdits = append(fieldEdits, posts.EditImages{Hashes: v})
		case "schedule":
			var v struct {
				Start time.Time `json:"start"`
				End   time.Time `json:"end"`
			}
			if json.Unmarshal(dto.Value, &v) != nil {
				badVariant(w, dto.Type)
				return
			}
			fieldEdits = append(fieldEdits, posts.EditSchedule{Start: v.Start, End: v.End})
		case "request_review":
			var msg string
			if len(dto.Value) > 0 && json.Unmarshal(dto.Value, &msg) != nil {
				badVariant(w, dto.Type)
				return
			}
			if err := s.posts.RequestReview(ctx, id, req.Post, msg); err != nil {
				writeError(w, err)
				return
			}
		case "cancel_submission":
			if err := s.posts.CancelSubmission(ctx, id, req.Post); err != nil {
				writeError(w, err)
				return
			}
		case "destroy":
			if err := s.posts.Destroy(ctx, id, req.Post); err != nil {
				writeError(w, err)
				return
			}
		default:
			badVariant(w, dto.Type)
			return
		}
	}

	if len(fieldEdits) > 0 {
		if err := s.posts.Edit(ctx, id, req.Post, fieldEdits); err != nil {
			writeError(w, err)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

func badVariant(w http.ResponseWriter, kind string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown edit variant " + kind})
}

func (s *Server) handlePostApprove(w http.ResponseWriter, r *http.Request) {
	id, _, ok := s.authenticate(w, r, accounts.PermissionApprove)
	if !ok {
		return
	}
	var req struct {
		Post    uint64 `json:"post"`
		Variant string `json:"variant"` // "accept" or "reject"
		Message string `json:"message"`
	}
	if !decode(w, r, &req) {
		return
	}

	switch req.Variant {
	case "accept", "reject":
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown approve variant " + req.Variant})
		return
	}

	if err := s.posts.Approve(r.Context(), id, req.Post, req.Variant == "accept", req.Message); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

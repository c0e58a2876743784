package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/containerd/errdefs"

	"github.com/ashureev/vetcheck/internal/domain"
	"github.com/ashureev/vetcheck/internal/vision"
)

type imageValidation struct {
	Name  string            `json:"name"`
	Valid bool              `json:"valid"`
	Error string            `json:"error,omitempty"`
	Info  *vision.ImageInfo `json:"info,omitempty"`
}

// AnalyzeImages runs stand-alone analysis on uploaded images.
func (h *Handler) AnalyzeImages(w http.ResponseWriter, r *http.Request) {
	images, _, err := h.readImages(w, r, imagesField)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	results, err := h.engine.AnalyzeImages(r.Context(), images)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{
		"results":         results,
		"overall_urgency": domain.MaxImageUrgency(results),
	})
}

// ValidateImages reports per-file validation without analysing anything.
func (h *Handler) ValidateImages(w http.ResponseWriter, r *http.Request) {
	images, _, err := h.readImages(w, r, imagesField)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if len(images) == 0 {
		Error(w, http.StatusBadRequest, "no images supplied")
		return
	}
	out := make([]imageValidation, 0, len(images))
	for _, img := range images {
		v := imageValidation{Name: img.Name, Valid: true}
		info, err := vision.Validate(img, h.maxImageBytes)
		if err != nil {
			v.Valid = false
			v.Error = err.Error()
		} else {
			v.Info = &info
		}
		out = append(out, v)
	}
	JSON(w, http.StatusOK, map[string]any{"images": out})
}

// AskQuestion forwards one image and question to the VQA service.
func (h *Handler) AskQuestion(w http.ResponseWriter, r *http.Request) {
	if h.asker == nil {
		h.writeError(w, r, fmt.Errorf("image questions: %w", errdefs.ErrUnavailable))
		return
	}
	images, form, err := h.readImages(w, r, imagesField)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if len(images) != 1 {
		Error(w, http.StatusBadRequest, "exactly one image is required")
		return
	}
	question := strings.TrimSpace(form.Get("question"))
	if question == "" {
		Error(w, http.StatusBadRequest, "question must not be empty")
		return
	}
	if _, err := vision.Validate(images[0], h.maxImageBytes); err != nil {
		h.writeError(w, r, err)
		return
	}
	ans, err := h.asker.AskQuestion(r.Context(), images[0].Data, question)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, ans)
}

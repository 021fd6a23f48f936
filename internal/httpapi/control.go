package httpapi

import (
	"errors"
	"io"
	"net/http"

	"github.com/rbruinekool/singularity/internal/model"
	"github.com/rbruinekool/singularity/internal/reconcile"
)

// ControlItem is one rundown item as seen by external controllers.
type ControlItem struct {
	ID                 int64          `json:"id"`
	SubCompositionID   any            `json:"subCompositionId"`
	SubCompositionName any            `json:"subCompositionName"`
	RundownName        any            `json:"rundownName"`
	State              any            `json:"state"`
	Payload            map[string]any `json:"payload"`
}

// patchResponse is the success envelope of PATCH /control.
type patchResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (s *Server) handleGetControl(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.Rows(r.Context(), model.Rundown)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	items := make([]ControlItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, ControlItem{
			ID:                 row.ID,
			SubCompositionID:   row.Cells[model.ColumnSubcompID],
			SubCompositionName: row.Cells[model.ColumnTemplate],
			RundownName:        row.Cells[model.ColumnName],
			State:              row.Cells[model.ColumnStatus],
			Payload:            row.Payload(),
		})
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handlePatchControl(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "Could not read request body")
		return
	}

	res, err := s.reconciler.Apply(r.Context(), body)
	if err != nil {
		var ve *reconcile.ValidationError
		switch {
		case errors.Is(err, reconcile.ErrInvalidJSON):
			writeError(w, http.StatusBadRequest, "Invalid JSON in request body")
		case errors.As(err, &ve):
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "Validation failed", Details: ve.Details})
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, patchResponse{Success: true, Message: res.Message()})
}

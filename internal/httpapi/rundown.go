package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/rbruinekool/singularity/internal/dispatch"
	"github.com/rbruinekool/singularity/internal/model"
	"github.com/rbruinekool/singularity/internal/store"
)

type insertRequest struct {
	AppToken         string         `json:"appToken"`
	SubCompositionID string         `json:"subCompositionId"`
	Cells            map[string]any `json:"cells"`
}

type moveRequest struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

type idResponse struct {
	ID int64 `json:"id"`
}

type connectionSummary struct {
	AppToken string `json:"appToken"`
	Label    string `json:"label"`
}

func (s *Server) handleListRows(w http.ResponseWriter, r *http.Request) {
	c, ok := collection(w, r)
	if !ok {
		return
	}
	rows, err := s.store.Rows(r.Context(), c)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleInsertRow(w http.ResponseWriter, r *http.Request) {
	c, ok := collection(w, r)
	if !ok {
		return
	}
	var req insertRequest
	if !decodeBody(w, r, &req) {
		return
	}

	cells := model.Cells{}
	if req.AppToken != "" || req.SubCompositionID != "" {
		conn, err := s.store.Connection(r.Context(), req.AppToken)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		cells, err = conn.ItemCells(req.SubCompositionID)
		if err != nil {
			writeStoreError(w, err)
			return
		}
	}
	extra, err := scalarCells(req.Cells)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	for k, v := range extra {
		cells[k] = v
	}

	id, err := s.store.InsertAtFront(r.Context(), c, cells)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

func (s *Server) handleDuplicateRow(w http.ResponseWriter, r *http.Request) {
	c, ok := collection(w, r)
	if !ok {
		return
	}
	id, ok := rowID(w, r)
	if !ok {
		return
	}
	newID, err := s.store.Duplicate(r.Context(), c, id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, idResponse{ID: newID})
}

func (s *Server) handleMoveRow(w http.ResponseWriter, r *http.Request) {
	c, ok := collection(w, r)
	if !ok {
		return
	}
	var req moveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.store.Move(r.Context(), c, req.From, req.To); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetCells(w http.ResponseWriter, r *http.Request) {
	c, ok := collection(w, r)
	if !ok {
		return
	}
	id, ok := rowID(w, r)
	if !ok {
		return
	}
	var raw map[string]any
	if !decodeBody(w, r, &raw) {
		return
	}
	cells, err := scalarCells(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if st, ok := cells[model.ColumnStatus]; ok && c == model.Rundown {
		if _, valid := model.ParseState(st); !valid {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid state %v: must be one of Out1, In, Out2", st))
			return
		}
	}
	if err := s.store.MergeCells(r.Context(), c, id, cells); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteRow(w http.ResponseWriter, r *http.Request) {
	c, ok := collection(w, r)
	if !ok {
		return
	}
	id, ok := rowID(w, r)
	if !ok {
		return
	}
	if err := s.store.Delete(r.Context(), c, id); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	if s.pusher == nil {
		writeError(w, http.StatusServiceUnavailable, "dispatch disabled: no remote configured")
		return
	}
	id, ok := rowID(w, r)
	if !ok {
		return
	}
	includeState, _ := strconv.ParseBool(r.URL.Query().Get("state"))

	err := s.pusher.Push(r.Context(), id, dispatch.PushOptions{IncludeState: includeState})
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, patchResponse{Success: true, Message: fmt.Sprintf("Pushed row %d", id)})
	case store.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

func (s *Server) handleListConnections(w http.ResponseWriter, r *http.Request) {
	conns, err := s.store.Connections(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	out := make([]connectionSummary, len(conns))
	for i, c := range conns {
		out[i] = connectionSummary{AppToken: c.AppToken, Label: c.Label}
	}
	writeJSON(w, http.StatusOK, out)
}

func collection(w http.ResponseWriter, r *http.Request) (model.Collection, bool) {
	c := model.Collection(r.PathValue("collection"))
	if !c.Valid() {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown collection %q", c))
		return "", false
	}
	return c, true
}

func rowID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid row id %q", r.PathValue("id")))
		return 0, false
	}
	return id, true
}

// decodeBody reads a JSON body into v, keeping numbers exact.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Could not read request body")
		return false
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return true
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON in request body")
		return false
	}
	return true
}

func scalarCells(raw map[string]any) (model.Cells, error) {
	cells := make(model.Cells, len(raw))
	for k, v := range raw {
		if !model.IsScalar(v) {
			return nil, fmt.Errorf("cell %q must be a string, number, or boolean", k)
		}
		cells[k] = model.NormalizeNumber(v)
	}
	return cells, nil
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case store.IsNotFound(err), errors.Is(err, store.ErrUnknownCollection):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

package http

import (
	"fmt"
	"net/http"

	"budgetbook/internal/core"
	"budgetbook/internal/log"
)

// maxBulkDelete bounds the ids accepted by one bulk delete.
const maxBulkDelete = 500

func (s *Server) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	var req CreateEntryRequest
	if err := decodeJSON(r, &req); err != nil {
		failWith(w, r, log.OpCreate, err)
		return
	}

	entry, err := s.ledger.CreateEntry(r.Context(), actorFrom(r.Context()), req.entry())
	if err != nil {
		failWith(w, r, log.OpCreate, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleEditEntry(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		failWith(w, r, log.OpUpdate, err)
		return
	}
	var edit core.EntryEdit
	if err := decodeJSON(r, &edit); err != nil {
		failWith(w, r, log.OpUpdate, err)
		return
	}

	entry, err := s.ledger.EditEntry(r.Context(), actorFrom(r.Context()), id, edit)
	if err != nil {
		failWith(w, r, log.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		failWith(w, r, log.OpDelete, err)
		return
	}

	if err := s.ledger.DeleteEntry(r.Context(), actorFrom(r.Context()), id); err != nil {
		failWith(w, r, log.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleBulkDelete removes the listed entries the caller may delete and
// reports how many went.
func (s *Server) handleBulkDelete(w http.ResponseWriter, r *http.Request) {
	var req BulkDeleteRequest
	if err := decodeJSON(r, &req); err != nil {
		failWith(w, r, log.OpDelete, err)
		return
	}
	if len(req.IDs) == 0 {
		failWith(w, r, log.OpDelete, fmt.Errorf("%w: no ids given", core.ErrInvalidInput))
		return
	}
	if len(req.IDs) > maxBulkDelete {
		failWith(w, r, log.OpDelete, fmt.Errorf("%w: at most %d ids per request", core.ErrInvalidInput, maxBulkDelete))
		return
	}

	n, err := s.ledger.BulkDeleteEntries(r.Context(), actorFrom(r.Context()), req.IDs)
	if err != nil {
		failWith(w, r, log.OpDelete, err)
		return
	}
	writeJSON(w, http.StatusOK, BulkDeleteResponse{Deleted: n})
}

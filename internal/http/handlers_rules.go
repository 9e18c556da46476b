package http

import (
	"net/http"

	"budgetbook/internal/core"
	"budgetbook/internal/log"
)

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.ledger.ListRules(r.Context())
	if err != nil {
		failWith(w, r, log.OpList, err)
		return
	}
	if rules == nil {
		rules = []core.RecurringRule{}
	}
	writeJSON(w, http.StatusOK, rules)
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req CreateRuleRequest
	if err := decodeJSON(r, &req); err != nil {
		failWith(w, r, log.OpCreate, err)
		return
	}

	rule, err := s.ledger.CreateRule(r.Context(), actorFrom(r.Context()), req.rule())
	if err != nil {
		failWith(w, r, log.OpCreate, err)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

// handleEditRule applies a partial update. Fields left out of the body are
// unchanged; the edit is propagated to the rule's existing entries.
func (s *Server) handleEditRule(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		failWith(w, r, log.OpUpdate, err)
		return
	}
	var edit core.RuleEdit
	if err := decodeJSON(r, &edit); err != nil {
		failWith(w, r, log.OpUpdate, err)
		return
	}

	rule, err := s.ledger.EditRule(r.Context(), actorFrom(r.Context()), id, edit)
	if err != nil {
		failWith(w, r, log.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// handleDeleteRule deletes a rule; ?cascade=true removes its entries too.
func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		failWith(w, r, log.OpDelete, err)
		return
	}
	cascade, err := parseBool(r.URL.Query(), "cascade")
	if err != nil {
		failWith(w, r, log.OpDelete, err)
		return
	}

	if err := s.ledger.DeleteRule(r.Context(), actorFrom(r.Context()), id, cascade); err != nil {
		failWith(w, r, log.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

package rest

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/wmsflow/rulebus/condition"
	"github.com/wmsflow/rulebus/logger"
	"github.com/wmsflow/rulebus/model"
	"go.uber.org/zap"
)

func (s *Server) HandleSaveWorkflow(w http.ResponseWriter, r *http.Request) {
	var wf model.Workflow
	if err := json.NewDecoder(r.Body).Decode(&wf); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid workflow payload")
		return
	}
	defer r.Body.Close()
	if len(wf.Name) == 0 {
		respondWithError(w, http.StatusBadRequest, "workflow name is required")
		return
	}
	if len(wf.Id) == 0 {
		wf.Id = uuid.New().String()
	}
	if err := s.rules.SaveWorkflow(wf); err != nil {
		logger.Error("error saving workflow", zap.Error(err))
		respondWithDomainError(w, err)
		return
	}
	s.ruleCache.Invalidate("")
	respondWithJSON(w, http.StatusOK, wf)
}

func (s *Server) HandleListWorkflows(w http.ResponseWriter, r *http.Request) {
	workflows, err := s.rules.ListWorkflows()
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, workflows)
}

func (s *Server) HandleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := s.rules.GetWorkflow(mux.Vars(r)["id"])
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, wf)
}

func (s *Server) HandleDeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	if err := s.rules.DeleteWorkflow(mux.Vars(r)["id"]); err != nil {
		respondWithDomainError(w, err)
		return
	}
	s.ruleCache.Invalidate("")
	respondOK(w, map[string]any{"deleted": true})
}

func (s *Server) HandleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.rules.ListRulesByWorkflow(mux.Vars(r)["id"])
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, rules)
}

// HandleSaveRule validates the condition tree and every action definition
// before the rule is persisted; a bad definition never reaches the
// evaluation path.
func (s *Server) HandleSaveRule(w http.ResponseWriter, r *http.Request) {
	var rule model.WorkflowRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid rule payload")
		return
	}
	defer r.Body.Close()
	if len(rule.WorkflowId) == 0 || len(rule.TriggerEvent) == 0 {
		respondWithError(w, http.StatusBadRequest, "workflowId and triggerEvent are required")
		return
	}
	if _, err := s.rules.GetWorkflow(rule.WorkflowId); err != nil {
		respondWithDomainError(w, err)
		return
	}
	if err := condition.Validate(rule.Conditions, s.maxConditionDepth); err != nil {
		logger.Error("invalid rule condition", zap.String("rule", rule.Name), zap.Error(err))
		respondWithDomainError(w, err)
		return
	}
	if err := s.registry.ValidateSpecs(rule.Actions); err != nil {
		logger.Error("invalid rule actions", zap.String("rule", rule.Name), zap.Error(err))
		respondWithDomainError(w, err)
		return
	}
	if len(rule.Id) == 0 {
		rule.Id = uuid.New().String()
	}
	if err := s.rules.SaveRule(rule); err != nil {
		logger.Error("error saving rule", zap.Error(err))
		respondWithDomainError(w, err)
		return
	}
	s.ruleCache.Invalidate(rule.TriggerEvent)
	respondWithJSON(w, http.StatusOK, rule)
}

func (s *Server) HandleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.rules.GetRule(mux.Vars(r)["id"])
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, rule)
}

func (s *Server) HandleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := s.rules.DeleteRule(mux.Vars(r)["id"]); err != nil {
		respondWithDomainError(w, err)
		return
	}
	s.ruleCache.Invalidate("")
	respondOK(w, map[string]any{"deleted": true})
}

func (s *Server) HandleListExecutions(w http.ResponseWriter, r *http.Request) {
	ruleId := mux.Vars(r)["id"]
	page := queryInt(r, "page", 0)
	size := queryInt(r, "size", 20)
	logs, err := s.logs.ListExecutions(ruleId, page, size)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, logs)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if len(raw) == 0 {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

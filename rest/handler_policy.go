package rest

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/gorilla/mux"
	"github.com/wmsflow/rulebus/model"
)

// HandleSavePolicy replaces the approval policy of a document type.
// Levels are normalized to ascending level order before the save.
func (s *Server) HandleSavePolicy(w http.ResponseWriter, r *http.Request) {
	var policy model.ApprovalPolicy
	if err := json.NewDecoder(r.Body).Decode(&policy); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid policy payload")
		return
	}
	defer r.Body.Close()
	if len(policy.DocumentType) == 0 {
		respondWithError(w, http.StatusBadRequest, "documentType is required")
		return
	}
	if len(policy.Levels) == 0 {
		respondWithError(w, http.StatusBadRequest, "policy requires at least one level")
		return
	}
	seen := make(map[int]bool, len(policy.Levels))
	for _, level := range policy.Levels {
		if level.Level <= 0 {
			respondWithError(w, http.StatusBadRequest, "level numbers must be positive")
			return
		}
		if len(level.ApproverRole) == 0 {
			respondWithError(w, http.StatusBadRequest, "every level needs an approverRole")
			return
		}
		if seen[level.Level] {
			respondWithError(w, http.StatusBadRequest, "duplicate level number")
			return
		}
		seen[level.Level] = true
	}
	sort.Slice(policy.Levels, func(i, j int) bool {
		return policy.Levels[i].Level < policy.Levels[j].Level
	})
	// An inverted bracket would make higher levels apply to smaller
	// amounts and open chains with level gaps.
	for i := 1; i < len(policy.Levels); i++ {
		if policy.Levels[i].MinAmount < policy.Levels[i-1].MinAmount {
			respondWithError(w, http.StatusBadRequest, "minAmount must not decrease with level")
			return
		}
	}
	if err := s.policies.SavePolicy(policy); err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, policy)
}

func (s *Server) HandleGetPolicy(w http.ResponseWriter, r *http.Request) {
	policy, err := s.policies.GetPolicy(mux.Vars(r)["documentType"])
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, policy)
}

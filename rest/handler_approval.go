package rest

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
)

type submitRequest struct {
	DocumentType  string  `json:"documentType"`
	DocumentId    string  `json:"documentId"`
	Amount        float64 `json:"amount"`
	SubmittedById string  `json:"submittedById"`
}

func (s *Server) HandleSubmitForApproval(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid submit payload")
		return
	}
	defer r.Body.Close()
	if len(req.DocumentType) == 0 || len(req.DocumentId) == 0 {
		respondWithError(w, http.StatusBadRequest, "documentType and documentId are required")
		return
	}
	chain, err := s.approvals.SubmitForApproval(req.DocumentType, req.DocumentId, req.Amount, req.SubmittedById)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, chain)
}

type processRequest struct {
	DocumentType  string `json:"documentType"`
	DocumentId    string `json:"documentId"`
	Decision      string `json:"decision"`
	ProcessedById string `json:"processedById"`
	Comments      string `json:"comments"`
}

func (s *Server) HandleProcessApproval(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid process payload")
		return
	}
	defer r.Body.Close()
	chain, err := s.approvals.ProcessApproval(req.DocumentType, req.DocumentId, req.Decision, req.ProcessedById, req.Comments)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, chain)
}

func (s *Server) HandlePreviewChain(w http.ResponseWriter, r *http.Request) {
	documentType := r.URL.Query().Get("documentType")
	if len(documentType) == 0 {
		respondWithError(w, http.StatusBadRequest, "documentType is required")
		return
	}
	amount, err := strconv.ParseFloat(r.URL.Query().Get("amount"), 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid amount")
		return
	}
	levels, err := s.approvals.PreviewChain(documentType, amount)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, levels)
}

type createGroupRequest struct {
	DocumentType string   `json:"documentType"`
	DocumentId   string   `json:"documentId"`
	Level        int      `json:"level"`
	Mode         string   `json:"mode"`
	ApproverIds  []string `json:"approverIds"`
	SlaHours     int      `json:"slaHours"`
}

func (s *Server) HandleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid group payload")
		return
	}
	defer r.Body.Close()
	if len(req.DocumentType) == 0 || len(req.DocumentId) == 0 {
		respondWithError(w, http.StatusBadRequest, "documentType and documentId are required")
		return
	}
	group, err := s.approvals.CreateGroup(req.DocumentType, req.DocumentId, req.Level, req.Mode, req.ApproverIds, req.SlaHours)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, group)
}

type respondRequest struct {
	ApproverId string `json:"approverId"`
	Decision   string `json:"decision"`
	Comments   string `json:"comments"`
}

func (s *Server) HandleRespond(w http.ResponseWriter, r *http.Request) {
	var req respondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid response payload")
		return
	}
	defer r.Body.Close()
	group, err := s.approvals.Respond(mux.Vars(r)["id"], req.ApproverId, req.Decision, req.Comments)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, group)
}

func (s *Server) HandlePendingForUser(w http.ResponseWriter, r *http.Request) {
	userId := mux.Vars(r)["userId"]
	var roles []string
	if raw := r.URL.Query().Get("roles"); len(raw) > 0 {
		roles = strings.Split(raw, ",")
	}
	pending, err := s.approvals.PendingForUser(userId, roles)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, pending)
}

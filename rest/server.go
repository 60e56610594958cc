// Package rest is the administrative HTTP surface: workflow and rule
// management, approval operations, policy configuration and event
// injection. Rule evaluation itself never goes through HTTP.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/wmsflow/rulebus/action"
	"github.com/wmsflow/rulebus/approval"
	"github.com/wmsflow/rulebus/cache"
	"github.com/wmsflow/rulebus/condition"
	"github.com/wmsflow/rulebus/logger"
	"github.com/wmsflow/rulebus/model"
	"github.com/wmsflow/rulebus/persistence"
	"go.uber.org/zap"
)

type Publisher interface {
	Publish(event model.Event)
}

type Server struct {
	http.Server
	Port int

	rules     persistence.RuleStorage
	logs      persistence.ExecutionLogStorage
	policies  persistence.PolicyStorage
	ruleCache *cache.RuleCache
	registry  *action.Registry
	approvals *approval.Service
	publisher Publisher

	maxConditionDepth int
}

func NewServer(httpPort int, rules persistence.RuleStorage, logs persistence.ExecutionLogStorage,
	policies persistence.PolicyStorage, ruleCache *cache.RuleCache, registry *action.Registry,
	approvals *approval.Service, publisher Publisher, maxConditionDepth int) (*Server, error) {

	if maxConditionDepth <= 0 {
		maxConditionDepth = condition.DEFAULT_MAX_DEPTH
	}
	s := &Server{
		Server: http.Server{
			Addr:        fmt.Sprintf(":%d", httpPort),
			IdleTimeout: 2 * time.Second,
		},
		Port:              httpPort,
		rules:             rules,
		logs:              logs,
		policies:          policies,
		ruleCache:         ruleCache,
		registry:          registry,
		approvals:         approvals,
		publisher:         publisher,
		maxConditionDepth: maxConditionDepth,
	}

	router := mux.NewRouter()
	router.HandleFunc("/workflow", s.HandleSaveWorkflow).Methods(http.MethodPost)
	router.HandleFunc("/workflow", s.HandleListWorkflows).Methods(http.MethodGet)
	router.HandleFunc("/workflow/{id}", s.HandleGetWorkflow).Methods(http.MethodGet)
	router.HandleFunc("/workflow/{id}", s.HandleDeleteWorkflow).Methods(http.MethodDelete)
	router.HandleFunc("/workflow/{id}/rule", s.HandleListRules).Methods(http.MethodGet)

	router.HandleFunc("/rule", s.HandleSaveRule).Methods(http.MethodPost)
	router.HandleFunc("/rule/{id}", s.HandleGetRule).Methods(http.MethodGet)
	router.HandleFunc("/rule/{id}", s.HandleDeleteRule).Methods(http.MethodDelete)
	router.HandleFunc("/rule/{id}/execution", s.HandleListExecutions).Methods(http.MethodGet)

	router.HandleFunc("/event", s.HandleEvent).Methods(http.MethodPost)

	router.HandleFunc("/approval/submit", s.HandleSubmitForApproval).Methods(http.MethodPost)
	router.HandleFunc("/approval/process", s.HandleProcessApproval).Methods(http.MethodPost)
	router.HandleFunc("/approval/preview", s.HandlePreviewChain).Methods(http.MethodGet)
	router.HandleFunc("/approval/group", s.HandleCreateGroup).Methods(http.MethodPost)
	router.HandleFunc("/approval/group/{id}/respond", s.HandleRespond).Methods(http.MethodPost)
	router.HandleFunc("/approval/pending/{userId}", s.HandlePendingForUser).Methods(http.MethodGet)

	router.HandleFunc("/policy", s.HandleSavePolicy).Methods(http.MethodPost)
	router.HandleFunc("/policy/{documentType}", s.HandleGetPolicy).Methods(http.MethodGet)

	router.Use(loggingMiddleware)
	s.Handler = router
	return s, nil
}

func (s *Server) Start() error {
	logger.Info("starting http server on", zap.Int("port", s.Port))
	if err := s.ListenAndServe(); err != nil {
		return err
	}
	return nil
}

func (s *Server) Stop() error {
	logger.Info("stopping http server")
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	err := s.Shutdown(ctx)
	if err != nil {
		logger.Error("error shutting down http server")
	}
	return nil
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Info(r.RequestURI)
		next.ServeHTTP(w, r)
	})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondOK(w http.ResponseWriter, message map[string]any) {
	respondWithJSON(w, http.StatusOK, message)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithDomainError maps the typed errors of the lower layers to
// status codes: missing entities to 404, business-rule rejections to 409,
// bad definitions to 400. Lower layers wrap these errors with context
// (registry validation prefixes the action index), so matching goes
// through errors.As rather than a bare type switch.
func respondWithDomainError(w http.ResponseWriter, err error) {
	var notFound persistence.NotFoundError
	var conflict persistence.ConflictError
	var badCondition condition.ValidationError
	var badAction action.ConfigError
	switch {
	case errors.As(err, &notFound):
		respondWithError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &conflict):
		respondWithError(w, http.StatusConflict, err.Error())
	case errors.As(err, &badCondition), errors.As(err, &badAction):
		respondWithError(w, http.StatusBadRequest, err.Error())
	default:
		logger.Error("internal error serving request", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "internal error")
	}
}

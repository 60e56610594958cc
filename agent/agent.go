// Package agent assembles the engine: storage, bus, cache, action
// registry, approval service, SLA monitor and the HTTP surface, started
// and stopped as one unit.
package agent

import (
	"sync"
	"time"

	"github.com/wmsflow/rulebus/action"
	"github.com/wmsflow/rulebus/analytics"
	"github.com/wmsflow/rulebus/approval"
	"github.com/wmsflow/rulebus/bus"
	"github.com/wmsflow/rulebus/cache"
	"github.com/wmsflow/rulebus/config"
	"github.com/wmsflow/rulebus/engine"
	"github.com/wmsflow/rulebus/external"
	"github.com/wmsflow/rulebus/logger"
	"github.com/wmsflow/rulebus/model"
	"github.com/wmsflow/rulebus/persistence"
	"github.com/wmsflow/rulebus/persistence/inmem"
	rd "github.com/wmsflow/rulebus/persistence/redis"
	"github.com/wmsflow/rulebus/rest"
	"github.com/wmsflow/rulebus/sla"
	"go.uber.org/zap"
)

type Agent struct {
	Config config.Config

	ruleStorage     persistence.RuleStorage
	logStorage      persistence.ExecutionLogStorage
	approvalStorage persistence.ApprovalStorage
	policyStorage   persistence.PolicyStorage

	eventBus        *bus.EventBus
	ruleCache       *cache.RuleCache
	registry        *action.Registry
	executor        *action.Executor
	ruleEngine      *engine.RuleEngine
	approvalService *approval.Service
	slaMonitor      *sla.Monitor
	auditLogger     *analytics.EventAuditLogger
	httpServer      *rest.Server

	notifier  external.Notifier
	documents external.DocumentClient

	shutdown     bool
	shutdownLock sync.Mutex
	wg           sync.WaitGroup
}

func New(conf config.Config) (*Agent, error) {
	a := &Agent{
		Config:    conf,
		notifier:  external.LogNotifier{},
		documents: external.LogDocumentClient{},
	}
	setup := []func() error{
		a.setupStorage,
		a.setupBus,
		a.setupApprovalService,
		a.setupActionRegistry,
		a.setupRuleEngine,
		a.setupSlaMonitor,
		a.setupAuditLogger,
		a.setupHttpServer,
		a.seedPolicies,
	}
	for _, fn := range setup {
		if err := fn(); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *Agent) setupStorage() error {
	switch a.Config.StorageType {
	case config.STORAGE_TYPE_INMEM:
		storage := inmem.NewStorage()
		a.ruleStorage = storage
		a.logStorage = storage
		a.approvalStorage = storage
		a.policyStorage = storage
	default:
		conf := rd.Config{
			Addrs:     a.Config.RedisConfig.Addrs,
			Namespace: a.Config.RedisConfig.Namespace,
		}
		a.ruleStorage = rd.NewRedisRuleStorage(conf)
		a.logStorage = rd.NewRedisExecutionLogStorage(conf)
		a.approvalStorage = rd.NewRedisApprovalStorage(conf)
		a.policyStorage = rd.NewRedisPolicyStorage(conf)
	}
	return nil
}

func (a *Agent) setupBus() error {
	a.eventBus = bus.NewEventBus(a.Config.BusCapacity, &a.wg)
	return nil
}

func (a *Agent) setupApprovalService() error {
	a.approvalService = approval.NewService(a.approvalStorage, a.policyStorage, a.eventBus, a.documents)
	return nil
}

// submitter adapts the approval service to the action package contract,
// which only cares whether the submission was accepted.
type submitter struct {
	service *approval.Service
}

func (s submitter) SubmitForApproval(documentType string, documentId string, amount float64, submittedById string) error {
	_, err := s.service.SubmitForApproval(documentType, documentId, amount, submittedById)
	return err
}

func (a *Agent) setupActionRegistry() error {
	a.registry = action.NewRegistry()
	a.registry.Register(action.NewNotifyAction(a.notifier))
	a.registry.Register(action.NewChangeStatusAction(a.documents))
	a.registry.Register(action.NewSubmitApprovalAction(submitter{service: a.approvalService}))
	a.registry.Register(action.NewEmitEventAction(a.eventBus))
	a.registry.Register(action.NewScriptAction())
	timeout := a.Config.ActionTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	a.executor = action.NewExecutor(a.registry, timeout)
	return nil
}

func (a *Agent) setupRuleEngine() error {
	a.ruleCache = cache.NewRuleCache(a.ruleStorage)
	a.ruleEngine = engine.NewRuleEngine(engine.Config{
		Partitions:        a.Config.EngineConfig.Partitions,
		Capacity:          a.Config.EngineConfig.Capacity,
		StopScope:         a.Config.EngineConfig.StopScope,
		MaxConditionDepth: a.Config.EngineConfig.MaxConditionDepth,
	}, a.ruleCache, a.executor, a.logStorage, &a.wg)
	a.eventBus.Subscribe(a.ruleEngine)
	return nil
}

func (a *Agent) setupSlaMonitor() error {
	a.slaMonitor = sla.NewMonitor(sla.Config{
		SweepInterval: a.Config.SlaConfig.SweepInterval,
		DedupeWindow:  a.Config.SlaConfig.DedupeWindow,
	}, a.approvalStorage, a.approvalService, &a.wg)
	return nil
}

func (a *Agent) setupAuditLogger() error {
	if len(a.Config.AuditLogFile) == 0 {
		return nil
	}
	audit, err := analytics.NewEventAuditLogger(a.Config.AuditLogFile)
	if err != nil {
		return err
	}
	a.auditLogger = audit
	a.eventBus.Subscribe(audit)
	return nil
}

func (a *Agent) setupHttpServer() error {
	var err error
	a.httpServer, err = rest.NewServer(a.Config.HttpPort, a.ruleStorage, a.logStorage,
		a.policyStorage, a.ruleCache, a.registry, a.approvalService, a.eventBus,
		a.Config.EngineConfig.MaxConditionDepth)
	return err
}

// seedPolicies installs a starter approval policy per known document type
// so a fresh install can route approvals before any policy is configured.
// Existing policies are never overwritten.
func (a *Agent) seedPolicies() error {
	defaults := []model.ApprovalPolicy{
		{
			DocumentType: "mrrv",
			Levels: []model.ApprovalLevelDef{
				{Level: 1, ApproverRole: "warehouse_supervisor", SlaHours: 24, MinAmount: 0},
				{Level: 2, ApproverRole: "warehouse_manager", SlaHours: 48, MinAmount: 50000},
			},
		},
		{
			DocumentType: "purchase_order",
			Levels: []model.ApprovalLevelDef{
				{Level: 1, ApproverRole: "procurement_officer", SlaHours: 24, MinAmount: 0},
				{Level: 2, ApproverRole: "procurement_manager", SlaHours: 48, MinAmount: 25000},
				{Level: 3, ApproverRole: "finance_director", SlaHours: 72, MinAmount: 100000},
			},
		},
	}
	for _, policy := range defaults {
		if _, err := a.policyStorage.GetPolicy(policy.DocumentType); err == nil {
			continue
		} else if _, ok := err.(persistence.NotFoundError); !ok {
			return err
		}
		if err := a.policyStorage.SavePolicy(policy); err != nil {
			return err
		}
		logger.Info("seeded default approval policy", zap.String("documentType", policy.DocumentType))
	}
	return nil
}

func (a *Agent) Start() error {
	a.ruleEngine.Start()
	a.eventBus.Start()
	a.slaMonitor.Start()
	go func() {
		if err := a.httpServer.Start(); err != nil {
			logger.Error("http server stopped", zap.Error(err))
		}
	}()
	return nil
}

func (a *Agent) Shutdown() error {
	logger.Info("shutting down")
	a.shutdownLock.Lock()
	defer a.shutdownLock.Unlock()
	if a.shutdown {
		return nil
	}
	a.shutdown = true

	shutdown := []func() error{
		a.httpServer.Stop,
		func() error { a.slaMonitor.Stop(); return nil },
		func() error { a.eventBus.Stop(); return nil },
		func() error { a.ruleEngine.Stop(); return nil },
	}
	for _, fn := range shutdown {
		if err := fn(); err != nil {
			return err
		}
	}
	logger.Info("waiting for all services to shutdown...")
	a.wg.Wait()
	return nil
}

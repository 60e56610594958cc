// Package sla periodically sweeps open approvals for missed deadlines and
// raises breach events through the approval service. Breaches are
// advisory: approvals stay open and can still be decided after a breach.
package sla

import (
	"sync"
	"time"

	"github.com/wmsflow/rulebus/approval"
	"github.com/wmsflow/rulebus/logger"
	"github.com/wmsflow/rulebus/persistence"
	"github.com/wmsflow/rulebus/util"
	"go.uber.org/zap"
)

type Config struct {
	SweepInterval time.Duration
	DedupeWindow  time.Duration
}

type Monitor struct {
	conf    Config
	storage persistence.ApprovalStorage
	service *approval.Service
	ticker  *util.TickWorker

	now func() time.Time
}

func NewMonitor(conf Config, storage persistence.ApprovalStorage, service *approval.Service, wg *sync.WaitGroup) *Monitor {
	if conf.SweepInterval <= 0 {
		conf.SweepInterval = time.Minute
	}
	if conf.DedupeWindow <= 0 {
		conf.DedupeWindow = 24 * time.Hour
	}
	m := &Monitor{
		conf:    conf,
		storage: storage,
		service: service,
		now:     time.Now,
	}
	m.ticker = util.NewTickWorker("sla-monitor", conf.SweepInterval, m.sweep, wg)
	return m
}

func (m *Monitor) Start() {
	m.ticker.Start()
}

func (m *Monitor) Stop() {
	m.ticker.Stop()
}

func (m *Monitor) sweep() {
	if n, err := m.Sweep(m.now()); err != nil {
		logger.Error("sla sweep failed", zap.Error(err))
	} else if n > 0 {
		logger.Info("sla sweep raised breaches", zap.Int("breaches", n))
	}
}

// Sweep scans every open chain step and open group once and notifies the
// overdue ones. It returns the number of breach events raised; already
// notified entities inside the dedupe window are skipped by the service.
func (m *Monitor) Sweep(now time.Time) (int, error) {
	var breaches int

	chains, err := m.storage.ListOpenChains()
	if err != nil {
		return breaches, err
	}
	for i := range chains {
		step := chains[i].CurrentStep()
		if step == nil || step.SlaDueDate.After(now) {
			continue
		}
		notified, err := m.service.NotifyStepBreach(chains[i].Id, step.Level, now, m.conf.DedupeWindow)
		if err != nil {
			logger.Error("error notifying step breach",
				zap.String("chainId", chains[i].Id), zap.Int("level", step.Level), zap.Error(err))
			continue
		}
		if notified {
			breaches++
		}
	}

	groups, err := m.storage.ListOpenGroups()
	if err != nil {
		return breaches, err
	}
	for i := range groups {
		if groups[i].SlaDueDate.IsZero() || groups[i].SlaDueDate.After(now) {
			continue
		}
		notified, err := m.service.NotifyGroupBreach(groups[i].Id, now, m.conf.DedupeWindow)
		if err != nil {
			logger.Error("error notifying group breach",
				zap.String("groupId", groups[i].Id), zap.Error(err))
			continue
		}
		if notified {
			breaches++
		}
	}
	return breaches, nil
}

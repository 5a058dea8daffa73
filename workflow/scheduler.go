package workflow

import (
	"context"
	"os"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const (
	defaultRetentionScanSpec = "0 0 2 * * *"
	defaultDedupAuditSpec    = "0 0 3 * * *"
)

// Scheduler runs the nightly jobs: the retention scan and the dedup audit.
// Schedules come from RETENTION_SCAN_CRON and DEDUP_AUDIT_CRON (six-field
// specs, seconds first); the Redis lease inside the scan keeps multi-node
// deployments from double-running.
type Scheduler struct {
	cron     *cron.Cron
	archiver *Archiver
	auditor  *DedupAuditor
	logger   *logrus.Logger
}

func NewScheduler(archiver *Archiver, auditor *DedupAuditor, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.Recover(cron.PrintfLogger(logger))),
		),
		archiver: archiver,
		auditor:  auditor,
		logger:   logger,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	scanSpec := os.Getenv("RETENTION_SCAN_CRON")
	if scanSpec == "" {
		scanSpec = defaultRetentionScanSpec
	}
	auditSpec := os.Getenv("DEDUP_AUDIT_CRON")
	if auditSpec == "" {
		auditSpec = defaultDedupAuditSpec
	}

	if _, err := s.cron.AddFunc(scanSpec, func() {
		if _, err := s.archiver.Scan(ctx); err != nil {
			s.logger.WithError(err).Error("scheduled retention scan failed")
		}
	}); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(auditSpec, func() {
		if _, err := s.auditor.Run(ctx); err != nil {
			s.logger.WithError(err).Error("scheduled dedup audit failed")
		}
	}); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.WithFields(logrus.Fields{
		"retention_scan": scanSpec,
		"dedup_audit":    auditSpec,
	}).Info("scheduler started")
	return nil
}

// Stop halts scheduling and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Package crank schedules the permissionless keeper work of a fund daemon:
// periodic pokes and fee distributions.
package crank

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/robfig/cron/v3"

	"fundchain/crypto"
	"fundchain/native/fund"
	"fundchain/observability/metrics"
	"fundchain/services/fundd/ledger"
)

const (
	JobPoke       = "poke"
	JobDistribute = "distribute_fees"
)

// Config names the keeper identity, its schedules and the funds it serves.
type Config struct {
	Identity           common.Address
	PokeSchedule       string
	DistributeSchedule string
	Funds              []common.Address
}

// Scheduler runs keeper jobs on cron schedules.
type Scheduler struct {
	cfg    Config
	runner *ledger.Runner
	cron   *cron.Cron
	logger *slog.Logger
	ctx    context.Context
}

// New builds a scheduler and registers its jobs.
func New(ctx context.Context, cfg Config, runner *ledger.Runner, logger *slog.Logger) (*Scheduler, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	adapter := cronLogger{logger: logger}
	s := &Scheduler{
		cfg:    cfg,
		runner: runner,
		logger: logger,
		ctx:    ctx,
		cron: cron.New(
			cron.WithLogger(adapter),
			cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
		),
	}
	if _, err := s.cron.AddFunc(cfg.PokeSchedule, func() { s.PokeAll(s.ctx) }); err != nil {
		return nil, fmt.Errorf("register poke job: %w", err)
	}
	if _, err := s.cron.AddFunc(cfg.DistributeSchedule, func() { s.DistributeAll(s.ctx) }); err != nil {
		return nil, fmt.Errorf("register distribute job: %w", err)
	}
	return s, nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("crank scheduler started", "funds", len(s.cfg.Funds), "all_registered", len(s.cfg.Funds) == 0)
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("crank scheduler stopped")
}

func (s *Scheduler) funds() []common.Address {
	if len(s.cfg.Funds) > 0 {
		return s.cfg.Funds
	}
	all, err := s.runner.Funds()
	if err != nil {
		s.logger.Error("list funds", "error", err)
		return nil
	}
	return all
}

// PokeAll accrues TVL fees on every served fund.
func (s *Scheduler) PokeAll(ctx context.Context) {
	for _, addr := range s.funds() {
		addr := addr
		err := s.runner.Execute(ctx, ledger.Command{Name: JobPoke, Fund: addr}, func(tx *ledger.Tx) error {
			_, err := tx.Engine.Poke(addr)
			return err
		})
		s.record(JobPoke, addr, err)
	}
}

// DistributeAll distributes fees on every served fund and pays out the
// resulting distribution while the keeper holds cranker exclusivity.
func (s *Scheduler) DistributeAll(ctx context.Context) {
	for _, addr := range s.funds() {
		addr := addr
		err := s.runner.Execute(ctx, ledger.Command{Name: JobDistribute, Caller: s.cfg.Identity, Fund: addr}, func(tx *ledger.Tx) error {
			dist, err := tx.Engine.DistributeFees(s.cfg.Identity, addr)
			if err != nil || dist == nil {
				return err
			}
			recipients := make([]common.Address, 0, len(dist.Recipients))
			for _, r := range dist.Recipients {
				if r.Recipient != (common.Address{}) {
					recipients = append(recipients, r.Recipient)
				}
			}
			paid, err := tx.Engine.CrankFeeDistribution(s.cfg.Identity, addr, dist.Index, recipients)
			if err != nil {
				return err
			}
			metrics.Fund().ObserveFeeShares(crypto.Display(crypto.AccountPrefix, addr), "recipients", paid)
			return nil
		})
		s.record(JobDistribute, addr, err)
	}
}

func (s *Scheduler) record(job string, addr common.Address, err error) {
	metrics.Fund().ObserveCrank(job, err)
	if err == nil {
		return
	}
	level := slog.LevelWarn
	if fund.KindOf(err) == fund.KindUnknown {
		level = slog.LevelError
	}
	s.logger.Log(context.Background(), level, "crank job failed",
		"job", job,
		"fund", crypto.Display(crypto.AccountPrefix, addr),
		"error", err)
}

// cronLogger adapts slog to cron's logger interface.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}

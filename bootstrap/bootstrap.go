/*
Package bootstrap builds the lending engine from configuration.

PURPOSE:
  cmd/server and cmd/libctl need the same object graph: a sqlite store,
  the borrow rule table, a LoanService with policy and fines from config,
  the optional Redis version counter, the notice queue with its delivery
  worker, and the recommendation engine. Build wires them once.

STARTUP SEQUENCE:
  1. Open the sqlite store (migrations run on open)
  2. Resolve the borrow rule table:
       rules.file  >  stored table  >  built-in default (then stored)
  3. Connect the Redis version counter when redis.addr is set and raise
     it to the store's version
  4. Create the LoanService
  5. Create the notice queue and start the delivery worker
  6. Create the recommendation engine

SHUTDOWN:
  Close stops the worker, closes the queue, the Redis client and the
  database, in that order.

SEE ALSO:
  - config/config.go: Config sections
  - cmd/server/main.go, cmd/libctl: Callers
*/
package bootstrap

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/warp/lending-engine/config"
	"github.com/warp/lending-engine/factory"
	"github.com/warp/lending-engine/lending"
	"github.com/warp/lending-engine/logging"
	"github.com/warp/lending-engine/notify"
	"github.com/warp/lending-engine/recommend"
	"github.com/warp/lending-engine/store/redis"
	"github.com/warp/lending-engine/store/sqlite"
)

// Engine holds the wired components.
type Engine struct {
	Store    *sqlite.Store
	Loans    *lending.LoanService
	Recs     *recommend.Engine
	Queue    *notify.Queue
	Worker   *notify.Worker
	Versions *redis.VersionCounter // nil without redis.addr

	cancel context.CancelFunc
}

// Options adjusts Build for callers with special needs.
type Options struct {
	// Mailer delivers notices. Defaults to a LogMailer.
	Mailer notify.Mailer
}

// Build wires every component. On error, whatever was opened is closed.
func Build(ctx context.Context, cfg *config.Config, opts Options) (_ *Engine, err error) {
	log := logging.With("bootstrap")
	e := &Engine{}
	defer func() {
		if err != nil {
			e.Close()
		}
	}()

	e.Store, err = sqlite.New(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	log.Info().Str("path", cfg.Database.Path).Msg("database opened")

	table, err := loadRules(ctx, e.Store, cfg, log)
	if err != nil {
		return nil, err
	}

	if cfg.Redis.Addr != "" {
		e.Versions, err = redis.NewVersionCounter(ctx, redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Key:      cfg.Redis.Key,
		})
		if err != nil {
			return nil, err
		}
		// The shared counter never trails the store's, whose value already
		// covers commits made while Redis was unreachable.
		local, err := e.Store.CurrentVersion(ctx)
		if err != nil {
			return nil, err
		}
		v, err := e.Versions.Raise(ctx, local)
		if err != nil {
			return nil, err
		}
		log.Info().Str("addr", cfg.Redis.Addr).Int64("version", v).Msg("shared version counter enabled")
	}

	e.Loans = lending.NewLoanService(e.Store,
		lending.NewRuleResolver(table),
		lending.NewFineCalculator(decimal.NewFromInt(cfg.Lending.FinePerDay)),
		lending.Policy{
			MaxOpenLoans:        cfg.Lending.MaxOpenLoans,
			CountPendingReturns: cfg.Lending.CountPendingReturns,
			CapReservations:     cfg.Lending.CapReservations,
		})
	e.Loans.Log = logging.With("lending")
	if e.Versions != nil {
		e.Loans.Versions = e.Versions
	}

	mailer := opts.Mailer
	if mailer == nil {
		mailer = notify.LogMailer{Log: logging.With("mailer")}
	}
	e.Queue = notify.NewQueue(cfg.Notices.Topic, logging.With("queue"))
	e.Worker = notify.NewWorker(e.Queue.Subscriber(), e.Queue.Topic(), mailer, notify.BreakerSettings{
		Failures: cfg.Notices.BreakerFailures,
		Timeout:  cfg.Notices.BreakerTimeout,
	}, logging.With("notify"))

	wctx, cancel := context.WithCancel(context.Background())
	if err = e.Worker.Start(wctx); err != nil {
		cancel()
		return nil, err
	}
	e.cancel = cancel
	e.Loans.Notices = e.Queue

	e.Recs = recommend.NewEngine(e.Store, recommend.Params{
		MinSupport:    cfg.Mining.MinSupport,
		MinConfidence: cfg.Mining.MinConfidence,
		MinLift:       cfg.Mining.MinLift,
		MinBaskets:    cfg.Mining.MinBaskets,
	}, logging.With("recommend"))

	return e, nil
}

// Close releases everything Build opened. Safe on a partial Engine.
func (e *Engine) Close() {
	if e.cancel != nil {
		e.cancel()
		<-e.Worker.Done()
	}
	if e.Queue != nil {
		_ = e.Queue.Close()
	}
	if e.Versions != nil {
		_ = e.Versions.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// loadRules resolves the borrow rule table and makes sure one is stored.
func loadRules(ctx context.Context, store lending.RuleStore, cfg *config.Config, log zerolog.Logger) (lending.RuleTable, error) {
	f := factory.NewRuleFactory()

	if cfg.Rules.File != "" {
		raw, err := os.ReadFile(cfg.Rules.File)
		if err != nil {
			return lending.RuleTable{}, fmt.Errorf("read rules file: %w", err)
		}
		table, err := f.ParseRules(string(raw))
		if err != nil {
			return lending.RuleTable{}, fmt.Errorf("%s: %w", cfg.Rules.File, err)
		}
		if err := store.SaveBorrowRules(ctx, table); err != nil {
			return lending.RuleTable{}, err
		}
		log.Info().Str("file", cfg.Rules.File).Msg("borrow rules loaded from file")
		return table, nil
	}

	table, err := store.LoadBorrowRules(ctx)
	if err != nil {
		return lending.RuleTable{}, fmt.Errorf("load borrow rules: %w", err)
	}
	if table.DefaultDays > 0 || len(table.Categories) > 0 || len(table.Types) > 0 {
		if table.DefaultDays == 0 {
			table.DefaultDays = cfg.Lending.DefaultLoanDays
		}
		return table, nil
	}

	table = f.Default()
	if cfg.Lending.DefaultLoanDays > 0 {
		table.DefaultDays = cfg.Lending.DefaultLoanDays
	}
	if err := store.SaveBorrowRules(ctx, table); err != nil {
		return lending.RuleTable{}, err
	}
	log.Info().Msg("installed built-in borrow rules")
	return table, nil
}

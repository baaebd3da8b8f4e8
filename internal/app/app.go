// Package app assembles the backends selected by configuration for the api and worker.
package app

import (
	"context"
	"errors"
	"fmt"

	"meetingsattendance/internal/attendance"
	"meetingsattendance/internal/audit"
	"meetingsattendance/internal/config"
	"meetingsattendance/internal/httpapi"
	"meetingsattendance/internal/lock"
	"meetingsattendance/internal/logging"
	"meetingsattendance/internal/platform"
	"meetingsattendance/internal/queue"
	"meetingsattendance/internal/store"
)

// SyncQueueKey is the Redis list holding sync jobs.
const SyncQueueKey = "attendance:sync"

// Runtime holds the wired service and its backends.
type Runtime struct {
	Service *attendance.Service
	Queue   queue.Queue
	Users   httpapi.UserCreator
	Audit   httpapi.AuditReader
	Health  map[string]httpapi.HealthCheck

	closers []func() error
}

// Build connects the configured backends. The caller must Close the runtime.
func Build(ctx context.Context, cfg config.App) (*Runtime, error) {
	rt := &Runtime{Health: make(map[string]httpapi.HealthCheck)}
	deps := attendance.Deps{Factory: platform.NewFactory(cfg.Platforms, nil)}

	switch cfg.StoreBackend {
	case "memory":
		mem := attendance.NewMemStore()
		events := audit.NewMemory(1000)
		deps.Store, deps.Directory = mem, mem
		deps.Audit = audit.Multi{audit.Log{}, events}
		rt.Users, rt.Audit = mem, events
		logging.Warn().Msg("using in-memory store; data is lost on restart")
	default:
		db, err := store.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		rt.closers = append(rt.closers, db.Close)
		repo := attendance.NewRepository(db.Client)
		events := audit.NewPostgres(db.Client)
		deps.Store, deps.Directory = repo, repo
		deps.Audit = audit.Multi{audit.Log{}, events}
		rt.Users, rt.Audit = repo, events
		rt.Health["db"] = db.Healthy
	}

	var rdb *store.Redis
	if cfg.QueueBackend == "redis" || cfg.LockBackend == "redis" {
		rdb = store.NewRedis(cfg.RedisAddr)
		rt.closers = append(rt.closers, rdb.Close)
		rt.Health["redis"] = rdb.Healthy
		if !rdb.Healthy(ctx) {
			logging.Warn().Str("addr", cfg.RedisAddr).Msg("redis not reachable yet")
		}
	}

	if cfg.QueueBackend == "redis" {
		rt.Queue = queue.NewRedisQueue(rdb.Client, SyncQueueKey)
	} else {
		rt.Queue = queue.NewInMemory(64)
	}
	if cfg.LockBackend == "redis" {
		deps.Locker = lock.NewRedis(rdb.Client, "", cfg.LockTTL)
	} else {
		deps.Locker = lock.NewLocal()
	}

	rt.Service = attendance.NewService(deps)
	return rt, nil
}

// LocalQueue reports whether jobs only live in this process.
func (r *Runtime) LocalQueue() bool {
	_, ok := r.Queue.(*queue.InMemory)
	return ok
}

// Close releases the backends in reverse order of opening.
func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i]())
	}
	return errors.Join(errs...)
}

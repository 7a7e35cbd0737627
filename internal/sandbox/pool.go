package sandbox

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mxf-project/mxf/internal/mxferrors"
)

// PoolConfig bounds concurrency, queueing, and timeouts for the
// container pool, grounded on the teacher's Pool/languagePool sizing
// knobs (internal/tools/sandbox/pool.go) narrowed to a single runner
// type instead of per-language sub-pools, since C8 only ever runs one
// (javascript/typescript) runtime.
type PoolConfig struct {
	MaxConcurrent  int
	QueueSize      int
	DefaultTimeout time.Duration
	MaxTimeout     time.Duration
}

// DefaultPoolConfig matches the spec's defaults (§4.8): 5s default
// timeout, 30s ceiling.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxConcurrent:  4,
		QueueSize:      16,
		DefaultTimeout: 5 * time.Second,
		MaxTimeout:     30 * time.Second,
	}
}

// Pool is the singleton container-pool manager fronting a Runner with
// bounded concurrency and a bounded wait queue.
type Pool struct {
	cfg    PoolConfig
	runner Runner
	sem    chan struct{}

	queued int64 // atomic count of goroutines waiting for a slot

	checkDocker     func(context.Context) bool
	dockerCheckOnce sync.Once
	dockerOK        bool
}

// NewPool builds a Pool fronting runner, backed by the real docker CLI
// availability check.
func NewPool(cfg PoolConfig, runner Runner) *Pool {
	return newPool(cfg, runner, dockerAvailable)
}

// NewPoolWithDockerCheck builds a Pool with an injectable docker
// availability check, used by tests to avoid depending on a real
// docker daemon.
func NewPoolWithDockerCheck(cfg PoolConfig, runner Runner, checkDocker func(context.Context) bool) *Pool {
	return newPool(cfg, runner, checkDocker)
}

func newPool(cfg PoolConfig, runner Runner, checkDocker func(context.Context) bool) *Pool {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultPoolConfig().MaxConcurrent
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultPoolConfig().DefaultTimeout
	}
	if cfg.MaxTimeout <= 0 {
		cfg.MaxTimeout = DefaultPoolConfig().MaxTimeout
	}
	return &Pool{
		cfg:         cfg,
		runner:      runner,
		sem:         make(chan struct{}, cfg.MaxConcurrent),
		checkDocker: checkDocker,
	}
}

// Execute runs req through the pool: it clamps the timeout, rejects
// immediately if the wait queue is already full, and otherwise blocks
// for a free slot before dispatching to the runner.
func (p *Pool) Execute(ctx context.Context, req RunRequest) (RunResult, error) {
	p.dockerCheckOnce.Do(func() {
		p.dockerOK = p.checkDocker(ctx)
	})
	if !p.dockerOK {
		return RunResult{}, mxferrors.New(mxferrors.OperationFailed, "code execution sandbox is unavailable: docker is not reachable")
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = p.cfg.DefaultTimeout
	}
	if timeout > p.cfg.MaxTimeout {
		timeout = p.cfg.MaxTimeout
	}

	if atomic.LoadInt64(&p.queued) >= int64(p.cfg.QueueSize) {
		return RunResult{}, mxferrors.New(mxferrors.QuotaExceeded, "code execution queue is full, try again shortly")
	}
	atomic.AddInt64(&p.queued, 1)

	select {
	case p.sem <- struct{}{}:
		atomic.AddInt64(&p.queued, -1)
	case <-ctx.Done():
		atomic.AddInt64(&p.queued, -1)
		return RunResult{}, ctx.Err()
	}
	defer func() { <-p.sem }()

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req.Timeout = timeout
	result, err := p.runner.Run(runCtx, req)
	if err != nil {
		return RunResult{}, err
	}
	return result, nil
}

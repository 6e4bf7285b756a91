package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kunal123thakur/job-matching/internal/types"
)

// CallKind 外部调用类别，决定使用哪一个超时
type CallKind int

const (
	// CallModel 文档解析、大模型、向量模型调用
	CallModel CallKind = iota
	// CallStorage 存储与消息调用
	CallStorage
)

const (
	defaultMaxConcurrency = 8
	defaultModelTimeout   = 60 * time.Second
	defaultStorageTimeout = 10 * time.Second
)

// WorkerPool 用信号量限制外部调用并发，并为每次调用设置超时
type WorkerPool struct {
	slots          chan struct{}
	modelTimeout   time.Duration
	storageTimeout time.Duration
}

// NewWorkerPool 创建工作池，非正数参数使用默认值
func NewWorkerPool(maxConcurrency int, modelTimeout, storageTimeout time.Duration) *WorkerPool {
	if maxConcurrency <= 0 {
		maxConcurrency = defaultMaxConcurrency
	}
	if modelTimeout <= 0 {
		modelTimeout = defaultModelTimeout
	}
	if storageTimeout <= 0 {
		storageTimeout = defaultStorageTimeout
	}
	return &WorkerPool{
		slots:          make(chan struct{}, maxConcurrency),
		modelTimeout:   modelTimeout,
		storageTimeout: storageTimeout,
	}
}

func (p *WorkerPool) timeoutFor(kind CallKind) time.Duration {
	if kind == CallStorage {
		return p.storageTimeout
	}
	return p.modelTimeout
}

// Do 占用一个槽位执行 fn。等待槽位受调用方 ctx 约束；
// 超时后立即返回 ErrTimeout，槽位在 fn 真正返回后才释放
func (p *WorkerPool) Do(ctx context.Context, kind CallKind, op string, fn func(ctx context.Context) error) error {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return contextError(op, ctx.Err(), "等待工作槽位")
	}

	timeout := p.timeoutFor(kind)
	callCtx, cancel := context.WithTimeout(ctx, timeout)

	done := make(chan error, 1)
	go func() {
		defer func() { <-p.slots }()
		done <- fn(callCtx)
	}()

	select {
	case err := <-done:
		defer cancel()
		if err == nil {
			return nil
		}
		if types.IsKnownKind(err) {
			return err
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return types.NewTimeoutError("", op, fmt.Sprintf("超过 %s", timeout))
		}
		return err
	case <-callCtx.Done():
		cancel()
		return contextError(op, callCtx.Err(), fmt.Sprintf("超过 %s", timeout))
	}
}

// InUse 当前占用的槽位数
func (p *WorkerPool) InUse() int {
	return len(p.slots)
}

func contextError(op string, err error, detail string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return types.NewTimeoutError("", op, detail)
	}
	return fmt.Errorf("%s: %w", op, err)
}

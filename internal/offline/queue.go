// Package offline buffers mutating calls that failed with a
// network-classified error into a durable journal and replays them, in
// enqueue order per tenant, once connectivity returns. Conflicts against
// current server state surface the same errors an online call would; the
// server stays the single source of truth.
package offline

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"festival-orders/internal/common/logger"
	"festival-orders/internal/domain"
)

type OpType string

const (
	OpPlaceOrder   OpType = "place_order"
	OpUpdateStock  OpType = "update_stock"
	OpUpdateStatus OpType = "update_status"
	OpCancelOrder  OpType = "cancel_order"
)

type OpStatus string

const (
	OpPending   OpStatus = "pending"
	OpReplaying OpStatus = "replaying"
	OpFailed    OpStatus = "failed"
)

// Operation is one queued mutating call. ID doubles as the idempotency key,
// so a replay that raced a partially applied attempt has effect at most once.
type Operation struct {
	ID         string          `json:"id"`
	TenantID   string          `json:"tenant_id"`
	Type       OpType          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	RetryCount int             `json:"retry_count"`
	Status     OpStatus        `json:"status"`
	LastError  string          `json:"last_error,omitempty"`
}

// Executor performs a queued operation against the coordination core.
type Executor interface {
	Execute(ctx context.Context, op Operation) error
}

type Config struct {
	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

type Queue struct {
	mu      sync.Mutex
	path    string
	exec    Executor
	cfg     Config
	pending map[string][]Operation // tenant -> FIFO
	failed  []Operation
	lg      *logger.Logger
}

// Open loads the journal at path (created on first write) and binds the
// queue to exec.
func Open(path string, exec Executor, cfg Config) (*Queue, error) {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	q := &Queue{
		path:    path,
		exec:    exec,
		cfg:     cfg,
		pending: make(map[string][]Operation),
		lg:      logger.New("offline-queue"),
	}
	if err := q.load(); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *Queue) load() error {
	f, err := os.Open(q.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var op Operation
		if err := json.Unmarshal(line, &op); err != nil {
			return fmt.Errorf("corrupt journal line: %w", err)
		}
		if op.Status == OpFailed {
			q.failed = append(q.failed, op)
			continue
		}
		op.Status = OpPending
		q.pending[op.TenantID] = append(q.pending[op.TenantID], op)
	}
	return sc.Err()
}

// persist rewrites the journal atomically. Called with q.mu held.
func (q *Queue) persist() error {
	tmp := q.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create journal: %w", err)
	}
	enc := json.NewEncoder(f)
	for _, tenant := range q.tenantIDs() {
		for _, op := range q.pending[tenant] {
			if err := enc.Encode(op); err != nil {
				f.Close()
				return err
			}
		}
	}
	for _, op := range q.failed {
		if err := enc.Encode(op); err != nil {
			f.Close()
			return err
		}
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, q.path)
}

func (q *Queue) tenantIDs() []string {
	ids := make([]string, 0, len(q.pending))
	for id := range q.pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Do executes op immediately; a network-classified failure enqueues it
// instead of dropping it. While the tenant still has a backlog the op is
// enqueued straight behind it, so a fresh call can never overtake operations
// buffered earlier. queued reports whether the op was buffered.
func (q *Queue) Do(ctx context.Context, op Operation) (queued bool, err error) {
	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	if op.EnqueuedAt.IsZero() {
		op.EnqueuedAt = time.Now().UTC()
	}

	q.mu.Lock()
	if len(q.pending[op.TenantID]) > 0 {
		err := q.enqueueLocked(op)
		q.mu.Unlock()
		return err == nil, err
	}
	q.mu.Unlock()

	err = q.exec.Execute(ctx, op)
	if err == nil {
		return false, nil
	}
	if !domain.IsNetwork(err) {
		return false, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.enqueueLocked(op); err != nil {
		return false, err
	}
	return true, nil
}

func (q *Queue) enqueueLocked(op Operation) error {
	op.Status = OpPending
	q.pending[op.TenantID] = append(q.pending[op.TenantID], op)
	if err := q.persist(); err != nil {
		return err
	}
	q.lg.Info("operation_queued", map[string]any{
		"op_id": op.ID, "tenant_id": op.TenantID, "type": string(op.Type),
	})
	return nil
}

// Replay drains the queue, strictly in enqueue order within each tenant.
// Network failures back off exponentially up to MaxRetries, then the op is
// marked Failed and kept for acknowledgement; any other error is a state
// conflict and fails the op immediately.
func (q *Queue) Replay(ctx context.Context) error {
	for _, tenantID := range q.snapshotTenants() {
		for {
			op, ok := q.peek(tenantID)
			if !ok {
				break
			}
			if err := q.replayOne(ctx, op); err != nil {
				return err
			}
		}
	}
	return nil
}

func (q *Queue) snapshotTenants() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.tenantIDs()
}

func (q *Queue) peek(tenantID string) (Operation, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	ops := q.pending[tenantID]
	if len(ops) == 0 {
		return Operation{}, false
	}
	return ops[0], true
}

func (q *Queue) replayOne(ctx context.Context, op Operation) error {
	for {
		op.Status = OpReplaying
		err := q.exec.Execute(ctx, op)
		if err == nil {
			q.lg.Info("operation_replayed", map[string]any{"op_id": op.ID, "type": string(op.Type)})
			return q.dequeue(op, nil)
		}
		if !domain.IsNetwork(err) {
			// state conflict: surface, never retry
			q.lg.Error("operation_conflict", err, map[string]any{"op_id": op.ID})
			return q.dequeue(op, err)
		}
		op.RetryCount++
		if op.RetryCount >= q.cfg.MaxRetries {
			q.lg.Error("operation_exhausted", err, map[string]any{"op_id": op.ID, "retries": op.RetryCount})
			return q.dequeue(op, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(q.backoff(op.RetryCount)):
		}
	}
}

func (q *Queue) backoff(retry int) time.Duration {
	d := q.cfg.BaseBackoff << (retry - 1)
	if d > q.cfg.MaxBackoff || d <= 0 {
		return q.cfg.MaxBackoff
	}
	return d
}

// dequeue removes op from its tenant queue; a non-nil cause parks it in the
// failed set instead of dropping it.
func (q *Queue) dequeue(op Operation, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	ops := q.pending[op.TenantID]
	for i := range ops {
		if ops[i].ID == op.ID {
			q.pending[op.TenantID] = append(ops[:i], ops[i+1:]...)
			break
		}
	}
	if len(q.pending[op.TenantID]) == 0 {
		delete(q.pending, op.TenantID)
	}
	if cause != nil {
		op.Status = OpFailed
		op.LastError = cause.Error()
		q.failed = append(q.failed, op)
	}
	return q.persist()
}

// Pending returns the buffered operations for a tenant, oldest first.
func (q *Queue) Pending(tenantID string) []Operation {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Operation(nil), q.pending[tenantID]...)
}

// Failed returns the operations awaiting user acknowledgement.
func (q *Queue) Failed() []Operation {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Operation(nil), q.failed...)
}

// Acknowledge removes a failed operation after the user has seen it.
func (q *Queue) Acknowledge(opID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.failed {
		if q.failed[i].ID == opID {
			q.failed = append(q.failed[:i], q.failed[i+1:]...)
			return q.persist()
		}
	}
	return domain.ErrNotFound
}

package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/langchou/tesdash/internal/api/tesla"
	"github.com/langchou/tesdash/internal/backend"
	"github.com/langchou/tesdash/internal/credentials"
	"github.com/langchou/tesdash/internal/models"
	"github.com/langchou/tesdash/internal/vehicle"
)

// ErrNotConnected 未登录或未绑定车辆
var ErrNotConnected = errors.New("not connected")

// Session 同步与命令依赖的会话接口
type Session interface {
	Credentials(ctx context.Context) (credentials.Credentials, error)
	AccessToken(ctx context.Context) (string, error)
}

// VehicleBackend 车辆数据接口
type VehicleBackend interface {
	WakeUp(ctx context.Context, token, vehicleID string) (backend.WakeResult, error)
	VehicleData(ctx context.Context, token, vehicleID string) (*tesla.VehicleData, error)
}

// Broadcaster 快照推送
type Broadcaster interface {
	BroadcastSnapshot(snapshot interface{})
}

// SyncService 唤醒车辆并拉取遥测，维护当前快照
type SyncService struct {
	logger      *zap.Logger
	session     Session
	backend     VehicleBackend
	broadcaster Broadcaster
	interval    time.Duration
	now         func() time.Time

	wakeGroup singleflight.Group

	// publishMu 让替换与推送成为一步，消费者看到的顺序与存储顺序一致
	publishMu sync.Mutex

	mu          sync.RWMutex
	snapshot    models.Snapshot
	generation  uint64
	subscribers []chan models.Snapshot

	loopMu  sync.Mutex
	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
}

// NewSyncService 创建同步服务，初始快照为演示数据
func NewSyncService(logger *zap.Logger, session Session, b VehicleBackend, interval time.Duration) *SyncService {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &SyncService{
		logger:   logger,
		session:  session,
		backend:  b,
		interval: interval,
		now:      time.Now,
		snapshot: models.DemoSnapshot(),
	}
}

// SetBroadcaster 设置 WebSocket 推送
func (s *SyncService) SetBroadcaster(b Broadcaster) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcaster = b
}

// Snapshot 当前快照
func (s *SyncService) Snapshot() models.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// Subscribe 订阅快照更新
func (s *SyncService) Subscribe() <-chan models.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan models.Snapshot, 10)
	s.subscribers = append(s.subscribers, ch)
	return ch
}

// Sync 唤醒并拉取一次数据
// 无论唤醒结果如何都会尝试拉取；拉取失败时保留旧快照
func (s *SyncService) Sync(ctx context.Context) error {
	gen := s.currentGeneration()

	creds, err := s.session.Credentials(ctx)
	if err != nil {
		return err
	}

	// 先推送现有快照，消费者不必等待唤醒
	s.Republish()

	if !creds.IsLoggedIn() || !creds.HasVehicle() {
		return ErrNotConnected
	}

	token, err := s.session.AccessToken(ctx)
	if err != nil {
		return err
	}

	res, err := s.wake(ctx, token, creds.VehicleID)
	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case err != nil:
		s.logger.Warn("Wake up failed, fetching anyway", zap.Error(err), zap.String("vehicle_id", creds.VehicleID))
	case !res.Online:
		s.logger.Info("Vehicle did not report online, fetching anyway",
			zap.String("vehicle_id", creds.VehicleID),
			zap.String("state", res.State),
			zap.Int("attempts", res.Attempts))
	default:
		s.logger.Debug("Vehicle online", zap.String("vehicle_id", creds.VehicleID), zap.Int("attempts", res.Attempts))
	}

	return s.fetch(ctx, gen, token, creds)
}

// Refresh 只拉取不唤醒，用于定时同步和命令后刷新
func (s *SyncService) Refresh(ctx context.Context) error {
	gen := s.currentGeneration()

	creds, err := s.session.Credentials(ctx)
	if err != nil {
		return err
	}
	if !creds.IsLoggedIn() || !creds.HasVehicle() {
		return ErrNotConnected
	}

	token, err := s.session.AccessToken(ctx)
	if err != nil {
		return err
	}
	return s.fetch(ctx, gen, token, creds)
}

// wake 同一辆车的并发唤醒合并成一次请求
func (s *SyncService) wake(ctx context.Context, token, vehicleID string) (backend.WakeResult, error) {
	ch := s.wakeGroup.DoChan(vehicleID, func() (interface{}, error) {
		return s.backend.WakeUp(ctx, token, vehicleID)
	})

	select {
	case <-ctx.Done():
		return backend.WakeResult{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return backend.WakeResult{}, r.Err
		}
		return r.Val.(backend.WakeResult), nil
	}
}

func (s *SyncService) fetch(ctx context.Context, gen uint64, token string, creds credentials.Credentials) error {
	data, err := s.backend.VehicleData(ctx, token, creds.VehicleID)
	if err != nil {
		s.logger.Warn("Failed to fetch vehicle data", zap.Error(err), zap.String("vehicle_id", creds.VehicleID))
		return fmt.Errorf("fetch vehicle data: %w", err)
	}

	snap := vehicle.Normalize(data, creds.VehicleName)
	snap.UpdatedAt = s.now()

	if !s.apply(gen, snap) {
		s.logger.Debug("Discarded snapshot from a previous session", zap.String("vehicle_id", creds.VehicleID))
	}
	return nil
}

// apply 整份替换快照；会话在拉取期间被重置则丢弃结果
func (s *SyncService) apply(gen uint64, snap models.Snapshot) bool {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return false
	}
	s.snapshot = snap
	s.mu.Unlock()

	s.publish(snap)
	return true
}

// Reset 会话结束时回到演示数据，并作废进行中的同步
func (s *SyncService) Reset() {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	s.mu.Lock()
	s.generation++
	s.snapshot = models.DemoSnapshot()
	snap := s.snapshot
	s.mu.Unlock()

	s.publish(snap)
}

// Republish 重新推送当前快照（偏好变化后刷新展示字符串）
func (s *SyncService) Republish() {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()
	s.publish(s.Snapshot())
}

func (s *SyncService) currentGeneration() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

func (s *SyncService) publish(snap models.Snapshot) {
	s.mu.RLock()
	subscribers := s.subscribers
	broadcaster := s.broadcaster
	s.mu.RUnlock()

	for _, ch := range subscribers {
		select {
		case ch <- snap:
		default:
			// 订阅者阻塞时丢弃
		}
	}
	if broadcaster != nil {
		broadcaster.BroadcastSnapshot(snap)
	}
}

// Cycle 一次异步同步
type Cycle struct {
	ID     string
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Cancel 取消，唤醒等待中的请求随之结束
func (c *Cycle) Cancel() {
	c.cancel()
}

// Done 同步结束时关闭
func (c *Cycle) Done() <-chan struct{} {
	return c.done
}

// Err 同步结果，Done 关闭前为 nil
func (c *Cycle) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Trigger 在后台执行 Sync
func (s *SyncService) Trigger(ctx context.Context) *Cycle {
	cctx, cancel := context.WithCancel(ctx)
	c := &Cycle{
		ID:     uuid.NewString(),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(c.done)
		defer cancel()

		c.err = s.Sync(cctx)
		switch {
		case c.err == nil:
		case errors.Is(c.err, ErrNotConnected):
			s.logger.Debug("Sync skipped, not connected", zap.String("cycle_id", c.ID))
		case errors.Is(c.err, context.Canceled):
			s.logger.Info("Sync cancelled", zap.String("cycle_id", c.ID))
		default:
			s.logger.Warn("Sync failed", zap.String("cycle_id", c.ID), zap.Error(c.err))
		}
	}()

	return c
}

// Start 启动定时同步
func (s *SyncService) Start(ctx context.Context) {
	s.loopMu.Lock()
	defer s.loopMu.Unlock()
	if s.running {
		return
	}
	s.stopCh = make(chan struct{})
	s.running = true

	s.wg.Add(1)
	go s.loop(ctx, s.stopCh)
	s.logger.Info("Periodic sync started", zap.Duration("interval", s.interval))
}

// Stop 停止定时同步
func (s *SyncService) Stop() {
	s.loopMu.Lock()
	if !s.running {
		s.loopMu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.loopMu.Unlock()

	s.wg.Wait()
	s.logger.Info("Periodic sync stopped")
}

func (s *SyncService) loop(ctx context.Context, stopCh <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			if err := s.Refresh(ctx); err != nil && !errors.Is(err, ErrNotConnected) {
				s.logger.Warn("Periodic sync failed", zap.Error(err))
			}
		}
	}
}

// file: services/fakes_test.go
package services

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"CTFBox/models"
)

// fakeRuntime 可编程的 RuntimeClient 测试替身
type fakeRuntime struct {
	mu          sync.Mutex
	nextID      int
	createCalls []CreateSpec
	createErr   error
	live        map[string]bool
	stopCalls   []string
	stopErr     error
	resolveErr  error
	listErr     error
	// portsFor 覆盖默认的端口解析结果
	portsFor func(instanceID string) map[string]string
	lastSpec CreateSpec
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{live: make(map[string]bool)}
}

func (f *fakeRuntime) CreateInstance(ctx context.Context, spec CreateSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.nextID++
	id := fmt.Sprintf("inst-%d", f.nextID)
	f.createCalls = append(f.createCalls, spec)
	f.lastSpec = spec
	f.live[id] = true
	return id, nil
}

func (f *fakeRuntime) ResolvePorts(ctx context.Context, instanceID string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	if f.portsFor != nil {
		return f.portsFor(instanceID), nil
	}
	mapping := make(map[string]string, len(f.lastSpec.Ports))
	for _, p := range f.lastSpec.Ports {
		mapping[strconv.Itoa(p)] = strconv.Itoa(30000 + p)
	}
	return mapping, nil
}

func (f *fakeRuntime) StopInstance(ctx context.Context, instanceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls = append(f.stopCalls, instanceID)
	// 真实适配器的调用在 ctx 取消后会失败，补偿销毁必须换用未取消的 ctx
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.stopErr != nil {
		return f.stopErr
	}
	delete(f.live, instanceID)
	return nil
}

func (f *fakeRuntime) ListLiveInstanceIDs(ctx context.Context) (map[string]struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	ids := make(map[string]struct{}, len(f.live))
	for id := range f.live {
		ids[id] = struct{}{}
	}
	return ids, nil
}

// memStore 内存版 AssignmentStore
type memStore struct {
	mu        sync.Mutex
	rows      map[string]models.Instance
	insertErr error
	// beforeInsert 在持久化前触发，用于模拟写入期间发生的外部事件
	beforeInsert func()
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string]models.Instance)}
}

func (s *memStore) matches(inst models.Instance, owner Owner) bool {
	if owner.TeamID != 0 {
		return inst.TeamID == owner.TeamID
	}
	return inst.UserID == owner.UserID
}

func (s *memStore) FindLive(ctx context.Context, challengeID uint32, owner Owner, now time.Time) (*models.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inst := range s.rows {
		if inst.ChallengeID == challengeID && s.matches(inst, owner) && inst.ExpiresAt.After(now) {
			found := inst
			return &found, nil
		}
	}
	return nil, nil
}

func (s *memStore) CountLive(ctx context.Context, owner Owner, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, inst := range s.rows {
		if s.matches(inst, owner) && inst.ExpiresAt.After(now) {
			count++
		}
	}
	return count, nil
}

func (s *memStore) ListByOwner(ctx context.Context, owner Owner) ([]models.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Instance
	for _, inst := range s.rows {
		if s.matches(inst, owner) {
			out = append(out, inst)
		}
	}
	return out, nil
}

func (s *memStore) Insert(ctx context.Context, inst *models.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.beforeInsert != nil {
		s.beforeInsert()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.insertErr != nil {
		return s.insertErr
	}
	s.rows[inst.DockerID] = *inst
	return nil
}

func (s *memStore) Delete(ctx context.Context, dockerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, dockerID)
	return nil
}

func (s *memStore) UpdateExpiry(ctx context.Context, dockerID string, expiresAt time.Time, renewCount uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.rows[dockerID]
	if !ok {
		return fmt.Errorf("no row for %s", dockerID)
	}
	inst.ExpiresAt = expiresAt
	inst.RenewCount = renewCount
	s.rows[dockerID] = inst
	return nil
}

func (s *memStore) Expired(ctx context.Context, now time.Time) ([]models.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Instance
	for _, inst := range s.rows {
		if !inst.ExpiresAt.After(now) {
			out = append(out, inst)
		}
	}
	return out, nil
}

func (s *memStore) All(ctx context.Context) ([]models.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Instance, 0, len(s.rows))
	for _, inst := range s.rows {
		out = append(out, inst)
	}
	return out, nil
}

func (s *memStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func (s *memStore) has(dockerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rows[dockerID]
	return ok
}

// fakeChallenges 内存版 ChallengeStore
type fakeChallenges struct {
	byID map[uint32]*models.Challenge
}

func (f *fakeChallenges) GetChallenge(ctx context.Context, id uint32) (*models.Challenge, error) {
	return f.byID[id], nil
}

// staticSettings 固定配置的 SettingsSource
type staticSettings map[string]string

func (s staticSettings) Snapshot() (*Settings, error) {
	return NewSettings(map[string]string(s)), nil
}

func dynamicChallenge(id uint32, start, end int) *models.Challenge {
	return &models.Challenge{
		ID:             id,
		ChallengeName:  fmt.Sprintf("chall-%d", id),
		Mode:           models.ChallengeModeDynamic,
		DockerImage:    "ctfbox/test:latest",
		PortRangeStart: start,
		PortRangeEnd:   end,
	}
}

func newTestManager(store *memStore, challenges *fakeChallenges, settings staticSettings, runtime *fakeRuntime) *Manager {
	return NewManager(store, challenges, settings, runtime, NewKeyMutex())
}

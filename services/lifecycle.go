// file: services/lifecycle.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"CTFBox/models"
	"CTFBox/utils"
)

// Owner 容器归属方。个人赛填 UserID，团队赛填 TeamID，二者只会有一个非零。
type Owner struct {
	UserID uint32
	TeamID uint32
}

func (o Owner) Key() string {
	if o.TeamID != 0 {
		return fmt.Sprintf("team:%d", o.TeamID)
	}
	return fmt.Sprintf("user:%d", o.UserID)
}

// AssignmentStore 实例记录的持久化接口。Manager 负责写入，Manager 和 Reaper 都会删除。
type AssignmentStore interface {
	// FindLive 查找归属方在某题上未过期的实例，未找到返回 (nil, nil)
	FindLive(ctx context.Context, challengeID uint32, owner Owner, now time.Time) (*models.Instance, error)
	CountLive(ctx context.Context, owner Owner, now time.Time) (int64, error)
	ListByOwner(ctx context.Context, owner Owner) ([]models.Instance, error)
	Insert(ctx context.Context, inst *models.Instance) error
	Delete(ctx context.Context, dockerID string) error
	UpdateExpiry(ctx context.Context, dockerID string, expiresAt time.Time, renewCount uint) error
	Expired(ctx context.Context, now time.Time) ([]models.Instance, error)
	All(ctx context.Context) ([]models.Instance, error)
}

// ChallengeStore 题目定义的只读接口，未找到返回 (nil, nil)
type ChallengeStore interface {
	GetChallenge(ctx context.Context, challengeID uint32) (*models.Challenge, error)
}

// Locker 按 key 互斥。单机部署用进程内 KeyMutex，多机部署用 Redis 锁，
// 保证同一 (题目, 归属方) 同时只有一条开通流程在跑。
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// AssignmentView 返回给请求层的实例视图
type AssignmentView struct {
	Status      string            `json:"status"` // "created" 或 "running"
	InstanceID  string            `json:"instance_id"`
	ChallengeID uint32            `json:"challenge_id"`
	Host        string            `json:"host"`
	Ports       map[string]string `json:"ports"`
	ExpiresAt   time.Time         `json:"expires_at"`
}

// Manager 容器生命周期编排：幂等复用、开通、销毁、续期。
// 依赖全部通过构造函数注入。
type Manager struct {
	assignments AssignmentStore
	challenges  ChallengeStore
	settings    SettingsSource
	runtime     RuntimeClient
	provisioner *Provisioner
	locks       Locker
	now         func() time.Time
}

func NewManager(assignments AssignmentStore, challenges ChallengeStore, settings SettingsSource, runtime RuntimeClient, locks Locker) *Manager {
	return &Manager{
		assignments: assignments,
		challenges:  challenges,
		settings:    settings,
		runtime:     runtime,
		provisioner: NewProvisioner(runtime),
		locks:       locks,
		now:         time.Now,
	}
}

// GetOrCreate 申请容器。已有未过期实例时直接返回（幂等），否则开通新实例。
// 持久化失败会补偿销毁刚创建的容器，绝不留下无记录的实例。
func (m *Manager) GetOrCreate(ctx context.Context, challengeID uint32, owner Owner) (*AssignmentView, error) {
	st, err := m.settings.Snapshot()
	if err != nil {
		return nil, &StorageError{Op: "load settings", Err: err}
	}

	release, err := m.locks.Acquire(ctx, fmt.Sprintf("provision:%d:%s", challengeID, owner.Key()))
	if err != nil {
		return nil, err
	}
	defer release()

	now := m.now()
	existing, err := m.assignments.FindLive(ctx, challengeID, owner, now)
	if err != nil {
		return nil, &StorageError{Op: "lookup assignment", Err: err}
	}
	if existing != nil {
		ports, err := existing.PortMapping()
		if err != nil {
			return nil, &StorageError{Op: "decode ports", InstanceID: existing.DockerID, Err: err}
		}
		return &AssignmentView{
			Status:      "running",
			InstanceID:  existing.DockerID,
			ChallengeID: challengeID,
			Host:        st.Hostname(),
			Ports:       ports,
			ExpiresAt:   existing.ExpiresAt,
		}, nil
	}

	count, err := m.assignments.CountLive(ctx, owner, now)
	if err != nil {
		return nil, &StorageError{Op: "count assignments", Err: err}
	}
	if count >= int64(st.MaxPerOwner()) {
		return nil, ErrOwnerQuotaExceeded
	}

	ch, err := m.challenges.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, &StorageError{Op: "load challenge", Err: err}
	}
	if ch == nil {
		return nil, ErrChallengeNotFound
	}
	if ch.Mode != models.ChallengeModeDynamic {
		return nil, ErrChallengeStatic
	}

	flag := utils.GenerateDynamicFlag()
	log.Printf("CHALL_ID:%d|%s|Initiating container creation", challengeID, owner.Key())

	instanceID, ports, err := m.provisioner.Provision(ctx, ch, st, flag)
	if err != nil {
		// 开通中途失败但容器已存在时，就地清理
		var pe *ProvisionError
		if errors.As(err, &pe) && pe.InstanceID != "" {
			m.compensateStop(ctx, pe.InstanceID)
		}
		log.Printf("CHALL_ID:%d|%s|Container creation failed: %v", challengeID, owner.Key(), err)
		return nil, err
	}

	encoded, err := models.EncodePorts(ports)
	if err != nil {
		m.compensateStop(ctx, instanceID)
		return nil, &StorageError{Op: "encode ports", InstanceID: instanceID, RolledBack: true, Err: err}
	}

	inst := &models.Instance{
		DockerID:    instanceID,
		ChallengeID: challengeID,
		UserID:      owner.UserID,
		TeamID:      owner.TeamID,
		Ports:       encoded,
		Flag:        flag,
		CreatedAt:   now,
		ExpiresAt:   now.Add(st.ExpirationTTL()),
	}
	if err := m.assignments.Insert(ctx, inst); err != nil {
		rolledBack := m.compensateStop(ctx, instanceID)
		return nil, &StorageError{Op: "insert assignment", InstanceID: instanceID, RolledBack: rolledBack, Err: err}
	}

	log.Printf("CHALL_ID:%d|%s|Container %s created, expires %s", challengeID, owner.Key(), instanceID, inst.ExpiresAt.Format(time.RFC3339))
	return &AssignmentView{
		Status:      "created",
		InstanceID:  instanceID,
		ChallengeID: challengeID,
		Host:        st.Hostname(),
		Ports:       ports,
		ExpiresAt:   inst.ExpiresAt,
	}, nil
}

// compensateStop 补偿销毁。请求被取消也必须执行，否则会泄漏正在运行的容器，
// 因此脱离调用方的 context 重新限时。
func (m *Manager) compensateStop(ctx context.Context, instanceID string) bool {
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	if err := m.runtime.StopInstance(stopCtx, instanceID); err != nil {
		log.Printf("Warning: failed to roll back instance %s: %v", instanceID, err)
		return false
	}
	return true
}

// Stop 销毁归属方在某题上的实例。没有记录时报 ErrAssignmentNotFound，
// 不做静默处理——这说明调用方与实际状态不一致。
func (m *Manager) Stop(ctx context.Context, challengeID uint32, owner Owner) error {
	inst, err := m.assignments.FindLive(ctx, challengeID, owner, m.now())
	if err != nil {
		return &StorageError{Op: "lookup assignment", Err: err}
	}
	if inst == nil {
		return ErrAssignmentNotFound
	}

	// 容器停不掉就不删记录，调用方可以重试；否则会留下无记录的运行容器
	if err := m.runtime.StopInstance(ctx, inst.DockerID); err != nil {
		log.Printf("Warning: failed to stop instance %s: %v", inst.DockerID, err)
		return err
	}
	if err := m.assignments.Delete(ctx, inst.DockerID); err != nil {
		return &StorageError{Op: "delete assignment", InstanceID: inst.DockerID, Err: err}
	}
	log.Printf("CHALL_ID:%d|%s|Container %s stopped by owner", challengeID, owner.Key(), inst.DockerID)
	return nil
}

// StopByInstanceID 管理员按实例 ID 强制销毁
func (m *Manager) StopByInstanceID(ctx context.Context, instanceID string) error {
	if err := m.runtime.StopInstance(ctx, instanceID); err != nil {
		log.Printf("Warning: failed to stop instance %s by admin: %v", instanceID, err)
		return err
	}
	if err := m.assignments.Delete(ctx, instanceID); err != nil {
		return &StorageError{Op: "delete assignment", InstanceID: instanceID, Err: err}
	}
	log.Printf("Container %s force stopped by admin", instanceID)
	return nil
}

// Renew 续期：从当前时间重新计算过期点，而不是在原过期点上累加
func (m *Manager) Renew(ctx context.Context, challengeID uint32, owner Owner) (time.Time, error) {
	st, err := m.settings.Snapshot()
	if err != nil {
		return time.Time{}, &StorageError{Op: "load settings", Err: err}
	}

	inst, err := m.assignments.FindLive(ctx, challengeID, owner, m.now())
	if err != nil {
		return time.Time{}, &StorageError{Op: "lookup assignment", Err: err}
	}
	if inst == nil {
		return time.Time{}, ErrAssignmentNotFound
	}
	if inst.RenewCount >= st.MaxRenewals() {
		return time.Time{}, ErrRenewLimitReached
	}

	expiresAt := m.now().Add(st.ExpirationTTL())
	if err := m.assignments.UpdateExpiry(ctx, inst.DockerID, expiresAt, inst.RenewCount+1); err != nil {
		return time.Time{}, &StorageError{Op: "update expiry", InstanceID: inst.DockerID, Err: err}
	}
	log.Printf("CHALL_ID:%d|%s|Container %s renewed until %s", challengeID, owner.Key(), inst.DockerID, expiresAt.Format(time.RFC3339))
	return expiresAt, nil
}

// List 归属方当前的实例列表。顺带校验容器是否还活着，
// 已经消失的记录就地清理，避免继续返回过期数据。
func (m *Manager) List(ctx context.Context, owner Owner) ([]AssignmentView, error) {
	st, err := m.settings.Snapshot()
	if err != nil {
		return nil, &StorageError{Op: "load settings", Err: err}
	}
	instances, err := m.assignments.ListByOwner(ctx, owner)
	if err != nil {
		return nil, &StorageError{Op: "list assignments", Err: err}
	}

	var live map[string]struct{}
	if len(instances) > 0 {
		live, err = m.runtime.ListLiveInstanceIDs(ctx)
		if err != nil {
			return nil, err
		}
	}

	views := make([]AssignmentView, 0, len(instances))
	for i := range instances {
		inst := &instances[i]
		if _, ok := live[inst.DockerID]; !ok {
			log.Printf("Instance %s vanished from the runtime, dropping its record", inst.DockerID)
			_ = m.assignments.Delete(ctx, inst.DockerID)
			continue
		}
		ports, err := inst.PortMapping()
		if err != nil {
			continue
		}
		views = append(views, AssignmentView{
			Status:      "running",
			InstanceID:  inst.DockerID,
			ChallengeID: inst.ChallengeID,
			Host:        st.Hostname(),
			Ports:       ports,
			ExpiresAt:   inst.ExpiresAt,
		})
	}
	return views, nil
}

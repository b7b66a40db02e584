// file: services/reaper.go
package services

import (
	"context"
	"log"
	"sync"
	"time"
)

// Reaper 后台回收循环：按固定间隔清掉过期实例，
// 并把运行时里已经消失（OOM、被手工删除）的记录一并清理。
// 回收失败只记日志并跳过本轮，下一个周期会自愈。
type Reaper struct {
	assignments AssignmentStore
	runtime     RuntimeClient
	interval    time.Duration
	now         func() time.Time

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func NewReaper(assignments AssignmentStore, runtime RuntimeClient, interval time.Duration) *Reaper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Reaper{
		assignments: assignments,
		runtime:     runtime,
		interval:    interval,
		now:         time.Now,
		stop:        make(chan struct{}),
	}
}

// Start 启动回收循环
func (r *Reaper) Start() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.stop:
				return
			case <-ticker.C:
				r.runCycle(context.Background())
			}
		}
	}()
	log.Printf("Container reaper started, interval %s", r.interval)
}

// Stop 停止调度新一轮回收，并等待进行中的一轮结束或 ctx 超时
func (r *Reaper) Stop(ctx context.Context) error {
	r.once.Do(func() { close(r.stop) })
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runCycle 执行一轮回收。先清过期实例，再对账运行时状态。
func (r *Reaper) runCycle(ctx context.Context) {
	now := r.now()

	expired, err := r.assignments.Expired(ctx, now)
	if err != nil {
		log.Printf("Reaper: failed to query expired assignments: %v", err)
		return
	}
	for i := range expired {
		inst := &expired[i]
		// 停不掉就保留记录，下一轮重试。适配器对 not-found 返回成功，
		// 所以"容器已经没了"不会卡在这里；删了记录的失联容器再没人能回收。
		if err := r.runtime.StopInstance(ctx, inst.DockerID); err != nil {
			log.Printf("Reaper: failed to stop expired instance %s, keeping its record: %v", inst.DockerID, err)
			continue
		}
		if err := r.assignments.Delete(ctx, inst.DockerID); err != nil {
			log.Printf("Reaper: failed to delete assignment %s: %v", inst.DockerID, err)
			continue
		}
		log.Printf("Reaper: reclaimed expired instance %s (challenge %d)", inst.DockerID, inst.ChallengeID)
	}

	live, err := r.runtime.ListLiveInstanceIDs(ctx)
	if err != nil {
		log.Printf("Reaper: failed to list live instances, skipping reconciliation: %v", err)
		return
	}
	all, err := r.assignments.All(ctx)
	if err != nil {
		log.Printf("Reaper: failed to list assignments: %v", err)
		return
	}
	for i := range all {
		inst := &all[i]
		if _, ok := live[inst.DockerID]; ok {
			continue
		}
		if !inst.ExpiresAt.After(now) {
			// 过期的上面已经处理过了
			continue
		}
		if err := r.assignments.Delete(ctx, inst.DockerID); err != nil {
			log.Printf("Reaper: failed to delete orphaned assignment %s: %v", inst.DockerID, err)
			continue
		}
		log.Printf("Reaper: instance %s vanished from the runtime, record dropped", inst.DockerID)
	}
}

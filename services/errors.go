// file: services/errors.go
package services

import (
	"errors"
	"fmt"
)

// 核心错误分类。所有底层错误（Docker SDK / GORM）在离开 services 包之前
// 都会被收敛为下面几种类型，controller 层据此映射业务错误码。
var (
	ErrChallengeNotFound  = errors.New("challenge not found")
	ErrChallengeStatic    = errors.New("challenge does not use dynamic containers")
	ErrAssignmentNotFound = errors.New("no running container for this challenge")
	ErrOwnerQuotaExceeded = errors.New("owner already has the maximum number of running containers")
	ErrRenewLimitReached  = errors.New("container renewal limit reached")
)

// ConnectionError Docker 守护进程不可达（本地 socket 或远程 TLS 通道层面的失败）。
// 与容器运行时返回的业务错误区分开，调用方可据此决定是否重试。
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("docker daemon unreachable during %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// RuntimeErrorKind 容器运行时错误细分
type RuntimeErrorKind string

const (
	RuntimeImageNotFound    RuntimeErrorKind = "image_not_found"
	RuntimeInvalidSpec      RuntimeErrorKind = "invalid_spec"
	RuntimeDaemonError      RuntimeErrorKind = "daemon_error"
	RuntimeInstanceNotFound RuntimeErrorKind = "instance_not_found"
)

// RuntimeError 容器运行时返回的业务错误
type RuntimeError struct {
	Kind       RuntimeErrorKind
	Op         string
	InstanceID string
	Err        error
}

func (e *RuntimeError) Error() string {
	if e.InstanceID != "" {
		return fmt.Sprintf("runtime %s failed for instance %s (%s): %v", e.Op, e.InstanceID, e.Kind, e.Err)
	}
	return fmt.Sprintf("runtime %s failed (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *RuntimeError) Unwrap() error { return e.Err }

// ProvisionError 实例开通失败：配置非法、端口区间无效或容器没有绑定任何端口。
// InstanceID 非空表示容器已经被创建出来，编排层需要负责补偿销毁。
type ProvisionError struct {
	Reason     string
	InstanceID string
	Err        error
}

func (e *ProvisionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provision failed: %s: %v", e.Reason, e.Err)
	}
	return "provision failed: " + e.Reason
}

func (e *ProvisionError) Unwrap() error { return e.Err }

// StorageError 持久化失败。RolledBack 表示补偿销毁是否成功：
// false 意味着可能有一个没有任何记录的容器还在运行，需要人工或 Reaper 兜底。
type StorageError struct {
	Op         string
	InstanceID string
	RolledBack bool
	Err        error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed: %v (instance %q rolled back: %v)", e.Op, e.Err, e.InstanceID, e.RolledBack)
}

func (e *StorageError) Unwrap() error { return e.Err }

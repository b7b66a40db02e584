// file: services/settings.go
package services

import (
	"fmt"
	"strconv"
	"time"
)

// SettingsSource 配置来源。每次请求取一份快照，保证管理员改配置后即刻生效。
type SettingsSource interface {
	Snapshot() (*Settings, error)
}

// Settings 只读配置快照
type Settings struct {
	values map[string]string
}

func NewSettings(values map[string]string) *Settings {
	if values == nil {
		values = map[string]string{}
	}
	return &Settings{values: values}
}

func (s *Settings) Get(key string) string {
	return s.values[key]
}

// ExpirationTTL 容器存活时长。配置非法时回落到一小时，不阻断请求。
func (s *Settings) ExpirationTTL() time.Duration {
	secs, err := strconv.Atoi(s.values["container_expiration_seconds"])
	if err != nil || secs <= 0 {
		return time.Hour
	}
	return time.Duration(secs) * time.Second
}

// MaxMemoryMB 内存上限（MB）。空串表示不限制；非数字是配置错误，由调用方上报。
func (s *Settings) MaxMemoryMB() (int64, error) {
	raw := s.values["container_maxmemory"]
	if raw == "" {
		return 0, nil
	}
	mb, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("container_maxmemory must be an integer, got %q", raw)
	}
	if mb <= 0 {
		return 0, nil
	}
	return mb, nil
}

// MaxCPUFraction CPU 上限（核数，可为小数）。空串表示不限制。
func (s *Settings) MaxCPUFraction() (float64, error) {
	raw := s.values["container_maxcpu"]
	if raw == "" {
		return 0, nil
	}
	frac, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("container_maxcpu must be a number, got %q", raw)
	}
	if frac <= 0 {
		return 0, nil
	}
	return frac, nil
}

// Hostname 返回给选手的连接地址
func (s *Settings) Hostname() string {
	if h := s.values["docker_hostname"]; h != "" {
		return h
	}
	return "127.0.0.1"
}

// TeamMode 部署模式：true 为团队赛，容器归属队伍；否则归属个人
func (s *Settings) TeamMode() bool {
	return s.values["deployment_mode"] != "user"
}

// MaxPerOwner 单个归属方允许同时运行的容器数
func (s *Settings) MaxPerOwner() int {
	n, err := strconv.Atoi(s.values["container_max_per_owner"])
	if err != nil || n <= 0 {
		return 2
	}
	return n
}

// MaxRenewals 单个容器允许续期的次数
func (s *Settings) MaxRenewals() uint {
	n, err := strconv.Atoi(s.values["container_max_renewals"])
	if err != nil || n < 0 {
		return 3
	}
	return uint(n)
}

// ReaperInterval 回收循环的间隔
func (s *Settings) ReaperInterval() time.Duration {
	secs, err := strconv.Atoi(s.values["reaper_interval_seconds"])
	if err != nil || secs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(secs) * time.Second
}

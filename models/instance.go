// file: models/instance.go
package models

import (
	"encoding/json"
	"time"
)

// Instance 对应 ctfbox_instance 表，每行绑定一个正在运行的容器实例：
// 属于哪道题、归谁所有、对外端口映射以及过期时间。
// UserID 与 TeamID 二者只会有一个非零，取决于部署模式（个人赛/团队赛）。
type Instance struct {
	DockerID    string `gorm:"size:128;primarykey"`
	ChallengeID uint32 `gorm:"index:idx_challenge_owner;not null"`
	UserID      uint32 `gorm:"index:idx_challenge_owner"`
	TeamID      uint32 `gorm:"index:idx_challenge_owner"`
	// Ports 为 JSON 文本：{"内部端口": "宿主端口", ...}
	Ports string `gorm:"type:text;not null"`
	// Flag 为本实例专属动态 Flag，创建时注入容器环境变量
	Flag       string    `gorm:"size:255;not null"`
	RenewCount uint      `gorm:"default:0"`
	CreatedAt  time.Time `gorm:"not null"`
	ExpiresAt  time.Time `gorm:"index;not null"`
}

func (Instance) TableName() string {
	return "ctfbox_instance"
}

// PortMapping 反序列化 Ports 字段
func (i *Instance) PortMapping() (map[string]string, error) {
	m := make(map[string]string)
	if i.Ports == "" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(i.Ports), &m); err != nil {
		return nil, err
	}
	return m, nil
}

// EncodePorts 序列化端口映射，写入 Ports 字段
func EncodePorts(m map[string]string) (string, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

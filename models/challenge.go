// file: models/challenge.go
package models

import (
	"time"
)

type ChallengeState string
type ChallengeMode string

const (
	ChallengeStateVisible ChallengeState = "visible"
	ChallengeStateHidden  ChallengeState = "hidden"

	ChallengeModeStatic  ChallengeMode = "static"
	ChallengeModeDynamic ChallengeMode = "dynamic"
)

// Challenge 题目定义。动态题目携带镜像、端口区间和可选的启动命令/挂载，
// 由题目管理模块维护，容器生命周期管理模块只读。
type Challenge struct {
	ID            uint32         `gorm:"primarykey"`
	ChallengeName string         `gorm:"size:100;unique;not null"`
	Author        string         `gorm:"size:50"`
	Description   string         `gorm:"type:text"`
	State         ChallengeState `gorm:"type:enum('visible','hidden');default:'hidden'"`
	Mode          ChallengeMode  `gorm:"type:enum('static','dynamic');not null"`
	StaticFlag    string         `gorm:"size:255"`
	DockerImage   string         `gorm:"size:255"`
	// 端口区间 [PortRangeStart, PortRangeEnd]，区间内每个端口都会以随机宿主端口发布
	PortRangeStart int    `gorm:"default:0"`
	PortRangeEnd   int    `gorm:"default:0"`
	DockerCommand  string `gorm:"size:255"`
	// DockerVolumes 为 JSON 文本：{"/host/path": {"bind": "/container/path", "mode": "ro"}}
	DockerVolumes string  `gorm:"type:text"`
	InitialScore  uint    `gorm:"not null"`
	MinScore      uint    `gorm:"not null"`
	DecayRatio    float32 `gorm:"default:0.1"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (Challenge) TableName() string {
	return "ctfbox_challenge"
}

// file: models/team.go
package models

import (
	"time"
)

// 自定义队伍状态类型
type TeamStatus string

const (
	TeamStatusActive TeamStatus = "active"
	TeamStatusBanned TeamStatus = "banned"
)

type Team struct {
	ID         uint32     `gorm:"primarykey" json:"id"`
	TeamName   string     `gorm:"size:100;unique;not null" json:"team_name"`
	LeaderID   uint32     `gorm:"not null" json:"leader_id"`
	TeamStatus TeamStatus `gorm:"type:enum('active','banned');default:'active'" json:"team_status"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (Team) TableName() string {
	return "ctfbox_team"
}

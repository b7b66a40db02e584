// file: models/team_member.go
package models

import "time"

type TeamMember struct {
	ID       uint32 `gorm:"primarykey"`
	TeamID   uint32 `gorm:"uniqueIndex:unique_team_user;not null"`
	UserID   uint32 `gorm:"uniqueIndex:unique_team_user;not null"`
	JoinedAt time.Time
}

func (TeamMember) TableName() string {
	return "ctfbox_team_members"
}

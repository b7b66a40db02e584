// file: models/setting.go
package models

import (
	"gorm.io/gorm"
)

// Setting 对应 ctfbox_settings 表，key-value 形式的运行时配置。
// 管理员可在比赛期间修改，核心模块每次请求都会取一份最新快照。
type Setting struct {
	Key   string `gorm:"size:128;primarykey"`
	Value string `gorm:"type:text"`
}

func (Setting) TableName() string {
	return "ctfbox_settings"
}

// DefaultSettings 默认配置，仅在对应 key 不存在时写入
var DefaultSettings = map[string]string{
	"docker_base_url":              "",
	"docker_hostname":              "127.0.0.1",
	"container_expiration_seconds": "3600",
	"container_maxmemory":          "512",
	"container_maxcpu":             "0.5",
	"container_max_per_owner":      "2",
	"container_max_renewals":       "3",
	"container_lock_backend":       "local",
	"reaper_interval_seconds":      "30",
	"deployment_mode":              "team",
}

// ApplyDefaultSettings 为缺失的配置项写入默认值
func ApplyDefaultSettings(db *gorm.DB) error {
	for k, v := range DefaultSettings {
		var existing Setting
		if err := db.Where("`key` = ?", k).First(&existing).Error; err == nil {
			continue
		}
		if err := db.Create(&Setting{Key: k, Value: v}).Error; err != nil {
			return err
		}
	}
	return nil
}

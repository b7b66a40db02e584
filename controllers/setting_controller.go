// file: controllers/setting_controller.go
package controllers

import (
	"CTFBox/database"
	"CTFBox/models"
	"CTFBox/utils"
	"github.com/gin-gonic/gin"
)

// GetSettings 管理员查询全部运行时配置
func GetSettings(c *gin.Context) {
	var rows []models.Setting
	if err := database.DB.Find(&rows).Error; err != nil {
		utils.Error(c, 5002, "Database error while listing settings")
		return
	}
	utils.Success(c, "success", rows)
}

// UpdateSetting 管理员修改配置项。核心模块每次请求都取快照，改完即刻生效。
func UpdateSetting(c *gin.Context) {
	key := c.Param("key")
	var req struct {
		Value string `json:"value"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, 1001, "参数无效: "+err.Error())
		return
	}

	if _, ok := models.DefaultSettings[key]; !ok {
		utils.Error(c, 4004, "未知的配置项")
		return
	}

	setting := models.Setting{Key: key, Value: req.Value}
	if err := database.DB.Save(&setting).Error; err != nil {
		utils.Error(c, 5002, "Failed to update setting: "+err.Error())
		return
	}
	utils.Success(c, "Setting updated", setting)
}

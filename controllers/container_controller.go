// file: controllers/container_controller.go
package controllers

import (
	"errors"
	"strconv"
	"time"

	"CTFBox/database"
	"CTFBox/dto"
	"CTFBox/models"
	"CTFBox/services"
	"CTFBox/utils"
	"github.com/gin-gonic/gin"
)

// ContainerController 容器相关接口，生命周期逻辑全部委托给 services.Manager
type ContainerController struct {
	Manager  *services.Manager
	Settings services.SettingsSource
}

func NewContainerController(manager *services.Manager, settings services.SettingsSource) *ContainerController {
	return &ContainerController{Manager: manager, Settings: settings}
}

// resolveOwner 根据部署模式把当前登录用户换算成容器归属方
func (ctl *ContainerController) resolveOwner(c *gin.Context) (services.Owner, bool) {
	userIDAny, _ := c.Get("user_id")
	userID := userIDAny.(uint32)

	st, err := ctl.Settings.Snapshot()
	if err != nil {
		utils.Error(c, 5000, "Failed to load settings: "+err.Error())
		return services.Owner{}, false
	}
	if !st.TeamMode() {
		return services.Owner{UserID: userID}, true
	}

	var membership models.TeamMember
	if err := database.DB.Where("user_id = ?", userID).First(&membership).Error; err != nil {
		utils.Error(c, 3005, "你尚未加入任何队伍")
		return services.Owner{}, false
	}
	var team models.Team
	database.DB.First(&team, membership.TeamID)
	if team.TeamStatus == models.TeamStatusBanned {
		utils.Error(c, 4003, "队伍已被封禁，无法申请容器")
		return services.Owner{}, false
	}
	return services.Owner{TeamID: team.ID}, true
}

// writeLifecycleError 把核心错误分类映射为业务错误码
func writeLifecycleError(c *gin.Context, err error) {
	var connErr *services.ConnectionError
	var rtErr *services.RuntimeError
	var provErr *services.ProvisionError
	var stErr *services.StorageError

	switch {
	case errors.Is(err, services.ErrChallengeNotFound):
		utils.Error(c, 4004, "题目不存在")
	case errors.Is(err, services.ErrChallengeStatic):
		utils.Error(c, 1002, "该题目不是动态容器题目")
	case errors.Is(err, services.ErrAssignmentNotFound):
		utils.Error(c, 4004, "没有正在运行的容器")
	case errors.Is(err, services.ErrOwnerQuotaExceeded):
		utils.Error(c, 7001, "Running container limit reached")
	case errors.Is(err, services.ErrRenewLimitReached):
		utils.Error(c, 7002, "Renewal limit reached")
	case errors.As(err, &provErr):
		utils.Error(c, 5001, "Failed to provision container: "+provErr.Reason)
	case errors.As(err, &connErr):
		utils.Error(c, 5000, "Container runtime unreachable")
	case errors.As(err, &rtErr):
		switch rtErr.Kind {
		case services.RuntimeImageNotFound:
			utils.Error(c, 5001, "Docker image not found")
		case services.RuntimeInvalidSpec:
			utils.Error(c, 5001, "Invalid container specification")
		default:
			utils.Error(c, 5000, "Container runtime error")
		}
	case errors.As(err, &stErr):
		if stErr.InstanceID != "" && !stErr.RolledBack {
			// 容器可能还在跑但没有记录，提示调用方不要疯狂重试
			utils.Error(c, 5002, "Failed to save container record, cleanup pending")
			return
		}
		utils.Error(c, 5002, "Failed to save container record")
	default:
		utils.Error(c, 5000, "Internal error: "+err.Error())
	}
}

// RequestContainer 申请容器。重复申请会幂等地返回已有实例。
func (ctl *ContainerController) RequestContainer(c *gin.Context) {
	var req dto.RequestContainerInput
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, 1001, "参数无效: "+err.Error())
		return
	}

	owner, ok := ctl.resolveOwner(c)
	if !ok {
		return
	}

	view, err := ctl.Manager.GetOrCreate(c.Request.Context(), req.ChallengeID, owner)
	if err != nil {
		writeLifecycleError(c, err)
		return
	}

	utils.Success(c, "Container ready", dto.ContainerView{
		Status:      view.Status,
		ChallengeID: view.ChallengeID,
		Host:        view.Host,
		Ports:       view.Ports,
		ExpiresAt:   view.ExpiresAt.Format(time.RFC3339),
	})
}

// StopContainer 销毁自己在某题上的容器
func (ctl *ContainerController) StopContainer(c *gin.Context) {
	challengeID, err := strconv.ParseUint(c.Param("challenge_id"), 10, 32)
	if err != nil {
		utils.Error(c, 1001, "无效的题目 ID")
		return
	}

	owner, ok := ctl.resolveOwner(c)
	if !ok {
		return
	}

	if err := ctl.Manager.Stop(c.Request.Context(), uint32(challengeID), owner); err != nil {
		writeLifecycleError(c, err)
		return
	}
	utils.Success(c, "Container stopped successfully", gin.H{"status": "stopped"})
}

// RenewContainer 续期：有效期从当前时间重新起算
func (ctl *ContainerController) RenewContainer(c *gin.Context) {
	challengeID, err := strconv.ParseUint(c.Param("challenge_id"), 10, 32)
	if err != nil {
		utils.Error(c, 1001, "无效的题目 ID")
		return
	}

	owner, ok := ctl.resolveOwner(c)
	if !ok {
		return
	}

	expiresAt, err := ctl.Manager.Renew(c.Request.Context(), uint32(challengeID), owner)
	if err != nil {
		writeLifecycleError(c, err)
		return
	}
	utils.Success(c, "Container renewed successfully", gin.H{
		"expires_at": expiresAt.Format(time.RFC3339),
	})
}

// ListContainers 查询自己当前的容器列表
func (ctl *ContainerController) ListContainers(c *gin.Context) {
	owner, ok := ctl.resolveOwner(c)
	if !ok {
		return
	}

	views, err := ctl.Manager.List(c.Request.Context(), owner)
	if err != nil {
		writeLifecycleError(c, err)
		return
	}

	result := make([]dto.ContainerView, 0, len(views))
	for _, v := range views {
		result = append(result, dto.ContainerView{
			Status:      v.Status,
			ChallengeID: v.ChallengeID,
			Host:        v.Host,
			Ports:       v.Ports,
			ExpiresAt:   v.ExpiresAt.Format(time.RFC3339),
		})
	}
	utils.Success(c, "success", result)
}

// AdminListContainers 管理员查询全部容器记录
func (ctl *ContainerController) AdminListContainers(c *gin.Context) {
	var instances []models.Instance
	if err := database.DB.Find(&instances).Error; err != nil {
		utils.Error(c, 5002, "Database error while listing containers")
		return
	}
	utils.Success(c, "success", instances)
}

// AdminDestroyContainer 管理员按实例 ID 强制销毁容器
func (ctl *ContainerController) AdminDestroyContainer(c *gin.Context) {
	instanceID := c.Param("instance_id")
	if instanceID == "" {
		utils.Error(c, 1001, "缺少实例 ID")
		return
	}

	if err := ctl.Manager.StopByInstanceID(c.Request.Context(), instanceID); err != nil {
		writeLifecycleError(c, err)
		return
	}
	utils.Success(c, "Container destroyed successfully by admin", nil)
}

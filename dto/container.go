// file: dto/container.go
package dto

// RequestContainerInput 申请容器的请求体
type RequestContainerInput struct {
	ChallengeID uint32 `json:"challenge_id" binding:"required"`
}

// ContainerView 返回给选手的容器视图
type ContainerView struct {
	Status      string `json:"status"`
	ChallengeID uint32 `json:"challenge_id"`
	Host        string `json:"host"`
	// Ports 内部端口 -> 宿主端口
	Ports     map[string]string `json:"ports"`
	ExpiresAt string            `json:"expires_at"`
}

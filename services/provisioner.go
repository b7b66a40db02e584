// file: services/provisioner.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"CTFBox/models"
)

// volumeSpec 对应题目 DockerVolumes JSON 的单项：
// {"/host/path": {"bind": "/container/path", "mode": "ro"}}
type volumeSpec struct {
	Bind string `json:"bind"`
	Mode string `json:"mode"`
}

// Provisioner 根据题目定义开通一个容器实例并解析对外端口
type Provisioner struct {
	runtime RuntimeClient
}

func NewProvisioner(runtime RuntimeClient) *Provisioner {
	return &Provisioner{runtime: runtime}
}

// Provision 开通实例。返回的 ProvisionError 若携带 InstanceID，
// 表示容器已创建但不可用，调用方负责补偿销毁。
func (p *Provisioner) Provision(ctx context.Context, ch *models.Challenge, st *Settings, flag string) (string, map[string]string, error) {
	if ch.PortRangeStart <= 0 || ch.PortRangeEnd < ch.PortRangeStart {
		return "", nil, &ProvisionError{Reason: fmt.Sprintf(
			"challenge %d has invalid port range [%d, %d]", ch.ID, ch.PortRangeStart, ch.PortRangeEnd)}
	}

	ports := make([]int, 0, ch.PortRangeEnd-ch.PortRangeStart+1)
	for port := ch.PortRangeStart; port <= ch.PortRangeEnd; port++ {
		ports = append(ports, port)
	}

	binds, err := parseVolumes(ch.DockerVolumes)
	if err != nil {
		return "", nil, &ProvisionError{Reason: "volumes JSON is invalid", Err: err}
	}

	memMB, err := st.MaxMemoryMB()
	if err != nil {
		return "", nil, &ProvisionError{Reason: "memory limit misconfigured", Err: err}
	}
	cpuFrac, err := st.MaxCPUFraction()
	if err != nil {
		return "", nil, &ProvisionError{Reason: "cpu limit misconfigured", Err: err}
	}

	spec := CreateSpec{
		Image:       ch.DockerImage,
		Name:        fmt.Sprintf("ctfbox-%d-%d", ch.ID, time.Now().UnixNano()),
		Command:     ch.DockerCommand,
		Env:         []string{"CTFBOX_FLAG=" + flag},
		Ports:       ports,
		Binds:       binds,
		MemoryMB:    memMB,
		CPUFraction: cpuFrac,
	}

	instanceID, err := p.runtime.CreateInstance(ctx, spec)
	if err != nil {
		return "", nil, err
	}
	log.Printf("CHALL_ID:%d|Instance %s created, resolving ports", ch.ID, instanceID)

	mapping, err := p.runtime.ResolvePorts(ctx, instanceID)
	if err != nil {
		return "", nil, &ProvisionError{Reason: "could not resolve container ports", InstanceID: instanceID, Err: err}
	}
	if len(mapping) == 0 {
		// 一个没有任何可达端口的题目容器毫无意义
		return "", nil, &ProvisionError{Reason: "container bound no ports", InstanceID: instanceID}
	}

	return instanceID, mapping, nil
}

// parseVolumes 解析题目的挂载配置，空串表示无挂载
func parseVolumes(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var parsed map[string]volumeSpec
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, err
	}
	binds := make([]string, 0, len(parsed))
	for host, v := range parsed {
		if v.Bind == "" {
			return nil, fmt.Errorf("volume %q is missing the bind target", host)
		}
		mode := v.Mode
		if mode == "" {
			mode = "rw"
		}
		binds = append(binds, fmt.Sprintf("%s:%s:%s", host, v.Bind, mode))
	}
	return binds, nil
}

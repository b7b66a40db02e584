// file: services/runtime.go
package services

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/strslice"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/go-connections/nat"
)

// CreateSpec 创建一个实例所需的全部参数，由 Provisioner 根据题目定义组装
type CreateSpec struct {
	Image   string
	Name    string
	Command string
	Env     []string
	// Ports 中每个端口都会被暴露，宿主端口由 Docker 随机分配
	Ports []int
	// Binds 形如 "/host:/container:mode"
	Binds []string
	// MemoryMB 为 0 表示不限制；负数视为非法配置
	MemoryMB int64
	// CPUFraction 为 0 表示不限制，0.5 表示半个核
	CPUFraction float64
}

// RuntimeClient 容器运行时抽象，Provisioner / Manager / Reaper 都通过它操作容器。
// 测试中以 fake 实现替换。
type RuntimeClient interface {
	CreateInstance(ctx context.Context, spec CreateSpec) (string, error)
	ResolvePorts(ctx context.Context, instanceID string) (map[string]string, error)
	StopInstance(ctx context.Context, instanceID string) error
	ListLiveInstanceIDs(ctx context.Context) (map[string]struct{}, error)
}

// RuntimeConfig Docker 连接配置
type RuntimeConfig struct {
	// BaseURL 为空时走 DOCKER_HOST / 默认 socket；远程部署填 tcp:// 地址，
	// TLS 证书沿用 Docker 官方的 DOCKER_CERT_PATH 环境变量机制
	BaseURL string
	// Timeout 单次守护进程调用的超时
	Timeout time.Duration
}

// DockerRuntime RuntimeClient 的 Docker 实现，进程内只持有一个连接实例
type DockerRuntime struct {
	cli     *client.Client
	timeout time.Duration
}

// NewDockerRuntime 建立并校验 Docker 连接。连接失败返回 ConnectionError。
func NewDockerRuntime(cfg RuntimeConfig) (*DockerRuntime, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if cfg.BaseURL != "" {
		opts = append(opts, client.WithHost(cfg.BaseURL))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, &ConnectionError{Op: "connect", Err: err}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		return nil, &ConnectionError{Op: "ping", Err: err}
	}

	log.Println("Docker client initialized, daemon reachable.")
	return &DockerRuntime{cli: cli, timeout: timeout}, nil
}

// CreateInstance 创建并启动容器，端口全部以随机宿主端口发布
func (r *DockerRuntime) CreateInstance(ctx context.Context, spec CreateSpec) (string, error) {
	if spec.MemoryMB < 0 {
		return "", &RuntimeError{Kind: RuntimeInvalidSpec, Op: "create",
			Err: fmt.Errorf("memory limit must be positive, got %d", spec.MemoryMB)}
	}

	exposed := make(nat.PortSet, len(spec.Ports))
	bindings := make(nat.PortMap, len(spec.Ports))
	for _, p := range spec.Ports {
		port := nat.Port(strconv.Itoa(p) + "/tcp")
		exposed[port] = struct{}{}
		// 不指定 HostPort，由守护进程分配临时端口，避免自建端口分配表
		bindings[port] = []nat.PortBinding{{}}
	}

	resources := container.Resources{}
	if spec.MemoryMB > 0 {
		resources.Memory = spec.MemoryMB * 1024 * 1024
	}
	if spec.CPUFraction > 0 {
		resources.CPUQuota = int64(spec.CPUFraction * 100000)
		resources.CPUPeriod = 100000
	}

	config := &container.Config{
		Image:        spec.Image,
		Env:          spec.Env,
		ExposedPorts: exposed,
	}
	if spec.Command != "" {
		config.Cmd = strslice.StrSlice(splitCommand(spec.Command))
	}
	hostConfig := &container.HostConfig{
		AutoRemove:   true,
		PortBindings: bindings,
		Binds:        spec.Binds,
		Resources:    resources,
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	resp, err := r.cli.ContainerCreate(ctx, config, hostConfig, nil, nil, spec.Name)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return "", &RuntimeError{Kind: RuntimeImageNotFound, Op: "create", Err: err}
		}
		return "", r.classify("create", "", err)
	}

	if err := r.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		// 启动失败的容器不能留下，清理后再报错
		_ = r.cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return "", r.classify("start", resp.ID, err)
	}

	return resp.ID, nil
}

// ResolvePorts 获取容器实际绑定的端口映射，key 为去掉协议后缀的内部端口
func (r *DockerRuntime) ResolvePorts(ctx context.Context, instanceID string) (map[string]string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	info, err := r.cli.ContainerInspect(ctx, instanceID)
	if err != nil {
		return nil, r.classify("inspect", instanceID, err)
	}

	mapping := make(map[string]string)
	if info.NetworkSettings == nil {
		return mapping, nil
	}
	for port, hostBindings := range info.NetworkSettings.Ports {
		if len(hostBindings) == 0 {
			continue
		}
		internal := strings.SplitN(string(port), "/", 2)[0]
		// 同一内部端口可能有多条绑定（IPv4/IPv6），只取第一条
		mapping[internal] = hostBindings[0].HostPort
	}
	return mapping, nil
}

// StopInstance 强制移除容器。容器已不存在视为成功，保证幂等。
func (r *DockerRuntime) StopInstance(ctx context.Context, instanceID string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	err := r.cli.ContainerRemove(ctx, instanceID, container.RemoveOptions{Force: true})
	if err != nil && !errdefs.IsNotFound(err) {
		return r.classify("remove", instanceID, err)
	}
	return nil
}

// ListLiveInstanceIDs 列出当前所有存活容器的 ID 集合
func (r *DockerRuntime) ListLiveInstanceIDs(ctx context.Context) (map[string]struct{}, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	containers, err := r.cli.ContainerList(ctx, container.ListOptions{})
	if err != nil {
		return nil, r.classify("list", "", err)
	}
	ids := make(map[string]struct{}, len(containers))
	for _, c := range containers {
		ids[c.ID] = struct{}{}
	}
	return ids, nil
}

// splitCommand 按空白拆分题目启动命令，单双引号内的空格不拆，
// 保证 sh -c "a b" 这类命令原样传给容器
func splitCommand(s string) []string {
	var args []string
	var cur strings.Builder
	var quote rune
	inToken := false
	for _, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inToken = true
		case r == ' ' || r == '\t' || r == '\n':
			if inToken {
				args = append(args, cur.String())
				cur.Reset()
				inToken = false
			}
		default:
			cur.WriteRune(r)
			inToken = true
		}
	}
	if inToken {
		args = append(args, cur.String())
	}
	return args
}

// classify 将 Docker SDK 错误收敛为本包的错误分类
func (r *DockerRuntime) classify(op, instanceID string, err error) error {
	switch {
	case client.IsErrConnectionFailed(err):
		return &ConnectionError{Op: op, Err: err}
	case errdefs.IsNotFound(err):
		return &RuntimeError{Kind: RuntimeInstanceNotFound, Op: op, InstanceID: instanceID, Err: err}
	case errdefs.IsInvalidParameter(err):
		return &RuntimeError{Kind: RuntimeInvalidSpec, Op: op, InstanceID: instanceID, Err: err}
	default:
		return &RuntimeError{Kind: RuntimeDaemonError, Op: op, InstanceID: instanceID, Err: err}
	}
}

package ssh

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"example.com/mtui/pkg/config"
	"example.com/mtui/pkg/logger"
	"example.com/mtui/pkg/models"
	"example.com/mtui/pkg/utils/concurrent"
	"golang.org/x/crypto/ssh"
	"golang.org/x/sync/singleflight"
)

const (
	defaultIdentity   = "default"
	keepAliveInterval = 30 * time.Second
)

// Connector 负责创建 SSH 连接
type Connector struct {
	Config config.ConfigProvider
	// KnownHosts overrides ~/.ssh/known_hosts.
	KnownHosts  string
	DialTimeout time.Duration

	// 连接池：缓存 nodeName -> *ssh.Client
	clients *concurrent.Map[string, *ssh.Client]
	// singleflight 组，用来控制并发和去重
	sf     singleflight.Group
	ctx    context.Context
	cancel context.CancelFunc
}

// NewConnector 创建一个新的 Connector
func NewConnector(cfg config.ConfigProvider) *Connector {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connector{
		Config:      cfg,
		DialTimeout: 15 * time.Second,
		clients:     concurrent.NewMap[string, *ssh.Client](concurrent.HashString),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Resolve maps operator input to a node name. Hosts missing from the
// inventory are registered on the fly as root@input:22 using the agent.
func (c *Connector) Resolve(input string) string {
	if name := c.Config.Find(input); name != "" {
		return name
	}
	host, port := input, uint16(22)
	if h, p, err := net.SplitHostPort(input); err == nil {
		if n, err := strconv.ParseUint(p, 10, 16); err == nil {
			host, port = h, uint16(n)
		}
	}
	if _, ok := c.Config.GetIdentity(defaultIdentity); !ok {
		c.Config.AddIdentity(defaultIdentity, models.Identity{User: "root", AuthType: "agent"})
	}
	c.Config.AddHost(host, models.Host{Address: host, Port: port})
	c.Config.AddNode(host, models.Node{HostRef: host, IdentityRef: defaultIdentity})
	return host
}

// Connect 根据节点名称建立 SSH 连接
// 自动处理跳板机逻辑：如果节点配置了 ProxyJump，会递归建立连接
func (c *Connector) Connect(ctx context.Context, nodeName string) (*Client, error) {
	if client, ok := c.cached(nodeName); ok {
		return client, nil
	}
	// 即使多个协程同时调 Connect(host)，Do 里面的函数只会执行一次
	result, err, _ := c.sf.Do(nodeName, func() (interface{}, error) {
		if client, ok := c.cached(nodeName); ok {
			return client, nil
		}
		return c.dial(ctx, nodeName)
	})
	if err != nil {
		return nil, err
	}
	return result.(*Client), nil
}

// Reconnect drops the cached connection for nodeName and dials again.
func (c *Connector) Reconnect(ctx context.Context, nodeName string) (*Client, error) {
	c.Drop(nodeName)
	return c.Connect(ctx, nodeName)
}

// Drop closes and forgets the cached connection for nodeName.
func (c *Connector) Drop(nodeName string) {
	if raw, ok := c.clients.Pop(nodeName); ok {
		raw.Close()
	}
}

func (c *Connector) cached(nodeName string) (*Client, bool) {
	raw, ok := c.clients.Get(nodeName)
	if !ok {
		return nil, false
	}
	node, _ := c.Config.GetNode(nodeName)
	host, _ := c.Config.GetHost(nodeName)
	return NewClient(raw, nodeName, node, host), true
}

func (c *Connector) dial(ctx context.Context, nodeName string) (*Client, error) {
	node, ok := c.Config.GetNode(nodeName)
	if !ok {
		return nil, fmt.Errorf("node not found '%s'", nodeName)
	}
	host, ok := c.Config.GetHost(nodeName)
	if !ok {
		return nil, fmt.Errorf("host ref '%s' not found for node '%s'", node.HostRef, nodeName)
	}
	identity, ok := c.Config.GetIdentity(nodeName)
	if !ok {
		return nil, fmt.Errorf("identity ref '%s' not found for node '%s'", node.IdentityRef, nodeName)
	}

	var dialer Dialer = &net.Dialer{Timeout: c.DialTimeout}
	if node.ProxyJump != "" {
		jumpHost := c.Config.Find(node.ProxyJump)
		if jumpHost == "" {
			jumpHost = node.ProxyJump
		}
		jump, err := c.Connect(ctx, jumpHost)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to jump host '%s': %w", node.ProxyJump, err)
		}
		dialer = jumpDialer{client: jump.sshClient}
	}

	auth, err := authMethods(identity)
	if err != nil {
		return nil, fmt.Errorf("failed to build ssh config for '%s': %w", nodeName, err)
	}
	hostKeys, err := hostKeyCallback(c.KnownHosts)
	if err != nil {
		return nil, fmt.Errorf("failed to load known hosts: %w", err)
	}
	sshConfig := &ssh.ClientConfig{
		User:            identity.User,
		Auth:            auth,
		HostKeyCallback: hostKeys,
		Timeout:         c.DialTimeout,
	}

	port := host.Port
	if port == 0 {
		port = 22
	}
	targetAddr := net.JoinHostPort(host.Address, strconv.Itoa(int(port)))
	conn, err := dialer.DialContext(ctx, "tcp", targetAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial target '%s' (%s): %w", nodeName, targetAddr, err)
	}

	ncc, chans, reqs, err := ssh.NewClientConn(conn, targetAddr, sshConfig)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake failed for '%s': %w", nodeName, err)
	}
	raw := ssh.NewClient(ncc, chans, reqs)
	c.clients.Set(nodeName, raw)

	startKeepAlive(c.ctx, raw, keepAliveInterval, func(err error) {
		logger.Logger.Debug().Str("host", nodeName).Err(err).Msg("connection lost")
		if cur, ok := c.clients.Get(nodeName); ok && cur == raw {
			c.clients.Remove(nodeName)
		}
	})
	return NewClient(raw, nodeName, node, host), nil
}

// CloseAll 关闭所有缓存的连接 (在程序退出前调用)
func (c *Connector) CloseAll() {
	c.cancel()
	c.clients.IterCb(func(name string, client *ssh.Client) bool {
		client.Close()
		return true
	})
	c.clients.Clear()
}

package sftp

import (
	"fmt"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// Option 定义配置函数的类型
type Option func(*Client)

func WithConcurrentFiles(con int) Option {
	return func(c *Client) {
		if con > 0 {
			c.config.ConcurrentFiles = con
		}
	}
}

func WithChunkSize(size int) Option {
	return func(c *Client) {
		if size > 0 {
			c.config.ChunkSize = size
		}
	}
}

// Client 包装了 sftp.Client
type Client struct {
	sftpClient *sftp.Client
	config     TransferConfig
}

// NewClient 基于现有的 SSH 连接创建一个 SFTP 客户端
// 复用已经建立好的连接 (包括跳板机隧道)
func NewClient(conn *ssh.Client, opts ...Option) (*Client, error) {
	client, err := sftp.NewClient(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to create sftp subsystem: %w", err)
	}
	return newFromSFTP(client, opts...), nil
}

// Close 关闭 SFTP 会话, 不会关闭底层的 SSH 连接
func (c *Client) Close() error {
	return c.sftpClient.Close()
}

// JoinPath 处理远程路径拼接 (SFTP 协议强制使用 forward slash)
func (c *Client) JoinPath(elem ...string) string {
	return c.sftpClient.Join(elem...)
}

func newFromSFTP(client *sftp.Client, opts ...Option) *Client {
	c := &Client{sftpClient: client, config: DefaultConfig()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

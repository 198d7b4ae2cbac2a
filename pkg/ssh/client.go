package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"example.com/mtui/pkg/models"
	"golang.org/x/crypto/ssh"
)

type Client struct {
	sshClient *ssh.Client
	name      string
	node      models.Node
	host      models.Host
}

func NewClient(raw *ssh.Client, name string, node models.Node, host models.Host) *Client {
	return &Client{
		sshClient: raw,
		name:      name,
		node:      node,
		host:      host,
	}
}

// Close 关闭连接
func (c *Client) Close() error {
	return c.sshClient.Close()
}

// SSHClient 暴露底层的 ssh.Client (供 SFTP 使用)
func (c *Client) SSHClient() *ssh.Client {
	return c.sshClient
}

func (c *Client) Name() string {
	return c.name
}

// Node 返回当前连接对应的节点配置
func (c *Client) Node() models.Node {
	return c.node
}

// Address returns the address the connection was dialled on.
func (c *Client) Address() string {
	return c.host.Address
}

// Run executes cmd in a new session. A non-zero exit status is reported
// in Output and is not an error; err is set only when the command could
// not be run to completion.
func (c *Client) Run(ctx context.Context, cmd string) (Output, error) {
	session, err := c.sshClient.NewSession()
	if err != nil {
		return Output{ExitCode: -1}, fmt.Errorf("failed to open session on %s: %w", c.name, err)
	}
	defer session.Close()

	return startWithTimeout(ctx, session, cmd)
}

func startWithTimeout(ctx context.Context, session *ssh.Session, command string) (Output, error) {
	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	if err := session.Start(command); err != nil {
		return Output{ExitCode: -1}, fmt.Errorf("failed to start command: %w", err)
	}
	done := make(chan error, 1)
	go func() {
		done <- session.Wait()
	}()

	select {
	case err := <-done:
		out := Output{Stdout: stdout.String(), Stderr: stderr.String()}
		var exitErr *ssh.ExitError
		var missing *ssh.ExitMissingError
		switch {
		case err == nil:
			return out, nil
		case errors.As(err, &exitErr):
			out.ExitCode = exitErr.ExitStatus()
			return out, nil
		case errors.As(err, &missing):
			out.ExitCode = -1
			return out, nil
		default:
			out.ExitCode = -1
			return out, fmt.Errorf("failed to run command: %w", err)
		}
	case <-ctx.Done():
		// 上下文取消，尝试终止命令
		_ = session.Signal(ssh.SIGKILL)
		return Output{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: -1}, ctx.Err()
	}
}

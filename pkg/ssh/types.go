package ssh

import (
	"context"
	"net"
)

// Dialer 定义网络连接行为的接口
// 用于统一 "直连" 和 "通过 SSH 跳板机连接" 的行为
type Dialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

// Output is what one remote command produced. ExitCode is -1 when the
// server closed the channel without an exit status.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

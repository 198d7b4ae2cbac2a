package ssh

import (
	"context"
	"net"

	"golang.org/x/crypto/ssh"
)

// jumpDialer 通过跳板机的 SSH 隧道建立 TCP 连接
type jumpDialer struct {
	client *ssh.Client
}

func (j jumpDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := j.client.Dial(network, addr)
		ch <- result{conn, err}
	}()

	select {
	case <-ctx.Done():
		// 晚到的连接需要关闭
		go func() {
			if res := <-ch; res.conn != nil {
				res.conn.Close()
			}
		}()
		return nil, ctx.Err()
	case res := <-ch:
		return res.conn, res.err
	}
}

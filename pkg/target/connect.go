package target

import (
	"context"
	"net"
	"strconv"
	"time"

	"example.com/mtui/pkg/executor"
	"example.com/mtui/pkg/ssh"
	"example.com/mtui/pkg/sftp"
)

// Settings are the console wide values every connected target gets.
type Settings struct {
	Session        Session
	Timeout        time.Duration
	ReconnectDelay time.Duration
	State          State
	// Transfers bounds the files copied at once per host, 0 keeps the default.
	Transfers int
}

// Connect dials the inventory node name and returns a ready target. The
// transactional flag comes from the inventory or, when unset there, from
// whether the root filesystem is mounted read-only.
func Connect(ctx context.Context, c *ssh.Connector, name string, s Settings) (*Target, error) {
	dial := func(ctx context.Context, reconnect bool) (*ssh.Client, executor.Executor, FileTransfer, error) {
		var client *ssh.Client
		var err error
		if reconnect {
			client, err = c.Reconnect(ctx, name)
		} else {
			client, err = c.Connect(ctx, name)
		}
		if err != nil {
			return nil, nil, nil, err
		}
		files, err := sftp.NewClient(client.SSHClient(), sftp.WithConcurrentFiles(s.Transfers))
		if err != nil {
			return nil, nil, nil, err
		}
		return client, executor.NewSSHExecutor(client, 0), files, nil
	}

	client, exec, files, err := dial(ctx, false)
	if err != nil {
		return nil, err
	}
	node := client.Node()
	addr := client.Address()
	if host, ok := c.Config.GetHost(name); ok && host.Port != 0 {
		addr = net.JoinHostPort(host.Address, strconv.Itoa(int(host.Port)))
	}

	state := s.State
	if state == "" {
		state = Enabled
	}
	t := New(name,
		WithAddress(addr),
		WithSystem(node.System),
		WithTransactional(node.Transactional),
		WithExecutor(exec),
		WithFiles(files),
		WithSession(s.Session),
		WithTimeout(s.Timeout),
		WithState(state),
		WithDialer(func(ctx context.Context) (executor.Executor, FileTransfer, error) {
			_, exec, files, err := dial(ctx, true)
			return exec, files, err
		}, s.ReconnectDelay),
	)

	if !t.transactional {
		if r, err := t.runQuiet(ctx, "findmnt -n -o OPTIONS / | tr , '\\n' | grep -qx ro"); err == nil && r.ExitCode == 0 {
			t.transactional = true
		}
	}
	if err := t.RefreshProducts(ctx); err != nil {
		t.log.Debug().Err(err).Msg("no product information")
	}
	return t, nil
}

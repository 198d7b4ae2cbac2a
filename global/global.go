package global

import (
	"io"
	"os"

	"golang.org/x/term"
)

var (
	IsTerminal bool = term.IsTerminal(int(os.Stdin.Fd())) //是否是交互式环境,false表示可能是管道或重定向
)

// Progress is where spinners are drawn. Non interactive runs get none.
func Progress() io.Writer {
	if IsTerminal {
		return os.Stderr
	}
	return io.Discard
}

package kernel

import (
	"os"

	"github.com/wnxd/greet-linux/debugger"
)

type prctl struct {
}

func (k *prctl) getpid(ctx debugger.Context) pid_t {
	return pid_t(os.Getpid())
}

func (k *prctl) gettid(ctx debugger.Context) pid_t {
	return pid_t(ctx.TaskID())
}

package linux

import (
	"github.com/wnxd/greet-linux/debugger"
)

type Debugger interface {
	debugger.Debugger
	Kernel
}

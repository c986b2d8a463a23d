//go:build unix

package main

import "github.com/wnxd/greet-linux/greeting"

func main() {
	greeting.Emit()
}

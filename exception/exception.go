package exception

import (
	"fmt"
	"runtime/debug"

	"github.com/mezonai/devnode/logx"
	"github.com/mezonai/devnode/monitoring"
)

// SafeGo runs fn in a goroutine and logs instead of crashing on panic.
func SafeGo(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				monitoring.IncreasePanicCount()
				logx.Error("PANIC", fmt.Sprintf("Recovered panic | goroutine=%s | panic=%v\n%s", name, r, debug.Stack()))
			}
		}()
		fn()
	}()
}

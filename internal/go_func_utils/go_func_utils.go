package go_func_utils

import (
	"log"
	"runtime/debug"
	"sync"
)

// SafeGo runs fn on a new goroutine and logs any panic with its stack before
// re-panicking. The dashboard owns the terminal, so a panic printed to stderr
// would otherwise be lost.
func SafeGo(logger *log.Logger, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Printf("PANIC: %v\n%s", r, debug.Stack())
				panic(r)
			}
		}()
		fn()
	}()
}

// Group tracks goroutines started through SafeGo so owners can wait for them
// during shutdown.
type Group struct {
	logger *log.Logger
	wg     sync.WaitGroup
}

func NewGroup(logger *log.Logger) *Group {
	if logger == nil {
		panic("Group: logger cannot be nil")
	}
	return &Group{logger: logger}
}

// Go starts fn under the group.
func (g *Group) Go(fn func()) {
	g.wg.Add(1)
	SafeGo(g.logger, func() {
		defer g.wg.Done()
		fn()
	})
}

// Wait blocks until every goroutine started with Go has returned.
func (g *Group) Wait() {
	g.wg.Wait()
}

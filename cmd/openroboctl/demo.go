package main

import (
	"fmt"

	"github.com/openrobo/openrobo/message"
	"github.com/openrobo/openrobo/runtime"
)

// registerDemoOperations wires a minimal operation table so a freshly
// built process has something to Start against out of the box. Adapted
// from the teacher's service/example.Example: the same "say hello and
// exit cleanly" shape, rebuilt as an OperationFunc instead of a
// voltron.Service.
func registerDemoOperations(rt *runtime.Runtime) {
	rt.RegisterOperation("ping", pingOperation)
}

// pingOperation replies Success immediately, logging its own thread-ID
// and its caller's, then waits cooperatively for a Stop before exiting.
func pingOperation(w *runtime.Worker, args *message.Message) int {
	src, _ := args.SourceID()
	fmt.Printf("openrobo: ping from %s, running as %s\n", src, w.ThreadID())

	w.WaitForStopMessage()
	return int(runtime.Success)
}

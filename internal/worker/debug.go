package worker

import (
	"log"
	"os"
)

// debugf is a no-op unless NUTRIPLAN_WORKER_DEBUG=1 at startup, keeping
// scheduling chatter out of production logs.
var debugf = func(format string, args ...any) {}

func init() {
	if os.Getenv("NUTRIPLAN_WORKER_DEBUG") == "1" {
		debugf = log.Printf
	}
}

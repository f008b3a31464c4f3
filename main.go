// updrift inspects running Docker Compose containers and Swarm services and
// reports pending restarts, image pulls, and tag updates.
package main

import (
	"github.com/updrift/updrift/cmd"
)

// main is the entry point, deferring execution to the cmd package.
func main() {
	cmd.Execute()
}

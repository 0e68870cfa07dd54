// Command relaynode is a demo binary wiring a file-serving and a
// media-serving mesh node together in-process, exercising the engine in
// device/node without any real radio transport.
package main

import (
	"fmt"
	"os"

	"github.com/dronemesh/relaynode/cmd/relaynode/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

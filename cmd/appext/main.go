// Command appext plugs configuration extensions into host instances,
// inspects them, converts extension sources and serves the automation
// gateway.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd(&app{}).Execute(); err != nil {
		os.Exit(1)
	}
}

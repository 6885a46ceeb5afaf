// Command txtask runs the HTTP submission server, task workers and schema
// migrations for transactional task dispatch.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

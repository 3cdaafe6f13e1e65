// Command visitorctl runs the visitor counter and renewal services outside
// Lambda: as a local HTTP server, or one operation at a time.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

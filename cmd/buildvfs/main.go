// buildvfs validates recorded build-input fingerprints against a cached
// view of the file system.
package main

import "github.com/albertocavalcante/buildvfs/cmd/buildvfs/internal/cli"

func main() {
	cli.Execute()
}

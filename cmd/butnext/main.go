// Command butnext is the CLI front end for the backup engine: init, backup,
// list, diff, restore, prune, verify, and watch.
package main

import "os"

func main() {
	os.Exit(run())
}

func run() int {
	if err := RootCmd.Execute(); err != nil {
		return exitCode(err)
	}
	return exitCodeOK
}

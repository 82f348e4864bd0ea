package main

import (
	"fmt"
	"os"

	"iphone-alarms-sync/internal/adapter/primary/cli"
	"iphone-alarms-sync/internal/logging"
)

func main() {
	err := cli.NewRootCmd().Execute()
	logging.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

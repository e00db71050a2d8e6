// Command linotyped runs the linotype publication daemon: the job workflow
// worker plus the HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"linotype/internal/daemonrun"
)

func main() {
	var opts daemonrun.Options
	flag.StringVar(&opts.ConfigPath, "config", "", "configuration file path")
	flag.StringVar(&opts.LogLevel, "log-level", "", "override configured log level")
	flag.Parse()

	if err := daemonrun.Run(context.Background(), opts); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

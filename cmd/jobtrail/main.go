// Command jobtrail runs the email webhook server and its maintenance tools.
package main

import (
	"context"
	"os"

	"github.com/nickd290/jobtrail/internal/cli"
)

func main() {
	os.Exit(cli.Run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ngbuild/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	result, err := cli.Run(ctx, os.Args[1:], cli.IO{In: os.Stdin, Out: os.Stdout, Err: os.Stderr})
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "ngbuild:", err)
	}
	os.Exit(result.ExitCode)
}

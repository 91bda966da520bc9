package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/standardbeagle/logscope/internal/debug"
	"github.com/standardbeagle/logscope/internal/mcpserver"

	"github.com/urfave/cli/v2"
)

var mcpCommand = &cli.Command{
	Name:  "mcp",
	Usage: "Start the MCP (Model Context Protocol) server over stdio",
	Action: func(c *cli.Context) error {
		debug.SetQuietMode(true)

		server, err := mcpserver.New(sess, sess.Config(), baselineStorePath())
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

		errChan := make(chan error, 1)
		go func() {
			errChan <- server.Run(ctx)
		}()

		select {
		case err := <-errChan:
			return err
		case <-sigChan:
			cancel()
			return <-errChan
		}
	},
}

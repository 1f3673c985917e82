package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/atotto/clipboard"

	"voxmcp/config"
	"voxmcp/log"
	"voxmcp/mcp"
	"voxmcp/session"
	"voxmcp/shutdown"
)

type cliRunner struct {
	svc    *session.Service
	opts   config.Options
	view   *statusView
	copy   bool
	stdout io.Writer
	stderr io.Writer
}

// listen records one session and prints its transcript.
func (c *cliRunner) listen(ctx context.Context) int {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.view.start(c.opts.Session, c.svc.EngineName(), func() { c.svc.Stop() }, cancel)
	res, err := c.svc.Listen(ctx, c.opts.Session)
	c.view.finish(res)

	for _, path := range res.Artifacts {
		log.Infof("saved %s", path)
	}
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %s\n", mcp.ErrorMessage(err))
		return exitCode(err)
	}
	return c.emit(res.Text)
}

func (c *cliRunner) transcribeFile(ctx context.Context, path string) int {
	text, err := c.svc.TranscribeFile(ctx, path)
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %s\n", mcp.ErrorMessage(err))
		return exitCode(err)
	}
	return c.emit(text)
}

func (c *cliRunner) emit(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		log.Info("no speech detected")
		return exitOK
	}
	fmt.Fprintln(c.stdout, text)
	if c.copy {
		if err := clipboard.WriteAll(text); err != nil {
			log.Warnf("copy to clipboard: %v", err)
		}
	}
	return exitOK
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, config.ErrConfig):
		return exitConfig
	case errors.Is(err, session.ErrSessionBusy):
		return exitBusy
	case errors.Is(err, session.ErrCancelled), errors.Is(err, context.Canceled):
		return shutdown.ExitInterrupted
	default:
		return exitFailure
	}
}

package api

import (
	"context"
	"fmt"
	"time"

	"github.com/InsightXR/recorder/internal/dispatcher"
	"github.com/InsightXR/recorder/internal/util"
)

// Command names understood by RegisterCommands.
const (
	CmdStart       = ":START:"
	CmdStop        = ":STOP:"
	CmdEvent       = ":EVENT:"
	CmdState       = ":STATE:"
	CmdReplayStart = ":REPLAY:START:"
	CmdReplayStop  = ":REPLAY:STOP:"
	CmdFlush       = ":FLUSH:"
)

const flushTimeout = 5 * time.Minute

// RegisterCommands exposes the facade on d.
//
//	:START:                      start recording
//	:STOP: [upload] [closeAfter] stop; upload defaults to true, closeAfter to false
//	:EVENT: label                log a labeled event
//	:STATE:                      idle, recording or replaying
//	:REPLAY:START: / :REPLAY:STOP:
//	:FLUSH:                      re-send spooled sessions in the background
func (a *API) RegisterCommands(d *dispatcher.Dispatcher) {
	d.Register(CmdStart, func(c dispatcher.Command) (any, error) {
		if err := a.StartRecording(); err != nil {
			return nil, err
		}
		return "ok", nil
	}, dispatcher.Logged())

	d.Register(CmdStop, func(c dispatcher.Command) (any, error) {
		upload := util.ParseBool(c.Arg(0), true)
		closeAfter := util.ParseBool(c.Arg(1), false)
		save, err := a.StopRecording(upload, closeAfter)
		if err != nil {
			return nil, err
		}
		return save.SessionID, nil
	}, dispatcher.Logged())

	d.Register(CmdEvent, func(c dispatcher.Command) (any, error) {
		label := c.Arg(0)
		if label == "" {
			return nil, fmt.Errorf("%s requires a label", CmdEvent)
		}
		a.LogEvent(label)
		return "ok", nil
	})

	d.Register(CmdState, func(c dispatcher.Command) (any, error) {
		return a.State(), nil
	})

	d.Register(CmdReplayStart, func(c dispatcher.Command) (any, error) {
		if err := a.EnterReplay(); err != nil {
			return nil, err
		}
		return "ok", nil
	}, dispatcher.Logged())

	d.Register(CmdReplayStop, func(c dispatcher.Command) (any, error) {
		if err := a.ExitReplay(); err != nil {
			return nil, err
		}
		return "ok", nil
	}, dispatcher.Logged())

	d.Register(CmdFlush, func(c dispatcher.Command) (any, error) {
		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		defer cancel()
		n, err := a.FlushSpool(ctx)
		if err != nil {
			return nil, err
		}
		a.log.Info("Spool flushed", "uploaded", n)
		return n, nil
	}, dispatcher.Buffered(4), dispatcher.Logged())
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pigpio

import (
	"context"
	"log/slog"
)

// NewLoggedCommander wraps a Commander and logs every exchange at level.
// Failed exchanges are always logged at error level.
func NewLoggedCommander(inner Commander, logger *slog.Logger, level slog.Level) Commander {
	return &loggedCommander{
		inner:  inner,
		logger: logger,
		level:  level,
	}
}

type loggedCommander struct {
	inner  Commander
	logger *slog.Logger
	level  slog.Level
}

func (l *loggedCommander) Send(cmd Command, ext []byte, buf []byte) (Response, error) {
	resp, err := l.inner.Send(cmd, ext, buf)
	if err != nil {
		l.logger.Log(context.Background(), slog.LevelError, "pigpio exchange failed",
			"cmd", CommandName(cmd.Cmd),
			"p1", cmd.P1,
			"p2", cmd.P2,
			"ext_len", len(ext),
			"error", err,
		)
		return resp, err
	}
	l.logger.Log(context.Background(), l.level, "pigpio exchange",
		"cmd", CommandName(cmd.Cmd),
		"p1", cmd.P1,
		"p2", cmd.P2,
		"result", resp.Result(),
		"ext_len", len(resp.Ext),
	)
	return resp, nil
}

// Copyright 2022 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"time"

	"golang.org/x/time/rate"
)

// depthLogger is implemented by loggers that can attribute a message to a
// caller further up the stack, such as BasicLogger.
type depthLogger interface {
	DebugfAtDepth(depth int, format string, v ...any)
	InfofAtDepth(depth int, format string, v ...any)
	WarningfAtDepth(depth int, format string, v ...any)
}

// rateLimitedLogger drops messages once its limiter runs dry. Warnings are
// never dropped.
type rateLimitedLogger struct {
	logger Logger
	limit  *rate.Limiter
}

func (rl *rateLimitedLogger) Debugf(format string, v ...any) {
	if !rl.limit.Allow() {
		return
	}
	if dl, ok := rl.logger.(depthLogger); ok {
		dl.DebugfAtDepth(1, format, v...)
		return
	}
	rl.logger.Debugf(format, v...)
}

func (rl *rateLimitedLogger) Infof(format string, v ...any) {
	if !rl.limit.Allow() {
		return
	}
	if dl, ok := rl.logger.(depthLogger); ok {
		dl.InfofAtDepth(1, format, v...)
		return
	}
	rl.logger.Infof(format, v...)
}

func (rl *rateLimitedLogger) Warningf(format string, v ...any) {
	if dl, ok := rl.logger.(depthLogger); ok {
		dl.WarningfAtDepth(1, format, v...)
		return
	}
	rl.logger.Warningf(format, v...)
}

func (rl *rateLimitedLogger) IsLogging(level Level) bool {
	return rl.logger.IsLogging(level)
}

// RateLimitedLogger returns a Logger that passes at most one debug or info
// message per every to logger.
func RateLimitedLogger(logger Logger, every time.Duration) Logger {
	return &rateLimitedLogger{
		logger: logger,
		limit:  rate.NewLimiter(rate.Every(every), 1),
	}
}

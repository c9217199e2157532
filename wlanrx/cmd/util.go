// Copyright 2026 The gVisor Authors.
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

// Package cmd holds implementations of the wlanrx commands.
package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"
	"gvisor.dev/wlan/pkg/log"
)

// ErrorLogger is where error messages should be written to, in addition to
// the debug log. A nil ErrorLogger writes to stderr only.
var ErrorLogger io.Writer

// Errorf logs an error and returns subcommands.ExitFailure. The message is
// written to stderr and ErrorLogger.
func Errorf(format string, args ...any) subcommands.ExitStatus {
	printError(format, args...)
	return subcommands.ExitFailure
}

// Fatalf logs the same way as Errorf() does, plus *exits* the process.
func Fatalf(format string, args ...any) {
	printError(format, args...)
	// Return an error that is unlikely to be used by the application.
	os.Exit(128)
}

func printError(format string, args ...any) {
	log.Warningf("FATAL ERROR: "+format, args...)
	msg := fmt.Sprintf("wlanrx: "+format+"\n", args...)
	fmt.Fprint(os.Stderr, msg)
	if ErrorLogger != nil {
		_, _ = ErrorLogger.Write([]byte(msg))
	}
}

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

// Package cli is the main entrypoint for wlanrx.
package cli

import (
	"context"
	"flag"
	"io"
	"os"
	"runtime"

	"github.com/google/subcommands"
	"gvisor.dev/wlan/pkg/log"
	"gvisor.dev/wlan/wlanrx/cmd"
	"gvisor.dev/wlan/wlanrx/config"
)

var (
	configPath = flag.String("config", "", "configuration file, TOML or YAML by extension. Defaults are used if unset.")
	logFile    = flag.String("log", "", "file to append logs to, in addition to stderr.")
	logFormat  = flag.String("log-format", "", "log format: text or json. Overrides the configuration file.")
	debug      = flag.Bool("debug", false, "enable debug logging.")
)

// Main is the main entrypoint.
func Main() {
	// Register all commands.
	forEachCmd(subcommands.Register)

	// All subcommands must be registered before flag parsing.
	flag.Parse()

	conf := config.NewDefault()
	if *configPath != "" {
		var err error
		if conf, err = config.Load(*configPath); err != nil {
			cmd.Fatalf("%v", err)
		}
	}
	if *logFormat != "" {
		conf.LogFormat = *logFormat
	}
	if *debug {
		conf.LogLevel = "debug"
	}
	level, err := log.ParseLevel(conf.LogLevel)
	if err != nil {
		cmd.Fatalf("%v", err)
	}
	log.SetLevel(level)

	emitters := log.MultiEmitter{newEmitter(conf.LogFormat, os.Stderr)}
	if *logFile != "" {
		f, err := log.OpenFile(*logFile)
		if err != nil {
			cmd.Fatalf("%v", err)
		}
		emitters = append(emitters, newEmitter(conf.LogFormat, f))
		cmd.ErrorLogger = f
	}
	switch len(emitters) {
	case 1:
		// Use the singular emitter to avoid needless
		// `for` loop overhead when logging to a single place.
		log.SetTarget(emitters[0])
	default:
		log.SetTarget(&emitters)
	}

	const delimString = `**************** wlanrx ****************`
	log.Infof(delimString)
	log.Infof("%s, %s, %d CPUs, %s, PID %d", runtime.Version(), runtime.GOARCH, runtime.NumCPU(), runtime.GOOS, os.Getpid())
	log.Infof("Args: %v", os.Args)
	conf.Log()
	log.Infof(delimString)

	// Call the subcommand and pass in the configuration.
	subcmdCode := subcommands.Execute(context.Background(), conf)
	if subcmdCode == subcommands.ExitSuccess {
		log.Infof("Exiting with status: %v", subcmdCode)
		os.Exit(0)
	}
	log.Warningf("Failure to execute command, err: %v", subcmdCode)
	os.Exit(int(subcmdCode))
}

// forEachCmd invokes the passed callback for each command supported by wlanrx.
func forEachCmd(cb func(cmd subcommands.Command, group string)) {
	// Help and flags commands are generated automatically.
	cb(subcommands.HelpCommand(), "")
	cb(subcommands.FlagsCommand(), "")

	cb(new(cmd.Replay), "")
	cb(new(cmd.Stations), "")
	registerPlatformCmds(cb)
}

func newEmitter(format string, logFile io.Writer) log.Emitter {
	switch format {
	case "text":
		return log.GoogleEmitter{Writer: &log.Writer{Next: logFile}}
	case "json":
		return log.JSONEmitter{Writer: &log.Writer{Next: logFile}}
	}
	cmd.Fatalf("invalid log format %q, must be 'text' or 'json'", format)
	panic("unreachable")
}

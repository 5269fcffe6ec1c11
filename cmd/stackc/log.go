package main

import (
	"flag"
	"strconv"

	"github.com/golang/glog"
)

// initLogging applies the logging flags to glog. glog reads its settings
// from the standard flag set, which cobra never parses.
func initLogging(logToStderr bool, verbose int) {
	if !flag.Parsed() {
		_ = flag.CommandLine.Parse(nil)
	}
	if logToStderr {
		_ = flag.Lookup("logtostderr").Value.Set("true")
	}
	if verbose > 0 {
		_ = flag.Lookup("v").Value.Set(strconv.Itoa(verbose))
	}
	glog.V(3).Infof("logging at verbosity %d", verbose)
}

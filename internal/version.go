package internal

import (
	"errors"
	"fmt"
	"io"
	"runtime/debug"
)

// Set with buildflag if built in pipeline and not using go install
var (
	BuildVersion  = ""
	BuildChecksum = ""
)

func printVersion(w io.Writer, withDeps bool) error {
	bi, ok := debug.ReadBuildInfo()
	if BuildVersion != "" {
		fmt.Fprintln(w, "version: "+BuildVersion)
	} else if ok {
		fmt.Fprintln(w, "version: "+bi.Main.Version)
	}
	if BuildChecksum != "" {
		fmt.Fprintln(w, "checksum: "+BuildChecksum)
	}
	if !ok {
		return errors.New("failed to read build info")
	}
	if !withDeps {
		return nil
	}
	for _, dep := range bi.Deps {
		fmt.Fprintf(w, "%s %s\n", dep.Path, dep.Version)
	}
	return nil
}

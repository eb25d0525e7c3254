package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/containerd/log"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/please-build/ustar"
)

const (
	exitOK      = 0
	exitFailure = 1

	// exitFatal is used when the archive is unusable or an input is missing.
	exitFatal = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	flags := pflag.NewFlagSet("tar", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.Usage = func() {
		fmt.Fprintln(stderr, "Usage: tar {-c|-x|-t} [-v] -f ARCHIVE [-C DIR] [FILE...]")
		flags.PrintDefaults()
	}
	var (
		create    = flags.BoolP("create", "c", false, "create a new archive")
		extract   = flags.BoolP("extract", "x", false, "extract files from an archive")
		list      = flags.BoolP("list", "t", false, "list the contents of an archive")
		archive   = flags.StringP("file", "f", "", "use archive file `ARCHIVE`")
		verbose   = flags.BoolP("verbose", "v", false, "verbosely list files processed")
		directory = flags.StringP("directory", "C", ".", "extract into `DIR`")
		workers   = flags.Int("workers", 1, "number of files to extract concurrently")
		debug     = flags.Bool("debug", false, "log debug messages to stderr")
	)
	if err := flags.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return exitOK
		}
		fmt.Fprintf(stderr, "tar: %s\n", err)
		return exitFailure
	}

	logger := logrus.New()
	logger.SetOutput(stderr)
	logger.SetLevel(logrus.WarnLevel)
	if *debug {
		logger.SetLevel(logrus.DebugLevel)
	}
	ctx := log.WithLogger(context.Background(), logrus.NewEntry(logger).WithField("archive", *archive))

	op, err := selectOperation(*create, *extract, *list, *archive, flags.Args())
	if err != nil {
		return report(stderr, err)
	}
	opts := []ustar.Option{
		ustar.WithVerbose(*verbose),
		ustar.WithOutput(stdout),
		ustar.WithDestination(*directory),
		ustar.WithWorkers(*workers),
	}
	log.G(ctx).WithField("operation", fmt.Sprintf("%T", op)).Debug("starting")
	if err := execute(ctx, op, opts); err != nil {
		return report(stderr, err)
	}
	return exitOK
}

// report prints err and returns the exit status for it.
func report(stderr io.Writer, err error) int {
	msg := err.Error()
	if !strings.HasPrefix(msg, "tar: ") {
		msg = "tar: " + msg
	}
	fmt.Fprintln(stderr, msg)
	switch ustar.KindOf(err) {
	case ustar.KindInvalidArchive, ustar.KindNotFound:
		return exitFatal
	}
	return exitFailure
}

package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/oxzi/gonslcd/internal"
)

const usageHint = "Try 'nslcd --help' for more information."

type cliOptions struct {
	configFile string
	configSet  bool

	debug       bool
	detached    string
	detachStage internal.DetachStage

	help    bool
	version bool
}

func newFlagSet(opts *cliOptions) *pflag.FlagSet {
	fs := pflag.NewFlagSet("nslcd", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.SortFlags = false

	fs.StringVarP(&opts.configFile, "config", "f", internal.DefaultConfigFile, "use `FILE` as configfile")
	fs.BoolVarP(&opts.debug, "debug", "d", false, "don't fork and print debugging to stderr")
	fs.BoolVar(&opts.help, "help", false, "display this help and exit")
	fs.BoolVar(&opts.version, "version", false, "output version information and exit")

	fs.StringVar(&opts.detached, internal.DetachedFlag, "", "internal, marks the background processes")
	_ = fs.MarkHidden(internal.DetachedFlag)

	return fs
}

func printUsage(w io.Writer, fs *pflag.FlagSet) {
	fmt.Fprintf(w, "Usage: nslcd [OPTION]...\n")
	fmt.Fprintf(w, "Name Service LDAP connection daemon.\n")
	fmt.Fprintf(w, "%s", fs.FlagUsages())
}

// usageError prints a single line, naming the problem and the help option.
func usageError(w io.Writer, msg string) {
	fmt.Fprintf(w, "nslcd: %s; %s\n", msg, usageHint)
}

// parseArgs parses the command line. If exit is set, the program should
// terminate with the status without starting the daemon.
func parseArgs(args []string, stdout, stderr io.Writer) (opts cliOptions, status int, exit bool) {
	fs := newFlagSet(&opts)

	err := fs.Parse(args)
	switch {
	case errors.Is(err, pflag.ErrHelp):
		opts.help = true

	case err != nil:
		usageError(stderr, err.Error())
		return opts, 1, true

	case fs.NArg() > 0:
		usageError(stderr, fmt.Sprintf("unrecognized option '%s'", fs.Arg(0)))
		return opts, 1, true
	}

	if fs.Changed(internal.DetachedFlag) {
		// Only Detach starts processes with this flag, never from a terminal.
		if stdinIsTerminal() {
			usageError(stderr, fmt.Sprintf("unrecognized option '--%s'", internal.DetachedFlag))
			return opts, 1, true
		}

		opts.detachStage, err = internal.ParseDetachStage(opts.detached)
		if err != nil {
			usageError(stderr, err.Error())
			return opts, 1, true
		}
	}

	if opts.help {
		printUsage(stdout, fs)
		return opts, 0, true
	}
	if opts.version {
		fmt.Fprintf(stdout, "nslcd %s\n", internal.Version)
		return opts, 0, true
	}

	opts.configSet = fs.Changed("config")
	return opts, 0, false
}

func main() {
	log.SetFormatter(&log.TextFormatter{DisableTimestamp: true})

	opts, status, exit := parseArgs(os.Args[1:], os.Stdout, os.Stderr)
	if exit {
		os.Exit(status)
	}

	conf, err := internal.LoadConfig(opts.configFile, opts.configSet)
	if err != nil {
		log.WithError(err).WithField("config", opts.configFile).Error("Cannot load configuration")
		os.Exit(1)
	}

	d := internal.NewDaemon(internal.Options{
		Debug:       opts.debug,
		DetachStage: opts.detachStage,
		Args:        os.Args[1:],
		Config:      conf,
	}, &internal.RequestHandler{})

	os.Exit(d.Run())
}

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/namsral/flag"
	log "github.com/sirupsen/logrus"
)

// VERSION stores the information about the semantic version of application
var VERSION = "dev"

// REVISION stores the information about the git revision of application
var REVISION = "HEAD"

const usage = "Usage: echo-probe [flags] URL\n\nURL uses the uwsgi://, http:// or https:// scheme, e.g. uwsgi://127.0.0.1:3031/foo?bar=1\n"

func main() {
	fs := flag.NewFlagSetWithEnvPrefix(os.Args[0], "ECHO_PROBE", flag.ExitOnError)

	var (
		opts        options
		showVersion = fs.Bool("version", false, "Show version")
	)

	fs.StringVar(&opts.method, "method", "GET", "The request method")
	fs.StringVar(&opts.host, "host", "", "Override the Host header of the request")
	fs.DurationVar(&opts.timeout, "timeout", 5*time.Second, "Timeout of the whole request")
	fs.BoolVar(&opts.include, "include", false, "Print the status line and response headers before the body")
	fs.BoolVar(&opts.insecure, "insecure", false, "Skip TLS certificate verification for https:// URLs")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fs.PrintDefaults()
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		log.WithError(err).Fatal("Failed to parse flags")
	}

	if *showVersion {
		fmt.Fprintf(os.Stdout, "%s-%s\n", VERSION, REVISION)
		os.Exit(0)
	}

	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(2)
	}

	opts.url = fs.Arg(0)

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	if err := run(ctx, opts, os.Stdout); err != nil {
		log.WithError(err).WithField("url", opts.url).Fatal("Probe failed")
	}
}

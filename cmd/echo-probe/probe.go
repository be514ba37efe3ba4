package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"gitlab.com/gitlab-org/request-echo/internal/uwsgi"
)

type options struct {
	url      string
	method   string
	host     string
	timeout  time.Duration
	include  bool
	insecure bool
}

func newClient(opts options) *http.Client {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: opts.insecure}, //nolint:gosec // opt-in via -insecure
	}
	uwsgi.RegisterProtocol(transport, &uwsgi.Transport{DialTimeout: opts.timeout})

	return &http.Client{Transport: transport}
}

// run sends one request and copies the response to w. Any status of 400 or
// above is reported as an error after the body has been written.
func run(ctx context.Context, opts options, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, opts.method, opts.url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	if opts.host != "" {
		req.Host = opts.host
	}

	client := newClient(opts)
	defer client.CloseIdleConnections()

	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if opts.include {
		if err := writeHead(w, res); err != nil {
			return err
		}
	}

	if _, err := io.Copy(w, res.Body); err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("unexpected status: %s", res.Status)
	}

	return nil
}

func writeHead(w io.Writer, res *http.Response) error {
	if _, err := fmt.Fprintf(w, "%s %s\n", res.Proto, res.Status); err != nil {
		return err
	}

	names := make([]string, 0, len(res.Header))
	for name := range res.Header {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		for _, value := range res.Header[name] {
			if _, err := fmt.Fprintf(w, "%s: %s\n", name, value); err != nil {
				return err
			}
		}
	}

	_, err := io.WriteString(w, "\n")
	return err
}

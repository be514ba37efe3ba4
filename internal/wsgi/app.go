package wsgi

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	errStartResponseCalledTwice = errors.New("start response called more than once")
	errStartResponseNotCalled   = errors.New("application returned without calling start response")
)

// Header is a single response header, kept as an ordered pair
type Header struct {
	Name  string
	Value string
}

// StartResponse declares the response status line, e.g. "200 OK", and
// headers. Hosts accept exactly one call per request.
type StartResponse func(status string, headers []Header) error

// App is an application served through a gateway host. Serve must call
// start exactly once before returning the body chunks.
type App interface {
	Serve(env Environ, start StartResponse) ([][]byte, error)
}

// AppFunc adapts a function to the App interface
type AppFunc func(env Environ, start StartResponse) ([][]byte, error)

// Serve calls f(env, start)
func (f AppFunc) Serve(env Environ, start StartResponse) ([][]byte, error) {
	return f(env, start)
}

// Response is what an App declared through StartResponse plus its body
type Response struct {
	Status  string
	Code    int
	Headers []Header
	Body    [][]byte
}

// ContentLength returns the total size of the body chunks
func (r *Response) ContentLength() int64 {
	var n int64
	for _, chunk := range r.Body {
		n += int64(len(chunk))
	}

	return n
}

type recorder struct {
	started bool
	resp    Response
}

func (rec *recorder) start(status string, headers []Header) error {
	if rec.started {
		return errStartResponseCalledTwice
	}

	code, err := ParseStatus(status)
	if err != nil {
		return err
	}

	rec.started = true
	rec.resp.Status = status
	rec.resp.Code = code
	rec.resp.Headers = append([]Header(nil), headers...)

	return nil
}

// Run calls app with env and collects the declared status, headers and
// body. Panics raised by app are returned as errors.
func Run(app App, env Environ) (resp *Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			resp = nil
			err = fmt.Errorf("application panic: %v", r)
		}
	}()

	rec := &recorder{}

	body, err := app.Serve(env, rec.start)
	if err != nil {
		return nil, err
	}

	if !rec.started {
		return nil, errStartResponseNotCalled
	}

	rec.resp.Body = body

	return &rec.resp, nil
}

// ParseStatus validates a "<code> <reason>" status line and returns the code
func ParseStatus(status string) (int, error) {
	codeStr, reason, found := strings.Cut(status, " ")
	if !found || len(codeStr) != 3 || reason == "" {
		return 0, fmt.Errorf("malformed status line %q", status)
	}

	code, err := strconv.Atoi(codeStr)
	if err != nil || code < 100 || code > 999 {
		return 0, fmt.Errorf("malformed status code in %q", status)
	}

	return code, nil
}

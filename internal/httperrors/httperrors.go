package httperrors

import (
	"fmt"
	"net/http"

	"gitlab.com/gitlab-org/request-echo/internal/errortracking"
	"gitlab.com/gitlab-org/request-echo/internal/logging"
)

type content struct {
	status    int
	title     string
	header    string
	subHeader string
}

var (
	content405 = content{
		status:    http.StatusMethodNotAllowed,
		title:     "Method Not Allowed (405)",
		header:    "Method not allowed.",
		subHeader: `<p>The request method is not supported by this server.</p>`,
	}
	content414 = content{
		status: http.StatusRequestURITooLong,
		title:  "Request URI Too Long (414)",
		header: "Request URI Too Long.",
		subHeader: `<p>The URI provided was too long for the server to process.</p>
    <p>Try to make the request URI shorter.</p>`,
	}
	content429 = content{
		status:    http.StatusTooManyRequests,
		title:     "Too many requests (429)",
		header:    "Too many requests.",
		subHeader: `<p>The resource that you are attempting to access is being rate limited.</p>`,
	}
	content500 = content{
		status: http.StatusInternalServerError,
		title:  "Something went wrong (500)",
		header: "Whoops, something went wrong on our end.",
		subHeader: `<p>Try again in a moment.</p>
    <p>Please contact the server administrator if this problem persists.</p>`,
	}
)

const predefinedErrorPage = `<!DOCTYPE html>
<html>
<head>
  <meta content="width=device-width, initial-scale=1" name="viewport">
  <title>%v</title>
  <style>
    body { color: #666; text-align: center; font-family: sans-serif; margin: auto; font-size: 14px; }
    h1 { font-size: 56px; line-height: 100px; font-weight: 400; color: #456; }
    h3 { color: #456; font-size: 20px; font-weight: 400; line-height: 28px; }
  </style>
</head>
<body>
  <h1>%d</h1>
  <h3>%v</h3>
  %v
</body>
</html>
`

func generateErrorHTML(c content) string {
	return fmt.Sprintf(predefinedErrorPage, c.title, c.status, c.header, c.subHeader)
}

func serveErrorPage(w http.ResponseWriter, c content) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(c.status)
	fmt.Fprintln(w, generateErrorHTML(c))
}

// Serve405 returns a 405 error response / HTML page to the http.ResponseWriter
func Serve405(w http.ResponseWriter) {
	serveErrorPage(w, content405)
}

// Serve414 returns a 414 error response / HTML page to the http.ResponseWriter
func Serve414(w http.ResponseWriter) {
	serveErrorPage(w, content414)
}

// Serve429 returns a 429 error response / HTML page to the http.ResponseWriter
func Serve429(w http.ResponseWriter) {
	serveErrorPage(w, content429)
}

// Serve500 returns a 500 error response / HTML page to the http.ResponseWriter
func Serve500(w http.ResponseWriter) {
	serveErrorPage(w, content500)
}

// Serve500WithRequest logs err with the request details, reports it and
// returns a 500 error response / HTML page to the http.ResponseWriter
func Serve500WithRequest(w http.ResponseWriter, r *http.Request, reason string, err error) {
	logging.LogRequest(r).WithError(err).Error(reason)
	errortracking.CaptureErrWithReqAndStackTrace(err, r)
	serveErrorPage(w, content500)
}

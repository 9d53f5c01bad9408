package fetch

import (
	"fmt"
	"mime"
	"net/http"
	"strings"
)

// Kind discriminates fetch outcomes.
type Kind int

const (
	Success Kind = iota + 1
	AuthRequired
	HTMLPage
	HTTPError
	Timeout
	NetworkError
	EmptyResponse
	Canceled
)

var kindNames = map[Kind]string{
	Success:       "success",
	AuthRequired:  "auth_required",
	HTMLPage:      "html_page",
	HTTPError:     "http_error",
	Timeout:       "timeout",
	NetworkError:  "network_error",
	EmptyResponse: "empty_response",
	Canceled:      "canceled",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// DefaultAuthMarkers are body fragments of the sign-in page served instead
// of JSON until the user has authorized the script. Matching is a heuristic.
var DefaultAuthMarkers = []string{"Authorization needed", "ServiceLogin"}

// Outcome is the classified result of one request.
type Outcome struct {
	Kind        Kind
	Status      int
	Header      http.Header
	Body        []byte
	RedirectURL string // final URL of the challenge page
	Err         error  // transport error for Timeout, NetworkError, Canceled
}

// OK reports whether the outcome carries a JSON payload.
func (o Outcome) OK() bool {
	return o.Kind == Success
}

// Classify maps a received response to an outcome. finalURL is the URL the
// response was served from after redirects.
func Classify(status int, header http.Header, body []byte, finalURL string, markers []string) Outcome {
	out := Outcome{Status: status, Header: header, Body: body}

	if status != http.StatusOK {
		out.Kind = HTTPError
		return out
	}

	switch mediaType(header) {
	case "application/json":
		if len(body) == 0 {
			out.Kind = EmptyResponse
			return out
		}
		out.Kind = Success
	case "text/html":
		out.Kind = HTMLPage
		for _, m := range markers {
			if m != "" && strings.Contains(string(body), m) {
				out.Kind = AuthRequired
				out.RedirectURL = finalURL
				break
			}
		}
	default:
		out.Kind = HTMLPage
	}
	return out
}

func mediaType(h http.Header) string {
	ct := h.Get("Content-Type")
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		mt = strings.TrimSpace(strings.SplitN(ct, ";", 2)[0])
	}
	mt = strings.ToLower(mt)
	if strings.HasSuffix(mt, "+json") {
		return "application/json"
	}
	return mt
}

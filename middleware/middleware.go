// Copyright 2024 CardinalHQ, Inc
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

// Package middleware integrates a capture instance with net/http hosts.
package middleware

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cardinalhq/apicapture-go/capture"
	"github.com/cardinalhq/apicapture-go/event"
)

// TransactionIDHeader carries the captured event's transaction id back to
// the caller.
const TransactionIDHeader = "X-Transaction-Id"

const defaultMaxBodyBytes = 64 * 1024

// Options configure the capture middleware. All hooks are optional.
type Options struct {
	// IdentifyUser extracts the user identity consulted by sampling.
	IdentifyUser func(*http.Request) string
	// IdentifyCompany extracts the company identity consulted by sampling.
	IdentifyCompany func(*http.Request) string
	// Metadata attaches arbitrary payload to the event.
	Metadata func(*http.Request) map[string]any
	// MaxBodyBytes caps how much of each body is captured when body
	// processing is enabled. Defaults to 64 KiB.
	MaxBodyBytes int64
}

// Handler wraps next so every completed request/response pair is submitted
// to c. The host response is never altered or delayed by capture failures.
func Handler(c *capture.Capture, opts Options, next http.Handler) http.Handler {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	captureBodies := c.Config().RequestBodyProcessing

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ev := event.New()
		ev.Request.Time = time.Now()
		ev.Request.Method = r.Method
		ev.Request.URI = r.URL.RequestURI()
		ev.Request.IPAddress = remoteAddr(r)
		ev.Request.Headers = flattenHeader(r.Header)

		if captureBodies && r.Body != nil && r.Body != http.NoBody {
			peeked, rest := peekBody(r.Body, opts.MaxBodyBytes)
			ev.Request.Body = string(peeked)
			r.Body = rest
		}

		w.Header().Set(TransactionIDHeader, ev.TransactionID)
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		if captureBodies {
			rec.body = &bytes.Buffer{}
			rec.limit = opts.MaxBodyBytes
		}

		next.ServeHTTP(rec, r)

		ev.Response.Time = time.Now()
		ev.Response.Status = rec.status
		ev.Response.Headers = flattenHeader(w.Header())
		if rec.body != nil {
			ev.Response.Body = rec.body.String()
		}
		if opts.IdentifyUser != nil {
			ev.UserID = opts.IdentifyUser(r)
		}
		if opts.IdentifyCompany != nil {
			ev.CompanyID = opts.IdentifyCompany(r)
		}
		if opts.Metadata != nil {
			ev.Metadata = opts.Metadata(r)
		}

		c.SubmitEvent(ev)
	})
}

// peekBody reads up to limit bytes and returns a reader that replays the
// peeked prefix followed by the unread remainder.
func peekBody(body io.ReadCloser, limit int64) ([]byte, io.ReadCloser) {
	peeked, err := io.ReadAll(io.LimitReader(body, limit))
	if err != nil {
		return nil, body
	}
	return peeked, readCloser{
		Reader: io.MultiReader(bytes.NewReader(peeked), body),
		Closer: body,
	}
}

type readCloser struct {
	io.Reader
	io.Closer
}

func flattenHeader(h http.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	flat := make(map[string]string, len(h))
	for k, vs := range h {
		flat[k] = strings.Join(vs, ",")
	}
	return flat
}

func remoteAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.IndexByte(fwd, ','); idx >= 0 {
			return strings.TrimSpace(fwd[:idx])
		}
		return fwd
	}
	host := r.RemoteAddr
	if idx := strings.LastIndexByte(host, ':'); idx >= 0 {
		return host[:idx]
	}
	return host
}

type responseRecorder struct {
	http.ResponseWriter
	status int
	body   *bytes.Buffer
	limit  int64
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if r.body != nil && int64(r.body.Len()) < r.limit {
		remain := r.limit - int64(r.body.Len())
		if int64(len(b)) <= remain {
			r.body.Write(b)
		} else {
			r.body.Write(b[:remain])
		}
	}
	return r.ResponseWriter.Write(b)
}

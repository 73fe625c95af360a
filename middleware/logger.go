package middleware

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mnehpets/rpcserve/endpoint"
)

// RequestIDHeader carries the request id. An id sent by the client is kept.
const RequestIDHeader = "X-Request-Id"

// RequestLogger returns a processor that puts a request-scoped logger in the
// request context (see zerolog.Ctx) and logs one line per request once the
// response is written.
func RequestLogger(log zerolog.Logger) endpoint.Processor {
	return endpoint.ProcessorFunc(func(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
		start := time.Now()

		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		l := log.With().Str("request_id", id).Logger()
		sw := &statusWriter{ResponseWriter: w}
		err := next(sw, r.WithContext(l.WithContext(r.Context())))

		status := sw.status
		if err != nil {
			// The handler renders the error after the chain returns.
			status = errorStatus(err)
		}
		ev := l.Info()
		if status >= http.StatusInternalServerError {
			ev = l.Warn()
		}
		ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int64("bytes", sw.bytes).
			Dur("duration", time.Since(start)).
			Msg("request")
		return err
	})
}

func errorStatus(err error) int {
	var ee *endpoint.EndpointError
	if asEndpointError(err, &ee) && ee.Status >= 100 {
		return ee.Status
	}
	return http.StatusInternalServerError
}

func asEndpointError(err error, target **endpoint.EndpointError) bool {
	return errors.As(err, target) && *target != nil
}

// statusWriter records the status and size of a response.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (s *statusWriter) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusWriter) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (s *statusWriter) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

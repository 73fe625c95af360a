package middleware

import (
	"net/http"

	"github.com/mnehpets/rpcserve/endpoint"
)

// BodyLimit caps request bodies at n bytes. Reading past the limit fails, and
// the endpoint decoder answers 413. n <= 0 disables the limit.
func BodyLimit(n int64) endpoint.Processor {
	return endpoint.ProcessorFunc(func(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
		if n > 0 && r.Body != nil && r.Body != http.NoBody {
			if r.ContentLength > n {
				return endpoint.Error(http.StatusRequestEntityTooLarge, "", nil)
			}
			r.Body = http.MaxBytesReader(w, r.Body, n)
		}
		return next(w, r)
	})
}

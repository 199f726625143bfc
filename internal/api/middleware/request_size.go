package middleware

import (
	"net/http"
)

// DefaultMaxBodySize bounds JSON request bodies.
const DefaultMaxBodySize int64 = 1 << 20

// multipartOverhead is headroom for multipart boundaries and part headers on
// top of the file size limit.
const multipartOverhead int64 = 64 << 10

// RequestSize caps the request body at maxBytes. Handlers see the
// *http.MaxBytesError from their reads.
func RequestSize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func JSONRequestSize() func(http.Handler) http.Handler {
	return RequestSize(DefaultMaxBodySize)
}

// UploadRequestSize admits a multipart body carrying one file of up to
// maxFileBytes.
func UploadRequestSize(maxFileBytes int64) func(http.Handler) http.Handler {
	return RequestSize(maxFileBytes + multipartOverhead)
}

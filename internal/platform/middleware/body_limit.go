package middleware

import (
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
)

// BodyLimit rejects request bodies larger than maxBytes with 413. A
// missing or understated Content-Length is caught while the body is read.
func BodyLimit(maxBytes int64) echo.MiddlewareFunc {
	tooLarge := echo.NewHTTPError(http.StatusRequestEntityTooLarge,
		fmt.Sprintf("request body exceeds maximum allowed size of %d bytes", maxBytes))

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if maxBytes <= 0 || req.Body == nil || req.Body == http.NoBody {
				return next(c)
			}
			if req.ContentLength > maxBytes {
				return tooLarge
			}
			req.Body = &cappedBody{ReadCloser: req.Body, remaining: maxBytes, err: tooLarge}
			return next(c)
		}
	}
}

// cappedBody fails every read once more than remaining bytes have come
// through.
type cappedBody struct {
	io.ReadCloser
	remaining int64
	err       error
}

func (b *cappedBody) Read(p []byte) (int, error) {
	if b.remaining < 0 {
		return 0, b.err
	}
	if int64(len(p)) > b.remaining+1 {
		p = p[:b.remaining+1]
	}
	n, err := b.ReadCloser.Read(p)
	b.remaining -= int64(n)
	if b.remaining < 0 {
		return 0, b.err
	}
	return n, err
}

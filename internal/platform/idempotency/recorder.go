package idempotency

import (
	"bytes"
	"net/http"
)

// bufferedResponse holds the handler output until the outcome has been stored.
type bufferedResponse struct {
	header http.Header
	code   int
	body   bytes.Buffer
}

func newBufferedResponse() *bufferedResponse {
	return &bufferedResponse{header: make(http.Header)}
}

func (b *bufferedResponse) Header() http.Header { return b.header }

func (b *bufferedResponse) WriteHeader(code int) {
	if b.code == 0 {
		b.code = code
	}
}

func (b *bufferedResponse) Write(p []byte) (int, error) {
	b.WriteHeader(http.StatusOK)
	return b.body.Write(p)
}

func (b *bufferedResponse) status() int {
	if b.code == 0 {
		return http.StatusOK
	}
	return b.code
}

func (b *bufferedResponse) response() Response {
	return Response{Status: b.status(), Headers: b.header, Body: b.body.Bytes()}
}

func (b *bufferedResponse) flushTo(w http.ResponseWriter) error {
	for name, values := range b.header {
		w.Header()[name] = append([]string(nil), values...)
	}
	w.WriteHeader(b.status())
	if b.body.Len() == 0 {
		return nil
	}
	_, err := w.Write(b.body.Bytes())
	return err
}

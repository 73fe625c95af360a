package endpoint

import "net/http"

// setContentType sets the Content-Type header unless an outer renderer or
// processor already chose one. An empty contentType means
// "text/plain; charset=utf-8".
func setContentType(w http.ResponseWriter, contentType string) {
	if w.Header().Get("Content-Type") != "" {
		return
	}
	if contentType == "" {
		contentType = "text/plain; charset=utf-8"
	}
	w.Header().Set("Content-Type", contentType)
}

func statusOr(status, def int) int {
	if status == 0 {
		return def
	}
	return status
}

// StringRenderer writes a string as the response body with an optional status
// code and content type.
//
// When ContentType is empty, StringRenderer defaults to
// "text/plain; charset=utf-8".
type StringRenderer struct {
	Status      int
	Body        string
	ContentType string
}

func (sr *StringRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	setContentType(w, sr.ContentType)
	w.WriteHeader(statusOr(sr.Status, http.StatusOK))
	if sr.Body == "" {
		return nil
	}
	_, err := w.Write([]byte(sr.Body))
	return err
}

// BytesRenderer writes an already-encoded body.
//
// Content-Type is always set, to ContentType or
// "application/octet-stream" when empty. ETag, when set, is sent as is.
type BytesRenderer struct {
	Status      int
	Body        []byte
	ContentType string
	ETag        string
}

func (br *BytesRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	ct := br.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	if br.ETag != "" {
		w.Header().Set("ETag", br.ETag)
	}
	w.WriteHeader(statusOr(br.Status, http.StatusOK))
	_, err := w.Write(br.Body)
	return err
}

// NoContentRenderer writes a response with no body and a specific status code.
//
// If Status is 0, it defaults to http.StatusNoContent.
type NoContentRenderer struct {
	Status int
}

func (ncr *NoContentRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	w.WriteHeader(statusOr(ncr.Status, http.StatusNoContent))
	return nil
}

// NotModifiedRenderer answers a conditional request whose validator matched.
type NotModifiedRenderer struct {
	ETag string
}

func (nmr *NotModifiedRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	if nmr.ETag != "" {
		w.Header().Set("ETag", nmr.ETag)
	}
	w.WriteHeader(http.StatusNotModified)
	return nil
}

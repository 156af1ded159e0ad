package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sungwon/batch-messenger/internal/dispatch"
	"github.com/sungwon/batch-messenger/internal/media"
)

// DefaultMaxUploadBytes caps batch request bodies, media included.
const DefaultMaxUploadBytes = 16 << 20

const mediaField = "media"

var (
	errUploadTooLarge  = errors.New("request body too large")
	errMalformedBody   = errors.New("malformed request body")
)

// batchJSON is the JSON form of a batch request.
type batchJSON struct {
	Numbers  []string `json:"numbers" validate:"required,min=1"`
	Content  string   `json:"content" validate:"required"`
	MediaURL string   `json:"mediaUrl" validate:"omitempty,url"`
}

// parseBatchRequest reads a batch from a multipart form or a JSON body.
// The body must already be limited with http.MaxBytesReader.
func parseBatchRequest(r *http.Request, v *validator.Validate, maxBytes int64) (dispatch.Request, media.Input, []string, error) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if ct != "multipart/form-data" {
		var body batchJSON
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return dispatch.Request{}, media.Input{}, nil, bodyError(err)
		}
		if err := v.Struct(body); err != nil {
			return dispatch.Request{}, media.Input{}, validationMessages(err), nil
		}
		return dispatch.Request{Numbers: body.Numbers, Content: body.Content, MediaURL: body.MediaURL}, media.Input{}, nil, nil
	}

	if err := r.ParseMultipartForm(maxBytes); err != nil {
		return dispatch.Request{}, media.Input{}, nil, bodyError(err)
	}
	req := dispatch.Request{
		Numbers:  strings.Split(r.FormValue("numbers"), ","),
		Content:  r.FormValue("content"),
		MediaURL: r.FormValue("mediaUrl"),
	}

	file, header, err := r.FormFile(mediaField)
	if errors.Is(err, http.ErrMissingFile) {
		return req, media.Input{}, nil, nil
	}
	if err != nil {
		return dispatch.Request{}, media.Input{}, nil, bodyError(err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return dispatch.Request{}, media.Input{}, nil, bodyError(err)
	}

	contentType := media.DetectType(data, header.Header.Get("Content-Type"))
	if !media.Allowed(contentType) {
		return dispatch.Request{}, media.Input{}, nil, fmt.Errorf("%w: %s", media.ErrUnsupportedType, contentType)
	}

	return req, media.Input{Data: data, ContentType: contentType}, nil, nil
}

func bodyError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return fmt.Errorf("%w: limit is %d bytes", errUploadTooLarge, maxErr.Limit)
	}
	return fmt.Errorf("%w: %w", errMalformedBody, err)
}

// validationMessages flattens validator errors to "field: rule" strings.
func validationMessages(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, fmt.Sprintf("%s: failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return out
}

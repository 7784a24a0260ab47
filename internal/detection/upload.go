package detection

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"slices"
	"strings"

	"github.com/kiranshivaraju/threatlens/pkg/models"
)

// DefaultMaxUploadBytes is the per-file limit when none is configured.
const DefaultMaxUploadBytes int64 = 50 << 20

// multipartOverhead covers boundaries and part headers around the file.
const multipartOverhead int64 = 1 << 20

// Upload is a fully buffered uploaded file.
type Upload struct {
	FileName string
	MIMEType string
	Size     int64
	Data     []byte
}

type uploadRule struct {
	field   string
	noun    string
	allowed []string
	hint    string
}

var uploadRules = map[models.DetectionType]uploadRule{
	models.DetectionVoice: {
		field:   "audioFile",
		noun:    "audio",
		allowed: []string{"audio/mp3", "audio/wav", "audio/mpeg", "audio/x-m4a"},
		hint:    "MP3, WAV, or M4A",
	},
	models.DetectionDeepfake: {
		field:   "videoFile",
		noun:    "video",
		allowed: []string{"video/mp4", "video/quicktime", "video/x-msvideo"},
		hint:    "MP4, MOV, or AVI",
	},
}

// FieldName returns the multipart field carrying the file for flow.
func FieldName(flow models.DetectionType) string {
	return uploadRules[flow].field
}

// AllowedMIMETypes returns the accepted MIME types for flow.
func AllowedMIMETypes(flow models.DetectionType) []string {
	return slices.Clone(uploadRules[flow].allowed)
}

// ReadUpload extracts the single file for flow from a multipart request. The
// body is capped at maxBytes plus multipart framing before anything is parsed.
func ReadUpload(w http.ResponseWriter, r *http.Request, flow models.DetectionType, maxBytes int64) (*Upload, error) {
	rule, ok := uploadRules[flow]
	if !ok {
		return nil, fmt.Errorf("no upload rule for flow %q", flow)
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(maxBytes + multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, tooLargeError(maxBytes)
		}
		if errors.Is(err, http.ErrNotMultipart) || errors.Is(err, http.ErrMissingBoundary) {
			return nil, missingFileError(rule)
		}
		return nil, &ValidationError{Code: CodeInvalidRequest, Message: "Malformed multipart body"}
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File[rule.field]
	if len(headers) == 0 {
		return nil, missingFileError(rule)
	}
	if len(headers) > 1 {
		return nil, &ValidationError{
			Code:    CodeInvalidRequest,
			Message: fmt.Sprintf("Exactly one %s file must be provided", rule.noun),
		}
	}

	fh := headers[0]
	if fh.Size > maxBytes {
		return nil, tooLargeError(maxBytes)
	}

	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open uploaded file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read uploaded file: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, tooLargeError(maxBytes)
	}

	return &Upload{
		FileName: fh.Filename,
		MIMEType: normalizeMIME(fh.Header.Get("Content-Type")),
		Size:     int64(len(data)),
		Data:     data,
	}, nil
}

// checkUpload applies the flow's presence, size and MIME rules.
func checkUpload(flow models.DetectionType, u *Upload, maxBytes int64) error {
	rule, ok := uploadRules[flow]
	if !ok {
		return fmt.Errorf("no upload rule for flow %q", flow)
	}
	if u == nil || len(u.Data) == 0 {
		return missingFileError(rule)
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	if int64(len(u.Data)) > maxBytes {
		return tooLargeError(maxBytes)
	}
	if !slices.Contains(rule.allowed, normalizeMIME(u.MIMEType)) {
		return &ValidationError{
			Code:    CodeUnsupportedMediaType,
			Message: fmt.Sprintf("Invalid file type. Please upload %s files", rule.hint),
			Details: map[string]any{"mimeType": u.MIMEType, "allowed": rule.allowed},
		}
	}
	return nil
}

func normalizeMIME(v string) string {
	if mt, _, err := mime.ParseMediaType(v); err == nil {
		return mt
	}
	return strings.ToLower(strings.TrimSpace(v))
}

func missingFileError(rule uploadRule) *ValidationError {
	return &ValidationError{
		Code:    CodeFileRequired,
		Message: fmt.Sprintf("No %s file provided", rule.noun),
		Details: map[string]any{"field": rule.field},
	}
}

func tooLargeError(maxBytes int64) *ValidationError {
	return &ValidationError{
		Code:    CodeFileTooLarge,
		Message: fmt.Sprintf("File exceeds the %d byte upload limit", maxBytes),
		Details: map[string]any{"maxBytes": maxBytes},
	}
}

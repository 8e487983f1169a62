package core

import (
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/adamavenir/vliz/internal/types"
	"github.com/dustin/go-humanize"
	"github.com/gobwas/glob"
)

// MaxAttachmentSize caps the raw size of a file sent through the log.
const MaxAttachmentSize = 10 * 1024 * 1024

var (
	ErrFileTooLarge     = errors.New("file too large")
	ErrFileNotAccepted  = errors.New("file type not accepted")
	ErrInvalidEnvelope  = errors.New("invalid file envelope")
	ErrInvalidDataURI   = errors.New("invalid data uri")
	acceptedMIMEGlobs   = []glob.Glob{glob.MustCompile("image/*", '/'), glob.MustCompile("video/*", '/')}
	acceptedNameGlob    = glob.MustCompile("*.{pdf,doc,docx,txt}")
	fallbackContentType = "application/octet-stream"
)

// extraTypes covers extensions missing from minimal mime tables.
var extraTypes = map[string]string{
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
	".txt":  "text/plain",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// FileLabel is the display form of an attachment, also used as its self-sent key.
func FileLabel(name string) string {
	return "📎 " + name
}

// FileEnvelope wraps a data URI for the wire.
func FileEnvelope(name, dataURI string) string {
	return FilePrefix + name + "]" + dataURI
}

// ParseFileEnvelope extracts the attachment from "[FILE:<name>]<data uri>".
func ParseFileEnvelope(payload string) (*types.Attachment, bool) {
	if !strings.HasPrefix(payload, FilePrefix) {
		return nil, false
	}
	rest := payload[len(FilePrefix):]
	end := strings.Index(rest, "]")
	if end <= 0 {
		return nil, false
	}
	return &types.Attachment{Name: rest[:end], DataURI: rest[end+1:]}, true
}

// ContentType guesses a MIME type from the file extension.
func ContentType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return fallbackContentType
	}
	if ct, ok := extraTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		if idx := strings.Index(ct, ";"); idx >= 0 {
			ct = ct[:idx]
		}
		return ct
	}
	return fallbackContentType
}

// Accepted reports whether a file may be attached.
func Accepted(name string) bool {
	ct := ContentType(name)
	for _, g := range acceptedMIMEGlobs {
		if g.Match(ct) {
			return true
		}
	}
	return acceptedNameGlob.Match(strings.ToLower(filepath.Base(name)))
}

// NewAttachment validates a file and encodes it as a data URI.
func NewAttachment(name string, data []byte) (*types.Attachment, error) {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." {
		return nil, fmt.Errorf("%w: missing file name", ErrInvalidEnvelope)
	}
	if strings.Contains(name, "]") {
		return nil, fmt.Errorf("%w: file name cannot contain ']'", ErrInvalidEnvelope)
	}
	if len(data) > MaxAttachmentSize {
		return nil, fmt.Errorf("%w: %s (max %s)", ErrFileTooLarge,
			humanize.IBytes(uint64(len(data))), humanize.IBytes(MaxAttachmentSize))
	}
	if !Accepted(name) {
		return nil, fmt.Errorf("%w: %s", ErrFileNotAccepted, name)
	}
	uri := "data:" + ContentType(name) + ";base64," + base64.StdEncoding.EncodeToString(data)
	return &types.Attachment{Name: name, DataURI: uri}, nil
}

// DecodeAttachment returns the bytes carried by a base64 data URI.
func DecodeAttachment(att *types.Attachment) ([]byte, error) {
	if att == nil {
		return nil, ErrInvalidDataURI
	}
	uri := att.DataURI
	if !strings.HasPrefix(uri, "data:") {
		return nil, ErrInvalidDataURI
	}
	comma := strings.Index(uri, ",")
	if comma < 0 {
		return nil, ErrInvalidDataURI
	}
	meta := uri[len("data:"):comma]
	if !strings.HasSuffix(meta, ";base64") {
		return nil, fmt.Errorf("%w: not base64", ErrInvalidDataURI)
	}
	data, err := base64.StdEncoding.DecodeString(uri[comma+1:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
	}
	return data, nil
}

// AttachmentSize renders the decoded size of an attachment, "?" when unreadable.
func AttachmentSize(att *types.Attachment) string {
	data, err := DecodeAttachment(att)
	if err != nil {
		return "?"
	}
	return humanize.IBytes(uint64(len(data)))
}

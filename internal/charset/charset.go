// Package charset turns fetched page bytes into text without ever failing.
//
// Resolution order: the charset declared in the Content-Type header, then
// strict UTF-8, then statistical detection. Detected GB2312/GBK is widened
// to GB18030 so characters outside the narrower tables survive.
package charset

import (
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/gogs/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/simplifiedchinese"
)

// Detector guesses the encoding of raw bytes. An empty result means unknown.
type Detector interface {
	Detect(raw []byte) string
}

// ChardetDetector is the statistical detector backed by gogs/chardet.
type ChardetDetector struct {
	detector *chardet.Detector
}

func NewChardetDetector() *ChardetDetector {
	return &ChardetDetector{detector: chardet.NewTextDetector()}
}

func (d *ChardetDetector) Detect(raw []byte) string {
	result, err := d.detector.DetectBest(raw)
	if err != nil || result == nil {
		return ""
	}
	return result.Charset
}

// Resolver decodes response bodies. It holds no mutable state and is safe
// for concurrent use.
type Resolver struct {
	detector Detector
}

// NewResolver returns a Resolver using detector for the last step. A nil
// detector selects the chardet implementation.
func NewResolver(detector Detector) *Resolver {
	if detector == nil {
		detector = NewChardetDetector()
	}
	return &Resolver{detector: detector}
}

// Resolve decodes raw using contentType as a hint.
func (r *Resolver) Resolve(raw []byte, contentType string) string {
	if label := Declared(contentType); label != "" {
		if text, ok := decodeStrict(raw, label); ok {
			return text
		}
	}

	if utf8.Valid(raw) {
		return string(raw)
	}

	label := Normalize(r.detector.Detect(raw))
	if label == "" {
		label = "utf-8"
	}
	return decodeLenient(raw, label)
}

// Declared extracts the charset parameter from a Content-Type header value.
func Declared(contentType string) string {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if contentType == "" {
		return ""
	}
	if _, params, err := mime.ParseMediaType(contentType); err == nil {
		return strings.Trim(params["charset"], `"' `)
	}
	// tolerate malformed headers such as "text/html;; charset=gbk"
	idx := strings.LastIndex(contentType, "charset=")
	if idx == -1 {
		return ""
	}
	value := contentType[idx+len("charset="):]
	if semi := strings.IndexByte(value, ';'); semi != -1 {
		value = value[:semi]
	}
	return strings.Trim(value, `"' `)
}

// Normalize lowercases a detector label and widens the legacy Chinese
// encodings to GB18030.
func Normalize(label string) string {
	label = strings.ToLower(strings.TrimSpace(label))
	switch label {
	case "gb2312", "gb-2312", "gbk", "cp936", "gb18030", "gb-18030":
		return "gb18030"
	}
	return label
}

func lookup(label string) (encoding.Encoding, bool) {
	switch label {
	case "utf-8", "utf8":
		return encoding.Nop, true
	case "gb18030":
		return simplifiedchinese.GB18030, true
	}
	enc, err := htmlindex.Get(label)
	if err != nil || enc == nil {
		return nil, false
	}
	return enc, true
}

// decodeStrict reports false when the label is unknown or the bytes are not
// valid for it. x/text decoders substitute U+FFFD rather than failing, so a
// replacement rune in the output counts as invalid input.
func decodeStrict(raw []byte, label string) (string, bool) {
	enc, ok := lookup(label)
	if !ok {
		return "", false
	}
	if enc == encoding.Nop {
		if !utf8.Valid(raw) {
			return "", false
		}
		return string(raw), true
	}
	out, err := enc.NewDecoder().Bytes(raw)
	if err != nil || !utf8.Valid(out) || strings.ContainsRune(string(out), utf8.RuneError) {
		return "", false
	}
	return string(out), true
}

func decodeLenient(raw []byte, label string) string {
	if text, ok := decodeStrict(raw, label); ok {
		return text
	}
	enc, ok := lookup(label)
	if ok && enc != encoding.Nop {
		if out, err := enc.NewDecoder().Bytes(raw); err == nil {
			return string(out)
		}
	}
	return strings.ToValidUTF8(string(raw), "\uFFFD")
}

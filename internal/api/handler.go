package api

import (
	"errors"
	"net/http"
	nurl "net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/byteowlz/pagext/internal/fetcher"
	"github.com/byteowlz/pagext/internal/format"
)

type errorBody struct {
	Detail string `json:"detail"`
}

type handler struct {
	extractor     Extractor
	defaultFormat format.Format
}

// extract serves GET /api/extract?url=...&output_format=...
func (h *handler) extract(c *gin.Context) {
	rawURL := strings.TrimSpace(c.Query("url"))
	if err := validateURL(rawURL); err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Detail: err.Error()})
		return
	}

	f := h.defaultFormat
	if raw, ok := c.GetQuery("output_format"); ok {
		parsed, valid := format.Parse(raw)
		if !valid {
			c.JSON(http.StatusBadRequest, errorBody{Detail: "output_format must be one of html, markdown, text"})
			return
		}
		f = parsed
	}

	resp, err := h.extractor.Extract(c.Request.Context(), rawURL, f)
	if err != nil {
		_ = c.Error(err)
		c.JSON(statusFor(err), errorBody{Detail: err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// statusFor maps an extraction error to a status code. Fetch errors are
// normally absorbed by the fallback and only surface here if one escapes.
func statusFor(err error) int {
	var fetchErr *fetcher.FetchError
	if errors.As(err, &fetchErr) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func validateURL(raw string) error {
	if raw == "" {
		return errors.New("url query parameter is required")
	}
	u, err := nurl.Parse(raw)
	if err != nil {
		return errors.New("url is not a valid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("url must be an absolute http or https URL")
	}
	if u.Host == "" {
		return errors.New("url must include a host")
	}
	return nil
}

func health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

package httpfetch

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Validator keys reported with a completed transfer
const (
	ValidatorETag         = "etag"
	ValidatorLastModified = "last_modified"
)

type validators struct {
	ETag         string `json:"etag,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
}

func validatorsFromMap(m map[string]string) validators {
	return validators{ETag: m[ValidatorETag], LastModified: m[ValidatorLastModified]}
}

func validatorsFromResponse(resp *http.Response) validators {
	return validators{
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}
}

func (v validators) toMap() map[string]string {
	m := make(map[string]string, 2)
	if v.ETag != "" {
		m[ValidatorETag] = v.ETag
	}
	if v.LastModified != "" {
		m[ValidatorLastModified] = v.LastModified
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

// ifRange returns the If-Range value. Weak etags cannot be used for ranges.
func (v validators) ifRange() string {
	if v.ETag != "" && !strings.HasPrefix(v.ETag, "W/") {
		return v.ETag
	}
	return v.LastModified
}

// resumeToken is the opaque token handed to the queue on pause
type resumeToken struct {
	Offset int64 `json:"offset"`
	validators
}

func encodeToken(offset int64, v validators) []byte {
	data, err := json.Marshal(resumeToken{Offset: offset, validators: v})
	if err != nil {
		return nil
	}
	return data
}

func decodeToken(data []byte) (resumeToken, bool) {
	var tok resumeToken
	if len(data) == 0 {
		return tok, false
	}
	if err := json.Unmarshal(data, &tok); err != nil || tok.Offset < 0 {
		return resumeToken{}, false
	}
	return tok, true
}

package classifier

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/rcliao/element-memory/internal/model"
)

var jsonObject = regexp.MustCompile(`(?s)\{.*\}`)

// ParseResponse extracts the outermost JSON object from a model reply, which
// may be wrapped in prose or code fences.
func ParseResponse(text string) (model.Classification, error) {
	raw := jsonObject.FindString(text)
	if raw == "" {
		return nil, fmt.Errorf("%w: no JSON object in reply", ErrUnusableResponse)
	}
	var c model.Classification
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnusableResponse, err)
	}
	if u, ok := c.Understanding(); !ok || strings.TrimSpace(u) == "" {
		return nil, fmt.Errorf("%w: missing understanding", ErrUnusableResponse)
	}
	return c, nil
}

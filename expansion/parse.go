package expansion

import (
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/poiesic/lexis/core"
)

type expansionsObject struct {
	Expansions []string `json:"expansions"`
}

// parseExpansions reads a model response as either a JSON array of strings or
// an object with an "expansions" array. Code fences and common formatting
// slips are tolerated.
func parseExpansions(response string) ([]string, error) {
	body := stripCodeFence(strings.TrimSpace(response))
	start := strings.IndexAny(body, "[{")
	if start < 0 {
		return nil, fmt.Errorf("%w: no JSON in expansion response", core.ErrInvalidResponse)
	}
	body = body[start:]

	expansions, err := decodeExpansions(body)
	if err != nil {
		expansions, err = decodeExpansions(repairJSON(body))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: unparseable expansion response: %w", core.ErrInvalidResponse, err)
	}
	return expansions, nil
}

func decodeExpansions(body string) ([]string, error) {
	if strings.HasPrefix(body, "[") {
		var list []string
		if err := sonic.UnmarshalString(body, &list); err != nil {
			return nil, err
		}
		return list, nil
	}

	var obj expansionsObject
	if err := sonic.UnmarshalString(body, &obj); err != nil {
		return nil, err
	}
	if obj.Expansions == nil {
		return nil, fmt.Errorf("object has no expansions array")
	}
	return obj.Expansions, nil
}

// stripCodeFence removes a surrounding ``` or ```json fence.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	if end := strings.LastIndex(s, "```"); end >= 0 {
		s = s[:end]
	}
	return strings.TrimSpace(s)
}

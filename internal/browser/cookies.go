package browser

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/go-rod/rod/lib/proto"
)

// NormalizeCookies accepts the three cookie shapes test configs carry — a
// JSON string, a single map, or a list of maps — and converts them to CDP
// cookie params. Cookies without a domain inherit the target URL's host.
func NormalizeCookies(raw interface{}, targetURL string) ([]*proto.NetworkCookieParam, error) {
	if raw == nil {
		return nil, nil
	}

	var entries []map[string]interface{}
	switch v := raw.(type) {
	case string:
		if v == "" {
			return nil, nil
		}
		var decoded interface{}
		if err := json.Unmarshal([]byte(v), &decoded); err != nil {
			return nil, fmt.Errorf("cookie JSON: %w", err)
		}
		return NormalizeCookies(decoded, targetURL)
	case map[string]interface{}:
		entries = []map[string]interface{}{v}
	case []interface{}:
		for _, item := range v {
			entry, ok := item.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("cookie list item is %T, want object", item)
			}
			entries = append(entries, entry)
		}
	case []map[string]interface{}:
		entries = v
	default:
		return nil, fmt.Errorf("unsupported cookie shape %T", raw)
	}

	defaultDomain := ""
	if u, err := url.Parse(targetURL); err == nil {
		defaultDomain = u.Hostname()
	}

	params := make([]*proto.NetworkCookieParam, 0, len(entries))
	for _, e := range entries {
		name := stringField(e, "name")
		value := stringField(e, "value")
		if name == "" {
			continue
		}
		p := &proto.NetworkCookieParam{
			Name:   name,
			Value:  value,
			Domain: stringField(e, "domain"),
			Path:   stringField(e, "path"),
		}
		if p.Domain == "" {
			p.Domain = defaultDomain
		}
		if p.Path == "" {
			p.Path = "/"
		}
		if secure, ok := e["secure"].(bool); ok {
			p.Secure = secure
		}
		if httpOnly, ok := e["httpOnly"].(bool); ok {
			p.HTTPOnly = httpOnly
		}
		if expires, ok := e["expires"].(float64); ok {
			p.Expires = proto.TimeSinceEpoch(expires)
		}
		params = append(params, p)
	}
	return params, nil
}

func stringField(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

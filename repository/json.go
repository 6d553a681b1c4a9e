package repository

import "github.com/goccy/go-json"

func unmarshalSiteRoles(raw []byte, out *map[string]string) error {
	return json.Unmarshal(raw, out)
}

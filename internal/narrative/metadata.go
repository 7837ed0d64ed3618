package narrative

import (
	"strings"

	"storyroom-server/shared/models"
)

const (
	tagTitle    = "title"
	tagRoles    = "roles"
	tagGameMode = "gamemode"
)

// ParseGlobalTags reads "key: value" tags. Keys are lower-cased, tags without
// a colon are ignored and the first occurrence of a key wins.
func ParseGlobalTags(tags []string) map[string]string {
	out := make(map[string]string, len(tags))
	for _, tag := range tags {
		key, value, ok := strings.Cut(tag, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" {
			continue
		}
		if _, seen := out[key]; !seen {
			out[key] = strings.TrimSpace(value)
		}
	}
	return out
}

// ParseRoles reads "tag=Display Name" entries separated by commas or
// semicolons. Entries with an empty tag or name are dropped.
func ParseRoles(raw string) []models.Role {
	entries := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ';' })
	roles := make([]models.Role, 0, len(entries))
	for _, entry := range entries {
		tag, name, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		tag, name = strings.TrimSpace(tag), strings.TrimSpace(name)
		if tag == "" || name == "" {
			continue
		}
		roles = append(roles, models.Role{Tag: tag, DisplayName: name})
	}
	return roles
}

// Metadata builds the typed story metadata from its global tags.
func Metadata(storyID string, globalTags []string) models.StoryMetadata {
	tags := ParseGlobalTags(globalTags)
	return models.StoryMetadata{
		ID:       storyID,
		Title:    tags[tagTitle],
		Roles:    ParseRoles(tags[tagRoles]),
		GameMode: tags[tagGameMode],
	}
}

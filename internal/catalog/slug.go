package catalog

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

var nonSlugChars = regexp.MustCompile(`[^a-z0-9-]+`)
var multiDash = regexp.MustCompile(`-+`)

const maxSlugSuffix = 50

func Slugify(input string) string {
	s := strings.ToLower(strings.TrimSpace(input))
	s = strings.ReplaceAll(s, "'", "")
	s = strings.ReplaceAll(s, "&", " and ")
	s = strings.ReplaceAll(s, "+", " plus ")
	s = strings.ReplaceAll(s, "/", " ")
	s = nonSlugChars.ReplaceAllString(s, "-")
	s = multiDash.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// uniqueSlug returns the slug of name, suffixed -2, -3, ... until taken reports it free.
func uniqueSlug(ctx context.Context, name string, taken func(ctx context.Context, slug string) (bool, error)) (string, error) {
	base := Slugify(name)
	if base == "" {
		return "", ErrInvalidSlug
	}
	candidate := base
	for n := 2; n <= maxSlugSuffix+1; n++ {
		used, err := taken(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !used {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, n)
	}
	return "", ErrSlugExists
}

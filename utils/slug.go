package utils

import (
	"strconv"
	"strings"
)

// MaxSlugLength bounds the name-derived part of a slug.
const MaxSlugLength = 48

// Slugify lowercases text, collapses every run of characters outside [a-z0-9]
// into one '-', trims leading and trailing '-' and bounds the length.
// Input with nothing usable yields "link".
func Slugify(text string) string {
	return SlugifyOr(text, "link")
}

// SlugifyOr is Slugify with a caller-chosen fallback.
func SlugifyOr(text, fallback string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(text) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	s := b.String()
	if len(s) > MaxSlugLength {
		s = strings.TrimRight(s[:MaxSlugLength], "-")
	}
	if s == "" {
		return fallback
	}
	return s
}

// MakeUniqueSlug slugifies baseText and resolves collisions against existing.
func MakeUniqueSlug(baseText string, existing map[string]struct{}) string {
	return UniqueSlug(Slugify(baseText), existing)
}

// UniqueSlug returns base if it is free, otherwise the first free base-2, base-3, ...
// Slugs are compared case-insensitively, so no two slugs can name the same
// upload directory on a case-insensitive filesystem. Every rejected candidate
// folds onto a member of existing, so the loop runs at most len(existing)+1 times.
func UniqueSlug(base string, existing map[string]struct{}) string {
	folded := make(map[string]struct{}, len(existing))
	for s := range existing {
		folded[strings.ToLower(s)] = struct{}{}
	}
	taken := func(s string) bool {
		_, ok := folded[strings.ToLower(s)]
		return ok
	}
	if !taken(base) {
		return base
	}
	for n := 2; ; n++ {
		candidate := base + "-" + strconv.Itoa(n)
		if !taken(candidate) {
			return candidate
		}
	}
}

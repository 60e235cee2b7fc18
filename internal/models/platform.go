package models

import (
	"fmt"
	"strings"
)

// Platform is one external social network integration.
type Platform string

const (
	PlatformX         Platform = "X"
	PlatformLinkedIn  Platform = "LinkedIn"
	PlatformFacebook  Platform = "Facebook"
	PlatformInstagram Platform = "Instagram"
	PlatformTikTok    Platform = "TikTok"
	PlatformYouTube   Platform = "YouTube"
)

var platforms = []Platform{
	PlatformX,
	PlatformLinkedIn,
	PlatformFacebook,
	PlatformInstagram,
	PlatformTikTok,
	PlatformYouTube,
}

// Platforms returns every supported platform in a stable order.
func Platforms() []Platform {
	out := make([]Platform, len(platforms))
	copy(out, platforms)
	return out
}

// ParsePlatform matches s case-insensitively against the known platforms.
func ParsePlatform(s string) (Platform, error) {
	for _, p := range platforms {
		if strings.EqualFold(string(p), strings.TrimSpace(s)) {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown platform %q", s)
}

func (p Platform) Valid() bool {
	_, err := ParsePlatform(string(p))
	return err == nil
}

// Column is the suffix used by the per-platform post columns (post_on_<column>, link_<column>).
func (p Platform) Column() string {
	return strings.ToLower(string(p))
}

// MaxTextLength is the longest description the platform accepts.
func (p Platform) MaxTextLength() int {
	switch p {
	case PlatformX:
		return 4000
	case PlatformInstagram:
		return 2200
	case PlatformFacebook:
		return 63206
	case PlatformLinkedIn:
		return 3000
	case PlatformTikTok:
		return 2200
	case PlatformYouTube:
		return 5000
	default:
		return 0
	}
}

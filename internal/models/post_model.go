package models

import (
	"fmt"
	"time"
)

type Post struct {
	ID           int64     `gorm:"primaryKey" json:"id"`
	AccountID    int64     `gorm:"column:account_id;index;not null" json:"account_id"`
	Description  string    `gorm:"column:description;type:text" json:"description"`
	MediaFile    *string   `gorm:"column:media_file" json:"media_file,omitempty"`
	ScheduledOn  time.Time `gorm:"column:scheduled_on;index;not null" json:"scheduled_on"`
	PostTimezone string    `gorm:"column:post_timezone;not null;default:UTC" json:"post_timezone"`

	PostOnX         bool `gorm:"column:post_on_x;not null;default:false" json:"post_on_x"`
	PostOnLinkedIn  bool `gorm:"column:post_on_linkedin;not null;default:false" json:"post_on_linkedin"`
	PostOnFacebook  bool `gorm:"column:post_on_facebook;not null;default:false" json:"post_on_facebook"`
	PostOnInstagram bool `gorm:"column:post_on_instagram;not null;default:false" json:"post_on_instagram"`
	PostOnTikTok    bool `gorm:"column:post_on_tiktok;not null;default:false" json:"post_on_tiktok"`
	PostOnYouTube   bool `gorm:"column:post_on_youtube;not null;default:false" json:"post_on_youtube"`

	LinkX         *string `gorm:"column:link_x" json:"link_x,omitempty"`
	LinkLinkedIn  *string `gorm:"column:link_linkedin" json:"link_linkedin,omitempty"`
	LinkFacebook  *string `gorm:"column:link_facebook" json:"link_facebook,omitempty"`
	LinkInstagram *string `gorm:"column:link_instagram" json:"link_instagram,omitempty"`
	LinkTikTok    *string `gorm:"column:link_tiktok" json:"link_tiktok,omitempty"`
	LinkYouTube   *string `gorm:"column:link_youtube" json:"link_youtube,omitempty"`

	Posted    bool      `gorm:"column:posted;index;not null;default:false" json:"posted"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Post) TableName() string { return "posts" }

// PendingColumn and LinkColumn name the per-platform columns on the posts table.
func PendingColumn(p Platform) string { return "post_on_" + p.Column() }
func LinkColumn(p Platform) string    { return "link_" + p.Column() }

func (p *Post) pendingField(pl Platform) *bool {
	switch pl {
	case PlatformX:
		return &p.PostOnX
	case PlatformLinkedIn:
		return &p.PostOnLinkedIn
	case PlatformFacebook:
		return &p.PostOnFacebook
	case PlatformInstagram:
		return &p.PostOnInstagram
	case PlatformTikTok:
		return &p.PostOnTikTok
	case PlatformYouTube:
		return &p.PostOnYouTube
	}
	return nil
}

func (p *Post) linkField(pl Platform) **string {
	switch pl {
	case PlatformX:
		return &p.LinkX
	case PlatformLinkedIn:
		return &p.LinkLinkedIn
	case PlatformFacebook:
		return &p.LinkFacebook
	case PlatformInstagram:
		return &p.LinkInstagram
	case PlatformTikTok:
		return &p.LinkTikTok
	case PlatformYouTube:
		return &p.LinkYouTube
	}
	return nil
}

// Pending reports whether pl is selected and not yet resolved.
func (p *Post) Pending(pl Platform) bool {
	f := p.pendingField(pl)
	return f != nil && *f
}

func (p *Post) SetPending(pl Platform, v bool) {
	if f := p.pendingField(pl); f != nil {
		*f = v
	}
}

// Link returns the published URL for pl, or "" when none was recorded.
func (p *Post) Link(pl Platform) string {
	f := p.linkField(pl)
	if f == nil || *f == nil {
		return ""
	}
	return **f
}

func (p *Post) SetLink(pl Platform, url string) {
	f := p.linkField(pl)
	if f == nil {
		return
	}
	if url == "" {
		*f = nil
		return
	}
	*f = &url
}

// PendingPlatforms lists the platforms still waiting to be published.
func (p *Post) PendingPlatforms() []Platform {
	var out []Platform
	for _, pl := range platforms {
		if p.Pending(pl) {
			out = append(out, pl)
		}
	}
	return out
}

func (p *Post) HasMedia() bool {
	return p.MediaFile != nil && *p.MediaFile != ""
}

// Location resolves PostTimezone. Unknown or empty zones fall back to UTC and
// report ok=false.
func (p *Post) Location() (loc *time.Location, ok bool) {
	if p.PostTimezone == "" {
		return time.UTC, true
	}
	loc, err := time.LoadLocation(p.PostTimezone)
	if err != nil {
		return time.UTC, false
	}
	return loc, true
}

// Due reports whether the post should be published at now, comparing both
// instants in the post's own zone.
func (p *Post) Due(now time.Time) bool {
	loc, _ := p.Location()
	return !now.In(loc).Before(p.ScheduledOn.In(loc))
}

// ScheduleAt combines a wall-clock date ("2006-01-02") and time ("15:04") in
// the named zone into an instant.
func ScheduleAt(date, clock, zone string) (time.Time, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timezone %q: %w", zone, err)
	}
	t, err := time.ParseInLocation("2006-01-02 15:04", date+" "+clock, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid schedule %q %q: %w", date, clock, err)
	}
	return t, nil
}

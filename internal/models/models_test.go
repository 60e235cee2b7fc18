package models

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestParsePlatform(t *testing.T) {
	for _, in := range []string{"x", " LinkedIn ", "FACEBOOK", "instagram", "TikTok", "youtube"} {
		p, err := ParsePlatform(in)
		if err != nil {
			t.Fatalf("ParsePlatform(%q): %v", in, err)
		}
		if !p.Valid() {
			t.Errorf("%q parsed to invalid platform %q", in, p)
		}
	}
	if _, err := ParsePlatform("myspace"); err == nil {
		t.Error("expected error for unknown platform")
	}
	if Platform("Mastodon").Valid() {
		t.Error("Mastodon should not be valid")
	}
}

func TestPendingAndLinks(t *testing.T) {
	p := &Post{PostOnX: true, PostOnYouTube: true}
	got := p.PendingPlatforms()
	if len(got) != 2 || got[0] != PlatformX || got[1] != PlatformYouTube {
		t.Fatalf("PendingPlatforms = %v", got)
	}

	p.SetPending(PlatformX, false)
	p.SetLink(PlatformX, "https://x.com/i/web/status/1")
	if p.PostOnX || p.Link(PlatformX) != "https://x.com/i/web/status/1" {
		t.Fatalf("x state not applied: pending=%v link=%q", p.PostOnX, p.Link(PlatformX))
	}
	if p.Link(PlatformTikTok) != "" {
		t.Error("unset link should be empty")
	}
	if PendingColumn(PlatformTikTok) != "post_on_tiktok" || LinkColumn(PlatformLinkedIn) != "link_linkedin" {
		t.Error("unexpected column names")
	}
}

func TestDueComparesInPostZone(t *testing.T) {
	at, err := ScheduleAt("2026-03-01", "09:30", "Asia/Tokyo")
	if err != nil {
		t.Fatal(err)
	}
	p := &Post{ScheduledOn: at, PostTimezone: "Asia/Tokyo"}

	if p.Due(at.Add(-time.Second)) {
		t.Error("post due before its scheduled instant")
	}
	if !p.Due(at) || !p.Due(at.Add(time.Minute)) {
		t.Error("post not due at or after its scheduled instant")
	}
	// 00:30 UTC is 09:30 in Tokyo.
	if got := at.UTC().Format("15:04"); got != "00:30" {
		t.Errorf("scheduled UTC clock = %s", got)
	}
}

func TestLocationFallsBackToUTC(t *testing.T) {
	p := &Post{PostTimezone: "Mars/Olympus"}
	loc, ok := p.Location()
	if ok || loc != time.UTC {
		t.Fatalf("Location() = %v, %v", loc, ok)
	}
	if _, err := ScheduleAt("2026-03-01", "09:30", "Mars/Olympus"); err == nil {
		t.Error("expected error for unknown zone")
	}
	if _, err := ScheduleAt("2026-03-01", "9h30", "UTC"); err == nil {
		t.Error("expected error for malformed clock")
	}
}

func TestCredentialHelpers(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	c := &Credential{AccountID: 7, Platform: PlatformFacebook, AccessToken: "secret-token", AccessExpiresAt: &past}

	if !c.Usable() || !c.Expired(now) {
		t.Fatalf("usable=%v expired=%v", c.Usable(), c.Expired(now))
	}
	if (&Credential{}).Usable() {
		t.Error("empty credential reported usable")
	}
	if got := c.Key().String(); got != "credential:Facebook:7" {
		t.Errorf("key = %q", got)
	}

	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	logger.Info().EmbedObject(c).Msg("")
	if strings.Contains(buf.String(), "secret-token") {
		t.Errorf("token leaked into log: %s", buf.String())
	}
}

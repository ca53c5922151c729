package feed

import (
	"encoding/xml"
	"fmt"
	"strings"
	"testing"
	"time"

	"viola-joke/internal/models"
)

func TestRSS(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	created := time.Date(2026, 4, 2, 8, 30, 0, 0, time.UTC)
	long := strings.Repeat("viola ", 20)

	jokes := []models.Joke{
		{ID: "1", Content: long, Author: "Ada", CreatedAt: &created},
		{ID: "2", Content: "Violists & <friends> walk into a bar"},
	}

	out, err := RSS("https://violajoke.com/", jokes, now)
	if err != nil {
		t.Fatalf("RSS() error = %v", err)
	}

	var doc rss
	if err := xml.Unmarshal(out, &doc); err != nil {
		t.Fatalf("RSS() produced invalid XML: %v\n%s", err, out)
	}

	if doc.Version != "2.0" || doc.Channel.Title != "Viola Joke" || doc.Channel.TTL != 60 {
		t.Errorf("channel = %+v", doc.Channel)
	}
	if len(doc.Channel.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(doc.Channel.Items))
	}

	first := doc.Channel.Items[0]
	if got := len([]rune(first.Title)); got != 60 {
		t.Errorf("title runes = %d, want 60", got)
	}
	if !strings.HasPrefix(first.Link, "https://violajoke.com/joke/viola-viola") || !strings.HasSuffix(first.Link, "-1") {
		t.Errorf("link = %q", first.Link)
	}
	if first.GUID != first.Link {
		t.Errorf("guid = %q, want link", first.GUID)
	}
	if first.Author != "Ada" {
		t.Errorf("author = %q, want Ada", first.Author)
	}
	if first.PubDate != created.Format(time.RFC1123Z) {
		t.Errorf("pubDate = %q", first.PubDate)
	}

	second := doc.Channel.Items[1]
	if second.Description != jokes[1].Content {
		t.Errorf("description = %q, want escaped round trip", second.Description)
	}
	if second.PubDate != now.Format(time.RFC1123Z) {
		t.Errorf("pubDate without createdAt = %q, want now", second.PubDate)
	}
	if strings.Contains(string(out), "<author></author>") {
		t.Error("empty author element rendered")
	}
}

func TestRSSCapsItems(t *testing.T) {
	jokes := make([]models.Joke, 75)
	for i := range jokes {
		jokes[i] = models.Joke{ID: fmt.Sprint(i), Content: "a viola joke number"}
	}

	out, err := RSS("https://violajoke.com", jokes, time.Now())
	if err != nil {
		t.Fatalf("RSS() error = %v", err)
	}

	var doc rss
	if err := xml.Unmarshal(out, &doc); err != nil {
		t.Fatalf("invalid XML: %v", err)
	}
	if len(doc.Channel.Items) != MaxFeedItems {
		t.Errorf("items = %d, want %d", len(doc.Channel.Items), MaxFeedItems)
	}
}

func TestSitemap(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	created := time.Date(2025, 12, 24, 0, 0, 0, 0, time.UTC)
	jokes := []models.Joke{{ID: "42", Content: "Tuning", CreatedAt: &created}}

	out, err := Sitemap("https://violajoke.com", jokes, []string{"alto clef"}, now)
	if err != nil {
		t.Fatalf("Sitemap() error = %v", err)
	}

	var set urlSet
	if err := xml.Unmarshal(out, &set); err != nil {
		t.Fatalf("invalid XML: %v", err)
	}

	want := []sitemapURL{
		{Loc: "https://violajoke.com", LastMod: "2026-05-01", ChangeFreq: "daily", Priority: "1.0"},
		{Loc: "https://violajoke.com/jokes", LastMod: "2026-05-01", ChangeFreq: "daily", Priority: "0.9"},
		{Loc: "https://violajoke.com/submit", LastMod: "2026-05-01", ChangeFreq: "yearly", Priority: "0.5"},
		{Loc: "https://violajoke.com/joke/tuning-42", LastMod: "2025-12-24", ChangeFreq: "weekly", Priority: "0.7"},
		{Loc: "https://violajoke.com/tag/alto%20clef", LastMod: "2026-05-01", ChangeFreq: "weekly", Priority: "0.6"},
	}
	if len(set.URLs) != len(want) {
		t.Fatalf("urls = %d, want %d", len(set.URLs), len(want))
	}
	for i := range want {
		if set.URLs[i] != want[i] {
			t.Errorf("url[%d] = %+v, want %+v", i, set.URLs[i], want[i])
		}
	}
}

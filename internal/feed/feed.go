// Package feed renders the RSS feed and XML sitemap of approved jokes.
package feed

import (
	"encoding/xml"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"viola-joke/internal/models"
	"viola-joke/internal/slug"
)

const (
	MaxFeedItems = 50
	titleRunes   = 60

	channelTitle       = "Viola Joke"
	channelDescription = "The best viola jokes and humor"
	channelLanguage    = "en-us"
	channelTTL         = 60
)

type rss struct {
	XMLName xml.Name `xml:"rss"`
	Version string   `xml:"version,attr"`
	Channel channel  `xml:"channel"`
}

type channel struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	Language    string `xml:"language"`
	TTL         int    `xml:"ttl"`
	Items       []item `xml:"item"`
}

type item struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	GUID        string `xml:"guid"`
	Description string `xml:"description"`
	Author      string `xml:"author,omitempty"`
	PubDate     string `xml:"pubDate"`
}

// JokeURL is the public page of a joke.
func JokeURL(baseURL string, j models.Joke) string {
	return strings.TrimRight(baseURL, "/") + "/joke/" + slug.Encode(j)
}

// RSS renders up to MaxFeedItems jokes as an RSS 2.0 document. Jokes without
// a creation time are dated now.
func RSS(baseURL string, jokes []models.Joke, now time.Time) ([]byte, error) {
	base := strings.TrimRight(baseURL, "/")
	doc := rss{
		Version: "2.0",
		Channel: channel{
			Title:       channelTitle,
			Link:        base,
			Description: channelDescription,
			Language:    channelLanguage,
			TTL:         channelTTL,
			Items:       make([]item, 0, min(len(jokes), MaxFeedItems)),
		},
	}

	for _, j := range jokes[:min(len(jokes), MaxFeedItems)] {
		link := JokeURL(base, j)
		doc.Channel.Items = append(doc.Channel.Items, item{
			Title:       truncate(j.Content, titleRunes),
			Link:        link,
			GUID:        link,
			Description: j.Content,
			Author:      strings.TrimSpace(j.Author),
			PubDate:     stamp(j, now).Format(time.RFC1123Z),
		})
	}

	return marshal(doc)
}

type urlSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod"`
	ChangeFreq string `xml:"changefreq"`
	Priority   string `xml:"priority"`
}

// Sitemap lists the static pages, every approved joke and every tag page.
func Sitemap(baseURL string, jokes []models.Joke, tags []string, now time.Time) ([]byte, error) {
	base := strings.TrimRight(baseURL, "/")
	today := now.UTC().Format(time.DateOnly)

	set := urlSet{
		XMLNS: "http://www.sitemaps.org/schemas/sitemap/0.9",
		URLs: []sitemapURL{
			{Loc: base, LastMod: today, ChangeFreq: "daily", Priority: "1.0"},
			{Loc: base + "/jokes", LastMod: today, ChangeFreq: "daily", Priority: "0.9"},
			{Loc: base + "/submit", LastMod: today, ChangeFreq: "yearly", Priority: "0.5"},
		},
	}

	for _, j := range jokes {
		set.URLs = append(set.URLs, sitemapURL{
			Loc:        JokeURL(base, j),
			LastMod:    stamp(j, now).UTC().Format(time.DateOnly),
			ChangeFreq: "weekly",
			Priority:   "0.7",
		})
	}
	for _, tag := range tags {
		set.URLs = append(set.URLs, sitemapURL{
			Loc:        base + "/tag/" + url.PathEscape(tag),
			LastMod:    today,
			ChangeFreq: "weekly",
			Priority:   "0.6",
		})
	}

	return marshal(set)
}

func marshal(v any) ([]byte, error) {
	body, err := xml.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}

func stamp(j models.Joke, now time.Time) time.Time {
	if j.CreatedAt != nil {
		return *j.CreatedAt
	}
	return now
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

package facebook

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
	"golang.org/x/net/html"

	"github.com/leadscan/lead-scan-bot/internal/core/domain"
	"github.com/leadscan/lead-scan-bot/internal/process/scan"
)

const (
	articleSelector     = `article, div[role="article"]`
	postLinkSelector    = `a[href*="/posts/"], a[href*="/permalink/"]`
	profileLinkSelector = `a[href*="/user/"], a[href*="/profile.php"]`

	authorUnknown = "Unknown"

	minPostTextRunes  = 10
	minTextBlockRunes = 30
	maxPostTextRunes  = 2000
	maxAuthorRunes    = 100
	minGroupNameRunes = 3
	maxGroupNameRunes = 100
)

// Author names live in header links; the markup varies between feed layouts,
// so several shapes are tried in order.
var authorSelectors = []string{
	`h2 a[role="link"]`,
	`h3 a[role="link"]`,
	`a[role="link"] strong`,
	`span[dir="auto"] > a[role="link"]`,
}

var (
	postIDExpr      = regexp.MustCompile(`/posts/(\d+)`)
	permalinkIDExpr = regexp.MustCompile(`/permalink/(\d+)`)
	groupIDExpr     = regexp.MustCompile(`/groups/(\d+|[^/?]+)`)
	userIDExpr      = regexp.MustCompile(`/user/(\d+)`)
	profileIDExpr   = regexp.MustCompile(`[?&]id=(\d+)`)

	spaceRunExpr = regexp.MustCompile(`[ \t\r]+`)
)

// Navigation chrome on the groups listing page uses the same /groups/ href
// prefix as real group cards.
var listingSkipPatterns = []string{
	"category=create",
	"/groups/feed",
	"/groups/discover",
	"/groups/search",
	"/groups/joins",
	"/groups/notifications",
}

var listingButtonTexts = []string{"Создать", "Create", "Посмотреть", "View", "Ещё", "More"}

var blockTags = map[string]bool{
	"div":        true,
	"p":          true,
	"li":         true,
	"tr":         true,
	"h1":         true,
	"h2":         true,
	"h3":         true,
	"h4":         true,
	"blockquote": true,
}

// collectPosts walks the feed articles in page order, newest first. The walk
// stops at the first already-processed post: everything below it was handled
// in an earlier committed cycle. Posts older than the bootstrap window are
// skipped without stopping the walk, because feed timestamps parse
// unreliably and posts with unknown age must still get through.
func collectPosts(doc *goquery.Document, src domain.Source, title string, mark scan.FetchMark, seen map[string]struct{}, budget int) ([]domain.CandidateItem, bool) {
	if budget < 1 {
		return nil, false
	}

	items := make([]domain.CandidateItem, 0, budget)
	stop := false

	doc.Find(articleSelector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if len(items) >= budget {
			return false
		}

		item, ok := parseArticle(sel, src, title)
		if !ok {
			return true
		}

		if mark.IsProcessed != nil && mark.IsProcessed(item.ItemID) {
			stop = true

			return false
		}

		if !mark.Bootstrap.IsZero() && item.PostedAt.Before(mark.Bootstrap) {
			return true
		}

		// Reposts and cross-posts repeat the same text under fresh IDs.
		fp := domain.PrefixFingerprint(item.Text)
		if _, dup := seen[fp]; dup {
			return true
		}

		seen[fp] = struct{}{}

		items = append(items, item)

		return true
	})

	return items, stop
}

// parseArticle turns one feed article into a candidate item. Articles without
// a post permalink are chrome or ads; comment permalinks point into a post,
// not at one. Both are dropped.
func parseArticle(sel *goquery.Selection, src domain.Source, title string) (domain.CandidateItem, bool) {
	href, ok := sel.Find(postLinkSelector).First().Attr("href")
	if !ok || href == "" {
		return domain.CandidateItem{}, false
	}

	if strings.Contains(href, "comment_id=") || strings.Contains(href, "reply_comment_id=") {
		return domain.CandidateItem{}, false
	}

	author := parseAuthor(sel)

	text := postText(sel, author.DisplayName)
	if text == "" || utf8.RuneCountInString(text) < minPostTextRunes {
		return domain.CandidateItem{}, false
	}

	text = truncateRunes(text, maxPostTextRunes)

	postID := postIDFromHref(href)
	if postID == "" {
		// Permalink carried no numeric ID; a text hash is stable enough
		// to dedup against later cycles.
		postID = domain.PrefixFingerprint(text)
	}

	return domain.CandidateItem{
		Ref:         src.Ref,
		ItemID:      postID,
		Text:        text,
		Author:      author,
		PostedAt:    postTime(sel),
		SourceTitle: title,
		Link:        absoluteURL(href),
	}, true
}

func parseAuthor(sel *goquery.Selection) domain.Author {
	author := domain.Author{DisplayName: authorUnknown}

	for _, selector := range authorSelectors {
		name := strings.TrimSpace(sel.Find(selector).First().Text())
		if utf8.RuneCountInString(name) > 1 {
			author.DisplayName = truncateRunes(name, maxAuthorRunes)

			break
		}
	}

	if href, ok := sel.Find(profileLinkSelector).First().Attr("href"); ok {
		if m := userIDExpr.FindStringSubmatch(href); m != nil {
			author.PlatformUserID, _ = strconv.ParseInt(m[1], 10, 64)
		} else if m := profileIDExpr.FindStringSubmatch(href); m != nil {
			author.PlatformUserID, _ = strconv.ParseInt(m[1], 10, 64)
		}
	}

	return author
}

// postText picks the first substantive text block. Short blocks are buttons,
// timestamps and reaction counts; a block equal to the author name is the
// header repeated.
func postText(sel *goquery.Selection, authorName string) string {
	var text string

	sel.Find(`div[dir="auto"]`).EachWithBreak(func(_ int, div *goquery.Selection) bool {
		if len(div.Nodes) == 0 {
			return true
		}

		candidate := strings.TrimSpace(visibleText(div.Nodes[0]))
		if utf8.RuneCountInString(candidate) <= minTextBlockRunes {
			return true
		}

		if candidate == authorName {
			return true
		}

		text = candidate

		return false
	})

	return text
}

// postTime reads the article timestamp. Epoch attributes are exact; the
// visible text ("12 August at 10:14") parses on some layouts only. Failures
// fall back to the fetch time.
func postTime(sel *goquery.Selection) time.Time {
	var ts time.Time

	sel.Find("abbr").EachWithBreak(func(_ int, abbr *goquery.Selection) bool {
		if raw, ok := abbr.Attr("data-utime"); ok {
			if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
				ts = time.Unix(secs, 0)

				return false
			}
		}

		if parsed, err := dateparse.ParseAny(strings.TrimSpace(abbr.Text())); err == nil {
			ts = parsed

			return false
		}

		return true
	})

	if ts.IsZero() {
		return time.Now()
	}

	return ts
}

func postIDFromHref(href string) string {
	if m := postIDExpr.FindStringSubmatch(href); m != nil {
		return m[1]
	}

	if m := permalinkIDExpr.FindStringSubmatch(href); m != nil {
		return m[1]
	}

	return ""
}

// groupTitle reads the group name from the feed page, h1 first, page title
// as fallback. Empty when neither is present.
func groupTitle(doc *goquery.Document) string {
	if name := strings.TrimSpace(doc.Find("h1").First().Text()); name != "" {
		return name
	}

	title := doc.Find("title").First().Text()
	if before, _, found := strings.Cut(title, "|"); found {
		return strings.TrimSpace(before)
	}

	return strings.TrimSpace(title)
}

// nextPageURL finds the feed's "see more posts" cursor link. The cursor
// parameter is spelled differently across mobile layouts.
func nextPageURL(doc *goquery.Document, current string) (string, bool) {
	href, ok := doc.Find(`a[href*="bacr="], a[href*="cursor="]`).First().Attr("href")
	if !ok || href == "" {
		return "", false
	}

	base, err := url.Parse(current)
	if err != nil {
		return "", false
	}

	next, err := url.Parse(href)
	if err != nil {
		return "", false
	}

	return base.ResolveReference(next).String(), true
}

type groupEntry struct {
	id   string
	name string
	url  string
}

// collectGroupDirectory extracts joined groups from the groups listing page.
// Hrefs and link texts are validated before the dedup check so that a
// skipped chrome link never shadows the real card for the same group.
func collectGroupDirectory(doc *goquery.Document) []groupEntry {
	links := doc.Find(`div[role="main"]`).Find(`a[href*="/groups/"]`)
	if links.Length() == 0 {
		links = doc.Find(`a[href*="/groups/"]`)
	}

	seen := make(map[string]struct{})
	entries := make([]groupEntry, 0, links.Length())

	links.Each(func(_ int, link *goquery.Selection) {
		href, ok := link.Attr("href")
		if !ok || href == "" {
			return
		}

		for _, pattern := range listingSkipPatterns {
			if strings.Contains(href, pattern) {
				return
			}
		}

		m := groupIDExpr.FindStringSubmatch(href)
		if m == nil {
			return
		}

		name := strings.TrimSpace(link.Text())
		if utf8.RuneCountInString(name) < minGroupNameRunes {
			return
		}

		for _, btn := range listingButtonTexts {
			if strings.HasPrefix(name, btn) {
				return
			}
		}

		if _, dup := seen[m[1]]; dup {
			return
		}

		seen[m[1]] = struct{}{}

		entries = append(entries, groupEntry{
			id:   m[1],
			name: truncateRunes(name, maxGroupNameRunes),
			url:  strings.SplitN(absoluteURL(href), "?", 2)[0],
		})
	})

	return entries
}

// visibleText flattens rendered text the way a browser would: block elements
// and <br> break lines, scripts and styles contribute nothing.
func visibleText(n *html.Node) string {
	var b strings.Builder

	var walk func(*html.Node)
	walk = func(node *html.Node) {
		switch node.Type {
		case html.TextNode:
			b.WriteString(node.Data)

			return
		case html.ElementNode:
			switch node.Data {
			case "script", "style", "noscript":
				return
			case "br":
				b.WriteByte('\n')

				return
			}
		}

		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}

		if node.Type == html.ElementNode && blockTags[node.Data] {
			b.WriteByte('\n')
		}
	}
	walk(n)

	return collapseSpace(b.String())
}

func collapseSpace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))

	for _, line := range lines {
		line = strings.TrimSpace(spaceRunExpr.ReplaceAllString(line, " "))
		if line == "" {
			continue
		}

		out = append(out, line)
	}

	return strings.Join(out, "\n")
}

// absoluteURL resolves feed-relative hrefs against the canonical host, which
// serves every post path the mobile host does.
func absoluteURL(href string) string {
	if strings.HasPrefix(href, "http") {
		return href
	}

	return canonicalHost + href
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}

	return string(runes[:limit])
}

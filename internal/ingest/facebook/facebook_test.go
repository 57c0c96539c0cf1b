package facebook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/leadscan/lead-scan-bot/internal/core/domain"
	"github.com/leadscan/lead-scan-bot/internal/platform/config"
	"github.com/leadscan/lead-scan-bot/internal/process/scan"
)

const testCookie = "c_user=100; xs=session"

func newTestScraper(baseURL string, groupIDs ...string) *Scraper {
	logger := zerolog.Nop()

	s := New(config.FacebookConfig{
		BaseURL:       baseURL,
		Cookie:        testCookie,
		GroupIDs:      groupIDs,
		PostsPerGroup: 20,
		MaxWorkers:    3,
		MaxPages:      10,
		FetchTimeout:  5 * time.Second,
	}, &logger)
	s.pageDelay = 0

	return s
}

func groupSrc(id, title string) domain.Source {
	return domain.Source{
		Ref:     domain.SourceRef{Kind: domain.KindGroup, ID: id},
		Title:   title,
		Enabled: true,
	}
}

func parseDoc(t *testing.T, markup string) *goquery.Document {
	t.Helper()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}

	return doc
}

// feedArticle renders one post the way the mobile feed does: author header
// link, text block, timestamp, permalink. The author profile ID is the post
// ID times ten.
func feedArticle(postID int, utime int64, author, text string) string {
	return fmt.Sprintf(`<div role="article">
  <h3><a role="link" href="/user/%d/">%s</a></h3>
  <div dir="auto">%s</div>
  <abbr data-utime="%d">вчера</abbr>
  <a href="/groups/988/posts/%d/?anchor_reactions=1">Полная история</a>
</div>`, postID*10, author, text, utime, postID)
}

func feedPage(title, moreHref string, articles ...string) string {
	var b strings.Builder

	b.WriteString("<html><head><title>")
	b.WriteString(title)
	b.WriteString(" | Facebook</title></head><body><h1>")
	b.WriteString(title)
	b.WriteString(`</h1><div role="main">`)

	for _, article := range articles {
		b.WriteString(article)
	}

	if moreHref != "" {
		b.WriteString(`<a href="` + moreHref + `">Показать ещё</a>`)
	}

	b.WriteString("</div></body></html>")

	return b.String()
}

// recordingServer serves pages keyed by a chooser func and records every
// request URL and cookie header.
type recordingServer struct {
	*httptest.Server

	mu      sync.Mutex
	urls    []string
	cookies []string
}

func newRecordingServer(t *testing.T, serve func(r *http.Request) (string, int)) *recordingServer {
	t.Helper()

	rs := &recordingServer{}
	rs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rs.mu.Lock()
		rs.urls = append(rs.urls, r.URL.String())
		rs.cookies = append(rs.cookies, r.Header.Get("Cookie"))
		rs.mu.Unlock()

		body, status := serve(r)
		if status != http.StatusOK {
			w.WriteHeader(status)

			return
		}

		fmt.Fprint(w, body)
	}))
	t.Cleanup(rs.Server.Close)

	return rs
}

func (rs *recordingServer) requests() []string {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	return append([]string(nil), rs.urls...)
}

func (rs *recordingServer) cookieHeaders() []string {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	return append([]string(nil), rs.cookies...)
}

func TestParseArticle(t *testing.T) {
	text := "Продам детскую коляску, состояние отличное, самовывоз из центра Аликанте"
	posted := time.Now().Add(-2 * time.Hour).Unix()
	doc := parseDoc(t, feedPage("Барахолка Аликанте", "", feedArticle(412, posted, "Мария Лопес", text)))

	src := groupSrc("988", "")

	item, ok := parseArticle(doc.Find(`div[role="article"]`).First(), src, "Барахолка Аликанте")
	if !ok {
		t.Fatal("parseArticle() rejected a valid post")
	}

	if item.ItemID != "412" {
		t.Errorf("ItemID = %q, want 412", item.ItemID)
	}

	if item.Ref != src.Ref {
		t.Errorf("Ref = %+v, want %+v", item.Ref, src.Ref)
	}

	if item.Text != text {
		t.Errorf("Text = %q, want %q", item.Text, text)
	}

	if item.Author.DisplayName != "Мария Лопес" {
		t.Errorf("author = %q, want Мария Лопес", item.Author.DisplayName)
	}

	if item.Author.PlatformUserID != 4120 {
		t.Errorf("author ID = %d, want 4120", item.Author.PlatformUserID)
	}

	if item.SourceTitle != "Барахолка Аликанте" {
		t.Errorf("SourceTitle = %q", item.SourceTitle)
	}

	want := "https://www.facebook.com/groups/988/posts/412/?anchor_reactions=1"
	if item.Link != want {
		t.Errorf("Link = %q, want %q", item.Link, want)
	}

	if item.PostedAt.Unix() != posted {
		t.Errorf("PostedAt = %v, want unix %d", item.PostedAt, posted)
	}

	if item.Ordinal != 0 {
		t.Errorf("Ordinal = %d, want 0 for a group post", item.Ordinal)
	}
}

func TestParseArticleRejects(t *testing.T) {
	longAuthor := "Анна-Мария Фернандес де ла Крус Гонсалес"

	tests := []struct {
		name   string
		markup string
	}{
		{
			name:   "no post link",
			markup: `<div role="article"><div dir="auto">Длинный рекламный блок сбоку без постоянной ссылки на запись</div></div>`,
		},
		{
			name:   "comment permalink",
			markup: `<div role="article"><div dir="auto">Длинный текст комментария, который сам по себе выглядит как пост</div><a href="/groups/988/posts/412/?comment_id=55&amp;av=1">Комментарий</a></div>`,
		},
		{
			name:   "reply permalink",
			markup: `<div role="article"><div dir="auto">Длинный текст ответа на комментарий, который выглядит как пост</div><a href="/groups/988/posts/412/?reply_comment_id=7">Ответ</a></div>`,
		},
		{
			name:   "text too short",
			markup: `<div role="article"><div dir="auto">Продам</div><a href="/groups/988/posts/412/">Пост</a></div>`,
		},
		{
			name: "text equals author",
			markup: `<div role="article"><h3><a role="link" href="/user/1/">` + longAuthor + `</a></h3>` +
				`<div dir="auto">` + longAuthor + `</div><a href="/groups/988/posts/412/">Пост</a></div>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := parseDoc(t, tt.markup)

			if _, ok := parseArticle(doc.Find(`div[role="article"]`).First(), groupSrc("988", ""), ""); ok {
				t.Error("parseArticle() accepted the article")
			}
		})
	}
}

func TestParseArticleFallbackID(t *testing.T) {
	markup := `<div role="article">
  <div dir="auto">Ищу мастера по ремонту стиральных машин, срочно, район Сан-Хуан</div>
  <a href="/groups/988/permalink/?story_fbid=pfbid0abc">Открыть</a>
</div>`

	item, ok := parseArticle(parseDoc(t, markup).Find(`div[role="article"]`).First(), groupSrc("988", ""), "")
	if !ok {
		t.Fatal("parseArticle() rejected the post")
	}

	if item.Author.DisplayName != authorUnknown {
		t.Errorf("author = %q, want %q", item.Author.DisplayName, authorUnknown)
	}

	if item.Author.PlatformUserID != 0 {
		t.Errorf("author ID = %d, want 0", item.Author.PlatformUserID)
	}

	if want := domain.PrefixFingerprint(item.Text); item.ItemID != want {
		t.Errorf("ItemID = %q, want text fingerprint %q", item.ItemID, want)
	}
}

func TestPostIDFromHref(t *testing.T) {
	tests := []struct {
		href string
		want string
	}{
		{"/groups/988/posts/4120057/?comment_tracking=x", "4120057"},
		{"/groups/988/permalink/991234/", "991234"},
		{"https://www.facebook.com/groups/baraholka/posts/55", "55"},
		{"/groups/988/permalink/?story_fbid=pfbid0abc", ""},
	}

	for _, tt := range tests {
		if got := postIDFromHref(tt.href); got != tt.want {
			t.Errorf("postIDFromHref(%q) = %q, want %q", tt.href, got, tt.want)
		}
	}
}

func TestPostTime(t *testing.T) {
	t.Run("epoch attribute", func(t *testing.T) {
		doc := parseDoc(t, `<div role="article"><abbr data-utime="1755900000">вчера</abbr></div>`)

		got := postTime(doc.Find(`div[role="article"]`).First())
		if got.Unix() != 1755900000 {
			t.Errorf("postTime() = %v, want unix 1755900000", got)
		}
	})

	t.Run("parseable text", func(t *testing.T) {
		doc := parseDoc(t, `<div role="article"><abbr>2026-08-12 10:14</abbr></div>`)

		got := postTime(doc.Find(`div[role="article"]`).First())
		if got.Year() != 2026 || got.Month() != time.August || got.Day() != 12 {
			t.Errorf("postTime() = %v, want 2026-08-12", got)
		}
	})

	t.Run("unparseable falls back to now", func(t *testing.T) {
		doc := parseDoc(t, `<div role="article"><abbr>5 мин.</abbr></div>`)

		got := postTime(doc.Find(`div[role="article"]`).First())
		if time.Since(got) > time.Minute {
			t.Errorf("postTime() = %v, want roughly now", got)
		}
	})
}

func TestVisibleText(t *testing.T) {
	markup := `<div dir="auto"><div>Продам шкаф IKEA.</div><script>alert(1)</script>` +
		`<div>Цена  50€, <strong>торг</strong>.</div>Хорошее состояние<br>Звоните!</div>`

	sel := parseDoc(t, markup).Find(`div[dir="auto"]`).First()
	if len(sel.Nodes) == 0 {
		t.Fatal("fixture has no text block")
	}

	want := "Продам шкаф IKEA.\nЦена 50€, торг.\nХорошее состояние\nЗвоните!"
	if got := visibleText(sel.Nodes[0]); got != want {
		t.Errorf("visibleText() = %q, want %q", got, want)
	}
}

func TestGroupTitle(t *testing.T) {
	tests := []struct {
		name   string
		markup string
		want   string
	}{
		{"h1 wins", `<html><head><title>Другое | Facebook</title></head><body><h1> Барахолка </h1></body></html>`, "Барахолка"},
		{"title fallback", `<html><head><title>Expats in Alicante | Facebook</title></head><body></body></html>`, "Expats in Alicante"},
		{"plain title", `<html><head><title>Expats</title></head><body></body></html>`, "Expats"},
		{"nothing", `<html><body><div>x</div></body></html>`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := groupTitle(parseDoc(t, tt.markup)); got != tt.want {
				t.Errorf("groupTitle() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNextPageURL(t *testing.T) {
	doc := parseDoc(t, `<html><body><a href="/groups/988?sorting_setting=CHRONOLOGICAL&amp;bacr=AQHR123">Ещё</a></body></html>`)

	got, ok := nextPageURL(doc, "https://m.facebook.com/groups/988?sorting_setting=CHRONOLOGICAL")
	if !ok {
		t.Fatal("nextPageURL() found no cursor link")
	}

	want := "https://m.facebook.com/groups/988?sorting_setting=CHRONOLOGICAL&bacr=AQHR123"
	if got != want {
		t.Errorf("nextPageURL() = %q, want %q", got, want)
	}

	if _, ok := nextPageURL(parseDoc(t, `<html><body><a href="/groups/988">Группа</a></body></html>`), "https://m.facebook.com/x"); ok {
		t.Error("nextPageURL() invented a cursor link")
	}
}

func TestCollectGroupDirectory(t *testing.T) {
	markup := `<html><body><div role="main">
  <a href="/groups/feed/">Лента групп</a>
  <a href="/groups/?category=create">Создать группу</a>
  <a href="/groups/discover/">Рекомендации</a>
  <a href="/groups/100200300/?ref=group_browse">Барахолка Аликанте</a>
  <a href="/groups/100200300/?ref=group_browse">Барахолка Аликанте</a>
  <a href="/groups/expats.alicante?ref=br">Expats in Alicante</a>
  <a href="/groups/555/">ОК</a>
  <a href="/groups/777/">Посмотреть все группы</a>
</div></body></html>`

	entries := collectGroupDirectory(parseDoc(t, markup))
	if len(entries) != 2 {
		t.Fatalf("collectGroupDirectory() returned %d entries, want 2: %+v", len(entries), entries)
	}

	if entries[0].id != "100200300" || entries[0].name != "Барахолка Аликанте" {
		t.Errorf("first entry = %+v", entries[0])
	}

	if entries[0].url != "https://www.facebook.com/groups/100200300/" {
		t.Errorf("first entry url = %q, want query stripped", entries[0].url)
	}

	if entries[1].id != "expats.alicante" || entries[1].name != "Expats in Alicante" {
		t.Errorf("second entry = %+v", entries[1])
	}
}

func TestFetchNewEarlyStop(t *testing.T) {
	now := time.Now().Unix()
	page := feedPage("Барахолка Аликанте", "/groups/988?sorting_setting=CHRONOLOGICAL&amp;bacr=NEXT",
		feedArticle(103, now-3600, "Мария Лопес", "Продам коляску, почти новая, отдам недорого, самовывоз из центра"),
		feedArticle(102, now-7200, "Хуан Перес", "Ищу электрика для замены проводки в квартире, желательно срочно"),
		feedArticle(101, now-9000, "Олег Иванов", "Сдам комнату с балконом на длительный срок, центр, рядом море"),
	)

	srv := newRecordingServer(t, func(*http.Request) (string, int) {
		return page, http.StatusOK
	})

	s := newTestScraper(srv.URL)
	mark := scan.FetchMark{IsProcessed: func(id string) bool { return id == "101" }}

	res, err := s.FetchNew(context.Background(), groupSrc("988", ""), mark)
	if err != nil {
		t.Fatalf("FetchNew() error = %v", err)
	}

	if len(res.Items) != 2 {
		t.Fatalf("FetchNew() returned %d items, want 2", len(res.Items))
	}

	// Oldest first, processed post excluded.
	if res.Items[0].ItemID != "102" || res.Items[1].ItemID != "103" {
		t.Errorf("item order = [%s %s], want [102 103]", res.Items[0].ItemID, res.Items[1].ItemID)
	}

	if res.MaxOrdinal != 0 {
		t.Errorf("MaxOrdinal = %d, want 0 for a group", res.MaxOrdinal)
	}

	if res.Items[0].SourceTitle != "Барахолка Аликанте" {
		t.Errorf("SourceTitle = %q, want page h1", res.Items[0].SourceTitle)
	}

	reqs := srv.requests()
	if len(reqs) != 1 {
		t.Fatalf("server saw %d requests, want 1 despite the cursor link", len(reqs))
	}

	if !strings.Contains(reqs[0], feedSortQuery) {
		t.Errorf("feed request %q missing chronological sort", reqs[0])
	}

	if cookies := srv.cookieHeaders(); cookies[0] != testCookie {
		t.Errorf("cookie header = %q, want session cookie", cookies[0])
	}
}

func TestFetchNewPagination(t *testing.T) {
	now := time.Now().Unix()
	page1 := feedPage("Барахолка", "/groups/988?sorting_setting=CHRONOLOGICAL&amp;bacr=PAGE2",
		feedArticle(204, now-600, "Мария", "Продам горные лыжи с ботинками, размер 42, состояние хорошее"),
		feedArticle(203, now-1200, "Хуан", "Нужен сантехник на замену смесителя в ванной, оплата сразу"),
	)
	page2 := feedPage("Барахолка", "",
		feedArticle(202, now-1800, "Олег", "Продам холодильник Balay, работает тихо, самовывоз вечером"),
		feedArticle(201, now-2400, "Анна", "Отдам котёнка в добрые руки, к лотку приучен, два месяца"),
	)

	srv := newRecordingServer(t, func(r *http.Request) (string, int) {
		if r.URL.Query().Get("bacr") == "PAGE2" {
			return page2, http.StatusOK
		}

		return page1, http.StatusOK
	})

	s := newTestScraper(srv.URL)
	s.cfg.PostsPerGroup = 3

	res, err := s.FetchNew(context.Background(), groupSrc("988", ""), scan.FetchMark{})
	if err != nil {
		t.Fatalf("FetchNew() error = %v", err)
	}

	if len(res.Items) != 3 {
		t.Fatalf("FetchNew() returned %d items, want limit 3", len(res.Items))
	}

	if res.Items[0].ItemID != "202" || res.Items[2].ItemID != "204" {
		t.Errorf("item order = [%s %s %s], want [202 203 204]",
			res.Items[0].ItemID, res.Items[1].ItemID, res.Items[2].ItemID)
	}

	reqs := srv.requests()
	if len(reqs) != 2 {
		t.Fatalf("server saw %d requests, want 2 pages", len(reqs))
	}

	if !strings.Contains(reqs[1], "bacr=PAGE2") {
		t.Errorf("second request %q did not follow the cursor", reqs[1])
	}
}

func TestFetchNewSessionDedup(t *testing.T) {
	now := time.Now().Unix()
	text := "Продаю два кресла и журнальный столик, забирать в Сан-Висенте"
	page := feedPage("Барахолка", "",
		feedArticle(302, now-600, "Мария", text),
		feedArticle(301, now-1200, "Мария", text),
	)

	srv := newRecordingServer(t, func(*http.Request) (string, int) {
		return page, http.StatusOK
	})

	res, err := newTestScraper(srv.URL).FetchNew(context.Background(), groupSrc("988", ""), scan.FetchMark{})
	if err != nil {
		t.Fatalf("FetchNew() error = %v", err)
	}

	if len(res.Items) != 1 || res.Items[0].ItemID != "302" {
		t.Errorf("items = %+v, want only the first copy (302)", res.Items)
	}
}

func TestFetchNewBootstrapWindow(t *testing.T) {
	now := time.Now()
	noTimestamp := `<div role="article">
  <h3><a role="link" href="/user/4010/">Пабло</a></h3>
  <div dir="auto">Ищу репетитора испанского для ребёнка, занятия два раза в неделю</div>
  <a href="/groups/988/posts/401/">Пост</a>
</div>`

	page := feedPage("Барахолка", "",
		feedArticle(403, now.Add(-time.Hour).Unix(), "Мария", "Продам самокат Xiaomi, пробег маленький, зарядка в комплекте"),
		feedArticle(402, now.Add(-48*time.Hour).Unix(), "Хуан", "Старое объявление о продаже дивана, почти неделю уже висит тут"),
		noTimestamp,
	)

	srv := newRecordingServer(t, func(*http.Request) (string, int) {
		return page, http.StatusOK
	})

	mark := scan.FetchMark{Bootstrap: now.Add(-24 * time.Hour)}

	res, err := newTestScraper(srv.URL).FetchNew(context.Background(), groupSrc("988", ""), mark)
	if err != nil {
		t.Fatalf("FetchNew() error = %v", err)
	}

	if len(res.Items) != 2 {
		t.Fatalf("FetchNew() returned %d items, want 2 inside the window", len(res.Items))
	}

	// The post with no parseable timestamp must get through.
	if res.Items[0].ItemID != "401" || res.Items[1].ItemID != "403" {
		t.Errorf("item order = [%s %s], want [401 403]", res.Items[0].ItemID, res.Items[1].ItemID)
	}
}

func TestFetchNewFirstPageError(t *testing.T) {
	srv := newRecordingServer(t, func(*http.Request) (string, int) {
		return "", http.StatusInternalServerError
	})

	_, err := newTestScraper(srv.URL).FetchNew(context.Background(), groupSrc("988", ""), scan.FetchMark{})
	if err == nil {
		t.Fatal("FetchNew() succeeded against a broken feed")
	}
}

func TestFetchNewLaterPageErrorKeepsItems(t *testing.T) {
	now := time.Now().Unix()
	page1 := feedPage("Барахолка", "/groups/988?sorting_setting=CHRONOLOGICAL&amp;bacr=PAGE2",
		feedArticle(204, now-600, "Мария", "Продам велосипед детский, колёса 16 дюймов, шлем в подарок"),
	)

	srv := newRecordingServer(t, func(r *http.Request) (string, int) {
		if r.URL.Query().Get("bacr") == "PAGE2" {
			return "", http.StatusBadGateway
		}

		return page1, http.StatusOK
	})

	res, err := newTestScraper(srv.URL).FetchNew(context.Background(), groupSrc("988", ""), scan.FetchMark{})
	if err != nil {
		t.Fatalf("FetchNew() error = %v, want earlier pages kept", err)
	}

	if len(res.Items) != 1 || res.Items[0].ItemID != "204" {
		t.Errorf("items = %+v, want the first page's post", res.Items)
	}
}

func TestListSourcesConfigured(t *testing.T) {
	srv := newRecordingServer(t, func(r *http.Request) (string, int) {
		switch r.URL.Path {
		case "/groups/988":
			return feedPage("Барахолка Аликанте", ""), http.StatusOK
		case "/groups/expats.alicante":
			return feedPage("Expats in Alicante", ""), http.StatusOK
		default:
			return "", http.StatusNotFound
		}
	})

	s := newTestScraper(srv.URL, "988", "expats.alicante")

	sources, err := s.ListSources(context.Background())
	if err != nil {
		t.Fatalf("ListSources() error = %v", err)
	}

	if len(sources) != 2 {
		t.Fatalf("ListSources() returned %d sources, want 2", len(sources))
	}

	if sources[0].Ref.ID != "988" || sources[0].Title != "Барахолка Аликанте" {
		t.Errorf("first source = %+v", sources[0])
	}

	if sources[1].Ref.ID != "expats.alicante" || sources[1].Title != "Expats in Alicante" {
		t.Errorf("second source = %+v", sources[1])
	}

	for _, src := range sources {
		if src.Ref.Kind != domain.KindGroup || !src.Enabled {
			t.Errorf("source %+v, want enabled group", src)
		}
	}

	before := len(srv.requests())

	if _, err := s.ListSources(context.Background()); err != nil {
		t.Fatalf("second ListSources() error = %v", err)
	}

	if after := len(srv.requests()); after != before {
		t.Errorf("second listing fetched %d extra pages, want cached titles", after-before)
	}
}

func TestListSourcesDiscovery(t *testing.T) {
	listing := `<html><body><div role="main">
  <a href="/groups/?category=create">Создать группу</a>
  <a href="/groups/100200300/?ref=browse">Барахолка Аликанте</a>
  <a href="/groups/expats.alicante?ref=browse">Expats in Alicante</a>
</div></body></html>`

	srv := newRecordingServer(t, func(r *http.Request) (string, int) {
		if r.URL.Path == "/groups/joins/" {
			return listing, http.StatusOK
		}

		return "", http.StatusNotFound
	})

	sources, err := newTestScraper(srv.URL).ListSources(context.Background())
	if err != nil {
		t.Fatalf("ListSources() error = %v", err)
	}

	if len(sources) != 2 {
		t.Fatalf("ListSources() discovered %d groups, want 2", len(sources))
	}

	if sources[0].Ref.ID != "100200300" || sources[1].Ref.ID != "expats.alicante" {
		t.Errorf("discovered = [%s %s]", sources[0].Ref.ID, sources[1].Ref.ID)
	}
}

func TestFetchNewLoginRedirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/login") {
			fmt.Fprint(w, "login")

			return
		}

		http.Redirect(w, r, "/login.php?next=feed", http.StatusFound)
	}))
	defer srv.Close()

	_, err := newTestScraper(srv.URL).FetchNew(context.Background(), groupSrc("988", ""), scan.FetchMark{})
	if !errors.Is(err, ErrLoginRedirect) {
		t.Errorf("FetchNew() error = %v, want ErrLoginRedirect", err)
	}
}

package rss

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/iabetor/feedstream/internal/cache"
)

const testRSSFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Test Blog</title>
    <link>https://example.com</link>
    <description>A test RSS feed</description>
    <item>
      <title>Second post</title>
      <link>https://example.com/post/2</link>
      <description>&lt;p&gt;Second post with &lt;b&gt;HTML&lt;/b&gt;.&lt;/p&gt;</description>
      <pubDate>Thu, 19 Feb 2026 07:00:00 +0000</pubDate>
    </item>
    <item>
      <title>First post</title>
      <link>https://example.com/post/1</link>
      <description>Oldest entry</description>
      <pubDate>Thu, 19 Feb 2026 06:00:00 +0000</pubDate>
    </item>
    <item>
      <title>Third post</title>
      <link>https://example.com/post/3</link>
      <description>Newest entry</description>
      <pubDate>Thu, 19 Feb 2026 08:00:00 +0000</pubDate>
    </item>
  </channel>
</rss>`

const testAtomFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Atom Blog</title>
  <entry>
    <title>Atom entry</title>
    <link href="https://example.com/atom/1"/>
    <content type="html">&lt;p&gt;Only content here&lt;/p&gt;</content>
    <updated>2026-02-19T09:00:00+08:00</updated>
  </entry>
</feed>`

const emptyRSSFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Empty</title></channel></rss>`

const untitledRSSFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <item><title>Only</title><link>https://example.com/only</link><description>x</description></item>
  </channel>
</rss>`

// rssWithItems 生成包含 n 个条目的 RSS 文档，第 i 个条目的时间为 base+i 小时。
func rssWithItems(n int) string {
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?><rss version="2.0"><channel><title>Many</title>`)
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, `<item><title>item-%d</title><link>https://example.com/%d</link><description>d</description><pubDate>%s</pubDate></item>`,
			i, i, base.Add(time.Duration(i)*time.Hour).Format(time.RFC1123Z))
	}
	sb.WriteString(`</channel></rss>`)
	return sb.String()
}

func writeFeed(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/xml")
	fmt.Fprint(w, content)
}

func newTestLocator(opts LocatorOptions) (*Locator, *cache.TTL[string]) {
	locations := cache.New[string](200, time.Hour)
	client := NewHTTPClient(HTTPOptions{UserAgent: "feedstream-test"})
	return NewLocator(client, NewParser(2), locations, opts), locations
}

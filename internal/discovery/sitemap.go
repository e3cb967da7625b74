package discovery

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

const maxSitemapBytes = 2 * 1024 * 1024

// sitemapURLSet represents a <urlset> document.
type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	URLs    []sitemapLoc `xml:"url"`
}

// sitemapIndex represents a <sitemapindex> document pointing at child
// sitemaps.
type sitemapIndex struct {
	XMLName  xml.Name     `xml:"sitemapindex"`
	Sitemaps []sitemapLoc `xml:"sitemap"`
}

type sitemapLoc struct {
	Loc string `xml:"loc"`
}

// fetchSitemap retrieves and parses /sitemap.xml for the base host,
// returning same-host URLs. A <sitemapindex> is followed one hop into
// its child sitemaps; indexes nested deeper than that are ignored.
func (e *Executor) fetchSitemap(ctx context.Context, base *url.URL) []string {
	root := base.Scheme + "://" + base.Host + "/sitemap.xml"

	body := e.fetchXML(ctx, root)
	if body == nil {
		return nil
	}

	var index sitemapIndex
	if err := xml.Unmarshal(body, &index); err == nil && len(index.Sitemaps) > 0 {
		var urls []string
		for _, child := range index.Sitemaps {
			loc := strings.TrimSpace(child.Loc)
			if loc == "" {
				continue
			}
			childBody := e.fetchXML(ctx, loc)
			if childBody == nil {
				continue
			}
			urls = append(urls, parseURLSet(childBody, base)...)
		}
		zap.L().Debug("discovery: sitemap index expanded",
			zap.Int("children", len(index.Sitemaps)),
			zap.Int("urls", len(urls)),
		)
		return urls
	}

	return parseURLSet(body, base)
}

func (e *Executor) fetchXML(ctx context.Context, rawURL string) []byte {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := e.http.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSitemapBytes))
	if err != nil {
		return nil
	}
	return body
}

// parseURLSet extracts same-host URLs from a <urlset> document.
func parseURLSet(body []byte, base *url.URL) []string {
	var urlSet sitemapURLSet
	if err := xml.Unmarshal(body, &urlSet); err != nil {
		return nil
	}

	var urls []string
	for _, entry := range urlSet.URLs {
		loc := strings.TrimSpace(entry.Loc)
		if loc == "" {
			continue
		}
		u, err := url.Parse(loc)
		if err != nil || u.Host != base.Host {
			continue
		}
		urls = append(urls, loc)
	}
	return urls
}

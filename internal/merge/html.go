package merge

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/sells-group/company-intel/internal/model"
)

// mergeHTML fuses the HTML documents across passes. With PreserveAllHTML
// set, every document is kept verbatim with a provenance comment.
// Otherwise the first document is the base and later documents contribute
// only body children and head meta tags not already present. An
// unparseable document degrades to the base rather than failing the merge.
func mergeHTML(passes []model.ScrapingPass, opts Options) string {
	var docs []model.ScrapingPass
	for _, p := range passes {
		if strings.TrimSpace(p.Result.HTML) != "" {
			docs = append(docs, p)
		}
	}
	if len(docs) == 0 {
		return ""
	}

	if opts.PreserveAllHTML {
		var b strings.Builder
		for _, p := range docs {
			fmt.Fprintf(&b, "<!-- source: %s/%s at %s -->\n", p.Scraper, p.Strategy, p.Timestamp.UTC().Format("2006-01-02T15:04:05Z"))
			b.WriteString(p.Result.HTML)
			b.WriteString("\n")
		}
		return b.String()
	}

	if len(docs) == 1 {
		return docs[0].Result.HTML
	}

	base, err := goquery.NewDocumentFromReader(strings.NewReader(docs[0].Result.HTML))
	if err != nil {
		zap.L().Debug("merge: base html unparseable, keeping first document", zap.Error(err))
		return docs[0].Result.HTML
	}

	baseBody := base.Find("body").First()
	baseHead := base.Find("head").First()

	for _, p := range docs[1:] {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(p.Result.HTML))
		if err != nil {
			zap.L().Debug("merge: html pass unparseable, skipped",
				zap.String("scraper", p.Scraper),
				zap.Error(err),
			)
			continue
		}

		bodyHTML, _ := baseBody.Html()
		doc.Find("body").First().Children().Each(func(_ int, sel *goquery.Selection) {
			outer, err := goquery.OuterHtml(sel)
			if err != nil || strings.TrimSpace(outer) == "" {
				return
			}
			if !strings.Contains(bodyHTML, strings.TrimSpace(outer)) {
				baseBody.AppendHtml(outer)
				bodyHTML += outer
			}
		})

		doc.Find("head meta").Each(func(_ int, sel *goquery.Selection) {
			key, ok := metaKey(sel)
			if !ok || hasMeta(baseHead, key) {
				return
			}
			if outer, err := goquery.OuterHtml(sel); err == nil {
				baseHead.AppendHtml(outer)
			}
		})
	}

	out, err := base.Html()
	if err != nil {
		return docs[0].Result.HTML
	}
	return out
}

// metaKey returns the name or property attribute identifying a meta tag.
func metaKey(sel *goquery.Selection) (string, bool) {
	if name, ok := sel.Attr("name"); ok && name != "" {
		return "name=" + name, true
	}
	if prop, ok := sel.Attr("property"); ok && prop != "" {
		return "property=" + prop, true
	}
	return "", false
}

func hasMeta(head *goquery.Selection, key string) bool {
	found := false
	head.Find("meta").Each(func(_ int, sel *goquery.Selection) {
		if k, ok := metaKey(sel); ok && k == key {
			found = true
		}
	})
	return found
}

package scraper

import (
	"context"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// PaginationKind identifies a multi-page content mechanism.
type PaginationKind string

const (
	PaginationInfiniteScroll PaginationKind = "infinite_scroll"
	PaginationLoadMore       PaginationKind = "load_more"
	PaginationNumbered       PaginationKind = "numbered"
)

// PaginationLimits bounds how far a handler will drive a page.
type PaginationLimits struct {
	MaxScrolls  int
	MaxSubPages int
	SettleDelay time.Duration
}

func (l *PaginationLimits) defaults() {
	if l.MaxScrolls <= 0 {
		l.MaxScrolls = 10
	}
	if l.MaxSubPages <= 0 {
		l.MaxSubPages = 5
	}
	if l.SettleDelay <= 0 {
		l.SettleDelay = 500 * time.Millisecond
	}
}

// PaginationHandler detects and drives one multi-page mechanism on a live
// browser page. Drive returns any additional HTML documents it visited;
// handlers that grow the current DOM in place return none.
type PaginationHandler interface {
	Kind() PaginationKind
	Detect(html string) bool
	Drive(ctx context.Context, page *rod.Page, limits PaginationLimits) ([]string, error)
}

// DefaultPaginationHandlers returns the handlers in detection order:
// explicit controls before scroll heuristics.
func DefaultPaginationHandlers() []PaginationHandler {
	return []PaginationHandler{
		&NumberedPagination{},
		&LoadMorePagination{},
		&InfiniteScrollPagination{},
	}
}

// InfiniteScrollPagination scrolls to the bottom repeatedly until the
// document height stops growing or the scroll cap is reached.
type InfiniteScrollPagination struct{}

func (h *InfiniteScrollPagination) Kind() PaginationKind { return PaginationInfiniteScroll }

func (h *InfiniteScrollPagination) Detect(html string) bool {
	lower := strings.ToLower(html)
	return strings.Contains(lower, "infinite-scroll") ||
		strings.Contains(lower, "data-infinite") ||
		strings.Contains(lower, "lazyload")
}

func (h *InfiniteScrollPagination) Drive(ctx context.Context, page *rod.Page, limits PaginationLimits) ([]string, error) {
	limits.defaults()

	lastHeight := -1
	for i := 0; i < limits.MaxScrolls; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		res, err := page.Context(ctx).Eval(`() => {
			window.scrollTo(0, document.body.scrollHeight);
			return document.body.scrollHeight;
		}`)
		if err != nil {
			return nil, err
		}
		height := res.Value.Int()

		time.Sleep(limits.SettleDelay)

		if height == lastHeight {
			break
		}
		lastHeight = height
	}
	return nil, nil
}

// LoadMorePagination clicks a "load more"-style button until it disappears
// or the click cap is reached.
type LoadMorePagination struct{}

func (h *LoadMorePagination) Kind() PaginationKind { return PaginationLoadMore }

func (h *LoadMorePagination) Detect(html string) bool {
	lower := strings.ToLower(html)
	return strings.Contains(lower, "load more") ||
		strings.Contains(lower, "show more") ||
		strings.Contains(lower, "load-more")
}

func (h *LoadMorePagination) Drive(ctx context.Context, page *rod.Page, limits PaginationLimits) ([]string, error) {
	limits.defaults()

	for i := 0; i < limits.MaxSubPages; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		el, err := page.Context(ctx).Timeout(2 * time.Second).
			ElementR("button, a", `(?i)(load|show) more`)
		if err != nil {
			break // button gone, all content loaded
		}
		if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
			zap.L().Debug("pagination: load-more click failed", zap.Error(err))
			break
		}
		time.Sleep(limits.SettleDelay)
	}
	return nil, nil
}

// NumberedPagination follows rel="next" links, collecting each page's HTML.
type NumberedPagination struct{}

func (h *NumberedPagination) Kind() PaginationKind { return PaginationNumbered }

func (h *NumberedPagination) Detect(html string) bool {
	lower := strings.ToLower(html)
	return strings.Contains(lower, `rel="next"`) || strings.Contains(lower, "rel='next'")
}

func (h *NumberedPagination) Drive(ctx context.Context, page *rod.Page, limits PaginationLimits) ([]string, error) {
	limits.defaults()

	var docs []string
	for i := 0; i < limits.MaxSubPages; i++ {
		select {
		case <-ctx.Done():
			return docs, ctx.Err()
		default:
		}

		el, err := page.Context(ctx).Timeout(2 * time.Second).Element(`a[rel="next"]`)
		if err != nil {
			break
		}
		href, err := el.Attribute("href")
		if err != nil || href == nil || *href == "" {
			break
		}

		if err := page.Context(ctx).Navigate(*href); err != nil {
			return docs, err
		}
		if err := page.Context(ctx).WaitLoad(); err != nil {
			zap.L().Debug("pagination: wait load timeout", zap.String("url", *href), zap.Error(err))
		}

		html, err := page.Context(ctx).HTML()
		if err != nil {
			return docs, err
		}
		docs = append(docs, html)
	}
	return docs, nil
}

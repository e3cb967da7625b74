// Package extract turns raw page content into categorized business
// intelligence. Extraction is driven by a taxonomy of categories, each
// carrying URL patterns and a keyword list; schema fields supplied by
// upstream scrapers bypass pattern matching at fixed high confidence.
package extract

import (
	"os"
	"regexp"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Category is one taxonomy bucket.
type Category struct {
	Name        string   `yaml:"name"`
	DisplayName string   `yaml:"display_name"`
	URLPatterns []string `yaml:"url_patterns"`
	Keywords    []string `yaml:"keywords"`
	// SchemaFields lists structured-data field names that map straight
	// into this category.
	SchemaFields []string `yaml:"schema_fields"`

	urlRegexps []*regexp.Regexp
	keywordRes []*regexp.Regexp
}

// Taxonomy is the ordered category set. Order matters for URL
// classification: the first category whose pattern matches wins.
type Taxonomy struct {
	Categories []Category `yaml:"categories"`
}

// DefaultTaxonomy returns the built-in category set.
func DefaultTaxonomy() *Taxonomy {
	t := &Taxonomy{Categories: []Category{
		{
			Name:         "corporate",
			DisplayName:  "Company Overview",
			URLPatterns:  []string{`/about`, `/company`, `/mission`, `/values`, `/story`},
			Keywords:     []string{"mission", "vision", "founded", "headquarters", "values", "history"},
			SchemaFields: []string{"mission", "description", "values", "founded"},
		},
		{
			Name:         "team",
			DisplayName:  "Team & Leadership",
			URLPatterns:  []string{`/team`, `/leadership`, `/people`, `/management`, `/founders`},
			Keywords:     []string{"ceo", "cto", "founder", "leadership", "executive", "director", "board"},
			SchemaFields: []string{"leadership", "team", "executives"},
		},
		{
			Name:         "pricing",
			DisplayName:  "Pricing & Plans",
			URLPatterns:  []string{`/pricing`, `/plans`, `/subscribe`, `/buy`},
			Keywords:     []string{"pricing", "plan", "subscription", "per month", "per year", "free trial", "enterprise"},
			SchemaFields: []string{"pricing", "plans"},
		},
		{
			Name:         "products",
			DisplayName:  "Products & Services",
			URLPatterns:  []string{`/products?`, `/services`, `/solutions`, `/features`, `/platform`},
			Keywords:     []string{"product", "service", "solution", "feature", "platform", "integration"},
			SchemaFields: []string{"products", "services", "features"},
		},
		{
			Name:         "customers",
			DisplayName:  "Customers & Case Studies",
			URLPatterns:  []string{`/customers`, `/case-stud(y|ies)`, `/testimonials`, `/clients`},
			Keywords:     []string{"customer", "case study", "testimonial", "client", "success story"},
			SchemaFields: []string{"customers", "clients"},
		},
		{
			Name:         "careers",
			DisplayName:  "Careers & Hiring",
			URLPatterns:  []string{`/careers?`, `/jobs`, `/hiring`, `/join-us`},
			Keywords:     []string{"hiring", "career", "job opening", "position", "benefits", "remote"},
			SchemaFields: []string{"careers", "openings"},
		},
		{
			Name:         "blog",
			DisplayName:  "Blog & News",
			URLPatterns:  []string{`/blog`, `/news`, `/press`, `/articles?`, `/insights`},
			Keywords:     []string{"announcement", "press release", "published", "article"},
			SchemaFields: []string{"news", "press"},
		},
		{
			Name:         "contact",
			DisplayName:  "Contact & Support",
			URLPatterns:  []string{`/contact`, `/support`, `/help`},
			Keywords:     []string{"contact", "support", "email us", "phone", "address"},
			SchemaFields: []string{"contact", "address", "email", "phone"},
		},
	}}
	if err := t.compile(); err != nil {
		// Built-in patterns are static; a compile failure here is a
		// programming error.
		panic(err)
	}
	return t
}

// LoadTaxonomy reads a category set from a YAML file, replacing the
// default taxonomy entirely.
func LoadTaxonomy(path string) (*Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "extract: reading taxonomy file %s", path)
	}

	var t Taxonomy
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, eris.Wrapf(err, "extract: parsing taxonomy file %s", path)
	}
	if len(t.Categories) == 0 {
		return nil, eris.Errorf("extract: taxonomy file %s defines no categories", path)
	}
	if err := t.compile(); err != nil {
		return nil, err
	}
	return &t, nil
}

// compile builds the URL and keyword regexes for every category. Keywords
// become case-insensitive word-boundary patterns.
func (t *Taxonomy) compile() error {
	for i := range t.Categories {
		c := &t.Categories[i]

		c.urlRegexps = c.urlRegexps[:0]
		for _, p := range c.URLPatterns {
			re, err := regexp.Compile(`(?i)` + p)
			if err != nil {
				return eris.Wrapf(err, "extract: category %s url pattern %q", c.Name, p)
			}
			c.urlRegexps = append(c.urlRegexps, re)
		}

		c.keywordRes = c.keywordRes[:0]
		for _, kw := range c.Keywords {
			re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(kw) + `\b`)
			if err != nil {
				return eris.Wrapf(err, "extract: category %s keyword %q", c.Name, kw)
			}
			c.keywordRes = append(c.keywordRes, re)
		}
	}
	return nil
}

// ClassifyURL returns the first category whose URL pattern matches the
// path, or "" when none does.
func (t *Taxonomy) ClassifyURL(rawURL string) string {
	for _, c := range t.Categories {
		for _, re := range c.urlRegexps {
			if re.MatchString(rawURL) {
				return c.Name
			}
		}
	}
	return ""
}

// categoryForSchemaField maps a structured-data field name to a category.
func (t *Taxonomy) categoryForSchemaField(field string) (*Category, bool) {
	for i := range t.Categories {
		for _, f := range t.Categories[i].SchemaFields {
			if f == field {
				return &t.Categories[i], true
			}
		}
	}
	return nil, false
}

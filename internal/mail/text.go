package mail

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// HTMLToText renders the plain-text alternative of an HTML body. Links keep
// their target in parentheses so the text part stays usable.
func HTMLToText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}

	doc.Find("script, style, head").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		text := strings.TrimSpace(s.Text())
		if text == "" || text == href {
			s.SetText(href)
			return
		}
		s.SetText(text + " (" + href + ")")
	})
	doc.Find("p, div, h1, h2, h3, h4, li, tr, table").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	var out []string
	for _, line := range strings.Split(doc.Text(), "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

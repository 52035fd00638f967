package parser

import (
	"encoding/json"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"MedicareCoverageChecker/internal/domain"
)

const (
	numberLookahead = 3
	maxTextValueLen = 500
)

type pageLabel struct {
	text  string
	field domain.Field
}

// pageLabels are matched leftmost-longest, so "facility pe rvu" never shadows
// "non-facility pe rvu" and "pe rvu" never shadows either.
var pageLabels = sortLabels([]pageLabel{
	{"non-facility pe rvu", domain.FieldNonFacilityPERVU},
	{"non facility pe rvu", domain.FieldNonFacilityPERVU},
	{"nonfacility pe rvu", domain.FieldNonFacilityPERVU},
	{"non-facility practice expense rvu", domain.FieldNonFacilityPERVU},
	{"facility pe rvu", domain.FieldFacilityPERVU},
	{"facility practice expense rvu", domain.FieldFacilityPERVU},
	{"practice expense rvu", domain.FieldPracticeExpenseRVU},
	{"pe rvu", domain.FieldPracticeExpenseRVU},
	{"work rvu", domain.FieldWorkRVU},
	{"malpractice rvu", domain.FieldMalpracticeRVU},
	{"mp rvu", domain.FieldMalpracticeRVU},
	{"non-facility total", domain.FieldNonFacilityTotalRVU},
	{"non facility total", domain.FieldNonFacilityTotalRVU},
	{"nonfacility total", domain.FieldNonFacilityTotalRVU},
	{"facility total", domain.FieldFacilityTotalRVU},
	{"conversion factor", domain.FieldConversionFactor},
	{"status indicator", domain.FieldStatusIndicator},
	{"status code", domain.FieldStatusIndicator},
	{"global period", domain.FieldGlobalPeriod},
	{"global days", domain.FieldGlobalPeriod},
	{"global surgery", domain.FieldGlobalPeriod},
	{"short descriptor", domain.FieldDescription},
	{"long descriptor", domain.FieldDescription},
	{"description", domain.FieldDescription},
})

var (
	numberExpr   = regexp.MustCompile(`\$?(?:\d[\d,]*(?:\.\d+)?|\.\d+)`)
	yearToken    = regexp.MustCompile(`^(19|20)\d\d$`)
	jsonObjExpr  = regexp.MustCompile(`\{[^{}]*\}`)
	valuePrefix  = " \t:-–—="
	skippedNodes = map[string]bool{"script": true, "style": true, "noscript": true, "head": true}
)

func sortLabels(labels []pageLabel) []pageLabel {
	sort.SliceStable(labels, func(i, j int) bool {
		return len(labels[i].text) > len(labels[j].text)
	})
	return labels
}

// MentionsCode reports whether the visible page text contains code as a whole token.
func MentionsCode(doc *goquery.Document, code string) bool {
	expr := regexp.MustCompile(`(?i)(^|[^A-Za-z0-9])` + regexp.QuoteMeta(code) + `($|[^A-Za-z0-9])`)
	for _, seg := range textSegments(doc.Selection) {
		if expr.MatchString(seg.text) {
			return true
		}
	}
	return false
}

// ScrapeFields extracts whatever figures the page carries for code. Passes run from most
// to least structured; the first pass to supply a field wins.
func ScrapeFields(doc *goquery.Document, code string) domain.Fields {
	fields := domain.Fields{}
	fill := func(more domain.Fields) {
		for k, v := range more {
			if _, ok := fields[k]; !ok {
				fields[k] = v
			}
		}
	}

	fill(scrapeTables(doc, code))
	fill(scrapeScripts(doc, code))
	fill(scrapeLabels(textSegments(doc.Selection), code))
	return fields
}

// scrapeTables zips a row that contains the code with its table's header labels.
func scrapeTables(doc *goquery.Document, code string) domain.Fields {
	fields := domain.Fields{}
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		var headers []string
		table.Find("tr").EachWithBreak(func(_ int, tr *goquery.Selection) bool {
			if tr.Find("th").Length() == 0 {
				return true
			}
			tr.Children().Each(func(_ int, cell *goquery.Selection) {
				headers = append(headers, cleanText(cell.Text()))
			})
			return false
		})
		if len(headers) == 0 {
			return
		}

		table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
			cells := tr.Children().Filter("td")
			if cells.Length() == 0 || !rowHasCode(cells, code) {
				return
			}
			tr.Children().Each(func(i int, cell *goquery.Selection) {
				if i >= len(headers) {
					return
				}
				field, ok := headerField(headers[i])
				if !ok {
					return
				}
				if _, done := fields[field]; done {
					return
				}
				if value, ok := CoerceField(field, cleanText(cell.Text())); ok {
					fields[field] = value
				}
			})
		})
	})
	return fields
}

func rowHasCode(cells *goquery.Selection, code string) bool {
	has := false
	cells.EachWithBreak(func(_ int, cell *goquery.Selection) bool {
		if strings.EqualFold(cleanText(cell.Text()), code) {
			has = true
			return false
		}
		return true
	})
	return has
}

func headerField(header string) (domain.Field, bool) {
	hits := findLabels(asciiLower(header))
	if len(hits) == 0 {
		return "", false
	}
	return hits[0].field, true
}

// scrapeScripts feeds inline JSON that mentions the code through the rows parser.
func scrapeScripts(doc *goquery.Document, code string) domain.Fields {
	fields := domain.Fields{}
	doc.Find("script").EachWithBreak(func(_ int, script *goquery.Selection) bool {
		body := strings.TrimSpace(script.Text())
		if body == "" || !strings.Contains(strings.ToUpper(body), code) {
			return true
		}

		candidates := [][]byte{[]byte(body)}
		for _, obj := range jsonObjExpr.FindAllString(body, -1) {
			if strings.Contains(strings.ToUpper(obj), code) {
				candidates = append(candidates, []byte(obj))
			}
		}

		for _, candidate := range candidates {
			if !json.Valid(candidate) {
				continue
			}
			rows, err := DecodeRows(candidate)
			if err != nil {
				continue
			}
			if row, ok := MatchRow(rows, code); ok {
				fields = ExtractFields(row)
				if len(fields) > 0 {
					return false
				}
			}
		}
		return true
	})
	return fields
}

type segment struct {
	text  string
	lower string
}

type labelHit struct {
	seg   int
	start int
	end   int
	field domain.Field
}

// scrapeLabels walks text in document order: each label takes the nearest numeric token
// (or, for text fields, the nearest text) before the next label.
func scrapeLabels(segments []segment, code string) domain.Fields {
	var hits []labelHit
	for i, seg := range segments {
		for _, h := range findLabels(seg.lower) {
			h.seg = i
			hits = append(hits, h)
		}
	}

	fields := domain.Fields{}
	for idx, hit := range hits {
		if _, done := fields[hit.field]; done {
			continue
		}
		var next *labelHit
		if idx+1 < len(hits) {
			next = &hits[idx+1]
		}

		var (
			value string
			ok    bool
		)
		if domain.NumericFields[hit.field] {
			value, ok = nearestNumber(segments, hit, next, code)
		} else {
			value, ok = nearestText(segments, hit, next)
		}
		if ok {
			if coerced, valid := CoerceField(hit.field, value); valid {
				fields[hit.field] = coerced
			}
		}
	}
	return fields
}

func findLabels(lower string) []labelHit {
	var hits []labelHit
	for i := 0; i < len(lower); {
		matched := false
		if i == 0 || !isWordByte(lower[i-1]) {
			for _, label := range pageLabels {
				end := i + len(label.text)
				if end > len(lower) || lower[i:end] != label.text {
					continue
				}
				if end < len(lower) && lower[end] == 's' && (end+1 == len(lower) || !isWordByte(lower[end+1])) {
					end++
				}
				if end < len(lower) && isWordByte(lower[end]) {
					continue
				}
				if isFacilityLabel(label.text) && precededByNon(lower[:i]) {
					continue
				}
				hits = append(hits, labelHit{start: i, end: end, field: label.field})
				i = end
				matched = true
				break
			}
		}
		if !matched {
			i++
		}
	}
	return hits
}

func nearestNumber(segments []segment, hit labelHit, next *labelHit, code string) (string, bool) {
	for s := hit.seg; s < len(segments) && s <= hit.seg+numberLookahead; s++ {
		from, to := window(segments, s, hit, next)
		if from >= to {
			if next != nil && next.seg == s {
				break
			}
			continue
		}
		for _, token := range numberExpr.FindAllString(segments[s].text[from:to], -1) {
			if strings.EqualFold(token, code) || yearToken.MatchString(token) {
				continue
			}
			return token, true
		}
		if next != nil && next.seg == s {
			break
		}
	}
	return "", false
}

func nearestText(segments []segment, hit labelHit, next *labelHit) (string, bool) {
	for s := hit.seg; s < len(segments) && s <= hit.seg+1; s++ {
		from, to := window(segments, s, hit, next)
		if from < to {
			text := strings.Trim(segments[s].text[from:to], valuePrefix)
			text = cleanText(text)
			if text != "" {
				return clip(text, maxTextValueLen), true
			}
		}
		if next != nil && next.seg == s {
			break
		}
	}
	return "", false
}

// window bounds the slice of segment s that belongs to hit.
func window(segments []segment, s int, hit labelHit, next *labelHit) (int, int) {
	from, to := 0, len(segments[s].text)
	if s == hit.seg {
		from = hit.end
	}
	if next != nil && next.seg == s {
		to = next.start
	}
	return from, to
}

func textSegments(root *goquery.Selection) []segment {
	var segments []segment
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skippedNodes[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			if text := cleanText(n.Data); text != "" {
				segments = append(segments, segment{text: text, lower: asciiLower(text)})
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range root.Nodes {
		walk(n)
	}
	return segments
}

// SearchForm is a discovered HTML form ready to submit.
type SearchForm struct {
	Method string
	Action string
	Values url.Values
	Inputs []string
}

// FindSearchForm locates the fee schedule search form. Forms mentioning "search" in
// their action, id or class are preferred over the first form on the page.
func FindSearchForm(doc *goquery.Document, pageURL string) (SearchForm, bool) {
	forms := doc.Find("form")
	if forms.Length() == 0 {
		return SearchForm{}, false
	}

	chosen := forms.First()
	forms.EachWithBreak(func(_ int, f *goquery.Selection) bool {
		action, _ := f.Attr("action")
		id, _ := f.Attr("id")
		class, _ := f.Attr("class")
		if strings.Contains(strings.ToLower(action+" "+id+" "+class), "search") {
			chosen = f
			return false
		}
		return true
	})

	base, err := url.Parse(pageURL)
	if err != nil {
		return SearchForm{}, false
	}
	action, _ := chosen.Attr("action")
	target, err := base.Parse(strings.TrimSpace(action))
	if err != nil {
		return SearchForm{}, false
	}

	method := strings.ToUpper(strings.TrimSpace(chosen.AttrOr("method", "POST")))
	if method != "GET" {
		method = "POST"
	}

	form := SearchForm{Method: method, Action: target.String(), Values: url.Values{}}
	chosen.Find("input").Each(func(_ int, input *goquery.Selection) {
		name, ok := input.Attr("name")
		if !ok || name == "" {
			return
		}
		switch strings.ToLower(input.AttrOr("type", "text")) {
		case "hidden":
			form.Values.Set(name, input.AttrOr("value", ""))
		case "text", "search":
			form.Inputs = append(form.Inputs, name)
		}
	})
	return form, true
}

func isFacilityLabel(label string) bool {
	return strings.HasPrefix(label, "facility")
}

func precededByNon(prefix string) bool {
	prefix = strings.TrimRight(prefix, " -")
	return strings.HasSuffix(prefix, "non")
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// clip cuts s to at most n bytes without splitting a rune.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

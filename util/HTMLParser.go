package util

import (
	"strings"
	"ywwzwb/imagearchive/models/config"

	"github.com/PuerkitoBio/goquery"
)

type HTMLParser struct {
	config *config.HTMLParserConfig
}

func NewParser(config *config.HTMLParserConfig) *HTMLParser {
	parser := &HTMLParser{}
	parser.config = config
	return parser
}

// Parse returns the trimmed, non-empty values found under selection.
func (p *HTMLParser) Parse(selection *goquery.Selection) []string {
	result := make([]string, 0)
	elements := selection
	if p.config.Selector != "" {
		elements = selection.Find(p.config.Selector)
	}
	elements.Each(func(i int, s *goquery.Selection) {
		if !p.match(s, p.config.ElementMatcherConfig) {
			return
		}
		if value, ok := p.getValue(s, &p.config.Value); ok {
			result = append(result, value)
		}
	})
	return result
}

// First returns the first parsed value or def.
func (p *HTMLParser) First(selection *goquery.Selection, def string) string {
	if values := p.Parse(selection); len(values) > 0 {
		return values[0]
	}
	return def
}

func (p *HTMLParser) match(selection *goquery.Selection, m *config.ElementMatcherConfig) bool {
	if m == nil {
		return true
	}
	val, ok := p.getAttribute(selection, m.Attribute)
	if !ok {
		return false
	}
	switch m.OperatorType {
	case config.OperatorContain:
		return strings.Contains(val, m.Value)
	case config.OperatorEquals:
		return val == m.Value
	default:
		return false
	}
}
func (p *HTMLParser) getAttribute(s *goquery.Selection, attr config.Attribute) (string, bool) {
	switch attr.Type {
	case config.AttributeTypeInnerText:
		return s.Text(), true
	case config.AttributeTypeHref:
		return s.Attr("href")
	case config.AttributeTypeTitle:
		return s.Attr("title")
	case config.AttributeTypeSrc:
		return s.Attr("src")
	case config.AttributeTypeNamed:
		return s.Attr(attr.Name)
	}
	return "", false
}
func (p *HTMLParser) getValue(s *goquery.Selection, valueConfig *config.ValueConfig) (string, bool) {
	value, ok := p.getAttribute(s, valueConfig.Attribute)
	if !ok {
		return "", false
	}
	if valueConfig.ReplacerConfig != nil {
		value = valueConfig.ReplacerConfig.Regex.ReplaceAllString(value, valueConfig.ReplacerConfig.Replacement)
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

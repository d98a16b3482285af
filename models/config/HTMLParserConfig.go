package config

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

type AttributeType int

const (
	AttributeTypeInnerText AttributeType = iota
	AttributeTypeHref
	AttributeTypeTitle
	AttributeTypeSrc
	AttributeTypeNamed
)

// Attribute selects what is read from a matched element. Name is only set for
// AttributeTypeNamed, written as "attr:<name>" in config files.
type Attribute struct {
	Type AttributeType
	Name string
}

func (a *Attribute) fromString(s string) error {
	lower := strings.ToLower(strings.TrimSpace(s))
	switch {
	case lower == "innertext":
		*a = Attribute{Type: AttributeTypeInnerText}
	case lower == "href":
		*a = Attribute{Type: AttributeTypeHref}
	case lower == "title":
		*a = Attribute{Type: AttributeTypeTitle}
	case lower == "src":
		*a = Attribute{Type: AttributeTypeSrc}
	case strings.HasPrefix(lower, "attr:") && len(lower) > len("attr:"):
		*a = Attribute{Type: AttributeTypeNamed, Name: strings.TrimSpace(s)[len("attr:"):]}
	default:
		return errors.New("invalid attribute type: " + s)
	}
	return nil
}
func (a *Attribute) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return a.fromString(s)
}
func (a *Attribute) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return a.fromString(s)
}

type OperatorType int

const (
	OperatorContain OperatorType = iota
	OperatorEquals
)

func (o *OperatorType) fromString(s string) error {
	switch strings.ToLower(s) {
	case "contains":
		*o = OperatorContain
	case "equals":
		*o = OperatorEquals
	default:
		return errors.New("invalid operator type: " + s)
	}
	return nil
}
func (o *OperatorType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return o.fromString(s)
}

func (o *OperatorType) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return o.fromString(s)
}

type ReplacerConfig struct {
	Regex       *regexp.Regexp
	Replacement string
}
type ValueConfig struct {
	Attribute      Attribute
	ReplacerConfig *ReplacerConfig
}

func (a *ValueConfig) fromObject(v interface{}) error {
	if s, ok := v.(string); ok {
		// simple string
		return a.Attribute.fromString(s)
	}
	var m map[string]interface{}
	switch raw := v.(type) {
	case map[string]interface{}:
		m = raw
	case map[interface{}]interface{}:
		m = make(map[string]interface{}, len(raw))
		for k, val := range raw {
			key, ok := k.(string)
			if !ok {
				return errors.New("invalid value config key")
			}
			m[key] = val
		}
	default:
		return errors.New("invalid value config")
	}
	attribute, ok := m["attribute"].(string)
	if !ok {
		return errors.New("attribute is required and must be a string")
	}
	if err := a.Attribute.fromString(attribute); err != nil {
		return err
	}
	replacer, ok := m["replacer"]
	if !ok {
		return nil
	}
	replacerConfig := &ReplacerConfig{}
	var regexStr, replacement string
	switch r := replacer.(type) {
	case map[string]interface{}:
		regexStr, _ = r["regex"].(string)
		replacement, ok = r["replacement"].(string)
	case map[interface{}]interface{}:
		regexStr, _ = r["regex"].(string)
		replacement, ok = r["replacement"].(string)
	default:
		return errors.New("replacer must be a map")
	}
	if regexStr == "" {
		return errors.New("regex is required")
	}
	if !ok {
		return errors.New("replacement is required")
	}
	regexExpression, err := regexp.Compile(regexStr)
	if err != nil {
		return errors.New("invalid regex: " + regexStr + ", error " + err.Error())
	}
	replacerConfig.Regex = regexExpression
	replacerConfig.Replacement = replacement
	a.ReplacerConfig = replacerConfig
	return nil
}
func (a *ValueConfig) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	return a.fromObject(v)
}
func (a *ValueConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var v interface{}
	if err := unmarshal(&v); err != nil {
		return err
	}
	return a.fromObject(v)
}

type ElementMatcherConfig struct {
	Attribute    Attribute    `json:"attribute" yaml:"attribute"`
	OperatorType OperatorType `json:"operator" yaml:"operator"`
	Value        string       `json:"value" yaml:"value"`
}

// HTMLParserConfig extracts strings from the elements matched by Selector.
// An empty Selector reads the context element itself.
type HTMLParserConfig struct {
	Selector             string                `json:"selector" yaml:"selector"`
	Value                ValueConfig           `json:"value" yaml:"value"`
	ElementMatcherConfig *ElementMatcherConfig `json:"matcher" yaml:"matcher"`
	Ext                  map[string]string     `json:"ext" yaml:"ext"`
}

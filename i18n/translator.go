package i18n

import (
	"strings"
	"sync"
)

// Translator retrieves localized message templates for issue codes and renders
// them. data carries the template parameters (for example "label" or "limit").
type Translator interface {
	Message(code string, data map[string]string) string
}

// dictTranslator is the built-in dictionary-based Translator.
type dictTranslator struct{ lang string }

var dictionaries = map[string]map[string]string{
	"en": {
		"invalid_type":           "{label} must be {expected}",
		"required":               "{label} is required",
		"forbidden":              "{label} is forbidden",
		"unknown_key":            "Unknown key {label}",
		"too_small":              "{label} must be greater than or equal to {limit}",
		"too_big":                "{label} must be less than or equal to {limit}",
		"too_short":              "{label} length must be at least {limit} characters long",
		"too_long":               "{label} length must be less than or equal to {limit} characters long",
		"too_few":                "{label} must contain at least {limit} items",
		"too_many":               "{label} must contain less than or equal to {limit} items",
		"pattern":                "{label} fails to match the required pattern",
		"invalid_enum":           "{label} must be one of {values}",
		"invalid_format":         "{label} must be {format}",
		"custom":                 "{label} is invalid",
		"dependency_unavailable": "{label} could not be checked, dependency unavailable",
	},
	"ja": {
		"invalid_type":           "{label}の型が不正です（{expected}）",
		"required":               "{label}は必須です",
		"forbidden":              "{label}は指定できません",
		"unknown_key":            "未知のキーです: {label}",
		"too_small":              "{label}は{limit}以上である必要があります",
		"too_big":                "{label}は{limit}以下である必要があります",
		"too_short":              "{label}は{limit}文字以上である必要があります",
		"too_long":               "{label}は{limit}文字以下である必要があります",
		"too_few":                "{label}は{limit}件以上である必要があります",
		"too_many":               "{label}は{limit}件以下である必要があります",
		"pattern":                "{label}の形式が不正です",
		"invalid_enum":           "{label}は{values}のいずれかである必要があります",
		"invalid_format":         "{label}は{format}である必要があります",
		"custom":                 "{label}が不正です",
		"dependency_unavailable": "依存先サービスが利用できないため{label}を検証できません",
	},
}

func (t dictTranslator) Message(code string, data map[string]string) string {
	tmpl, ok := dictionaries[t.lang][code]
	if !ok {
		if tmpl, ok = dictionaries["en"][code]; !ok {
			return code
		}
	}
	return Render(tmpl, data)
}

// Render substitutes {name} placeholders in tmpl with values from data.
// Placeholders without a value are left as-is.
func Render(tmpl string, data map[string]string) string {
	if len(data) == 0 || !strings.Contains(tmpl, "{") {
		return tmpl
	}
	pairs := make([]string, 0, len(data)*2)
	for k, v := range data {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

var (
	mu                sync.RWMutex
	currentTranslator Translator = dictTranslator{lang: "en"}
)

// SetLanguage switches the built-in Translator language ("en"/"ja").
func SetLanguage(lang string) {
	if _, ok := dictionaries[lang]; !ok {
		lang = "en"
	}
	mu.Lock()
	currentTranslator = dictTranslator{lang: lang}
	mu.Unlock()
}

// SetTranslator replaces the Translator implementation (not limited to the
// dictionary version).
func SetTranslator(tr Translator) {
	if tr == nil {
		tr = dictTranslator{lang: "en"}
	}
	mu.Lock()
	currentTranslator = tr
	mu.Unlock()
}

// T fetches a message for the given code using the current Translator.
func T(code string, data map[string]string) string {
	mu.RLock()
	tr := currentTranslator
	mu.RUnlock()
	return tr.Message(code, data)
}

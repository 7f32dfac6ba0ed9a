package browser

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// formValues collects the values a browser would send for form without
// pressing any submit button.
func formValues(form *goquery.Selection) url.Values {
	values := url.Values{}

	form.Find("input[name]").Each(func(_ int, s *goquery.Selection) {
		if _, disabled := s.Attr("disabled"); disabled {
			return
		}
		name := s.AttrOr("name", "")
		switch strings.ToLower(s.AttrOr("type", "text")) {
		case "submit", "button", "image", "reset", "file":
			return
		case "checkbox", "radio":
			if _, checked := s.Attr("checked"); !checked {
				return
			}
			values.Add(name, s.AttrOr("value", "on"))
		default:
			values.Add(name, s.AttrOr("value", ""))
		}
	})

	form.Find("textarea[name]").Each(func(_ int, s *goquery.Selection) {
		values.Add(s.AttrOr("name", ""), s.Text())
	})

	form.Find("select[name]").Each(func(_ int, s *goquery.Selection) {
		option := s.Find("option[selected]").First()
		if option.Length() == 0 {
			option = s.Find("option").First()
		}
		if option.Length() == 0 {
			return
		}
		value, ok := option.Attr("value")
		if !ok {
			value = strings.TrimSpace(option.Text())
		}
		values.Add(s.AttrOr("name", ""), value)
	})

	return values
}

// submitButton finds the submit control named name.
func submitButton(form *goquery.Selection, name string) (string, string, bool) {
	var value string
	found := false
	form.Find("input[name], button[name]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.AttrOr("name", "") != name {
			return true
		}
		defaultType := "text"
		if goquery.NodeName(s) == "button" {
			defaultType = "submit"
		}
		typ := strings.ToLower(s.AttrOr("type", defaultType))
		if typ != "submit" && typ != "image" {
			return true
		}
		value = s.AttrOr("value", "")
		found = true
		return false
	})
	return name, value, found
}

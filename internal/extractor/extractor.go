// Package extractor implements the Manifest Extractor: applying a
// manifest's deterministic CSS-selector rules to an HTML document to
// produce a RawExtractionResult. It never raises — every failure mode
// is folded into the result's warnings/errors, the same contract the
// teacher's scraper package upholds for link/metadata extraction.
package extractor

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"civicpipe/internal/model"
	"civicpipe/internal/transform"
)

// Extract applies manifest's extraction rules to rawHTML and returns
// the raw string-keyed records. baseURL is used by the url_resolve
// transform.
func Extract(rawHTML string, manifest model.StructuralManifest, baseURL string) model.RawExtractionResult {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return model.RawExtractionResult{
			Success: false,
			Errors:  []string{fmt.Sprintf("parse HTML: %v", err)},
		}
	}

	rules := manifest.ExtractionRules
	var warnings []string

	if isEmptyDocument(doc) {
		return model.RawExtractionResult{
			Success:  true,
			Warnings: []string{"document body is empty"},
		}
	}

	applyPreprocessing(doc, rules.Preprocessing)

	containers := doc.Find(rules.ContainerSelector)
	if containers.Length() == 0 {
		return model.RawExtractionResult{
			Success: false,
			Errors:  []string{fmt.Sprintf("container selector %q matched no elements", rules.ContainerSelector)},
		}
	}
	if containers.Length() > 1 {
		warnings = append(warnings, fmt.Sprintf("container selector %q matched %d elements, using the first", rules.ContainerSelector, containers.Length()))
	}
	container := containers.First()

	items := container.Find(rules.ItemSelector)
	if items.Length() == 0 {
		return model.RawExtractionResult{
			Success:  false,
			Warnings: warnings,
			Errors:   []string{fmt.Sprintf("item selector %q matched no elements", rules.ItemSelector)},
		}
	}

	var results []map[string]any
	items.Each(func(_ int, item *goquery.Selection) {
		record, itemWarnings, anyRequiredPresent := extractItem(item, rules.FieldMappings, baseURL)
		warnings = append(warnings, itemWarnings...)
		if anyRequiredPresent {
			results = append(results, record)
		}
	})

	return model.RawExtractionResult{
		Items:    results,
		Success:  true,
		Warnings: warnings,
		Errors:   nil,
	}
}

// isEmptyDocument reports whether doc's body has no element children at
// all — the boundary case of §8 where the extractor short-circuits to
// zero items with a warning rather than evaluating selectors against
// nothing.
func isEmptyDocument(doc *goquery.Document) bool {
	body := doc.Find("body").First()
	if body.Length() == 0 {
		return true
	}
	return body.Children().Length() == 0
}

func applyPreprocessing(doc *goquery.Document, steps []model.PreprocessingStep) {
	for _, step := range steps {
		switch step.Type {
		case model.PreprocessRemoveElements:
			doc.Find(step.Selector).Remove()
		case model.PreprocessUnwrapElements:
			doc.Find(step.Selector).Each(func(_ int, s *goquery.Selection) {
				s.ReplaceWithSelection(s.Children())
			})
		case model.PreprocessMergeTables:
			mergeTables(doc, step.Selector)
		}
	}
}

func mergeTables(doc *goquery.Document, selector string) {
	tables := doc.Find(selector)
	if tables.Length() < 2 {
		return
	}
	first := tables.First()
	firstBody := first.Find("tbody").First()
	if firstBody.Length() == 0 {
		firstBody = first
	}

	tables.Each(func(i int, table *goquery.Selection) {
		if i == 0 {
			return
		}
		rows := table.Find("tbody").First().Find("tr")
		if rows.Length() == 0 {
			rows = table.ChildrenFiltered("tr")
		}
		rows.Each(func(_ int, row *goquery.Selection) {
			firstBody.AppendSelection(row)
		})
		table.Remove()
	})
}

// extractItem applies every field mapping within item's subtree,
// returning the raw record, any warnings it generated, and whether at
// least one required field was present (items with every required
// field missing are dropped per §4.5 step 6).
func extractItem(item *goquery.Selection, mappings []model.FieldMapping, baseURL string) (map[string]any, []string, bool) {
	record := make(map[string]any, len(mappings))
	var warnings []string
	anyRequiredPresent := false
	anyRequired := false

	for _, fm := range mappings {
		value, present := extractField(item, fm)

		if present && fm.Transform != nil {
			value = transform.Apply(*fm.Transform, value, baseURL)
			present = value != ""
		}
		if !present && fm.DefaultValue != "" {
			value = fm.DefaultValue
			present = true
		}

		if fm.Required {
			anyRequired = true
			if present {
				anyRequiredPresent = true
			} else {
				warnings = append(warnings, fmt.Sprintf("required field %q missing", fm.FieldName))
			}
		}

		if present {
			record[fm.FieldName] = value
		}
	}

	if !anyRequired {
		anyRequiredPresent = true
	}
	return record, warnings, anyRequiredPresent
}

func extractField(item *goquery.Selection, fm model.FieldMapping) (string, bool) {
	target := item
	if fm.Selector != "" && fm.Selector != "." {
		sel := item.Find(fm.Selector)
		if sel.Length() == 0 {
			return "", false
		}
		target = sel.First()
	}

	switch fm.ExtractionMethod {
	case model.ExtractText:
		text := strings.TrimSpace(target.Text())
		return text, text != ""
	case model.ExtractAttribute:
		if fm.Attribute == "" {
			return "", false
		}
		val, ok := target.Attr(fm.Attribute)
		return val, ok
	case model.ExtractHTML:
		html, err := target.Html()
		if err != nil {
			return "", false
		}
		return html, html != ""
	case model.ExtractRegex:
		text := target.Text()
		re, err := regexp.Compile(fm.RegexPattern)
		if err != nil {
			return "", false
		}
		group := fm.RegexGroup
		if group == 0 {
			group = 1
		}
		m := re.FindStringSubmatch(text)
		if m == nil || group >= len(m) {
			return "", false
		}
		return m[group], true
	default:
		return "", false
	}
}

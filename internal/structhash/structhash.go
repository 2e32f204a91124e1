// Package structhash canonicalizes an HTML document to a tag/class/id/role
// skeleton and hashes it, the way the teacher's scraper reduces a page to a
// goquery document before extracting links and metadata from it.
package structhash

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var strippedTags = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"svg":      true,
	"iframe":   true,
	"link":     true,
	"meta":     true,
}

var structuralAttrs = []string{"class", "id", "role"}

// ComputeStructureHash reduces html to its tag/class/id/role skeleton and
// returns the lowercase hex SHA-256 of that skeleton. It never returns an
// error for malformed or empty input — a body-less document yields a fixed
// hash that callers treat as a signal to skip, not a failure.
func ComputeStructureHash(rawHTML string) (string, error) {
	return HashSkeleton(Skeleton(rawHTML)), nil
}

// HashSkeleton hashes an already-computed skeleton, letting callers that
// need both the skeleton text (e.g. for an LLM prompt) and its hash avoid
// walking the DOM twice.
func HashSkeleton(skeleton string) string {
	sum := sha256.Sum256([]byte(skeleton))
	return hex.EncodeToString(sum[:])
}

// Skeleton reduces rawHTML to the same tag/class/id/role byte stream
// ComputeStructureHash hashes, exposed separately so the Structural
// Analyzer can embed it in the LLM prompt.
func Skeleton(rawHTML string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return ""
	}

	doc.Find("script, style, noscript, svg, iframe, link, meta").Remove()

	var sb strings.Builder
	body := doc.Find("body").First()
	if body.Length() == 0 {
		writeSkeleton(&sb, doc.Selection)
	} else {
		body.Contents().Each(func(_ int, s *goquery.Selection) {
			writeSkeleton(&sb, s)
		})
	}
	return sb.String()
}

// writeSkeleton recursively emits <tag attr="value">children</tag> for s,
// keeping only class/id/role in a fixed order and dropping comments and
// already-stripped tags entirely.
func writeSkeleton(sb *strings.Builder, s *goquery.Selection) {
	for _, node := range s.Nodes {
		writeNode(sb, node)
	}
}

func writeNode(sb *strings.Builder, node *html.Node) {
	switch node.Type {
	case html.CommentNode:
		return
	case html.TextNode:
		return
	case html.ElementNode:
		tag := strings.ToLower(node.Data)
		if strippedTags[tag] {
			return
		}
		sb.WriteByte('<')
		sb.WriteString(tag)
		writeStructuralAttrs(sb, node)
		sb.WriteByte('>')
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			writeNode(sb, c)
		}
		sb.WriteString("</")
		sb.WriteString(tag)
		sb.WriteByte('>')
	default:
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			writeNode(sb, c)
		}
	}
}

func writeStructuralAttrs(sb *strings.Builder, node *html.Node) {
	present := make(map[string]string, len(structuralAttrs))
	for _, a := range node.Attr {
		key := strings.ToLower(a.Key)
		for _, want := range structuralAttrs {
			if key == want {
				present[want] = a.Val
			}
		}
	}
	for _, k := range structuralAttrs {
		v, ok := present[k]
		if !ok {
			continue
		}
		sb.WriteByte(' ')
		sb.WriteString(k)
		sb.WriteString(`="`)
		sb.WriteString(v)
		sb.WriteByte('"')
	}
}

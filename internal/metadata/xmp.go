package metadata

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	nsRDF = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	nsDC  = "http://purl.org/dc/elements/1.1/"
)

// ErrUnsupportedSidecar is returned for XMP documents that have no
// rdf:Description element able to hold keywords.
var ErrUnsupportedSidecar = errors.New("unsupported xmp sidecar layout")

// ReadKeywords returns the dc:subject entries of an XMP document in
// document order.
func ReadKeywords(data []byte) ([]string, error) {
	var (
		keywords  []string
		inSubject bool
		inItem    bool
		item      strings.Builder
	)
	d := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := d.RawToken()
		if errors.Is(err, io.EOF) {
			return keywords, nil
		}
		if err != nil {
			return nil, fmt.Errorf("parse xmp: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch {
			case is(t.Name, "dc", "subject"):
				inSubject = true
			case inSubject && is(t.Name, "rdf", "li"):
				inItem = true
				item.Reset()
			}
		case xml.EndElement:
			switch {
			case is(t.Name, "dc", "subject"):
				inSubject = false
			case inItem && is(t.Name, "rdf", "li"):
				inItem = false
				if kw := strings.TrimSpace(item.String()); kw != "" {
					keywords = append(keywords, kw)
				}
			}
		case xml.CharData:
			if inItem {
				item.Write(t)
			}
		}
	}
}

// RenderSidecar produces a minimal XMP packet holding keywords.
func RenderSidecar(keywords []string) []byte {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	buf.WriteString(`<x:xmpmeta xmlns:x="adobe:ns:meta/">` + "\n")
	buf.WriteString(` <rdf:RDF xmlns:rdf="` + nsRDF + `">` + "\n")
	buf.WriteString(`  <rdf:Description rdf:about="" xmlns:dc="` + nsDC + `">` + "\n")
	buf.WriteString("   <dc:subject>\n    <rdf:Bag>\n")
	buf.WriteString(listItems(keywords, "     "))
	buf.WriteString("    </rdf:Bag>\n   </dc:subject>\n")
	buf.WriteString("  </rdf:Description>\n </rdf:RDF>\n</x:xmpmeta>\n")
	return buf.Bytes()
}

// AppendKeywords adds names missing from the document's dc:subject bag,
// preserving everything else in it. It returns the new document and the
// number of names appended. Matching is exact, as keywords are labels.
func AppendKeywords(data []byte, names []string) ([]byte, int, error) {
	existing, err := ReadKeywords(data)
	if err != nil {
		return nil, 0, err
	}
	seen := make(map[string]bool, len(existing)+len(names))
	for _, kw := range existing {
		seen[kw] = true
	}
	var add []string
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		add = append(add, name)
	}
	if len(add) == 0 {
		return data, 0, nil
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return RenderSidecar(add), len(add), nil
	}

	at, wrap, err := insertionPoint(data)
	if err != nil {
		return nil, 0, err
	}
	insert := listItems(add, "")
	if wrap {
		insert = `<dc:subject xmlns:dc="` + nsDC + `"><rdf:Bag>` + insert + `</rdf:Bag></dc:subject>`
	}

	out := make([]byte, 0, len(data)+len(insert))
	out = append(out, data[:at]...)
	out = append(out, insert...)
	out = append(out, data[at:]...)
	return out, len(add), nil
}

// insertionPoint finds the byte offset of the closing tag of the dc:subject
// bag. Without a bag it falls back to the end of the first rdf:Description
// and reports that a dc:subject wrapper is needed.
func insertionPoint(data []byte) (int, bool, error) {
	var (
		inSubject   bool
		descEnd     = -1
		descDepth   int
		depth       int
		descStarted bool
	)
	d := xml.NewDecoder(bytes.NewReader(data))
	for {
		before := int(d.InputOffset())
		tok, err := d.RawToken()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, false, fmt.Errorf("parse xmp: %w", err)
		}
		after := int(d.InputOffset())
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if is(t.Name, "rdf", "Description") && !descStarted {
				descStarted = true
				descDepth = depth
			}
			if is(t.Name, "dc", "subject") {
				inSubject = true
			}
		case xml.EndElement:
			switch {
			case inSubject && (is(t.Name, "rdf", "Bag") || is(t.Name, "rdf", "Seq")):
				if after > before {
					return before, false, nil
				}
			case is(t.Name, "dc", "subject"):
				inSubject = false
			case is(t.Name, "rdf", "Description") && depth == descDepth && descEnd < 0:
				// A self-closing element has no closing tag to insert before.
				if after > before {
					descEnd = before
				}
			}
			depth--
		}
	}
	if descEnd < 0 {
		return 0, false, ErrUnsupportedSidecar
	}
	return descEnd, true, nil
}

func listItems(keywords []string, indent string) string {
	var b strings.Builder
	for _, kw := range keywords {
		b.WriteString(indent)
		b.WriteString("<rdf:li>")
		_ = xml.EscapeText(&b, []byte(kw))
		b.WriteString("</rdf:li>")
		if indent != "" {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func is(n xml.Name, prefix, local string) bool {
	return n.Space == prefix && n.Local == local
}

package opml

import (
	"encoding/xml"
	"errors"
	"fmt"
	"strings"

	"github.com/mkhomutov/feedkeeper/internal/utils"
)

// ErrMalformedDocument is returned when the input cannot be interpreted as
// an OPML subscription list. It is a document-level failure: no items from
// a malformed document are ever processed.
var ErrMalformedDocument = errors.New("malformed OPML document")

// Category is one grouping element of the document. Its identity is the
// full path from the root, so "Tech" and "News/Tech" are distinct.
type Category struct {
	Name     string
	Path     []string // full path including Name
	Children []*Category
}

// Feed is one feed entry with the path of the category it was nested in.
// Feeds outside any grouping element carry an empty path.
type Feed struct {
	Title        string
	FeedURL      string
	SiteURL      string
	Description  string
	CategoryPath []string
}

// Document is the parsed form of a subscription list: the category tree and
// the flat list of feeds in document order.
type Document struct {
	Title      string
	Categories []*Category
	Feeds      []Feed
}

type opmlXML struct {
	XMLName xml.Name `xml:"opml"`
	Head    struct {
		Title string `xml:"title"`
	} `xml:"head"`
	Body *struct {
		Outlines []outlineXML `xml:"outline"`
	} `xml:"body"`
}

type outlineXML struct {
	Text        string       `xml:"text,attr"`
	Title       string       `xml:"title,attr"`
	Type        string       `xml:"type,attr"`
	XMLURL      string       `xml:"xmlUrl,attr"`
	HTMLURL     string       `xml:"htmlUrl,attr"`
	Description string       `xml:"description,attr"`
	Outlines    []outlineXML `xml:"outline"`
}

// Parse turns raw OPML text into a Document. It performs no network I/O and
// no deduplication; reachability and duplicate checks happen downstream.
func Parse(data []byte) (*Document, error) {
	var doc opmlXML
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	if doc.Body == nil {
		return nil, fmt.Errorf("%w: missing body element", ErrMalformedDocument)
	}

	result := &Document{Title: strings.TrimSpace(doc.Head.Title)}
	for i := range doc.Body.Outlines {
		walkOutline(&doc.Body.Outlines[i], nil, result, nil)
	}
	return result, nil
}

// walkOutline descends the outline tree. An outline with an xmlUrl is a
// feed; anything else is treated as a category, even when empty.
func walkOutline(o *outlineXML, path []string, doc *Document, parent *Category) {
	if o.XMLURL != "" {
		doc.Feeds = append(doc.Feeds, Feed{
			Title:        feedTitle(o),
			FeedURL:      strings.TrimSpace(o.XMLURL),
			SiteURL:      strings.TrimSpace(o.HTMLURL),
			Description:  strings.TrimSpace(o.Description),
			CategoryPath: path,
		})
		return
	}

	name := outlineName(o)
	if name == "" {
		// Nameless grouping elements contribute nothing to the path;
		// their children attach to the enclosing category.
		for i := range o.Outlines {
			walkOutline(&o.Outlines[i], path, doc, parent)
		}
		return
	}

	childPath := append(append([]string{}, path...), name)
	cat := &Category{Name: name, Path: childPath}
	if parent == nil {
		doc.Categories = append(doc.Categories, cat)
	} else {
		parent.Children = append(parent.Children, cat)
	}

	for i := range o.Outlines {
		walkOutline(&o.Outlines[i], childPath, doc, cat)
	}
}

func outlineName(o *outlineXML) string {
	if name := strings.TrimSpace(o.Text); name != "" {
		return name
	}
	return strings.TrimSpace(o.Title)
}

// feedTitle falls back to the URL host when the document declares no title.
func feedTitle(o *outlineXML) string {
	if t := strings.TrimSpace(o.Text); t != "" {
		return t
	}
	if t := strings.TrimSpace(o.Title); t != "" {
		return t
	}
	return utils.HostFromURL(o.XMLURL)
}

// FlattenCategories returns every category of the tree in document order
// (depth-first, parents before children).
func (d *Document) FlattenCategories() []*Category {
	var flat []*Category
	var walk func(cats []*Category)
	walk = func(cats []*Category) {
		for _, c := range cats {
			flat = append(flat, c)
			walk(c.Children)
		}
	}
	walk(d.Categories)
	return flat
}

// PathKey is the case-insensitive identity of a category path, used for
// duplicate detection.
func PathKey(path []string) string {
	return strings.ToLower(strings.Join(path, "/"))
}

package greg

import (
	"errors"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/luke-wagner/PlantCare-Monitor/models"
)

var (
	// ErrNoProfile page has no <article id="plant-profile">
	ErrNoProfile = errors.New("greg: plant profile not found")
	// ErrNoPlantData profile found but nothing could be extracted
	ErrNoPlantData = errors.New("greg: no plant data extracted")
)

// ExtractPlantData pulls name, species and the detail rows out of a plant page.
//
// Name is the first <h1> after the profile article opens, species the first <h3>
// after it. Every <div class="plant-detail"> after that contributes one entry keyed by
// its icon file name (alt text when the image has no src).
func ExtractPlantData(page string) (models.PlantData, error) {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return nil, err
	}
	nodes := flatten(doc)

	start := indexOf(nodes, 0, func(n *html.Node) bool {
		return isElement(n, atom.Article) && attr(n, "id") == "plant-profile"
	})
	if start < 0 {
		return nil, ErrNoProfile
	}

	data := models.PlantData{}
	pos := start + 1
	if i := indexOf(nodes, pos, elementMatcher(atom.H1)); i >= 0 {
		data[models.KeyPlantName] = strings.TrimSpace(textOf(nodes[i]))
		pos = i + 1
	}
	if i := indexOf(nodes, pos, elementMatcher(atom.H3)); i >= 0 {
		data[models.KeyPlantType] = StripTags(textOf(nodes[i]))
		pos = i + 1
	}

	for i := pos; i < len(nodes); i++ {
		n := nodes[i]
		if !isElement(n, atom.Div) || !hasClass(n, "plant-detail") {
			continue
		}
		key, value, ok := detail(n)
		if ok {
			data[key] = value
		}
	}

	if len(data) == 0 {
		return nil, ErrNoPlantData
	}
	return data, nil
}

func detail(div *html.Node) (string, string, bool) {
	img := first(div, elementMatcher(atom.Img))
	if img == nil {
		return "", "", false
	}
	key := iconName(attr(img, "src"))
	if key == "" {
		key = strings.ReplaceAll(strings.TrimSpace(attr(img, "alt")), "-", "_")
	}
	if key == "" {
		return "", "", false
	}
	span := first(div, elementMatcher(atom.Span))
	if span == nil {
		return "", "", false
	}
	return key, strings.TrimSpace(textOf(span)), true
}

// iconName "/static/icons/water.svg" -> "water"
func iconName(src string) string {
	src = strings.TrimSpace(src)
	if src == "" {
		return ""
	}
	name := src[strings.LastIndex(src, "/")+1:]
	if i := strings.Index(name, "."); i >= 0 {
		name = name[:i]
	}
	return name
}

// StripTags removes <...> runs and trims the rest
func StripTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

func flatten(root *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		out = append(out, n)
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

func indexOf(nodes []*html.Node, from int, match func(*html.Node) bool) int {
	for i := from; i < len(nodes); i++ {
		if match(nodes[i]) {
			return i
		}
	}
	return -1
}

func first(root *html.Node, match func(*html.Node) bool) *html.Node {
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if match(c) {
			return c
		}
		if n := first(c, match); n != nil {
			return n
		}
	}
	return nil
}

func elementMatcher(a atom.Atom) func(*html.Node) bool {
	return func(n *html.Node) bool { return isElement(n, a) }
}

func isElement(n *html.Node, a atom.Atom) bool {
	return n.Type == html.ElementNode && n.DataAtom == a
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

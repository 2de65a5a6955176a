// CLAUDE:SUMMARY Markdown inventory of a design file: per page, its frames, component instance counts, and text contents.
package designfiles

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// maxTextPerPage bounds the text listing per page. Large files carry
// hundreds of text nodes; past this the report notes how many were left
// out.
const maxTextPerPage = 50

// Summary is the tool-facing digest of a file: header fields plus the
// Markdown inventory.
type Summary struct {
	Name         string    `json:"name"`
	Version      string    `json:"version"`
	LastModified time.Time `json:"last_modified"`
	Pages        int       `json:"pages"`
	Report       string    `json:"report"`
}

// Summarize builds the digest for a fetched file.
func Summarize(f *File) *Summary {
	return &Summary{
		Name:         f.Name,
		Version:      f.Version,
		LastModified: f.LastModified,
		Pages:        len(f.Document.Children),
		Report:       Inventory(f),
	}
}

// Inventory renders a file as Markdown, one section per page: top-level
// frames with node counts, component instances aggregated by component
// name, and text contents in tree order.
func Inventory(f *File) string {
	var b strings.Builder
	b.WriteString("# ")
	b.WriteString(f.Name)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Version %s, modified %s.\n", f.Version, f.LastModified.Format("2006-01-02"))

	for i := range f.Document.Children {
		page := &f.Document.Children[i]
		b.WriteString("\n## ")
		b.WriteString(page.Name)
		b.WriteString("\n")
		writePage(&b, page, f.Components)
	}
	return b.String()
}

func writePage(b *strings.Builder, page *Node, components map[string]Component) {
	var frames []*Node
	for i := range page.Children {
		if page.Children[i].Type == NodeFrame {
			frames = append(frames, &page.Children[i])
		}
	}

	instances := map[string]int{}
	var texts []string
	walk(page, func(n *Node) {
		switch n.Type {
		case NodeInstance:
			instances[instanceName(n, components)]++
		case NodeText:
			if n.Characters != "" {
				texts = append(texts, n.Characters)
			}
		}
	})

	if len(frames) == 0 && len(instances) == 0 && len(texts) == 0 {
		b.WriteString("\n(empty)\n")
		return
	}

	if len(frames) > 0 {
		b.WriteString("\nFrames:\n")
		for _, fr := range frames {
			fmt.Fprintf(b, "- %s (%d nodes)\n", fr.Name, countNodes(fr))
		}
	}

	if len(instances) > 0 {
		names := make([]string, 0, len(instances))
		for name := range instances {
			names = append(names, name)
		}
		sort.Strings(names)
		b.WriteString("\nComponent instances:\n")
		for _, name := range names {
			fmt.Fprintf(b, "- %s: %d\n", name, instances[name])
		}
	}

	if len(texts) > 0 {
		b.WriteString("\nText:\n")
		shown := texts
		if len(shown) > maxTextPerPage {
			shown = shown[:maxTextPerPage]
		}
		for _, t := range shown {
			fmt.Fprintf(b, "- %q\n", t)
		}
		if rest := len(texts) - len(shown); rest > 0 {
			fmt.Fprintf(b, "- (%d more text nodes)\n", rest)
		}
	}
}

// instanceName resolves an instance to its component's name; instances of
// unpublished or deleted components keep their own layer name.
func instanceName(n *Node, components map[string]Component) string {
	if comp, ok := components[n.ComponentID]; ok && comp.Name != "" {
		return comp.Name
	}
	return n.Name
}

// walk visits n and every descendant, depth first, in child order.
func walk(n *Node, fn func(*Node)) {
	fn(n)
	for i := range n.Children {
		walk(&n.Children[i], fn)
	}
}

// countNodes counts n and all its descendants.
func countNodes(n *Node) int {
	count := 0
	walk(n, func(*Node) { count++ })
	return count
}

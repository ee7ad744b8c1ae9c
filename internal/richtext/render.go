package richtext

import (
	"fmt"
	"html"
	"strings"
)

// RenderHTML renders a validated document as sanitized HTML. All text and
// attribute values are escaped; only whitelisted node types produce markup,
// so a validated tree can never emit script or unexpected tags.
func RenderHTML(doc *Node) string {
	var b strings.Builder
	renderNode(doc, &b)
	return b.String()
}

func renderNode(n *Node, b *strings.Builder) {
	switch n.Type {
	case "doc":
		renderChildren(n, b)
	case "paragraph":
		b.WriteString("<p>")
		renderChildren(n, b)
		b.WriteString("</p>")
	case "heading":
		level, _ := intAttr(n.Attrs, "level")
		fmt.Fprintf(b, "<h%d>", level)
		renderChildren(n, b)
		fmt.Fprintf(b, "</h%d>", level)
	case "bullet_list":
		b.WriteString("<ul>")
		renderChildren(n, b)
		b.WriteString("</ul>")
	case "list_item":
		b.WriteString("<li>")
		renderChildren(n, b)
		b.WriteString("</li>")
	case "text":
		renderText(n, b)
	case "image":
		url, _ := n.Attrs["url"].(string)
		alt, _ := n.Attrs["alt"].(string)
		fmt.Fprintf(b, `<img src="%s" alt="%s">`, html.EscapeString(url), html.EscapeString(alt))
	case "audio":
		url, _ := n.Attrs["url"].(string)
		fmt.Fprintf(b, `<audio controls src="%s"></audio>`, html.EscapeString(url))
	case "youtube":
		id, _ := n.Attrs["video_id"].(string)
		fmt.Fprintf(b, `<iframe src="https://www.youtube-nocookie.com/embed/%s" allowfullscreen></iframe>`, html.EscapeString(id))
	case "rating":
		stars, _ := intAttr(n.Attrs, "stars")
		fmt.Fprintf(b, `<span class="rating" data-stars="%d">%s</span>`, stars, strings.Repeat("★", stars)+strings.Repeat("☆", 5-stars))
	}
}

func renderChildren(n *Node, b *strings.Builder) {
	for i := range n.Content {
		renderNode(&n.Content[i], b)
	}
}

func renderText(n *Node, b *strings.Builder) {
	text := html.EscapeString(n.Text)
	// Wrap innermost-first so closing tags mirror opening order.
	for i := len(n.Marks) - 1; i >= 0; i-- {
		switch n.Marks[i].Type {
		case "bold":
			text = "<strong>" + text + "</strong>"
		case "italic":
			text = "<em>" + text + "</em>"
		case "link":
			href, _ := n.Marks[i].Attrs["href"].(string)
			text = fmt.Sprintf(`<a href="%s" rel="nofollow">%s</a>`, html.EscapeString(href), text)
		}
	}
	b.WriteString(text)
}

// Package richtext validates and renders the rich-text documents produced by
// the post editor. A document is a JSON tree of typed nodes; the server never
// trusts the client's tree and re-validates on every write.
package richtext

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

const maxDepth = 20

// Node is one element of a rich-text document tree.
type Node struct {
	Type    string         `json:"type"`
	Attrs   map[string]any `json:"attrs,omitempty"`
	Marks   []Mark         `json:"marks,omitempty"`
	Content []Node         `json:"content,omitempty"`
	Text    string         `json:"text,omitempty"`
}

// Mark is an inline formatting annotation on a text node.
type Mark struct {
	Type  string         `json:"type"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

var youtubeIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// Parse unmarshals and validates a document. The root must be a doc node.
func Parse(raw string) (*Node, error) {
	var doc Node
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("malformed document JSON: %w", err)
	}
	if doc.Type != "doc" {
		return nil, fmt.Errorf("root node must be doc, got %q", doc.Type)
	}
	if err := validate(&doc, 0); err != nil {
		return nil, err
	}
	return &doc, nil
}

func validate(n *Node, depth int) error {
	if depth > maxDepth {
		return fmt.Errorf("document nested deeper than %d levels", maxDepth)
	}

	switch n.Type {
	case "doc", "paragraph", "bullet_list", "list_item":
		// container nodes carry no attributes
	case "heading":
		level, ok := intAttr(n.Attrs, "level")
		if !ok || level < 1 || level > 3 {
			return fmt.Errorf("heading level must be 1-3")
		}
	case "text":
		if n.Text == "" {
			return fmt.Errorf("text node must carry text")
		}
		for _, m := range n.Marks {
			if err := validateMark(m); err != nil {
				return err
			}
		}
	case "image":
		if err := requireHTTPURL(n.Attrs, "url"); err != nil {
			return fmt.Errorf("image: %w", err)
		}
	case "audio":
		if err := requireHTTPURL(n.Attrs, "url"); err != nil {
			return fmt.Errorf("audio: %w", err)
		}
	case "youtube":
		id, _ := n.Attrs["video_id"].(string)
		if !youtubeIDPattern.MatchString(id) {
			return fmt.Errorf("youtube: invalid video id %q", id)
		}
	case "rating":
		stars, ok := intAttr(n.Attrs, "stars")
		if !ok || stars < 1 || stars > 5 {
			return fmt.Errorf("rating stars must be 1-5")
		}
	default:
		return fmt.Errorf("unknown node type %q", n.Type)
	}

	for i := range n.Content {
		if err := validate(&n.Content[i], depth+1); err != nil {
			return err
		}
	}
	return nil
}

func validateMark(m Mark) error {
	switch m.Type {
	case "bold", "italic":
		return nil
	case "link":
		if err := requireHTTPURL(m.Attrs, "href"); err != nil {
			return fmt.Errorf("link mark: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown mark type %q", m.Type)
	}
}

func intAttr(attrs map[string]any, key string) (int, bool) {
	v, ok := attrs[key]
	if !ok {
		return 0, false
	}
	// JSON numbers decode as float64; reject non-integral values.
	f, ok := v.(float64)
	if !ok || f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}

func requireHTTPURL(attrs map[string]any, key string) error {
	u, _ := attrs[key].(string)
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		return fmt.Errorf("%s must be an absolute http(s) URL", key)
	}
	return nil
}

// Excerpt returns the first maxLen runes of the document's plain text,
// suitable for list views.
func Excerpt(doc *Node, maxLen int) string {
	var b strings.Builder
	collectText(doc, &b)
	text := strings.Join(strings.Fields(b.String()), " ")
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return strings.TrimRight(string(runes[:maxLen]), " ") + "…"
}

func collectText(n *Node, b *strings.Builder) {
	if n.Type == "text" {
		b.WriteString(n.Text)
	}
	for i := range n.Content {
		collectText(&n.Content[i], b)
		b.WriteByte(' ')
	}
}

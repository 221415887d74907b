package feed

import (
	"cmp"
	"net/url"
	"strings"
	"time"
)

type Format string

const (
	FormatHTML  Format = "html"
	FormatPlain Format = "plain"
)

const (
	headerGlyph     = "🗞️"
	headerTimeStyle = "02.01.2006 15:04"
	blockSeparator  = "\n\n"
)

var (
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	attrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
)

type Renderer struct {
	title        string
	subtitle     string
	defaultEmoji string
	emoji        []EmojiRule
}

func NewRenderer(config *Config) *Renderer {
	return &Renderer{
		title:        config.Title,
		subtitle:     config.Subtitle,
		defaultEmoji: config.DefaultEmoji,
		emoji:        config.Emoji,
	}
}

// Run renders the selection as one bulletin. Empty buckets are skipped. now
// must already be in the bulletin's local time zone.
func (r *Renderer) Run(selection Selection, format Format, now time.Time) string {
	var buf strings.Builder

	buf.WriteString(r.Header(format, now))

	for _, bucket := range selection.Buckets {
		if len(bucket.Items) == 0 {
			continue
		}

		buf.WriteString(blockSeparator)
		r.writeCategory(&buf, bucket.Category, format)

		for _, item := range bucket.Items {
			buf.WriteString(blockSeparator)
			r.writeItem(&buf, item, format)
		}
	}

	return buf.String()
}

// Header renders the fixed lines that precede every category.
func (r *Renderer) Header(format Format, now time.Time) string {
	stamp := now.Format(headerTimeStyle)
	if r.subtitle != "" {
		stamp = r.subtitle + " " + stamp
	}

	var buf strings.Builder
	buf.WriteString(headerGlyph)
	if format == FormatPlain {
		if r.title != "" {
			buf.WriteString(" ")
			buf.WriteString(r.title)
		}
		buf.WriteString("\n")
		buf.WriteString(stamp)
		return buf.String()
	}

	if r.title != "" {
		buf.WriteString(" <b>")
		buf.WriteString(textEscaper.Replace(r.title))
		buf.WriteString("</b>")
	}
	buf.WriteString("\n<i>")
	buf.WriteString(textEscaper.Replace(stamp))
	buf.WriteString("</i>")
	return buf.String()
}

// DetectEmoji returns the glyph of the first emoji rule matching the title.
func (r *Renderer) DetectEmoji(title string) string {
	value := strings.ToLower(title)
	for _, rule := range r.emoji {
		if matchesAny(value, rule.Keywords) {
			return rule.Emoji
		}
	}
	return r.defaultEmoji
}

func (r *Renderer) writeCategory(buf *strings.Builder, name string, format Format) {
	if format == FormatPlain {
		buf.WriteString(strings.ToUpper(name))
		return
	}
	buf.WriteString("<b>")
	buf.WriteString(textEscaper.Replace(name))
	buf.WriteString("</b>")
}

func (r *Renderer) writeItem(buf *strings.Builder, item Item, format Format) {
	if emoji := r.DetectEmoji(item.Title); emoji != "" {
		buf.WriteString(emoji)
		buf.WriteString(" ")
	}

	if format == FormatPlain {
		buf.WriteString(item.Title)
		buf.WriteString("\n")
		buf.WriteString(item.Link)
		return
	}

	buf.WriteString(`<a href="`)
	buf.WriteString(attrEscaper.Replace(item.Link))
	buf.WriteString(`">`)
	buf.WriteString(textEscaper.Replace(item.Title))
	buf.WriteString("</a>")

	if host := hostname(item.Link); host != "" {
		buf.WriteString("\n<i>")
		buf.WriteString(textEscaper.Replace(host))
		buf.WriteString("</i>")
	}
}

// hostname returns the lower-cased host of link with a leading "www." removed.
func hostname(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	host := cmp.Or(u.Hostname(), u.Host)
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}

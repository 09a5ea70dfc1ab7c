package ingest

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxSlugLen = 80

var (
	titlePattern       = regexp.MustCompile(`title[^']*'([^']+)'`)
	slugPattern        = regexp.MustCompile(`slug[^']*'([^']+)'`)
	descriptionPattern = regexp.MustCompile(`description[^']*'([^']+)'`)
	servingsPattern    = regexp.MustCompile(`servings[^,]*,\s*(\d+)`)
	nonSlugChars       = regexp.MustCompile(`[^a-z0-9]+`)
	columnsThenValues  = regexp.MustCompile(`(?is)\(([^()]*)\)\s*values\s*\(`)
)

// PartialRecipe is everything the fallback path can recover from raw text.
type PartialRecipe struct {
	Title       string
	Slug        string
	Description *string
	Servings    int
}

// ExtractionError reports text the fallback path could not use.
type ExtractionError struct {
	Reason string
}

func (e *ExtractionError) Error() string {
	return e.Reason
}

// ExtractFields pulls title, slug, description and servings out of text that
// follows the single-quoted value convention of an INSERT statement. It is a
// heuristic, not a parser. When the text has a "(columns) VALUES (values)"
// shape the first row is matched up by position; any field still missing is
// taken from the first quoted value after its name. title and slug are
// required; servings falls back to 1.
func ExtractFields(text string) (PartialRecipe, error) {
	if !utf8.ValidString(text) {
		return PartialRecipe{}, &ExtractionError{Reason: "Recipe text is not valid UTF-8"}
	}
	aligned := alignedRow(text)

	title := aligned.quoted("title")
	if title == "" {
		title = firstGroup(titlePattern, text)
	}
	rawSlug := aligned.quoted("slug")
	if rawSlug == "" {
		rawSlug = firstGroup(slugPattern, text)
	}
	if title == "" || rawSlug == "" {
		return PartialRecipe{}, &ExtractionError{Reason: "Could not parse recipe data from SQL"}
	}

	slug := Slugify(rawSlug)
	if slug == "" {
		return PartialRecipe{}, &ExtractionError{Reason: "Could not derive a URL-safe slug from " + strconv.Quote(rawSlug)}
	}

	partial := PartialRecipe{
		Title:    title,
		Slug:     slug,
		Servings: 1,
	}
	desc := aligned.quoted("description")
	if _, listed := aligned["description"]; !listed {
		desc = firstGroup(descriptionPattern, text)
	}
	if desc != "" {
		partial.Description = &desc
	}

	servings, listed := aligned["servings"]
	if !listed {
		servings = sqlValue{text: firstGroup(servingsPattern, text)}
	}
	if n, err := strconv.Atoi(strings.TrimSpace(servings.text)); err == nil && n >= 1 {
		partial.Servings = n
	}
	return partial, nil
}

type sqlValue struct {
	text   string
	quoted bool
}

// row maps lowercased column names to the value in the same position.
type row map[string]sqlValue

func (r row) quoted(column string) string {
	v, ok := r[column]
	if !ok || !v.quoted {
		return ""
	}
	return v.text
}

// alignedRow pairs the first column list with the first VALUES tuple. It
// returns nil when the text has no such shape or the counts differ.
func alignedRow(text string) row {
	loc := columnsThenValues.FindStringSubmatchIndex(text)
	if loc == nil {
		return nil
	}
	var columns []string
	for _, c := range strings.Split(text[loc[2]:loc[3]], ",") {
		columns = append(columns, strings.ToLower(strings.Trim(strings.TrimSpace(c), "\"`")))
	}
	values, ok := scanTuple(text[loc[1]:])
	if !ok || len(values) != len(columns) {
		return nil
	}
	r := make(row, len(columns))
	for i, c := range columns {
		r[c] = values[i]
	}
	return r
}

// scanTuple reads comma separated values up to the closing parenthesis.
// Quoted values honour the '' escape; unquoted ones are kept verbatim and may
// contain balanced parentheses such as now().
func scanTuple(s string) ([]sqlValue, bool) {
	var (
		values []sqlValue
		cur    strings.Builder
		quoted bool
		depth  int
	)
	flush := func() {
		text := cur.String()
		if !quoted {
			text = strings.TrimSpace(text)
		}
		values = append(values, sqlValue{text: text, quoted: quoted})
		cur.Reset()
		quoted = false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\'' && depth == 0 && strings.TrimSpace(cur.String()) == "" && !quoted:
			cur.Reset()
			quoted = true
			closed := false
			for i++; i < len(s); i++ {
				if s[i] == '\'' {
					if i+1 < len(s) && s[i+1] == '\'' {
						cur.WriteByte('\'')
						i++
						continue
					}
					closed = true
					break
				}
				cur.WriteByte(s[i])
			}
			if !closed {
				return nil, false
			}
		case c == '(':
			depth++
			cur.WriteByte(c)
		case c == ')' && depth > 0:
			depth--
			cur.WriteByte(c)
		case c == ')':
			flush()
			return values, true
		case c == ',' && depth == 0:
			flush()
		default:
			if !quoted {
				cur.WriteByte(c)
			}
		}
	}
	return nil, false
}

func firstGroup(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1]
}

// Slugify lowercases s, strips diacritics, collapses everything outside
// [a-z0-9] into single dashes and caps the result at 80 characters.
func Slugify(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	folded, _, err := transform.String(t, strings.ToLower(s))
	if err != nil {
		folded = strings.ToLower(s)
	}
	slug := strings.Trim(nonSlugChars.ReplaceAllString(folded, "-"), "-")
	if len(slug) > maxSlugLen {
		slug = strings.TrimRight(slug[:maxSlugLen], "-")
	}
	return slug
}

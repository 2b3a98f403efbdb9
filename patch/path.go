package patch

import (
	"fmt"
	"strconv"
	"strings"
)

// Segment is one step of a Path: a map attribute name or a list index.
type Segment struct {
	Name    string
	Index   int
	IsIndex bool
}

// Path is a parsed document path.
type Path []Segment

// ParsePath parses paths such as "a", "a.b", "tags[0]" and "a.list[2].c".
func ParsePath(s string) (Path, error) {
	if s == "" {
		return nil, fmt.Errorf("empty path")
	}
	var p Path
	for _, part := range strings.Split(s, ".") {
		name := part
		rest := ""
		if i := strings.IndexByte(part, '['); i >= 0 {
			name, rest = part[:i], part[i:]
		}
		if name == "" {
			return nil, fmt.Errorf("path %q has an empty attribute name", s)
		}
		if strings.ContainsAny(name, "]") {
			return nil, fmt.Errorf("path %q is malformed", s)
		}
		p = append(p, Segment{Name: name})

		for rest != "" {
			end := strings.IndexByte(rest, ']')
			if rest[0] != '[' || end < 0 {
				return nil, fmt.Errorf("path %q is malformed", s)
			}
			idx, err := strconv.Atoi(rest[1:end])
			if err != nil || idx < 0 {
				return nil, fmt.Errorf("path %q has an invalid list index", s)
			}
			p = append(p, Segment{Index: idx, IsIndex: true})
			rest = rest[end+1:]
		}
	}
	return p, nil
}

// HasPrefix reports whether q is a leading part of p.
func (p Path) HasPrefix(q Path) bool {
	if len(q) > len(p) {
		return false
	}
	for i := range q {
		if p[i] != q[i] {
			return false
		}
	}
	return true
}

func (p Path) String() string {
	var b strings.Builder
	for i, seg := range p {
		if seg.IsIndex {
			fmt.Fprintf(&b, "[%d]", seg.Index)
			continue
		}
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(seg.Name)
	}
	return b.String()
}

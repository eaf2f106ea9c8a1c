package browsertest

import (
	"strconv"
	"strings"
)

// TextSelector matches elements whose normalized text is exactly text,
// case-sensitively. Unquoted text= selectors would match substrings.
func TextSelector(text string) string {
	return "text=" + strconv.Quote(text)
}

// Nav matches the nav link labelled exactly text.
func Nav(text string) string {
	return "nav >> " + TextSelector(text)
}

// Field builds the selector union `input[name="x"], #x` used by forms that
// may identify inputs by name or by id.
func Field(name string, tags ...string) string {
	if len(tags) == 0 {
		tags = []string{"input"}
	}
	alts := make([]string, 0, len(tags)+1)
	for _, tag := range tags {
		alts = append(alts, tag+`[name="`+name+`"]`)
	}
	alts = append(alts, "#"+name)
	return joinSelectors(alts)
}

func joinSelectors(selectors []string) string {
	return strings.Join(selectors, ", ")
}

package job

import (
	"regexp"
	"sort"
	"strings"
)

// skillTerms is the technology dictionary matched against posting text.
var skillTerms = []string{
	"python", "go", "golang", "java", "javascript", "typescript", "rust", "ruby", "php",
	"c++", "c#", "kotlin", "swift", "scala", "elixir", "sql", "react", "vue", "angular",
	"node.js", "django", "flask", "fastapi", "rails", "spring", "kubernetes", "docker",
	"terraform", "aws", "gcp", "azure", "postgresql", "mysql", "mongodb", "redis",
	"kafka", "graphql", "pytorch", "tensorflow", "machine learning", "llm", "linux",
}

var skillPatterns = compileSkills(skillTerms)

func compileSkills(terms []string) map[string]*regexp.Regexp {
	out := make(map[string]*regexp.Regexp, len(terms))
	for _, term := range terms {
		// \b does not work next to '+', '#' or '.', so bound on non-word runes instead.
		out[term] = regexp.MustCompile(`(?i)(^|[^\p{L}\p{N}_])` + regexp.QuoteMeta(term) + `($|[^\p{L}\p{N}_+#])`)
	}
	return out
}

// ExtractSkills returns the dictionary terms present in text, sorted.
func ExtractSkills(text string) []string {
	var found []string
	for term, re := range skillPatterns {
		if re.MatchString(text) {
			found = append(found, term)
		}
	}
	sort.Strings(found)
	return found
}

func mergeSkills(tags, extracted []string) []string {
	seen := make(map[string]bool, len(tags)+len(extracted))
	out := make([]string, 0, len(tags)+len(extracted))
	for _, s := range append(append([]string{}, tags...), extracted...) {
		s = strings.ToLower(s)
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

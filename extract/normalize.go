package extract

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// ErrIDCollision reports two normalized entities resolving to the same
// stable ID. The assignment scheme makes this impossible; hitting it
// means the normalizer is broken and the run must not persist output.
var ErrIDCollision = errors.New("extract: entity id collision")

// Fuzzy dedup merges names within this rune edit distance. Tuned against
// the source corpus together with the multi-source confidence bonus.
const (
	fuzzyThreshold   = 2
	multiSourceBonus = 0.1
)

// Filler affixes stripped during canonicalization. Suffixes are only
// removed while at least two runes remain.
var (
	fillerPrefixes = []string{"进行", "实施", "开展"}
	fillerSuffixes = []string{"作业", "工作", "工程", "施工", "的", "等"}
)

// synonyms maps canonical spelling variants onto one preferred form,
// applied after affix stripping.
var synonyms = map[string]string{
	"钢筋绑轧": "钢筋绑扎",
	"塔吊":   "塔式起重机",
	"砼浇筑":  "混凝土浇筑",
	"砼":    "混凝土",
}

// domainAbbrs shortens domain names for entity IDs.
var domainAbbrs = map[string]string{
	"变电土建": "civil",
	"变电电气": "elec",
	"线路塔基": "tower",
	"特殊作业": "special",
	"通用":   "gen",
}

func domainAbbr(domain string) string {
	if a, ok := domainAbbrs[domain]; ok {
		return a
	}
	return "unk"
}

// Canonicalize reduces an entity name to its canonical form: filler
// affixes stripped, whitespace collapsed, synonyms applied.
func Canonicalize(name string) string {
	s := strings.Join(strings.Fields(name), "")
	s = strings.ReplaceAll(s, "砼", "混凝土")

	for _, p := range fillerPrefixes {
		if rest, ok := strings.CutPrefix(s, p); ok && len([]rune(rest)) >= 2 {
			s = rest
			break
		}
	}
	for {
		stripped := false
		for _, suf := range fillerSuffixes {
			if rest, ok := strings.CutSuffix(s, suf); ok && len([]rune(rest)) >= 2 {
				s = rest
				stripped = true
				break
			}
		}
		if !stripped {
			break
		}
	}

	if canon, ok := synonyms[s]; ok {
		return canon
	}
	return s
}

// group is one merged entity under construction.
type group struct {
	entity  Entity
	names   map[string]bool // every surface form seen
	sources map[string]bool
}

// Normalize deduplicates raw extraction output, assigns stable IDs, and
// remaps relations onto them. Deterministic: the same input in any order
// yields the same output. The returned map resolves both canonical names
// and aliases to entity IDs.
func Normalize(entities []Entity, relations []Relation) ([]Entity, []Relation, map[string]string, error) {
	// Exact dedup after canonicalization, bucketed by (type, domain).
	groups := make(map[string]*group)
	var keys []string
	for _, e := range entities {
		name := Canonicalize(e.Name)
		if name == "" {
			slog.Warn("extract: dropping entity with empty canonical name", "raw", e.Name)
			continue
		}
		key := e.Type + "\x00" + e.Domain + "\x00" + name
		g, ok := groups[key]
		if !ok {
			g = &group{
				entity:  Entity{Type: e.Type, Name: name, Domain: e.Domain},
				names:   map[string]bool{name: true},
				sources: map[string]bool{},
			}
			groups[key] = g
			keys = append(keys, key)
		}
		mergeInto(g, e)
	}
	sort.Strings(keys)

	// Fuzzy dedup inside each (type, domain) bucket via union-find, so
	// chains of near names merge transitively.
	buckets := make(map[string][]string)
	for _, key := range keys {
		g := groups[key]
		b := g.entity.Type + "\x00" + g.entity.Domain
		buckets[b] = append(buckets[b], key)
	}

	parent := make(map[string]string, len(keys))
	for _, key := range keys {
		parent[key] = key
	}
	var find func(string) string
	find = func(k string) string {
		if parent[k] != k {
			parent[k] = find(parent[k])
		}
		return parent[k]
	}
	union := func(a, b string) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[rb] = ra
		}
	}

	for _, bucket := range buckets {
		for i := 0; i < len(bucket); i++ {
			for j := i + 1; j < len(bucket); j++ {
				a, b := groups[bucket[i]], groups[bucket[j]]
				if levenshtein(a.entity.Name, b.entity.Name) <= fuzzyThreshold {
					union(bucket[i], bucket[j])
				}
			}
		}
	}

	// Collapse each union class into one entity. The canonical name is
	// the shortest member, ties broken lexicographically.
	classes := make(map[string][]*group)
	var roots []string
	for _, key := range keys {
		r := find(key)
		if _, ok := classes[r]; !ok {
			roots = append(roots, r)
		}
		classes[r] = append(classes[r], groups[key])
	}
	sort.Strings(roots)

	var merged []Entity
	for _, r := range roots {
		merged = append(merged, collapse(classes[r]))
	}

	// Stable IDs: per entity type, sequence in canonical-name order.
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Type != merged[j].Type {
			return merged[i].Type < merged[j].Type
		}
		if merged[i].Name != merged[j].Name {
			return merged[i].Name < merged[j].Name
		}
		return merged[i].Domain < merged[j].Domain
	})

	nameToID := make(map[string]string)
	assigned := make(map[string]bool, len(merged))
	seq := make(map[string]int)
	for i := range merged {
		e := &merged[i]
		seq[e.Type]++
		e.ID = fmt.Sprintf("%s_%s_%03d", e.Type, domainAbbr(e.Domain), seq[e.Type])
		if assigned[e.ID] {
			return nil, nil, nil, fmt.Errorf("%w: %s (%s)", ErrIDCollision, e.ID, e.Name)
		}
		assigned[e.ID] = true

		if _, ok := nameToID[e.Name]; !ok {
			nameToID[e.Name] = e.ID
		}
		for _, a := range e.Aliases {
			if _, ok := nameToID[a]; !ok {
				nameToID[a] = e.ID
			}
		}
	}

	normRels, err := normalizeRelations(relations, nameToID)
	if err != nil {
		return nil, nil, nil, err
	}

	slog.Info("extract: normalized",
		"entities_in", len(entities), "entities_out", len(merged),
		"relations_in", len(relations), "relations_out", len(normRels))
	return merged, normRels, nameToID, nil
}

// mergeInto folds one raw entity into its exact-match group.
func mergeInto(g *group, e Entity) {
	g.names[strings.TrimSpace(e.Name)] = true
	g.sources[e.Source] = true
	if e.Confidence > g.entity.Confidence {
		g.entity.Confidence = e.Confidence
	}
	for k, v := range e.Attributes {
		if g.entity.Attributes == nil {
			g.entity.Attributes = map[string]string{}
		}
		if _, ok := g.entity.Attributes[k]; !ok {
			g.entity.Attributes[k] = v
		}
	}
	for _, a := range e.Aliases {
		g.names[a] = true
	}
}

// collapse merges a fuzzy union class into a single entity.
func collapse(class []*group) Entity {
	canon := class[0]
	for _, g := range class[1:] {
		cn, gn := canon.entity.Name, g.entity.Name
		cl, gl := len([]rune(cn)), len([]rune(gn))
		if gl < cl || (gl == cl && gn < cn) {
			canon = g
		}
	}

	out := canon.entity
	names := make(map[string]bool)
	sources := make(map[string]bool)
	for _, g := range class {
		for n := range g.names {
			names[n] = true
		}
		for s := range g.sources {
			sources[s] = true
		}
		if g.entity.Confidence > out.Confidence {
			out.Confidence = g.entity.Confidence
		}
		for k, v := range g.entity.Attributes {
			if out.Attributes == nil {
				out.Attributes = map[string]string{}
			}
			if _, ok := out.Attributes[k]; !ok {
				out.Attributes[k] = v
			}
		}
	}

	if sources[SourceRule] {
		out.Source = SourceRule
	} else {
		out.Source = SourceLLM
	}
	// Corroboration across the rule and model paths earns a bonus.
	if sources[SourceRule] && sources[SourceLLM] {
		out.Confidence += multiSourceBonus
		if out.Confidence > 1.0 {
			out.Confidence = 1.0
		}
	}

	delete(names, out.Name)
	out.Aliases = out.Aliases[:0]
	for n := range names {
		if n != "" {
			out.Aliases = append(out.Aliases, n)
		}
	}
	sort.Strings(out.Aliases)
	return out
}

// normalizeRelations remaps endpoints onto entity IDs and deduplicates
// (source, target, type) triples.
func normalizeRelations(relations []Relation, nameToID map[string]string) ([]Relation, error) {
	resolve := func(name string) (string, bool) {
		if id, ok := nameToID[name]; ok {
			return id, true
		}
		if id, ok := nameToID[Canonicalize(name)]; ok {
			return id, true
		}
		return "", false
	}

	type triple struct{ src, tgt, typ string }
	best := make(map[triple]Relation)
	var order []triple

	for _, r := range relations {
		src, ok := resolve(r.SourceID)
		if !ok {
			slog.Warn("extract: dropping relation with unresolved source",
				"source", r.SourceID, "type", r.Type, "doc", r.SourceDoc)
			continue
		}
		tgt, ok := resolve(r.TargetID)
		if !ok {
			slog.Warn("extract: dropping relation with unresolved target",
				"target", r.TargetID, "type", r.Type, "doc", r.SourceDoc)
			continue
		}

		k := triple{src, tgt, r.Type}
		nr := r
		nr.SourceID, nr.TargetID = src, tgt
		nr.Evidence = clipEvidence(nr.Evidence)

		cur, seen := best[k]
		if !seen {
			best[k] = nr
			order = append(order, k)
			continue
		}
		if nr.Confidence > cur.Confidence ||
			(nr.Confidence == cur.Confidence && len(nr.Evidence) > len(cur.Evidence)) {
			best[k] = nr
		}
	}

	sort.Slice(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if a.src != b.src {
			return a.src < b.src
		}
		if a.tgt != b.tgt {
			return a.tgt < b.tgt
		}
		return a.typ < b.typ
	})

	out := make([]Relation, 0, len(order))
	for i, k := range order {
		r := best[k]
		r.ID = fmt.Sprintf("rel_%04d", i+1)
		out = append(out, r)
	}
	return out, nil
}

// levenshtein computes rune edit distance with a two-row DP.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

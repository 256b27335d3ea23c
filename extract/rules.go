package extract

import (
	"log/slog"
	"regexp"
	"strings"
)

// Confidence grades for the rule path. Table rows are authoritative;
// flow steps and keyword-spotted equipment are progressively softer.
const (
	tableConfidence     = 1.0
	flowConfidence      = 0.9
	equipmentConfidence = 0.8
	inlineConfidence    = 0.7
)

// RuleExtractor accumulates entities and relations from structured
// sources: markdown tables, spreadsheet rows, and process flow lines.
// Not safe for concurrent use; run one per document.
type RuleExtractor struct {
	domain    string
	sourceDoc string
	entities  []Entity
	relations []Relation
}

// NewRuleExtractor creates an extractor for one source document.
func NewRuleExtractor(domain, sourceDoc string) *RuleExtractor {
	return &RuleExtractor{domain: domain, sourceDoc: sourceDoc}
}

// Result returns everything accumulated so far. The output references
// entities by name; Normalize assigns IDs and remaps relations.
func (x *RuleExtractor) Result() ([]Entity, []Relation) {
	return x.entities, x.relations
}

// Markdown scans a markdown fragment for tables and process flow lines
// and extracts from both.
func (x *RuleExtractor) Markdown(text string) {
	lines := strings.Split(text, "\n")
	i := 0
	for i < len(lines) {
		if isTableRow(lines[i]) && i+1 < len(lines) && isTableSeparator(lines[i+1]) {
			header := splitTableRow(lines[i])
			var rows [][]string
			j := i + 2
			for j < len(lines) && isTableRow(lines[j]) {
				rows = append(rows, splitTableRow(lines[j]))
				j++
			}
			x.Table(header, rows)
			i = j
			continue
		}
		if strings.Contains(lines[i], "→") || strings.Contains(lines[i], "->") {
			x.Flow(lines[i])
		}
		i++
	}
}

// Table classifies a table by its header and dispatches to the matching
// fixed-schema extractor. Unrecognized tables are skipped silently; they
// are the common case in real documents.
func (x *RuleExtractor) Table(header []string, rows [][]string) {
	cols := headerColumns(header)
	switch {
	case cols.hazard >= 0 && cols.activity >= 0:
		x.hazardTable(cols, rows)
	case cols.quality >= 0 && cols.process >= 0:
		x.qualityTable(cols, rows)
	}
}

// columns maps header roles to column indexes; -1 means absent.
type columns struct {
	activity int
	hazard   int
	accident int
	level    int
	measure  int
	process  int
	quality  int
}

// Header keyword sets per column role. First matching header cell wins.
var headerRoles = []struct {
	assign   func(*columns, int)
	keywords []string
}{
	{func(c *columns, i int) { c.hazard = i }, []string{"危险源", "危害因素", "风险点"}},
	{func(c *columns, i int) { c.activity = i }, []string{"作业活动", "作业内容", "活动"}},
	{func(c *columns, i int) { c.accident = i }, []string{"事故", "后果"}},
	{func(c *columns, i int) { c.level = i }, []string{"等级", "级别"}},
	{func(c *columns, i int) { c.measure = i }, []string{"控制措施", "防范措施", "措施"}},
	{func(c *columns, i int) { c.quality = i }, []string{"质量控制点", "控制点", "质量要求", "验收标准"}},
	{func(c *columns, i int) { c.process = i }, []string{"工序", "施工工序", "分项工程"}},
}

func headerColumns(header []string) columns {
	c := columns{activity: -1, hazard: -1, accident: -1, level: -1, measure: -1, process: -1, quality: -1}
	for i, cell := range header {
		cell = strings.TrimSpace(cell)
		for _, role := range headerRoles {
			for _, kw := range role.keywords {
				if strings.Contains(cell, kw) {
					role.assign(&c, i)
				}
			}
		}
	}
	return c
}

// hazardTable extracts from the standard risk register layout: activity,
// hazard, possible accident, risk level, control measures. Each row
// yields a process, a hazard, and one safety measure per measure clause,
// linked produces_hazard and mitigated_by.
func (x *RuleExtractor) hazardTable(cols columns, rows [][]string) {
	for _, row := range rows {
		if rowEmpty(row) {
			continue
		}
		activity := cellAt(row, cols.activity)
		hazard := cellAt(row, cols.hazard)
		if activity == "" || hazard == "" {
			slog.Warn("extract: skipping malformed hazard row",
				"source", x.sourceDoc, "row", clipEvidence(strings.Join(row, "|")))
			continue
		}
		evidence := clipEvidence(activity + " " + hazard)

		attrs := map[string]string{}
		if a := cellAt(row, cols.accident); a != "" {
			attrs["accident"] = a
		}
		if l := cellAt(row, cols.level); l != "" {
			attrs["level"] = l
		}

		x.addEntity(Entity{Type: TypeProcess, Name: activity, Domain: x.domain,
			Source: SourceRule, Confidence: tableConfidence})
		x.addEntity(Entity{Type: TypeHazard, Name: hazard, Domain: x.domain,
			Attributes: attrs, Source: SourceRule, Confidence: tableConfidence})
		x.addRelation(Relation{SourceID: activity, TargetID: hazard,
			Type: RelProducesHazard, Confidence: tableConfidence,
			Evidence: evidence, SourceDoc: x.sourceDoc})

		for _, m := range splitClauses(cellAt(row, cols.measure)) {
			x.addEntity(Entity{Type: TypeSafetyMeasure, Name: m, Domain: x.domain,
				Source: SourceRule, Confidence: tableConfidence})
			x.addRelation(Relation{SourceID: hazard, TargetID: m,
				Type: RelMitigatedBy, Confidence: tableConfidence,
				Evidence: clipEvidence(hazard + " " + m), SourceDoc: x.sourceDoc})
		}
	}
}

// qualityTable extracts from the quality-control layout: process plus
// quality control point, linked requires_quality_check.
func (x *RuleExtractor) qualityTable(cols columns, rows [][]string) {
	for _, row := range rows {
		if rowEmpty(row) {
			continue
		}
		process := cellAt(row, cols.process)
		quality := cellAt(row, cols.quality)
		if process == "" || quality == "" {
			slog.Warn("extract: skipping malformed quality row",
				"source", x.sourceDoc, "row", clipEvidence(strings.Join(row, "|")))
			continue
		}
		x.addEntity(Entity{Type: TypeProcess, Name: process, Domain: x.domain,
			Source: SourceRule, Confidence: tableConfidence})
		for _, q := range splitClauses(quality) {
			x.addEntity(Entity{Type: TypeQualityPoint, Name: q, Domain: x.domain,
				Source: SourceRule, Confidence: tableConfidence})
			x.addRelation(Relation{SourceID: process, TargetID: q,
				Type: RelRequiresQualityCheck, Confidence: tableConfidence,
				Evidence: clipEvidence(process + " " + q), SourceDoc: x.sourceDoc})
		}
	}
}

var flowSplitRe = regexp.MustCompile(`→|->`)

// flowPrefixRe strips lead-ins like 工艺流程： from flow lines.
var flowPrefixRe = regexp.MustCompile(`^.{0,12}(流程|工序)[:：]\s*`)

// Flow extracts a process chain from an arrow-separated flow line. Each
// step becomes a process entity; equipment terms spotted inside a step
// become equipment entities linked requires_equipment.
func (x *RuleExtractor) Flow(line string) {
	line = flowPrefixRe.ReplaceAllString(strings.TrimSpace(line), "")
	steps := flowSplitRe.Split(line, -1)
	if len(steps) < 2 {
		return
	}
	for _, step := range steps {
		step = strings.TrimSpace(step)
		if step == "" {
			continue
		}
		x.addEntity(Entity{Type: TypeProcess, Name: step, Domain: x.domain,
			Source: SourceRule, Confidence: flowConfidence})
		for _, eq := range spotEquipment(step) {
			x.addEntity(Entity{Type: TypeEquipment, Name: eq, Domain: x.domain,
				Source: SourceRule, Confidence: equipmentConfidence})
			x.addRelation(Relation{SourceID: step, TargetID: eq,
				Type: RelRequiresEquipment, Confidence: equipmentConfidence,
				Evidence: clipEvidence(step), SourceDoc: x.sourceDoc})
		}
	}
}

// Rows feeds spreadsheet rows through the table dispatcher. The first
// non-empty row is taken as the header.
func (x *RuleExtractor) Rows(rows [][]string) {
	for i, row := range rows {
		if rowEmpty(row) {
			continue
		}
		x.Table(row, rows[i+1:])
		return
	}
}

// equipmentTerms is the curated site-equipment vocabulary used for
// keyword spotting in flow steps. A closed list avoids absorbing verb
// prefixes the way an open pattern would.
var equipmentTerms = []string{
	"挖掘机", "推土机", "压路机", "搅拌机", "切割机", "弯曲机", "电焊机",
	"卷扬机", "起重机", "混凝土泵", "潜水泵", "振捣器", "发电机",
	"经纬仪", "全站仪", "水准仪", "塔吊", "吊车", "脚手架", "模板",
	"葫芦", "滑车",
}

// spotEquipment finds equipment mentions in a step description, in
// vocabulary order.
func spotEquipment(step string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, term := range equipmentTerms {
		if strings.Contains(step, term) && !seen[term] {
			seen[term] = true
			out = append(out, term)
		}
	}
	return out
}

// clauseSplitRe splits compound cells into individual clauses.
var clauseSplitRe = regexp.MustCompile(`[;；、]|\n`)

func splitClauses(cell string) []string {
	var out []string
	for _, c := range clauseSplitRe.Split(cell, -1) {
		c = strings.TrimSpace(strings.TrimRight(strings.TrimSpace(c), "。."))
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

func cellAt(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func rowEmpty(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func (x *RuleExtractor) addEntity(e Entity) {
	x.entities = append(x.entities, e)
}

func (x *RuleExtractor) addRelation(r Relation) {
	x.relations = append(x.relations, r)
}

// Markdown table helpers.

func isTableRow(line string) bool {
	s := strings.TrimSpace(line)
	return strings.HasPrefix(s, "|") && strings.HasSuffix(s, "|") && len(s) > 2
}

var separatorCellRe = regexp.MustCompile(`^:?-{2,}:?$`)

func isTableSeparator(line string) bool {
	if !isTableRow(line) {
		return false
	}
	for _, cell := range splitTableRow(line) {
		if !separatorCellRe.MatchString(strings.ReplaceAll(cell, " ", "")) {
			return false
		}
	}
	return true
}

func splitTableRow(line string) []string {
	s := strings.TrimSpace(line)
	s = strings.TrimPrefix(s, "|")
	s = strings.TrimSuffix(s, "|")
	cells := strings.Split(s, "|")
	for i := range cells {
		cells[i] = strings.TrimSpace(cells[i])
	}
	return cells
}

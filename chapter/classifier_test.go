package chapter

import (
	"reflect"
	"testing"
)

func defaultClassifier(t *testing.T) *Classifier {
	t.Helper()
	table, err := Compile(DefaultRules())
	if err != nil {
		t.Fatalf("Compile(DefaultRules()) = %v", err)
	}
	return New(table)
}

func TestClassifyExact(t *testing.T) {
	c := defaultClassifier(t)

	tests := []struct {
		title string
		want  string
	}{
		{"一、编制依据", "Ch1"},
		{"工程概况", "Ch2"},
		{"三、施工组织机构及职责", "Ch3"},
		{"施工安排与进度计划", "Ch4"},
		{"五、施工准备", "Ch5"},
		{"六、施工方法及工艺要求", "Ch6"},
		{"七、质量管理与控制措施", "Ch7"},
		{"八、安全文明施工管理", "Ch8"},
		{"九、应急预案与处置措施", "Ch9"},
		{"十、绿色施工与环境保护", "Ch10"},
	}
	for _, tt := range tests {
		r := c.Classify(tt.title, 1, nil)
		if r.ChapterID != tt.want {
			t.Errorf("Classify(%q) chapter = %s, want %s (matched %q)", tt.title, r.ChapterID, tt.want, r.Matched)
		}
		if r.Tier != TierExact {
			t.Errorf("Classify(%q) tier = %s, want exact", tt.title, r.Tier)
		}
		if r.Confidence != 1.0 {
			t.Errorf("Classify(%q) confidence = %v, want 1.0", tt.title, r.Confidence)
		}
	}
}

func TestClassifyVariant(t *testing.T) {
	c := defaultClassifier(t)

	tests := []struct {
		title string
		want  string
	}{
		{"安全检查", "Ch8"},
		{"文明施工要求", "Ch8"},
		{"应急响应流程", "Ch9"},
		{"环保措施", "Ch10"},
		{"项目组织情况", "Ch3"},
	}
	for _, tt := range tests {
		r := c.Classify(tt.title, 2, nil)
		if r.ChapterID != tt.want {
			t.Errorf("Classify(%q) chapter = %s, want %s", tt.title, r.ChapterID, tt.want)
		}
		if r.Tier != TierVariant {
			t.Errorf("Classify(%q) tier = %s, want variant", tt.title, r.Tier)
		}
		if r.Confidence != 0.8 {
			t.Errorf("Classify(%q) confidence = %v, want 0.8", tt.title, r.Confidence)
		}
	}
}

func TestClassifyNumberingStripped(t *testing.T) {
	c := defaultClassifier(t)

	// The same core title under different numbering styles resolves to
	// the same chapter.
	for _, title := range []string{
		"第七章 质量管理",
		"7 质量管理",
		"7.1 质量管理",
		"（1）质量管理",
		"①质量管理",
	} {
		r := c.Classify(title, 1, nil)
		if r.ChapterID != "Ch7" {
			t.Errorf("Classify(%q) chapter = %s, want Ch7", title, r.ChapterID)
		}
	}
}

func TestClassifyGlobalExclusion(t *testing.T) {
	c := defaultClassifier(t)

	for _, title := range []string{
		"广东电网能源发展有限公司",
		"目录",
		"审批页",
		"编制人：张三",
	} {
		r := c.Classify(title, 1, nil)
		if r.ChapterID != Excluded {
			t.Errorf("Classify(%q) chapter = %s, want excluded", title, r.ChapterID)
		}
		if r.Confidence != 0 {
			t.Errorf("Classify(%q) confidence = %v, want 0", title, r.Confidence)
		}
		if r.Mapped() {
			t.Errorf("Classify(%q).Mapped() = true, want false", title)
		}
	}
}

func TestClassifyChapterExclusion(t *testing.T) {
	c := defaultClassifier(t)

	// "应急物资准备" must not land in Ch5 despite the 准备 variants there.
	r := c.Classify("应急物资准备", 2, nil)
	if r.ChapterID != "Ch9" {
		t.Errorf("Classify(应急物资准备) chapter = %s, want Ch9 (matched %q)", r.ChapterID, r.Matched)
	}
}

func TestClassifyLongestKeywordWins(t *testing.T) {
	c := defaultClassifier(t)

	// Contains both 质量管理 (Ch7) and 组织机构; the longer Ch3 keyword
	// 施工组织机构 is absent, so Ch7 wins.
	r := c.Classify("7.1 质量管理组织机构", 2, nil)
	if r.ChapterID != "Ch7" {
		t.Errorf("chapter = %s, want Ch7 (matched %q)", r.ChapterID, r.Matched)
	}

	// 安全文明施工 (6 runes) beats 安全生产 style shorter variants.
	r = c.Classify("安全文明施工管理要求", 1, nil)
	if r.ChapterID != "Ch8" || r.Matched != "安全文明施工" {
		t.Errorf("chapter = %s matched %q, want Ch8 via 安全文明施工", r.ChapterID, r.Matched)
	}
}

func TestClassifyInheritance(t *testing.T) {
	c := defaultClassifier(t)

	headings := []Heading{
		{Title: "六、施工方法", Level: 1},
		{Title: "6.1 基础施工", Level: 2},
		{Title: "6.2 工艺流程", Level: 2},
	}
	results := c.ClassifyDocument(headings)

	if results[0].ChapterID != "Ch6" || results[0].Tier != TierExact {
		t.Fatalf("parent = %s/%s, want Ch6/exact", results[0].ChapterID, results[0].Tier)
	}
	// 6.1 matches a Ch6 variant directly.
	if results[1].ChapterID != "Ch6" {
		t.Errorf("6.1 chapter = %s, want Ch6", results[1].ChapterID)
	}
	// 6.2 has no direct match and inherits the parent's chapter and
	// confidence unchanged.
	if results[2].ChapterID != "Ch6" || results[2].Tier != TierInherited {
		t.Errorf("6.2 = %s/%s, want Ch6/inherited", results[2].ChapterID, results[2].Tier)
	}
	if results[2].Confidence != results[0].Confidence {
		t.Errorf("inherited confidence = %v, want %v", results[2].Confidence, results[0].Confidence)
	}
}

func TestClassifyInheritanceNotAcrossSiblings(t *testing.T) {
	c := defaultClassifier(t)

	// A same-level heading does not inherit from its sibling.
	headings := []Heading{
		{Title: "六、施工方法", Level: 1},
		{Title: "完全无关的标题文字", Level: 1},
	}
	results := c.ClassifyDocument(headings)
	if results[1].ChapterID != Unmapped {
		t.Errorf("sibling chapter = %s, want unmapped", results[1].ChapterID)
	}
}

func TestClassifyExcludedDoesNotBreakContext(t *testing.T) {
	c := defaultClassifier(t)

	headings := []Heading{
		{Title: "八、安全文明施工管理", Level: 1},
		{Title: "广东电网能源发展有限公司", Level: 2},
		{Title: "8.2 现场布置要点", Level: 2},
	}
	results := c.ClassifyDocument(headings)
	if results[1].ChapterID != Excluded {
		t.Fatalf("excluded heading = %s", results[1].ChapterID)
	}
	if results[2].ChapterID != "Ch8" || results[2].Tier != TierInherited {
		t.Errorf("after exclusion = %s/%s, want Ch8/inherited", results[2].ChapterID, results[2].Tier)
	}
}

func TestClassifyDeterministic(t *testing.T) {
	c := defaultClassifier(t)

	headings := []Heading{
		{Title: "一、编制依据", Level: 1},
		{Title: "二、工程概况", Level: 1},
		{Title: "2.1 工程简介", Level: 2},
		{Title: "六、施工方法", Level: 1},
		{Title: "6.2 工艺流程", Level: 2},
		{Title: "目录", Level: 1},
	}
	first := c.ClassifyDocument(headings)
	for i := 0; i < 10; i++ {
		if got := c.ClassifyDocument(headings); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d diverged from first run", i)
		}
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name string
		rt   RuleTable
	}{
		{"empty table", RuleTable{}},
		{"duplicate id", RuleTable{Chapters: []ChapterRule{
			{ID: "Ch1", StandardName: "a", Rules: []Rule{{Tier: TierExact, Keywords: []string{"x"}}}},
			{ID: "Ch1", StandardName: "b", Rules: []Rule{{Tier: TierExact, Keywords: []string{"y"}}}},
		}}},
		{"unknown tier", RuleTable{Chapters: []ChapterRule{
			{ID: "Ch1", StandardName: "a", Rules: []Rule{{Tier: "fuzzy", Keywords: []string{"x"}}}},
		}}},
		{"bad pattern", RuleTable{Chapters: []ChapterRule{
			{ID: "Ch1", StandardName: "a", Rules: []Rule{{Tier: TierRegex, Patterns: []string{"("}}}},
		}}},
		{"bad global exclusion", RuleTable{
			Chapters:         []ChapterRule{{ID: "Ch1", StandardName: "a"}},
			GlobalExclusions: []string{"["},
		}},
	}
	for _, tt := range tests {
		if _, err := Compile(tt.rt); err == nil {
			t.Errorf("%s: Compile() = nil error, want error", tt.name)
		}
	}
}

func TestParseRulesYAML(t *testing.T) {
	data := []byte(`
chapters:
  - id: Ch1
    standard_name: 一、编制依据
    required: true
    rules:
      - tier: exact
        keywords: [编制依据]
global_exclusions:
  - 有限公司
`)
	table, err := ParseRules(data)
	if err != nil {
		t.Fatalf("ParseRules() = %v", err)
	}
	r := New(table).Classify("编制依据", 1, nil)
	if r.ChapterID != "Ch1" || r.Tier != TierExact {
		t.Errorf("got %s/%s, want Ch1/exact", r.ChapterID, r.Tier)
	}
}

func TestCoverage(t *testing.T) {
	c := defaultClassifier(t)
	results := c.ClassifyDocument([]Heading{
		{Title: "一、编制依据", Level: 1},
		{Title: "二、工程概况", Level: 1},
		{Title: "目录", Level: 1},
		{Title: "完全无关的标题文字", Level: 1},
	})
	rep := Coverage(results)
	if rep.Total != 4 || rep.Mapped != 2 || rep.ExcludedCount != 1 || rep.UnmappedCount != 1 {
		t.Fatalf("coverage = %+v", rep)
	}
	if rep.CoverageRate != 0.75 {
		t.Errorf("coverage rate = %v, want 0.75", rep.CoverageRate)
	}
	if rep.ByChapter["Ch1"] != 1 || rep.ByChapter["Ch2"] != 1 {
		t.Errorf("chapter distribution = %v", rep.ByChapter)
	}
}

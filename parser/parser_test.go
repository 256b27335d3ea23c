package parser

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const planMarkdown = `项目基本信息略。

# 一、编制依据

依据国家现行规范编制。

# 六、施工方法

## 6.1 基坑开挖

采用机械开挖，人工清底。

## 6.2 危险源辨识

| 工序 | 危险源 | 控制措施 |
| --- | --- | --- |
| 基坑开挖 | 土方坍塌 | 放坡开挖 |
`

func TestMarkdownSplit(t *testing.T) {
	sections := splitMarkdown(planMarkdown)
	if len(sections) != 5 {
		t.Fatalf("len(sections) = %d, want 5", len(sections))
	}

	pre := sections[0]
	if pre.Heading != "" || pre.Type != "paragraph" {
		t.Errorf("preamble = %+v", pre)
	}
	if sections[1].Heading != "一、编制依据" || sections[1].Level != 1 {
		t.Errorf("section 1 = %+v", sections[1])
	}
	if sections[3].Heading != "6.1 基坑开挖" || sections[3].Level != 2 {
		t.Errorf("section 3 = %+v", sections[3])
	}
	if sections[4].Type != "table" {
		t.Errorf("hazard table section type = %q", sections[4].Type)
	}
}

func TestMarkdownEmptyHeadingSkipped(t *testing.T) {
	sections := splitMarkdown("###\n正文")
	if len(sections) != 1 || sections[0].Heading != "" {
		t.Fatalf("sections = %+v", sections)
	}
	if sections[0].Content != "###\n正文" {
		t.Errorf("content = %q", sections[0].Content)
	}
}

func TestAtxHeading(t *testing.T) {
	tests := []struct {
		line      string
		wantTitle string
		wantLevel int
		wantOK    bool
	}{
		{"# 施工方法", "施工方法", 1, true},
		{"### 6.1 基坑开挖", "6.1 基坑开挖", 3, true},
		{"  ## 缩进标题", "缩进标题", 2, true},
		{"####### 七级", "", 0, false},
		{"#无空格", "", 0, false},
		{"正文", "", 0, false},
	}
	for _, tt := range tests {
		title, level, ok := atxHeading(tt.line)
		if title != tt.wantTitle || level != tt.wantLevel || ok != tt.wantOK {
			t.Errorf("atxHeading(%q) = (%q, %d, %v), want (%q, %d, %v)",
				tt.line, title, level, ok, tt.wantTitle, tt.wantLevel, tt.wantOK)
		}
	}
}

func TestIsLikelyHeading(t *testing.T) {
	headings := []string{
		"第六章 施工方法",
		"一、编制依据",
		"6.1 基坑开挖",
		"（一）施工准备",
		"①测量放线",
	}
	for _, h := range headings {
		if !isLikelyHeading(h) {
			t.Errorf("isLikelyHeading(%q) = false", h)
		}
	}

	body := []string{
		"开挖前应进行测量放线并复核基底标高。",
		"1234567",
		"6.1条规定的放坡系数适用于Ⅱ类土，开挖深度超过五米时应另行编制专项方案并组织专家论证。",
	}
	for _, b := range body {
		if isLikelyHeading(b) {
			t.Errorf("isLikelyHeading(%q) = true", b)
		}
	}
}

func TestHeadingLevel(t *testing.T) {
	tests := []struct {
		heading string
		want    int
	}{
		{"第六章 施工方法", 1},
		{"一、编制依据", 1},
		{"6.1 基坑开挖", 2},
		{"6.1.2 垫层浇筑", 3},
		{"（一）施工准备", 3},
		{"①测量放线", 4},
	}
	for _, tt := range tests {
		if got := headingLevel(tt.heading); got != tt.want {
			t.Errorf("headingLevel(%q) = %d, want %d", tt.heading, got, tt.want)
		}
	}
}

func TestRegistryRouting(t *testing.T) {
	r := NewRegistry()
	for _, format := range []string{"md", "txt", "pdf", "xlsx"} {
		if _, err := r.Get(format); err != nil {
			t.Errorf("Get(%q) error = %v", format, err)
		}
	}

	_, err := r.Get("docx")
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Get(docx) error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestParseFileMarkdown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.md")
	if err := os.WriteFile(path, []byte(planMarkdown), 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewRegistry()
	result, err := r.ParseFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ParseFile() error = %v", err)
	}
	if result.Format != "md" {
		t.Errorf("Format = %q", result.Format)
	}

	headings := result.Headings()
	if len(headings) != 4 {
		t.Fatalf("len(Headings()) = %d, want 4", len(headings))
	}
	if headings[0].Title != "一、编制依据" || headings[0].Level != 1 {
		t.Errorf("headings[0] = %+v", headings[0])
	}
}

func TestParseFileUnsupported(t *testing.T) {
	r := NewRegistry()
	_, err := r.ParseFile(context.Background(), "plan.docx")
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("error = %v, want ErrUnsupportedFormat", err)
	}
}

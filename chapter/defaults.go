package chapter

// DefaultRules returns the built-in mapping rule table for construction
// method statements. It covers the ten standard chapters plus the title
// variants observed across the source corpus; site deployments can
// override it with LoadRules.
func DefaultRules() RuleTable {
	return RuleTable{
		Chapters: []ChapterRule{
			{
				ID: "Ch1", StandardName: "一、编制依据", Required: true,
				Rules: []Rule{
					{Tier: TierExact, Keywords: []string{"编制依据"}},
					{Tier: TierVariant, Keywords: []string{"编制说明", "编制目的", "编制原则", "编写依据"}},
					{Tier: TierRegex, Patterns: []string{`^(第一章|一、)`}},
				},
			},
			{
				ID: "Ch2", StandardName: "二、工程概况", Required: true,
				Rules: []Rule{
					{Tier: TierExact, Keywords: []string{"工程概况"}},
					{Tier: TierVariant, Keywords: []string{"工程概述", "工程简介", "项目概况", "工程特点"}},
					{Tier: TierRegex, Patterns: []string{`^(第二章|二、)`}},
				},
			},
			{
				ID: "Ch3", StandardName: "三、施工组织机构及职责", Required: true,
				Rules: []Rule{
					{Tier: TierExact, Keywords: []string{"施工组织机构", "组织机构及职责"}},
					{Tier: TierVariant, Keywords: []string{"项目组织", "管理组织", "岗位职责", "管理人员"}},
					{Tier: TierRegex, Patterns: []string{`^(第三章|三、)`}},
				},
			},
			{
				ID: "Ch4", StandardName: "四、施工安排与进度计划", Required: true,
				Rules: []Rule{
					{Tier: TierExact, Keywords: []string{"施工安排", "进度计划"}},
					{Tier: TierVariant, Keywords: []string{"施工计划", "施工工期", "工期规划", "工期计划", "施工进度"}},
					{Tier: TierRegex, Patterns: []string{`^(第四章|四、)`}},
				},
			},
			{
				ID: "Ch5", StandardName: "五、施工准备", Required: true,
				Rules: []Rule{
					{Tier: TierExact, Keywords: []string{"施工准备"}},
					{Tier: TierVariant, Keywords: []string{"准备工作", "资源配置", "技术准备", "人力资源", "物资准备"}},
					{Tier: TierRegex, Patterns: []string{`^(第五章|五、)`}},
				},
				// Emergency supply preparation belongs to Ch9.
				Exclusions: []string{"应急物资"},
			},
			{
				ID: "Ch6", StandardName: "六、施工方法及工艺要求", Required: true,
				Rules: []Rule{
					{Tier: TierExact, Keywords: []string{"施工方法"}},
					{Tier: TierVariant, Keywords: []string{
						"施工技术", "主要工序", "施工方案概述", "施工工艺技术",
						"工艺要求", "基础施工", "安装施工",
					}},
					{Tier: TierRegex, Patterns: []string{`^(第六章|六、)`}},
				},
				Exclusions: []string{"安全管理", "质量管理"},
			},
			{
				ID: "Ch7", StandardName: "七、质量管理与控制措施", Required: true,
				Rules: []Rule{
					{Tier: TierExact, Keywords: []string{"质量管理", "质量控制"}},
					{Tier: TierVariant, Keywords: []string{
						"质量工艺", "质量保证", "质量检验", "质量通病",
						"成品保护", "验收标准", "质量目标",
					}},
					{Tier: TierRegex, Patterns: []string{`^(第七章|七、)`}},
				},
			},
			{
				ID: "Ch8", StandardName: "八、安全文明施工管理", Required: true,
				Rules: []Rule{
					{Tier: TierExact, Keywords: []string{"安全管理", "安全文明施工"}},
					{Tier: TierVariant, Keywords: []string{
						"安全文明", "文明施工", "危险源", "安健环", "安全风险",
						"安全检查", "监测监控", "安全生产", "安全措施",
					}},
					{Tier: TierRegex, Patterns: []string{`^(第八章|八、)`}},
				},
			},
			{
				ID: "Ch9", StandardName: "九、应急预案与处置措施", Required: true,
				Rules: []Rule{
					{Tier: TierExact, Keywords: []string{"应急预案"}},
					{Tier: TierVariant, Keywords: []string{
						"应急措施", "应急响应", "应急救援", "应急物资",
						"事故处置", "应急处置",
					}},
					{Tier: TierRegex, Patterns: []string{`^(第九章|九、)`, `应急救援工作程序`}},
				},
			},
			{
				ID: "Ch10", StandardName: "十、绿色施工与环境保护", Required: true,
				Rules: []Rule{
					{Tier: TierExact, Keywords: []string{"绿色施工", "环境保护"}},
					{Tier: TierVariant, Keywords: []string{
						"环保措施", "水土保护", "环境因素", "四节一环保", "节能减排",
					}},
					{Tier: TierRegex, Patterns: []string{`^(第十章|十、)`}},
				},
			},
		},
		GlobalExclusions: []string{
			// Organization names on cover pages and approval sheets.
			`(有限公司|电网公司|集团公司|建设公司|工程局)`,
			// Cover / front-matter artifacts.
			`^(封面|目录|扉页|附录|附件)`,
			// Approval and signature blocks.
			`^(审批|会签|签发|批准页)`,
			`^(编制人|审核人|批准人)[:：]?`,
			`(工程|项目)名称[:：]`,
		},
	}
}

// DefaultTable compiles DefaultRules. The built-in table is maintained
// alongside its tests; a compile failure here is a programming error.
func DefaultTable() *Table {
	t, err := Compile(DefaultRules())
	if err != nil {
		panic("chapter: built-in rule table failed to compile: " + err.Error())
	}
	return t
}

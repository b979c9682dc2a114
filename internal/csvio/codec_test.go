package csvio

import (
	"reflect"
	"strings"
	"testing"

	"trialdex/internal/trial"
)

func TestParse_EnglishHeaders(t *testing.T) {
	input := strings.Join([]string{
		"department,pi,title,disease,tags,criteria,contact",
		"Oncology,Dr. Wang,NSCLC Trial,肺癌,EGFR; TKI,ECOG 0-1,010-1234",
	}, "\n")

	got, err := Parse(input)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}

	want := trial.Trial{
		Department: "Oncology",
		PI:         "Dr. Wang",
		Title:      "NSCLC Trial",
		Disease:    "肺癌",
		Tags:       []string{"EGFR", "TKI"},
		Criteria:   "ECOG 0-1",
		Contact:    "010-1234",
	}
	if !reflect.DeepEqual(got[0], want) {
		t.Errorf("got %+v, want %+v", got[0], want)
	}
}

func TestParse_ChineseHeaders(t *testing.T) {
	input := strings.Join([]string{
		"科室,研究者(PI),项目标题,适应症,标签,详细标准,联系方式",
		"肿瘤科,王医生,非小细胞肺癌一线治疗,肺癌,EGFR;奥希替尼,入组标准见附件,门诊3楼",
	}, "\n")

	got, err := Parse(input)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].Department != "肿瘤科" {
		t.Errorf("Department = %q", got[0].Department)
	}
	if got[0].PI != "王医生" {
		t.Errorf("PI = %q", got[0].PI)
	}
	if !reflect.DeepEqual(got[0].Tags, []string{"EGFR", "奥希替尼"}) {
		t.Errorf("Tags = %v", got[0].Tags)
	}
}

func TestParse_QuotedFieldWithComma(t *testing.T) {
	input := strings.Join([]string{
		"disease,pi,title",
		`"Lung, Advanced",Dr. Li,Phase I`,
	}, "\n")

	got, err := Parse(input)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].Disease != "Lung, Advanced" {
		t.Errorf("Disease = %q, want %q", got[0].Disease, "Lung, Advanced")
	}
	if got[0].PI != "Dr. Li" {
		t.Errorf("PI = %q, want %q", got[0].PI, "Dr. Li")
	}
}

func TestParse_DoubledQuoteDecodesToLiteral(t *testing.T) {
	input := "title,pi\n\"the \"\"STAR\"\" study\",Wang"

	got, err := Parse(input)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got[0].Title != `the "STAR" study` {
		t.Errorf("Title = %q", got[0].Title)
	}
}

func TestParse_DropsRowsWithoutIdentity(t *testing.T) {
	input := strings.Join([]string{
		"department,pi,title,disease",
		"Oncology,,,",        // no pi/title/disease: dropped
		"Oncology,Wang,,",    // pi present: kept
		"",                   // blank line: skipped
		",,Trial B,",         // title present: kept
	}, "\n")

	got, err := Parse(input)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].PI != "Wang" || got[1].Title != "Trial B" {
		t.Errorf("unexpected rows: %+v", got)
	}
}

func TestParse_MissingTrailingColumns(t *testing.T) {
	input := "title,disease,tags,contact\nTrial A,肺癌"

	got, err := Parse(input)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].Contact != "" {
		t.Errorf("Contact = %q, want empty", got[0].Contact)
	}
	if got[0].Tags == nil || len(got[0].Tags) != 0 {
		t.Errorf("Tags = %#v, want empty slice", got[0].Tags)
	}
}

func TestParse_UnrecognizedHeadersIgnored(t *testing.T) {
	input := "title,phase,disease\nTrial A,III,肺癌"

	got, err := Parse(input)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got[0].Title != "Trial A" || got[0].Disease != "肺癌" {
		t.Errorf("got %+v", got[0])
	}
}

func TestParse_EmptyInput(t *testing.T) {
	if _, err := Parse(""); err != ErrEmptyFile {
		t.Errorf("Parse(\"\") error = %v, want ErrEmptyFile", err)
	}
}

func TestSerialize_Format(t *testing.T) {
	out := Serialize([]trial.Trial{
		{ID: 7, Department: "Oncology", PI: "Wang", Title: `the "STAR" study`, Disease: "肺癌", Tags: []string{"EGFR", "TKI"}, Criteria: "c", Contact: "x"},
	})

	if !strings.HasPrefix(out, "\uFEFF") {
		t.Error("missing BOM prefix")
	}

	lines := strings.Split(strings.TrimPrefix(out, "\uFEFF"), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	wantHeader := `"ID","科室","研究者(PI)","项目标题","适应症","标签","详细标准","联系方式"`
	if lines[0] != wantHeader {
		t.Errorf("header = %s, want %s", lines[0], wantHeader)
	}
	wantRow := `"7","Oncology","Wang","the ""STAR"" study","肺癌","EGFR; TKI","c","x"`
	if lines[1] != wantRow {
		t.Errorf("row = %s, want %s", lines[1], wantRow)
	}
}

func TestRoundTrip(t *testing.T) {
	records := []trial.Trial{
		{ID: 1, Department: "肿瘤科", PI: "王医生", Title: "NSCLC 一线, 随机对照", Disease: "肺癌", Tags: []string{"EGFR", "奥希替尼"}, Criteria: `ECOG 0-1, "初治"`, Contact: "010-1234"},
		{ID: 2, Department: "", PI: "Li", Title: "HER2 study", Disease: "乳腺癌", Tags: []string{}, Criteria: "", Contact: ""},
	}

	parsed, err := Parse(Serialize(records))
	if err != nil {
		t.Fatalf("Parse(Serialize()) error = %v", err)
	}
	if len(parsed) != len(records) {
		t.Fatalf("len = %d, want %d", len(parsed), len(records))
	}

	for i, want := range records {
		want.ID = 0 // ID column is informational on re-import
		if !reflect.DeepEqual(parsed[i], want) {
			t.Errorf("record %d: got %+v, want %+v", i, parsed[i], want)
		}
	}
}

func TestSplitLine(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"plain", "a,b,c", []string{"a", "b", "c"}},
		{"quoted comma", `"a,b",c`, []string{"a,b", "c"}},
		{"doubled quote", `"a""b"`, []string{`a"b`}},
		{"empty fields", ",,", []string{"", "", ""}},
		{"trailing comma", "a,", []string{"a", ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := splitLine(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("splitLine(%q) = %#v, want %#v", tt.in, got, tt.want)
			}
		})
	}
}

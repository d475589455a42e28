package filter

import (
	"testing"
)

var benchText = Text{
	Header: "From: Carol <carol@example.com>\r\nTo: Alice <alice@example.com>\r\nSubject: Quarterly report\r\n",
	Body:   "The numbers for the quarter are attached. This message contains important content.",
}

func benchmarkDecide(b *testing.B, opts Options) {
	f, err := New(opts)
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.Decide(benchText)
	}
}

func BenchmarkFilter_Decide_NoFilters(b *testing.B) {
	benchmarkDecide(b, Options{})
}

func BenchmarkFilter_Decide_Include(b *testing.B) {
	benchmarkDecide(b, Options{IncludeHeader: []string{`From:.*@example\.com`}})
}

func BenchmarkFilter_Decide_Exclude(b *testing.B) {
	benchmarkDecide(b, Options{ExcludeHeader: []string{`From:.*@spam\.com`}})
}

func BenchmarkFilter_Decide_MultiplePatterns(b *testing.B) {
	benchmarkDecide(b, Options{IncludeHeader: []string{`From:.*@nowhere\.com`, `Subject:.*Test.*`, `To:.*alice.*`}})
}

func BenchmarkFilter_Decide_Body(b *testing.B) {
	benchmarkDecide(b, Options{IncludeBody: []string{"important.*content"}})
}

func BenchmarkTextOf(b *testing.B) {
	raw := []byte(benchText.Header + "\r\n\r\n" + benchText.Body)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		TextOf(raw, benchText.Body)
	}
}

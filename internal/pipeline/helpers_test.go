package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/stock-sentiment-crawler/internal/crawler"
)

var testNow = time.Date(2024, 10, 18, 9, 0, 0, 0, time.UTC)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type recordingPauser struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (p *recordingPauser) Pause(_ context.Context, d time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delays = append(p.delays, d)
	return nil
}

// pageFetcher serves canned bodies by URL; anything else fails like an exhausted retry loop.
type pageFetcher struct {
	mu        sync.Mutex
	pages     map[string]string
	downloads map[string][]byte
	visited   []string
}

func (f *pageFetcher) Get(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.visited = append(f.visited, url)
	body, ok := f.pages[url]
	if !ok {
		return nil, &crawler.NetworkError{URL: url, Attempts: 3, Err: errors.New("connection refused")}
	}
	return []byte(body), nil
}

func (f *pageFetcher) Download(_ context.Context, url string, maxBytes int64, _ time.Duration) ([]byte, error) {
	data, ok := f.downloads[url]
	if !ok {
		return nil, &crawler.NetworkError{URL: url, Attempts: 1, Err: errors.New("404")}
	}
	if int64(len(data)) > maxBytes {
		return nil, errors.New("too large")
	}
	return data, nil
}

func postsHTML(titles ...string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i, title := range titles {
		fmt.Fprintf(&b, `<div class="articleh"><span class="l1">%d</span><span class="l2">1</span><span class="l3"><a href="/n%d">%s</a></span><span class="l4"><a>作者</a></span><span class="l5">10-18 09:00</span></div>`, 100+i, i, title)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func newsHTML(titles ...string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i, title := range titles {
		fmt.Fprintf(&b, `<div class="news-item"><h3><a href="//finance.eastmoney.com/a/%d.html">%s</a></h3><span class="source">证券时报</span><span class="time">2024-10-18</span></div>`, i, title)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func numbered(prefix string, from, to int) []string {
	out := make([]string, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, fmt.Sprintf("%s%02d", prefix, i))
	}
	return out
}

type failingRecordStore struct {
	mu       sync.Mutex
	calls    int
	failOn   map[int]bool
	sizes    []int
	inserted int
}

func (s *failingRecordStore) InsertBatch(_ context.Context, _ crawler.RecordKind, records []crawler.SourceRecord) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.sizes = append(s.sizes, len(records))
	if s.failOn[s.calls] {
		return nil, errors.New("quota exceeded")
	}
	ids := make([]string, len(records))
	for i := range records {
		s.inserted++
		ids[i] = fmt.Sprintf("id-%d", s.inserted)
	}
	return ids, nil
}

func (s *failingRecordStore) UpdateScores(context.Context, crawler.RecordKind, []crawler.ScoreUpdate) error {
	return nil
}

func (s *failingRecordStore) Query(context.Context, crawler.RecordQuery) ([]crawler.SourceRecord, error) {
	return nil, errors.New("query unavailable")
}

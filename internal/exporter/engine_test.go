package exporter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang/mock/gomock"

	"github.com/takak2166/confluence2openwebui/internal/collector/mock_collector"
	"github.com/takak2166/confluence2openwebui/internal/enricher"
	"github.com/takak2166/confluence2openwebui/internal/filter"
	"github.com/takak2166/confluence2openwebui/internal/models"
	"github.com/takak2166/confluence2openwebui/internal/retry"
	"github.com/takak2166/confluence2openwebui/internal/syncerr"
	"github.com/takak2166/confluence2openwebui/internal/target"
	"github.com/takak2166/confluence2openwebui/internal/target/mock_target"
)

// fakeTarget keeps knowledge bases and files in memory
type fakeTarget struct {
	mu        sync.Mutex
	kbs       map[string]*models.KnowledgeBase
	files     map[string]*models.RemoteFile
	contents  map[string]string
	types     map[string]string
	kbFiles   map[string]map[string]bool
	attempts  map[string]int
	failFiles map[string]error // filename -> error returned on every upload
	failKBs   map[string]error // knowledge base name -> error returned on find
	onUpload  func(name string)
	onFind    func(name string)
	creates   int
	nextID    int

	// strictBatch rejects a whole batch when any file is already registered
	strictBatch bool
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{
		kbs:       make(map[string]*models.KnowledgeBase),
		files:     make(map[string]*models.RemoteFile),
		contents:  make(map[string]string),
		types:     make(map[string]string),
		kbFiles:   make(map[string]map[string]bool),
		attempts:  make(map[string]int),
		failFiles: make(map[string]error),
		failKBs:   make(map[string]error),
	}
}

func (f *fakeTarget) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s%d", prefix, f.nextID)
}

func (f *fakeTarget) TestConnection(context.Context) error { return nil }

func (f *fakeTarget) FindKnowledgeBaseByName(_ context.Context, name string) (*models.KnowledgeBase, error) {
	if f.onFind != nil {
		f.onFind(name)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failKBs[name]; err != nil {
		return nil, err
	}
	return f.kbs[name], nil
}

func (f *fakeTarget) CreateKnowledgeBase(_ context.Context, name, description string) (*models.KnowledgeBase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	kb := &models.KnowledgeBase{ID: f.id("kb"), Name: name, Description: description}
	f.kbs[name] = kb
	f.kbFiles[kb.ID] = make(map[string]bool)
	return kb, nil
}

func (f *fakeTarget) FindFileByName(_ context.Context, name string) (*models.RemoteFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.files[name], nil
}

func (f *fakeTarget) CreateOrUpdateFile(_ context.Context, name string, content []byte, mediaType string) (*models.RemoteFile, error) {
	if f.onUpload != nil {
		f.onUpload(name)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts[name]++
	if err := f.failFiles[name]; err != nil {
		return nil, err
	}

	file, ok := f.files[name]
	if !ok {
		file = &models.RemoteFile{ID: f.id("file"), Filename: name}
		f.files[name] = file
	}
	f.contents[name] = string(content)
	f.types[name] = mediaType
	return &models.RemoteFile{ID: file.ID, Filename: name, Updated: ok}, nil
}

func (f *fakeTarget) AddFileToKnowledgeBase(_ context.Context, kbID, fileID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.kbFiles[kbID][fileID] {
		return syncerr.New(syncerr.ErrDuplicate, "add file", nil)
	}
	f.kbFiles[kbID][fileID] = true
	return nil
}

func (f *fakeTarget) BatchAddFilesToKnowledgeBase(ctx context.Context, kbID string, fileIDs []string) error {
	if f.strictBatch {
		f.mu.Lock()
		for _, id := range fileIDs {
			if f.kbFiles[kbID][id] {
				f.mu.Unlock()
				return syncerr.New(syncerr.ErrDuplicate, "batch add files", fmt.Errorf("file %s", id))
			}
		}
		f.mu.Unlock()
	}

	var errs []error
	for _, id := range fileIDs {
		if err := f.AddFileToKnowledgeBase(ctx, kbID, id); err != nil && !errors.Is(err, syncerr.ErrDuplicate) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type stubSource struct {
	spaces  map[string]*models.Space
	provErr error
}

func (s *stubSource) Space(_ context.Context, key string) (*models.Space, error) {
	if sp, ok := s.spaces[key]; ok {
		return sp, nil
	}
	return nil, syncerr.New(syncerr.ErrNotFound, "get space", fmt.Errorf("space %s", key))
}

func (s *stubSource) Provenance(_ context.Context, item models.ContentItem) (models.Provenance, error) {
	if s.provErr != nil {
		return models.Provenance{}, s.provErr
	}
	return models.Provenance{SpaceKey: item.SpaceKey, ItemID: item.ID, AuthorName: "A"}, nil
}

type stubReader struct {
	contents map[string]string
}

func (r *stubReader) Read(_ context.Context, item models.ContentItem) ([]byte, error) {
	c, ok := r.contents[item.ID]
	if !ok {
		return nil, syncerr.New(syncerr.ErrContentRead, "read content", fmt.Errorf("no content for %s", item.ID))
	}
	return []byte(c), nil
}

type stubCollector struct {
	items []models.ContentItem
}

func (c *stubCollector) Collect(context.Context) ([]models.ContentItem, error) { return c.items, nil }
func (c *stubCollector) Containers(context.Context) ([]string, error) { return nil, nil }
func (c *stubCollector) Description() string { return "Test" }
func (c *stubCollector) Validate(context.Context) error { return nil }

func page(id, title, space string) models.ContentItem {
	return models.ContentItem{ID: id, Kind: models.KindPage, Title: title, SpaceKey: space}
}

func attachment(id, title, space, parent string, size int64) models.ContentItem {
	return models.ContentItem{ID: id, Kind: models.KindAttachment, Title: title, SpaceKey: space, ParentID: parent, Size: size}
}

// instantTimer fires as soon as it is started
type instantTimer struct{ c chan time.Time }

func (t *instantTimer) Start(time.Duration) { t.c <- time.Now() }
func (t *instantTimer) Stop()               {}
func (t *instantTimer) C() <-chan time.Time { return t.c }

func newInstantTimer() backoff.Timer {
	return &instantTimer{c: make(chan time.Time, 1)}
}

func buildEngine(t *testing.T, client target.Client, reader *stubReader, opts Options) *Engine {
	t.Helper()
	f, err := filter.New("md,pdf,txt", 10)
	if err != nil {
		t.Fatalf("Failed to create filter: %v", err)
	}
	policy := retry.NewPolicy(0.5, 3, time.Second, []int{429, 500, 502, 503, 504}, retry.WithTimer(newInstantTimer))
	src := &stubSource{spaces: map[string]*models.Space{
		"DOCS": {Key: "DOCS", URL: "https://wiki.example.com/spaces/DOCS"},
		"OPS":  {Key: "OPS", Name: "Operations"},
	}}
	e := New(client, src, reader, f, enricher.New(), policy, opts)
	e.newID = func() string { return "run-1" }
	return e
}

func TestRunCollectFailureSkipsTarget(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	// No expectations: any target call fails the test
	client := mock_target.NewMockClient(ctrl)
	c := mock_collector.NewMockCollector(ctrl)
	c.EXPECT().Description().Return("Page ID: 42").AnyTimes()
	c.EXPECT().Collect(gomock.Any()).Return(nil, syncerr.New(syncerr.ErrNotFound, "get page", errors.New("page 42")))

	e := buildEngine(t, client, &stubReader{}, Options{})
	_, err := e.Run(context.Background(), c)
	if !errors.Is(err, syncerr.ErrNotFound) {
		t.Fatalf("Expected not found error, got %v", err)
	}
}

func TestRunNoItems(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	client := mock_target.NewMockClient(ctrl)
	e := buildEngine(t, client, &stubReader{}, Options{})

	result, err := e.Run(context.Background(), &stubCollector{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(result.Summaries) != 0 {
		t.Errorf("Expected no summaries, got %d", len(result.Summaries))
	}
	if result.HasFailures() {
		t.Error("Expected an empty run to have no failures")
	}
}

func TestRunAuthFailureAborts(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	client := mock_target.NewMockClient(ctrl)
	client.EXPECT().TestConnection(gomock.Any()).Return(syncerr.FromStatus("list knowledge bases", 401, "bad key")).Times(1)

	e := buildEngine(t, client, &stubReader{}, Options{})
	result, err := e.Run(context.Background(), &stubCollector{items: []models.ContentItem{
		page("1", "Intro", "DOCS"),
		page("2", "Runbook", "OPS"),
		attachment("3", "tool.exe", "OPS", "2", 10),
	}})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !result.HasFailures() {
		t.Error("Expected result to report failures")
	}
	if len(result.Summaries) != 2 {
		t.Fatalf("Expected a summary per space, got %d", len(result.Summaries))
	}

	for _, s := range result.Summaries {
		if !s.Aborted {
			t.Errorf("%s: expected group to be aborted", s.SpaceKey)
		}
		if s.TotalSuccessful() != 0 || s.TotalCanceled() != 0 {
			t.Errorf("%s: expected nothing processed, got %+v %+v", s.SpaceKey, s.Pages, s.Attachments)
		}
		if len(s.Errors) != 1 || !strings.HasPrefix(s.Errors[0], "Connection test: ") {
			t.Errorf("%s: expected connection error, got %v", s.SpaceKey, s.Errors)
		}
		if !strings.Contains(s.Report(5), "Export aborted") {
			t.Errorf("%s: expected report to explain the abort, got %q", s.SpaceKey, s.Report(5))
		}
	}
	if ops := result.Summaries[1]; ops.Filtered != 1 {
		t.Errorf("Expected filtered attachment to be reported, got %d", ops.Filtered)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	fake := newFakeTarget()
	reader := &stubReader{contents: map[string]string{"1": "# Intro\n\nv1"}}
	c := &stubCollector{items: []models.ContentItem{page("1", "Intro", "DOCS")}}

	for run := 1; run <= 2; run++ {
		reader.contents["1"] = fmt.Sprintf("# Intro\n\nv%d", run)
		e := buildEngine(t, fake, reader, Options{})

		result, err := e.Run(context.Background(), c)
		if err != nil {
			t.Fatalf("Run %d: unexpected error: %v", run, err)
		}
		if result.HasFailures() {
			t.Fatalf("Run %d: unexpected failures: %+v", run, result.Summaries[0].Errors)
		}
		s := result.Summaries[0]
		if s.KnowledgeBaseName != "DOCS" {
			t.Errorf("Run %d: expected knowledge base DOCS, got %q", run, s.KnowledgeBaseName)
		}
		if s.Pages.Successful != 1 {
			t.Errorf("Run %d: expected 1 successful page, got %d", run, s.Pages.Successful)
		}
	}

	if len(fake.kbs) != 1 {
		t.Errorf("Expected 1 knowledge base, got %d", len(fake.kbs))
	}
	if len(fake.files) != 1 {
		t.Errorf("Expected 1 file, got %d", len(fake.files))
	}
	kb := fake.kbs["DOCS"]
	if len(fake.kbFiles[kb.ID]) != 1 {
		t.Errorf("Expected 1 file in knowledge base, got %d", len(fake.kbFiles[kb.ID]))
	}
	if !strings.Contains(kb.Description, "https://wiki.example.com/spaces/DOCS") {
		t.Errorf("Expected description to reference the space URL, got %q", kb.Description)
	}

	content := fake.contents["Intro.md"]
	if !strings.HasSuffix(content, "v2") {
		t.Errorf("Expected updated content, got %q", content)
	}
	if !strings.Contains(content, enricher.KeyAuthor+": A") {
		t.Errorf("Expected provenance in content, got %q", content)
	}
	if fake.types["Intro.md"] != "text/markdown" {
		t.Errorf("Expected text/markdown, got %q", fake.types["Intro.md"])
	}
}

func TestRunIsolatesItemFailures(t *testing.T) {
	fake := newFakeTarget()
	fake.failFiles["P3.md"] = syncerr.FromStatus("upload file", 500, "boom")

	reader := &stubReader{contents: map[string]string{}}
	var items []models.ContentItem
	for i := 1; i <= 5; i++ {
		id := fmt.Sprint(i)
		items = append(items, page(id, "P"+id, "DOCS"))
		reader.contents[id] = "body " + id
	}

	var progress []int
	e := buildEngine(t, fake, reader, Options{Progress: func(space string, done, total int) {
		progress = append(progress, done)
	}})
	result, err := e.Run(context.Background(), &stubCollector{items: items})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	s := result.Summaries[0]
	if s.Pages.Successful != 4 || s.Pages.Failed != 1 {
		t.Errorf("Expected 4 successes and 1 failure, got %+v", s.Pages)
	}
	if fake.attempts["P3.md"] != 4 {
		t.Errorf("Expected 4 attempts for P3.md, got %d", fake.attempts["P3.md"])
	}
	for _, name := range []string{"P4.md", "P5.md"} {
		if _, ok := fake.files[name]; !ok {
			t.Errorf("Expected %s to be uploaded", name)
		}
	}
	if s.Registered != 4 {
		t.Errorf("Expected 4 registered files, got %d", s.Registered)
	}
	if len(s.Errors) != 1 || !strings.HasPrefix(s.Errors[0], "Page: P3.md") {
		t.Errorf("Unexpected errors: %v", s.Errors)
	}
	if got := s.SuccessRate(); got != 80 {
		t.Errorf("Expected success rate 80, got %v", got)
	}
	if len(progress) != 5 || progress[4] != 5 {
		t.Errorf("Unexpected progress calls: %v", progress)
	}
}

func TestRunItemFailures(t *testing.T) {
	tests := []struct {
		name    string
		reader  *stubReader
		provErr error
		wantOK  int
		wantErr string
	}{
		{
			name:    "unreadable content",
			reader:  &stubReader{contents: map[string]string{}},
			wantErr: "content unreadable",
		},
		{
			name:    "missing provenance still uploads",
			reader:  &stubReader{contents: map[string]string{"1": "body"}},
			provErr: syncerr.FromStatus("get provenance", 500, "boom"),
			wantOK:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeTarget()
			e := buildEngine(t, fake, tt.reader, Options{})
			e.source.(*stubSource).provErr = tt.provErr

			result, err := e.Run(context.Background(), &stubCollector{items: []models.ContentItem{page("1", "Intro", "DOCS")}})
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			s := result.Summaries[0]
			if s.Pages.Successful != tt.wantOK {
				t.Errorf("Expected %d successes, got %+v", tt.wantOK, s.Pages)
			}
			if tt.wantErr != "" && (len(s.Errors) != 1 || !strings.Contains(s.Errors[0], tt.wantErr)) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, s.Errors)
			}
		})
	}
}

func TestRunFiltersAttachments(t *testing.T) {
	fake := newFakeTarget()
	reader := &stubReader{contents: map[string]string{
		"1":  "# Guide",
		"a1": "notes",
		"a2": "binary",
	}}
	items := []models.ContentItem{
		page("1", "Guide", "DOCS"),
		attachment("a1", "notes.MD", "DOCS", "1", 1024),
		attachment("a2", "photo.jpg", "DOCS", "1", 1024),
		attachment("a3", "manual.pdf", "DOCS", "1", 20*1024*1024),
	}

	e := buildEngine(t, fake, reader, Options{})
	result, err := e.Run(context.Background(), &stubCollector{items: items})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	s := result.Summaries[0]
	if s.Filtered != 2 {
		t.Errorf("Expected 2 filtered attachments, got %d: %v", s.Filtered, s.FilteredItems)
	}
	if s.Attachments.Total != 3 || s.Attachments.Successful != 1 {
		t.Errorf("Unexpected attachment counts: %+v", s.Attachments)
	}
	if s.Processed() != 2 || s.SuccessRate() != 100 {
		t.Errorf("Expected 2 processed at 100%%, got %d at %v", s.Processed(), s.SuccessRate())
	}
	if fake.types["notes.MD"] != "text/markdown" {
		t.Errorf("Expected text/markdown for notes.MD, got %q", fake.types["notes.MD"])
	}
	if !strings.Contains(fake.contents["notes.MD"], enricher.KeySpaceKey+": DOCS") {
		t.Errorf("Expected attachment provenance, got %q", fake.contents["notes.MD"])
	}
	if _, ok := fake.files["photo.jpg"]; ok {
		t.Error("Expected photo.jpg to be filtered")
	}
}

func TestRunKnowledgeBaseFailureIsolated(t *testing.T) {
	fake := newFakeTarget()
	fake.failKBs["Operations"] = syncerr.FromStatus("find knowledge base", 403, "forbidden")

	reader := &stubReader{contents: map[string]string{"1": "a", "2": "b"}}
	items := []models.ContentItem{page("1", "Intro", "DOCS"), page("2", "Runbook", "OPS")}

	e := buildEngine(t, fake, reader, Options{Concurrency: 2})
	result, err := e.Run(context.Background(), &stubCollector{items: items})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(result.Summaries) != 2 {
		t.Fatalf("Expected 2 summaries, got %d", len(result.Summaries))
	}

	docs, ops := result.Summaries[0], result.Summaries[1]
	if docs.Aborted || docs.Pages.Successful != 1 {
		t.Errorf("Expected DOCS to export, got %+v", docs)
	}
	if !ops.Aborted || ops.Pages.Successful != 0 {
		t.Errorf("Expected OPS to abort, got %+v", ops)
	}
	if ops.KnowledgeBaseName != "Operations" {
		t.Errorf("Expected space name as knowledge base name, got %q", ops.KnowledgeBaseName)
	}
	if !result.HasFailures() {
		t.Error("Expected result to report failures")
	}
}

func TestRunCanceled(t *testing.T) {
	fake := newFakeTarget()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fake.onUpload = func(name string) {
		if name == "P2.md" {
			cancel()
		}
	}

	reader := &stubReader{contents: map[string]string{"1": "a", "2": "b", "3": "c", "4": "d"}}
	var items []models.ContentItem
	for i := 1; i <= 4; i++ {
		items = append(items, page(fmt.Sprint(i), fmt.Sprintf("P%d", i), "DOCS"))
	}

	e := buildEngine(t, fake, reader, Options{})
	result, err := e.Run(ctx, &stubCollector{items: items})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !result.Canceled {
		t.Error("Expected run to be marked canceled")
	}

	s := result.Summaries[0]
	// The in-flight upload of P2 completes
	if s.Pages.Successful != 2 || s.Pages.Canceled != 2 || s.Pages.Failed != 0 {
		t.Errorf("Unexpected page counts: %+v", s.Pages)
	}
	if _, ok := fake.files["P3.md"]; ok {
		t.Error("Expected no upload after cancellation")
	}
	if s.Registered != 0 || s.RegistrationFails != 2 {
		t.Errorf("Expected registration to be skipped, got registered=%d failed=%d", s.Registered, s.RegistrationFails)
	}
}

func TestRunRegistration(t *testing.T) {
	duplicate := syncerr.New(syncerr.ErrDuplicate, "add file", nil)
	rejected := syncerr.FromStatus("add file", 422, "invalid")

	tests := []struct {
		name       string
		batch      bool
		setup      func(m *mock_target.MockClient)
		registered int
		duplicates int
		failures   int
	}{
		{
			name:  "batch",
			batch: true,
			setup: func(m *mock_target.MockClient) {
				m.EXPECT().BatchAddFilesToKnowledgeBase(gomock.Any(), "kb1", []string{"f1", "f2"}).Return(nil)
			},
			registered: 2,
		},
		{
			name: "individual",
			setup: func(m *mock_target.MockClient) {
				m.EXPECT().AddFileToKnowledgeBase(gomock.Any(), "kb1", "f1").Return(nil)
				m.EXPECT().AddFileToKnowledgeBase(gomock.Any(), "kb1", "f2").Return(duplicate)
			},
			registered: 1,
			duplicates: 1,
		},
		{
			name: "individual failure",
			setup: func(m *mock_target.MockClient) {
				m.EXPECT().AddFileToKnowledgeBase(gomock.Any(), "kb1", "f1").Return(rejected)
				m.EXPECT().AddFileToKnowledgeBase(gomock.Any(), "kb1", "f2").Return(nil)
			},
			registered: 1,
			failures:   1,
		},
		{
			name:  "batch with registered files",
			batch: true,
			setup: func(m *mock_target.MockClient) {
				gomock.InOrder(
					m.EXPECT().BatchAddFilesToKnowledgeBase(gomock.Any(), "kb1", []string{"f1", "f2"}).Return(duplicate),
					m.EXPECT().AddFileToKnowledgeBase(gomock.Any(), "kb1", "f1").Return(duplicate),
					m.EXPECT().AddFileToKnowledgeBase(gomock.Any(), "kb1", "f2").Return(nil),
				)
			},
			registered: 1,
			duplicates: 1,
		},
		{
			name:  "batch failure",
			batch: true,
			setup: func(m *mock_target.MockClient) {
				m.EXPECT().BatchAddFilesToKnowledgeBase(gomock.Any(), "kb1", []string{"f1", "f2"}).Return(rejected)
			},
			failures: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			m := mock_target.NewMockClient(ctrl)
			m.EXPECT().TestConnection(gomock.Any()).Return(nil)
			m.EXPECT().FindKnowledgeBaseByName(gomock.Any(), "DOCS").Return(&models.KnowledgeBase{ID: "kb1", Name: "DOCS"}, nil)
			gomock.InOrder(
				m.EXPECT().CreateOrUpdateFile(gomock.Any(), "A.md", gomock.Any(), "text/markdown").Return(&models.RemoteFile{ID: "f1"}, nil),
				m.EXPECT().CreateOrUpdateFile(gomock.Any(), "B.md", gomock.Any(), "text/markdown").Return(&models.RemoteFile{ID: "f2"}, nil),
			)
			tt.setup(m)

			reader := &stubReader{contents: map[string]string{"1": "a", "2": "b"}}
			e := buildEngine(t, m, reader, Options{BatchAdd: tt.batch})
			result, err := e.Run(context.Background(), &stubCollector{items: []models.ContentItem{
				page("1", "A", "DOCS"),
				page("2", "B", "DOCS"),
			}})
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}

			s := result.Summaries[0]
			if s.Pages.Successful != 2 {
				t.Errorf("Expected uploads to stay successful, got %+v", s.Pages)
			}
			if s.Registered != tt.registered || s.Duplicates != tt.duplicates || s.RegistrationFails != tt.failures {
				t.Errorf("Expected registered=%d duplicates=%d failures=%d, got %d %d %d",
					tt.registered, tt.duplicates, tt.failures, s.Registered, s.Duplicates, s.RegistrationFails)
			}
		})
	}
}

func TestRunBatchRegistersNewFilesAmongRegistered(t *testing.T) {
	fake := newFakeTarget()
	fake.strictBatch = true
	reader := &stubReader{contents: map[string]string{"1": "a", "2": "b", "3": "c"}}

	first := []models.ContentItem{page("1", "Intro", "DOCS"), page("2", "Second", "DOCS")}
	second := append(first, page("3", "Third", "DOCS"))

	e := buildEngine(t, fake, reader, Options{BatchAdd: true})
	if _, err := e.Run(context.Background(), &stubCollector{items: first}); err != nil {
		t.Fatalf("First run: unexpected error: %v", err)
	}

	result, err := e.Run(context.Background(), &stubCollector{items: second})
	if err != nil {
		t.Fatalf("Second run: unexpected error: %v", err)
	}
	s := result.Summaries[0]
	if s.Registered != 1 || s.Duplicates != 2 || s.RegistrationFails != 0 {
		t.Errorf("Expected registered=1 duplicates=2 failures=0, got %d %d %d", s.Registered, s.Duplicates, s.RegistrationFails)
	}

	kb := fake.kbs["DOCS"]
	third := fake.files["Third.md"]
	if third == nil || !fake.kbFiles[kb.ID][third.ID] {
		t.Error("Expected Third.md to be registered with the knowledge base")
	}
	if len(fake.kbFiles[kb.ID]) != 3 {
		t.Errorf("Expected 3 files in knowledge base, got %d", len(fake.kbFiles[kb.ID]))
	}
}

func TestRunSharedDisplayNameCreatesOneKnowledgeBase(t *testing.T) {
	fake := newFakeTarget()
	// Keep the first lookup in flight long enough for the second group to arrive
	fake.onFind = func(string) { time.Sleep(50 * time.Millisecond) }

	reader := &stubReader{contents: map[string]string{"1": "a", "2": "b"}}
	e := buildEngine(t, fake, reader, Options{Concurrency: 2})
	e.source = &stubSource{spaces: map[string]*models.Space{
		"ENG":  {Key: "ENG", Name: "Engineering"},
		"ENG2": {Key: "ENG2", Name: "Engineering"},
	}}

	result, err := e.Run(context.Background(), &stubCollector{items: []models.ContentItem{
		page("1", "Intro", "ENG"),
		page("2", "Setup", "ENG2"),
	}})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.HasFailures() {
		t.Fatalf("Unexpected failures: %+v", result.Summaries)
	}

	if fake.creates != 1 {
		t.Errorf("Expected 1 knowledge base to be created, got %d", fake.creates)
	}
	a, b := result.Summaries[0], result.Summaries[1]
	if a.KnowledgeBaseID == "" || a.KnowledgeBaseID != b.KnowledgeBaseID {
		t.Errorf("Expected both spaces to share a knowledge base, got %q and %q", a.KnowledgeBaseID, b.KnowledgeBaseID)
	}
	if len(fake.kbFiles[a.KnowledgeBaseID]) != 2 {
		t.Errorf("Expected 2 files in the shared knowledge base, got %d", len(fake.kbFiles[a.KnowledgeBaseID]))
	}
}

func TestRunSingleFileUsesIndividualAdd(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	m := mock_target.NewMockClient(ctrl)
	m.EXPECT().TestConnection(gomock.Any()).Return(nil)
	m.EXPECT().FindKnowledgeBaseByName(gomock.Any(), "DOCS").Return(nil, nil)
	m.EXPECT().CreateKnowledgeBase(gomock.Any(), "DOCS", gomock.Any()).Return(&models.KnowledgeBase{ID: "kb1", Name: "DOCS"}, nil)
	m.EXPECT().CreateOrUpdateFile(gomock.Any(), "A.md", gomock.Any(), "text/markdown").Return(&models.RemoteFile{ID: "f1"}, nil)
	m.EXPECT().AddFileToKnowledgeBase(gomock.Any(), "kb1", "f1").Return(nil)

	e := buildEngine(t, m, &stubReader{contents: map[string]string{"1": "a"}}, Options{BatchAdd: true})
	result, err := e.Run(context.Background(), &stubCollector{items: []models.ContentItem{page("1", "A", "DOCS")}})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Summaries[0].Registered != 1 {
		t.Errorf("Expected 1 registered file, got %d", result.Summaries[0].Registered)
	}
}

func TestNameRegistry(t *testing.T) {
	r := newNameRegistry()

	tests := []struct {
		item models.ContentItem
		want string
	}{
		{page("1", "Intro", "DOCS"), "Intro.md"},
		{page("1", "Intro", "DOCS"), "Intro.md"},
		{page("2", "intro", "OPS"), "intro (2).md"},
		{page("3", "a/b", "DOCS"), "a_b.md"},
		{attachment("4", "a_b.md", "DOCS", "3", 10), "a_b (4).md"},
		{attachment("5", "report.pdf", "DOCS", "3", 10), "report.pdf"},
	}

	for _, tt := range tests {
		if got := r.claim(tt.item); got != tt.want {
			t.Errorf("claim(%s %q) = %q, want %q", tt.item.ID, tt.item.Title, got, tt.want)
		}
	}
}

func TestPlanNamesAreStableAcrossRuns(t *testing.T) {
	e := buildEngine(t, newFakeTarget(), &stubReader{}, Options{})
	items := []models.ContentItem{
		page("1", "Notes", "DOCS"),
		page("2", "Notes", "OPS"),
		page("3", "notes", "DOCS"),
	}

	names := func() []string {
		var out []string
		for _, p := range e.plan(models.GroupBySpace(items)) {
			for _, item := range p.items {
				out = append(out, item.filename)
			}
		}
		return out
	}

	want := []string{"Notes.md", "notes (3).md", "Notes (2).md"}
	for run := 1; run <= 2; run++ {
		got := names()
		if strings.Join(got, "|") != strings.Join(want, "|") {
			t.Errorf("Run %d: expected %v, got %v", run, want, got)
		}
	}
}

package service

import (
	"context"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/mock"

	"github.com/edulive/session-knowledge/internal/daily"
	"github.com/edulive/session-knowledge/internal/model"
	"github.com/edulive/session-knowledge/internal/openai"
	"github.com/edulive/session-knowledge/internal/repository"
)

type mockSessionRepo struct {
	mock.Mock
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

func (m *mockSessionRepo) FindByRoomName(ctx context.Context, roomName string) (*model.Session, error) {
	args := m.Called(ctx, roomName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

func (m *mockSessionRepo) FindOverdueLive(ctx context.Context, cutoff time.Time) ([]model.Session, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Session), args.Error(1)
}

func (m *mockSessionRepo) MarkLive(ctx context.Context, id string, params model.MarkLiveParams) error {
	args := m.Called(ctx, id, params)
	return args.Error(0)
}

func (m *mockSessionRepo) MarkCompleted(ctx context.Context, id string, endedAt time.Time) error {
	args := m.Called(ctx, id, endedAt)
	return args.Error(0)
}

func (m *mockSessionRepo) MarkRecordingStored(ctx context.Context, id string, params model.RecordingStoredParams) error {
	args := m.Called(ctx, id, params)
	return args.Error(0)
}

func (m *mockSessionRepo) WithTx(tx *sqlx.Tx) repository.SessionRepository {
	return m
}

type mockAccessRepo struct {
	mock.Mock
}

func (m *mockAccessRepo) AccessLevel(ctx context.Context, userID, courseID string) (model.AccessLevel, error) {
	args := m.Called(ctx, userID, courseID)
	return args.Get(0).(model.AccessLevel), args.Error(1)
}

type mockRooms struct {
	mock.Mock
}

func (m *mockRooms) GetRoom(ctx context.Context, name string) (*daily.Room, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*daily.Room), args.Error(1)
}

func (m *mockRooms) DeleteRoom(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

func (m *mockRooms) CreateRoom(ctx context.Context, params daily.CreateRoomParams) (*daily.Room, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*daily.Room), args.Error(1)
}

func (m *mockRooms) StartRecording(ctx context.Context, roomName string) error {
	args := m.Called(ctx, roomName)
	return args.Error(0)
}

type mockRecordings struct {
	mock.Mock
}

func (m *mockRecordings) GetRecording(ctx context.Context, id string) (*daily.Recording, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*daily.Recording), args.Error(1)
}

func (m *mockRecordings) ListRecordings(ctx context.Context, roomName string) ([]daily.Recording, error) {
	args := m.Called(ctx, roomName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]daily.Recording), args.Error(1)
}

func (m *mockRecordings) GetAccessLink(ctx context.Context, recordingID string) (*daily.AccessLink, error) {
	args := m.Called(ctx, recordingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*daily.AccessLink), args.Error(1)
}

func (m *mockRecordings) Download(ctx context.Context, link string, maxBytes int64) ([]byte, string, error) {
	args := m.Called(ctx, link, maxBytes)
	if args.Get(0) == nil {
		return nil, args.String(1), args.Error(2)
	}
	return args.Get(0).([]byte), args.String(1), args.Error(2)
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Upload(ctx context.Context, key, contentType string, data []byte) error {
	args := m.Called(ctx, key, contentType, data)
	return args.Error(0)
}

func (m *mockStore) Download(ctx context.Context, key string) ([]byte, string, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.String(1), args.Error(2)
	}
	return args.Get(0).([]byte), args.String(1), args.Error(2)
}

func (m *mockStore) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	args := m.Called(ctx, key, ttl)
	return args.String(0), args.Error(1)
}

func (m *mockStore) ObjectURL(key string) string {
	return "https://storage.test/" + key
}

type mockTranscriber struct {
	mock.Mock
}

func (m *mockTranscriber) Transcribe(ctx context.Context, transcriptionModel, filename string, media []byte) (*model.TranscriptionResult, error) {
	args := m.Called(ctx, transcriptionModel, filename, media)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.TranscriptionResult), args.Error(1)
}

// fakeEmbedder returns a deterministic vector per input and records batches
// and the time left on each call's context.
type fakeEmbedder struct {
	mu        sync.Mutex
	batches   [][]string
	deadlines []time.Duration
	failOn    string
	err       error
}

func (f *fakeEmbedder) Embed(ctx context.Context, embeddingModel string, inputs []string) ([][]float32, error) {
	f.mu.Lock()
	f.batches = append(f.batches, append([]string(nil), inputs...))
	if deadline, ok := ctx.Deadline(); ok {
		f.deadlines = append(f.deadlines, time.Until(deadline))
	} else {
		f.deadlines = append(f.deadlines, 0)
	}
	f.mu.Unlock()

	out := make([][]float32, len(inputs))
	for i, in := range inputs {
		if f.failOn != "" && in == f.failOn {
			return nil, f.err
		}
		out[i] = []float32{float32(len(in)), 1}
	}
	return out, nil
}

type mockCompleter struct {
	mock.Mock
}

func (m *mockCompleter) Complete(ctx context.Context, req openai.CompletionRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

type scheduledJob struct {
	Job   model.Job
	Delay time.Duration
}

type fakeScheduler struct {
	mu   sync.Mutex
	jobs []scheduledJob
	err  error
}

func (f *fakeScheduler) Schedule(ctx context.Context, job model.Job, delay time.Duration) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, scheduledJob{Job: job, Delay: delay})
	return nil
}

type fakeLocker struct {
	held     map[string]bool
	released int
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: make(map[string]bool)}
}

func (f *fakeLocker) TryLock(ctx context.Context, sessionID string) (func(), bool, error) {
	if f.held[sessionID] {
		return nil, false, nil
	}
	f.held[sessionID] = true
	return func() {
		delete(f.held, sessionID)
		f.released++
	}, true, nil
}

// memoryIndex mimics IndexRepository.ReplaceIndex over an in-memory table.
type memoryIndex struct {
	transcripts map[string]model.Transcript
	chunks      map[string]map[int]model.TranscriptChunk
	err         error
}

func newMemoryIndex() *memoryIndex {
	return &memoryIndex{
		transcripts: make(map[string]model.Transcript),
		chunks:      make(map[string]map[int]model.TranscriptChunk),
	}
}

func (m *memoryIndex) ReplaceIndex(ctx context.Context, transcript model.Transcript, chunks []model.TranscriptChunk) error {
	if m.err != nil {
		return m.err
	}
	m.transcripts[transcript.SessionID] = transcript
	rows := m.chunks[transcript.SessionID]
	if rows == nil {
		rows = make(map[int]model.TranscriptChunk)
		m.chunks[transcript.SessionID] = rows
	}
	for _, c := range chunks {
		rows[c.ChunkIndex] = c
	}
	for idx := range rows {
		if idx >= len(chunks) {
			delete(rows, idx)
		}
	}
	return nil
}

type mockSearcher struct {
	mock.Mock
}

func (m *mockSearcher) Search(ctx context.Context, params model.ChunkSearchParams) ([]model.ScoredChunk, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ScoredChunk), args.Error(1)
}

func (m *mockSearcher) ModelsBySession(ctx context.Context, sessionID string) ([]string, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

type publishedEvent struct {
	SessionID string
	Type      string
	Payload   any
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (f *fakePublisher) PublishJSON(ctx context.Context, sessionID, eventType string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, publishedEvent{SessionID: sessionID, Type: eventType, Payload: payload})
	return nil
}

func (f *fakePublisher) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, e := range f.events {
		out[i] = e.Type
	}
	return out
}

func strPtr(s string) *string { return &s }

func teacher() *model.User {
	return &model.User{ID: "teacher-1", Role: model.UserRoleTeacher}
}

func learner() *model.User {
	return &model.User{ID: "learner-1", Role: model.UserRoleStudent}
}

func scheduledSession() *model.Session {
	return &model.Session{
		ID:         "s1",
		CourseID:   "c1",
		Title:      "Cell Biology",
		CourseName: "Biology 101",
		GradeLevel: strPtr("10"),
		Status:     model.SessionStatusScheduled,
	}
}

// boundedCtx matches a context that carries a deadline.
var boundedCtx = mock.MatchedBy(func(ctx context.Context) bool {
	_, ok := ctx.Deadline()
	return ok
})

package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edulive/session-knowledge/internal/daily"
	apperrors "github.com/edulive/session-knowledge/internal/errors"
	"github.com/edulive/session-knowledge/internal/model"
	"github.com/edulive/session-knowledge/internal/sse"
)

type pipelineFixture struct {
	repo        *mockSessionRepo
	recordings  *mockRecordings
	store       *mockStore
	transcriber *mockTranscriber
	embedder    *fakeEmbedder
	index       *memoryIndex
	locker      *fakeLocker
	scheduler   *fakeScheduler
	events      *fakePublisher
	orch        *TranscriptionOrchestrator
}

func newPipelineFixture() *pipelineFixture {
	f := &pipelineFixture{
		repo:        new(mockSessionRepo),
		recordings:  new(mockRecordings),
		store:       new(mockStore),
		transcriber: new(mockTranscriber),
		embedder:    &fakeEmbedder{},
		index:       newMemoryIndex(),
		locker:      newFakeLocker(),
		scheduler:   &fakeScheduler{},
		events:      &fakePublisher{},
	}
	acquirer := NewRecordingAcquirer(f.recordings, f.store, f.repo, f.events, testMaxBytes)
	indexer := NewEmbeddingIndexer(f.embedder, "text-embedding-3-small", 16)
	f.orch = NewTranscriptionOrchestrator(f.repo, acquirer, f.transcriber, indexer, f.index, f.locker, f.scheduler, f.events,
		OrchestratorConfig{TranscriptionModel: "whisper-1", ChunkMaxChars: 1800, RetryDelay: time.Minute})
	return f
}

func (f *pipelineFixture) expectFinishedRecording(ctx context.Context, text string) {
	f.recordings.On("GetRecording", ctx, "rec_1").Return(&daily.Recording{ID: "rec_1", Status: "finished", Duration: 60}, nil)
	f.recordings.On("GetAccessLink", ctx, "rec_1").Return(&daily.AccessLink{DownloadLink: "https://dl/rec_1"}, nil)
	f.recordings.On("Download", mock.Anything, "https://dl/rec_1", int64(testMaxBytes)).Return([]byte("media"), "video/mp4", nil)
	f.store.On("Upload", boundedCtx, "s1/recording.mp4", "video/mp4", []byte("media")).Return(nil)
	f.repo.On("MarkRecordingStored", ctx, "s1", mock.Anything).Return(nil)
	f.transcriber.On("Transcribe", mock.Anything, "whisper-1", "recording.mp4", []byte("media")).Return(&model.TranscriptionResult{
		Text:     text,
		Language: "english",
		Segments: json.RawMessage(`[]`),
		Provider: "openai:whisper-1",
	}, nil)
}

func manySentences(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "Cells divide by mitosis."
	}
	return strings.Join(parts, " ")
}

func processJob() model.Job {
	return model.Job{ID: "j1", Type: model.JobTypeProcessRecording, SessionID: "s1", RecordingID: "rec_1", Attempt: 1}
}

func TestTranscriptionOrchestrator_Run(t *testing.T) {
	ctx := context.Background()

	t.Run("end to end indexes dense chunks", func(t *testing.T) {
		f := newPipelineFixture()
		f.repo.On("FindByID", ctx, "s1").Return(liveSession(), nil)
		f.expectFinishedRecording(ctx, manySentences(200))

		res, err := f.orch.Run(ctx, processJob())
		require.NoError(t, err)
		assert.Equal(t, RunIndexed, res.Status)
		assert.Equal(t, 3, res.ChunkCount)

		rows := f.index.chunks["s1"]
		require.Len(t, rows, 3)
		for i := 0; i < 3; i++ {
			assert.Equal(t, i, rows[i].ChunkIndex)
			assert.Equal(t, "text-embedding-3-small", rows[i].EmbeddingModel)
			assert.NotEmpty(t, rows[i].Content)
		}
		tr := f.index.transcripts["s1"]
		require.NotNil(t, tr.Language)
		assert.Equal(t, "english", *tr.Language)

		assert.Equal(t, []string{sse.EventRecordingStored, sse.EventTranscriptIndexed}, f.events.types())
		assert.Equal(t, 1, f.locker.released)
	})

	t.Run("rerun with shorter transcript drops stale chunks", func(t *testing.T) {
		f := newPipelineFixture()
		f.index.chunks["s1"] = map[int]model.TranscriptChunk{
			0: {ChunkIndex: 0}, 1: {ChunkIndex: 1}, 2: {ChunkIndex: 2}, 3: {ChunkIndex: 3},
		}
		f.repo.On("FindByID", ctx, "s1").Return(liveSession(), nil)
		f.expectFinishedRecording(ctx, "Short class. Nothing else.")

		res, err := f.orch.Run(ctx, processJob())
		require.NoError(t, err)
		assert.Equal(t, 1, res.ChunkCount)
		require.Len(t, f.index.chunks["s1"], 1)
		assert.Equal(t, "Short class. Nothing else.", f.index.chunks["s1"][0].Content)
	})

	t.Run("not ready on first attempt schedules exactly one retry", func(t *testing.T) {
		f := newPipelineFixture()
		f.repo.On("FindByID", ctx, "s1").Return(liveSession(), nil)
		f.recordings.On("GetRecording", ctx, "rec_1").Return(&daily.Recording{ID: "rec_1", Status: "in-progress"}, nil)

		res, err := f.orch.Run(ctx, processJob())
		require.NoError(t, err)
		assert.Equal(t, RunRetryScheduled, res.Status)

		require.Len(t, f.scheduler.jobs, 1)
		retry := f.scheduler.jobs[0]
		assert.Equal(t, 2, retry.Job.Attempt)
		assert.Equal(t, time.Minute, retry.Delay)
		assert.Equal(t, "rec_1", retry.Job.RecordingID)
		assert.NotEqual(t, "j1", retry.Job.ID)

		// the retry itself finds the recording still unfinished
		res, err = f.orch.Run(ctx, retry.Job)
		require.Error(t, err)
		assert.Nil(t, res)
		assert.True(t, apperrors.IsNotReady(err))
		assert.Len(t, f.scheduler.jobs, 1)
	})

	t.Run("transcription failure writes nothing", func(t *testing.T) {
		f := newPipelineFixture()
		f.repo.On("FindByID", ctx, "s1").Return(liveSession(), nil)
		f.recordings.On("GetRecording", ctx, "rec_1").Return(&daily.Recording{ID: "rec_1", Status: "finished"}, nil)
		f.recordings.On("GetAccessLink", ctx, "rec_1").Return(&daily.AccessLink{DownloadLink: "https://dl"}, nil)
		f.recordings.On("Download", mock.Anything, "https://dl", int64(testMaxBytes)).Return([]byte("m"), "video/mp4", nil)
		f.store.On("Upload", boundedCtx, "s1/recording.mp4", "video/mp4", []byte("m")).Return(nil)
		f.repo.On("MarkRecordingStored", ctx, "s1", mock.Anything).Return(nil)
		f.transcriber.On("Transcribe", mock.Anything, "whisper-1", "recording.mp4", []byte("m")).
			Return(nil, apperrors.Upstream("transcription", errors.New("500")))

		_, err := f.orch.Run(ctx, processJob())
		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.ErrCodeUpstream))
		assert.Empty(t, f.index.transcripts)
		assert.Empty(t, f.scheduler.jobs)
	})

	t.Run("embedding failure writes nothing", func(t *testing.T) {
		f := newPipelineFixture()
		f.embedder.failOn = "Cells divide by mitosis."
		f.embedder.err = apperrors.Upstream("embeddings", errors.New("429"))
		f.repo.On("FindByID", ctx, "s1").Return(liveSession(), nil)
		f.expectFinishedRecording(ctx, "Cells divide by mitosis.")

		_, err := f.orch.Run(ctx, processJob())
		require.Error(t, err)
		assert.Empty(t, f.index.transcripts)
		assert.Empty(t, f.index.chunks)
	})

	t.Run("concurrent run for same session conflicts", func(t *testing.T) {
		f := newPipelineFixture()
		f.locker.held["s1"] = true
		f.repo.On("FindByID", ctx, "s1").Return(liveSession(), nil)

		_, err := f.orch.Run(ctx, processJob())
		assert.True(t, apperrors.Is(err, apperrors.ErrCodeConflict))
		f.recordings.AssertNotCalled(t, "GetRecording", mock.Anything, mock.Anything)
	})

	t.Run("storage source reprocesses stored object", func(t *testing.T) {
		f := newPipelineFixture()
		s := liveSession()
		s.Status = model.SessionStatusCompleted
		s.RecordingObjectKey = strPtr("s1/recording.mp4")
		f.repo.On("FindByID", ctx, "s1").Return(s, nil)
		f.store.On("Download", mock.Anything, "s1/recording.mp4").Return([]byte("media"), "video/mp4", nil)
		f.transcriber.On("Transcribe", mock.Anything, "whisper-1", "recording.mp4", []byte("media")).
			Return(&model.TranscriptionResult{Text: "Recap. Done.", Provider: "openai:whisper-1"}, nil)

		job := processJob()
		job.RecordingID = ""
		job.Source = model.RecordingSourceStorage
		res, err := f.orch.Run(ctx, job)
		require.NoError(t, err)
		assert.Equal(t, 1, res.ChunkCount)
		f.recordings.AssertNotCalled(t, "GetRecording", mock.Anything, mock.Anything)
	})

	t.Run("unknown session", func(t *testing.T) {
		f := newPipelineFixture()
		f.repo.On("FindByID", ctx, "s1").Return(nil, nil)

		_, err := f.orch.Run(ctx, processJob())
		assert.True(t, apperrors.Is(err, apperrors.ErrCodeNotFound))
	})
}

func TestTranscriptionOrchestrator_ProcessIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture()
	text := manySentences(150)
	f.transcriber.On("Transcribe", mock.Anything, "whisper-1", "recording.mp4", []byte("m")).
		Return(&model.TranscriptionResult{Text: text, Provider: "openai:whisper-1"}, nil)

	media := &AcquiredRecording{ObjectKey: "s1/recording.mp4", Data: []byte("m")}

	first, err := f.orch.Process(ctx, media, liveSession())
	require.NoError(t, err)
	firstRows := map[int]string{}
	for k, v := range f.index.chunks["s1"] {
		firstRows[k] = v.Content
	}

	second, err := f.orch.Process(ctx, media, liveSession())
	require.NoError(t, err)
	assert.Equal(t, first.ChunkCount, second.ChunkCount)
	for k, v := range f.index.chunks["s1"] {
		assert.Equal(t, firstRows[k], v.Content)
	}
}

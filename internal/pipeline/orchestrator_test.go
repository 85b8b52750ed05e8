package pipeline

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"unicode/utf8"

	"veogen/internal/domain"
)

type fakeEnhancer struct {
	calls   int
	enhance func(ctx context.Context, raw string, aspect domain.AspectRatio) (domain.EnhancedPrompt, error)
}

func (f *fakeEnhancer) Enhance(ctx context.Context, raw string, aspect domain.AspectRatio) (domain.EnhancedPrompt, error) {
	f.calls++
	if f.enhance != nil {
		return f.enhance(ctx, raw, aspect)
	}
	return domain.EnhancedPrompt{Original: raw, Enhanced: "enhanced: " + raw}, nil
}

type fakeJobClient struct {
	submitCalls   int
	awaitCalls    int
	downloadCalls int
	submittedWith string

	submit   func(ctx context.Context, prompt string, aspect domain.AspectRatio) (domain.Job, error)
	await    func(ctx context.Context, job domain.Job) (domain.Job, error)
	download func(ctx context.Context, resultRef string) ([]byte, error)
}

func (f *fakeJobClient) Submit(ctx context.Context, p string, aspect domain.AspectRatio) (domain.Job, error) {
	f.submitCalls++
	f.submittedWith = p
	if f.submit != nil {
		return f.submit(ctx, p, aspect)
	}
	return domain.Job{ID: "op-1", State: domain.JobSubmitted}, nil
}

func (f *fakeJobClient) AwaitCompletion(ctx context.Context, job domain.Job) (domain.Job, error) {
	f.awaitCalls++
	if f.await != nil {
		return f.await(ctx, job)
	}
	job.State = domain.JobSucceeded
	job.ResultRef = "https://files.example/video.mp4"
	return job, nil
}

func (f *fakeJobClient) Download(ctx context.Context, ref string) ([]byte, error) {
	f.downloadCalls++
	if f.download != nil {
		return f.download(ctx, ref)
	}
	return []byte("mp4-bytes"), nil
}

type fakeStore struct {
	persistCalls int
	persist      func(ctx context.Context, data []byte, filename string) (domain.StoredArtifact, error)
}

func (f *fakeStore) Persist(ctx context.Context, data []byte, filename string) (domain.StoredArtifact, error) {
	f.persistCalls++
	if f.persist != nil {
		return f.persist(ctx, data, filename)
	}
	return domain.StoredArtifact{
		URI:      "https://res.cloudinary.com/demo/" + filename,
		Backend:  domain.BackendCDN,
		Bytes:    int64(len(data)),
		Filename: filename,
	}, nil
}

func newTestOrchestrator(t *testing.T, enhancer *fakeEnhancer, jobs *fakeJobClient, store *fakeStore) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(Options{Enhancer: enhancer, Jobs: jobs, Store: store})
	if err != nil {
		t.Fatalf("NewOrchestrator returned error: %v", err)
	}
	return o
}

var filenamePattern = regexp.MustCompile(`^veo31_video_\d{8}_\d{6}\.mp4$`)

func TestGenerateEndToEnd(t *testing.T) {
	enhancer := &fakeEnhancer{}
	jobs := &fakeJobClient{}
	store := &fakeStore{}
	o := newTestOrchestrator(t, enhancer, jobs, store)

	res, err := o.Generate(context.Background(), domain.GenerationRequest{
		Prompt:      "A cat explains colors",
		AspectRatio: domain.AspectLandscape,
		Enhance:     true,
	})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if res.Prompt.Enhanced == "" || res.Prompt.Enhanced == res.Prompt.Original {
		t.Fatalf("enhanced prompt = %q, want a rewrite", res.Prompt.Enhanced)
	}
	if res.Prompt.UsedFallback {
		t.Fatal("UsedFallback = true, want false")
	}
	if res.Job.State != domain.JobSucceeded {
		t.Fatalf("job state = %s, want SUCCEEDED", res.Job.State)
	}
	if res.Artifact.Backend != domain.BackendCDN && res.Artifact.Backend != domain.BackendLocal {
		t.Fatalf("backend = %s", res.Artifact.Backend)
	}
	if !filenamePattern.MatchString(res.Artifact.Filename) {
		t.Fatalf("filename = %q, want prefix_YYYYMMDD_HHMMSS.mp4", res.Artifact.Filename)
	}
	if jobs.submittedWith != "enhanced: A cat explains colors" {
		t.Fatalf("submitted prompt = %q, want the enhanced one", jobs.submittedWith)
	}
}

func TestGenerateWithoutEnhancementSkipsEnhancer(t *testing.T) {
	enhancer := &fakeEnhancer{}
	jobs := &fakeJobClient{}
	o := newTestOrchestrator(t, enhancer, jobs, &fakeStore{})

	res, err := o.Generate(context.Background(), domain.GenerationRequest{
		Prompt:      "raw prompt",
		AspectRatio: domain.AspectSquare,
		Enhance:     false,
	})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if enhancer.calls != 0 {
		t.Fatalf("enhancer calls = %d, want 0", enhancer.calls)
	}
	if res.Prompt.Enhanced != "raw prompt" || res.Prompt.UsedFallback {
		t.Fatalf("prompt = %+v, want verbatim without fallback", res.Prompt)
	}
}

func TestGenerateSurvivesEnhancementError(t *testing.T) {
	enhancer := &fakeEnhancer{
		enhance: func(ctx context.Context, raw string, aspect domain.AspectRatio) (domain.EnhancedPrompt, error) {
			return domain.EnhancedPrompt{}, errors.New("model unavailable")
		},
	}
	jobs := &fakeJobClient{}
	o := newTestOrchestrator(t, enhancer, jobs, &fakeStore{})

	res, err := o.Generate(context.Background(), domain.GenerationRequest{
		Prompt:      "raw prompt",
		AspectRatio: domain.AspectLandscape,
		Enhance:     true,
	})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if !res.Prompt.UsedFallback {
		t.Fatal("UsedFallback = false, want true")
	}
	if jobs.submittedWith != "raw prompt" {
		t.Fatalf("submitted prompt = %q, want raw prompt", jobs.submittedWith)
	}
	if jobs.submitCalls != 1 {
		t.Fatalf("submit calls = %d, want pipeline to continue", jobs.submitCalls)
	}
}

func TestGenerateRejectsEmptyPromptBeforeAnyRemoteCall(t *testing.T) {
	enhancer := &fakeEnhancer{}
	jobs := &fakeJobClient{}
	store := &fakeStore{}
	o := newTestOrchestrator(t, enhancer, jobs, store)

	_, err := o.Generate(context.Background(), domain.GenerationRequest{
		Prompt:      "   ",
		AspectRatio: domain.AspectLandscape,
		Enhance:     true,
	})
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("err = %v, want ErrInvalidRequest", err)
	}
	if enhancer.calls+jobs.submitCalls+jobs.awaitCalls+jobs.downloadCalls+store.persistCalls != 0 {
		t.Fatal("expected zero remote calls for an empty prompt")
	}
}

func TestGenerateRejectsUnknownAspectRatio(t *testing.T) {
	o := newTestOrchestrator(t, &fakeEnhancer{}, &fakeJobClient{}, &fakeStore{})

	_, err := o.Generate(context.Background(), domain.GenerationRequest{
		Prompt:      "a cat",
		AspectRatio: domain.AspectRatio("4:3"),
	})
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("err = %v, want ErrInvalidRequest", err)
	}
}

func TestGenerateTruncatesOverlongPrompt(t *testing.T) {
	jobs := &fakeJobClient{}
	o, err := NewOrchestrator(Options{Jobs: jobs, Store: &fakeStore{}, MaxPromptChars: 10})
	if err != nil {
		t.Fatalf("NewOrchestrator returned error: %v", err)
	}

	if _, err := o.Generate(context.Background(), domain.GenerationRequest{
		Prompt:      strings.Repeat("x", 50),
		AspectRatio: domain.AspectLandscape,
	}); err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if len(jobs.submittedWith) != 10 {
		t.Fatalf("submitted prompt length = %d, want 10", len(jobs.submittedWith))
	}
}

func TestGenerateMapsSubmissionFailure(t *testing.T) {
	jobs := &fakeJobClient{
		submit: func(ctx context.Context, p string, a domain.AspectRatio) (domain.Job, error) {
			return domain.Job{}, errors.New("503 from provider")
		},
	}
	o := newTestOrchestrator(t, &fakeEnhancer{}, jobs, &fakeStore{})

	_, err := o.Generate(context.Background(), domain.GenerationRequest{
		Prompt:      "a cat",
		AspectRatio: domain.AspectLandscape,
	})
	if !errors.Is(err, domain.ErrSubmissionFailed) {
		t.Fatalf("err = %v, want ErrSubmissionFailed", err)
	}
	if jobs.awaitCalls != 0 {
		t.Fatal("await must not run after failed submission")
	}
}

func TestGenerateMapsRemoteFailureAndSkipsPersist(t *testing.T) {
	jobs := &fakeJobClient{
		await: func(ctx context.Context, job domain.Job) (domain.Job, error) {
			job.State = domain.JobFailed
			job.Error = "safety filter rejected the prompt"
			return job, nil
		},
	}
	store := &fakeStore{}
	o := newTestOrchestrator(t, &fakeEnhancer{}, jobs, store)

	_, err := o.Generate(context.Background(), domain.GenerationRequest{
		Prompt:      "a cat",
		AspectRatio: domain.AspectLandscape,
		Enhance:     true,
	})
	if !errors.Is(err, domain.ErrGenerationFailed) {
		t.Fatalf("err = %v, want ErrGenerationFailed", err)
	}
	if !strings.Contains(err.Error(), "safety filter") {
		t.Fatalf("err = %v, want remote detail carried", err)
	}
	if store.persistCalls != 0 || jobs.downloadCalls != 0 {
		t.Fatal("no download or persist may happen for a failed job")
	}
}

func TestGenerateMapsTimeoutDistinctly(t *testing.T) {
	jobs := &fakeJobClient{
		await: func(ctx context.Context, job domain.Job) (domain.Job, error) {
			job.State = domain.JobTimedOut
			return job, nil
		},
	}
	o := newTestOrchestrator(t, &fakeEnhancer{}, jobs, &fakeStore{})

	_, err := o.Generate(context.Background(), domain.GenerationRequest{
		Prompt:      "a cat",
		AspectRatio: domain.AspectLandscape,
	})
	if !errors.Is(err, domain.ErrGenerationTimeout) {
		t.Fatalf("err = %v, want ErrGenerationTimeout", err)
	}
	if errors.Is(err, domain.ErrGenerationFailed) {
		t.Fatal("timeout must stay distinct from generation failure")
	}
}

func TestGenerateMapsDownloadFailureToStorage(t *testing.T) {
	jobs := &fakeJobClient{
		download: func(ctx context.Context, ref string) ([]byte, error) {
			return nil, errors.New("result reference expired")
		},
	}
	o := newTestOrchestrator(t, &fakeEnhancer{}, jobs, &fakeStore{})

	_, err := o.Generate(context.Background(), domain.GenerationRequest{
		Prompt:      "a cat",
		AspectRatio: domain.AspectLandscape,
	})
	if !errors.Is(err, domain.ErrStorageFailed) {
		t.Fatalf("err = %v, want ErrStorageFailed", err)
	}
}

func TestGenerateMapsPersistFailureToStorage(t *testing.T) {
	store := &fakeStore{
		persist: func(ctx context.Context, data []byte, filename string) (domain.StoredArtifact, error) {
			return domain.StoredArtifact{}, errors.New("disk full")
		},
	}
	o := newTestOrchestrator(t, &fakeEnhancer{}, &fakeJobClient{}, store)

	_, err := o.Generate(context.Background(), domain.GenerationRequest{
		Prompt:      "a cat",
		AspectRatio: domain.AspectLandscape,
	})
	if !errors.Is(err, domain.ErrStorageFailed) {
		t.Fatalf("err = %v, want ErrStorageFailed", err)
	}
}

func TestGenerateTruncatesOnRuneBoundary(t *testing.T) {
	jobs := &fakeJobClient{}
	o, err := NewOrchestrator(Options{Jobs: jobs, Store: &fakeStore{}, MaxPromptChars: 9})
	if err != nil {
		t.Fatalf("NewOrchestrator returned error: %v", err)
	}

	// Each é is two bytes, so a 9-byte cut would land mid-rune.
	if _, err := o.Generate(context.Background(), domain.GenerationRequest{
		Prompt:      strings.Repeat("é", 20),
		AspectRatio: domain.AspectLandscape,
	}); err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if !utf8.ValidString(jobs.submittedWith) {
		t.Fatalf("submitted prompt %q is not valid UTF-8", jobs.submittedWith)
	}
	if len(jobs.submittedWith) != 8 {
		t.Fatalf("submitted prompt length = %d, want 8", len(jobs.submittedWith))
	}
}

func TestGenerateCancellationDuringDownloadIsNotStorageFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	jobs := &fakeJobClient{
		download: func(ctx context.Context, ref string) ([]byte, error) {
			cancel()
			return nil, ctx.Err()
		},
	}
	o := newTestOrchestrator(t, &fakeEnhancer{}, jobs, &fakeStore{})

	_, err := o.Generate(ctx, domain.GenerationRequest{
		Prompt:      "a cat",
		AspectRatio: domain.AspectLandscape,
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if errors.Is(err, domain.ErrStorageFailed) {
		t.Fatal("client disconnect must not be reported as a storage failure")
	}
}

func TestGenerateCancellationDuringPersistIsNotStorageFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := &fakeStore{
		persist: func(ctx context.Context, data []byte, filename string) (domain.StoredArtifact, error) {
			cancel()
			return domain.StoredArtifact{}, ctx.Err()
		},
	}
	o := newTestOrchestrator(t, &fakeEnhancer{}, &fakeJobClient{}, store)

	_, err := o.Generate(ctx, domain.GenerationRequest{
		Prompt:      "a cat",
		AspectRatio: domain.AspectLandscape,
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if errors.Is(err, domain.ErrStorageFailed) {
		t.Fatal("client disconnect must not be reported as a storage failure")
	}
}

func TestGeneratePropagatesCancellation(t *testing.T) {
	jobs := &fakeJobClient{
		await: func(ctx context.Context, job domain.Job) (domain.Job, error) {
			return job, context.Canceled
		},
	}
	o := newTestOrchestrator(t, &fakeEnhancer{}, jobs, &fakeStore{})

	_, err := o.Generate(context.Background(), domain.GenerationRequest{
		Prompt:      "a cat",
		AspectRatio: domain.AspectLandscape,
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

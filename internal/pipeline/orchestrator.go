package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"veogen/internal/domain"
	"veogen/internal/providers/prompt"
)

const (
	defaultFilePrefix     = "veo31_video"
	defaultMaxPromptChars = 2000
)

// JobClient drives the remote generation job: one submission, polled
// completion, and the result download.
type JobClient interface {
	Submit(ctx context.Context, prompt string, aspect domain.AspectRatio) (domain.Job, error)
	AwaitCompletion(ctx context.Context, job domain.Job) (domain.Job, error)
	Download(ctx context.Context, resultRef string) ([]byte, error)
}

// ArtifactStore persists the downloaded video bytes.
type ArtifactStore interface {
	Persist(ctx context.Context, data []byte, filename string) (domain.StoredArtifact, error)
}

// Options wires the orchestrator's collaborators.
type Options struct {
	Enhancer       prompt.Enhancer
	Jobs           JobClient
	Store          ArtifactStore
	FilePrefix     string
	MaxPromptChars int
	Logger         *zerolog.Logger
}

// Orchestrator composes enhancement, generation and persistence into one
// pipeline: enhance -> submit -> poll -> persist -> assemble. It holds no
// cross-request state; concurrent Generate calls are independent and each
// one drives at most one remote job.
type Orchestrator struct {
	enhancer       prompt.Enhancer
	jobs           JobClient
	store          ArtifactStore
	filePrefix     string
	maxPromptChars int
	logger         zerolog.Logger
	now            func() time.Time
}

func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if opts.Jobs == nil {
		return nil, errors.New("pipeline: job client is required")
	}
	if opts.Store == nil {
		return nil, errors.New("pipeline: artifact store is required")
	}
	enhancer := opts.Enhancer
	if enhancer == nil {
		enhancer = prompt.NewPassthrough()
	}
	prefix := strings.TrimSpace(opts.FilePrefix)
	if prefix == "" {
		prefix = defaultFilePrefix
	}
	maxChars := opts.MaxPromptChars
	if maxChars <= 0 {
		maxChars = defaultMaxPromptChars
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Orchestrator{
		enhancer:       enhancer,
		jobs:           opts.Jobs,
		store:          opts.Store,
		filePrefix:     prefix,
		maxPromptChars: maxChars,
		logger:         logger,
		now:            time.Now,
	}, nil
}

// Generate runs the full pipeline for one request. Enhancement failures are
// absorbed (recorded via UsedFallback); submission, terminal job failure,
// timeout and storage failure each surface as their own error kind so the
// caller can tell "try again" from "this prompt or service is broken" from
// "storage misconfigured".
func (o *Orchestrator) Generate(ctx context.Context, req domain.GenerationRequest) (*domain.GenerationResult, error) {
	raw := strings.TrimSpace(req.Prompt)
	if raw == "" {
		return nil, fmt.Errorf("%w: prompt must not be empty", domain.ErrInvalidRequest)
	}
	aspect, ok := domain.ParseAspectRatio(string(req.AspectRatio))
	if !ok {
		return nil, fmt.Errorf("%w: unsupported aspect ratio %q", domain.ErrInvalidRequest, req.AspectRatio)
	}
	if len(raw) > o.maxPromptChars {
		cut := o.maxPromptChars
		// Back off to a rune boundary so the truncated prompt stays valid UTF-8.
		for cut > 0 && !utf8.RuneStart(raw[cut]) {
			cut--
		}
		raw = raw[:cut]
	}

	start := o.now()

	enhanced := domain.EnhancedPrompt{Original: raw, Enhanced: raw}
	if req.Enhance {
		result, err := o.enhancer.Enhance(ctx, raw, aspect)
		if err != nil {
			// Enhancement never aborts the pipeline; degrade to the raw prompt.
			o.logger.Warn().Err(err).Msg("pipeline: enhancement failed, using raw prompt")
			enhanced = domain.EnhancedPrompt{Original: raw, Enhanced: raw, UsedFallback: true}
		} else {
			enhanced = result
		}
	}

	job, err := o.jobs.Submit(ctx, enhanced.Enhanced, aspect)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSubmissionFailed, err)
	}
	o.logger.Info().Str("job_id", job.ID).Bool("enhanced", req.Enhance && !enhanced.UsedFallback).Msg("pipeline: job submitted")

	job, err = o.jobs.AwaitCompletion(ctx, job)
	if err != nil {
		// Local cancellation: stop watching, the remote job keeps running.
		return nil, err
	}
	switch job.State {
	case domain.JobSucceeded:
	case domain.JobTimedOut:
		return nil, fmt.Errorf("%w: job %s still running after local deadline", domain.ErrGenerationTimeout, job.ID)
	case domain.JobFailed:
		if job.Error != "" {
			return nil, fmt.Errorf("%w: %s", domain.ErrGenerationFailed, job.Error)
		}
		return nil, fmt.Errorf("%w: job %s", domain.ErrGenerationFailed, job.ID)
	default:
		return nil, fmt.Errorf("%w: job %s in non-terminal state %s", domain.ErrGenerationFailed, job.ID, job.State)
	}

	data, err := o.jobs.Download(ctx, job.ResultRef)
	if err != nil {
		// A disconnecting client is a cancellation, not a storage fault.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: fetch result: %v", domain.ErrStorageFailed, err)
	}

	filename := fmt.Sprintf("%s_%s.mp4", o.filePrefix, o.now().UTC().Format("20060102_150405"))
	artifact, err := o.store.Persist(ctx, data, filename)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageFailed, err)
	}

	o.logger.Info().
		Str("job_id", job.ID).
		Str("uri", artifact.URI).
		Str("backend", string(artifact.Backend)).
		Dur("elapsed", o.now().Sub(start)).
		Msg("pipeline: generation complete")

	return &domain.GenerationResult{
		Prompt:   enhanced,
		Job:      job,
		Artifact: artifact,
	}, nil
}

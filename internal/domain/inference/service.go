package inference

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/carebridge/cds-agent/internal/platform/gateway"
	"github.com/carebridge/cds-agent/internal/platform/notify"
	"github.com/carebridge/cds-agent/internal/platform/realtime"
)

// GatewayClient is the slice of the gateway API the job service uses.
type GatewayClient interface {
	SubmitInference(ctx context.Context, modelType string, params map[string]interface{}) (*gateway.SubmitResponse, error)
	JobStatus(ctx context.Context, jobID string) (*gateway.JobStatusResponse, error)
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithPollInterval overrides the reconciler tick.
func WithPollInterval(d time.Duration) ServiceOption {
	return func(s *Service) { s.pollEvery = d }
}

// Service owns job submission and the two update channels. Both the push
// path (ApplyPush) and the poll path (via the reconciler) converge on the
// store's ApplyUpdate and on the same notification rules.
type Service struct {
	store     *Store
	gw        GatewayClient
	queue     *notify.Queue
	logger    zerolog.Logger
	pollEvery time.Duration

	reconciler *Reconciler
}

// NewService creates the job service and its (initially idle) reconciler.
func NewService(store *Store, gw GatewayClient, queue *notify.Queue, logger zerolog.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		store:     store,
		gw:        gw,
		queue:     queue,
		logger:    logger.With().Str("component", "inference").Logger(),
		pollEvery: pollInterval,
	}
	for _, o := range opts {
		o(s)
	}
	s.reconciler = newReconciler(s, s.pollEvery, logger)
	return s
}

// Submit sends an inference request to the gateway. A cached response
// yields a terminal COMPLETED job immediately and is never polled; an
// accepted request yields a PROCESSING job whose later state arrives only
// through push or poll. On failure, no job exists and a categorized error
// toast is queued for the caller's page to show.
func (s *Service) Submit(ctx context.Context, modelType string, params map[string]interface{}) (*Job, error) {
	resp, err := s.gw.SubmitInference(ctx, modelType, params)
	if err != nil {
		s.logger.Error().Err(err).Str("model_type", modelType).Msg("submission failed")
		s.queue.Add(notify.KindError, "Inference request failed", submitFailureMessage(err), "", notify.JobAlertTTL)
		return nil, err
	}

	if resp.Cached {
		job := Job{
			ID:        resp.JobID,
			ModelType: modelType,
			Status:    StatusCompleted,
			Result:    resp.Result,
			Cached:    true,
			CreatedAt: time.Now(),
		}
		s.store.add(job)
		s.logger.Info().Str("job_id", job.ID).Str("model_type", modelType).Msg("cached result")
		s.queue.Add(notify.KindSuccess, "Inference result ready", "A precomputed result was available.", job.ID, notify.JobAlertTTL)
		return &job, nil
	}

	job := Job{
		ID:        resp.JobID,
		ModelType: modelType,
		Status:    StatusProcessing,
		CreatedAt: time.Now(),
	}
	s.store.add(job)
	s.logger.Info().Str("job_id", job.ID).Str("model_type", modelType).Msg("job submitted")
	s.reconciler.syncState()
	return &job, nil
}

// ApplyPush routes an inference event from the realtime transport into
// the store.
func (s *Service) ApplyPush(evt realtime.InferenceResult) {
	s.apply(evt.JobID, evt.Status, evt.Result, evt.Error, evt.ModelType)
}

// applyPolled routes a poll response into the store. Downstream of this
// call, poll and push are indistinguishable.
func (s *Service) applyPolled(jobID string, resp *gateway.JobStatusResponse) {
	s.apply(jobID, resp.Status, resp.ResultData, resp.ErrorMessage, resp.ModelType)
}

// apply is the single funnel for both channels: parse, merge under the
// monotonicity guard, notify on the transition into a terminal state, and
// bring the reconciler in line with the new active count.
func (s *Service) apply(jobID, rawStatus string, result json.RawMessage, errMsg, modelType string) {
	status, ok := ParseStatus(rawStatus)
	if !ok {
		s.logger.Warn().Str("job_id", jobID).Str("status", rawStatus).Msg("dropping update with unknown status")
		return
	}

	u := Update{Status: &status}
	if len(result) > 0 {
		u.Result = result
	}
	if errMsg != "" {
		u.Error = &errMsg
	}
	if modelType != "" {
		u.ModelType = &modelType
	}

	before, after, err := s.store.ApplyUpdate(jobID, u)
	switch {
	case errors.Is(err, ErrUnknownJob):
		s.logger.Debug().Str("job_id", jobID).Msg("update for unknown job ignored")
		return
	case errors.Is(err, ErrTerminalRegression):
		s.logger.Debug().Str("job_id", jobID).Str("status", rawStatus).Msg("stale non-terminal update ignored")
		return
	}

	if !before.Status.Terminal() && after.Status.Terminal() {
		s.notifyTerminal(after)
	}
	s.reconciler.syncState()
}

// notifyTerminal queues the toast for a job reaching its final state.
// Duplicate delivery (push and poll both observing the same transition)
// cannot reach here twice: the second apply sees a terminal before-status.
func (s *Service) notifyTerminal(job Job) {
	switch job.Status {
	case StatusCompleted:
		s.logger.Info().Str("job_id", job.ID).Msg("job completed")
		s.queue.Add(notify.KindSuccess, "Inference complete", "Results are ready to review.", job.ID, notify.JobAlertTTL)
	case StatusFailed:
		s.logger.Warn().Str("job_id", job.ID).Str("error", job.Error).Msg("job failed")
		msg := job.Error
		if msg == "" {
			msg = "The inference job failed."
		}
		s.queue.Add(notify.KindError, "Inference failed", msg, job.ID, notify.JobAlertTTL)
	case StatusCancelled:
		s.logger.Info().Str("job_id", job.ID).Msg("job cancelled")
		s.queue.Add(notify.KindWarning, "Inference cancelled", "The job was cancelled before completion.", job.ID, notify.JobAlertTTL)
	}
}

// Job returns a copy of one job.
func (s *Service) Job(id string) (Job, bool) {
	return s.store.Get(id)
}

// Jobs returns copies of all known jobs.
func (s *Service) Jobs() []Job {
	return s.store.List()
}

// ActiveJobs returns copies of all non-terminal jobs.
func (s *Service) ActiveJobs() []Job {
	return s.store.ActiveJobs()
}

// Polling reports whether the reconciler loop is currently running.
func (s *Service) Polling() bool {
	return s.reconciler.Running()
}

// Close stops the reconciler for process teardown.
func (s *Service) Close() {
	s.reconciler.Stop()
}

// submitFailureMessage maps a categorized request failure to the text
// shown on the toast.
func submitFailureMessage(err error) string {
	re, ok := gateway.AsRequestError(err)
	if !ok {
		return "The request could not be completed."
	}
	switch re.Category {
	case gateway.CategoryAuthExpired:
		return "Your session has expired. Sign in again to continue."
	case gateway.CategoryUnavailable:
		return "The inference service is currently unavailable."
	case gateway.CategoryValidation:
		return "The request was rejected by the inference service."
	case gateway.CategoryNotFound:
		return "The requested model is not available."
	default:
		return "The request could not be completed."
	}
}

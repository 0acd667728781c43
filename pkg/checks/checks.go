// Package checks publishes reports through the GitHub check runs API.
package checks

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/go-github/v66/github"
	"github.com/rs/zerolog"

	"github.com/dkoosis/clippycheck/pkg/annotate"
	"github.com/dkoosis/clippycheck/pkg/report"
)

// MaxAnnotationsPerRequest is GitHub's limit on annotations per create or
// update call.
const MaxAnnotationsPerRequest = 50

// StatusInProgress marks a run that is still receiving annotation batches.
const StatusInProgress = "in_progress"

var (
	// ErrPublish wraps any failure talking to the check runs API.
	ErrPublish = errors.New("publish check run")
	// ErrInvalidRepo is returned for a repository not in owner/name form.
	ErrInvalidRepo = errors.New("invalid repository")
)

// Repo addresses a repository.
type Repo struct {
	Owner string
	Name  string
}

func (r Repo) String() string {
	return r.Owner + "/" + r.Name
}

// ParseRepo parses "owner/name".
func ParseRepo(s string) (Repo, error) {
	owner, name, ok := strings.Cut(s, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return Repo{}, fmt.Errorf("%w: %q", ErrInvalidRepo, s)
	}
	return Repo{Owner: owner, Name: name}, nil
}

// NewClient returns a token-authenticated client. apiURL overrides the
// public API endpoint, as GITHUB_API_URL does on GitHub Enterprise Server.
func NewClient(token, apiURL string) (*github.Client, error) {
	client := github.NewClient(nil).WithAuthToken(token)
	if apiURL == "" {
		return client, nil
	}

	u, err := url.Parse(strings.TrimSuffix(apiURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("parse api url %q: %w", apiURL, err)
	}
	client.BaseURL = u
	return client, nil
}

// Publisher creates check runs.
type Publisher struct {
	Client *github.Client
	// BatchSize defaults to MaxAnnotationsPerRequest.
	BatchSize int
	Logger    *zerolog.Logger
}

func (p *Publisher) logger() *zerolog.Logger {
	if p.Logger == nil {
		nop := zerolog.Nop()
		return &nop
	}
	return p.Logger
}

// Publish creates a completed check run for r. When r has more annotations
// than fit in one request, the run is created in progress with the first
// batch and the remainder is appended with follow-up updates; only the last
// update completes it with the conclusion. A failed follow-up therefore
// leaves the run in progress rather than concluded on a partial report.
// Nothing is retried.
func (p *Publisher) Publish(ctx context.Context, r report.Report, repo Repo) (*github.CheckRun, error) {
	batches := chunk(r.Output.Annotations, p.BatchSize)

	opts := github.CreateCheckRunOptions{
		Name:      r.Name,
		HeadSHA:   r.HeadSHA,
		StartedAt: &github.Timestamp{Time: r.StartedAt},
		Output:    output(r.Output, batches[0]),
	}
	if r.ExternalID != "" {
		opts.ExternalID = github.String(r.ExternalID)
	}
	if len(batches) == 1 {
		opts.Status = github.String(string(r.Status))
		opts.Conclusion = github.String(string(r.Conclusion))
		opts.CompletedAt = &github.Timestamp{Time: r.CompletedAt}
	} else {
		opts.Status = github.String(StatusInProgress)
	}

	run, resp, err := p.Client.Checks.CreateCheckRun(ctx, repo.Owner, repo.Name, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: create in %s: %w", ErrPublish, repo, err)
	}
	p.logResponse(resp, "created check run", run.GetID())

	for i, batch := range batches[1:] {
		update := github.UpdateCheckRunOptions{
			Name:   r.Name,
			Output: output(r.Output, batch),
		}
		if i == len(batches)-2 {
			update.Status = github.String(string(r.Status))
			update.Conclusion = github.String(string(r.Conclusion))
			update.CompletedAt = &github.Timestamp{Time: r.CompletedAt}
		}
		updated, resp, err := p.Client.Checks.UpdateCheckRun(ctx, repo.Owner, repo.Name, run.GetID(), update)
		if err != nil {
			return run, fmt.Errorf("%w: append annotation batch %d to run %d: %w", ErrPublish, i+2, run.GetID(), err)
		}
		p.logResponse(resp, "appended annotations", run.GetID())
		if updated != nil {
			run = updated
		}
	}

	return run, nil
}

func (p *Publisher) logResponse(resp *github.Response, msg string, id int64) {
	ev := p.logger().Debug().Int64("check_run_id", id)
	if resp != nil {
		ev = ev.Int("status", resp.StatusCode).Int("rate_remaining", resp.Rate.Remaining)
	}
	ev.Msg(msg)
}

func output(o report.Output, batch []annotate.Annotation) *github.CheckRunOutput {
	out := &github.CheckRunOutput{
		Title:   github.String(o.Title),
		Summary: github.String(o.Summary),
	}
	for _, a := range batch {
		out.Annotations = append(out.Annotations, &github.CheckRunAnnotation{
			Path:            github.String(a.Path),
			StartLine:       github.Int(a.StartLine),
			EndLine:         github.Int(a.EndLine),
			AnnotationLevel: github.String(string(a.Level)),
			Message:         github.String(a.Message),
			Title:           github.String(a.Title),
		})
	}
	return out
}

// chunk always returns at least one (possibly empty) batch.
func chunk(annotations []annotate.Annotation, size int) [][]annotate.Annotation {
	if size <= 0 || size > MaxAnnotationsPerRequest {
		size = MaxAnnotationsPerRequest
	}
	batches := [][]annotate.Annotation{}
	for len(annotations) > size {
		batches = append(batches, annotations[:size])
		annotations = annotations[size:]
	}
	return append(batches, annotations)
}

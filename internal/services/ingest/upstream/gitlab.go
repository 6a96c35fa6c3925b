// Package upstream maps GitLab documents onto raw ingestion rows
package upstream

import (
	"context"
	"slices"
	"strings"
	"time"

	"devflow/internal/adapters/gitlab"
	"devflow/internal/platform/logger"
	ptime "devflow/internal/platform/time"
	"devflow/internal/services/ingest/domain"
)

// API is the slice of the GitLab client the source needs
type API interface {
	WalkProjects(ctx context.Context, groupPath string, fn func([]gitlab.Project) error) error
	ListMergeRequests(ctx context.Context, projectID int64, updatedAfter time.Time) ([]gitlab.MergeRequest, error)
	ListCommits(ctx context.Context, projectID int64, since time.Time) ([]gitlab.Commit, error)
	ListPipelines(ctx context.Context, projectID int64, updatedAfter time.Time) ([]gitlab.Pipeline, error)
	GetPipeline(ctx context.Context, projectID, pipelineID int64) (gitlab.Pipeline, error)
	ListPipelineJobs(ctx context.Context, projectID, pipelineID int64) ([]gitlab.Job, error)
	GetUser(ctx context.Context, id int64) (gitlab.User, error)
	GetMergeRequestApprovals(ctx context.Context, projectID, iid int64) (gitlab.Approvals, error)
	GetMergeRequestChanges(ctx context.Context, projectID, iid int64) (gitlab.Changes, error)
	ListMergeRequestNotes(ctx context.Context, projectID, iid int64) ([]gitlab.Note, error)
	ListMergeRequestCommits(ctx context.Context, projectID, iid int64) ([]gitlab.Commit, error)
	CommitSigned(ctx context.Context, projectID int64, sha string) (bool, error)
}

// BotChecker flags automation accounts
type BotChecker interface {
	IsBot(username, email, displayName string) bool
}

// Options tunes the enrichment calls
type Options struct {
	// CheckSignatures asks the signature endpoint once per commit
	CheckSignatures bool
	// PipelineJobs reads the job list of every pipeline
	PipelineJobs bool
	// GroupPath limits discovery to one group; empty lists member projects
	GroupPath string
}

// GitLab implements domain.Source over the GitLab REST client
type GitLab struct {
	api  API
	bots BotChecker
	opts Options
	log  logger.Logger
}

// New wraps api; bots may be nil
func New(api API, bots BotChecker, opts Options) *GitLab {
	return &GitLab{api: api, bots: bots, opts: opts, log: *logger.Named("ingest.upstream")}
}

var _ domain.Source = (*GitLab)(nil)

func (g *GitLab) isBot(username, email, name string) bool {
	return g.bots != nil && g.bots.IsBot(username, email, name)
}

// Projects walks member projects, or the configured group, one page at a time
func (g *GitLab) Projects(ctx context.Context, page func([]domain.Project) error) error {
	return g.api.WalkProjects(ctx, g.opts.GroupPath, func(ps []gitlab.Project) error {
		out := make([]domain.Project, 0, len(ps))
		for _, p := range ps {
			branch := p.DefaultBranch
			if branch == "" {
				branch = "main"
			}
			out = append(out, domain.Project{
				ID:             p.ID,
				Path:           p.PathWithNamespace,
				DefaultBranch:  branch,
				Archived:       p.Archived,
				WebURL:         p.WebURL,
				LastActivityAt: p.LastActivityAt,
			})
		}
		return page(out)
	})
}

// MergeRequests lists MRs updated since the bound and enriches each one sequentially
func (g *GitLab) MergeRequests(ctx context.Context, p domain.Project, since time.Time) ([]domain.RawMergeRequest, error) {
	mrs, err := g.api.ListMergeRequests(ctx, p.ID, since)
	if err != nil {
		return nil, err
	}
	out := make([]domain.RawMergeRequest, 0, len(mrs))
	for _, mr := range mrs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := g.mergeRequest(ctx, p, mr)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	g.log.Debug().Int64("project_id", p.ID).Int("merge_requests", len(out)).Msg("merge requests enriched")
	return out, nil
}

func (g *GitLab) mergeRequest(ctx context.Context, p domain.Project, mr gitlab.MergeRequest) (domain.RawMergeRequest, error) {
	row := domain.RawMergeRequest{
		ProjectID:      p.ID,
		ID:             mr.ID,
		IID:            mr.IID,
		AuthorID:       mr.Author.ID,
		AuthorUsername: mr.Author.Username,
		AuthorName:     mr.Author.Name,
		Title:          mr.Title,
		State:          mr.State,
		SourceBranch:   mr.SourceBranch,
		TargetBranch:   mr.TargetBranch,
		CreatedAt:      mr.CreatedAt.UTC(),
		UpdatedAt:      mr.UpdatedAt.UTC(),
		MergedAt:       ptime.UTC(mr.MergedAt),
		ClosedAt:       ptime.UTC(mr.ClosedAt),
	}

	bot, err := g.authorIsBot(ctx, mr.Author)
	if err != nil {
		return row, err
	}
	row.AuthorIsBot = bot

	appr, err := g.api.GetMergeRequestApprovals(ctx, p.ID, mr.IID)
	if err != nil {
		return row, err
	}
	row.Approvals = len(appr.ApprovedBy)

	changes, err := g.api.GetMergeRequestChanges(ctx, p.ID, mr.IID)
	if err != nil {
		return row, err
	}
	row.FilesChanged = len(changes.Changes)
	for _, c := range changes.Changes {
		add, del := DiffLines(c.Diff)
		row.Additions += add
		row.Deletions += del
	}

	notes, err := g.api.ListMergeRequestNotes(ctx, p.ID, mr.IID)
	if err != nil {
		return row, err
	}
	commits, err := g.api.ListMergeRequestCommits(ctx, p.ID, mr.IID)
	if err != nil {
		return row, err
	}

	for _, c := range commits {
		msg := c.Message
		if msg == "" {
			msg = c.Title
		}
		row.CommitMessages = append(row.CommitMessages, msg)
	}

	ready := ReadyAt(notes, row.CreatedAt)
	row.ReadyAt = &ready
	row.FirstReviewAt = g.firstReview(notes, mr.Author, row.CreatedAt)
	end := time.Now().UTC()
	if row.MergedAt != nil {
		end = *row.MergedAt
	}
	row.ReviewRounds = ReviewRounds(g.reviews(notes, mr.Author), commitTimes(commits), ready, end)
	return row, nil
}

// authorIsBot trusts the GitLab bot flag, then the configured patterns
func (g *GitLab) authorIsBot(ctx context.Context, u gitlab.UserRef) (bool, error) {
	if g.isBot(u.Username, "", u.Name) {
		return true, nil
	}
	if u.ID == 0 {
		return false, nil
	}
	full, err := g.api.GetUser(ctx, u.ID)
	if err != nil {
		return false, err
	}
	return full.Bot || g.isBot(full.Username, full.PublicEmail, full.Name), nil
}

// reviews are human notes left by someone other than the author
func (g *GitLab) reviews(notes []gitlab.Note, author gitlab.UserRef) []time.Time {
	var out []time.Time
	for _, n := range notes {
		if n.System || sameUser(n.Author, author) || g.isBot(n.Author.Username, "", n.Author.Name) {
			continue
		}
		out = append(out, n.CreatedAt.UTC())
	}
	slices.SortFunc(out, time.Time.Compare)
	return out
}

func (g *GitLab) firstReview(notes []gitlab.Note, author gitlab.UserRef, created time.Time) *time.Time {
	for _, at := range g.reviews(notes, author) {
		if !at.Before(created) {
			return &at
		}
	}
	return nil
}

func sameUser(a, b gitlab.UserRef) bool {
	if a.ID != 0 && b.ID != 0 {
		return a.ID == b.ID
	}
	return strings.EqualFold(a.Username, b.Username)
}

const readyMarker = "marked this merge request as ready"

// ReadyAt is the last time the MR left draft, or created when it never was a draft
func ReadyAt(notes []gitlab.Note, created time.Time) time.Time {
	ready := created
	for _, n := range notes {
		body := strings.ToLower(strings.ReplaceAll(n.Body, "*", ""))
		if !n.System || !strings.Contains(body, readyMarker) {
			continue
		}
		if at := n.CreatedAt.UTC(); at.After(ready) {
			ready = at
		}
	}
	return ready
}

// ReviewRounds counts commits pushed in answer to review: each commit that follows
// at least one review since the previous counted commit opens a new round.
// Only events inside [from, to] count
func ReviewRounds(reviews, commits []time.Time, from, to time.Time) int {
	type event struct {
		at     time.Time
		review bool
	}
	var evs []event
	in := func(t time.Time) bool { return !t.Before(from) && !t.After(to) }
	for _, r := range reviews {
		if in(r) {
			evs = append(evs, event{r, true})
		}
	}
	for _, c := range commits {
		if in(c) {
			evs = append(evs, event{c, false})
		}
	}
	// reviews sort before commits at the same instant
	slices.SortStableFunc(evs, func(a, b event) int {
		if c := a.at.Compare(b.at); c != 0 {
			return c
		}
		switch {
		case a.review && !b.review:
			return -1
		case !a.review && b.review:
			return 1
		}
		return 0
	})

	rounds, pending := 0, false
	for _, e := range evs {
		if e.review {
			pending = true
			continue
		}
		if pending {
			rounds++
			pending = false
		}
	}
	return rounds
}

func commitTimes(cs []gitlab.Commit) []time.Time {
	out := make([]time.Time, 0, len(cs))
	for _, c := range cs {
		at := c.CreatedAt
		if at.IsZero() {
			at = c.CommittedDate
		}
		out = append(out, at.UTC())
	}
	return out
}

// DiffLines counts added and removed lines of a unified diff, skipping file headers
func DiffLines(diff string) (add, del int) {
	for line := range strings.SplitSeq(diff, "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
		case strings.HasPrefix(line, "+"):
			add++
		case strings.HasPrefix(line, "-"):
			del++
		}
	}
	return add, del
}

// Commits lists commits on all branches since the bound
func (g *GitLab) Commits(ctx context.Context, p domain.Project, since time.Time) ([]domain.RawCommit, error) {
	cs, err := g.api.ListCommits(ctx, p.ID, since)
	if err != nil {
		return nil, err
	}
	out := make([]domain.RawCommit, 0, len(cs))
	for _, c := range cs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row := domain.RawCommit{
			ProjectID:      p.ID,
			SHA:            c.ID,
			AuthorName:     c.AuthorName,
			AuthorEmail:    c.AuthorEmail,
			CommitterEmail: c.CommitterEmail,
			Message:        c.Message,
			AuthoredAt:     c.AuthoredDate.UTC(),
			CommittedAt:    c.CommittedDate.UTC(),
			AuthorIsBot:    g.isBot("", c.AuthorEmail, c.AuthorName),
		}
		if row.Message == "" {
			row.Message = c.Title
		}
		if c.Stats != nil {
			row.Additions = c.Stats.Additions
			row.Deletions = c.Stats.Deletions
		}
		if g.opts.CheckSignatures {
			if row.Signed, err = g.api.CommitSigned(ctx, p.ID, c.ID); err != nil {
				return nil, err
			}
		}
		out = append(out, row)
	}
	return out, nil
}

// Pipelines lists pipelines updated since the bound, reading each detail for timings
func (g *GitLab) Pipelines(ctx context.Context, p domain.Project, since time.Time) ([]domain.RawPipeline, error) {
	ps, err := g.api.ListPipelines(ctx, p.ID, since)
	if err != nil {
		return nil, err
	}
	out := make([]domain.RawPipeline, 0, len(ps))
	for _, item := range ps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		d, err := g.api.GetPipeline(ctx, p.ID, item.ID)
		if err != nil {
			return nil, err
		}
		row := domain.RawPipeline{
			ProjectID:       p.ID,
			ID:              d.ID,
			Ref:             d.Ref,
			SHA:             d.SHA,
			Tag:             d.Tag,
			Status:          d.Status,
			Source:          d.Source,
			DefaultBranch:   !d.Tag && d.Ref == p.DefaultBranch,
			CreatedAt:       d.CreatedAt.UTC(),
			UpdatedAt:       d.UpdatedAt.UTC(),
			StartedAt:       ptime.UTC(d.StartedAt),
			FinishedAt:      ptime.UTC(d.FinishedAt),
			DurationS:       seconds(d.Duration),
			QueuedDurationS: seconds(d.QueuedDuration),
		}
		if d.User != nil {
			row.UserUsername = d.User.Username
		}
		if g.opts.PipelineJobs {
			if row.Jobs, err = g.jobs(ctx, p, d.ID); err != nil {
				return nil, err
			}
		}
		out = append(out, row)
	}
	return out, nil
}

func (g *GitLab) jobs(ctx context.Context, p domain.Project, pipelineID int64) ([]domain.RawJob, error) {
	js, err := g.api.ListPipelineJobs(ctx, p.ID, pipelineID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.RawJob, 0, len(js))
	for _, j := range js {
		stage := j.Stage
		if stage == "" {
			stage = "unknown"
		}
		out = append(out, domain.RawJob{
			ProjectID:       p.ID,
			ID:              j.ID,
			PipelineID:      pipelineID,
			Name:            j.Name,
			Stage:           stage,
			Status:          strings.ToLower(j.Status),
			AllowFailure:    j.AllowFailure,
			CreatedAt:       j.CreatedAt.UTC(),
			StartedAt:       ptime.UTC(j.StartedAt),
			FinishedAt:      ptime.UTC(j.FinishedAt),
			DurationS:       jobSeconds(j.Duration, j.StartedAt, j.FinishedAt),
			QueuedDurationS: jobSeconds(j.QueuedDuration, &j.CreatedAt, j.StartedAt),
		})
	}
	return out, nil
}

// jobSeconds prefers the reported value and falls back to the span between two stamps
func jobSeconds(reported *float64, from, to *time.Time) *int {
	if reported != nil {
		return seconds(reported)
	}
	if from == nil || to == nil || from.IsZero() || to.Before(*from) {
		return nil
	}
	d := to.Sub(*from).Seconds()
	return seconds(&d)
}

func seconds(f *float64) *int {
	if f == nil {
		return nil
	}
	v := int(*f + 0.5)
	return &v
}

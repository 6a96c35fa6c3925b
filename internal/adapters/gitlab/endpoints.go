package gitlab

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	perr "devflow/internal/platform/errors"
)

func stamp(t time.Time) string { return t.UTC().Format(time.RFC3339) }

func projectQuery() url.Values {
	q := url.Values{}
	q.Set("archived", "false")
	q.Set("simple", "false")
	q.Set("order_by", "id")
	q.Set("sort", "asc")
	return q
}

// ListProjects returns every non archived project the token is a member of
func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	q := projectQuery()
	q.Set("membership", "true")
	return list[Project](ctx, c, "/projects", q)
}

// WalkProjects pages through the member projects, or the projects of groupPath when
// it is set, handing each page to fn as it arrives
func (c *Client) WalkProjects(ctx context.Context, groupPath string, fn func([]Project) error) error {
	q := projectQuery()
	groupPath = strings.Trim(strings.TrimSpace(groupPath), "/")
	if groupPath == "" {
		q.Set("membership", "true")
		return pages(ctx, c, "/projects", q, fn)
	}
	q.Set("include_subgroups", "true")
	return pages(ctx, c, "/groups/"+url.PathEscape(groupPath)+"/projects", q, fn)
}

// ListMergeRequests returns MRs in a project updated after the given time
func (c *Client) ListMergeRequests(ctx context.Context, projectID int64, updatedAfter time.Time) ([]MergeRequest, error) {
	q := url.Values{}
	q.Set("state", "all")
	q.Set("scope", "all")
	q.Set("order_by", "updated_at")
	q.Set("sort", "asc")
	q.Set("updated_after", stamp(updatedAfter))
	return list[MergeRequest](ctx, c, fmt.Sprintf("/projects/%d/merge_requests", projectID), q)
}

// ListCommits returns commits across all branches since the given time, with line stats
func (c *Client) ListCommits(ctx context.Context, projectID int64, since time.Time) ([]Commit, error) {
	q := url.Values{}
	q.Set("since", stamp(since))
	q.Set("all", "true")
	q.Set("with_stats", "true")
	return list[Commit](ctx, c, fmt.Sprintf("/projects/%d/repository/commits", projectID), q)
}

// ListPipelines returns pipelines updated after the given time in list form
func (c *Client) ListPipelines(ctx context.Context, projectID int64, updatedAfter time.Time) ([]Pipeline, error) {
	q := url.Values{}
	q.Set("updated_after", stamp(updatedAfter))
	q.Set("order_by", "id")
	q.Set("sort", "asc")
	return list[Pipeline](ctx, c, fmt.Sprintf("/projects/%d/pipelines", projectID), q)
}

// GetPipeline returns the detail form with timings, tag flag and user
func (c *Client) GetPipeline(ctx context.Context, projectID, pipelineID int64) (Pipeline, error) {
	var p Pipeline
	_, err := c.get(ctx, fmt.Sprintf("/projects/%d/pipelines/%d", projectID, pipelineID), nil, &p)
	return p, err
}

// GetUser fetches a user, served from the LRU cache when seen before
func (c *Client) GetUser(ctx context.Context, id int64) (User, error) {
	if v, ok := c.users.Get(id); ok {
		return v.(User), nil
	}
	var u User
	if _, err := c.get(ctx, "/users/"+strconv.FormatInt(id, 10), nil, &u); err != nil {
		return User{}, err
	}
	c.users.Add(id, u)
	return u, nil
}

// ListUserEvents returns a user's contribution events in [after, before]
// GitLab filters these by calendar date
func (c *Client) ListUserEvents(ctx context.Context, userID int64, after, before time.Time) ([]Event, error) {
	q := url.Values{}
	q.Set("after", after.UTC().AddDate(0, 0, -1).Format(time.DateOnly))
	q.Set("before", before.UTC().AddDate(0, 0, 1).Format(time.DateOnly))
	q.Set("sort", "asc")
	return list[Event](ctx, c, fmt.Sprintf("/users/%d/events", userID), q)
}

// GetMergeRequestApprovals returns the approval state of one MR
func (c *Client) GetMergeRequestApprovals(ctx context.Context, projectID, iid int64) (Approvals, error) {
	var a Approvals
	_, err := c.get(ctx, fmt.Sprintf("/projects/%d/merge_requests/%d/approvals", projectID, iid), nil, &a)
	return a, err
}

// GetMergeRequestChanges returns the file diffs of one MR
func (c *Client) GetMergeRequestChanges(ctx context.Context, projectID, iid int64) (Changes, error) {
	var ch Changes
	_, err := c.get(ctx, fmt.Sprintf("/projects/%d/merge_requests/%d/changes", projectID, iid), nil, &ch)
	return ch, err
}

// ListMergeRequestNotes returns all notes of one MR, oldest first
func (c *Client) ListMergeRequestNotes(ctx context.Context, projectID, iid int64) ([]Note, error) {
	q := url.Values{}
	q.Set("sort", "asc")
	q.Set("order_by", "created_at")
	return list[Note](ctx, c, fmt.Sprintf("/projects/%d/merge_requests/%d/notes", projectID, iid), q)
}

// ListMergeRequestCommits returns the commits of one MR
func (c *Client) ListMergeRequestCommits(ctx context.Context, projectID, iid int64) ([]Commit, error) {
	return list[Commit](ctx, c, fmt.Sprintf("/projects/%d/merge_requests/%d/commits", projectID, iid), nil)
}

// ListPipelineJobs returns every job of one pipeline, retried jobs included
func (c *Client) ListPipelineJobs(ctx context.Context, projectID, pipelineID int64) ([]Job, error) {
	q := url.Values{}
	q.Set("include_retried", "true")
	return list[Job](ctx, c, fmt.Sprintf("/projects/%d/pipelines/%d/jobs", projectID, pipelineID), q)
}

// ListBranches returns the repository branches of a project
func (c *Client) ListBranches(ctx context.Context, projectID int64) ([]Branch, error) {
	return list[Branch](ctx, c, fmt.Sprintf("/projects/%d/repository/branches", projectID), nil)
}

// ListMilestones returns the milestones of a project
func (c *Client) ListMilestones(ctx context.Context, projectID int64) ([]Milestone, error) {
	return list[Milestone](ctx, c, fmt.Sprintf("/projects/%d/milestones", projectID), nil)
}

// CommitSigned reports whether a commit carries a signature; GitLab answers 404 for unsigned commits
func (c *Client) CommitSigned(ctx context.Context, projectID int64, sha string) (bool, error) {
	var s Signature
	_, err := c.get(ctx, fmt.Sprintf("/projects/%d/repository/commits/%s/signature", projectID, url.PathEscape(sha)), nil, &s)
	if perr.IsCode(err, perr.ErrorCodeNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return s.SignatureType != "", nil
}

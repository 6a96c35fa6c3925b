package gitlab

import "time"

// Project is a partial GitLab project document
type Project struct {
	ID                int64      `json:"id"`
	PathWithNamespace string     `json:"path_with_namespace"`
	DefaultBranch     string     `json:"default_branch"`
	Archived          bool       `json:"archived"`
	WebURL            string     `json:"web_url"`
	LastActivityAt    *time.Time `json:"last_activity_at"`
}

// UserRef is the user stub embedded in other documents
type UserRef struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

// User is a partial GitLab user document
type User struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	Name        string `json:"name"`
	State       string `json:"state"`
	Bot         bool   `json:"bot"`
	PublicEmail string `json:"public_email"`
}

// MergeRequest is a partial merge request document
type MergeRequest struct {
	ID           int64      `json:"id"`
	IID          int64      `json:"iid"`
	ProjectID    int64      `json:"project_id"`
	Title        string     `json:"title"`
	State        string     `json:"state"`
	Draft        bool       `json:"draft"`
	SourceBranch string     `json:"source_branch"`
	TargetBranch string     `json:"target_branch"`
	Author       UserRef    `json:"author"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	MergedAt     *time.Time `json:"merged_at"`
	ClosedAt     *time.Time `json:"closed_at"`
	WebURL       string     `json:"web_url"`
}

// CommitStats is the with_stats payload
type CommitStats struct {
	Additions int `json:"additions"`
	Deletions int `json:"deletions"`
	Total     int `json:"total"`
}

// Commit is a partial repository commit document
type Commit struct {
	ID             string       `json:"id"`
	ShortID        string       `json:"short_id"`
	Title          string       `json:"title"`
	Message        string       `json:"message"`
	AuthorName     string       `json:"author_name"`
	AuthorEmail    string       `json:"author_email"`
	CommitterEmail string       `json:"committer_email"`
	AuthoredDate   time.Time    `json:"authored_date"`
	CommittedDate  time.Time    `json:"committed_date"`
	CreatedAt      time.Time    `json:"created_at"`
	Stats          *CommitStats `json:"stats"`
}

// Pipeline is the list form of a pipeline; the detail form fills the rest
type Pipeline struct {
	ID             int64      `json:"id"`
	IID            int64      `json:"iid"`
	ProjectID      int64      `json:"project_id"`
	SHA            string     `json:"sha"`
	Ref            string     `json:"ref"`
	Status         string     `json:"status"`
	Source         string     `json:"source"`
	Tag            bool       `json:"tag"`
	User           *UserRef   `json:"user"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	StartedAt      *time.Time `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at"`
	Duration       *float64   `json:"duration"`
	QueuedDuration *float64   `json:"queued_duration"`
	WebURL         string     `json:"web_url"`
}

// Job is a partial pipeline job document
type Job struct {
	ID             int64      `json:"id"`
	Name           string     `json:"name"`
	Stage          string     `json:"stage"`
	Status         string     `json:"status"`
	Ref            string     `json:"ref"`
	AllowFailure   bool       `json:"allow_failure"`
	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      *time.Time `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at"`
	Duration       *float64   `json:"duration"`
	QueuedDuration *float64   `json:"queued_duration"`
}

// Approvals is the MR approval state
type Approvals struct {
	Approved   bool `json:"approved"`
	ApprovedBy []struct {
		User UserRef `json:"user"`
	} `json:"approved_by"`
}

// Change is one file diff of an MR
type Change struct {
	OldPath     string `json:"old_path"`
	NewPath     string `json:"new_path"`
	NewFile     bool   `json:"new_file"`
	DeletedFile bool   `json:"deleted_file"`
	Diff        string `json:"diff"`
}

// Changes is the MR changes document
type Changes struct {
	ChangesCount string   `json:"changes_count"`
	Changes      []Change `json:"changes"`
}

// Note is an MR comment or system note
type Note struct {
	ID        int64     `json:"id"`
	Body      string    `json:"body"`
	System    bool      `json:"system"`
	Author    UserRef   `json:"author"`
	CreatedAt time.Time `json:"created_at"`
}

// Event is a user contribution event
type Event struct {
	ID          int64     `json:"id"`
	ProjectID   int64     `json:"project_id"`
	ActionName  string    `json:"action_name"`
	TargetType  string    `json:"target_type"`
	TargetIID   int64     `json:"target_iid"`
	CreatedAt   time.Time `json:"created_at"`
	PushData    *PushData `json:"push_data"`
	AuthorID    int64     `json:"author_id"`
	AuthorLogin string    `json:"author_username"`
}

// PushData is attached to pushed events
type PushData struct {
	CommitCount int    `json:"commit_count"`
	Action      string `json:"action"`
	RefType     string `json:"ref_type"`
	Ref         string `json:"ref"`
}

// Branch is a repository branch
type Branch struct {
	Name      string `json:"name"`
	Merged    bool   `json:"merged"`
	Protected bool   `json:"protected"`
	Default   bool   `json:"default"`
	Commit    struct {
		ID            string    `json:"id"`
		CommittedDate time.Time `json:"committed_date"`
	} `json:"commit"`
}

// Milestone is a project milestone
type Milestone struct {
	ID        int64      `json:"id"`
	IID       int64      `json:"iid"`
	Title     string     `json:"title"`
	State     string     `json:"state"`
	DueDate   string     `json:"due_date"`
	StartDate string     `json:"start_date"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
}

// Signature is the commit signature document; 404 when unsigned
type Signature struct {
	SignatureType      string `json:"signature_type"`
	VerificationStatus string `json:"verification_status"`
}

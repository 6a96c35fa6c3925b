package devmetrics

import (
	"regexp"
	"strconv"

	"devflow/internal/platform/logger"
)

// Title and message heuristics; approximate by nature and pinned in tests
var (
	DefaultWIPPatterns     = []string{`^\s*(\[(draft|wip)\]|\((draft|wip)\)|(draft|wip)\s*:)`}
	DefaultReworkPatterns  = []string{`\bfix(es|ed|up)?\b`, `\brework(ed)?\b`, `\baddress(es|ed)? (review|feedback|comments?)\b`, `\breview (feedback|comments?)\b`, `^(fixup|squash)!`}
	DefaultRevertPatterns  = []string{`^\s*revert\b`, `\breverts? (commit|merge request|"|!)`}
	DefaultHotfixPatterns  = []string{`\bhot-?fix(es)?\b`}
	DefaultCommitExclusion = []string{`^Merge (branch|remote-tracking branch|pull request) `}
)

// RuleConfig is the uncompiled form read from configuration
type RuleConfig struct {
	CommitExclude  []string
	BranchExclude  []string
	FileExclude    []string
	ProjectInclude []string
	ProjectExclude []string

	WIP    []string
	Rework []string
	Revert []string
	Hotfix []string
}

// Rules is the compiled, immutable regex set shared by every computation
type Rules struct {
	CommitExclude []*regexp.Regexp
	BranchExclude []*regexp.Regexp
	// FileExclude is carried for the catalog and export; file paths are not stored per row
	FileExclude []*regexp.Regexp

	ProjectInclude ProjectRules
	ProjectExclude ProjectRules

	WIP    []*regexp.Regexp
	Rework []*regexp.Regexp
	Revert []*regexp.Regexp
	Hotfix []*regexp.Regexp
}

// ProjectRules matches projects by numeric id or by path regex
type ProjectRules struct {
	IDs   map[int64]bool
	Paths []*regexp.Regexp
}

// Empty reports whether no rule is configured
func (p ProjectRules) Empty() bool { return len(p.IDs) == 0 && len(p.Paths) == 0 }

// Match reports whether the project matches any rule
func (p ProjectRules) Match(id int64, path string) bool {
	if p.IDs[id] {
		return true
	}
	return path != "" && anyMatch(p.Paths, path)
}

// Compile builds Rules; patterns that fail to compile are logged and dropped.
// Heuristic lists fall back to the defaults when empty
func Compile(c RuleConfig) Rules {
	log := logger.Named("devmetrics")
	comp := func(kind string, ps []string, def []string, fold bool) []*regexp.Regexp {
		if len(ps) == 0 {
			ps = def
		}
		out := make([]*regexp.Regexp, 0, len(ps))
		for _, p := range ps {
			src := p
			if fold {
				src = "(?i)" + p
			}
			rx, err := regexp.Compile(src)
			if err != nil {
				log.Warn().Err(err).Str("kind", kind).Str("pattern", p).Msg("dropping invalid pattern")
				continue
			}
			out = append(out, rx)
		}
		return out
	}
	projects := func(kind string, ps []string) ProjectRules {
		pr := ProjectRules{IDs: map[int64]bool{}}
		var paths []string
		for _, p := range ps {
			if id, err := strconv.ParseInt(p, 10, 64); err == nil {
				pr.IDs[id] = true
				continue
			}
			paths = append(paths, p)
		}
		if len(paths) > 0 {
			pr.Paths = comp(kind, paths, nil, true)
		}
		return pr
	}

	return Rules{
		CommitExclude:  comp("commit_exclude", c.CommitExclude, nil, false),
		BranchExclude:  comp("branch_exclude", c.BranchExclude, nil, false),
		FileExclude:    comp("file_exclude", c.FileExclude, nil, false),
		ProjectInclude: projects("project_include", c.ProjectInclude),
		ProjectExclude: projects("project_exclude", c.ProjectExclude),
		WIP:            comp("wip", c.WIP, DefaultWIPPatterns, true),
		Rework:         comp("rework", c.Rework, DefaultReworkPatterns, true),
		Revert:         comp("revert", c.Revert, DefaultRevertPatterns, true),
		Hotfix:         comp("hotfix", c.Hotfix, DefaultHotfixPatterns, true),
	}
}

// ScopeProjects narrows candidate projects by the include and exclude rules.
// An empty include list admits everything; excludes always win
func (r Rules) ScopeProjects(candidates map[int64]string) []int64 {
	out := make([]int64, 0, len(candidates))
	for id, path := range candidates {
		if !r.ProjectInclude.Empty() && !r.ProjectInclude.Match(id, path) {
			continue
		}
		if r.ProjectExclude.Match(id, path) {
			continue
		}
		out = append(out, id)
	}
	return out
}

// ExcludeCommit reports whether a commit message matches an exclusion pattern
func (r Rules) ExcludeCommit(c Commit) bool { return anyMatch(r.CommitExclude, c.Message) }

// ExcludeMergeRequest reports whether either branch matches an exclusion pattern
func (r Rules) ExcludeMergeRequest(m MergeRequest) bool {
	return anyMatch(r.BranchExclude, m.SourceBranch) || anyMatch(r.BranchExclude, m.TargetBranch)
}

// IsWIP applies the draft title heuristic
func (r Rules) IsWIP(m MergeRequest) bool { return anyMatch(r.WIP, m.Title) }

// IsRework applies the rework message heuristic
func (r Rules) IsRework(msg string) bool { return anyMatch(r.Rework, msg) }

// IsRevert applies the revert title heuristic
func (r Rules) IsRevert(m MergeRequest) bool { return anyMatch(r.Revert, m.Title) }

// IsHotfix matches the title or the source branch
func (r Rules) IsHotfix(m MergeRequest) bool {
	return anyMatch(r.Hotfix, m.Title) || anyMatch(r.Hotfix, m.SourceBranch)
}

func anyMatch(rxs []*regexp.Regexp, s string) bool {
	if s == "" {
		return false
	}
	for _, rx := range rxs {
		if rx.MatchString(s) {
			return true
		}
	}
	return false
}

package index

import (
	"encoding/json"
	"time"
)

// SourceType identifies the adapter kind a Source is crawled with.
type SourceType string

// Supported source types. The set is closed; adapters register one constructor per value.
const (
	SourceTypeGitHub           SourceType = "github"
	SourceTypeNPM              SourceType = "npm"
	SourceTypeAwesomeList      SourceType = "awesome-list"
	SourceTypeCustomURL        SourceType = "custom-url"
	SourceTypeOfficialRegistry SourceType = "official-registry"
	SourceTypeRegistryJSON     SourceType = "registry-json"
)

// JobStatus represents the lifecycle state of a crawl job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether no further transition is allowed out of s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Entry is one indexed server, keyed by Slug.
type Entry struct {
	ID              string         `json:"id"`
	Slug            string         `json:"slug"`
	Name            string         `json:"name"`
	Description     string         `json:"description,omitempty"`
	RepositoryURL   string         `json:"repository_url,omitempty"`
	Package         string         `json:"package,omitempty"`
	Homepage        string         `json:"homepage,omitempty"`
	Author          string         `json:"author,omitempty"`
	License         string         `json:"license,omitempty"`
	Version         string         `json:"version,omitempty"`
	InstallCommand  string         `json:"install_command,omitempty"`
	Stars           int            `json:"stars"`
	WeeklyDownloads int            `json:"weekly_downloads"`
	IsOfficial      bool           `json:"is_official"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	QualityScore    int            `json:"quality_score"`
	LastCrawledAt   time.Time      `json:"last_crawled_at"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// Tool is a callable capability advertised by an entry.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// Resource is a readable capability advertised by an entry.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mime_type,omitempty"`
}

// Prompt is a prompt template advertised by an entry.
type Prompt struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Arguments   json.RawMessage `json:"arguments,omitempty"`
}

// Capabilities groups the child collections of an entry.
//
// A nil slice means the producer had no data for that kind and the stored
// collection must be left alone. A non-nil slice, even an empty one, replaces
// the stored collection entirely.
type Capabilities struct {
	Tools     []Tool     `json:"tools,omitempty"`
	Resources []Resource `json:"resources,omitempty"`
	Prompts   []Prompt   `json:"prompts,omitempty"`
}

// Supplied reports whether any kind carries data to reconcile.
func (c Capabilities) Supplied() bool {
	return c.Tools != nil || c.Resources != nil || c.Prompts != nil
}

// Candidate is one normalized record yielded by an adapter.
type Candidate struct {
	Entry        Entry
	Capabilities Capabilities
}

// ScoringInput is an entry together with the capability counts the scorer needs.
type ScoringInput struct {
	Entry         Entry
	ToolCount     int
	ResourceCount int
	PromptCount   int
}

// Source is a named, typed and schedulable crawl configuration.
type Source struct {
	ID        string         `json:"id" yaml:"-"`
	Name      string         `json:"name" yaml:"name"`
	Type      SourceType     `json:"type" yaml:"type"`
	Enabled   bool           `json:"enabled" yaml:"enabled"`
	Schedule  string         `json:"schedule,omitempty" yaml:"schedule"`
	Config    map[string]any `json:"config,omitempty" yaml:"config"`
	LastRunAt *time.Time     `json:"last_run_at,omitempty" yaml:"-"`
}

// Stats summarises one ingestion run.
type Stats struct {
	Found   int      `json:"found"`
	Added   int      `json:"added"`
	Updated int      `json:"updated"`
	Errors  []string `json:"errors,omitempty"`
}

// Job is one execution attempt of a Source.
type Job struct {
	ID          string     `json:"id"`
	SourceID    string     `json:"source_id"`
	SourceName  string     `json:"source_name"`
	Status      JobStatus  `json:"status"`
	Found       int        `json:"servers_found"`
	Added       int        `json:"servers_added"`
	Updated     int        `json:"servers_updated"`
	Errors      []string   `json:"errors,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// CrawlCompleted is the event emitted after a successful crawl.
type CrawlCompleted struct {
	JobID       string    `json:"job_id"`
	Source      string    `json:"source"`
	Found       int       `json:"found"`
	Added       int       `json:"added"`
	Updated     int       `json:"updated"`
	Errors      []string  `json:"errors,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

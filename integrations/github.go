package integrations

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"kanflow/domain"
)

const githubAPI = "https://api.github.com"

// GitHub imports the issues of one repository.
type GitHub struct {
	repo    string
	token   string
	baseURL string
	hc      *http.Client
}

// NewGitHub creates a provider for repo given as "owner/name".
func NewGitHub(repo, token, baseURL string, hc *http.Client) *GitHub {
	if baseURL == "" {
		baseURL = githubAPI
	}
	if hc == nil {
		hc = newHTTPClient()
	}
	return &GitHub{repo: repo, token: token, baseURL: strings.TrimRight(baseURL, "/"), hc: hc}
}

func (g *GitHub) Name() string { return "github:" + g.repo }
func (g *GitHub) Kind() string { return KindGitHub }

type githubIssue struct {
	Number    int    `json:"number"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	State     string `json:"state"`
	HTMLURL   string `json:"html_url"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
	Labels    []struct {
		Name string `json:"name"`
	} `json:"labels"`
	Assignee *struct {
		Login string `json:"login"`
	} `json:"assignee"`
	PullRequest *struct{} `json:"pull_request"`
}

func (g *GitHub) FetchTasks(ctx context.Context) ([]domain.Task, error) {
	url := fmt.Sprintf("%s/repos/%s/issues?state=all&per_page=50", g.baseURL, g.repo)
	headers := map[string]string{
		"Accept":               "application/vnd.github+json",
		"X-GitHub-Api-Version": "2022-11-28",
	}
	if g.token != "" {
		headers["Authorization"] = "Bearer " + g.token
	}
	var issues []githubIssue
	if err := getJSON(ctx, g.hc, url, headers, &issues); err != nil {
		return nil, fmt.Errorf("github %s: %w", g.repo, err)
	}
	tasks := make([]domain.Task, 0, len(issues))
	for _, is := range issues {
		if is.PullRequest != nil {
			continue
		}
		tasks = append(tasks, g.issueToTask(is))
	}
	return tasks, nil
}

func (g *GitHub) issueToTask(is githubIssue) domain.Task {
	t := domain.Task{
		ID:          domain.ExternalID(KindGitHub, g.repo+"#"+strconv.Itoa(is.Number)),
		Title:       is.Title,
		Description: is.Body,
		Status:      domain.StatusTodo,
		Priority:    domain.PriorityMedium,
		Source:      KindGitHub,
		URL:         is.HTMLURL,
		CreatedAt:   parseTime(is.CreatedAt),
		UpdatedAt:   parseTime(is.UpdatedAt),
	}
	if is.State == "closed" {
		t.Status = domain.StatusDone
	}
	if is.Assignee != nil {
		t.Assignee = is.Assignee.Login
	}
	for _, l := range is.Labels {
		t.Labels = append(t.Labels, l.Name)
	}
	return t
}

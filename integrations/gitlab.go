package integrations

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"kanflow/domain"
)

const gitlabAPI = "https://gitlab.com"

// GitLab imports the issues of one project.
type GitLab struct {
	project string
	token   string
	baseURL string
	hc      *http.Client
}

// NewGitLab creates a provider for project given as "group/name".
func NewGitLab(project, token, baseURL string, hc *http.Client) *GitLab {
	if baseURL == "" {
		baseURL = gitlabAPI
	}
	if hc == nil {
		hc = newHTTPClient()
	}
	return &GitLab{project: project, token: token, baseURL: strings.TrimRight(baseURL, "/"), hc: hc}
}

func (g *GitLab) Name() string { return "gitlab:" + g.project }
func (g *GitLab) Kind() string { return KindGitLab }

type gitlabIssue struct {
	IID         int      `json:"iid"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	State       string   `json:"state"`
	WebURL      string   `json:"web_url"`
	Labels      []string `json:"labels"`
	DueDate     string   `json:"due_date"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
	Assignee    *struct {
		Username string `json:"username"`
	} `json:"assignee"`
}

func (g *GitLab) FetchTasks(ctx context.Context) ([]domain.Task, error) {
	endpoint := fmt.Sprintf("%s/api/v4/projects/%s/issues?per_page=50", g.baseURL, url.PathEscape(g.project))
	headers := map[string]string{}
	if g.token != "" {
		headers["PRIVATE-TOKEN"] = g.token
	}
	var issues []gitlabIssue
	if err := getJSON(ctx, g.hc, endpoint, headers, &issues); err != nil {
		return nil, fmt.Errorf("gitlab %s: %w", g.project, err)
	}
	tasks := make([]domain.Task, 0, len(issues))
	for _, is := range issues {
		t := domain.Task{
			ID:          domain.ExternalID(KindGitLab, g.project+"#"+strconv.Itoa(is.IID)),
			Title:       is.Title,
			Description: is.Description,
			Status:      domain.StatusTodo,
			Priority:    domain.PriorityMedium,
			Labels:      is.Labels,
			Source:      KindGitLab,
			URL:         is.WebURL,
			CreatedAt:   parseTime(is.CreatedAt),
			UpdatedAt:   parseTime(is.UpdatedAt),
		}
		if is.State == "closed" {
			t.Status = domain.StatusDone
		}
		if is.Assignee != nil {
			t.Assignee = is.Assignee.Username
		}
		if due, err := time.Parse(time.DateOnly, is.DueDate); err == nil {
			t.DueDate = &due
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

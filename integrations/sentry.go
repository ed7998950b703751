package integrations

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"kanflow/domain"
)

const sentryAPI = "https://sentry.io"

// Sentry imports the issues of one project.
type Sentry struct {
	org     string
	project string
	token   string
	baseURL string
	hc      *http.Client
}

func NewSentry(org, project, token, baseURL string, hc *http.Client) *Sentry {
	if baseURL == "" {
		baseURL = sentryAPI
	}
	if hc == nil {
		hc = newHTTPClient()
	}
	return &Sentry{org: org, project: project, token: token, baseURL: strings.TrimRight(baseURL, "/"), hc: hc}
}

func (s *Sentry) Name() string { return "sentry:" + s.org + "/" + s.project }
func (s *Sentry) Kind() string { return KindSentry }

type sentryIssue struct {
	ID        string `json:"id"`
	ShortID   string `json:"shortId"`
	Title     string `json:"title"`
	Culprit   string `json:"culprit"`
	Permalink string `json:"permalink"`
	Status    string `json:"status"`
	Level     string `json:"level"`
	FirstSeen string `json:"firstSeen"`
	LastSeen  string `json:"lastSeen"`
}

func (s *Sentry) FetchTasks(ctx context.Context) ([]domain.Task, error) {
	url := fmt.Sprintf("%s/api/0/projects/%s/%s/issues/", s.baseURL, s.org, s.project)
	headers := map[string]string{}
	if s.token != "" {
		headers["Authorization"] = "Bearer " + s.token
	}
	var issues []sentryIssue
	if err := getJSON(ctx, s.hc, url, headers, &issues); err != nil {
		return nil, fmt.Errorf("sentry %s/%s: %w", s.org, s.project, err)
	}
	tasks := make([]domain.Task, 0, len(issues))
	for _, is := range issues {
		ref := is.ShortID
		if ref == "" {
			ref = is.ID
		}
		t := domain.Task{
			ID:          domain.ExternalID(KindSentry, ref),
			Title:       is.Title,
			Description: is.Culprit,
			Status:      domain.StatusTodo,
			Priority:    sentryPriority(is.Level),
			Labels:      []string{is.Level},
			Source:      KindSentry,
			URL:         is.Permalink,
			CreatedAt:   parseTime(is.FirstSeen),
			UpdatedAt:   parseTime(is.LastSeen),
		}
		if is.Level == "" {
			t.Labels = nil
		}
		if is.Status == "resolved" {
			t.Status = domain.StatusDone
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func sentryPriority(level string) domain.Priority {
	switch level {
	case "fatal", "error":
		return domain.PriorityHigh
	case "warning":
		return domain.PriorityMedium
	default:
		return domain.PriorityLow
	}
}

package tasks

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/jrsteele09/go-task-client/api"
	"github.com/jrsteele09/go-task-client/internal/utils"
	"github.com/pkg/errors"
)

const basePath = "/tasks"

// Stats is the server's task summary. Its shape is owned by the server.
type Stats map[string]any

type bulkUpdateRequest struct {
	TaskIDs    []string      `json:"taskIds"`
	UpdateData UpdateRequest `json:"updateData"`
}

type bulkDeleteRequest struct {
	TaskIDs []string `json:"taskIds"`
}

type Repository struct {
	client *api.Client
}

// NewRepository expects a client built on the authenticated HTTP transport.
func NewRepository(client *api.Client) *Repository {
	return &Repository{client: client}
}

func (r *Repository) List(ctx context.Context, filter Filter) (*Page, error) {
	return r.list(ctx, basePath, filter.Query())
}

func (r *Repository) Get(ctx context.Context, id string) (*Task, error) {
	var t Task
	if err := r.client.Call(ctx, http.MethodGet, taskPath(id), nil, nil, &t); err != nil {
		return nil, errors.Wrapf(err, "[Repository.Get] task %s", id)
	}
	return &t, nil
}

func (r *Repository) Create(ctx context.Context, req CreateRequest) (*Task, error) {
	var t Task
	if err := r.client.Call(ctx, http.MethodPost, basePath, nil, req, &t); err != nil {
		return nil, errors.Wrap(err, "[Repository.Create]")
	}
	return &t, nil
}

func (r *Repository) Update(ctx context.Context, id string, req UpdateRequest) (*Task, error) {
	var t Task
	if err := r.client.Call(ctx, http.MethodPatch, taskPath(id), nil, req, &t); err != nil {
		return nil, errors.Wrapf(err, "[Repository.Update] task %s", id)
	}
	return &t, nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	_, err := r.client.Do(ctx, http.MethodDelete, taskPath(id), nil, nil)
	return errors.Wrapf(err, "[Repository.Delete] task %s", id)
}

func (r *Repository) BulkUpdate(ctx context.Context, ids []string, req UpdateRequest) error {
	_, err := r.client.Do(ctx, http.MethodPut, basePath+"/bulk-update", nil, bulkUpdateRequest{TaskIDs: ids, UpdateData: req})
	return errors.Wrap(err, "[Repository.BulkUpdate]")
}

func (r *Repository) BulkDelete(ctx context.Context, ids []string) error {
	_, err := r.client.Do(ctx, http.MethodDelete, basePath+"/bulk-delete", nil, bulkDeleteRequest{TaskIDs: ids})
	return errors.Wrap(err, "[Repository.BulkDelete]")
}

func (r *Repository) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	if err := r.client.Call(ctx, http.MethodGet, basePath+"/stats", nil, nil, &s); err != nil {
		return nil, errors.Wrap(err, "[Repository.Stats]")
	}
	return s, nil
}

func (r *Repository) Overdue(ctx context.Context) (*Page, error) {
	return r.list(ctx, basePath+"/overdue", nil)
}

func (r *Repository) DueThisWeek(ctx context.Context) (*Page, error) {
	return r.list(ctx, basePath+"/due-this-week", nil)
}

func (r *Repository) Search(ctx context.Context, query string) (*Page, error) {
	return r.list(ctx, basePath+"/search", url.Values{"search": {query}})
}

func (r *Repository) MarkCompleted(ctx context.Context, id string) (*Task, error) {
	return r.Update(ctx, id, UpdateRequest{Status: utils.Ptr(StatusCompleted)})
}

func (r *Repository) MarkInProgress(ctx context.Context, id string) (*Task, error) {
	return r.Update(ctx, id, UpdateRequest{Status: utils.Ptr(StatusInProgress)})
}

func (r *Repository) MarkPending(ctx context.Context, id string) (*Task, error) {
	return r.Update(ctx, id, UpdateRequest{Status: utils.Ptr(StatusPending)})
}

func (r *Repository) list(ctx context.Context, path string, query url.Values) (*Page, error) {
	env, err := r.client.Do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "[Repository.list] %s", path)
	}

	page := &Page{}
	if err := api.DecodeData(env, &page.Tasks); err != nil {
		return nil, errors.Wrapf(err, "[Repository.list] %s", path)
	}
	if len(env.Pagination) > 0 {
		if err := json.Unmarshal(env.Pagination, &page.Pagination); err != nil {
			return nil, errors.Wrapf(err, "[Repository.list] %s pagination", path)
		}
	}
	return page, nil
}

func taskPath(id string) string {
	return basePath + "/" + url.PathEscape(id)
}

package firecrest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"hpcgateway/internal/remote"
)

// Submit implements remote.Client for a batch script already on the cluster.
func (c *Client) Submit(ctx context.Context, machine, scriptPath string) (jobID string, err error) {
	ctx, finish := c.begin(ctx, remote.OpSubmit, machine)
	defer func() { err = finish(err) }()

	form := url.Values{"targetPath": {scriptPath}}
	taskID, err := c.startTask(ctx, request{
		op:          remote.OpSubmit,
		method:      http.MethodPost,
		endpoint:    "/compute/jobs/path",
		machine:     machine,
		body:        strings.NewReader(form.Encode()),
		contentType: formContentType,
		want:        []int{http.StatusCreated},
	})
	if err != nil {
		return "", err
	}

	data, err := c.waitTask(ctx, remote.OpSubmit, taskID)
	if err != nil {
		return "", err
	}

	var result struct {
		JobID any `json:"jobid"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", opError(remote.OpSubmit, "malformed submission result", err)
	}
	id, ok := idString(result.JobID)
	if !ok {
		return "", opError(remote.OpSubmit, "submission result has no job id", nil)
	}
	return id, nil
}

// Cancel implements remote.Client.
func (c *Client) Cancel(ctx context.Context, machine, jobID string) (err error) {
	ctx, finish := c.begin(ctx, remote.OpCancel, machine)
	defer func() { err = finish(err) }()

	taskID, err := c.startTask(ctx, request{
		op:       remote.OpCancel,
		method:   http.MethodDelete,
		endpoint: "/compute/jobs/" + url.PathEscape(jobID),
		machine:  machine,
		want:     []int{http.StatusOK},
	})
	if err != nil {
		return err
	}

	_, err = c.waitTask(ctx, remote.OpCancel, taskID)
	return err
}

type jobInfo struct {
	JobID any    `json:"jobid"`
	State string `json:"state"`
}

// Poll implements remote.Client with a single accounting query for all ids.
func (c *Client) Poll(ctx context.Context, machine string, jobIDs []string) (statuses map[string]string, err error) {
	statuses = make(map[string]string, len(jobIDs))
	if len(jobIDs) == 0 {
		return statuses, nil
	}

	ctx, finish := c.begin(ctx, remote.OpPoll, machine)
	defer func() { err = finish(err) }()

	taskID, err := c.startTask(ctx, request{
		op:       remote.OpPoll,
		method:   http.MethodGet,
		endpoint: "/compute/acct",
		machine:  machine,
		query:    url.Values{"jobs": {strings.Join(jobIDs, ",")}},
		want:     []int{http.StatusOK},
	})
	if err != nil {
		return nil, err
	}

	data, err := c.waitTask(ctx, remote.OpPoll, taskID)
	if err != nil {
		return nil, err
	}

	infos, err := decodeJobInfos(data)
	if err != nil {
		return nil, opError(remote.OpPoll, "malformed accounting result", err)
	}
	for _, info := range infos {
		if id, ok := idString(info.JobID); ok {
			statuses[id] = info.State
		}
	}
	return statuses, nil
}

// decodeJobInfos accepts both shapes FirecREST uses for job listings:
// a JSON array or an object keyed by position.
func decodeJobInfos(data json.RawMessage) ([]jobInfo, error) {
	var list []jobInfo
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}

	var keyed map[string]jobInfo
	if err := json.Unmarshal(data, &keyed); err != nil {
		return nil, err
	}
	list = make([]jobInfo, 0, len(keyed))
	for _, info := range keyed {
		list = append(list, info)
	}
	return list, nil
}

// startTask issues a compute request and returns the id of the task that
// tracks it.
func (c *Client) startTask(ctx context.Context, r request) (string, error) {
	data, err := c.do(ctx, r)
	if err != nil {
		return "", err
	}

	var payload struct {
		TaskID string `json:"task_id"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || payload.TaskID == "" {
		return "", opError(r.op, "response carries no task id", err)
	}
	return payload.TaskID, nil
}

type task struct {
	Status      string          `json:"status"`
	Description string          `json:"description"`
	Data        json.RawMessage `json:"data"`
}

// waitTask polls /tasks/{id} until the task completes, fails, or ctx expires.
func (c *Client) waitTask(ctx context.Context, op, taskID string) (json.RawMessage, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		data, err := c.do(ctx, request{
			op:       op,
			method:   http.MethodGet,
			endpoint: "/tasks/" + url.PathEscape(taskID),
			want:     []int{http.StatusOK},
		})
		if err != nil {
			return nil, err
		}

		var payload struct {
			Task task `json:"task"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, opError(op, "malformed task status", err)
		}

		code, err := strconv.Atoi(payload.Task.Status)
		if err != nil {
			return nil, opError(op, fmt.Sprintf("unexpected task status %q", payload.Task.Status), nil)
		}
		switch {
		case code == 200:
			return payload.Task.Data, nil
		case code >= 400:
			return nil, opError(op, taskFailure(payload.Task), nil)
		}

		select {
		case <-ctx.Done():
			return nil, opError(op, fmt.Sprintf("task %s did not finish", taskID), ctx.Err())
		case <-ticker.C:
		}
	}
}

func taskFailure(t task) string {
	var text string
	if err := json.Unmarshal(t.Data, &text); err == nil && text != "" {
		return fmt.Sprintf("task failed (%s): %s", t.Status, text)
	}
	if t.Description != "" {
		return fmt.Sprintf("task failed (%s): %s", t.Status, t.Description)
	}
	return fmt.Sprintf("task failed (%s)", t.Status)
}

package firecrest

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"hpcgateway/internal/remote"
)

const formContentType = "application/x-www-form-urlencoded"

// Mkdir implements remote.Client. Parents are created, so repeating the call
// on an existing directory succeeds.
func (c *Client) Mkdir(ctx context.Context, machine, path string) (err error) {
	ctx, finish := c.begin(ctx, remote.OpMkdir, machine)
	defer func() { err = finish(err) }()

	form := url.Values{"targetPath": {path}, "p": {"true"}}
	_, err = c.do(ctx, request{
		op:          remote.OpMkdir,
		method:      http.MethodPost,
		endpoint:    "/utilities/mkdir",
		machine:     machine,
		body:        strings.NewReader(form.Encode()),
		contentType: formContentType,
		want:        []int{http.StatusCreated},
	})
	return err
}

// ListFiles implements remote.Client.
func (c *Client) ListFiles(ctx context.Context, machine, path string) (files []remote.FileInfo, err error) {
	ctx, finish := c.begin(ctx, remote.OpList, machine)
	defer func() { err = finish(err) }()

	data, err := c.do(ctx, request{
		op:       remote.OpList,
		method:   http.MethodGet,
		endpoint: "/utilities/ls",
		machine:  machine,
		query:    url.Values{"targetPath": {path}, "showhidden": {"false"}},
		want:     []int{http.StatusOK},
	})
	if err != nil {
		return nil, err
	}

	var payload struct {
		Output []remote.FileInfo `json:"output"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, opError(remote.OpList, "malformed listing", err)
	}
	return payload.Output, nil
}

// Upload implements remote.Client using a multipart form.
func (c *Client) Upload(ctx context.Context, machine, dir, filename string, data []byte) (err error) {
	ctx, finish := c.begin(ctx, remote.OpUpload, machine)
	defer func() { err = finish(err) }()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("targetPath", dir); err != nil {
		return opError(remote.OpUpload, "failed to encode form", err)
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return opError(remote.OpUpload, "failed to encode form", err)
	}
	if _, err := part.Write(data); err != nil {
		return opError(remote.OpUpload, "failed to encode form", err)
	}
	if err := mw.Close(); err != nil {
		return opError(remote.OpUpload, "failed to encode form", err)
	}

	_, err = c.do(ctx, request{
		op:          remote.OpUpload,
		method:      http.MethodPost,
		endpoint:    "/utilities/upload",
		machine:     machine,
		body:        &body,
		contentType: mw.FormDataContentType(),
		want:        []int{http.StatusCreated},
	})
	return err
}

// Download implements remote.Client. The whole file is buffered in memory.
func (c *Client) Download(ctx context.Context, machine, path string) (data []byte, err error) {
	ctx, finish := c.begin(ctx, remote.OpDownload, machine)
	defer func() { err = finish(err) }()

	return c.do(ctx, request{
		op:       remote.OpDownload,
		method:   http.MethodGet,
		endpoint: "/utilities/download",
		machine:  machine,
		query:    url.Values{"sourcePath": {path}},
		want:     []int{http.StatusOK},
	})
}

// Delete implements remote.Client.
func (c *Client) Delete(ctx context.Context, machine, path string) (err error) {
	ctx, finish := c.begin(ctx, remote.OpDelete, machine)
	defer func() { err = finish(err) }()

	form := url.Values{"targetPath": {path}}
	_, err = c.do(ctx, request{
		op:          remote.OpDelete,
		method:      http.MethodDelete,
		endpoint:    "/utilities/rm",
		machine:     machine,
		body:        strings.NewReader(form.Encode()),
		contentType: formContentType,
		want:        []int{http.StatusNoContent, http.StatusOK},
	})
	return err
}

package client

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
)

// Storage manages the project's files.
type Storage struct{ c *Client }

func (s *Storage) path(rest string) string {
	return "/storage/" + url.PathEscape(s.c.projectID) + rest
}

// Info reports usage against the project's quota.
func (s *Storage) Info(ctx context.Context) (StorageInfo, error) {
	var out StorageInfo
	err := s.c.doJSON(ctx, http.MethodGet, s.path(""), nil, nil, &out)
	return out, err
}

// SetQuota changes the project's quota in MB.
func (s *Storage) SetQuota(ctx context.Context, quotaMB int64) (StorageInfo, error) {
	var out StorageInfo
	err := s.c.doJSON(ctx, http.MethodPut, s.path("/quota"), nil, map[string]int64{"newQuotaMb": quotaMB}, &out)
	out.ProjectID = s.c.projectID
	return out, err
}

// UploadedFile describes a stored upload.
type UploadedFile struct {
	Name         string `json:"name"`
	OriginalName string `json:"originalName"`
	Size         int64  `json:"size"`
	MimeType     string `json:"mimetype"`
}

// Upload streams r as a multipart upload named filename.
func (s *Storage) Upload(ctx context.Context, filename string, r io.Reader) (UploadedFile, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", filename)
		if err == nil {
			_, err = io.Copy(part, r)
		}
		if err == nil {
			err = mw.Close()
		}
		_ = pw.CloseWithError(err)
	}()

	req, err := s.c.newRequest(ctx, http.MethodPost, s.path("/files"), nil, pr)
	if err != nil {
		_ = pr.Close()
		return UploadedFile{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	var out struct {
		File UploadedFile `json:"file"`
	}
	err = s.c.send(req, &out)
	_ = pr.Close()
	return out.File, err
}

// Files lists stored files.
func (s *Storage) Files(ctx context.Context) ([]FileInfo, error) {
	var out struct {
		Files []FileInfo `json:"files"`
	}
	err := s.c.doJSON(ctx, http.MethodGet, s.path("/files"), nil, nil, &out)
	return out.Files, err
}

// Download copies a stored file to w and returns the number of bytes written.
func (s *Storage) Download(ctx context.Context, name string, w io.Writer) (int64, error) {
	req, err := s.c.newRequest(ctx, http.MethodGet, s.path("/files/"+url.PathEscape(name)), nil, nil)
	if err != nil {
		return 0, err
	}
	resp, err := s.c.hc.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return 0, err
	}
	return io.Copy(w, resp.Body)
}

// Delete removes a stored file.
func (s *Storage) Delete(ctx context.Context, name string) error {
	return s.c.doJSON(ctx, http.MethodDelete, s.path("/files/"+url.PathEscape(name)), nil, nil, nil)
}

// Package github provides a ContentStore over the GitHub contents API. Files
// are committed to a branch of one repository and served through jsDelivr or
// raw.githubusercontent.com.
package github

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	gh "github.com/google/go-github/v66/github"

	"github.com/JakeFAU/site-cloner/internal/cdn"
	"github.com/JakeFAU/site-cloner/internal/cloner"
	"github.com/JakeFAU/site-cloner/internal/hash"
)

const rawMediaType = "application/vnd.github.raw"

// CDN values accepted by Config.CDN.
const (
	CDNJSDelivr = "jsdelivr"
	CDNRaw      = "raw"
)

// Config points the store at a repository branch.
type Config struct {
	Owner  string
	Repo   string
	Branch string
	Token  string
	// APIURL overrides https://api.github.com/ (GitHub Enterprise, tests).
	APIURL        string
	CDN           string
	PublicBaseURL string
	// Private controls the visibility of repositories created by EnsureContainer.
	Private bool
}

// ContentStore commits objects to a GitHub repository.
type ContentStore struct {
	cfg    Config
	client *gh.Client
	// The contents API rejects concurrent commits to one branch with 409.
	writeMu sync.Mutex
}

// New creates a GitHub-backed content store. A nil client gets a 30s timeout.
func New(httpClient *http.Client, cfg Config) (*ContentStore, error) {
	if cfg.Owner == "" || cfg.Repo == "" {
		return nil, fmt.Errorf("owner and repo are required")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("token is required")
	}
	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	if cfg.CDN == "" {
		cfg.CDN = CDNJSDelivr
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	client := gh.NewClient(httpClient).WithAuthToken(cfg.Token)
	if cfg.APIURL != "" {
		base, err := url.Parse(strings.TrimRight(cfg.APIURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("parse api url: %w", err)
		}
		client.BaseURL = base
	}
	return &ContentStore{cfg: cfg, client: client}, nil
}

// EnsureContainer checks the repository and creates it (initialized with a
// README so the branch exists) when allowed.
func (s *ContentStore) EnsureContainer(ctx context.Context, create bool) error {
	_, _, err := s.client.Repositories.Get(ctx, s.cfg.Owner, s.cfg.Repo)
	if err == nil {
		return nil
	}
	err = mapError(err)
	if !errors.Is(err, cloner.ErrObjectNotFound) {
		return fmt.Errorf("check repository %s/%s: %w", s.cfg.Owner, s.cfg.Repo, err)
	}
	if !create {
		return fmt.Errorf("repository %s/%s: %w", s.cfg.Owner, s.cfg.Repo, cloner.ErrContainerNotFound)
	}
	repo := &gh.Repository{
		Name:        gh.String(s.cfg.Repo),
		Description: gh.String("Cloned websites"),
		Private:     gh.Bool(s.cfg.Private),
		AutoInit:    gh.Bool(true),
	}
	if _, _, err := s.client.Repositories.Create(ctx, "", repo); err != nil {
		return fmt.Errorf("create repository %s/%s: %w", s.cfg.Owner, s.cfg.Repo, mapError(err))
	}
	return nil
}

// Put commits data at path. Content whose git blob SHA matches the existing
// file is not committed again.
func (s *ContentStore) Put(ctx context.Context, path, _ string, data []byte) (cloner.PutStatus, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	opts := &gh.RepositoryContentFileOptions{
		Message: gh.String("Add " + path),
		Content: data,
		Branch:  gh.String(s.cfg.Branch),
	}
	existing, err := s.stat(ctx, path)
	switch {
	case err == nil:
		if existing.GetSHA() == hash.GitBlobSHA1(data) {
			return cloner.PutUnchanged, nil
		}
		opts.Message = gh.String("Update " + path)
		opts.SHA = existing.SHA
		if _, _, err := s.client.Repositories.UpdateFile(ctx, s.cfg.Owner, s.cfg.Repo, path, opts); err != nil {
			return "", fmt.Errorf("put %s: %w", path, mapError(err))
		}
		return cloner.PutUpdated, nil
	case !errors.Is(err, cloner.ErrObjectNotFound):
		return "", fmt.Errorf("stat %s: %w", path, err)
	}

	if _, _, err := s.client.Repositories.CreateFile(ctx, s.cfg.Owner, s.cfg.Repo, path, opts); err != nil {
		return "", fmt.Errorf("put %s: %w", path, mapError(err))
	}
	return cloner.PutCreated, nil
}

// Get downloads the raw bytes of a file. The raw media type serves files of
// any size, unlike the base64 JSON form.
func (s *ContentStore) Get(ctx context.Context, path string) (cloner.Object, error) {
	endpoint := fmt.Sprintf("repos/%s/%s/contents/%s?ref=%s",
		url.PathEscape(s.cfg.Owner), url.PathEscape(s.cfg.Repo), cdn.EscapePath(path), url.QueryEscape(s.cfg.Branch))
	req, err := s.client.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return cloner.Object{}, fmt.Errorf("get %s: %w", path, err)
	}
	req.Header.Set("Accept", rawMediaType)
	var buf bytes.Buffer
	if _, err := s.client.Do(ctx, req, &buf); err != nil {
		return cloner.Object{}, fmt.Errorf("get %s: %w", path, mapError(err))
	}
	return cloner.Object{Path: path, Data: buf.Bytes()}, nil
}

// Delete removes a file with its own commit.
func (s *ContentStore) Delete(ctx context.Context, path string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	existing, err := s.stat(ctx, path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	opts := &gh.RepositoryContentFileOptions{
		Message: gh.String("Delete " + path),
		Branch:  gh.String(s.cfg.Branch),
		SHA:     existing.SHA,
	}
	if _, _, err := s.client.Repositories.DeleteFile(ctx, s.cfg.Owner, s.cfg.Repo, path, opts); err != nil {
		return fmt.Errorf("delete %s: %w", path, mapError(err))
	}
	return nil
}

// List returns the direct children of prefix.
func (s *ContentStore) List(ctx context.Context, prefix string) ([]cloner.ObjectInfo, error) {
	file, dir, _, err := s.client.Repositories.GetContents(ctx, s.cfg.Owner, s.cfg.Repo,
		strings.Trim(prefix, "/"), &gh.RepositoryContentGetOptions{Ref: s.cfg.Branch})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, mapError(err))
	}
	if file != nil {
		return nil, fmt.Errorf("list %s: not a directory", prefix)
	}
	out := make([]cloner.ObjectInfo, 0, len(dir))
	for _, e := range dir {
		out = append(out, cloner.ObjectInfo{
			Path:  e.GetPath(),
			Name:  e.GetName(),
			IsDir: e.GetType() == "dir",
			Size:  int64(e.GetSize()),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// PublicURL returns the CDN URL of path on the configured branch.
func (s *ContentStore) PublicURL(path string) string {
	switch {
	case s.cfg.PublicBaseURL != "":
		return cdn.Join(s.cfg.PublicBaseURL, path)
	case s.cfg.CDN == CDNRaw:
		return cdn.GitHubRaw(s.cfg.Owner, s.cfg.Repo, s.cfg.Branch, path)
	default:
		return cdn.JSDelivr(s.cfg.Owner, s.cfg.Repo, s.cfg.Branch, path)
	}
}

func (s *ContentStore) stat(ctx context.Context, path string) (*gh.RepositoryContent, error) {
	file, _, _, err := s.client.Repositories.GetContents(ctx, s.cfg.Owner, s.cfg.Repo, path,
		&gh.RepositoryContentGetOptions{Ref: s.cfg.Branch})
	if err != nil {
		return nil, mapError(err)
	}
	if file == nil || file.GetType() != "file" {
		return nil, fmt.Errorf("%s is not a file", path)
	}
	return file, nil
}

// mapError translates API status codes into the store sentinels.
func mapError(err error) error {
	var resp *gh.ErrorResponse
	if !errors.As(err, &resp) || resp.Response == nil {
		return err
	}
	switch code := resp.Response.StatusCode; code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d: %s", cloner.ErrPermissionDenied, code, resp.Message)
	case http.StatusNotFound:
		return fmt.Errorf("%w: HTTP %d", cloner.ErrObjectNotFound, code)
	default:
		return err
	}
}

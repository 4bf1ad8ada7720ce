package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spachava753/buildbpy/internal/models"
	"github.com/spachava753/buildbpy/internal/retry"
)

// fakeGitHub serves the subset of the releases API the publisher uses.
type fakeGitHub struct {
	mu       sync.Mutex
	nextID   int64
	releases []Release
	assets   map[int64][]Asset
	uploads  map[string]string // asset name -> content
	created  []NewRelease
	deleted  []int64

	// uploadFailures is a list of statuses returned by successive uploads
	// before they succeed.
	uploadFailures []int
	uploadAttempts int
	headers        http.Header
}

func newFakeGitHub() *fakeGitHub {
	return &fakeGitHub{nextID: 100, assets: map[int64][]Asset{}, uploads: map[string]string{}}
}

func (f *fakeGitHub) addRelease(tag string, assets ...string) Release {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	rel := Release{ID: f.nextID, TagName: tag, Name: "bpy-" + tag}
	f.releases = append(f.releases, rel)
	for _, name := range assets {
		f.nextID++
		f.assets[rel.ID] = append(f.assets[rel.ID], Asset{
			ID:                 f.nextID,
			Name:               name,
			BrowserDownloadURL: "https://example.test/" + tag + "/" + name,
		})
	}
	return rel
}

func (f *fakeGitHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.headers = r.Header.Clone()

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	// parts: repos owner name releases ...
	if len(parts) < 4 || parts[0] != "repos" || parts[3] != "releases" {
		http.NotFound(w, r)
		return
	}
	rest := parts[4:]

	switch {
	case r.Method == http.MethodGet && len(rest) == 2 && rest[0] == "tags":
		for _, rel := range f.releases {
			if rel.TagName == rest[1] {
				json.NewEncoder(w).Encode(rel)
				return
			}
		}
		http.NotFound(w, r)

	case r.Method == http.MethodGet && len(rest) == 0:
		json.NewEncoder(w).Encode(f.releases)

	case r.Method == http.MethodPost && len(rest) == 0:
		var nr NewRelease
		json.NewDecoder(r.Body).Decode(&nr)
		f.created = append(f.created, nr)
		f.nextID++
		rel := Release{ID: f.nextID, TagName: nr.TagName, Name: nr.Name}
		f.releases = append(f.releases, rel)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(rel)

	case r.Method == http.MethodGet && len(rest) == 2 && rest[1] == "assets":
		id, _ := strconv.ParseInt(rest[0], 10, 64)
		assets := f.assets[id]
		if assets == nil {
			assets = []Asset{}
		}
		json.NewEncoder(w).Encode(assets)

	case r.Method == http.MethodDelete && len(rest) == 2 && rest[0] == "assets":
		id, _ := strconv.ParseInt(rest[1], 10, 64)
		f.deleted = append(f.deleted, id)
		for relID, assets := range f.assets {
			for i, a := range assets {
				if a.ID == id {
					f.assets[relID] = append(assets[:i], assets[i+1:]...)
					break
				}
			}
		}
		w.WriteHeader(http.StatusNoContent)

	case r.Method == http.MethodPost && len(rest) == 2 && rest[1] == "assets":
		f.uploadAttempts++
		if len(f.uploadFailures) > 0 {
			status := f.uploadFailures[0]
			f.uploadFailures = f.uploadFailures[1:]
			http.Error(w, "upstream hiccup", status)
			return
		}
		id, _ := strconv.ParseInt(rest[0], 10, 64)
		name := r.URL.Query().Get("name")
		body, _ := io.ReadAll(r.Body)
		f.uploads[name] = string(body)
		f.nextID++
		a := Asset{ID: f.nextID, Name: name, Size: int64(len(body)), BrowserDownloadURL: "https://example.test/dl/" + name}
		f.assets[id] = append(f.assets[id], a)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(a)

	default:
		http.Error(w, "unexpected request "+r.Method+" "+r.URL.Path, http.StatusBadRequest)
	}
}

func testPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:     5,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2,
		RetryableStatus: retry.DefaultRetryableStatus,
	}
}

func newTestPublisher(t *testing.T, gh *fakeGitHub) *Publisher {
	t.Helper()
	server := httptest.NewServer(gh)
	t.Cleanup(server.Close)
	client := NewClient(server.Client(), server.URL, server.URL, "someone/bpy-wheels", "secret", testPolicy())
	return New(client, "main")
}

func writeWheel(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestTag(t *testing.T) {
	release, _ := models.NewVersionDescriptor("4.2", "4.2.0", models.CycleRelease, "", nil)
	alpha, _ := models.NewVersionDescriptor("4.3", "4.3.0", models.CycleAlpha, "5d3c2a1b9f0e4477aa", nil)

	tests := []struct {
		name     string
		explicit string
		version  models.VersionDescriptor
		want     string
	}{
		{"explicit tag wins", "v4.2.0", release, "v4.2.0"},
		{"with commit", "", alpha, "v4.3.0-alpha.5d3c2a1b9f0e"},
		{"without commit", "", release, "v4.2.0-release"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Tag(tt.explicit, tt.version); got != tt.want {
				t.Errorf("Tag() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPublish_CreatesRelease(t *testing.T) {
	gh := newFakeGitHub()
	p := newTestPublisher(t, gh)
	wheel := writeWheel(t, "bpy-4.2.0-cp311-cp311-manylinux_2_28_x86_64.whl", "wheel-bytes")

	got, err := p.Publish(context.Background(), "v4.2.0", []string{wheel})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	want := []models.ReleaseAsset{{
		TagName:     "v4.2.0",
		AssetName:   "bpy-4.2.0-cp311-cp311-manylinux_2_28_x86_64.whl",
		DownloadURL: "https://example.test/dl/bpy-4.2.0-cp311-cp311-manylinux_2_28_x86_64.whl",
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Publish() mismatch (-want +got):\n%s", diff)
	}

	wantRelease := []NewRelease{{
		TagName:         "v4.2.0",
		TargetCommitish: "main",
		Name:            "bpy-v4.2.0",
		Body:            "Blender Python API for Blender v4.2.0",
	}}
	if diff := cmp.Diff(wantRelease, gh.created); diff != "" {
		t.Errorf("created releases mismatch (-want +got):\n%s", diff)
	}
	if gh.uploads["bpy-4.2.0-cp311-cp311-manylinux_2_28_x86_64.whl"] != "wheel-bytes" {
		t.Error("uploaded content mismatch")
	}

	if got := gh.headers.Get("Authorization"); got != "Bearer secret" {
		t.Errorf("expected bearer auth, got %q", got)
	}
	if got := gh.headers.Get("X-GitHub-Api-Version"); got != apiVersion {
		t.Errorf("expected api version header, got %q", got)
	}
	if got := gh.headers.Get("Content-Type"); got != "application/octet-stream" {
		t.Errorf("expected octet-stream upload, got %q", got)
	}
}

func TestPublish_ReplacesExistingAsset(t *testing.T) {
	gh := newFakeGitHub()
	name := "bpy-4.2.0-cp311-cp311-manylinux_2_28_x86_64.whl"
	rel := gh.addRelease("v4.2.0", name, "bpy-4.2.0-cp311-cp311-win_amd64.whl")
	oldID := gh.assets[rel.ID][0].ID
	p := newTestPublisher(t, gh)

	if _, err := p.Publish(context.Background(), "v4.2.0", []string{writeWheel(t, name, "new")}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if len(gh.created) != 0 {
		t.Error("existing release must be reused")
	}
	if diff := cmp.Diff([]int64{oldID}, gh.deleted); diff != "" {
		t.Errorf("deleted assets mismatch (-want +got):\n%s", diff)
	}

	var names []string
	for _, a := range gh.assets[rel.ID] {
		names = append(names, a.Name)
	}
	if diff := cmp.Diff([]string{"bpy-4.2.0-cp311-cp311-win_amd64.whl", name}, names); diff != "" {
		t.Errorf("release assets mismatch (-want +got):\n%s", diff)
	}
}

func TestPublish_RetriesTransientFailures(t *testing.T) {
	gh := newFakeGitHub()
	gh.uploadFailures = []int{http.StatusBadGateway, http.StatusServiceUnavailable}
	p := newTestPublisher(t, gh)

	if _, err := p.Publish(context.Background(), "v4.2.0", []string{writeWheel(t, "bpy.whl", "x")}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if gh.uploadAttempts != 3 {
		t.Errorf("expected 3 upload attempts, got %d", gh.uploadAttempts)
	}
	if gh.uploads["bpy.whl"] != "x" {
		t.Error("expected the full file on the successful attempt")
	}
}

func TestPublish_Failures(t *testing.T) {
	tests := []struct {
		name         string
		failures     []int
		wantAttempts int
	}{
		{"exhausts retries", []int{500, 500, 500, 500, 500, 500}, 5},
		{"non-retryable status", []int{http.StatusUnauthorized}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gh := newFakeGitHub()
			gh.uploadFailures = tt.failures
			p := newTestPublisher(t, gh)

			_, err := p.Publish(context.Background(), "v4.2.0", []string{writeWheel(t, "bpy.whl", "x")})
			if models.KindOf(err) != models.ErrPublishFailed {
				t.Fatalf("expected publish_failed, got %v", err)
			}
			if gh.uploadAttempts != tt.wantAttempts {
				t.Errorf("expected %d attempts, got %d", tt.wantAttempts, gh.uploadAttempts)
			}
		})
	}
}

func TestPublish_NoWheels(t *testing.T) {
	p := newTestPublisher(t, newFakeGitHub())
	if _, err := p.Publish(context.Background(), "v4.2.0", nil); models.KindOf(err) != models.ErrPublishFailed {
		t.Errorf("expected publish_failed, got %v", err)
	}
}

func TestWriteIndex(t *testing.T) {
	gh := newFakeGitHub()
	gh.addRelease("v4.2.0", "bpy-4.2.0-cp311-cp311-win_amd64.whl", "bpy-4.2.0-cp311-cp311-manylinux_2_28_x86_64.whl", "checksums.txt")
	gh.addRelease("v4.3.0-alpha.5d3c2a1b9f0e", "bpy-4.3.0a0-cp311-cp311-macosx_11_0_arm64.whl")
	gh.addRelease("empty")

	server := httptest.NewServer(gh)
	defer server.Close()
	client := NewClient(server.Client(), server.URL, server.URL, "someone/bpy-wheels", "", testPolicy())

	path := filepath.Join(t.TempDir(), "docs", "index.html")
	n, err := WriteIndex(context.Background(), client, path, "bpy", 2)
	if err != nil {
		t.Fatalf("WriteIndex: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 wheels, got %d", n)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "<html><body>\n<h1>Links for bpy</h1>\n" +
		link("v4.2.0", "bpy-4.2.0-cp311-cp311-manylinux_2_28_x86_64.whl") +
		link("v4.2.0", "bpy-4.2.0-cp311-cp311-win_amd64.whl") +
		link("v4.3.0-alpha.5d3c2a1b9f0e", "bpy-4.3.0a0-cp311-cp311-macosx_11_0_arm64.whl") +
		"</body></html>\n"
	if diff := cmp.Diff(want, string(data)); diff != "" {
		t.Errorf("index mismatch (-want +got):\n%s", diff)
	}
}

func link(tag, name string) string {
	return fmt.Sprintf("<a href=\"https://example.test/%s/%s\">%s</a><br>\n", tag, name, name)
}

package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"miogallery/internal/access"
	"miogallery/internal/config"
	"miogallery/internal/meta"
)

const testAdminPassword = "correct-horse"

func newTestServer(t *testing.T) (*Server, *http.ServeMux, string) {
	t.Helper()
	dir := t.TempDir()

	cfg := &config.Config{
		Server:  config.ServerConfig{Env: "test"},
		Storage: config.StorageConfig{PhotoDir: dir},
		Image: config.ImageConfig{
			MaxUploadSize: "50MB",
			RawExtensions: []string{"cr2", "nef"},
			RawDecoder:    "definitely-not-a-real-binary",
			AvifEnabled:   false,
		},
		Security: config.SecurityConfig{
			AdminPassword: testAdminPassword,
			SessionSecret: "test-secret",
		},
	}

	srv := New(cfg, nil)
	mux := http.NewServeMux()
	srv.Routes(mux)
	return srv, mux, dir
}

// uniqueIP keeps the password-attempt limiter from tripping across
// tests that all originate from httptest's default remote address.
var ipCounter int

func uniqueIP() string {
	ipCounter++
	return fmt.Sprintf("10.1.%d.%d", ipCounter/250, ipCounter%250+1)
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path string, body interface{}, cookies []*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("X-Forwarded-For", uniqueIP())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("response is not JSON: %v (%s)", err, rec.Body.String())
	}
	return out
}

func adminCookies(t *testing.T, mux *http.ServeMux) []*http.Cookie {
	t.Helper()
	rec := doJSON(t, mux, "POST", "/api/login", map[string]string{"password": testAdminPassword}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", rec.Code, rec.Body.String())
	}
	return rec.Result().Cookies()
}

// seedImage drops a placeholder derivative into the tree. Handlers that
// do not decode only need the file to exist.
func seedImage(t *testing.T, dir, id string) {
	t.Helper()
	p := filepath.Join(dir, id[:4], id[4:6], id+".webp")
	if err := os.MkdirAll(filepath.Dir(p), 0750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte("placeholder"), 0640); err != nil {
		t.Fatal(err)
	}
}

func TestHealth(t *testing.T) {
	_, mux, _ := newTestServer(t)

	rec := doJSON(t, mux, "GET", "/api/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["status"] != "ok" {
		t.Errorf("status field = %v", body["status"])
	}
}

func TestAdminEndpointsRejectAnonymous(t *testing.T) {
	_, mux, _ := newTestServer(t)

	paths := []struct{ method, path string }{
		{"POST", "/api/upload"},
		{"DELETE", "/api/images/some-id"},
		{"PUT", "/api/images/some-id/pin"},
		{"PUT", "/api/images/some-id/description"},
		{"PUT", "/api/images/some-id/album"},
		{"POST", "/api/albums"},
		{"DELETE", "/api/albums/some-id"},
	}
	for _, p := range paths {
		rec := doJSON(t, mux, p.method, p.path, nil, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: status = %d, want 401", p.method, p.path, rec.Code)
		}
		if body := decodeBody(t, rec); body["code"] != "auth/authentication_required" {
			t.Errorf("%s %s: code = %v", p.method, p.path, body["code"])
		}
	}
}

func TestLoginWrongPassword(t *testing.T) {
	_, mux, _ := newTestServer(t)

	rec := doJSON(t, mux, "POST", "/api/login", map[string]string{"password": "wrong"}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAlbumLifecycle(t *testing.T) {
	_, mux, _ := newTestServer(t)
	admin := adminCookies(t, mux)

	rec := doJSON(t, mux, "POST", "/api/albums",
		map[string]string{"name": "Family Trip", "password": "family-pw"}, admin)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create album: %d %s", rec.Code, rec.Body.String())
	}
	created := decodeBody(t, rec)
	if created["id"] != "family-trip" || created["locked"] != true {
		t.Fatalf("created = %v", created)
	}

	// Anonymous listing hides locked albums.
	rec = doJSON(t, mux, "GET", "/api/albums", nil, nil)
	if body := decodeBody(t, rec); body["total"].(float64) != 0 {
		t.Errorf("anonymous album total = %v, want 0", body["total"])
	}

	// Wrong unlock password.
	rec = doJSON(t, mux, "POST", "/api/albums/unlock", map[string]string{"password": "nope"}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad unlock status = %d, want 401", rec.Code)
	}

	// Correct unlock returns the album and an updated session.
	rec = doJSON(t, mux, "POST", "/api/albums/unlock", map[string]string{"password": "family-pw"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unlock: %d %s", rec.Code, rec.Body.String())
	}
	unlockedSession := rec.Result().Cookies()

	rec = doJSON(t, mux, "GET", "/api/albums", nil, unlockedSession)
	if body := decodeBody(t, rec); body["total"].(float64) != 1 {
		t.Errorf("unlocked album total = %v, want 1", body["total"])
	}

	// Lock drops the unlocks again.
	rec = doJSON(t, mux, "POST", "/api/albums/lock", nil, unlockedSession)
	lockedSession := rec.Result().Cookies()
	rec = doJSON(t, mux, "GET", "/api/albums", nil, lockedSession)
	if body := decodeBody(t, rec); body["total"].(float64) != 0 {
		t.Errorf("re-locked album total = %v, want 0", body["total"])
	}

	// Delete the album as admin.
	rec = doJSON(t, mux, "DELETE", "/api/albums/family-trip", nil, admin)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete album: %d %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, mux, "DELETE", "/api/albums/family-trip", nil, admin)
	if rec.Code != http.StatusNotFound {
		t.Errorf("double delete status = %d, want 404", rec.Code)
	}

	// Ids that could never be album slugs fail the same way.
	rec = doJSON(t, mux, "DELETE", "/api/albums/Not%20A%20Slug", nil, admin)
	if rec.Code != http.StatusNotFound {
		t.Errorf("invalid slug delete status = %d, want 404", rec.Code)
	}
	if body := decodeBody(t, rec); body["code"] != "album/not_found" {
		t.Errorf("invalid slug delete code = %v", body["code"])
	}
}

func TestPinToggle(t *testing.T) {
	_, mux, dir := newTestServer(t)
	admin := adminCookies(t, mux)

	const id = "20240615_103045_aaaabbbbcccc"
	seedImage(t, dir, id)

	rec := doJSON(t, mux, "PUT", "/api/images/"+id+"/pin", nil, admin)
	if rec.Code != http.StatusOK {
		t.Fatalf("pin: %d %s", rec.Code, rec.Body.String())
	}
	if body := decodeBody(t, rec); body["pinned"] != true {
		t.Errorf("first toggle = %v, want true", body["pinned"])
	}

	rec = doJSON(t, mux, "PUT", "/api/images/"+id+"/pin", nil, admin)
	if body := decodeBody(t, rec); body["pinned"] != false {
		t.Errorf("second toggle = %v, want false", body["pinned"])
	}

	// Explicit body wins over toggling.
	rec = doJSON(t, mux, "PUT", "/api/images/"+id+"/pin", map[string]bool{"pinned": true}, admin)
	if body := decodeBody(t, rec); body["pinned"] != true {
		t.Errorf("explicit pin = %v, want true", body["pinned"])
	}

	rec = doJSON(t, mux, "PUT", "/api/images/unknown-id/pin", nil, admin)
	if rec.Code != http.StatusNotFound {
		t.Errorf("pin unknown image status = %d, want 404", rec.Code)
	}
}

func TestListImagesAndDateFilter(t *testing.T) {
	_, mux, dir := newTestServer(t)

	seedImage(t, dir, "20240615_103045_aaaabbbbcccc")
	seedImage(t, dir, "20231101_090000_ddddeeeeffff")

	rec := doJSON(t, mux, "GET", "/api/images", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["total"].(float64) != 2 {
		t.Errorf("total = %v, want 2", body["total"])
	}

	rec = doJSON(t, mux, "GET", "/api/images?start_date=2024-01-01", nil, nil)
	if body := decodeBody(t, rec); body["total"].(float64) != 1 {
		t.Errorf("filtered total = %v, want 1", body["total"])
	}

	rec = doJSON(t, mux, "GET", "/api/images?start_date=junk", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad date status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, mux, "GET", "/api/images?album=all", nil, nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("album=all anonymous status = %d, want 403", rec.Code)
	}
}

func TestPrivateImageLooksMissing(t *testing.T) {
	srv, mux, dir := newTestServer(t)
	admin := adminCookies(t, mux)

	const id = "20240615_103045_aaaabbbbcccc"
	seedImage(t, dir, id)

	hash, err := access.HashPassword("album-pw")
	if err != nil {
		t.Fatal(err)
	}
	if err := srv.store.Update(func(doc *meta.Document) error {
		doc.Albums["secret"] = meta.Album{Name: "Secret", PasswordHash: hash}
		doc.ImageAlbum[id] = "secret"
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	// Every anonymous read path answers 404, never 403.
	for _, path := range []string{
		"/api/images/" + id,
		"/api/thumb/" + id + ".webp",
		"/api/images/2024/06/" + id + ".webp",
		"/api/images/" + id + "/download",
		"/api/images/" + id + "/description",
	} {
		rec := doJSON(t, mux, "GET", path, nil, nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("GET %s: status = %d, want 404", path, rec.Code)
		}
		if body := decodeBody(t, rec); body["code"] != "resource/not_found" {
			t.Errorf("GET %s: code = %v", path, body["code"])
		}
	}

	// Naming the locked album outright is the one case that may say
	// "locked" instead of pretending nothing exists.
	rec := doJSON(t, mux, "GET", "/api/images?album=secret", nil, nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("album filter status = %d, want 403", rec.Code)
	}
	if body := decodeBody(t, rec); body["code"] != "album/locked" {
		t.Errorf("album filter code = %v, want album/locked", body["code"])
	}

	// The admin still reads it.
	rec = doJSON(t, mux, "GET", "/api/images/"+id, nil, admin)
	if rec.Code != http.StatusOK {
		t.Errorf("admin read status = %d, want 200", rec.Code)
	}
}

func TestMalformedDerivativePaths(t *testing.T) {
	_, mux, _ := newTestServer(t)

	paths := []string{
		"/api/images/20ab/06/file.webp", // year is not numeric
		"/api/images/2024/13/file.webp", // month out of range
		"/api/thumb/photo.jpg",          // thumbnails are webp only
	}
	for _, path := range paths {
		rec := doJSON(t, mux, "GET", path, nil, nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("GET %s: status = %d, want 404", path, rec.Code)
		}
		if body := decodeBody(t, rec); body["code"] != "request/not_found" {
			t.Errorf("GET %s: code = %v, want request/not_found", path, body["code"])
		}
	}
}

func TestDescriptionRoundtrip(t *testing.T) {
	_, mux, dir := newTestServer(t)
	admin := adminCookies(t, mux)

	const id = "20240615_103045_aaaabbbbcccc"
	seedImage(t, dir, id)

	rec := doJSON(t, mux, "PUT", "/api/images/"+id+"/description",
		map[string]string{"description": "A lighthouse at dusk."}, admin)
	if rec.Code != http.StatusOK {
		t.Fatalf("set description: %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, mux, "GET", "/api/images/"+id+"/description", nil, nil)
	if body := decodeBody(t, rec); body["description"] != "A lighthouse at dusk." {
		t.Errorf("description = %v", body["description"])
	}
}

func TestAssignAlbum(t *testing.T) {
	_, mux, dir := newTestServer(t)
	admin := adminCookies(t, mux)

	const id = "20240615_103045_aaaabbbbcccc"
	seedImage(t, dir, id)

	rec := doJSON(t, mux, "PUT", "/api/images/"+id+"/album",
		map[string]string{"album": "does-not-exist"}, admin)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("assign to unknown album status = %d, want 404", rec.Code)
	}
	if body := decodeBody(t, rec); body["code"] != "album/not_found" {
		t.Errorf("code = %v", body["code"])
	}

	rec = doJSON(t, mux, "POST", "/api/albums", map[string]string{"name": "Open Album"}, admin)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create album: %d", rec.Code)
	}

	rec = doJSON(t, mux, "PUT", "/api/images/"+id+"/album",
		map[string]string{"album": "open-album"}, admin)
	if rec.Code != http.StatusOK {
		t.Fatalf("assign: %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, mux, "GET", "/api/images/"+id, nil, nil)
	if body := decodeBody(t, rec); body["album"] != "open-album" {
		t.Errorf("album = %v", body["album"])
	}

	// Empty string unassigns.
	rec = doJSON(t, mux, "PUT", "/api/images/"+id+"/album", map[string]string{"album": ""}, admin)
	if rec.Code != http.StatusOK {
		t.Fatalf("unassign: %d", rec.Code)
	}
}

func TestUploadAndDelete(t *testing.T) {
	_, mux, dir := newTestServer(t)
	admin := adminCookies(t, mux)

	// Build a real PNG so the pipeline produces an actual derivative.
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 5), B: 90, A: 255})
		}
	}
	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, img); err != nil {
		t.Fatal(err)
	}

	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	fw, err := mw.CreateFormFile("images", "test.png")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write(pngBuf.Bytes()); err != nil {
		t.Fatal(err)
	}
	mw.Close()

	req := httptest.NewRequest("POST", "/api/upload", &form)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Forwarded-For", uniqueIP())
	for _, c := range admin {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("upload: %d %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["uploaded"].(float64) != 1 {
		t.Fatalf("uploaded = %v, want 1", body["uploaded"])
	}

	results := body["images"].([]interface{})
	first := results[0].(map[string]interface{})
	id, _ := first["id"].(string)
	if id == "" {
		t.Fatal("upload result has no id")
	}
	webpURL, _ := first["webp"].(string)
	if !strings.HasSuffix(webpURL, id+".webp") {
		t.Errorf("webp url = %q", webpURL)
	}

	// The derivative must exist on disk where the URL says it is.
	stored := filepath.Join(dir, id[:4], id[4:6], id+".webp")
	if _, err := os.Stat(stored); err != nil {
		t.Fatalf("derivative not stored at %s: %v", stored, err)
	}

	// And deleting removes it again.
	rec = doJSON(t, mux, "DELETE", "/api/images/"+id, nil, admin)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: %d %s", rec.Code, rec.Body.String())
	}
	if _, err := os.Stat(stored); !os.IsNotExist(err) {
		t.Error("derivative still on disk after delete")
	}
}

func TestUploadRejectsUnsupportedAndRaw(t *testing.T) {
	_, mux, _ := newTestServer(t)
	admin := adminCookies(t, mux)

	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	fw, _ := mw.CreateFormFile("images", "notes.txt")
	fw.Write([]byte("plain text"))
	fw2, _ := mw.CreateFormFile("images", "photo.cr2")
	fw2.Write([]byte("raw bytes without a converter"))
	mw.Close()

	req := httptest.NewRequest("POST", "/api/upload", &form)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Forwarded-For", uniqueIP())
	for _, c := range admin {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	// Everything failed, so the batch reports failure.
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["uploaded"].(float64) != 0 {
		t.Errorf("uploaded = %v, want 0", body["uploaded"])
	}
	for _, raw := range body["images"].([]interface{}) {
		res := raw.(map[string]interface{})
		if res["code"] != "request/invalid_media" {
			t.Errorf("%v: code = %v, want request/invalid_media", res["original_filename"], res["code"])
		}
	}
}

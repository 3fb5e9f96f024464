package tsunami

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type noteOut struct {
	ID    uint   `json:"id"`
	Title string `json:"title"`
}

type getNoteIn struct {
	NoteID uint `schema:"note_id" json:"-"`
}

type createNoteIn struct {
	Title string `json:"title" validate:"required"`
	Body  string `json:"body"`
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	registry := NewRegistry().
		Static("notes.get", Spec{}).
		Static("notes.post", Spec{}).
		Dynamic("note.[note_id].get", Spec{}).
		Dynamic("note.[note_id].delete", Spec{}).
		MustBuild()

	app := NewApp(registry)

	app.Handle("notes.get", Unary(func(ctx context.Context, _ struct{}) ([]noteOut, error) {
		return []noteOut{{ID: 1, Title: "first"}}, nil
	}))
	app.Handle("notes.post", Unary(func(ctx context.Context, req createNoteIn) (*noteOut, error) {
		return &noteOut{ID: 2, Title: req.Title}, nil
	}))
	app.Handle("note.[note_id].get", Unary(func(ctx context.Context, req getNoteIn) (*noteOut, error) {
		if req.NoteID == 404 {
			return nil, Errorf(CodeNotFound, "note %d not found", req.NoteID)
		}
		return &noteOut{ID: req.NoteID, Title: "found"}, nil
	}))
	app.Handle("note.[note_id].delete", Unary(func(ctx context.Context, req getNoteIn) (Empty, error) {
		return nil, nil
	}))

	return app
}

func doRequest(app *App, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	app.Handler().ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) *Error {
	t.Helper()
	var env struct {
		Error *Error `json:"error"`
	}
	if err := json.NewDecoder(w.Body).Decode(&env); err != nil {
		t.Fatalf("decode error envelope: %v (body %q)", err, w.Body.String())
	}
	if env.Error == nil {
		t.Fatalf("no error in body %q", w.Body.String())
	}
	return env.Error
}

func TestAppDispatchStatic(t *testing.T) {
	app := newTestApp(t)

	w := doRequest(app, http.MethodGet, "/notes", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var notes []noteOut
	if err := json.NewDecoder(w.Body).Decode(&notes); err != nil {
		t.Fatal(err)
	}
	if len(notes) != 1 || notes[0].Title != "first" {
		t.Errorf("notes = %v", notes)
	}
}

func TestAppDispatchBody(t *testing.T) {
	app := newTestApp(t)

	w := doRequest(app, http.MethodPost, "/notes", `{"title":"hello"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var note noteOut
	if err := json.NewDecoder(w.Body).Decode(&note); err != nil {
		t.Fatal(err)
	}
	if note.Title != "hello" {
		t.Errorf("note = %+v", note)
	}
}

func TestAppDispatchPathParam(t *testing.T) {
	app := newTestApp(t)

	w := doRequest(app, http.MethodGet, "/note/42", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var note noteOut
	if err := json.NewDecoder(w.Body).Decode(&note); err != nil {
		t.Fatal(err)
	}
	if note.ID != 42 {
		t.Errorf("note = %+v", note)
	}
}

func TestAppMethodSelectsRoute(t *testing.T) {
	app := newTestApp(t)

	// Same path, different method, different endpoint.
	w := doRequest(app, http.MethodDelete, "/note/42", "")
	if w.Code != http.StatusNoContent {
		t.Errorf("DELETE status = %d, body %s", w.Code, w.Body.String())
	}

	w = doRequest(app, http.MethodPut, "/note/42", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("PUT status = %d", w.Code)
	}
}

func TestAppValidation(t *testing.T) {
	app := newTestApp(t)

	w := doRequest(app, http.MethodPost, "/notes", `{"body":"no title"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	svcErr := decodeError(t, w)
	if svcErr.Code != CodeInvalidArgument {
		t.Errorf("code = %q", svcErr.Code)
	}
}

func TestAppMalformedBody(t *testing.T) {
	app := newTestApp(t)

	w := doRequest(app, http.MethodPost, "/notes", `{broken`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if decodeError(t, w).Code != CodeInvalidArgument {
		t.Error("expected invalid_argument")
	}
}

func TestAppHandlerError(t *testing.T) {
	app := newTestApp(t)

	w := doRequest(app, http.MethodGet, "/note/404", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
	svcErr := decodeError(t, w)
	if svcErr.Code != CodeNotFound {
		t.Errorf("code = %q", svcErr.Code)
	}
}

func TestAppUnknownRoute(t *testing.T) {
	app := newTestApp(t)

	w := doRequest(app, http.MethodGet, "/nowhere", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d", w.Code)
	}
}

func TestAppDeclaredButUnregistered(t *testing.T) {
	registry := NewRegistry().Static("notes.get", Spec{}).MustBuild()
	app := NewApp(registry)

	w := doRequest(app, http.MethodGet, "/notes", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d", w.Code)
	}
	if !strings.Contains(decodeError(t, w).Message, "no handler registered") {
		t.Error("error should say no handler is registered")
	}
}

func TestAppUnsupportedMethod(t *testing.T) {
	app := newTestApp(t)

	w := doRequest(app, "TRACE", "/notes", "")
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d", w.Code)
	}
}

func TestHandlePanicsOnBadRegistration(t *testing.T) {
	registry := NewRegistry().Static("notes.get", Spec{}).MustBuild()
	ep := Unary(func(ctx context.Context, _ struct{}) (Empty, error) { return nil, nil })

	t.Run("undeclared key", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic")
			}
		}()
		NewApp(registry).Handle("other.get", ep)
	})

	t.Run("duplicate registration", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic")
			}
		}()
		NewApp(registry).Handle("notes.get", ep).Handle("notes.get", ep)
	})
}

func TestAppPanicRecovery(t *testing.T) {
	registry := NewRegistry().Static("boom.get", Spec{}).MustBuild()
	app := NewApp(registry)
	app.Handle("boom.get", Unary(func(ctx context.Context, _ struct{}) (Empty, error) {
		panic("kaboom")
	}))

	w := doRequest(app, http.MethodGet, "/boom", "")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", w.Code)
	}
	if !strings.Contains(decodeError(t, w).Message, "panic") {
		t.Error("error should mention the panic")
	}
}

func TestAppInterceptorOrder(t *testing.T) {
	registry := NewRegistry().Static("notes.get", Spec{}).MustBuild()

	var order []string
	record := func(name string) UnaryInterceptor {
		return func(ctx context.Context, req any, info *RouteInfo, handler HandlerFunc) (any, error) {
			order = append(order, name+":before")
			res, err := handler(ctx, req)
			order = append(order, name+":after")
			return res, err
		}
	}

	app := NewApp(registry).
		WithUnaryInterceptor(record("global1")).
		WithUnaryInterceptor(record("global2"))
	app.Handle("notes.get", Unary(func(ctx context.Context, _ struct{}) (*noteOut, error) {
		order = append(order, "handler")
		return &noteOut{}, nil
	}).WithUnaryInterceptor(record("endpoint")))

	doRequest(app, http.MethodGet, "/notes", "")

	want := []string{
		"global1:before", "global2:before", "endpoint:before",
		"handler",
		"endpoint:after", "global2:after", "global1:after",
	}
	if len(order) != len(want) {
		t.Fatalf("order = %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestInterceptorSeesRouteInfo(t *testing.T) {
	registry := NewRegistry().Dynamic("note.[note_id].get", Spec{}).MustBuild()

	var gotKey, gotParam string
	app := NewApp(registry).WithUnaryInterceptor(
		func(ctx context.Context, req any, info *RouteInfo, handler HandlerFunc) (any, error) {
			gotKey = info.Key
			gotParam = info.Params["note_id"]
			return handler(ctx, req)
		})
	app.Handle("note.[note_id].get", Unary(func(ctx context.Context, req getNoteIn) (*noteOut, error) {
		return &noteOut{ID: req.NoteID}, nil
	}))

	doRequest(app, http.MethodGet, "/note/7", "")

	if gotKey != "note.[note_id].get" || gotParam != "7" {
		t.Errorf("info = %q %q", gotKey, gotParam)
	}
}

func TestInterceptorShortCircuit(t *testing.T) {
	registry := NewRegistry().Static("notes.get", Spec{}).MustBuild()

	app := NewApp(registry).WithUnaryInterceptor(
		func(ctx context.Context, req any, info *RouteInfo, handler HandlerFunc) (any, error) {
			return nil, Errorf(CodeUnauthenticated, "no credentials")
		})

	called := false
	app.Handle("notes.get", Unary(func(ctx context.Context, _ struct{}) (*noteOut, error) {
		called = true
		return &noteOut{}, nil
	}))

	w := doRequest(app, http.MethodGet, "/notes", "")
	if called {
		t.Error("handler must not run after short-circuit")
	}
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d", w.Code)
	}
}

func TestAppMaskInternalErrors(t *testing.T) {
	registry := NewRegistry().Static("notes.get", Spec{}).MustBuild()
	app := NewApp(registry).WithMaskInternalErrors()
	app.Handle("notes.get", Unary(func(ctx context.Context, _ struct{}) (*noteOut, error) {
		return nil, fmt.Errorf("secret database password wrong")
	}))

	w := doRequest(app, http.MethodGet, "/notes", "")
	svcErr := decodeError(t, w)
	if svcErr.Code != CodeInternal {
		t.Errorf("code = %q", svcErr.Code)
	}
	if strings.Contains(svcErr.Message, "secret") {
		t.Errorf("internal detail leaked: %q", svcErr.Message)
	}
}

func TestAppErrorTransformer(t *testing.T) {
	registry := NewRegistry().Static("notes.get", Spec{}).MustBuild()
	app := NewApp(registry).WithErrorTransformer(func(err error) *Error {
		if err.Error() == "gone" {
			return NewError(CodeNotFound, "mapped")
		}
		return nil
	})
	app.Handle("notes.get", Unary(func(ctx context.Context, _ struct{}) (*noteOut, error) {
		return nil, fmt.Errorf("gone")
	}))

	w := doRequest(app, http.MethodGet, "/notes", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d", w.Code)
	}
	if decodeError(t, w).Message != "mapped" {
		t.Error("custom transformer must apply")
	}
}

func TestAppMiddlewareOrder(t *testing.T) {
	registry := NewRegistry().Static("notes.get", Spec{}).MustBuild()

	var order []string
	mw := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	app := NewApp(registry).WithMiddleware(mw("outer")).WithMiddleware(mw("inner"))
	app.Handle("notes.get", Unary(func(ctx context.Context, _ struct{}) (*noteOut, error) {
		return &noteOut{}, nil
	}))

	doRequest(app, http.MethodGet, "/notes", "")

	if len(order) != 2 || order[0] != "outer" || order[1] != "inner" {
		t.Errorf("order = %v", order)
	}
}

func TestAppRoutesListing(t *testing.T) {
	app := newTestApp(t)

	w := doRequest(app, http.MethodGet, "/__routes", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var out struct {
		Routes []ManifestEntry `json:"routes"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Routes) != 4 {
		t.Fatalf("routes = %d", len(out.Routes))
	}
	for _, e := range out.Routes {
		if !e.Registered {
			t.Errorf("route %q should be registered", e.Key)
		}
	}
}

func TestAppQueryAndPathParamDecoding(t *testing.T) {
	type searchIn struct {
		Notebook string `schema:"notebook" json:"-"`
		NoteID   uint   `schema:"note_id" json:"-"`
	}

	registry := NewRegistry().Dynamic("note.[note_id].get", Spec{}).MustBuild()
	app := NewApp(registry)

	var got searchIn
	app.Handle("note.[note_id].get", Unary(func(ctx context.Context, req searchIn) (*noteOut, error) {
		got = req
		return &noteOut{}, nil
	}))

	// The path value for note_id must win over the query value.
	doRequest(app, http.MethodGet, "/note/9?notebook=work&note_id=1", "")

	if got.NoteID != 9 {
		t.Errorf("path param must win, NoteID = %d", got.NoteID)
	}
	if got.Notebook != "work" {
		t.Errorf("Notebook = %q", got.Notebook)
	}
}

func TestAppBodySizeLimit(t *testing.T) {
	registry := NewRegistry().Static("notes.post", Spec{}).MustBuild()
	app := NewApp(registry).WithMaxRequestBodySize(16)
	app.Handle("notes.post", Unary(func(ctx context.Context, req createNoteIn) (*noteOut, error) {
		return &noteOut{}, nil
	}))

	big := `{"title":"` + strings.Repeat("x", 100) + `"}`
	w := doRequest(app, http.MethodPost, "/notes", big)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d", w.Code)
	}
}

func TestHandlerCacheHeader(t *testing.T) {
	registry := NewRegistry().Static("notes.get", Spec{}).MustBuild()
	app := NewApp(registry)
	app.Handle("notes.get", Unary(func(ctx context.Context, _ struct{}) (*noteOut, error) {
		return &noteOut{}, nil
	}).Cache(30*time.Second))

	w := doRequest(app, http.MethodGet, "/notes", "")
	if got := w.Header().Get("Cache-Control"); got != "max-age=30" {
		t.Errorf("Cache-Control = %q", got)
	}
}

func TestSetHeaderFromHandler(t *testing.T) {
	registry := NewRegistry().Static("notes.get", Spec{}).MustBuild()
	app := NewApp(registry)
	app.Handle("notes.get", Unary(func(ctx context.Context, _ struct{}) (*noteOut, error) {
		SetHeader(ctx, "X-Custom", "yes")
		return &noteOut{}, nil
	}))

	w := doRequest(app, http.MethodGet, "/notes", "")
	if w.Header().Get("X-Custom") != "yes" {
		t.Error("SetHeader must reach the response")
	}
}

func TestAppEndpointsMetadata(t *testing.T) {
	app := newTestApp(t)

	meta := app.Endpoints()
	md, ok := meta["note.[note_id].get"]
	if !ok {
		t.Fatal("missing metadata for note.[note_id].get")
	}
	if md.Method != http.MethodGet || md.Path != "/note/{note_id}" {
		t.Errorf("metadata = %+v", md)
	}
}

func TestEncodeFailureUsesAppLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	registry := NewRegistry().Static("notes.get", Spec{}).MustBuild()
	app := NewApp(registry).WithLogger(logger)
	app.Handle("notes.get", Unary(func(ctx context.Context, _ struct{}) (map[string]any, error) {
		// Channels cannot be JSON-encoded; the failure happens after
		// headers are sent.
		return map[string]any{"ch": make(chan int)}, nil
	}))

	doRequest(app, http.MethodGet, "/notes", "")

	if !strings.Contains(buf.String(), "failed to encode response") {
		t.Errorf("encode failure must go through the app logger, got %q", buf.String())
	}
}

func TestPathParamWithEscapedSlash(t *testing.T) {
	registry := NewRegistry().Dynamic("notebook.[title].get", Spec{}).MustBuild()
	app := NewApp(registry)

	var got string
	app.Handle("notebook.[title].get", Unary(func(ctx context.Context, _ struct{}) (*noteOut, error) {
		got = PathValue(ctx, "title")
		return &noteOut{}, nil
	}))

	// A client legally escapes "a b/c" into one segment; the encoded
	// slash must not split it.
	w := doRequest(app, http.MethodGet, "/notebook/a%20b%2Fc", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if got != "a b/c" {
		t.Errorf("title = %q", got)
	}
}

func TestPathParamValueWithDots(t *testing.T) {
	registry := NewRegistry().Dynamic("notebook.[title].get", Spec{}).MustBuild()
	app := NewApp(registry)

	var got string
	app.Handle("notebook.[title].get", Unary(func(ctx context.Context, _ struct{}) (*noteOut, error) {
		got = PathValue(ctx, "title")
		return &noteOut{}, nil
	}))

	w := doRequest(app, http.MethodGet, "/notebook/v1.2.3", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got != "v1.2.3" {
		t.Errorf("title = %q", got)
	}
}

package focus

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/mmrepo/mmr/internal/git"
	"github.com/mmrepo/mmr/internal/git/gittest"
	"github.com/mmrepo/mmr/internal/graph"
	"github.com/mmrepo/mmr/internal/workspace"
)

func rev(c byte) string {
	return strings.Repeat(string(c), 40)
}

// env simulates a universe of remotes over the fake backend: per-clone HEADs
// and per-(clone, revision) submodule declarations, all keyed by store path.
type env struct {
	t    *testing.T
	ws   *workspace.Workspace
	fake *gittest.Fake
	ctrl *Controller

	mu      sync.Mutex
	heads   map[string]string
	submods map[string][]git.Submodule
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ws, err := workspace.Init(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	e := &env{
		t:       t,
		ws:      ws,
		heads:   map[string]string{},
		submods: map[string][]git.Submodule{},
	}
	e.fake = &gittest.Fake{
		HeadFunc: func(dir string) (string, error) {
			e.mu.Lock()
			defer e.mu.Unlock()
			if head, ok := e.heads[dir]; ok {
				return head, nil
			}
			return "", errors.New("no HEAD recorded")
		},
		CheckoutFunc: func(dir, revision string, force bool) error {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.heads[dir] = revision
			return nil
		},
		ListSubmodulesFunc: func(dir, revision string) ([]git.Submodule, error) {
			e.mu.Lock()
			defer e.mu.Unlock()
			return e.submods[dir+"@"+revision], nil
		},
	}
	e.ctrl = New(ws, e.fake, 2)
	return e
}

func (e *env) clone(key string) string {
	return filepath.Join(e.ws.UniversePath(), filepath.FromSlash(key))
}

func (e *env) setHead(key string, c byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.heads[e.clone(key)] = rev(c)
}

func (e *env) pin(parentKey string, parentRev byte, mount, childURL string, childRev byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	k := e.clone(parentKey) + "@" + rev(parentRev)
	e.submods[k] = append(e.submods[k], git.Submodule{
		Name:     mount,
		Path:     mount,
		URL:      childURL,
		Revision: rev(childRev),
	})
}

// diamond sets up the spec scenario: P@a pins Q@1 and R@2, Q@1 pins R@3.
func (e *env) diamond() {
	e.setHead("h/p", 'a')
	e.pin("h/p", 'a', "deps/q", "https://h/q.git", '1')
	e.pin("h/p", 'a', "deps/r", "https://h/r.git", '2')
	e.pin("h/q", '1', "deps/r", "https://h/r.git", '3')
}

func TestCheckout_ProjectsClosureAndReportsConflict(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.diamond()
	res, err := e.ctrl.Checkout("https://h/p.git", "", false)
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if len(res.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}
	if len(res.Map.Revisions) != 3 {
		t.Fatalf("expected p, q, r in the map, got %v", res.Map.Revisions)
	}
	if len(res.Map.Conflicts) != 1 || res.Map.Conflicts[0].Key != "h/r" {
		t.Fatalf("expected one conflict for h/r, got %+v", res.Map.Conflicts)
	}
	// The pin closest to the root wins.
	if res.Map.Conflicts[0].Chosen != rev('2') {
		t.Fatalf("conflict chose %s, want %s", res.Map.Conflicts[0].Chosen, rev('2'))
	}

	// Checkout registers without focusing.
	s, err := e.ctrl.Status()
	if err != nil {
		t.Fatal(err)
	}
	if s.State.Mode != workspace.ModeFree {
		t.Fatalf("checkout must not focus, mode = %s", s.State.Mode)
	}
	if len(s.Trees) != 3 {
		t.Fatalf("expected 3 registered trees, got %+v", s.Trees)
	}

	// Top-level link and all/ links exist.
	if _, err := os.Lstat(filepath.Join(e.ws.Root(), "p")); err != nil {
		t.Fatalf("root link missing: %v", err)
	}
	if _, err := os.Lstat(filepath.Join(e.ws.AllPath(), "h", "r")); err != nil {
		t.Fatalf("all/ link missing: %v", err)
	}
}

func TestFocus_SetsStateAndStrictFails(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.diamond()
	if _, err := e.ctrl.Checkout("https://h/p.git", "", false); err != nil {
		t.Fatal(err)
	}

	// Strict mode refuses to project a diamond.
	var conflictErr *graph.ConflictError
	if _, err := e.ctrl.Focus("p", false, true); !errors.As(err, &conflictErr) {
		t.Fatalf("expected ConflictError in strict mode, got %v", err)
	}

	res, err := e.ctrl.Focus("p", false, false)
	if err != nil {
		t.Fatalf("Focus: %v", err)
	}
	if len(res.Map.Conflicts) != 1 {
		t.Fatalf("conflict must be retained, got %+v", res.Map.Conflicts)
	}
	s, err := e.ctrl.Status()
	if err != nil {
		t.Fatal(err)
	}
	if s.State.Mode != workspace.ModeFocused || s.State.FocusRoot != "h/p" {
		t.Fatalf("state = %+v, want Focused(h/p)", s.State)
	}
}

func TestFocus_ForceRestoresHandEditedLink(t *testing.T) {
	t.Parallel()

	// Conflict-free fixture: both paths agree on R@2, one valid resolution.
	e := newEnv(t)
	e.setHead("h/p", 'a')
	e.pin("h/p", 'a', "deps/q", "https://h/q.git", '1')
	e.pin("h/p", 'a', "deps/r", "https://h/r.git", '2')
	e.pin("h/q", '1', "deps/r", "https://h/r.git", '2')
	if _, err := e.ctrl.Checkout("https://h/p.git", "", false); err != nil {
		t.Fatal(err)
	}
	if _, err := e.ctrl.Focus("p", false, false); err != nil {
		t.Fatal(err)
	}

	// The user repoints the owned symlink by hand.
	link := filepath.Join(e.ws.Root(), "p")
	if err := os.Remove(link); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(e.ws.Root(), link); err != nil {
		t.Fatal(err)
	}

	res, err := e.ctrl.Focus("p", true, false)
	if err != nil {
		t.Fatalf("forced focus: %v", err)
	}
	if len(res.Errors) != 0 {
		t.Fatalf("forced focus reported errors: %v", res.Errors)
	}
	target, err := os.Readlink(link)
	if err != nil || target != e.clone("h/p") {
		t.Fatalf("owned link not restored: %q %v", target, err)
	}
	s, err := e.ctrl.Status()
	if err != nil {
		t.Fatal(err)
	}
	if s.State.Mode != workspace.ModeFocused || s.State.FocusRoot != "h/p" {
		t.Fatalf("state = %+v, want Focused(h/p)", s.State)
	}
	if len(s.State.Applied.Conflicts) != 0 {
		t.Fatalf("fixture has a single valid resolution, got %+v", s.State.Applied.Conflicts)
	}
}

func TestDefocus_LeavesLinksAlone(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.diamond()
	if _, err := e.ctrl.Checkout("https://h/p.git", "", false); err != nil {
		t.Fatal(err)
	}
	if _, err := e.ctrl.Focus("p", false, false); err != nil {
		t.Fatal(err)
	}
	if err := e.ctrl.Defocus(); err != nil {
		t.Fatalf("Defocus: %v", err)
	}
	s, err := e.ctrl.Status()
	if err != nil {
		t.Fatal(err)
	}
	if s.State.Mode != workspace.ModeFree {
		t.Fatalf("mode = %s, want free", s.State.Mode)
	}
	// Content stays exactly where it is.
	if _, err := os.Lstat(filepath.Join(e.ws.Root(), "p")); err != nil {
		t.Fatalf("defocus must not remove links: %v", err)
	}
	// Defocusing a free workspace is a no-op.
	if err := e.ctrl.Defocus(); err != nil {
		t.Fatalf("double defocus: %v", err)
	}
}

func TestFix_RestoresEntries(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.diamond()
	if _, err := e.ctrl.Checkout("https://h/p.git", "", false); err != nil {
		t.Fatal(err)
	}
	before, err := e.ctrl.Verify()
	if err != nil {
		t.Fatal(err)
	}
	if len(before) != 0 {
		t.Fatalf("fresh projection should verify clean, got %+v", before)
	}

	link := filepath.Join(e.ws.Root(), "p")
	if err := os.Remove(link); err != nil {
		t.Fatal(err)
	}
	drifted, err := e.ctrl.Verify()
	if err != nil {
		t.Fatal(err)
	}
	if len(drifted) != 1 || drifted[0].Path != link {
		t.Fatalf("expected the removed link to be reported, got %+v", drifted)
	}

	res, err := e.ctrl.Fix(false)
	if err != nil {
		t.Fatalf("Fix: %v", err)
	}
	if len(res.Errors) != 0 {
		t.Fatalf("fix errors: %v", res.Errors)
	}
	if _, err := os.Lstat(link); err != nil {
		t.Fatalf("fix did not restore the link: %v", err)
	}
}

func TestStoreDeduplication(t *testing.T) {
	t.Parallel()

	// Two distinct roots pin the same canonical repository at the same
	// revision: one store entry, one clone.
	e := newEnv(t)
	e.setHead("h/p", 'a')
	e.setHead("h/s", 'b')
	e.pin("h/p", 'a', "deps/q", "https://h/q.git", '1')
	e.pin("h/s", 'b', "deps/q", "git@h:q.git", '1')

	if _, err := e.ctrl.Checkout("https://h/p.git", "", false); err != nil {
		t.Fatal(err)
	}
	if _, err := e.ctrl.Checkout("https://h/s.git", "", false); err != nil {
		t.Fatal(err)
	}

	clones := map[string]int{}
	for _, c := range e.fake.Cloned {
		clones[c[1]]++
	}
	if got := clones[e.clone("h/q")]; got != 1 {
		t.Fatalf("expected exactly 1 clone of the shared dependency, got %d (%v)", got, e.fake.Cloned)
	}
	if total := e.fake.Count("Clone"); total != 3 {
		t.Fatalf("expected 3 clones (p, q, s), got %d: %v", total, e.fake.Cloned)
	}
}

func TestDrift_ReportsFreshResolutionDiff(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.setHead("h/p", 'a')
	e.pin("h/p", 'a', "deps/q", "https://h/q.git", '1')
	if _, err := e.ctrl.Checkout("https://h/p.git", "", false); err != nil {
		t.Fatal(err)
	}
	if _, err := e.ctrl.Focus("p", false, false); err != nil {
		t.Fatal(err)
	}

	diff, err := e.ctrl.Drift()
	if err != nil {
		t.Fatalf("Drift: %v", err)
	}
	if diff != "" {
		t.Fatalf("expected no drift right after focus, got:\n%s", diff)
	}

	// The root moves to a commit that pins Q elsewhere.
	e.setHead("h/p", 'c')
	e.pin("h/p", 'c', "deps/q", "https://h/q.git", '9')
	diff, err = e.ctrl.Drift()
	if err != nil {
		t.Fatalf("Drift: %v", err)
	}
	if !strings.Contains(diff, rev('9')) || !strings.Contains(diff, rev('1')) {
		t.Fatalf("diff should show the moved pin:\n%s", diff)
	}
}

package destinations

import (
	"errors"
	"path/filepath"
	"slices"
	"testing"

	"newsrelay/internal/storage"
	"newsrelay/pkg/logx"
)

type memBackend struct {
	ids     []int64
	saves   int
	saveErr error
}

func (m *memBackend) Load(def []int64) ([]int64, bool, error) {
	if m.ids == nil {
		return def, false, nil
	}
	return slices.Clone(m.ids), true, nil
}

func (m *memBackend) Save(ids []int64) error {
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.ids = slices.Clone(ids)
	return nil
}

func TestAddRemove(t *testing.T) {
	t.Parallel()
	b := &memBackend{}
	r, err := Open(b, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}

	if added, err := r.Add(-100); err != nil || !added {
		t.Fatalf("Add = %v, %v", added, err)
	}
	if added, _ := r.Add(-100); added {
		t.Fatal("duplicate Add reported as added")
	}
	if added, _ := r.Add(-200); !added {
		t.Fatal("Add(-200) not added")
	}
	if got := r.List(); !slices.Equal(got, []int64{-100, -200}) {
		t.Fatalf("List = %v", got)
	}

	if removed, _ := r.Remove(-300); removed {
		t.Fatal("removing unknown id reported as removed")
	}
	if removed, err := r.Remove(-100); err != nil || !removed {
		t.Fatalf("Remove = %v, %v", removed, err)
	}
	if r.Contains(-100) {
		t.Fatal("removed id still present")
	}
	if b.saves != 3 {
		t.Fatalf("saves = %d, want 3 (no-op mutations must not persist)", b.saves)
	}
	if !slices.Equal(b.ids, []int64{-200}) {
		t.Fatalf("persisted = %v", b.ids)
	}
}

func TestListIsSnapshot(t *testing.T) {
	t.Parallel()
	r, _ := Open(&memBackend{ids: []int64{1, 2}}, logx.Nop())
	snap := r.List()
	snap[0] = 99
	if r.List()[0] != 1 {
		t.Fatal("List must return a copy")
	}
}

func TestOpenCollapsesDuplicates(t *testing.T) {
	t.Parallel()
	r, err := Open(&memBackend{ids: []int64{5, 5, 6}}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if r.Len() != 2 {
		t.Fatalf("Len = %d, want 2", r.Len())
	}
}

func TestPersistErrorKeepsMemoryState(t *testing.T) {
	t.Parallel()
	r, _ := Open(&memBackend{saveErr: errors.New("read-only fs")}, logx.Nop())
	added, err := r.Add(1)
	if err == nil || !added {
		t.Fatalf("Add = %v, %v; want true and an error", added, err)
	}
	if !r.Contains(1) {
		t.Fatal("in-memory set should keep the id")
	}
}

func TestRoundTripJSONFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "groups.json")
	f, _ := storage.NewJSONFile[[]int64](path)
	r, err := Open(f, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	_, _ = r.Add(-1001)
	_, _ = r.Add(-1002)
	_, _ = r.Remove(-1001)

	f2, _ := storage.NewJSONFile[[]int64](path)
	r2, err := Open(f2, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if got := r2.List(); !slices.Equal(got, []int64{-1002}) {
		t.Fatalf("after restart List = %v", got)
	}
}

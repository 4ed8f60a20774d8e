package cli

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNameTableLookupFallsBackToIdentity(t *testing.T) {
	tbl := newNameTable()
	assert.Equal(t, "peer-1", tbl.lookup("peer-1"))

	tbl.set("peer-1", "alice")
	assert.Equal(t, "alice", tbl.lookup("peer-1"))

	tbl.forget("peer-1")
	assert.Equal(t, "peer-1", tbl.lookup("peer-1"))

	// Forgetting an unknown identity is a no-op.
	tbl.forget("never-seen")
}

// Speaking events read the table from media goroutines while the event loop
// writes it; concurrent access must be safe.
func TestNameTableConcurrentAccess(t *testing.T) {
	tbl := newNameTable()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		id := fmt.Sprintf("peer-%d", i)

		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				tbl.set(id, "user-"+id)
				tbl.forget(id)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				got := tbl.lookup(id)
				assert.Contains(t, got, id)
			}
		}()
	}
	wg.Wait()
}

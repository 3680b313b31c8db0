package risk

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	idMu   sync.Mutex
	idMono io.Reader
)

func init() {
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	idMono = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// newPositionID returns a ULID; IDs sort by creation time, so the open set
// keyed by them keeps FIFO order.
func newPositionID(at time.Time) string {
	idMu.Lock()
	defer idMu.Unlock()

	id, err := ulid.New(ulid.Timestamp(at.UTC()), idMono)
	if err != nil {
		// Only fails when the clock runs backwards within the monotonic window.
		id = ulid.MustNew(ulid.Now(), idMono)
	}
	return id.String()
}

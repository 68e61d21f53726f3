package wessfake

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Audit writes the service's operation log: one line per mutation, in the
// "<time> INFO tx <OP> <id>" shape the real service produces.
type Audit struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time
}

// NewAudit returns an Audit writing to w. A nil w discards every line.
func NewAudit(w io.Writer) *Audit {
	if w == nil {
		w = io.Discard
	}
	return &Audit{w: w, now: time.Now}
}

// Op records a successful operation on id.
func (a *Audit) Op(op, id string) {
	a.write(fmt.Sprintf("%s INFO tx %s %s", a.stamp(), op, id))
}

// Error records a failed request.
func (a *Audit) Error(msg string) {
	a.write(fmt.Sprintf("%s ERROR wess::err %s", a.stamp(), msg))
}

// Inject writes line verbatim. Tests use it to plant malformed entries.
func (a *Audit) Inject(line string) {
	a.write(line)
}

func (a *Audit) stamp() string {
	return a.now().UTC().Format(time.RFC3339)
}

func (a *Audit) write(line string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fmt.Fprintln(a.w, line)
}

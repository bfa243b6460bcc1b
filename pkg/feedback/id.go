package feedback

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	idPrefix       = "fb_"
	idSuffixLength = 12
)

// idIssuer hands out record ids of the form fb_<unix seconds>_<12 hex>.
// It remembers every id issued during the current second so a suffix clash
// inside one process is retried instead of written. Callers hold the store lock.
type idIssuer struct {
	second int64
	issued map[string]struct{}
	random func() string
}

func newIDIssuer() *idIssuer {
	return &idIssuer{
		issued: make(map[string]struct{}),
		random: randomSuffix,
	}
}

func (g *idIssuer) next(now time.Time) string {
	sec := now.Unix()
	if sec != g.second {
		g.second = sec
		clear(g.issued)
	}

	for {
		id := fmt.Sprintf("%s%d_%s", idPrefix, sec, g.random())
		if _, taken := g.issued[id]; taken {
			continue
		}
		g.issued[id] = struct{}{}
		return id
	}
}

func randomSuffix() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return hex[:idSuffixLength]
}

package earnings

import (
	"context"

	"github.com/mileslinfeng/MilesRI/internal/interfaces"
	"github.com/mileslinfeng/MilesRI/internal/metrics"
)

// outcome is implemented by every adapter result
type outcome interface {
	Available() bool
}

// chainResult is the winner of a source chain. Answered is true when at
// least one source responded, even if none had usable data.
type chainResult[R outcome] struct {
	Value    R
	Found    bool
	Answered bool
}

// firstSuccess queries sources in priority order and stops at the first
// result accepted by usable. Lower-priority sources are never called once a
// higher one succeeds.
func firstSuccess[S interfaces.NamedSource, R outcome](
	ctx context.Context,
	data string,
	sources []S,
	fetch func(context.Context, S) R,
	usable func(R) bool,
) chainResult[R] {
	var res chainResult[R]
	for _, src := range sources {
		if ctx.Err() != nil {
			break
		}
		r := fetch(ctx, src)
		metrics.SourceCall(src.Name(), data, r.Available())
		if !r.Available() {
			continue
		}
		res.Answered = true
		if usable(r) {
			res.Value = r
			res.Found = true
			return res
		}
	}
	return res
}

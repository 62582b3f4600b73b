package install

import (
	"context"
	"encoding/hex"

	"github.com/ngdp-go/cascstore"
	"github.com/ngdp-go/cascstore/logx"
)

// FetchFunc pulls the content bytes for a hex-encoded EKey through the
// façade → cache → archive → BLTE pipeline; Driver is deliberately ignorant
// of how that pipeline is assembled.
type FetchFunc func(ctx context.Context, ekeyHex string) ([]byte, error)

// WriteFunc persists data at the plan item's logical path.
type WriteFunc func(path string, data []byte) error

// Outcome is reported once per plan item via Driver.OnOutcome.
type Outcome struct {
	Item PlanItem
	Err  error // nil on success
}

// Driver pulls an ordered plan through Fetch/Write, continuing past
// individual failures and reporting each outcome through OnOutcome so
// CLI/TUI rendering stays entirely outside this package (spec.md §7
// "per-file failures as warnings").
type Driver struct {
	Fetch     FetchFunc
	Write     WriteFunc
	OnOutcome func(Outcome)
	Hooks     cascstore.Hooks
	Logger    logx.Logger
}

// Run executes items in order, never aborting on a per-file error. It
// returns a non-nil error only for the catastrophic case described in
// spec.md §7: every single item failed (e.g. no CDN reachable at all).
func (d *Driver) Run(ctx context.Context, items []PlanItem) error {
	hooks := d.Hooks
	if hooks == nil {
		hooks = cascstore.NopHooks{}
	}
	logger := logx.Coalesce(d.Logger)

	var failures int
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		ekeyHex := hex.EncodeToString(item.EKey[:])

		data, err := d.Fetch(ctx, ekeyHex)
		if err == nil {
			err = d.Write(item.Path, data)
		}

		if err != nil {
			failures++
			hooks.InstallFileWarn(ekeyHex, err)
			logger.Warn("install: file failed, continuing", logx.Fields{"path": item.Path, "ekey": ekeyHex, "error": err.Error()})
		}
		if d.OnOutcome != nil {
			d.OnOutcome(Outcome{Item: item, Err: err})
		}
	}

	if len(items) > 0 && failures == len(items) {
		return &AllFilesFailedError{Count: failures}
	}
	return nil
}

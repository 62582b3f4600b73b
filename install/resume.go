package install

import (
	"encoding/hex"
	"os"

	"github.com/fxamacker/cbor/v2"
)

// progressRecord is one completed plan item, persisted so a restarted Driver
// can skip work instead of re-fetching everything. The original client
// detects resumability by re-scanning the install directory for files
// already present next to .build.info; this is the same idea expressed as
// an explicit ledger, since Driver has no filesystem layout of its own to
// rescan (Write is caller-supplied and opaque to this package).
type progressRecord struct {
	EKeyHex string `cbor:"ekey"`
	Path    string `cbor:"path"`
}

// progressFile is the on-disk shape of a resumable plan's state.
type progressFile struct {
	Completed []progressRecord `cbor:"completed"`
}

// LoadProgress reads a progress file written by SaveProgress. A missing file
// is not an error: it just means there's nothing to resume from.
func LoadProgress(path string) (map[[16]byte]bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[[16]byte]bool{}, nil
	}
	if err != nil {
		return nil, err
	}
	var pf progressFile
	if err := cbor.Unmarshal(data, &pf); err != nil {
		return nil, &ProgressCorruptError{Path: path, Err: err}
	}
	done := make(map[[16]byte]bool, len(pf.Completed))
	for _, r := range pf.Completed {
		raw, err := hex.DecodeString(r.EKeyHex)
		if err != nil || len(raw) != 16 {
			continue
		}
		var ekey [16]byte
		copy(ekey[:], raw)
		done[ekey] = true
	}
	return done, nil
}

// SaveProgress overwrites path with the full set of plan items Outcome
// marked successful so far.
func SaveProgress(path string, outcomes []Outcome) error {
	pf := progressFile{}
	for _, o := range outcomes {
		if o.Err != nil {
			continue
		}
		pf.Completed = append(pf.Completed, progressRecord{
			EKeyHex: hex.EncodeToString(o.Item.EKey[:]),
			Path:    o.Item.Path,
		})
	}
	data, err := cbor.Marshal(pf)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// SkipCompleted removes items already recorded in done from a plan, so a
// resumed Driver.Run only fetches what's still missing.
func SkipCompleted(items []PlanItem, done map[[16]byte]bool) []PlanItem {
	if len(done) == 0 {
		return items
	}
	out := items[:0:0]
	for _, it := range items {
		if done[it.EKey] {
			continue
		}
		out = append(out, it)
	}
	return out
}

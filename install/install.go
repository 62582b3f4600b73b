// Package install is the coordination layer driving a game install or
// repair: turning a parsed encoding file plus an install/download manifest
// into an ordered fetch plan, then pulling each item through the content
// pipeline and reporting per-file outcomes without aborting the run.
// Grounded on original_source/ngdp-client/src/commands/install.rs, minus
// the CLI table/progress-bar rendering and environment parsing that spec.md
// §1 scopes out — those concerns live entirely in the caller-supplied
// progress callback here.
package install

import (
	"sort"

	"github.com/ngdp-go/cascstore/encoding"
)

// Kind distinguishes the two manifest shapes the original client unifies
// into one FileEntry vocabulary.
type Kind int

const (
	// KindInstallManifest entries carry a content key (CKey) that must be
	// resolved through the encoding index to find a fetchable EKey.
	KindInstallManifest Kind = iota
	// KindDownloadManifest entries already carry an EKey.
	KindDownloadManifest
)

// Type selects which files an installation includes, mirroring the CLI's
// InstallType (Minimal/Full/Custom/MetadataOnly).
type Type int

const (
	Minimal Type = iota
	Full
	Custom
	MetadataOnly
)

// ManifestEntry is the unified shape of one install- or download-manifest
// row before planning.
type ManifestEntry struct {
	Path     string
	Key      [16]byte // CKey for KindInstallManifest, EKey for KindDownloadManifest
	Size     uint64
	Priority int8
}

// PlanItem is one resolved, ordered unit of work: always addressed by EKey,
// since that's what the archive/CDN layer fetches by.
type PlanItem struct {
	Path     string
	EKey     [16]byte
	Size     uint64
	Priority int8
	Required bool
}

// Planner resolves a manifest into an ordered plan against a parsed
// encoding file.
type Planner struct {
	Encoding *encoding.File
	// BasePriority is added to each download-manifest entry's raw priority
	// byte before sorting (download manifest v3's BasePriority offset);
	// ignored for install-manifest entries, which are always priority 0
	// (high priority) in the original client.
	BasePriority int8
	// OnSkip is called for each entry that can't be resolved through the
	// encoding index — a normal, expected outcome for locale/platform-
	// filtered builds (spec.md §9 "Manifest key filtering"), not an error.
	OnSkip func(entry ManifestEntry, reason string)
}

// Plan builds an ordered []PlanItem from entries, skipping any whose key
// doesn't resolve through the encoding index (logged via OnSkip, never an
// error) and marking Required per typ's file-selection policy.
func (p *Planner) Plan(entries []ManifestEntry, kind Kind, typ Type) []PlanItem {
	items := make([]PlanItem, 0, len(entries))
	for _, e := range entries {
		ekey, ok := p.resolve(e, kind)
		if !ok {
			if p.OnSkip != nil {
				p.OnSkip(e, "key not present in encoding index")
			}
			continue
		}
		priority := e.Priority
		if kind == KindDownloadManifest {
			priority += p.BasePriority
		}
		items = append(items, PlanItem{
			Path:     e.Path,
			EKey:     ekey,
			Size:     e.Size,
			Priority: priority,
			Required: required(e.Path, priority, typ),
		})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Priority < items[j].Priority })
	return items
}

func (p *Planner) resolve(e ManifestEntry, kind Kind) ([16]byte, bool) {
	if kind == KindDownloadManifest {
		// Already an EKey; confirm it's a real, fetchable file.
		if _, _, ok := p.Encoding.FindESpec(e.Key); ok {
			return e.Key, true
		}
		return [16]byte{}, false
	}
	ekeys, _, ok := p.Encoding.FindEncoding(e.Key)
	if !ok || len(ekeys) == 0 {
		return [16]byte{}, false
	}
	return ekeys[0], true
}

// required implements the CLI's per-InstallType file-selection rule.
func required(path string, priority int8, typ Type) bool {
	switch typ {
	case Minimal:
		return isRequiredFile(path)
	case Full:
		return true
	case Custom:
		return priority <= 0
	case MetadataOnly:
		return false
	default:
		return false
	}
}

// isRequiredFile is a conservative heuristic matching the original client's
// "always install the files a minimal client needs to start" rule: the
// base executables and core data files, not locale/optional assets.
func isRequiredFile(path string) bool {
	for _, suffix := range []string{".exe", ".dll", ".build.info"} {
		if hasSuffixFold(path, suffix) {
			return true
		}
	}
	return false
}

func hasSuffixFold(s, suffix string) bool {
	if len(s) < len(suffix) {
		return false
	}
	tail := s[len(s)-len(suffix):]
	for i := range tail {
		a, b := tail[i], suffix[i]
		if a >= 'A' && a <= 'Z' {
			a += 'a' - 'A'
		}
		if b >= 'A' && b <= 'Z' {
			b += 'a' - 'A'
		}
		if a != b {
			return false
		}
	}
	return true
}

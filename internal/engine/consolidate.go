package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"relink/internal/fsutil"
)

// Outcome classifies what happened to one redundant member.
type Outcome string

const (
	OutcomeLinked        Outcome = "linked"
	OutcomeAlreadyLinked Outcome = "already_linked"
	OutcomeFailed        Outcome = "failed"
)

// FailureReason narrows an OutcomeFailed result.
type FailureReason string

const (
	FailNone             FailureReason = ""
	FailCrossDevice      FailureReason = "cross_device"
	FailChanged          FailureReason = "changed"
	FailPermissionDenied FailureReason = "permission_denied"
	FailLinkLimit        FailureReason = "link_limit_exceeded"
	FailIO               FailureReason = "io_error"
)

// MemberResult is the consolidation outcome for a single redundant member.
type MemberResult struct {
	Path      string
	Outcome   Outcome
	Reason    FailureReason
	Err       error
	Reclaimed int64
}

// GroupResult is the consolidation outcome for one verified group.
type GroupResult struct {
	Hash      string
	Canonical string
	Members   []MemberResult
}

// Consolidator relinks the redundant members of verified groups to their
// canonical file. It is the only component that mutates the filesystem; in
// dry-run mode it reports what it would do without touching anything.
type Consolidator struct {
	dryRun bool
	log    *logrus.Entry
}

// NewConsolidator returns a Consolidator logging through the given entry.
func NewConsolidator(dryRun bool, log *logrus.Entry) *Consolidator {
	return &Consolidator{dryRun: dryRun, log: log}
}

// Consolidate processes one verified group. The canonical file is never
// removed or rewritten. Failures on one member never stop the remaining
// members, except a changed canonical, which invalidates the verification
// the whole group rests on.
func (c *Consolidator) Consolidate(group VerifiedGroup) GroupResult {
	result := GroupResult{
		Hash:      group.Hash,
		Canonical: group.Canonical.Path,
		Members:   make([]MemberResult, 0, len(group.Redundant)),
	}

	canonicalInfo, err := fsutil.Stat(group.Canonical.Path)
	if err != nil {
		for _, member := range group.Redundant {
			result.Members = append(result.Members, MemberResult{
				Path:    member.Path,
				Outcome: OutcomeFailed,
				Reason:  FailIO,
				Err:     errors.Wrap(err, "stat canonical"),
			})
		}
		return result
	}

	for _, member := range group.Redundant {
		result.Members = append(result.Members, c.relink(group, canonicalInfo, member.Path, member.Size))
	}
	return result
}

func (c *Consolidator) relink(group VerifiedGroup, canonical fsutil.LinkInfo, path string, size int64) MemberResult {
	memberInfo, err := fsutil.Stat(path)
	if err != nil {
		return MemberResult{Path: path, Outcome: OutcomeFailed, Reason: FailIO, Err: err}
	}

	if memberInfo.ID == canonical.ID {
		return MemberResult{Path: path, Outcome: OutcomeAlreadyLinked}
	}

	if memberInfo.ID.Device != canonical.ID.Device {
		return MemberResult{
			Path:    path,
			Outcome: OutcomeFailed,
			Reason:  FailCrossDevice,
			Err:     errors.Errorf("%s is on a different filesystem than %s", path, group.Canonical.Path),
		}
	}

	// The verification result is only valid for the content that was
	// compared. If the canonical file changed since, linking would merge
	// against unknown content.
	current, err := os.Stat(group.Canonical.Path)
	if err != nil {
		return MemberResult{Path: path, Outcome: OutcomeFailed, Reason: FailIO, Err: err}
	}
	if current.Size() != group.Canonical.Size || !current.ModTime().Equal(group.Canonical.ModTime) {
		return MemberResult{
			Path:    path,
			Outcome: OutcomeFailed,
			Reason:  FailChanged,
			Err:     errors.Errorf("canonical %s changed since verification", group.Canonical.Path),
		}
	}

	if c.dryRun {
		c.log.Infof("dry-run: would link %s -> %s", path, group.Canonical.Path)
		return MemberResult{Path: path, Outcome: OutcomeLinked, Reclaimed: size}
	}

	if err := replaceWithLink(group.Canonical.Path, path); err != nil {
		return MemberResult{
			Path:    path,
			Outcome: OutcomeFailed,
			Reason:  classifyLinkError(err),
			Err:     err,
		}
	}

	c.log.Debugf("linked %s -> %s", path, group.Canonical.Path)
	return MemberResult{Path: path, Outcome: OutcomeLinked, Reclaimed: size}
}

// replaceWithLink atomically replaces path with a hard link to canonical.
// The link is created under a temporary name in the same directory and then
// renamed over the original, so the path exists at every observable instant
// and a crash in between leaves either the original file or the new link.
func replaceWithLink(canonical, path string) error {
	dir := filepath.Dir(path)
	tmp := filepath.Join(dir, fmt.Sprintf(".%s.relink.%d.tmp", filepath.Base(path), os.Getpid()))

	if err := os.Link(canonical, tmp); err != nil {
		return err
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func classifyLinkError(err error) FailureReason {
	switch {
	case errors.Is(err, syscall.EXDEV):
		return FailCrossDevice
	case errors.Is(err, syscall.EMLINK):
		return FailLinkLimit
	case os.IsPermission(err):
		return FailPermissionDenied
	default:
		return FailIO
	}
}

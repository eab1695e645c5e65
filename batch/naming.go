package batch

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mhpenta/imagebatch"
)

// maxCollisionSuffix bounds the collision loop.
const maxCollisionSuffix = 1_000_000

// Resolved is the outcome of choosing an output path for one image.
type Resolved struct {
	Path string

	// NumberingDiscarded is set when numbering was on, the numbered candidate
	// already existed, and the collision suffix was derived from the plain
	// base name, dropping the number prefix.
	NumberingDiscarded bool
}

// Namer picks collision-free output paths. It only reads storage; the runner
// writes the file.
type Namer struct {
	Storage imagebatch.Storage

	// KeepNumberOnCollision derives collision suffixes from the numbered name
	// instead of the plain base name.
	KeepNumberOnCollision bool
}

// NumberedFilename prefixes base with a 4-digit zero-padded counter.
func NumberedFilename(base string, counter int) string {
	return fmt.Sprintf("%04d_%s", counter, base)
}

// SuffixedFilename inserts a 3-digit zero-padded suffix before the extension.
func SuffixedFilename(base string, n int) string {
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return fmt.Sprintf("%s_%03d%s", stem, n, ext)
}

// Resolve returns the path for job in dir. With numbering on, counter is the
// number to prefix; it is ignored otherwise.
//
// While the candidate exists, the next candidate is <stem>_NNN<ext> with NNN
// counting from 001. By default <stem> comes from job.BaseFilename even when
// numbering is on, so a numbered name that collides loses its number.
func (n Namer) Resolve(dir string, job PromptJob, numbering bool, counter int) (Resolved, error) {
	name := job.BaseFilename
	if numbering {
		name = NumberedFilename(job.BaseFilename, counter)
	}
	candidate := filepath.Join(dir, name)

	suffixBase := job.BaseFilename
	if numbering && n.KeepNumberOnCollision {
		suffixBase = name
	}

	res := Resolved{Path: candidate}
	for i := 1; ; i++ {
		exists, err := n.Storage.Exists(res.Path)
		if err != nil {
			return Resolved{}, err
		}
		if !exists {
			return res, nil
		}
		if i > maxCollisionSuffix {
			return Resolved{}, fmt.Errorf("no free file name for %s", candidate)
		}
		res.Path = filepath.Join(dir, SuffixedFilename(suffixBase, i))
		res.NumberingDiscarded = numbering && !n.KeepNumberOnCollision
	}
}

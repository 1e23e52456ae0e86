package rag

import (
	"fmt"
	"slices"

	"github.com/gamma-omg/brain-rag/docstore"
)

const idFingerprintLen = 12

// ChunkID is stable while a document is unchanged and disjoint from the ids
// of any other revision.
func ChunkID(name string, ordinal int, fingerprint string) string {
	if len(fingerprint) > idFingerprintLen {
		fingerprint = fingerprint[:idFingerprintLen]
	}
	return fmt.Sprintf("%s#%d@%s", name, ordinal, fingerprint)
}

type Plan struct {
	Add    []Document
	Update []Document
	Skip   []Document
	Delete []string
}

// Work returns the documents that need chunking, adds first.
func (p Plan) Work() []Document {
	return slices.Concat(p.Add, p.Update)
}

// Diff compares scanned documents with the fingerprints recorded in the
// store.
func Diff(current []Document, recorded map[string]string) Plan {
	var p Plan
	seen := make(map[string]struct{}, len(current))

	for _, doc := range current {
		seen[doc.Name] = struct{}{}

		fp, ok := recorded[doc.Name]
		switch {
		case !ok:
			p.Add = append(p.Add, doc)
		case fp != doc.Fingerprint:
			p.Update = append(p.Update, doc)
		default:
			p.Skip = append(p.Skip, doc)
		}
	}

	for name := range recorded {
		if _, ok := seen[name]; !ok {
			p.Delete = append(p.Delete, name)
		}
	}
	slices.Sort(p.Delete)

	return p
}

// Recorded folds stored chunk metadata into filename -> fingerprint. A file
// left with more than one fingerprint maps to "" so the next pass rewrites it.
func Recorded(metas []docstore.Metadata) map[string]string {
	res := make(map[string]string)
	for _, m := range metas {
		if m.Filename == "" {
			continue
		}

		fp, ok := res[m.Filename]
		switch {
		case !ok:
			res[m.Filename] = m.Fingerprint
		case fp != m.Fingerprint:
			res[m.Filename] = ""
		}
	}
	return res
}

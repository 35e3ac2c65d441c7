package store

import (
	"github.com/jacentio/nestdoc/backend"
)

// PathComposer builds the innermost level of a parent path.
// Every backend.Backend satisfies it.
type PathComposer interface {
	ParentPath(collection, document string) (backend.ParentPath, error)
}

// BuildParentPath turns the alternating collection/document tokens of p into
// a backend parent path.
//
// The last pair anchors the path and each earlier pair, walking backward,
// is nested outside it. For a/1/b/2 that is ParentPath("b", "2") followed
// by At("a", "1").
func BuildParentPath(c PathComposer, p *CollectionPath) (backend.ParentPath, error) {
	n := len(p.Tokens)
	if n < 2 || n%2 != 0 {
		return nil, invalidCollectionPath(p.Raw)
	}

	path, err := c.ParentPath(p.Tokens[n-2], p.Tokens[n-1])
	if err != nil {
		return nil, wrap(KindInitialize, err)
	}

	for i := n - 4; i >= 0; i -= 2 {
		path, err = path.At(p.Tokens[i], p.Tokens[i+1])
		if err != nil {
			return nil, wrap(KindInitialize, err)
		}
	}
	return path, nil
}

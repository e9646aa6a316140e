package holidays

import (
	"context"
	"os"
)

// FileSource reads a YAML holiday document from disk on every Load.
type FileSource struct {
	Path string
}

func (f FileSource) Load(context.Context) ([]Holiday, error) {
	fh, err := os.Open(f.Path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	return Decode(fh)
}

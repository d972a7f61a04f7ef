package transform

import (
	"errors"
	"io"
	"os"

	"github.com/RobBa/alphabet-generator/internal/errs"
	"github.com/RobBa/alphabet-generator/internal/schema"
	"github.com/RobBa/alphabet-generator/internal/tail"
	"github.com/RobBa/alphabet-generator/internal/window"
)

// OpenFiles opens bounded input files and chains them into a single source
// read in the given order. When the schema declares a header line, the
// first line of every file is dropped.
func OpenFiles(paths []string, s *schema.Schema) (window.LineSource, io.Closer, error) {
	if len(paths) == 0 {
		return nil, nil, errs.Config("input", "no input files")
	}

	var (
		files   closers
		sources []window.LineSource
	)
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			files.Close()
			return nil, nil, errs.IO("input", err)
		}
		files = append(files, f)

		var src window.LineSource = window.NewReaderSource(f)
		if s.HasHeader() {
			src = window.SkipHeader(src)
		}
		sources = append(sources, src)
	}
	return window.Concat(sources...), files, nil
}

// OpenFollow opens a growing file. The header line is only dropped when the
// file is read from its start.
func OpenFollow(path string, s *schema.Schema, opts tail.Options) (window.LineSource, io.Closer, error) {
	f, err := tail.Open(path, opts)
	if err != nil {
		return nil, nil, errs.IO("input", err)
	}

	var src window.LineSource = window.NewStreamSource(f, f)
	if s.HasHeader() && !opts.FromEnd {
		src = window.SkipHeader(src)
	}
	return src, f, nil
}

type closers []io.Closer

func (c closers) Close() error {
	var errList []error
	for _, cl := range c {
		if err := cl.Close(); err != nil {
			errList = append(errList, err)
		}
	}
	if err := errors.Join(errList...); err != nil {
		return errs.IO("input", err)
	}
	return nil
}

// Copyright 2020-2022 The OS-NVR Authors.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"

	"flashrec/pkg/video/recindex"
)

// Recordings are stored in the following format
//
// <Year>
// └── <Month>
//     └── <Day>
//         ├── YYYY-MM-DD_hh-mm-ss.mp4        // Video.
//         └── YYYY-MM-DD_hh-mm-ss.mp4.index  // Recovery index, removed when finalized.
//
// A recording that still has an index file was never finalized.

// Unfinished is a recording that still has an index file.
type Unfinished struct {
	MediaPath string
	IndexPath string

	// False if the index has no media file.
	HasMedia bool
}

// FindUnfinished walks dir and returns every recording that has
// an index file, sorted by path.
func FindUnfinished(fsys fs.FS, dir string) ([]Unfinished, error) {
	var found []Unfinished
	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		mediaPath, ok := recindex.MediaPath(path)
		if !ok {
			return nil
		}

		hasMedia := true
		if _, err := fs.Stat(fsys, mediaPath); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			hasMedia = false
		}

		found = append(found, Unfinished{
			MediaPath: filepath.Join(dir, filepath.FromSlash(mediaPath)),
			IndexPath: filepath.Join(dir, filepath.FromSlash(path)),
			HasMedia:  hasMedia,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %v: %w", dir, err)
	}

	sort.Slice(found, func(i, j int) bool {
		return found[i].IndexPath < found[j].IndexPath
	})
	return found, nil
}

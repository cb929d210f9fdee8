// seehuhn.de/go/fontsubset - reduce fonts to the glyphs needed for a text
// Copyright (C) 2026  Jochen Voss <voss@seehuhn.de>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.


package inspect

import (
	"sync"

	"github.com/zeebo/xxh3"
)

// Cache remembers the metadata of the most recently inspected file.
//
// Inspecting a large font takes a while, and callers tend to ask about the
// same file repeatedly until a different file is loaded.  The cache holds a
// single entry, identified by a hash of the file contents.
// A Cache is safe for concurrent use.  The zero value is ready to use.
type Cache struct {
	mu       sync.Mutex
	valid    bool
	hash     uint64
	size     int
	fileName string
	md       *Metadata
	err      error

	hits, misses int
}

// Inspect returns the metadata of a font file, using the cached value if
// the file was inspected before.  The returned Metadata must not be
// modified.
func (c *Cache) Inspect(blob []byte, fileName string) (*Metadata, error) {
	h := xxh3.Hash(blob)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.valid && c.hash == h && c.size == len(blob) && c.fileName == fileName {
		c.hits++
		return c.md, c.err
	}
	c.misses++

	md, err := InspectFile(blob, fileName)
	c.valid = true
	c.hash = h
	c.size = len(blob)
	c.fileName = fileName
	c.md = md
	c.err = err
	return md, err
}

// Stats returns the number of cache hits and misses so far.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Package catalog lists the media libraries: each library is a directory of
// chapters (top-level subdirectories) holding assets filtered by extension.
package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

var (
	ErrUnknownLibrary = errors.New("unknown library")
	ErrBadChapter     = errors.New("invalid chapter name")
	ErrBadAsset       = errors.New("invalid asset name")
	ErrNotFound       = errors.New("not found")
)

type Library struct {
	Name string
	Exts []string
}

// Libraries served under the media root, each in the directory of its name.
var Libraries = []Library{
	{Name: "pdfs", Exts: []string{"pdf"}},
	{Name: "images", Exts: []string{"jpg", "jpeg", "png", "webp", "gif", "svg"}},
	{Name: "audio", Exts: []string{"mp3", "wav", "m4a", "ogg", "flac"}},
}

func (l Library) matches(name string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	for _, e := range l.Exts {
		if ext == e {
			return true
		}
	}
	return false
}

type Chapter struct {
	Name  string `json:"name"`
	Files int    `json:"files"`
}

type Asset struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modTime"`
}

// Summary counts one library.
type Summary struct {
	Library  string `json:"library"`
	Chapters int    `json:"chapters"`
	Files    int    `json:"files"`
}

// Query narrows an asset listing. Filter is a case-insensitive substring.
type Query struct {
	Filter string
	Desc   bool
}

type Catalog struct {
	root string
	libs map[string]Library
}

func New(root string) *Catalog {
	c := &Catalog{root: root, libs: map[string]Library{}}
	for _, l := range Libraries {
		c.libs[l.Name] = l
	}
	return c
}

func (c *Catalog) Library(name string) (Library, error) {
	l, ok := c.libs[name]
	if !ok {
		return Library{}, ErrUnknownLibrary
	}
	return l, nil
}

func isHidden(name string) bool { return strings.HasPrefix(name, ".") }

// ValidChapter rejects anything that could leave the library directory.
func ValidChapter(name string) error {
	if name == "" || isHidden(name) || strings.ContainsAny(name, "/\\\x00") || strings.Contains(name, "..") {
		return ErrBadChapter
	}
	return nil
}

func validAsset(name string) error {
	if name == "" || isHidden(name) || strings.ContainsAny(name, "/\\\x00") {
		return ErrBadAsset
	}
	return nil
}

// Chapters lists a library's chapters with their asset counts. A missing or
// unreadable library directory yields an empty list.
func (c *Catalog) Chapters(library string) ([]Chapter, error) {
	l, err := c.Library(library)
	if err != nil {
		return nil, err
	}
	base := filepath.Join(c.root, l.Name)
	names := listDirs(base)
	out := make([]Chapter, 0, len(names))
	for _, n := range names {
		out = append(out, Chapter{Name: n, Files: len(listAssets(filepath.Join(base, n), l))})
	}
	return out, nil
}

// Assets lists one chapter, naturally sorted by name.
func (c *Catalog) Assets(library, chapter string, q Query) ([]Asset, error) {
	l, dir, err := c.chapterDir(library, chapter)
	if err != nil {
		return nil, err
	}
	all := listAssets(dir, l)
	if f := strings.ToLower(strings.TrimSpace(q.Filter)); f != "" {
		kept := all[:0]
		for _, a := range all {
			if strings.Contains(strings.ToLower(a.Name), f) {
				kept = append(kept, a)
			}
		}
		all = kept
	}
	if q.Desc {
		for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
			all[i], all[j] = all[j], all[i]
		}
	}
	return all, nil
}

// AssetPath resolves a servable file, refusing hidden names, other
// extensions and anything outside the chapter.
func (c *Catalog) AssetPath(library, chapter, name string) (string, error) {
	l, dir, err := c.chapterDir(library, chapter)
	if err != nil {
		return "", err
	}
	if err := validAsset(name); err != nil {
		return "", err
	}
	if !l.matches(name) {
		return "", ErrBadAsset
	}
	p := filepath.Join(dir, name)
	fi, err := os.Stat(p)
	if err != nil || !fi.Mode().IsRegular() {
		return "", ErrNotFound
	}
	return p, nil
}

// Summaries counts chapters and assets of every library.
func (c *Catalog) Summaries() []Summary {
	out := make([]Summary, 0, len(Libraries))
	for _, l := range Libraries {
		chs, _ := c.Chapters(l.Name)
		s := Summary{Library: l.Name, Chapters: len(chs)}
		for _, ch := range chs {
			s.Files += ch.Files
		}
		out = append(out, s)
	}
	return out
}

func (c *Catalog) chapterDir(library, chapter string) (Library, string, error) {
	l, err := c.Library(library)
	if err != nil {
		return Library{}, "", err
	}
	if err := ValidChapter(chapter); err != nil {
		return Library{}, "", err
	}
	dir := filepath.Join(c.root, l.Name, chapter)
	fi, err := os.Stat(dir)
	if err != nil || !fi.IsDir() {
		return Library{}, "", ErrNotFound
	}
	return l, dir, nil
}

func listDirs(base string) []string {
	entries, err := os.ReadDir(base)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if isHidden(e.Name()) {
			continue
		}
		fi, err := os.Stat(filepath.Join(base, e.Name()))
		if err == nil && fi.IsDir() {
			out = append(out, e.Name())
		}
	}
	sort.Slice(out, func(i, j int) bool { return NaturalLess(out[i], out[j]) })
	return out
}

func listAssets(dir string, l Library) []Asset {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []Asset
	for _, e := range entries {
		if isHidden(e.Name()) || !l.matches(e.Name()) {
			continue
		}
		fi, err := os.Stat(filepath.Join(dir, e.Name()))
		if err != nil || !fi.Mode().IsRegular() {
			continue
		}
		out = append(out, Asset{Name: e.Name(), Size: fi.Size(), ModTime: fi.ModTime().UTC()})
	}
	sort.Slice(out, func(i, j int) bool { return NaturalLess(out[i].Name, out[j].Name) })
	return out
}

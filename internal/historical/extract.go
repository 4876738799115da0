package historical

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"
)

// Member is one CSV file found inside an archive.
type Member struct {
	Name string
	Slug string
	Data []byte
}

// Limits bounds recursive extraction.
type Limits struct {
	MaxDepth int   // nested zip levels below the top archive
	MaxBytes int64 // total uncompressed bytes read
}

// Extract returns every CSV member of a zip, descending into nested zips.
// Auxiliary entries (__MACOSX, AppleDouble "._" files) are skipped.
func Extract(data []byte, slug string, limits Limits) ([]Member, error) {
	budget := limits.MaxBytes
	return extract(data, slug, 0, limits.MaxDepth, &budget)
}

func extract(data []byte, slug string, depth, maxDepth int, budget *int64) ([]Member, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("%w: depth %d", ErrArchiveTooDeep, depth)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArchiveFetch, err)
	}

	var out []Member
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		lowered := strings.ToLower(f.Name)
		base := path.Base(f.Name)
		if strings.Contains(lowered, "__macosx") || strings.HasPrefix(base, "._") {
			continue
		}
		isZip := strings.HasSuffix(lowered, ".zip")
		if !isZip && !strings.HasSuffix(lowered, ".csv") {
			continue
		}

		payload, err := readMember(f, budget)
		if err != nil {
			return nil, err
		}
		stem := strings.TrimSuffix(base, path.Ext(base))
		memberSlug := Slug(slug + "_" + stem)
		if isZip {
			nested, err := extract(payload, memberSlug, depth+1, maxDepth, budget)
			if err != nil {
				return nil, err
			}
			out = append(out, nested...)
			continue
		}
		out = append(out, Member{Name: f.Name, Slug: memberSlug, Data: payload})
	}
	return out, nil
}

func readMember(f *zip.File, budget *int64) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrArchiveFetch, f.Name, err)
	}
	defer rc.Close()

	payload, err := io.ReadAll(io.LimitReader(rc, *budget+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrArchiveFetch, f.Name, err)
	}
	if int64(len(payload)) > *budget {
		return nil, fmt.Errorf("%w: %s", ErrArchiveTooLarge, f.Name)
	}
	*budget -= int64(len(payload))
	return payload, nil
}

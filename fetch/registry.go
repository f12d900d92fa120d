// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fetch

import (
	"archive/tar"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/Masterminds/semver/v3"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

// CacheProbe reports whether some version already installed for name
// satisfies selector, letting the registry fetcher honour useCache without
// importing the store package directly (spec.md §4.B "useCache").
type CacheProbe func(name, selector string) (version string, ok bool)

// RegistryFetcher resolves name+semver-range selectors against an
// npm-compatible registry. HTTP/TLS/auth concerns are treated as an
// external collaborator per spec.md §1 — this type owns only the shape of
// the contract (resolve a range, download a tarball), not transport
// hardening.
type RegistryFetcher struct {
	RegistryURL string
	Client      *http.Client
	NoCache     bool
	Probe       CacheProbe
}

type registryDoc struct {
	Name     string                   `json:"name"`
	Versions map[string]registryVersn `json:"versions"`
	DistTags map[string]string        `json:"dist-tags"`
}

type registryVersn struct {
	Version              string            `json:"version"`
	Main                 string            `json:"main"`
	Dependencies         map[string]string `json:"dependencies"`
	OptionalDependencies map[string]string `json:"optionalDependencies"`
	Dist                 struct {
		Tarball string `json:"tarball"`
	} `json:"dist"`
}

// Resolve implements Fetcher. When not NoCache and Probe finds a satisfying
// installed version, it returns a manifest built without ever contacting
// the registry (spec.md §4.B "useCache").
func (f *RegistryFetcher) Resolve(name, selector string) (*Manifest, error) {
	if !f.NoCache && f.Probe != nil {
		if v, ok := f.Probe(name, selector); ok {
			return &Manifest{Name: name, Version: v, Main: "index.js"}, nil
		}
	}

	doc, err := f.fetchDoc(name)
	if err != nil {
		return nil, err
	}

	constraint, err := semver.NewConstraint(selector)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing version selector %q for %s", selector, name)
	}

	best, bestRaw, found := (*semver.Version)(nil), registryVersn{}, false
	for raw, vdoc := range doc.Versions {
		v, err := semver.NewVersion(raw)
		if err != nil {
			continue
		}
		if !constraint.Check(v) {
			continue
		}
		if !found || v.GreaterThan(best) {
			best, bestRaw, found = v, vdoc, true
		}
	}
	if !found {
		return nil, errors.Errorf("no version of %s satisfies %q", name, selector)
	}

	return &Manifest{
		Name:                 name,
		Version:              best.Original(),
		Main:                 bestRaw.Main,
		Dependencies:         bestRaw.Dependencies,
		OptionalDependencies: bestRaw.OptionalDependencies,
	}, nil
}

func (f *RegistryFetcher) fetchDoc(name string) (*registryDoc, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	url := fmt.Sprintf("%s/%s", f.RegistryURL, name)
	resp, err := client.Get(url)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching registry metadata for %s", name)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errors.Errorf("package %s not found in registry", name)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("registry returned %s for %s", resp.Status, name)
	}

	var doc registryDoc
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, errors.Wrapf(err, "decoding registry metadata for %s", name)
	}
	return &doc, nil
}

// Download fetches and extracts the resolved version's tarball into
// destDir. Tarballs are npm-shaped: every entry is rooted under a single
// "package/" prefix that gets stripped on extraction.
func (f *RegistryFetcher) Download(manifest *Manifest, destDir string) error {
	doc, err := f.fetchDoc(manifest.Name)
	if err != nil {
		return err
	}
	vdoc, ok := doc.Versions[manifest.Version]
	if !ok {
		return errors.Errorf("version %s of %s disappeared from the registry between resolve and download", manifest.Version, manifest.Name)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Get(vdoc.Dist.Tarball)
	if err != nil {
		return errors.Wrapf(err, "downloading %s@%s", manifest.Name, manifest.Version)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("tarball fetch returned %s for %s@%s", resp.Status, manifest.Name, manifest.Version)
	}

	return extractNpmTarball(resp.Body, destDir)
}

// extractNpmTarball extracts a gzip-compressed tar stream, stripping the
// leading "package/" path component npm tarballs always carry.
func extractNpmTarball(r io.Reader, destDir string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return errors.Wrap(err, "opening tarball gzip stream")
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "reading tarball entry")
		}

		rel := stripFirstPathComponent(hdr.Name)
		if rel == "" {
			continue
		}
		target := filepath.Join(destDir, rel)

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(hdr.Mode))
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			out.Close()
		}
	}
}

func stripFirstPathComponent(name string) string {
	for i := 0; i < len(name); i++ {
		if name[i] == '/' {
			return name[i+1:]
		}
	}
	return ""
}
